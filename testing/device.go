package testing

import (
	"io"
)

// MemoryDevice is a fixed-size in-memory device that counts every access.
type MemoryDevice struct {
	Data   []byte
	Reads  int
	Writes int
	Closed bool
	// ReadErr and WriteErr, if set, make every read or write fail without
	// transferring anything.
	ReadErr  error
	WriteErr error
}

// NewMemoryDevice creates a device backed directly by `data`.
func NewMemoryDevice(data []byte) *MemoryDevice {
	return &MemoryDevice{Data: data}
}

func (device *MemoryDevice) ReadAt(p []byte, off int64) (int, error) {
	device.Reads++
	if device.ReadErr != nil {
		return 0, device.ReadErr
	}
	if off >= int64(len(device.Data)) {
		return 0, io.EOF
	}
	n := copy(p, device.Data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (device *MemoryDevice) WriteAt(p []byte, off int64) (int, error) {
	device.Writes++
	if device.WriteErr != nil {
		return 0, device.WriteErr
	}
	if off >= int64(len(device.Data)) {
		return 0, io.ErrShortWrite
	}
	n := copy(device.Data[off:], p)
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

func (device *MemoryDevice) Close() error {
	device.Closed = true
	return nil
}
