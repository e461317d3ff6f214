package volume

import (
	"io"
)

// Device is the backing storage of a volume, usually the image file itself.
// All access is positioned; the volume never relies on a current offset.
//
// afero.File and *os.File both implement Device.
//
// Generated mock using mockgen:
//
//	mockgen -source=device.go -destination=mock_device_test.go -package volume
type Device interface {
	ReadAt(p []byte, off int64) (n int, err error)
	WriteAt(p []byte, off int64) (n int, err error)
	Close() error
}

// StreamDevice adapts a stream that can only seek, read, and write into a
// [Device] by seeking before every access. It is not safe for concurrent use.
type StreamDevice struct {
	stream io.ReadWriteSeeker
}

// NewStreamDevice wraps `stream`. Closing the device closes the stream if it
// implements [io.Closer].
func NewStreamDevice(stream io.ReadWriteSeeker) *StreamDevice {
	return &StreamDevice{stream: stream}
}

func (device *StreamDevice) ReadAt(p []byte, off int64) (int, error) {
	_, err := device.stream.Seek(off, io.SeekStart)
	if err != nil {
		return 0, err
	}
	return io.ReadFull(device.stream, p)
}

func (device *StreamDevice) WriteAt(p []byte, off int64) (int, error) {
	_, err := device.stream.Seek(off, io.SeekStart)
	if err != nil {
		return 0, err
	}
	return device.stream.Write(p)
}

func (device *StreamDevice) Close() error {
	if closer, ok := device.stream.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
