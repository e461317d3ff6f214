package volume

import (
	"bytes"
	"math"
	"testing"

	"github.com/dargueta/breakexfat/errors"
	exfattest "github.com/dargueta/breakexfat/testing"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSector__RoundTrip(t *testing.T) {
	vol, device := mountImage(t, exfattest.DefaultImageSpec())

	buffer := make([]byte, 2*512)
	require.NoError(t, vol.GetSector(buffer, 5, 2))
	assert.Equal(t, device.Data[5*512:7*512], buffer)

	for i := range buffer {
		buffer[i] = byte(i * 3)
	}
	expected := append([]byte(nil), buffer...)
	require.NoError(t, vol.SetSector(buffer, 5, 2))

	readBack := make([]byte, len(buffer))
	require.NoError(t, vol.GetSector(readBack, 5, 2))
	assert.Equal(t, expected, readBack)
	assert.Equal(t, expected, device.Data[5*512:7*512])
}

func TestSector__BufferTooSmall(t *testing.T) {
	vol, _ := mountImage(t, exfattest.DefaultImageSpec())
	err := vol.GetSector(make([]byte, 511), 0, 1)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestSector__ReadPastEnd(t *testing.T) {
	spec := exfattest.DefaultImageSpec()
	vol, _ := mountImage(t, spec)

	err := vol.GetSector(make([]byte, 1024), spec.VolumeLength-1, 2)
	assert.ErrorIs(t, err, errors.ErrIOFailed)
}

func TestSector__WriteFailure(t *testing.T) {
	vol, device := mountImage(t, exfattest.DefaultImageSpec())
	device.WriteErr = errors.ErrNotSupported
	defer func() { device.WriteErr = nil }()

	err := vol.SetSector(make([]byte, 512), 3, 1)
	assert.ErrorIs(t, err, errors.ErrIOFailed)
}

func TestCluster__Addressing(t *testing.T) {
	spec := exfattest.DefaultImageSpec()
	vol, device := mountImage(t, spec)

	buffer := make([]byte, 4096)
	require.NoError(t, vol.GetCluster(buffer, 7, 1))
	offset := spec.ClusterOffset(7)
	assert.Equal(t, device.Data[offset:offset+4096], buffer)
	assert.EqualValues(t, (40+5*8)*512, offset)

	copy(buffer, "cluster seven")
	require.NoError(t, vol.SetCluster(buffer, 7, 1))
	assert.Equal(t, []byte("cluster seven"), device.Data[offset:offset+13])
}

func TestCluster__Range(t *testing.T) {
	vol, _ := mountImage(t, exfattest.DefaultImageSpec())
	buffer := make([]byte, 2*4096)

	assert.ErrorIs(t, vol.GetCluster(buffer, 0, 1), errors.ErrResultOutOfRange)
	assert.ErrorIs(t, vol.GetCluster(buffer, 1, 1), errors.ErrResultOutOfRange)
	assert.ErrorIs(t, vol.GetCluster(buffer, 255, 2), errors.ErrResultOutOfRange)
	assert.ErrorIs(t, vol.SetCluster(buffer, 256, 1), errors.ErrResultOutOfRange)
	assert.NoError(t, vol.GetCluster(buffer, 2, 1))
	assert.NoError(t, vol.GetCluster(buffer, 254, 2))
}

func TestCluster__Range__Overflow(t *testing.T) {
	spec := exfattest.DefaultImageSpec()
	spec.ClusterShift = 0
	vol, device := mountImage(t, spec)
	buffer := make([]byte, 3*512)

	assert.ErrorIs(t, vol.GetCluster(buffer, math.MaxUint64, 3), errors.ErrResultOutOfRange)
	assert.ErrorIs(t, vol.GetCluster(buffer, math.MaxUint64-1, 2), errors.ErrResultOutOfRange)
	assert.ErrorIs(t, vol.SetCluster(buffer, 2, ^uint(0)), errors.ErrResultOutOfRange)
	assert.Zero(t, device.Writes)
}

// newMockVolume creates a volume with 512-byte sectors on top of `device`,
// with empty caches and nothing staged.
func newMockVolume(device Device) *Volume {
	vol := newVolume(device, 1<<20)
	vol.ClusterShift = 3
	vol.ClusterSize = 4096
	vol.ClusterCount = 100
	vol.HeapOffset = 64
	vol.initCaches()
	return vol
}

func TestCache__RemoveCleanDoesNotWrite(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	device := NewMockDevice(ctrl)
	device.EXPECT().
		ReadAt(gomock.Any(), int64(7*512)).
		DoAndReturn(func(p []byte, off int64) (int, error) { return len(p), nil }).
		Times(1)
	device.EXPECT().WriteAt(gomock.Any(), gomock.Any()).Times(0)

	vol := newMockVolume(device)
	_, err := vol.Sectors().Get(7)
	require.NoError(t, err)
	_, err = vol.Sectors().Get(7)
	require.NoError(t, err)
	require.NoError(t, vol.Sectors().Remove(7))
}

func TestCache__RemoveDirtyWritesOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	expected := bytes.Repeat([]byte{0xA5}, 4096)
	clusterOffset := int64((64 + (5-2)*8) * 512)

	device := NewMockDevice(ctrl)
	device.EXPECT().
		ReadAt(gomock.Any(), clusterOffset).
		DoAndReturn(func(p []byte, off int64) (int, error) { return len(p), nil })
	device.EXPECT().
		WriteAt(gomock.Any(), clusterOffset).
		DoAndReturn(func(p []byte, off int64) (int, error) {
			assert.Equal(t, expected, p)
			return len(p), nil
		}).
		Times(1)

	vol := newMockVolume(device)
	entry, err := vol.Clusters().Get(5)
	require.NoError(t, err)
	copy(entry.Data, expected)
	entry.MarkDirty()

	require.NoError(t, vol.Clusters().Remove(5))
	assert.Nil(t, vol.Clusters().Lookup(5))
}

func TestCache__RemoveAllClosesAfterFlush(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	device := NewMockDevice(ctrl)
	read := device.EXPECT().
		ReadAt(gomock.Any(), gomock.Any()).
		DoAndReturn(func(p []byte, off int64) (int, error) { return len(p), nil }).
		Times(2)
	write := device.EXPECT().
		WriteAt(gomock.Any(), int64(3*512)).
		DoAndReturn(func(p []byte, off int64) (int, error) { return len(p), nil }).
		After(read)
	device.EXPECT().Close().Return(nil).After(write)

	vol := newMockVolume(device)
	entry, err := vol.Sectors().Get(3)
	require.NoError(t, err)
	entry.MarkDirty()
	_, err = vol.Sectors().Get(4)
	require.NoError(t, err)

	require.NoError(t, vol.PutSuper())
}

func TestPrintSector(t *testing.T) {
	vol, device := mountImage(t, exfattest.DefaultImageSpec())
	copy(device.Data[512*9:], "Hello, world!\x00\x01\xff")

	var output bytes.Buffer
	require.NoError(t, vol.PrintSector(&output, 9, 1))

	lines := bytes.Split(output.Bytes(), []byte("\n"))
	require.Greater(t, len(lines), 2)
	assert.Equal(t, "Sector #9", string(lines[0]))
	assert.Equal(
		t,
		"00000000:  48 65 6C 6C 6F 2C 20 77 6F 72 6C 64 21 00 01 FF  Hello, world!...",
		string(lines[1]))
	assert.Equal(t, 1+512/16+1, len(lines))
}

func TestPrintCluster__DoesNotCache(t *testing.T) {
	vol, _ := mountImage(t, exfattest.DefaultImageSpec())
	before := vol.Clusters().Indexes()

	var output bytes.Buffer
	require.NoError(t, vol.PrintCluster(&output, 20, 2))
	assert.Contains(t, output.String(), "Cluster #21\n")
	assert.Equal(t, before, vol.Clusters().Indexes())
}

func TestPrintCache(t *testing.T) {
	vol, _ := mountImage(t, exfattest.DefaultImageSpec())

	var output bytes.Buffer
	require.NoError(t, vol.PrintCache(&output, SectorCache, 0))
	assert.Contains(t, output.String(), "Cached sector #0 x1\n")
	assert.Contains(t, output.String(), "EB 76 90 45 58 46 41 54 20 20 20")

	err := vol.PrintCache(&output, ClusterCache, 99)
	assert.ErrorIs(t, err, errors.ErrNotFound)
	err = vol.PrintCache(&output, CacheKind(7), 0)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestHexDump__PartialLine(t *testing.T) {
	var output bytes.Buffer
	require.NoError(t, HexDump(&output, []byte("AB")))
	assert.Equal(
		t,
		"00000000:  41 42 "+string(bytes.Repeat([]byte("   "), 14))+" AB\n",
		output.String())
}
