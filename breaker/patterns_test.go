package breaker_test

import (
	"testing"

	"github.com/dargueta/breakexfat/breaker"
	"github.com/dargueta/breakexfat/exfat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Expected values are for exfattest.DefaultImageSpec: 512-byte sectors, 8
// sectors per cluster, 2088 sectors, 2 FATs of 8 sectors at 24, heap at 40,
// 256 clusters.
func TestPatterns__Boundaries(t *testing.T) {
	tests := []struct {
		kind    breaker.Kind
		variant int
		field   func(boot exfat.BootSector) interface{}
		want    interface{}
	}{
		{breaker.InvalidFileSystemName, 0,
			func(b exfat.BootSector) interface{} { return string(b.FileSystemName[:]) }, "        "},
		{breaker.InvalidPartitionOffset, 0,
			func(b exfat.BootSector) interface{} { return b.PartitionOffset }, uint64(0xFFFFFFFFFFFFFFFF)},
		{breaker.TooSmallVolumeLength, 0,
			func(b exfat.BootSector) interface{} { return b.VolumeLength }, uint64(2047)},
		{breaker.TooSmallVolumeLength, 1,
			func(b exfat.BootSector) interface{} { return b.VolumeLength }, uint64(2087)},
		{breaker.InvalidFATOffset, 0,
			func(b exfat.BootSector) interface{} { return b.FATOffset }, uint32(23)},
		{breaker.InvalidFATOffset, 1,
			func(b exfat.BootSector) interface{} { return b.FATOffset }, uint32(25)},
		{breaker.InvalidFATLength, 0,
			func(b exfat.BootSector) interface{} { return b.FATLength }, uint32(2)},
		{breaker.InvalidFATLength, 1,
			func(b exfat.BootSector) interface{} { return b.FATLength }, uint32(9)},
		{breaker.InvalidClusterHeapOffset, 0,
			func(b exfat.BootSector) interface{} { return b.ClusterHeapOffset }, uint32(39)},
		{breaker.InvalidClusterHeapOffset, 1,
			func(b exfat.BootSector) interface{} { return b.ClusterHeapOffset }, uint32(41)},
		{breaker.TooLargeClusterCount, 0,
			func(b exfat.BootSector) interface{} { return b.ClusterCount }, uint32(257)},
		{breaker.TooLargeClusterCount, 1,
			func(b exfat.BootSector) interface{} { return b.ClusterCount }, uint32(0xFFFFFFF6)},
		{breaker.InvalidRootCluster, 0,
			func(b exfat.BootSector) interface{} { return b.FirstClusterOfRootDir }, uint32(1)},
		{breaker.InvalidRootCluster, 1,
			func(b exfat.BootSector) interface{} { return b.FirstClusterOfRootDir }, uint32(258)},
		{breaker.InvalidFileSystemRevision, 0,
			func(b exfat.BootSector) interface{} { return b.FileSystemRevision }, [2]byte{0, 0}},
		{breaker.InvalidFileSystemRevision, 1,
			func(b exfat.BootSector) interface{} { return b.FileSystemRevision }, [2]byte{100, 1}},
		{breaker.InvalidBytesPerSectorShift, 0,
			func(b exfat.BootSector) interface{} { return b.BytesPerSectorShift }, uint8(8)},
		{breaker.InvalidBytesPerSectorShift, 1,
			func(b exfat.BootSector) interface{} { return b.BytesPerSectorShift }, uint8(13)},
		{breaker.InvalidSectorsPerClusterShift, 0,
			func(b exfat.BootSector) interface{} { return b.SectorsPerClusterShift }, uint8(17)},
		{breaker.InvalidNumberOfFATs, 0,
			func(b exfat.BootSector) interface{} { return b.NumberOfFATs }, uint8(0)},
		{breaker.InvalidNumberOfFATs, 1,
			func(b exfat.BootSector) interface{} { return b.NumberOfFATs }, uint8(3)},
		{breaker.InvalidPercentInUse, 0,
			func(b exfat.BootSector) interface{} { return b.PercentInUse }, uint8(101)},
		{breaker.InvalidBootSignature, 0,
			func(b exfat.BootSector) interface{} { return b.Signature }, uint16(0x55AA)},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			vol, _ := mount(t)
			defer vol.PutSuper()

			catalog := breaker.NewCatalog()
			require.NoError(t, catalog.SetVariant(int(tt.kind), tt.variant))
			require.NoError(t, catalog.Enable(int(tt.kind)))
			_, err := catalog.Run(vol)
			require.NoError(t, err)

			assert.Equal(t, tt.want, tt.field(cachedBootSector(t, vol)), "variant %d", tt.variant)
		})
	}
}

func TestPatterns__MustBeZero(t *testing.T) {
	vol, _ := mount(t)
	defer vol.PutSuper()

	catalog := breaker.NewCatalog()
	require.NoError(t, catalog.Enable(int(breaker.NonZeroMustBeZero)))
	_, err := catalog.Run(vol)
	require.NoError(t, err)

	for i, b := range cachedBootSector(t, vol).MustBeZero {
		assert.EqualValues(t, 0xFF, b, "MustBeZero[%d]", i)
	}
}

func TestKind__String(t *testing.T) {
	assert.Equal(t, "Invalid BootSignature", breaker.InvalidBootSignature.String())
	assert.Equal(t, "Kind(99)", breaker.Kind(99).String())
	assert.Equal(t, 0, breaker.Kind(99).Variants())
}
