// Package testing builds synthetic exFAT images for tests. It's imported as
// exfattest so it doesn't shadow the standard library's testing package.
package testing

import (
	"encoding/binary"
	"testing"

	"github.com/dargueta/breakexfat/exfat"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// ImagePath is where [CreateImageFile] puts the image in its file system.
const ImagePath = "/image.exfat"

// ImageSpec describes the geometry of a synthetic image. All offsets and
// lengths are in sectors.
type ImageSpec struct {
	SectorShift  uint8
	ClusterShift uint8
	// VolumeLength is the size of the whole image.
	VolumeLength uint64
	FATOffset    uint32
	FATLength    uint32
	NumFATs      uint8
	HeapOffset   uint32
	ClusterCount uint32
	RootCluster  uint32
	// RootClusters is the number of consecutive clusters in the root
	// directory's chain. 0 is treated as 1.
	RootClusters uint32
	VolumeFlags  uint16
	// BitmapCluster, SecondBitmapCluster, and UpcaseCluster are the first
	// clusters of the structures listed in the root directory. If 0, no entry
	// is written.
	BitmapCluster       uint32
	SecondBitmapCluster uint32
	UpcaseCluster       uint32
}

// DefaultImageSpec is a small image of 256 clusters of 4 KiB.
func DefaultImageSpec() ImageSpec {
	return ImageSpec{
		SectorShift:   9,
		ClusterShift:  3,
		VolumeLength:  40 + 256*8,
		FATOffset:     24,
		FATLength:     8,
		NumFATs:       2,
		HeapOffset:    40,
		ClusterCount:  256,
		RootCluster:   2,
		BitmapCluster: 3,
		UpcaseCluster: 4,
	}
}

// ScenarioSpec is a 64 MiB image with 512-byte sectors and 4 KiB clusters.
func ScenarioSpec() ImageSpec {
	return ImageSpec{
		SectorShift:   9,
		ClusterShift:  3,
		VolumeLength:  (64 << 20) / 512,
		FATOffset:     24,
		FATLength:     16,
		NumFATs:       2,
		HeapOffset:    56,
		ClusterCount:  15872,
		RootCluster:   2,
		BitmapCluster: 3,
		UpcaseCluster: 4,
	}
}

func (spec ImageSpec) SectorSize() uint64 {
	return uint64(1) << spec.SectorShift
}

func (spec ImageSpec) ClusterSize() uint64 {
	return uint64(1) << (spec.SectorShift + spec.ClusterShift)
}

// ClusterOffset returns the byte offset of a cluster in the image.
func (spec ImageSpec) ClusterOffset(cluster uint32) uint64 {
	return (uint64(spec.HeapOffset) +
		uint64(cluster-exfat.FirstCluster)<<spec.ClusterShift) * spec.SectorSize()
}

// FATEntryOffset returns the byte offset of a FAT entry of the given FAT copy.
func (spec ImageSpec) FATEntryOffset(copyIndex int, cluster uint32) uint64 {
	fatStart := uint64(spec.FATOffset) + uint64(spec.FATLength)*uint64(copyIndex)
	return fatStart*spec.SectorSize() + uint64(cluster)*exfat.FATEntrySize
}

// BootSector returns the boot sector describing the image.
func (spec ImageSpec) BootSector() exfat.BootSector {
	return exfat.BootSector{
		JumpBoot:               exfat.RequiredJumpBoot,
		FileSystemName:         exfat.RequiredFileSystemName,
		VolumeLength:           spec.VolumeLength,
		FATOffset:              spec.FATOffset,
		FATLength:              spec.FATLength,
		ClusterHeapOffset:      spec.HeapOffset,
		ClusterCount:           spec.ClusterCount,
		FirstClusterOfRootDir:  spec.RootCluster,
		VolumeSerialNumber:     0x1234ABCD,
		FileSystemRevision:     [2]byte{0, 1},
		VolumeFlags:            spec.VolumeFlags,
		BytesPerSectorShift:    spec.SectorShift,
		SectorsPerClusterShift: spec.ClusterShift,
		NumberOfFATs:           spec.NumFATs,
		DriveSelect:            0x80,
		Signature:              exfat.BootSignature,
	}
}

// BuildImage creates an image with a valid boot sector, FAT chains for the
// root directory and the structures it lists, and the bitmap and up-case table
// entries in the root directory.
func BuildImage(t *testing.T, spec ImageSpec) []byte {
	image := make([]byte, spec.VolumeLength*spec.SectorSize())

	boot := spec.BootSector()
	require.NoError(t, boot.Encode(image), "failed to encode boot sector")

	rootClusters := spec.RootClusters
	if rootClusters == 0 {
		rootClusters = 1
	}
	chains := map[uint32]uint32{spec.RootCluster: rootClusters}
	for _, cluster := range []uint32{spec.BitmapCluster, spec.SecondBitmapCluster, spec.UpcaseCluster} {
		if cluster != 0 {
			chains[cluster] = 1
		}
	}

	for copyIndex := 0; copyIndex < int(spec.NumFATs); copyIndex++ {
		putFAT := func(cluster, value uint32) {
			offset := spec.FATEntryOffset(copyIndex, cluster)
			binary.LittleEndian.PutUint32(image[offset:], value)
		}
		putFAT(0, 0xFFFFFFF8)
		putFAT(1, exfat.LastCluster)
		for first, length := range chains {
			for i := uint32(0); i < length; i++ {
				next := first + i + 1
				if i == length-1 {
					next = exfat.LastCluster
				}
				putFAT(first+i, next)
			}
		}
	}

	bitmapLength := (uint64(spec.ClusterCount) + 7) / 8
	root := image[spec.ClusterOffset(spec.RootCluster):]
	slot := 0
	if spec.BitmapCluster != 0 {
		exfat.BitmapDentry{
			FirstCluster: spec.BitmapCluster,
			DataLength:   bitmapLength,
		}.Encode(root[slot*exfat.DentrySize:])
		slot++
	}
	if spec.SecondBitmapCluster != 0 {
		exfat.BitmapDentry{
			Flags:        exfat.BitmapFlagSecond,
			FirstCluster: spec.SecondBitmapCluster,
			DataLength:   bitmapLength,
		}.Encode(root[slot*exfat.DentrySize:])
		slot++
	}
	if spec.UpcaseCluster != 0 {
		exfat.UpcaseDentry{
			Checksum:     0xE619D30D,
			FirstCluster: spec.UpcaseCluster,
			DataLength:   spec.ClusterSize(),
		}.Encode(root[slot*exfat.DentrySize:])
	}

	return image
}

// CreateImageFile writes a new image to [ImagePath] in an in-memory file
// system and returns the file system.
func CreateImageFile(t *testing.T, spec ImageSpec) afero.Fs {
	fs := afero.NewMemMapFs()
	err := afero.WriteFile(fs, ImagePath, BuildImage(t, spec), 0o644)
	require.NoError(t, err, "failed to write image file")
	return fs
}

// ReadImageFile returns the current contents of [ImagePath].
func ReadImageFile(t *testing.T, fs afero.Fs) []byte {
	data, err := afero.ReadFile(fs, ImagePath)
	require.NoError(t, err, "failed to read image file back")
	return data
}
