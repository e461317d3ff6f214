package breaker

import (
	"fmt"
	"math"

	"github.com/dargueta/breakexfat/errors"
	"github.com/dargueta/breakexfat/exfat"
	"github.com/dargueta/breakexfat/volume"
)

// geometry is the layout of the volume as it was mounted. Values are taken
// from here rather than the cached boot sector, so that stacking patterns
// doesn't make one corruption depend on another.
type geometry struct {
	sectorShift  uint8
	clusterShift uint8
	sectorSize   uint64
	volumeLength uint64
	fatOffset    uint64
	fatLength    uint64
	numFATs      uint64
	heapOffset   uint64
	clusterCount uint64
}

func geometryOf(vol *volume.Volume) geometry {
	return geometry{
		sectorShift:  vol.SectorShift,
		clusterShift: vol.ClusterShift,
		sectorSize:   uint64(vol.SectorSize),
		volumeLength: vol.VolumeLength,
		fatOffset:    uint64(vol.FATOffset),
		fatLength:    uint64(vol.FATLength),
		numFATs:      uint64(vol.NumFATs),
		heapOffset:   uint64(vol.HeapOffset),
		clusterCount: uint64(vol.ClusterCount),
	}
}

// heapSectors returns the number of sectors the cluster heap takes up.
func (geo geometry) heapSectors() uint64 {
	return geo.clusterCount << geo.clusterShift
}

// minVolumeLength is the smallest legal volume, 1 MiB, in sectors.
func (geo geometry) minVolumeLength() uint64 {
	return (1 << 20) / geo.sectorSize
}

// apply writes the broken value selected by `pattern` into `boot`.
func apply(boot *exfat.BootSector, pattern Pattern, geo geometry) error {
	variant := pattern.Variant

	switch pattern.Kind {
	case InvalidJumpBoot:
		boot.JumpBoot = [exfat.JumpBootLength]byte{0xFF, 0xFF, 0xFF}

	case InvalidFileSystemName:
		boot.FileSystemName = [exfat.FileSystemNameSize]byte{' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}

	case NonZeroMustBeZero:
		for i := range boot.MustBeZero {
			boot.MustBeZero[i] = 0xFF
		}

	case InvalidPartitionOffset:
		boot.PartitionOffset = math.MaxUint64

	case TooSmallVolumeLength:
		// Either below the 1 MiB minimum, or too short to hold the heap.
		if variant == 0 {
			boot.VolumeLength = geo.minVolumeLength() - 1
		} else {
			boot.VolumeLength = geo.heapOffset + geo.heapSectors() - 1
		}

	case InvalidFATOffset:
		// FatOffset must be at least 24 and leave room for every FAT before
		// the heap.
		if variant == 0 {
			boot.FATOffset = 23
		} else {
			boot.FATOffset = uint32(geo.heapOffset - geo.fatLength*geo.numFATs + 1)
		}

	case InvalidFATLength:
		// FatLength must hold an entry for every cluster and fit before the
		// heap.
		if variant == 0 {
			fatBytes := (geo.clusterCount + exfat.FirstCluster) * exfat.FATEntrySize
			boot.FATLength = uint32((fatBytes+geo.sectorSize-1)/geo.sectorSize - 1)
		} else {
			boot.FATLength = uint32((geo.heapOffset-geo.fatOffset)/geo.numFATs + 1)
		}

	case InvalidClusterHeapOffset:
		if variant == 0 {
			boot.ClusterHeapOffset = uint32(geo.fatOffset + geo.fatLength*geo.numFATs - 1)
		} else {
			limit := geo.volumeLength - geo.heapSectors()
			if limit > math.MaxUint32 {
				limit = math.MaxUint32
			}
			boot.ClusterHeapOffset = uint32(limit + 1)
		}

	case TooLargeClusterCount:
		// Either more clusters than fit in the volume, or more than a FAT can
		// address.
		if variant == 0 {
			boot.ClusterCount = uint32((geo.volumeLength-geo.heapOffset)>>geo.clusterShift + 1)
		} else {
			boot.ClusterCount = exfat.MaxClusterCount + 1
		}

	case InvalidRootCluster:
		if variant == 0 {
			boot.FirstClusterOfRootDir = exfat.FirstCluster - 1
		} else {
			boot.FirstClusterOfRootDir = uint32(geo.clusterCount + exfat.FirstCluster)
		}

	case InvalidFileSystemRevision:
		// The revision is stored minor byte first.
		if variant == 0 {
			boot.FileSystemRevision = [2]byte{0, 0}
		} else {
			boot.FileSystemRevision = [2]byte{100, 1}
		}

	case InvalidBytesPerSectorShift:
		if variant == 0 {
			boot.BytesPerSectorShift = exfat.MinSectorShift - 1
		} else {
			boot.BytesPerSectorShift = exfat.MaxSectorShift + 1
		}

	case InvalidSectorsPerClusterShift:
		boot.SectorsPerClusterShift = exfat.MaxClusterShift - geo.sectorShift + 1

	case InvalidNumberOfFATs:
		if variant == 0 {
			boot.NumberOfFATs = 0
		} else {
			boot.NumberOfFATs = 3
		}

	case InvalidPercentInUse:
		boot.PercentInUse = 101

	case InvalidBootSignature:
		boot.Signature = 0x55AA

	default:
		return errors.NewWithMessage(
			errors.ENOTSUP, fmt.Sprintf("unknown break pattern %d", int(pattern.Kind)))
	}
	return nil
}
