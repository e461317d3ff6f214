// Package volume opens an exFAT image and gives sector-, cluster-, FAT- and
// bitmap-level access to it through a pair of write-back caches.
//
// A Volume is not safe for concurrent use.

package volume

import (
	"github.com/dargueta/breakexfat/blockcache"
	"github.com/dargueta/breakexfat/exfat"
)

// Volume is an opened exFAT image along with the geometry derived from its
// boot sector.
type Volume struct {
	device Device
	// TotalSize is the size of the image, in bytes.
	TotalSize int64

	PartitionOffset uint64
	// VolumeLength is the size of the volume, in sectors.
	VolumeLength uint64
	// SectorSize is the number of bytes per sector.
	SectorSize uint32
	// ClusterSize is the number of bytes per cluster.
	ClusterSize uint32
	// SectorShift is log2(SectorSize).
	SectorShift uint8
	// ClusterShift is log2(sectors per cluster).
	ClusterShift uint8
	ClusterCount uint32
	// FATOffset and FATLength are in sectors.
	FATOffset uint32
	FATLength uint32
	NumFATs   uint8
	// HeapOffset is the sector the cluster heap starts at.
	HeapOffset  uint32
	RootCluster uint32
	VolumeFlags uint16

	// AllocOffset and AllocSecond are the first clusters of the first and
	// second allocation bitmaps. Either is 0 if the root directory doesn't
	// have an entry for it.
	AllocOffset  uint32
	AllocSecond  uint32
	AllocLength  uint64
	UpcaseOffset uint32
	UpcaseSize   uint64

	activeFAT    int
	activeBitmap int

	sectors  *blockcache.Cache
	clusters *blockcache.Cache

	inodes []*Inode
	root   InodeHandle
}

// CacheKind selects one of the two caches of a volume.
type CacheKind int

const (
	SectorCache CacheKind = iota
	ClusterCache
)

func (kind CacheKind) String() string {
	switch kind {
	case SectorCache:
		return "sector"
	case ClusterCache:
		return "cluster"
	default:
		return "unknown"
	}
}

func newVolume(device Device, size int64) *Volume {
	return &Volume{
		device:     device,
		TotalSize:  size,
		SectorSize: exfat.BootSectorSize,
		root:       NoParent,
	}
}

// SectorsPerCluster returns the number of sectors in a cluster.
func (vol *Volume) SectorsPerCluster() uint32 {
	return uint32(1) << vol.ClusterShift
}

// Sectors returns the sector cache. Boot sector and FAT regions are staged in
// it by FillSuper.
func (vol *Volume) Sectors() *blockcache.Cache {
	return vol.sectors
}

// Clusters returns the cluster cache.
func (vol *Volume) Clusters() *blockcache.Cache {
	return vol.clusters
}

// Cache returns the cache of the given kind, or nil if `kind` is invalid.
func (vol *Volume) Cache(kind CacheKind) *blockcache.Cache {
	switch kind {
	case SectorCache:
		return vol.sectors
	case ClusterCache:
		return vol.clusters
	default:
		return nil
	}
}

// BootSectorEntry returns the cache entry of sector 0.
func (vol *Volume) BootSectorEntry() (*blockcache.Entry, error) {
	return vol.sectors.Get(0)
}
