package exfat

import (
	"encoding/binary"
)

const (
	// FirstCluster is the index of the first cluster in the cluster heap.
	FirstCluster = 2
	// BadCluster marks a cluster as unusable in the FAT.
	BadCluster = 0xFFFFFFF7
	// LastCluster marks the end of a cluster chain in the FAT.
	LastCluster = 0xFFFFFFFF
	// MaxClusterCount is the largest number of clusters a FAT can describe,
	// 2^32 - 11.
	MaxClusterCount = 0xFFFFFFF5

	// FATEntrySize is the size of a single FAT entry, in bytes.
	FATEntrySize = 4
)

const (
	// MinSectorShift and MaxSectorShift bound BytesPerSectorShift: sectors are
	// 512 to 4096 bytes.
	MinSectorShift = 9
	MaxSectorShift = 12
	// MaxClusterShift bounds BytesPerSectorShift + SectorsPerClusterShift:
	// clusters are at most 32 MiB.
	MaxClusterShift = 25
)

// FATEntry returns the `slot`th little-endian FAT entry in `buffer`.
func FATEntry(buffer []byte, slot uint) uint32 {
	return binary.LittleEndian.Uint32(buffer[slot*FATEntrySize:])
}

// PutFATEntry stores `entry` at the `slot`th FAT entry of `buffer`.
func PutFATEntry(buffer []byte, slot uint, entry uint32) {
	binary.LittleEndian.PutUint32(buffer[slot*FATEntrySize:], entry)
}
