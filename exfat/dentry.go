package exfat

import (
	"encoding/binary"
)

// DentrySize is the size of every directory entry, in bytes.
const DentrySize = 32

// Directory entry types. The high bit (0x80) marks an entry as in use.
const (
	DentryTypeUnused      = 0x00
	DentryTypeBitmap      = 0x81
	DentryTypeUpcase      = 0x82
	DentryTypeVolumeLabel = 0x83
	DentryTypeFile        = 0x85
	DentryTypeStream      = 0xC0
	DentryTypeFileName    = 0xC1
)

// General secondary flags of stream extension entries.
const (
	FlagAllocationPossible = 0x01
	FlagNoFATChain         = 0x02
)

// File attributes.
const (
	AttrReadOnly  = 0x0001
	AttrHidden    = 0x0002
	AttrSystem    = 0x0004
	AttrDirectory = 0x0010
	AttrArchive   = 0x0020
)

// BitmapFlagSecond is set in an allocation bitmap entry's flags when it
// describes the second bitmap.
const BitmapFlagSecond = 0x01

// BitmapDentry is the allocation bitmap directory entry.
type BitmapDentry struct {
	Flags        uint8
	FirstCluster uint32
	DataLength   uint64
}

// UpcaseDentry is the up-case table directory entry.
type UpcaseDentry struct {
	Checksum     uint32
	FirstCluster uint32
	DataLength   uint64
}

// DentryType returns the type byte of the `index`th directory entry in
// `buffer`.
func DentryType(buffer []byte, index int) uint8 {
	return buffer[index*DentrySize]
}

// DecodeBitmapDentry parses a 32-byte allocation bitmap entry.
func DecodeBitmapDentry(raw []byte) BitmapDentry {
	return BitmapDentry{
		Flags:        raw[1],
		FirstCluster: binary.LittleEndian.Uint32(raw[20:24]),
		DataLength:   binary.LittleEndian.Uint64(raw[24:32]),
	}
}

// Encode writes the entry, including its type byte, into `raw`.
func (d BitmapDentry) Encode(raw []byte) {
	raw[0] = DentryTypeBitmap
	raw[1] = d.Flags
	binary.LittleEndian.PutUint32(raw[20:24], d.FirstCluster)
	binary.LittleEndian.PutUint64(raw[24:32], d.DataLength)
}

// DecodeUpcaseDentry parses a 32-byte up-case table entry.
func DecodeUpcaseDentry(raw []byte) UpcaseDentry {
	return UpcaseDentry{
		Checksum:     binary.LittleEndian.Uint32(raw[4:8]),
		FirstCluster: binary.LittleEndian.Uint32(raw[20:24]),
		DataLength:   binary.LittleEndian.Uint64(raw[24:32]),
	}
}

// Encode writes the entry, including its type byte, into `raw`.
func (d UpcaseDentry) Encode(raw []byte) {
	raw[0] = DentryTypeUpcase
	binary.LittleEndian.PutUint32(raw[4:8], d.Checksum)
	binary.LittleEndian.PutUint32(raw[20:24], d.FirstCluster)
	binary.LittleEndian.PutUint64(raw[24:32], d.DataLength)
}
