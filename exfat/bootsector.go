package exfat

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/dargueta/breakexfat/errors"
	"github.com/noxer/bytewriter"
)

const (
	BootSectorSize     = 512
	JumpBootLength     = 3
	FileSystemNameSize = 8
	MustBeZeroLength   = 53
	BootCodeLength     = 390

	// BootSignature is the required value of the last two bytes of the boot
	// sector.
	BootSignature = 0xAA55
)

// VolumeFlagActiveFAT selects the second FAT and allocation bitmap when set.
const VolumeFlagActiveFAT = 0x0001

var (
	RequiredJumpBoot       = [JumpBootLength]byte{0xEB, 0x76, 0x90}
	RequiredFileSystemName = [FileSystemNameSize]byte{'E', 'X', 'F', 'A', 'T', ' ', ' ', ' '}
)

// BootSector is the on-disk representation of the main boot sector. It covers
// all 512 bytes, so decoding and re-encoding a sector is lossless.
type BootSector struct {
	JumpBoot               [JumpBootLength]byte
	FileSystemName         [FileSystemNameSize]byte
	MustBeZero             [MustBeZeroLength]byte
	PartitionOffset        uint64
	VolumeLength           uint64
	FATOffset              uint32
	FATLength              uint32
	ClusterHeapOffset      uint32
	ClusterCount           uint32
	FirstClusterOfRootDir  uint32
	VolumeSerialNumber     uint32
	FileSystemRevision     [2]byte
	VolumeFlags            uint16
	BytesPerSectorShift    uint8
	SectorsPerClusterShift uint8
	NumberOfFATs           uint8
	DriveSelect            uint8
	PercentInUse           uint8
	Reserved               [7]byte
	BootCode               [BootCodeLength]byte
	Signature              uint16
}

// DecodeBootSector parses the first [BootSectorSize] bytes of `buffer`. It does
// not validate anything; see [ValidateBootSector].
func DecodeBootSector(buffer []byte) (BootSector, error) {
	var boot BootSector
	if len(buffer) < BootSectorSize {
		return boot, errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf(
				"boot sector needs %d bytes, got %d", BootSectorSize, len(buffer)))
	}

	err := binary.Read(
		bytes.NewReader(buffer[:BootSectorSize]), binary.LittleEndian, &boot)
	if err != nil {
		return boot, errors.NewFromError(errors.EIO, err)
	}
	return boot, nil
}

// Encode writes the boot sector into the first [BootSectorSize] bytes of
// `buffer`. Bytes past that are left untouched.
func (boot *BootSector) Encode(buffer []byte) error {
	if len(buffer) < BootSectorSize {
		return errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf(
				"boot sector needs %d bytes, got %d", BootSectorSize, len(buffer)))
	}

	writer := bytewriter.New(buffer[:BootSectorSize])
	err := binary.Write(writer, binary.LittleEndian, boot)
	if err != nil {
		return errors.NewFromError(errors.EIO, err)
	}
	return nil
}

// Validate checks the three fields every exFAT boot sector must carry: the
// jump instruction, the file system name, and the boot signature.
func (boot *BootSector) Validate() error {
	if boot.JumpBoot != RequiredJumpBoot {
		return errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf("invalid JumpBoot: % X", boot.JumpBoot))
	}

	if boot.FileSystemName != RequiredFileSystemName {
		return errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf("invalid FileSystemName: %q", boot.FileSystemName[:]))
	}

	// Signature was already converted from little-endian when decoding, so this
	// compares host-order values.
	if boot.Signature != BootSignature {
		return errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf("invalid boot record signature: %#04x", boot.Signature))
	}
	return nil
}

// ValidateBootSector decodes and validates a raw boot sector.
func ValidateBootSector(buffer []byte) error {
	boot, err := DecodeBootSector(buffer)
	if err != nil {
		return err
	}
	return boot.Validate()
}

// SectorSize returns the number of bytes per sector, 2^BytesPerSectorShift.
func (boot *BootSector) SectorSize() uint32 {
	return uint32(1) << boot.BytesPerSectorShift
}

// ClusterSize returns the number of bytes per cluster.
func (boot *BootSector) ClusterSize() uint32 {
	return uint32(1) << (boot.BytesPerSectorShift + boot.SectorsPerClusterShift)
}

// CheckGeometry makes sure the size fields are within the ranges buffers can
// safely be sized from.
func (boot *BootSector) CheckGeometry() error {
	if boot.BytesPerSectorShift < MinSectorShift || boot.BytesPerSectorShift > MaxSectorShift {
		return errors.NewWithMessage(
			errors.EUCLEAN,
			fmt.Sprintf(
				"BytesPerSectorShift must be in [%d, %d], got %d",
				MinSectorShift,
				MaxSectorShift,
				boot.BytesPerSectorShift))
	}

	if int(boot.BytesPerSectorShift)+int(boot.SectorsPerClusterShift) > MaxClusterShift {
		return errors.NewWithMessage(
			errors.EUCLEAN,
			fmt.Sprintf(
				"cluster size 2^%d exceeds 32 MiB",
				int(boot.BytesPerSectorShift)+int(boot.SectorsPerClusterShift)))
	}

	if boot.NumberOfFATs != 1 && boot.NumberOfFATs != 2 {
		return errors.NewWithMessage(
			errors.EUCLEAN,
			fmt.Sprintf("NumberOfFats must be 1 or 2, got %d", boot.NumberOfFATs))
	}
	return nil
}
