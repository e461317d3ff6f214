package volume

import (
	"fmt"
	"io"
	"math"

	"github.com/dargueta/breakexfat/errors"
	"github.com/dargueta/breakexfat/exfat"
	"github.com/golang/glog"
)

const bytesPerDumpLine = 16

// GetSector reads `count` sectors starting at sector `index` into `buffer`,
// bypassing the cache. `buffer` must be at least `count` sectors long.
func (vol *Volume) GetSector(buffer []byte, index uint64, count uint) error {
	offset, size, err := vol.sectorSpan(buffer, index, count)
	if err != nil {
		return err
	}
	glog.V(2).Infof("Get: Sector from 0x%x to 0x%x", offset, uint64(offset)+size)

	n, err := vol.device.ReadAt(buffer[:size], offset)
	if uint64(n) < size {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		glog.Errorf("read failed at 0x%x: %s", offset, err)
		return errors.NewFromError(errors.EIO, err)
	}
	return nil
}

// SetSector writes `count` sectors from `buffer` starting at sector `index`,
// bypassing the cache.
func (vol *Volume) SetSector(buffer []byte, index uint64, count uint) error {
	offset, size, err := vol.sectorSpan(buffer, index, count)
	if err != nil {
		return err
	}
	glog.V(2).Infof("Set: Sector from 0x%x to 0x%x", offset, uint64(offset)+size)

	n, err := vol.device.WriteAt(buffer[:size], offset)
	if uint64(n) < size {
		if err == nil {
			err = io.ErrShortWrite
		}
		glog.Errorf("write failed at 0x%x: %s", offset, err)
		return errors.NewFromError(errors.EIO, err)
	}
	return nil
}

func (vol *Volume) sectorSpan(
	buffer []byte, index uint64, count uint,
) (int64, uint64, error) {
	sectorSize := uint64(vol.SectorSize)
	size := uint64(count) * sectorSize
	if uint64(len(buffer)) < size {
		return 0, 0, errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf(
				"buffer of %d bytes can't hold %d sectors of %d bytes",
				len(buffer),
				count,
				sectorSize))
	}

	if index > math.MaxInt64/sectorSize {
		return 0, 0, errors.NewWithMessage(
			errors.ERANGE,
			fmt.Sprintf("sector %d is beyond any addressable offset", index))
	}
	return int64(index * sectorSize), size, nil
}

// GetCluster reads `count` clusters starting at cluster `index` into
// `buffer`, bypassing the cache.
func (vol *Volume) GetCluster(buffer []byte, index uint64, count uint) error {
	sector, err := vol.clusterToSector(index, count)
	if err != nil {
		return err
	}
	return vol.GetSector(buffer, sector, count*uint(vol.SectorsPerCluster()))
}

// SetCluster writes `count` clusters from `buffer` starting at cluster
// `index`, bypassing the cache.
func (vol *Volume) SetCluster(buffer []byte, index uint64, count uint) error {
	sector, err := vol.clusterToSector(index, count)
	if err != nil {
		return err
	}
	return vol.SetSector(buffer, sector, count*uint(vol.SectorsPerCluster()))
}

func (vol *Volume) clusterToSector(index uint64, count uint) (uint64, error) {
	clusterCount := uint64(vol.ClusterCount)
	if index < exfat.FirstCluster || index > clusterCount || uint64(count) > clusterCount-index {
		glog.Errorf(
			"invalid cluster range %d x%d (cluster count %d)",
			index,
			count,
			vol.ClusterCount)
		return 0, errors.NewWithMessage(
			errors.ERANGE,
			fmt.Sprintf("invalid cluster range %d x%d", index, count))
	}
	return uint64(vol.HeapOffset) +
		(index-exfat.FirstCluster)*uint64(vol.SectorsPerCluster()), nil
}

// PrintSector dumps `count` sectors starting at `index` to `w`. The caches are
// not touched.
func (vol *Volume) PrintSector(w io.Writer, index uint64, count uint) error {
	buffer := make([]byte, vol.SectorSize)
	for i := uint64(0); i < uint64(count); i++ {
		if err := vol.GetSector(buffer, index+i, 1); err != nil {
			return err
		}
		fmt.Fprintf(w, "Sector #%d\n", index+i)
		if err := HexDump(w, buffer); err != nil {
			return err
		}
	}
	return nil
}

// PrintCluster dumps `count` clusters starting at `index` to `w`. The caches
// are not touched.
func (vol *Volume) PrintCluster(w io.Writer, index uint64, count uint) error {
	buffer := make([]byte, vol.ClusterSize)
	for i := uint64(0); i < uint64(count); i++ {
		if err := vol.GetCluster(buffer, index+i, 1); err != nil {
			return err
		}
		fmt.Fprintf(w, "Cluster #%d\n", index+i)
		if err := HexDump(w, buffer); err != nil {
			return err
		}
	}
	return nil
}

// PrintCache dumps the cached buffer at `index` of the given cache.
func (vol *Volume) PrintCache(w io.Writer, kind CacheKind, index uint64) error {
	cache := vol.Cache(kind)
	if cache == nil {
		return errors.NewWithMessage(
			errors.EINVAL, fmt.Sprintf("no cache of kind %d", int(kind)))
	}

	entry := cache.Lookup(index)
	if entry == nil {
		return errors.NewWithMessage(
			errors.ENOENT, fmt.Sprintf("%s %d is not cached", kind, index))
	}

	dirty := ""
	if entry.Dirty {
		dirty = " (dirty)"
	}
	fmt.Fprintf(w, "Cached %s #%d x%d%s\n", kind, entry.Index, entry.Count, dirty)
	return HexDump(w, entry.Data)
}

// HexDump writes `data` to `w` as 16 bytes per line, each line prefixed by its
// offset and followed by the bytes as ASCII. Unprintable bytes are shown as
// '.'.
func HexDump(w io.Writer, data []byte) error {
	for line := 0; line < len(data); line += bytesPerDumpLine {
		end := line + bytesPerDumpLine
		if end > len(data) {
			end = len(data)
		}
		chunk := data[line:end]

		text := fmt.Sprintf("%08X:  ", line)
		for _, b := range chunk {
			text += fmt.Sprintf("%02X ", b)
		}
		for i := len(chunk); i < bytesPerDumpLine; i++ {
			text += "   "
		}
		text += " "
		for _, b := range chunk {
			if b >= 0x20 && b < 0x7F {
				text += string(rune(b))
			} else {
				text += "."
			}
		}

		if _, err := fmt.Fprintln(w, text); err != nil {
			return err
		}
	}
	return nil
}
