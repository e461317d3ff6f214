package volume

import (
	"fmt"

	"github.com/boljen/go-bitmap"
	"github.com/dargueta/breakexfat/blockcache"
	"github.com/dargueta/breakexfat/errors"
	"github.com/dargueta/breakexfat/exfat"
	"github.com/golang/glog"
)

// ActiveBitmap returns which allocation bitmap the bitmap accessors use.
func (vol *Volume) ActiveBitmap() int {
	return vol.activeBitmap
}

// UpdateActiveBitmap switches the allocation bitmap used by the bitmap
// accessors. Anything other than 0 or 1 is ignored with a warning.
func (vol *Volume) UpdateActiveBitmap(index int) {
	if index != 0 && index != 1 {
		glog.Warningf("Invalid index of active Bitmap (%d)", index)
		return
	}
	vol.activeBitmap = index
}

// bitmapBit locates the bit tracking `cluster`. The bitmap cluster and the
// bit within it are both derived from `ClusterSize*8 + 2` divided by
// `cluster`. The returned position is -1 if the derived shift doesn't fit in a
// byte, in which case no bit is addressed.
func (vol *Volume) bitmapBit(cluster uint32) (*blockcache.Entry, int, error) {
	if err := vol.ValidateCluster(cluster); err != nil {
		return nil, 0, err
	}

	bitmapStart := vol.AllocOffset
	if vol.activeBitmap == 1 {
		bitmapStart = vol.AllocSecond
	}
	if bitmapStart < exfat.FirstCluster {
		return nil, 0, errors.NewWithMessage(
			errors.ENOENT,
			fmt.Sprintf("allocation bitmap %d was not found on this volume", vol.activeBitmap))
	}

	bits := uint64(vol.ClusterSize)*8 + exfat.FirstCluster
	clusterIndex := bits / uint64(cluster)
	clusterOffset := bits % uint64(cluster)
	shift := clusterOffset / 8
	byteIndex := clusterOffset % 8

	bitmapCluster := uint64(bitmapStart) + clusterIndex
	entry, err := vol.clusters.Get(bitmapCluster)
	if err != nil {
		glog.Errorf("cluster %08x can't be loaded", cluster)
		return nil, 0, errors.NewFromError(errors.EIO, err)
	}

	if shift >= 8 {
		return entry, -1, nil
	}
	return entry, int(byteIndex*8 + shift), nil
}

func (vol *Volume) updateAllocBitmap(cluster uint32, value bool) error {
	entry, position, err := vol.bitmapBit(cluster)
	if err != nil {
		return err
	}
	if position >= 0 {
		bitmap.Set(entry.Data, position, value)
	}
	entry.MarkDirty()
	return nil
}

// SetAllocBitmap marks `cluster` as allocated in the active bitmap.
func (vol *Volume) SetAllocBitmap(cluster uint32) error {
	return vol.updateAllocBitmap(cluster, true)
}

// UnsetAllocBitmap marks `cluster` as free in the active bitmap.
func (vol *Volume) UnsetAllocBitmap(cluster uint32) error {
	return vol.updateAllocBitmap(cluster, false)
}

// GetAllocBitmap returns whether `cluster` is marked as allocated in the
// active bitmap.
func (vol *Volume) GetAllocBitmap(cluster uint32) (bool, error) {
	entry, position, err := vol.bitmapBit(cluster)
	if err != nil {
		return false, err
	}
	if position < 0 {
		return false, nil
	}
	return bitmap.Get(entry.Data, position), nil
}
