package volume

import (
	"fmt"

	"github.com/dargueta/breakexfat/blockcache"
	"github.com/dargueta/breakexfat/errors"
	"github.com/dargueta/breakexfat/exfat"
	"github.com/golang/glog"
)

// ActiveFAT returns which copy of the FAT entries are read from and written to.
func (vol *Volume) ActiveFAT() int {
	return vol.activeFAT
}

// UpdateActiveFAT switches the FAT copy used by the FAT accessors. Anything
// other than 0 or 1 is ignored with a warning.
func (vol *Volume) UpdateActiveFAT(index int) {
	if index != 0 && index != 1 {
		glog.Warningf("Invalid index of active FAT (%d)", index)
		return
	}
	vol.activeFAT = index
}

// ValidateCluster accepts the end-of-chain marker and any cluster from 2 to
// ClusterCount+1 except the bad-cluster marker.
func (vol *Volume) ValidateCluster(cluster uint32) error {
	if cluster == exfat.LastCluster {
		return nil
	}
	if cluster < exfat.FirstCluster ||
		uint64(cluster) > uint64(vol.ClusterCount)+1 ||
		cluster == exfat.BadCluster {
		return errors.NewWithMessage(
			errors.EINVAL, fmt.Sprintf("cluster %#08x is invalid", cluster))
	}
	return nil
}

// fatSlot finds the cache entry holding the FAT entry of `cluster` in the
// active FAT, and the entry's slot in it.
func (vol *Volume) fatSlot(cluster uint32) (*blockcache.Entry, uint, error) {
	if vol.activeFAT >= int(vol.NumFATs) {
		return nil, 0, errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf("FAT #%d is active but the volume has %d FAT(s)", vol.activeFAT, vol.NumFATs))
	}
	regionStart := uint64(vol.FATOffset) + uint64(vol.FATLength)*uint64(vol.activeFAT)

	// A staged FAT region is addressed directly so no overlapping per-sector
	// entry is created for it.
	region := vol.sectors.Lookup(regionStart)
	if region != nil && uint64(cluster) < uint64(len(region.Data))/exfat.FATEntrySize {
		return region, uint(cluster), nil
	}

	entriesPerSector := uint64(vol.SectorSize / exfat.FATEntrySize)
	sector := regionStart + uint64(cluster)/entriesPerSector
	entry, err := vol.sectors.Get(sector)
	if err != nil {
		glog.Errorf("can't load FAT sector %d for cluster %#08x: %s", sector, cluster, err)
		return nil, 0, err
	}
	return entry, uint(uint64(cluster) % entriesPerSector), nil
}

// GetFATEntry returns the FAT entry of `cluster`, i.e. the next cluster in its
// chain.
func (vol *Volume) GetFATEntry(cluster uint32) (uint32, error) {
	if err := vol.ValidateCluster(cluster); err != nil {
		glog.Errorf("can't read FAT entry: %s", err)
		return 0, err
	}

	entry, slot, err := vol.fatSlot(cluster)
	if err != nil {
		return 0, err
	}
	value := exfat.FATEntry(entry.Data, slot)
	glog.V(2).Infof("FAT[%d] (copy %d) = %#08x", cluster, vol.activeFAT, value)
	return value, nil
}

// SetFATEntry points the FAT entry of `cluster` at `next`. Both must be valid
// cluster references.
func (vol *Volume) SetFATEntry(cluster uint32, next uint32) error {
	if err := vol.ValidateCluster(cluster); err != nil {
		glog.Errorf("can't write FAT entry: %s", err)
		return err
	}
	if err := vol.ValidateCluster(next); err != nil {
		glog.Errorf("can't write FAT entry: %s", err)
		return err
	}

	entry, slot, err := vol.fatSlot(cluster)
	if err != nil {
		return err
	}
	exfat.PutFATEntry(entry.Data, slot, next)
	entry.MarkDirty()
	glog.V(2).Infof("FAT[%d] (copy %d) <- %#08x", cluster, vol.activeFAT, next)
	return nil
}

// GetNextCluster returns the cluster after `cluster` in `inode`'s chain.
// Contiguous files skip the FAT entirely.
func (vol *Volume) GetNextCluster(inode *Inode, cluster uint32) (uint32, error) {
	if !inode.NoFATChain() {
		return vol.GetFATEntry(cluster)
	}

	next := cluster + 1
	if err := vol.ValidateCluster(next); err != nil {
		return 0, err
	}
	return next, nil
}

// ClusterChain returns every cluster of `inode` in order. The walk fails on an
// invalid link, and with EUCLEAN if it's longer than the volume has clusters.
func (vol *Volume) ClusterChain(inode *Inode) ([]uint32, error) {
	if inode.NoFATChain() {
		return vol.contiguousChain(inode)
	}

	var chain []uint32
	cluster := inode.Cluster
	for cluster != exfat.LastCluster {
		if err := vol.ValidateCluster(cluster); err != nil {
			glog.Errorf("%q: bad link after %d clusters: %s", inode.Name, len(chain), err)
			return chain, err
		}
		if uint64(len(chain)) >= uint64(vol.ClusterCount) {
			return chain, errors.NewWithMessage(
				errors.EUCLEAN,
				fmt.Sprintf("cluster chain of %q has a loop", inode.Name))
		}
		chain = append(chain, cluster)

		next, err := vol.GetNextCluster(inode, cluster)
		if err != nil {
			return chain, err
		}
		cluster = next
	}
	return chain, nil
}

func (vol *Volume) contiguousChain(inode *Inode) ([]uint32, error) {
	clusterSize := uint64(vol.ClusterSize)
	links := (inode.Length + clusterSize - 1) / clusterSize
	if links > uint64(vol.ClusterCount) {
		return nil, errors.NewWithMessage(
			errors.EUCLEAN,
			fmt.Sprintf("%q is longer than the volume", inode.Name))
	}

	chain := make([]uint32, 0, links)
	cluster := inode.Cluster
	for i := uint64(0); i < links; i++ {
		if err := vol.ValidateCluster(cluster); err != nil || cluster == exfat.LastCluster {
			return chain, errors.NewWithMessage(
				errors.EINVAL,
				fmt.Sprintf("%q runs past the end of the heap", inode.Name))
		}
		chain = append(chain, cluster)
		cluster++
	}
	return chain, nil
}
