package volume

import (
	"fmt"
	"os"

	"github.com/dargueta/breakexfat/blockcache"
	"github.com/dargueta/breakexfat/errors"
	"github.com/dargueta/breakexfat/exfat"
	"github.com/dustin/go-humanize"
	"github.com/golang/glog"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
)

// FillSuper opens the image at `path` read-write and mounts it, see
// [FillSuperFromDevice].
func FillSuper(fs afero.Fs, path string) (*Volume, error) {
	file, err := fs.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		glog.Errorf("open: %s", err)
		return nil, errors.NewFromError(errors.EIO, err)
	}

	info, err := file.Stat()
	if err != nil {
		glog.Errorf("stat: %s", err)
		file.Close()
		return nil, errors.NewFromError(errors.EIO, err)
	}
	return FillSuperFromDevice(file, info.Size())
}

// FillSuperFromDevice reads and validates the boot sector of `device`, derives
// the volume geometry from it, stages the boot sector and every FAT in the
// sector cache, and walks the root directory.
//
// If anything fails, whatever was staged is written back and `device` is
// closed.
func FillSuperFromDevice(device Device, size int64) (*Volume, error) {
	vol := newVolume(device, size)
	glog.V(1).Infof("image is %s", humanize.IBytes(uint64(size)))

	err := vol.readBootSector()
	if err == nil {
		err = vol.stageFATs()
	}
	if err == nil {
		err = vol.readRootDirectory()
	}

	if err != nil {
		if cleanupErr := vol.PutSuper(); cleanupErr != nil {
			glog.Errorf("cleanup after failed mount: %s", cleanupErr)
		}
		return nil, err
	}
	return vol, nil
}

func (vol *Volume) readBootSector() error {
	buffer := make([]byte, exfat.BootSectorSize)
	if err := vol.GetSector(buffer, 0, 1); err != nil {
		return err
	}

	boot, err := exfat.DecodeBootSector(buffer)
	if err != nil {
		return err
	}
	if err = boot.Validate(); err != nil {
		glog.Errorf("%s", err)
		return err
	}
	if err = boot.CheckGeometry(); err != nil {
		glog.Errorf("%s", err)
		return err
	}

	vol.PartitionOffset = boot.PartitionOffset
	vol.VolumeLength = boot.VolumeLength
	vol.SectorShift = boot.BytesPerSectorShift
	vol.ClusterShift = boot.SectorsPerClusterShift
	vol.SectorSize = boot.SectorSize()
	vol.ClusterSize = boot.ClusterSize()
	vol.ClusterCount = boot.ClusterCount
	vol.FATOffset = boot.FATOffset
	vol.FATLength = boot.FATLength
	vol.NumFATs = boot.NumberOfFATs
	vol.HeapOffset = boot.ClusterHeapOffset
	vol.RootCluster = boot.FirstClusterOfRootDir
	vol.VolumeFlags = boot.VolumeFlags

	if boot.VolumeFlags&exfat.VolumeFlagActiveFAT != 0 && vol.NumFATs == 2 {
		vol.activeFAT = 1
		vol.activeBitmap = 1
	}

	glog.V(1).Infof(
		"sector size %s, cluster size %s, %d clusters, volume is %s",
		humanize.IBytes(uint64(vol.SectorSize)),
		humanize.IBytes(uint64(vol.ClusterSize)),
		vol.ClusterCount,
		humanize.IBytes(vol.VolumeLength*uint64(vol.SectorSize)))

	vol.initCaches()

	_, err = vol.sectors.Get(0)
	return err
}

// initCaches creates empty sector and cluster caches sized from the current
// geometry.
func (vol *Volume) initCaches() {
	vol.sectors = blockcache.New(
		uint(vol.SectorSize),
		func(index uint64, count uint, buffer []byte) error {
			return vol.GetSector(buffer, index, count)
		},
		func(index uint64, count uint, buffer []byte) error {
			return vol.SetSector(buffer, index, count)
		})
	vol.clusters = blockcache.New(
		uint(vol.ClusterSize),
		func(index uint64, count uint, buffer []byte) error {
			return vol.GetCluster(buffer, index, count)
		},
		func(index uint64, count uint, buffer []byte) error {
			return vol.SetCluster(buffer, index, count)
		})
}

// stageFATs loads every FAT copy into the sector cache as a single entry.
func (vol *Volume) stageFATs() error {
	for i := uint64(0); i < uint64(vol.NumFATs); i++ {
		start := uint64(vol.FATOffset) + uint64(vol.FATLength)*i
		end := (start + uint64(vol.FATLength)) * uint64(vol.SectorSize)
		if end > uint64(vol.TotalSize) {
			return errors.NewWithMessage(
				errors.EUCLEAN,
				fmt.Sprintf(
					"FAT #%d ends at byte %d, past the end of the image (%d)",
					i,
					end,
					vol.TotalSize))
		}

		_, err := vol.sectors.GetRange(start, uint(vol.FATLength))
		if err != nil {
			glog.Errorf("can't load FAT #%d: %s", i, err)
			return err
		}
		glog.V(1).Infof(
			"FAT #%d: sectors %d-%d (%s)",
			i,
			start,
			start+uint64(vol.FATLength)-1,
			humanize.IBytes(uint64(vol.FATLength)*uint64(vol.SectorSize)))
	}
	return nil
}

// readRootDirectory synthesizes the root inode, caches every cluster of the
// root directory, and looks for the allocation bitmap and up-case table
// entries in it.
func (vol *Volume) readRootDirectory() error {
	root, err := vol.AllocInode("/", NoParent)
	if err != nil {
		return err
	}
	root.Cluster = vol.RootCluster
	root.Attr = exfat.AttrDirectory
	vol.root = root.Handle()

	chain, err := vol.ClusterChain(root)
	if err != nil {
		glog.Errorf("can't walk root directory: %s", err)
		return err
	}
	root.Length = uint64(len(chain)) * uint64(vol.ClusterSize)

	scanning := true
	for _, cluster := range chain {
		entry, err := vol.clusters.Get(uint64(cluster))
		if err != nil {
			return err
		}
		if scanning {
			scanning = vol.scanDentries(entry.Data)
		}
	}

	glog.V(1).Infof(
		"root directory: %d clusters starting at %d; bitmaps at %d/%d, up-case table at %d",
		len(chain),
		vol.RootCluster,
		vol.AllocOffset,
		vol.AllocSecond,
		vol.UpcaseOffset)
	return nil
}

// scanDentries picks up the allocation bitmap and up-case table entries in a
// cluster of the root directory. It returns false once the end of the
// directory has been reached.
func (vol *Volume) scanDentries(data []byte) bool {
	for i := 0; i < len(data)/exfat.DentrySize; i++ {
		raw := data[i*exfat.DentrySize : (i+1)*exfat.DentrySize]

		switch exfat.DentryType(data, i) {
		case exfat.DentryTypeUnused:
			return false
		case exfat.DentryTypeBitmap:
			dentry := exfat.DecodeBitmapDentry(raw)
			if dentry.Flags&exfat.BitmapFlagSecond != 0 {
				vol.AllocSecond = dentry.FirstCluster
			} else {
				vol.AllocOffset = dentry.FirstCluster
				vol.AllocLength = dentry.DataLength
			}
		case exfat.DentryTypeUpcase:
			dentry := exfat.DecodeUpcaseDentry(raw)
			vol.UpcaseOffset = dentry.FirstCluster
			vol.UpcaseSize = dentry.DataLength
		}
	}
	return true
}

// PutSuper writes back and drops both caches, releases the root directory,
// and closes the device. Calling it again is a no-op.
func (vol *Volume) PutSuper() error {
	if vol == nil {
		return nil
	}

	var result *multierror.Error

	if err := vol.releaseRoot(); err != nil {
		result = multierror.Append(result, err)
	}
	if vol.sectors != nil {
		if err := vol.sectors.RemoveAll(); err != nil {
			result = multierror.Append(result, fmt.Errorf("sector cache: %w", err))
		}
	}
	if vol.clusters != nil {
		if err := vol.clusters.RemoveAll(); err != nil {
			result = multierror.Append(result, fmt.Errorf("cluster cache: %w", err))
		}
	}
	if vol.device != nil {
		if err := vol.device.Close(); err != nil {
			result = multierror.Append(result, errors.NewFromError(errors.EIO, err))
		}
		vol.device = nil
	}

	return result.ErrorOrNil()
}
