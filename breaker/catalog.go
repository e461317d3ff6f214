// Package breaker holds the catalog of break patterns: deliberate violations
// of the rules an exFAT boot sector must follow.
//
// Every pattern rewrites one field of the boot sector cached by a mounted
// volume. Nothing reaches the image until the volume is torn down.
package breaker

import (
	"fmt"

	"github.com/dargueta/breakexfat/errors"
	"github.com/dargueta/breakexfat/exfat"
	"github.com/dargueta/breakexfat/volume"
	"github.com/golang/glog"
	"github.com/hashicorp/go-multierror"
)

// Kind identifies a boot sector field and the way it's broken. Kinds are also
// the catalog indexes.
type Kind int

const (
	InvalidJumpBoot Kind = iota
	InvalidFileSystemName
	NonZeroMustBeZero
	InvalidPartitionOffset
	TooSmallVolumeLength
	InvalidFATOffset
	InvalidFATLength
	InvalidClusterHeapOffset
	TooLargeClusterCount
	InvalidRootCluster
	InvalidFileSystemRevision
	InvalidBytesPerSectorShift
	InvalidSectorsPerClusterShift
	InvalidNumberOfFATs
	InvalidPercentInUse
	InvalidBootSignature
	numKinds
)

type kindInfo struct {
	name     string
	variants int
}

var kinds = [numKinds]kindInfo{
	InvalidJumpBoot:               {"Invalid JumpBoot", 1},
	InvalidFileSystemName:         {"Invalid FileSystemName", 1},
	NonZeroMustBeZero:             {"Not zero in MustBeZero", 1},
	InvalidPartitionOffset:        {"Invalid PartitionOffset", 1},
	TooSmallVolumeLength:          {"Too small VolumeLength", 2},
	InvalidFATOffset:              {"Invalid FatOffset", 2},
	InvalidFATLength:              {"Invalid FatLength", 2},
	InvalidClusterHeapOffset:      {"Invalid ClusterHeapOffset", 2},
	TooLargeClusterCount:          {"Too large ClusterCount", 2},
	InvalidRootCluster:            {"Invalid FirstClusterOfRootDirectory", 2},
	InvalidFileSystemRevision:     {"Invalid FileSystemRevision", 2},
	InvalidBytesPerSectorShift:    {"Invalid BytesPerSectorShift", 2},
	InvalidSectorsPerClusterShift: {"Invalid SectorsPerClusterShift", 1},
	InvalidNumberOfFATs:           {"Invalid NumberOfFats", 2},
	InvalidPercentInUse:           {"Invalid PercentInUse", 1},
	InvalidBootSignature:          {"Invalid BootSignature", 1},
}

func (kind Kind) String() string {
	if kind < 0 || kind >= numKinds {
		return fmt.Sprintf("Kind(%d)", int(kind))
	}
	return kinds[kind].name
}

// Variants returns how many ways the kind's field can be broken.
func (kind Kind) Variants() int {
	if kind < 0 || kind >= numKinds {
		return 0
	}
	return kinds[kind].variants
}

// Pattern is one row of the catalog.
type Pattern struct {
	Kind    Kind
	Enabled bool
	// Variant selects which of the kind's values is written.
	Variant int
}

// Name returns the pattern's display name.
func (pattern Pattern) Name() string {
	return pattern.Kind.String()
}

// Catalog is the ordered list of every break pattern. The zero value is
// empty; use [NewCatalog].
type Catalog struct {
	patterns []Pattern
}

// NewCatalog creates a catalog with every pattern disabled and set to its
// first variant.
func NewCatalog() *Catalog {
	catalog := &Catalog{patterns: make([]Pattern, numKinds)}
	for i := range catalog.patterns {
		catalog.patterns[i].Kind = Kind(i)
	}
	return catalog
}

// Len returns the number of patterns in the catalog.
func (catalog *Catalog) Len() int {
	return len(catalog.patterns)
}

// Patterns returns a copy of the catalog in execution order.
func (catalog *Catalog) Patterns() []Pattern {
	return append([]Pattern(nil), catalog.patterns...)
}

func (catalog *Catalog) checkIndex(index int) error {
	if index < 0 || index >= len(catalog.patterns) {
		return errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf(
				"pattern index %d not in range [0, %d)", index, len(catalog.patterns)))
	}
	return nil
}

// Enable selects the pattern at `index` for the next run.
func (catalog *Catalog) Enable(index int) error {
	if err := catalog.checkIndex(index); err != nil {
		return err
	}
	catalog.patterns[index].Enabled = true
	return nil
}

// Disable deselects the pattern at `index`.
func (catalog *Catalog) Disable(index int) error {
	if err := catalog.checkIndex(index); err != nil {
		return err
	}
	catalog.patterns[index].Enabled = false
	return nil
}

// EnableAll selects every pattern.
func (catalog *Catalog) EnableAll() {
	for i := range catalog.patterns {
		catalog.patterns[i].Enabled = true
	}
}

// SetVariant chooses which variant the pattern at `index` applies.
func (catalog *Catalog) SetVariant(index, variant int) error {
	if err := catalog.checkIndex(index); err != nil {
		return err
	}

	kind := catalog.patterns[index].Kind
	if variant < 0 || variant >= kind.Variants() {
		return errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf(
				"%q has no variant %d, must be in [0, %d)", kind, variant, kind.Variants()))
	}
	catalog.patterns[index].Variant = variant
	return nil
}

// Enabled returns the indexes of all selected patterns, in order.
func (catalog *Catalog) Enabled() []int {
	var indexes []int
	for i, pattern := range catalog.patterns {
		if pattern.Enabled {
			indexes = append(indexes, i)
		}
	}
	return indexes
}

// Run applies every enabled pattern to the boot sector cached by `vol`, in
// catalog order. A pattern that fails doesn't stop the others. It returns the
// indexes of the patterns that were applied.
func (catalog *Catalog) Run(vol *volume.Volume) ([]int, error) {
	entry, err := vol.BootSectorEntry()
	if err != nil {
		return nil, err
	}
	geo := geometryOf(vol)

	var applied []int
	var result *multierror.Error

	for i, pattern := range catalog.patterns {
		if !pattern.Enabled {
			continue
		}
		glog.V(1).Infof("Break: %s (variant %d)", pattern.Name(), pattern.Variant)

		boot, err := exfat.DecodeBootSector(entry.Data)
		if err == nil {
			err = apply(&boot, pattern, geo)
		}
		if err == nil {
			err = boot.Encode(entry.Data)
		}
		if err != nil {
			glog.Errorf("%s: %s", pattern.Name(), err)
			result = multierror.Append(result, fmt.Errorf("%s: %w", pattern.Name(), err))
			continue
		}

		entry.MarkDirty()
		applied = append(applied, i)
	}

	return applied, result.ErrorOrNil()
}
