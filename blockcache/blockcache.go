// Package blockcache provides a write-back cache of fixed-size disk units
// (sectors or clusters) keyed by their index on the disk image.
//
// Entries are loaded eagerly when first requested and are only written back
// when they're removed, either individually or all at once. There is no
// periodic flushing. Entries are kept in the order they were created, and
// RemoveAll flushes them in that order.
//
// Two entries never share an index, but nothing stops entries with different
// indexes from covering overlapping ranges of the disk (e.g. a multi-unit entry
// at index 24 and a single-unit one at index 25). Such entries are not
// reconciled with each other.

package blockcache

import (
	"fmt"

	"github.com/dargueta/breakexfat/errors"
	"github.com/hashicorp/go-multierror"
)

// FetchCallback is a pointer to a function that reads `count` units starting
// at `index` from the backing storage into `buffer`. `buffer` is always exactly
// `count` units long.
type FetchCallback func(index uint64, count uint, buffer []byte) error

// FlushCallback is a pointer to a function that writes `buffer` back to
// `count` units starting at `index`. All guarantees in [FetchCallback] apply
// here too.
type FlushCallback func(index uint64, count uint, buffer []byte) error

// Entry is a cached run of one or more units.
type Entry struct {
	// Index is the index of the first unit the entry covers.
	Index uint64
	// Count is the number of units the entry covers.
	Count uint
	// Data is the cached contents, exactly Count units long.
	Data []byte
	// Dirty is true if Data was modified since it was loaded.
	Dirty bool
}

// MarkDirty flags the entry as needing to be written back.
func (entry *Entry) MarkDirty() {
	entry.Dirty = true
}

type Cache struct {
	bytesPerUnit uint
	fetch        FetchCallback
	flush        FlushCallback
	entries      []*Entry
	byIndex      map[uint64]*Entry
}

// New creates an empty cache of units `bytesPerUnit` bytes in size.
func New(bytesPerUnit uint, fetchCb FetchCallback, flushCb FlushCallback) *Cache {
	return &Cache{
		bytesPerUnit: bytesPerUnit,
		fetch:        fetchCb,
		flush:        flushCb,
		byIndex:      make(map[uint64]*Entry),
	}
}

// BytesPerUnit returns the size of a single unit, in bytes.
func (cache *Cache) BytesPerUnit() uint {
	return cache.bytesPerUnit
}

// Len returns the number of live entries.
func (cache *Cache) Len() int {
	return len(cache.entries)
}

// Indexes returns the indexes of all live entries in creation order.
func (cache *Cache) Indexes() []uint64 {
	indexes := make([]uint64, len(cache.entries))
	for i, entry := range cache.entries {
		indexes[i] = entry.Index
	}
	return indexes
}

// Lookup returns the entry starting at exactly `index`, or nil if there is
// none. It never touches the backing storage.
func (cache *Cache) Lookup(index uint64) *Entry {
	return cache.byIndex[index]
}

// Get returns the entry for `index`, loading a single unit from storage if it
// isn't cached yet.
func (cache *Cache) Get(index uint64) (*Entry, error) {
	return cache.GetRange(index, 1)
}

// GetRange returns the entry starting at `index`. If there isn't one, a new
// entry covering `count` units is loaded from storage and appended. An existing
// entry is returned as-is even if it covers a different number of units.
//
// If loading fails, nothing is added to the cache.
func (cache *Cache) GetRange(index uint64, count uint) (*Entry, error) {
	if entry, ok := cache.byIndex[index]; ok {
		return entry, nil
	}

	if count == 0 {
		return nil, errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf("can't cache zero units at index %d", index))
	}

	data, err := allocate(cache.bytesPerUnit * count)
	if err != nil {
		return nil, err
	}

	err = cache.fetch(index, count, data)
	if err != nil {
		return nil, err
	}

	entry := &Entry{
		Index: index,
		Count: count,
		Data:  data,
	}
	cache.entries = append(cache.entries, entry)
	cache.byIndex[index] = entry
	return entry, nil
}

// Flush writes the entry at `index` back to storage if it's dirty, and marks
// it clean. The entry stays in the cache.
func (cache *Cache) Flush(index uint64) error {
	entry, ok := cache.byIndex[index]
	if !ok {
		return errors.NewWithMessage(
			errors.ENOENT,
			fmt.Sprintf("no cache entry at index %d", index))
	}
	return cache.flushEntry(entry)
}

func (cache *Cache) flushEntry(entry *Entry) error {
	if !entry.Dirty {
		return nil
	}

	err := cache.flush(entry.Index, entry.Count, entry.Data)
	if err != nil {
		return err
	}
	entry.Dirty = false
	return nil
}

// Remove drops the entry at `index`, writing it back first if it's dirty. If
// the write fails, the entry is kept so no modifications are lost.
func (cache *Cache) Remove(index uint64) error {
	entry, ok := cache.byIndex[index]
	if !ok {
		return nil
	}

	err := cache.flushEntry(entry)
	if err != nil {
		return err
	}
	cache.drop(entry)
	return nil
}

func (cache *Cache) drop(entry *Entry) {
	delete(cache.byIndex, entry.Index)
	for i, current := range cache.entries {
		if current == entry {
			cache.entries = append(cache.entries[:i], cache.entries[i+1:]...)
			break
		}
	}
	entry.Data = nil
}

// RemoveAll drains the cache in creation order, writing back every dirty
// entry. Entries are dropped even if their write fails; all failures are
// returned together.
func (cache *Cache) RemoveAll() error {
	var result *multierror.Error

	for _, entry := range cache.entries {
		err := cache.flushEntry(entry)
		if err != nil {
			result = multierror.Append(
				result,
				fmt.Errorf("flushing unit %d: %w", entry.Index, err))
		}
		delete(cache.byIndex, entry.Index)
		entry.Data = nil
	}
	cache.entries = nil

	return result.ErrorOrNil()
}

// allocate returns a zeroed buffer. Sizes the runtime refuses to allocate are
// reported as ENOMEM.
func allocate(size uint) (buffer []byte, err error) {
	defer func() {
		if recover() != nil {
			buffer = nil
			err = errors.NewWithMessage(
				errors.ENOMEM,
				fmt.Sprintf("can't allocate %d bytes for cache entry", size))
		}
	}()
	return make([]byte, size), nil
}
