package volume

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/dargueta/breakexfat/errors"
	"github.com/dargueta/breakexfat/exfat"
)

// MaxNameLength is the longest file name exFAT can store, in characters.
const MaxNameLength = 255

// InodeHandle identifies an inode in its volume's arena.
type InodeHandle int

// NoParent is the parent handle of the root directory.
const NoParent InodeHandle = -1

// Inode is an in-memory directory entry. Inodes live in an arena owned by the
// volume and refer to each other by handle.
type Inode struct {
	Name    string
	NameLen uint8
	// Flags holds the general secondary flags, see [exfat.FlagNoFATChain].
	Flags    uint8
	Attr     uint16
	Cluster  uint32
	Length   uint64
	Created  time.Time
	Modified time.Time
	Accessed time.Time
	Parent   InodeHandle
	RefCount int

	handle InodeHandle
}

// Handle returns the inode's position in the arena.
func (inode *Inode) Handle() InodeHandle {
	return inode.handle
}

// NoFATChain returns true if the inode's clusters are contiguous and the FAT
// must not be consulted to follow them.
func (inode *Inode) NoFATChain() bool {
	return inode.Flags&exfat.FlagNoFATChain != 0
}

// AllocInode creates an inode with one reference. `parent` must be a live
// inode or [NoParent].
func (vol *Volume) AllocInode(name string, parent InodeHandle) (*Inode, error) {
	nameLength := utf8.RuneCountInString(name)
	if nameLength > MaxNameLength {
		return nil, errors.NewWithMessage(
			errors.ENAMETOOLONG,
			fmt.Sprintf("name is %d characters, max is %d", nameLength, MaxNameLength))
	}

	if parent != NoParent {
		if _, err := vol.lookupInode(parent); err != nil {
			return nil, errors.NewWithMessage(
				errors.EINVAL, fmt.Sprintf("parent inode %d doesn't exist", parent))
		}
	}

	now := time.Now()
	inode := &Inode{
		Name:     name,
		NameLen:  uint8(nameLength),
		Created:  now,
		Modified: now,
		Accessed: now,
		Parent:   parent,
		RefCount: 1,
	}

	for i, slot := range vol.inodes {
		if slot == nil {
			inode.handle = InodeHandle(i)
			vol.inodes[i] = inode
			return inode, nil
		}
	}
	inode.handle = InodeHandle(len(vol.inodes))
	vol.inodes = append(vol.inodes, inode)
	return inode, nil
}

func (vol *Volume) lookupInode(handle InodeHandle) (*Inode, error) {
	if handle < 0 || int(handle) >= len(vol.inodes) || vol.inodes[handle] == nil {
		return nil, errors.NewWithMessage(
			errors.ENOENT, fmt.Sprintf("no inode with handle %d", handle))
	}
	return vol.inodes[handle], nil
}

// GetInode returns the inode for `handle` and takes a reference to it.
func (vol *Volume) GetInode(handle InodeHandle) (*Inode, error) {
	inode, err := vol.lookupInode(handle)
	if err != nil {
		return nil, err
	}
	inode.RefCount++
	return inode, nil
}

// PutInode releases a reference taken by [Volume.GetInode] or
// [Volume.AllocInode].
func (vol *Volume) PutInode(handle InodeHandle) error {
	inode, err := vol.lookupInode(handle)
	if err != nil {
		return err
	}
	if inode.RefCount == 0 {
		return errors.NewWithMessage(
			errors.EINVAL, fmt.Sprintf("inode %d has no references to release", handle))
	}
	inode.RefCount--
	return nil
}

// FreeInode removes an inode from the arena. It fails with EBUSY if anything
// still holds a reference to it.
func (vol *Volume) FreeInode(handle InodeHandle) error {
	inode, err := vol.lookupInode(handle)
	if err != nil {
		return err
	}
	if inode.RefCount != 0 {
		return errors.NewWithMessage(
			errors.EBUSY,
			fmt.Sprintf("inode %d (%q) still has %d references", handle, inode.Name, inode.RefCount))
	}
	vol.inodes[handle] = nil
	if vol.root == handle {
		vol.root = NoParent
	}
	return nil
}

// Root returns the root directory's inode, or nil if the volume isn't mounted.
func (vol *Volume) Root() *Inode {
	if vol.root == NoParent {
		return nil
	}
	inode, err := vol.lookupInode(vol.root)
	if err != nil {
		return nil
	}
	return inode
}

// releaseRoot drops the volume's own reference to the root and frees it. The
// volume lets go of the root even if someone else still holds it.
func (vol *Volume) releaseRoot() error {
	if vol.root == NoParent {
		return nil
	}
	handle := vol.root
	vol.root = NoParent
	if err := vol.PutInode(handle); err != nil {
		return err
	}
	return vol.FreeInode(handle)
}
