// Package exfat describes the on-disk structures of the exFAT file system that
// the rest of the module addresses by offset: the boot sector, the FAT entry
// sentinels, and the few directory entry types needed to locate the allocation
// bitmap and up-case table in the root directory.
//
// All multi-byte fields on disk are little-endian.
package exfat
