//go:build linux || freebsd || openbsd || netbsd || solaris

// Package mmapio wraps the OS primitives needed to memory-map a backing
// file: mmap/munmap, fallocate for growth, and pwrite. The arena slabs,
// the vector data file and each InfoFile control record are mapped
// through this package; the index dumps are plain files written with
// bufio, and the small indexes' B-trees live only in memory.
package mmapio

import "syscall"

const (
	ProtRead  = syscall.PROT_READ
	ProtWrite = syscall.PROT_WRITE
	MapShared = syscall.MAP_SHARED
)

func Mmap(fd uintptr, offset int64, length int, prot, flags int) ([]byte, error) {
	return syscall.Mmap(int(fd), offset, length, prot, flags)
}

func Munmap(data []byte) error {
	return syscall.Munmap(data)
}

func Fallocate(fd uintptr, offset int64, length int64) error {
	return syscall.Fallocate(int(fd), 0, offset, length)
}

func Pwrite(fd uintptr, data []byte, offset int64) (int, error) {
	return syscall.Pwrite(int(fd), data, offset)
}
