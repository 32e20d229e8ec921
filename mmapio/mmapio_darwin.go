//go:build darwin

package mmapio

import (
	"syscall"

	"golang.org/x/sys/unix"
)

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
	// darwin has no fallocate; grow the mapping by asking the kernel to
	// reserve the pages directly, matching the file's eventual size.
	_, err := unix.Mmap(int(fd), 0, int(offset+length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	return err
}

func Pwrite(fd uintptr, data []byte, offset int64) (int, error) {
	return syscall.Pwrite(int(fd), data, offset)
}
