//go:build linux || darwin || freebsd

package allocator

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

var pageSize = uint64(unix.Getpagesize())

func vmPageSize() uint64 {
	return pageSize
}

// vmReserveImpl reserves size bytes of address space with no backing pages,
// at exactly hint if non-zero (an error if that range is already in use).
// Reservation uses PROT_NONE so the pages fault until vmCommitImpl makes
// them accessible.
func vmReserveImpl(size, hint uint64) (uint64, error) {
	flags := unix.MAP_ANON | unix.MAP_PRIVATE

	var hintPtr unsafe.Pointer
	if hint != 0 {
		hintPtr = unsafe.Pointer(uintptr(hint))
	}

	b, err := mmapAt(hintPtr, size, unix.PROT_NONE, flags)
	if err != nil {
		return 0, errVMOutOfMemory
	}

	addr := uint64(uintptr(unsafe.Pointer(&b[0])))

	// Without MAP_FIXED the kernel places the mapping elsewhere when the
	// hinted range is occupied; report that as a collision.
	if hint != 0 && addr != hint {
		_ = unix.Munmap(b)

		return 0, errVMOutOfMemory
	}

	return addr, nil
}

func vmCommitImpl(addr, size uint64) error {
	p := unsafe.Pointer(uintptr(addr))

	b := unsafe.Slice((*byte)(p), size)

	return unix.Mprotect(b, unix.PROT_READ|unix.PROT_WRITE)
}

func vmUncommitImpl(addr, size uint64) error {
	p := unsafe.Pointer(uintptr(addr))
	b := unsafe.Slice((*byte)(p), size)

	if err := unix.Mprotect(b, unix.PROT_NONE); err != nil {
		return err
	}

	// MADV_DONTNEED lets the OS reclaim the physical pages immediately
	// instead of waiting for memory pressure.
	return unix.Madvise(b, unix.MADV_DONTNEED)
}

func vmReleaseImpl(addr, size uint64) error {
	p := unsafe.Pointer(uintptr(addr))
	b := unsafe.Slice((*byte)(p), size)

	return unix.Munmap(b)
}

// mmapAt wraps unix.Mmap accepting an explicit hint address (unix.Mmap's
// public signature takes an fd-relative offset but no address hint, so we
// go through the raw syscall path it itself wraps).
func mmapAt(addrHint unsafe.Pointer, length uint64, prot, flags int) ([]byte, error) {
	addr, _, errno := unix.Syscall6(
		unix.SYS_MMAP,
		uintptr(addrHint),
		uintptr(length),
		uintptr(prot),
		uintptr(flags),
		^uintptr(0), // fd = -1
		0,
	)
	if errno != 0 {
		return nil, errno
	}

	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), length), nil
}
