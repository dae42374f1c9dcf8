//go:build windows

package allocator

import (
	"golang.org/x/sys/windows"
)

var pageSize = func() uint64 {
	var info windows.SystemInfo
	windows.GetSystemInfo(&info)

	return uint64(info.PageSize)
}()

func vmPageSize() uint64 {
	return pageSize
}

func vmReserveImpl(size, hint uint64) (uint64, error) {
	addr, err := windows.VirtualAlloc(
		uintptr(hint),
		uintptr(size),
		windows.MEM_RESERVE,
		windows.PAGE_NOACCESS,
	)
	if err != nil {
		return 0, err
	}

	return uint64(addr), nil
}

func vmCommitImpl(addr, size uint64) error {
	_, err := windows.VirtualAlloc(
		uintptr(addr),
		uintptr(size),
		windows.MEM_COMMIT,
		windows.PAGE_READWRITE,
	)

	return err
}

func vmUncommitImpl(addr, size uint64) error {
	return windows.VirtualFree(uintptr(addr), uintptr(size), windows.MEM_DECOMMIT)
}

func vmReleaseImpl(addr, size uint64) error {
	return windows.VirtualFree(uintptr(addr), 0, windows.MEM_RELEASE)
}
