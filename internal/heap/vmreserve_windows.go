//go:build windows
// +build windows

package heap

import (
	"golang.org/x/sys/windows"
)

// reserveAddressSpace reserves size+alignment bytes with VirtualAlloc's
// MEM_RESERVE (no physical backing yet), then hands back the aligned
// sub-range for actual use, mirroring the unix mmap(PROT_NONE) path.
func reserveAddressSpace(size RegionSize, alignment RegionSize) (rawBase, base uintptr, err error) {
	rawAddr, err := windows.VirtualAlloc(0, uintptr(size)+uintptr(alignment), windows.MEM_RESERVE, windows.PAGE_NOACCESS)
	if err != nil {
		return 0, 0, err
	}

	base = (rawAddr + uintptr(alignment) - 1) &^ (uintptr(alignment) - 1)

	return rawAddr, base, nil
}

func commitRange(addr uintptr, size RegionSize) error {
	_, err := windows.VirtualAlloc(addr, uintptr(size), windows.MEM_COMMIT, windows.PAGE_READWRITE)

	return err
}

func decommitRange(addr uintptr, size RegionSize) error {
	return windows.VirtualFree(addr, uintptr(size), windows.MEM_DECOMMIT)
}

func releaseAddressSpace(addr uintptr, size RegionSize) error {
	return windows.VirtualFree(addr, 0, windows.MEM_RELEASE)
}
