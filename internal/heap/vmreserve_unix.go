//go:build linux || darwin || freebsd || netbsd || openbsd
// +build linux darwin freebsd netbsd openbsd

package heap

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

func addrSlice(addr uintptr, size RegionSize) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(size))
}

// reserveAddressSpace reserves size bytes via an anonymous, inaccessible
// mmap (PROT_NONE), then hands back the aligned sub-range within it for
// actual use. mmap's own page-size alignment is not enough when
// alignment is a whole region (>= 1 MiB), so this over-reserves by one
// alignment unit and returns an address into the middle of the mapping.
func reserveAddressSpace(size RegionSize, alignment RegionSize) (rawBase, base uintptr, err error) {
	raw, err := unix.Mmap(-1, 0, int(size)+int(alignment), unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return 0, 0, err
	}

	rawBase = uintptr(unsafe.Pointer(&raw[0]))
	base = (rawBase + uintptr(alignment) - 1) &^ (uintptr(alignment) - 1)

	return rawBase, base, nil
}

func commitRange(addr uintptr, size RegionSize) error {
	return unix.Mprotect(addrSlice(addr, size), unix.PROT_READ|unix.PROT_WRITE)
}

func decommitRange(addr uintptr, size RegionSize) error {
	if err := unix.Madvise(addrSlice(addr, size), unix.MADV_DONTNEED); err != nil {
		return err
	}

	return unix.Mprotect(addrSlice(addr, size), unix.PROT_NONE)
}

func releaseAddressSpace(addr uintptr, size RegionSize) error {
	return unix.Munmap(addrSlice(addr, size))
}
