package heap

import "unsafe"

// readSlot loads the pointer-sized value stored at addr.
func readSlot(addr uintptr) uintptr {
	return *(*uintptr)(unsafe.Pointer(addr))
}

// writeSlot stores v at addr.
func writeSlot(addr uintptr, v uintptr) {
	*(*uintptr)(unsafe.Pointer(addr)) = v
}

// copyWords copies size bytes from src to dst, size words at a time. Both
// addresses are assumed word-aligned, which every cell origin is by
// construction.
func copyWords(dst, src uintptr, size RegionSize) {
	n := uintptr(size) / uintptr(WordSize)
	for i := uintptr(0); i < n; i++ {
		off := i * uintptr(WordSize)
		writeSlot(dst+off, readSlot(src+off))
	}
}
