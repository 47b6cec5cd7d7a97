package heap

import "unsafe"

// darkMatterHeader is the in-place layout of an unreclaimable gap that has
// been formatted to look like a self-describing dead object, so a heap
// walk can step over it without consulting any external table.
type darkMatterHeader struct {
	hub  Hub
	size uintptr // total bytes this filler spans, including this header
}

// FormatDarkMatter writes a filler object spanning [addr, addr+size) so a
// walker sees a classifiable cell instead of dereferencing garbage. size
// must be at least MinObjectSize: an unreclaimable gap below that size
// has nowhere to carry even a classifiable header. A gap exactly
// MinObjectSize uses the distinguished "smallest dark matter" hub, which
// carries no length payload since the size is implied; anything larger
// uses the long-filler hub with an explicit size field.
func FormatDarkMatter(addr uintptr, size RegionSize) {
	if size < MinObjectSize {
		panic("heap: dark matter smaller than MinObjectSize")
	}

	hdr := (*darkMatterHeader)(unsafe.Pointer(addr))
	if size == MinObjectSize {
		hdr.hub = SmallestDarkMatterHub
		return
	}

	hdr.hub = DarkMatterHub
	hdr.size = uintptr(size)
}

// DarkMatterSize returns the size, in bytes, of the dark-matter cell
// starting at addr. hubWord is the hub already read at addr (callers
// scanning a heap walk have usually already read it to classify the
// cell, so this avoids a second load).
func DarkMatterSize(addr uintptr, hubWord Hub) RegionSize {
	if hubWord == SmallestDarkMatterHub {
		return MinObjectSize
	}

	return RegionSize((*darkMatterHeader)(unsafe.Pointer(addr)).size)
}

// CellSize returns the size, in bytes, of the cell at origin — live,
// free-chunk, or dark-matter — given a LayoutResolver for live hubs. This
// is the single dispatch point a walker needs: live, free, or dark
// matter, this always returns enough to advance past the cell.
func CellSize(origin uintptr, resolver LayoutResolver) RegionSize {
	h := ReadHub(origin)

	switch {
	case IsFreeChunk(h):
		return ChunkSize(origin)
	case IsDarkMatter(h):
		return DarkMatterSize(origin, h)
	default:
		if IsForwarded(h) {
			panic("heap: CellSize on forwarded cell, caller must scan from-space layout before forwarding")
		}

		layout, ok := resolver.Resolve(h)
		if !ok {
			panic("heap: unrecognized hub during heap walk")
		}

		return RegionSize(layout.TotalWords()) * WordSize
	}
}
