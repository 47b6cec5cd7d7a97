package heap

import "unsafe"

// Hub is the first word of every cell in the heap. Its value classifies
// the cell: a live object's real hub, the free-chunk sentinel, or one of
// the dark-matter sentinels. A heap walker that reads a cell origin can
// always tell which of the three it is looking at from this one word.
type Hub uintptr

const (
	// FreeChunkHubSentinel marks a cell as a free-chunk header; a walker
	// skips exactly Size(cell) bytes.
	FreeChunkHubSentinel Hub = 0x1

	// DarkMatterHub marks a long-filler dark-matter object (gap strictly
	// larger than MinObjectSize).
	DarkMatterHub Hub = 0x3

	// SmallestDarkMatterHub marks a dark-matter gap exactly MinObjectSize
	// long: it carries no length-array payload to read, since its size is
	// implied by the hub alone.
	SmallestDarkMatterHub Hub = 0x5

	// forwardedBit, when set in a from-space cell's hub slot, means the
	// slot no longer holds a hub: it holds a forwarding pointer (with this
	// bit masked off) to the cell's to-space copy.
	forwardedBit Hub = 0x1
)

// CellKind distinguishes the reference layouts a live cell's hub encodes.
// This is the "polymorphic cells" design: a single tagged enum standing in
// for what would otherwise be inheritance among object-layout kinds.
type CellKind int

const (
	// CellTuple is a fixed-shape object: a run of reference/scalar fields
	// whose offsets are fully described by the hub's layout metadata.
	CellTuple CellKind = iota
	// CellHybrid is a fixed-shape prefix followed by a variable-length
	// trailing array (e.g. a boxed array-of-structs header).
	CellHybrid
	// CellReferenceArray is a homogeneous array of references.
	CellReferenceArray
)

// Layout describes how to find reference slots within a live cell of a
// given hub. In a full VM this would be looked up from class metadata;
// here it is the minimum contract the evacuator needs.
type Layout struct {
	Kind CellKind
	// SizeWords is the cell's total size in words for CellTuple, or the
	// fixed prefix size in words for CellHybrid/CellReferenceArray.
	SizeWords int
	// RefOffsetsWords lists word offsets (from the cell origin) of
	// reference-typed slots in the fixed portion.
	RefOffsetsWords []int
	// ElementRefOffsetWords, for CellHybrid/CellReferenceArray, is the word
	// offset of the first trailing element; ElementCount elements follow,
	// each ElementStrideWords apart, and are references iff
	// TrailingIsReferences is true.
	ElementRefOffsetWords int
	ElementCount          int
	ElementStrideWords    int
	TrailingIsReferences  bool
	// HasReferent marks a special-reference cell (soft/weak/phantom) whose
	// designated referent slot participates in reference discovery instead
	// of ordinary strong scanning.
	HasReferent      bool
	ReferentOffset   int
	TotalSizeWords    int
}

// LayoutResolver maps a hub to the layout of the cell it heads. Production
// code backs this with class metadata; tests back it with a fixed table.
type LayoutResolver interface {
	Resolve(hub Hub) (Layout, bool)
}

// TotalWords returns the total size, in words, of the cell whose layout is l.
func (l Layout) TotalWords() int {
	if l.Kind == CellTuple {
		return l.SizeWords
	}

	return l.SizeWords + l.ElementCount*l.ElementStrideWords
}

// ReadHub loads the hub word at a cell's origin address.
func ReadHub(origin uintptr) Hub {
	return *(*Hub)(unsafe.Pointer(origin))
}

// IsForwarded reports whether the hub word at origin is a forwarding
// pointer rather than a real hub.
func IsForwarded(hubWord Hub) bool {
	return hubWord&forwardedBit == forwardedBit && hubWord != FreeChunkHubSentinel &&
		hubWord != DarkMatterHub && hubWord != SmallestDarkMatterHub
}

// Forwarded follows a from-space cell's forwarding pointer to its to-space
// origin. Repeated calls on the same cell always return the same result
// (forwarding idempotence): once installed, the forwarding word at
// origin never changes again within one GC.
func Forwarded(origin uintptr) (uintptr, bool) {
	h := ReadHub(origin)
	if !IsForwarded(h) {
		return 0, false
	}

	return uintptr(h &^ forwardedBit), true
}

// InstallForwarding marks a from-space cell as forwarded to toOrigin.
// Since exactly one evacuator runs at a time, this is race-free: only
// one writer ever touches a given cell's hub slot during a GC.
func InstallForwarding(origin, toOrigin uintptr) {
	*(*Hub)(unsafe.Pointer(origin)) = Hub(toOrigin) | forwardedBit
}

// IsFreeChunk reports whether hubWord marks a free-chunk header.
func IsFreeChunk(hubWord Hub) bool { return hubWord == FreeChunkHubSentinel }

// IsDarkMatter reports whether hubWord marks either dark-matter sentinel.
func IsDarkMatter(hubWord Hub) bool {
	return hubWord == DarkMatterHub || hubWord == SmallestDarkMatterHub
}
