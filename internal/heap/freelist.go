package heap

import "unsafe"

// chunkHeader is the in-place layout of a free chunk: a hub-word sentinel,
// then size and a next-pointer, all stored inside the free bytes
// themselves. A heap walker that sees FreeChunkHubSentinel at a cell
// origin skips the number of bytes in the header's size field; it never
// needs to know this struct layout.
type chunkHeader struct {
	hub  Hub
	size uintptr // bytes, including this header
	next uintptr // address of next chunkHeader, or 0
}

const chunkHeaderWords = int(unsafe.Sizeof(chunkHeader{})) / int(WordSize)

// FreeListProvider locates the FreeList that owns the region containing
// addr. The region allocator implements this so collaborators outside
// internal/allocator (the evacuator retiring a LAB's unused tail) can
// link a chunk back into the right region's free list without reaching
// into the allocator's internals.
type FreeListProvider interface {
	FreeListFor(addr uintptr) (*FreeList, bool)
}

// FreeList is the intrusive singly linked list of free chunks threaded
// through a single region's bytes. The region descriptor's FirstFreeWord
// is the list head.
type FreeList struct {
	regionBase uintptr
	head       uintptr // address, 0 if empty
	count      uint32
}

// NewFreeList wraps the free-chunk list rooted at headWord (a word index
// relative to regionBase, 0 meaning empty) for region starting at
// regionBase.
func NewFreeList(regionBase uintptr, headWord uint32) *FreeList {
	fl := &FreeList{regionBase: regionBase}
	if headWord != 0 {
		fl.head = regionBase + uintptr(headWord)*uintptr(WordSize)
	}

	return fl
}

// Empty reports whether the list has no chunks.
func (fl *FreeList) Empty() bool { return fl.head == 0 }

// Format writes a chunk header spanning [addr, addr+size) and links it in
// as the new list head. size must be at least MinObjectSize; smaller gaps
// belong in dark matter instead.
func (fl *FreeList) Format(addr uintptr, size RegionSize) {
	if size < MinObjectSize {
		panic("heap: free chunk smaller than MinObjectSize")
	}

	hdr := (*chunkHeader)(unsafe.Pointer(addr))
	hdr.hub = FreeChunkHubSentinel
	hdr.size = uintptr(size)
	hdr.next = fl.head
	fl.head = addr
	fl.count++
}

// Pop removes and returns the head chunk's (address, size), or (0,0,false)
// if the list is empty.
func (fl *FreeList) Pop() (uintptr, RegionSize, bool) {
	if fl.head == 0 {
		return 0, 0, false
	}

	hdr := (*chunkHeader)(unsafe.Pointer(fl.head))
	addr, size := fl.head, RegionSize(hdr.size)
	fl.head = hdr.next
	fl.count--

	return addr, size, true
}

// HeadWord returns the word offset of the list head relative to
// regionBase, for storing back into a Descriptor.
func (fl *FreeList) HeadWord() uint32 {
	if fl.head == 0 {
		return 0
	}

	return uint32((fl.head - fl.regionBase) / uintptr(WordSize))
}

// Count returns the number of chunks currently linked.
func (fl *FreeList) Count() uint32 { return fl.count }

// Split carves [addr, addr+want) off the front of a chunk spanning
// [addr, addr+total). It writes nothing and links nothing: it returns the
// remainder's (start, size), or (0, 0) if nothing remains, and leaves it
// to the caller to format the remainder as a chunk or dark matter.
func Split(addr uintptr, total, want RegionSize) (remStart uintptr, remSize RegionSize) {
	if want > total {
		panic("heap: split size exceeds chunk size")
	}

	rem := total - want
	if rem == 0 {
		return 0, 0
	}

	return addr + uintptr(want), rem
}

// ChunkSize reads the size recorded in a free chunk's header.
func ChunkSize(addr uintptr) RegionSize {
	return RegionSize((*chunkHeader)(unsafe.Pointer(addr)).size)
}

// Coalesce merges an adjacent free chunk at addr2 (immediately following
// the chunk at addr1 of size1) into one chunk, returning the combined
// size. Callers are responsible for re-linking the list; this only
// rewrites the header.
func Coalesce(addr1 uintptr, size1 RegionSize, size2 RegionSize) RegionSize {
	combined := size1 + size2
	hdr := (*chunkHeader)(unsafe.Pointer(addr1))
	hdr.size = uintptr(combined)

	return combined
}
