// Package heap implements the gcx generational, region-based tracing
// garbage collector: a non-aging young-generation evacuator cooperating
// with a semi-space old generation, coordinated through a card-table
// remembered set with a per-card first-object table.
package heap

import (
	"sync/atomic"
)

// RegionID identifies a fixed-size heap region by its index in the global
// region table. The address of a region is heap_base + id*RegionSizeBytes.
type RegionID uint32

// RegionSize is a size expressed in bytes.
type RegionSize uintptr

const (
	// RegionSizeBytes is the compile-time, power-of-two region size.
	RegionSizeBytes RegionSize = 1 << 20 // 1 MiB
	// WordSize is the machine word size this collector is built for.
	WordSize RegionSize = 8
	// RegionSizeWords is the region size expressed in words.
	RegionSizeWords = RegionSizeBytes / WordSize
	// MinObjectSize is the smallest cell (live, free, or dark matter) the
	// heap ever formats.
	MinObjectSize RegionSize = 16
)

// RegionFlag is a bitset describing a region's current role.
type RegionFlag uint32

const (
	// FlagIterable marks a region a heap walk may step through cell by cell.
	FlagIterable RegionFlag = 1 << iota
	// FlagAllocating marks a region currently handing out chunks.
	FlagAllocating
	// FlagHasFreeChunk marks a region whose free-chunk list is non-empty.
	FlagHasFreeChunk
	// FlagLarge marks a region (or run of regions) backing a single large
	// object that spans more than one region.
	FlagLarge
	// FlagHead marks the first region of a large-object run. Implies FlagLarge.
	FlagHead
	// FlagTail marks a non-first region of a large-object run. Implies FlagLarge.
	FlagTail
)

// Owner identifies which heap account a region currently belongs to.
type Owner uint8

const (
	// OwnerNone is the zero value: the region belongs to nobody.
	OwnerNone Owner = iota
	OwnerYoung
	OwnerOldFrom
	OwnerOldTo
	OwnerImmortal
	OwnerBoot
)

// Descriptor is the per-region book-keeping record. Its zero value is
// unowned but not iterable and has no free words recorded; NewTable and
// Reset set up the free, iterable state.
type Descriptor struct {
	flags         uint32 // RegionFlag bitset, accessed atomically
	firstFreeWord uint32 // word index of the first free chunk, 0 if empty
	freeChunks    uint32
	freeWords     uint32
	liveWords     uint32
	darkWords     uint32
	owner         uint32 // Owner, accessed atomically
}

// Flags returns the region's current flag bitset.
func (d *Descriptor) Flags() RegionFlag {
	return RegionFlag(atomic.LoadUint32(&d.flags))
}

// HasFlag reports whether every bit in want is set.
func (d *Descriptor) HasFlag(want RegionFlag) bool {
	return RegionFlag(atomic.LoadUint32(&d.flags))&want == want
}

// SetFlags ORs in the given bits.
func (d *Descriptor) SetFlags(f RegionFlag) {
	for {
		old := atomic.LoadUint32(&d.flags)
		if atomic.CompareAndSwapUint32(&d.flags, old, old|uint32(f)) {
			return
		}
	}
}

// ClearFlags ANDs out the given bits.
func (d *Descriptor) ClearFlags(f RegionFlag) {
	for {
		old := atomic.LoadUint32(&d.flags)
		if atomic.CompareAndSwapUint32(&d.flags, old, old&^uint32(f)) {
			return
		}
	}
}

// Owner returns the region's current owning heap account.
func (d *Descriptor) Owner() Owner {
	return Owner(atomic.LoadUint32(&d.owner))
}

// SetOwner assigns the region to a heap account.
func (d *Descriptor) SetOwner(o Owner) {
	atomic.StoreUint32(&d.owner, uint32(o))
}

// FirstFreeWord returns the word offset (relative to region start) of the
// first free chunk, or 0 if the region has none.
func (d *Descriptor) FirstFreeWord() uint32 { return d.firstFreeWord }

// FreeChunks, FreeWords, LiveWords and DarkWords report the region's
// accounting fields; freeWords+liveWords+darkWords must equal
// RegionSizeWords for every non-large region.
func (d *Descriptor) FreeChunks() uint32 { return d.freeChunks }
func (d *Descriptor) FreeWords() uint32  { return d.freeWords }
func (d *Descriptor) LiveWords() uint32  { return d.liveWords }
func (d *Descriptor) DarkWords() uint32  { return d.darkWords }

// Reset returns the descriptor to the "free, iterable, unowned" state
// (every word of the region counted as free),
// as happens when a young-gen region turns over after evacuation.
func (d *Descriptor) Reset() {
	atomic.StoreUint32(&d.flags, uint32(FlagIterable))
	d.firstFreeWord = 0
	d.freeChunks = 0
	d.freeWords = uint32(RegionSizeWords)
	d.liveWords = 0
	d.darkWords = 0
	atomic.StoreUint32(&d.owner, uint32(OwnerNone))
}

// checkAccounting verifies that a region's free, live, and dark-matter
// word counts exactly partition it: freeWords + liveWords + darkWords
// must equal RegionSizeWords.
func (d *Descriptor) checkAccounting() bool {
	if d.HasFlag(FlagLarge) {
		return true // large-object runs do not carry per-region word accounting
	}

	return uint64(d.freeWords)+uint64(d.liveWords)+uint64(d.darkWords) == uint64(RegionSizeWords)
}

// Table is the fixed-size, process-wide array of region descriptors plus
// the base address the regions are carved from. It is a process-wide
// singleton: address-of-region is computed arithmetically, never stored.
type Table struct {
	base    uintptr
	regions []Descriptor
}

// NewTable allocates a region table covering n regions starting at base.
// Every descriptor starts free, unowned, and iterable — the same state
// Reset puts a region back into once it turns over.
func NewTable(base uintptr, n int) *Table {
	t := &Table{base: base, regions: make([]Descriptor, n)}

	for i := range t.regions {
		t.regions[i].flags = uint32(FlagIterable)
		t.regions[i].freeWords = uint32(RegionSizeWords)
	}

	return t
}

// Base returns the address of region 0.
func (t *Table) Base() uintptr { return t.base }

// Len returns the number of regions in the table.
func (t *Table) Len() int { return len(t.regions) }

// RegionAddress returns the base address of region id.
func (t *Table) RegionAddress(id RegionID) uintptr {
	return t.base + uintptr(id)*uintptr(RegionSizeBytes)
}

// RegionEnd returns the exclusive end address of region id.
func (t *Table) RegionEnd(id RegionID) uintptr {
	return t.RegionAddress(id) + uintptr(RegionSizeBytes)
}

// RegionOf returns the id of the region containing addr and true, or
// (0, false) if addr lies outside the table's covered range.
func (t *Table) RegionOf(addr uintptr) (RegionID, bool) {
	if addr < t.base {
		return 0, false
	}

	idx := (addr - t.base) / uintptr(RegionSizeBytes)
	if idx >= uintptr(len(t.regions)) {
		return 0, false
	}

	return RegionID(idx), true
}

// Descriptor returns a pointer to the descriptor for id. The caller must
// not retain it past the region's next Reset.
func (t *Table) Descriptor(id RegionID) *Descriptor {
	return &t.regions[id]
}

// FreeRegions returns the ids of every region currently unowned and
// iterable, in ascending order. Used by the refill manager to find a
// region to carve a fresh run of free chunks from.
func (t *Table) FreeRegions() []RegionID {
	var out []RegionID

	for i := range t.regions {
		d := &t.regions[i]
		if d.Owner() == OwnerNone && d.HasFlag(FlagIterable) {
			out = append(out, RegionID(i))
		}
	}

	return out
}
