package heap

import (
	"unsafe"

	"github.com/orizon-lang/gcx/internal/errors"
)

// NoIndex is returned by First/FirstNot when no matching byte exists in
// the searched range.
const NoIndex = -1

// ByteMap is a generic map from an address range [start, end) to one byte
// per 2^Log2Unit-aligned unit, accessed through a biased base pointer so
// the hot-path write barrier collapses to a single indexed store. This is
// the structure both the card table and the first-object table
// specialize.
type ByteMap struct {
	storage      []byte
	biasedBase   uintptr // storage base minus (coveredStart >> Log2Unit)
	coveredStart uintptr
	coveredSize  uintptr
	log2Unit     uint
}

// NewByteMap builds a byte map covering [coveredStart, coveredStart+size).
// Both must be aligned to 1<<log2Unit. If storage is nil, a backing slice
// sized size>>log2Unit is allocated.
func NewByteMap(coveredStart uintptr, size uintptr, log2Unit uint, storage []byte) *ByteMap {
	unit := uintptr(1) << log2Unit
	if coveredStart%unit != 0 || size%unit != 0 {
		panic("heap: byte map range not aligned to unit size")
	}

	n := size >> log2Unit
	if storage == nil {
		storage = make([]byte, n)
	} else if uintptr(len(storage)) != n {
		panic("heap: byte map storage size mismatch")
	}

	bm := &ByteMap{
		storage:      storage,
		coveredStart: coveredStart,
		coveredSize:  size,
		log2Unit:     log2Unit,
	}
	bm.biasedBase = uintptr(unsafe.Pointer(&storage[0])) - (coveredStart >> log2Unit)

	return bm
}

// IsCovered reports whether address a lies within the covered range.
func (bm *ByteMap) IsCovered(a uintptr) bool {
	return a >= bm.coveredStart && a < bm.coveredStart+bm.coveredSize
}

// EntryIndex returns the entry index for address a.
func (bm *ByteMap) EntryIndex(a uintptr) int {
	return int((a - bm.coveredStart) >> bm.log2Unit)
}

// RangeStart returns the address that entry i's unit begins at.
func (bm *ByteMap) RangeStart(i int) uintptr {
	return bm.coveredStart + (uintptr(i) << bm.log2Unit)
}

// Len returns the number of entries in the map.
func (bm *ByteMap) Len() int { return len(bm.storage) }

// CoveredRange returns the [start, end) address range this map covers.
func (bm *ByteMap) CoveredRange() (start, end uintptr) {
	return bm.coveredStart, bm.coveredStart + bm.coveredSize
}

// Get returns the byte stored at entry i.
func (bm *ByteMap) Get(i int) byte { return bm.storage[i] }

// Set stores v at entry i.
func (bm *ByteMap) Set(i int, v byte) { bm.storage[i] = v }

// UnsafeGet reads the entry covering address a through the biased base
// pointer, without a bounds check. Debug builds assert a is covered;
// using this on an uncovered address is undefined.
func (bm *ByteMap) UnsafeGet(a uintptr) byte {
	assertCovered(bm, a)

	return *(*byte)(unsafe.Pointer(bm.biasedBase + (a >> bm.log2Unit)))
}

// UnsafeSet writes v to the entry covering address a through the biased
// base pointer. This is the shape a write barrier compiles to: a shift
// and an indexed byte store, no compare-and-branch.
func (bm *ByteMap) UnsafeSet(a uintptr, v byte) {
	assertCovered(bm, a)

	*(*byte)(unsafe.Pointer(bm.biasedBase + (a >> bm.log2Unit))) = v
}

// BiasedBase returns the biased base pointer used by the unsafe fast
// path, for embedding into generated write-barrier code.
func (bm *ByteMap) BiasedBase() uintptr { return bm.biasedBase }

// Fill sets every entry to v.
func (bm *ByteMap) Fill(v byte) {
	for i := range bm.storage {
		bm.storage[i] = v
	}
}

// FillRange sets to v the entries in [EntryIndex(lo), EntryIndex(hi)):
// from the unit containing lo up to, but not including, the unit
// containing hi.
func (bm *ByteMap) FillRange(lo, hi uintptr, v byte) {
	loI, hiI := bm.EntryIndex(lo), bm.EntryIndex(hi)
	for i := loI; i < hiI; i++ {
		bm.storage[i] = v
	}
}

// First returns the index of the first entry equal to v in the entry
// range [EntryIndex(lo), EntryIndex(hi)), or NoIndex if none matches.
// Linear in the searched range. A range with no entry equal to v yields
// NoIndex, never hi's index.
func (bm *ByteMap) First(lo, hi uintptr, v byte) int {
	loI, hiI := bm.EntryIndex(lo), bm.EntryIndex(hi)
	for i := loI; i < hiI; i++ {
		if bm.storage[i] == v {
			return i
		}
	}

	return NoIndex
}

// FirstNot returns the index of the first entry not equal to v in the
// entry range [EntryIndex(lo), EntryIndex(hi)), or NoIndex if every entry
// equals v.
func (bm *ByteMap) FirstNot(lo, hi uintptr, v byte) int {
	loI, hiI := bm.EntryIndex(lo), bm.EntryIndex(hi)
	for i := loI; i < hiI; i++ {
		if bm.storage[i] != v {
			return i
		}
	}

	return NoIndex
}

func assertCovered(bm *ByteMap, a uintptr) {
	if debugEnabled && !bm.IsCovered(a) {
		panic(errors.InvariantViolation("unsafe byte-map access outside covered range", map[string]interface{}{
			"address":      a,
			"coveredStart": bm.coveredStart,
			"coveredSize":  bm.coveredSize,
		}))
	}
}
