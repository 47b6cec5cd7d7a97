package heap

const (
	// Log2CardSize is k in the 2^k-byte card granularity the card table uses.
	Log2CardSize = 9
	// CardSize is the number of bytes one card covers (512 B).
	CardSize = 1 << Log2CardSize
	// CardClean is the byte value a card holds when nothing within it has
	// been written since the last clean.
	CardClean byte = 0xFF
	// CardDirty is the byte value a card holds once a write barrier has
	// recorded a store into it.
	CardDirty byte = 0x00
)

// CardTable is the log2-range byte map specialized to card granularity: it
// tracks which 512-byte cards have been written to since they were last
// cleaned, driving the remembered set's scan.
type CardTable struct {
	bm *ByteMap
}

// NewCardTable builds a card table covering [coveredStart,
// coveredStart+size), initialized entirely clean.
func NewCardTable(coveredStart uintptr, size uintptr) *CardTable {
	ct := &CardTable{bm: NewByteMap(coveredStart, size, Log2CardSize, nil)}
	ct.bm.Fill(CardClean)

	return ct
}

// CardOf returns the card index covering address a.
func (ct *CardTable) CardOf(a uintptr) int { return ct.bm.EntryIndex(a) }

// CardStart returns the address card i begins at.
func (ct *CardTable) CardStart(i int) uintptr { return ct.bm.RangeStart(i) }

// Len returns the number of cards in the table.
func (ct *CardTable) Len() int { return ct.bm.Len() }

// CoveredRange returns the [start, end) address range this card table
// tracks.
func (ct *CardTable) CoveredRange() (start, end uintptr) { return ct.bm.CoveredRange() }

// IsCovered reports whether a falls within this table's covered range.
func (ct *CardTable) IsCovered(a uintptr) bool { return ct.bm.IsCovered(a) }

// IsDirty reports whether the card covering a is dirty.
func (ct *CardTable) IsDirty(a uintptr) bool {
	return ct.bm.UnsafeGet(a) == CardDirty
}

// Dirty marks the card covering a dirty. This is the write barrier's
// steady-state operation: a shift and an indexed store through the
// table's biased base pointer.
func (ct *CardTable) Dirty(a uintptr) {
	ct.bm.UnsafeSet(a, CardDirty)
}

// DirtyCovered marks dirty every card overlapping [lo, hi). Used when a
// single write spans a card boundary, or when formatting a fresh object
// that crosses cards.
func (ct *CardTable) DirtyCovered(lo, hi uintptr) {
	if hi <= lo {
		return
	}

	ct.bm.FillRange(lo, (hi+CardSize-1)&^(CardSize-1), CardDirty)
}

// CleanAll marks every card clean.
func (ct *CardTable) CleanAll() { ct.bm.Fill(CardClean) }

// Clean marks the card covering a clean.
func (ct *CardTable) Clean(a uintptr) {
	ct.bm.UnsafeSet(a, CardClean)
}

// CleanRange marks clean the cards from the one containing lo up to, but
// not including, the one containing hi.
func (ct *CardTable) CleanRange(lo, hi uintptr) {
	ct.bm.FillRange(lo, hi, CardClean)
}

// First returns the index of the first dirty card in [lo, hi), or NoIndex
// if the range is entirely clean.
func (ct *CardTable) First(lo, hi uintptr) int {
	return ct.bm.First(lo, hi, CardDirty)
}

// CleanAndVisitCards implements the remembered set's scan contract: each
// maximal run of contiguous dirty cards in [lo, hi) is cleaned in full
// before visit is called once for the whole run, so a write barrier
// firing concurrently with (or just after) the scan dirties a card again
// rather than having its record lost. visit receives the run's covered
// address range; batching by run rather than by individual card means a
// cell spanning several contiguous dirty cards is reported to the caller
// exactly once instead of once per card.
func (ct *CardTable) CleanAndVisitCards(lo, hi uintptr, visit func(runStart, runEnd uintptr)) {
	i := ct.bm.EntryIndex(lo)
	end := ct.bm.EntryIndex(hi)

	for i < end {
		if ct.bm.Get(i) != CardDirty {
			i++
			continue
		}

		runStart := i
		for i < end && ct.bm.Get(i) == CardDirty {
			ct.bm.Set(i, CardClean)
			i++
		}

		visit(ct.bm.RangeStart(runStart), ct.bm.RangeStart(i))
	}
}
