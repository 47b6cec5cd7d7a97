package heap

// RememberedSet is the card-table based inter-generational remembered
// set: a write barrier dirties the card under a store's target address,
// and the evacuator later asks the set to walk every dirty card,
// cleaning each one first so a barrier racing the scan re-dirties it
// rather than losing the record.
type RememberedSet struct {
	cards *CardTable
	fot   *FOT
}

// NewRememberedSet builds a remembered set covering [coveredStart,
// coveredStart+size), backed by its own card table and first-object
// table.
func NewRememberedSet(coveredStart uintptr, size uintptr) *RememberedSet {
	return &RememberedSet{
		cards: NewCardTable(coveredStart, size),
		fot:   NewFOT(coveredStart, size),
	}
}

// RecordWrite is the write barrier's slow-path call: dirty the card
// covering the address a pointer field was just stored into. Production
// write barriers inline CardTable.Dirty directly against the biased base
// pointer after confirming the store target is old-gen; this wrapper is
// for callers (roots, the evacuator's own slot updates, interpreter
// fallback) that may pass an address outside the covered range — a root
// or stack slot never needs remembered-set tracking, since roots are
// rescanned on every collection regardless, so such calls are a no-op
// rather than an out-of-range unsafe store.
func (rs *RememberedSet) RecordWrite(fieldAddr uintptr) {
	if !rs.cards.IsCovered(fieldAddr) {
		return
	}

	rs.cards.Dirty(fieldAddr)
}

// NotifyFormat records that a new cell has been formatted at addr, so
// later first-object queries against its cards resolve correctly. Callers
// invoke this whenever a cell (live, free chunk, or dark matter) is
// written into the heap, not just on promotion.
func (rs *RememberedSet) NotifyFormat(addr uintptr, size RegionSize) {
	rs.fot.Set(addr, size)
}

// NotifyCoalescing updates the first-object table after two adjacent free
// chunks at addr1 (size1) and addr2 (size2) are merged into one chunk
// rooted at addr1, so cards over addr2's former span still resolve back
// to addr1.
func (rs *RememberedSet) NotifyCoalescing(addr1 uintptr, size1, size2 RegionSize) {
	rs.fot.Set(addr1, size1+size2)
}

// NotifySplit updates the first-object table after a chunk at addr
// (total bytes) is divided into a used head of size head and a free
// remainder, so cards over the remainder's span resolve to its new
// origin rather than addr.
func (rs *RememberedSet) NotifySplit(addr uintptr, total, head RegionSize) {
	rs.fot.Split(addr, total, head)
}

// UpdateForFreeSpace re-establishes first-object table entries for a span
// that swept from dead to free, e.g. after the sweeper reports a dead
// interval and the allocator formats it as a free chunk.
func (rs *RememberedSet) UpdateForFreeSpace(addr uintptr, size RegionSize) {
	rs.fot.Set(addr, size)
}

// CellStart returns the address of the cell overlapping a, by consulting
// the first-object table.
func (rs *RememberedSet) CellStart(a uintptr) uintptr {
	return rs.fot.CellStart(a)
}

// VisitCards walks every maximal run of contiguous dirty cards in
// [lo, hi), cleaning the whole run before invoking visit once for it,
// with the address of the cell that overlaps the run's start (found via
// the first-object table) and the run's own end address, so the caller
// can walk reference slots cell by cell across that span without
// re-deriving cell boundaries itself and without rescanning a cell once
// per card it happens to straddle.
func (rs *RememberedSet) VisitCards(lo, hi uintptr, visit func(cellStart, runEnd uintptr)) {
	rs.cards.CleanAndVisitCards(lo, hi, func(runStart, runEnd uintptr) {
		visit(rs.fot.CellStart(runStart), runEnd)
	})
}

// CoveredRange returns the [start, end) address range this remembered
// set tracks.
func (rs *RememberedSet) CoveredRange() (start, end uintptr) { return rs.cards.CoveredRange() }

// Cards exposes the underlying card table, for write-barrier code
// generation that needs the biased base pointer directly.
func (rs *RememberedSet) Cards() *CardTable { return rs.cards }

// FOT exposes the underlying first-object table.
func (rs *RememberedSet) FOT() *FOT { return rs.fot }
