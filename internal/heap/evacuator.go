package heap

import "time"

// RootScanner is the external collaborator that enumerates live roots:
// thread stacks, monitors, and native-handle tables. The evacuator never
// walks these structures itself.
type RootScanner interface {
	// ScanRoots calls visit once for every root reference slot's address.
	ScanRoots(visit func(slotAddr uintptr))
}

// SpecialReferenceManager is the external collaborator that tracks
// special (soft/weak/phantom) references separately from strong roots, so
// their processing can be deferred to its own fixpoint step after
// ordinary reachables have settled.
type SpecialReferenceManager interface {
	// ScanSpecialReferents calls visit once for every special reference's
	// referent slot address that is still reachable after the main fixpoint.
	ScanSpecialReferents(visit func(slotAddr uintptr))
}

// BootHeapScanner enumerates the boot heap's outgoing references. Boot
// code is never scanned: its references are immutable and point only
// into the boot heap, so there is nothing for the evacuator to update.
type BootHeapScanner interface {
	ScanBootHeap(visit func(slotAddr uintptr))
}

// CodeScanner enumerates mutable code regions' outgoing references.
type CodeScanner interface {
	ScanMutableCode(visit func(slotAddr uintptr))
}

// FromSpaceHooks lets the from-space generation observe the evacuation
// boundary around each GC cycle.
type FromSpaceHooks interface {
	DoBeforeGC()
	DoAfterGC()
}

// EvacuationResult summarizes one evacuator run, in the shape the
// diagnostics log and the sizing policy both consume.
type EvacuationResult struct {
	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
	CellsEvacuated uint64
	BytesEvacuated uint64
	Refills        uint64
	Overflows      uint64
	SurvivorRanges int
	Success        bool
	Err            error
}

// Evacuator copies reachable cells from from-space to to-space through a
// private promotion LAB, maintaining the remembered set and first-object
// table as it goes. One Evacuator instance serves exactly one young GC;
// exactly one evacuator runs at a time, so none of its state needs
// synchronization.
type Evacuator struct {
	lab       *LAB
	resolver  LayoutResolver
	rs        *RememberedSet
	survQ     *SurvivorQueue
	freeLists FreeListProvider

	roots   RootScanner
	boot    BootHeapScanner
	code    CodeScanner
	special SpecialReferenceManager
	hooks   FromSpaceHooks

	minRefillThreshold RegionSize

	fromSpaceStart, fromSpaceEnd uintptr

	// pendingRangeStart tracks the start of LAB activity not yet flushed
	// into a survivor range: everything written since the current chunk's
	// allocatedRangeStart, or since the last flush.
	pendingRangeStart uintptr
	survivorRanges     int

	// pendingOverflowStart/End track a run of contiguous direct-overflow
	// allocations not yet flushed into their own survivor range, mirroring
	// pendingRangeStart's role for the ordinary bump path.
	pendingOverflowStart uintptr
	pendingOverflowEnd   uintptr

	cellsEvacuated uint64
	bytesEvacuated uint64
	refills        uint64
	overflows      uint64
}

// EvacuatorConfig collects an Evacuator's collaborators and tuning
// parameters as a plain struct passed to NewEvacuator.
type EvacuatorConfig struct {
	LAB                *LAB
	Resolver           LayoutResolver
	RememberedSet      *RememberedSet
	SurvivorQueue      *SurvivorQueue
	FreeLists          FreeListProvider
	Roots              RootScanner
	BootHeap           BootHeapScanner
	Code               CodeScanner
	Special            SpecialReferenceManager
	Hooks              FromSpaceHooks
	MinRefillThreshold RegionSize
	FromSpaceStart     uintptr
	FromSpaceEnd       uintptr
}

// NewEvacuator builds an Evacuator from its collaborators.
func NewEvacuator(cfg EvacuatorConfig) *Evacuator {
	return &Evacuator{
		lab:                cfg.LAB,
		resolver:           cfg.Resolver,
		rs:                 cfg.RememberedSet,
		survQ:              cfg.SurvivorQueue,
		freeLists:          cfg.FreeLists,
		roots:              cfg.Roots,
		boot:               cfg.BootHeap,
		code:               cfg.Code,
		special:            cfg.Special,
		hooks:              cfg.Hooks,
		minRefillThreshold: cfg.MinRefillThreshold,
		fromSpaceStart:     cfg.FromSpaceStart,
		fromSpaceEnd:       cfg.FromSpaceEnd,
	}
}

func (e *Evacuator) inFromSpace(origin uintptr) bool {
	return origin >= e.fromSpaceStart && origin < e.fromSpaceEnd
}

// Run executes the full evacuation phase ordering: roots, boot heap,
// code, RS dirty cards, reachables fixpoint, special references,
// reachables fixpoint again. The order is invariant: special-reference
// processing depends on the reachability snapshot the first fixpoint
// establishes.
func (e *Evacuator) Run() EvacuationResult {
	res := EvacuationResult{StartTime: time.Now()}

	if err := e.doBeforeEvacuation(); err != nil {
		res.Err = err
		res.EndTime = time.Now()
		res.Duration = res.EndTime.Sub(res.StartTime)

		return res
	}

	e.evacuateFromRoots()
	e.evacuateFromBootHeap()
	e.evacuateFromCode()
	e.evacuateFromRSets()

	if err := e.evacuateReachables(); err != nil {
		res.Err = err
		res.EndTime = time.Now()
		res.Duration = res.EndTime.Sub(res.StartTime)

		return res
	}

	if e.special != nil {
		e.special.ScanSpecialReferents(func(slotAddr uintptr) {
			e.updateEvacuatedRef(slotAddr)
		})

		if err := e.evacuateReachables(); err != nil {
			res.Err = err
			res.EndTime = time.Now()
			res.Duration = res.EndTime.Sub(res.StartTime)

			return res
		}
	}

	e.doAfterEvacuation()

	res.EndTime = time.Now()
	res.Duration = res.EndTime.Sub(res.StartTime)
	res.CellsEvacuated = e.cellsEvacuated
	res.BytesEvacuated = e.bytesEvacuated
	res.Refills = e.refills
	res.Overflows = e.overflows
	res.SurvivorRanges = e.survivorRanges
	res.Success = true

	return res
}

// doBeforeEvacuation resets counters, ensures the LAB has a chunk, and
// notifies from-space that a GC is beginning.
func (e *Evacuator) doBeforeEvacuation() error {
	e.cellsEvacuated, e.bytesEvacuated, e.refills, e.overflows, e.survivorRanges = 0, 0, 0, 0, 0
	e.pendingOverflowStart, e.pendingOverflowEnd = 0, 0

	if !e.lab.EnsureChunk() {
		return &allocationFailure{transient: true, reason: "no refill chunk for initial LAB fill"}
	}

	start, _ := e.lab.NextChunk()
	e.pendingRangeStart = start

	if e.hooks != nil {
		e.hooks.DoBeforeGC()
	}

	return nil
}

type allocationFailure struct {
	transient bool
	reason    string
}

func (a *allocationFailure) Error() string {
	if a.transient {
		return "heap: transient allocation failure: " + a.reason
	}

	return "heap: fatal allocation failure: " + a.reason
}

func (e *Evacuator) evacuateFromRoots() {
	if e.roots == nil {
		return
	}

	e.roots.ScanRoots(func(slotAddr uintptr) {
		e.updateEvacuatedRef(slotAddr)
	})
}

func (e *Evacuator) evacuateFromBootHeap() {
	if e.boot == nil {
		return
	}

	e.boot.ScanBootHeap(func(slotAddr uintptr) {
		e.updateEvacuatedRef(slotAddr)
	})
}

func (e *Evacuator) evacuateFromCode() {
	if e.code == nil {
		return
	}

	e.code.ScanMutableCode(func(slotAddr uintptr) {
		e.updateEvacuatedRef(slotAddr)
	})
}

// evacuateFromRSets walks every maximal dirty-card run reachable through
// the remembered set, cleaning each run before visiting it so a barrier
// firing mid-scan re-dirties rather than losing the record. Each run is
// walked cell by cell from its first object through past its end, exactly
// as evacuateReachables walks a survivor range, so a cell spanning
// several contiguous dirty cards is scanned once rather than once per
// card it straddles.
func (e *Evacuator) evacuateFromRSets() {
	lo, hi := e.rs.CoveredRange()
	e.rs.VisitCards(lo, hi, func(cellStart, runEnd uintptr) {
		addr := cellStart
		for addr < runEnd {
			size := e.scanCellForEvacuatees(addr)
			if size == 0 {
				break
			}

			addr += uintptr(size)
		}
	})
}

// evacuateReachables drains the survivor-range queue to fixpoint: each
// range is scanned cell by cell, and scanning can itself enqueue new
// ranges (a referent copied during this scan). The loop terminates when
// the queue is empty and stays empty after a scan.
func (e *Evacuator) evacuateReachables() error {
	for {
		e.flushSurvivorRange(e.lab.Ptop())
		e.flushOverflowRange()

		rng, ok := e.survQ.Pop()
		if !ok {
			return nil
		}

		addr := rng.Start
		for addr < rng.End {
			size := e.scanCellForEvacuatees(addr)
			if size == 0 {
				return &allocationFailure{transient: false, reason: "zero-size cell during reachables scan"}
			}

			addr += uintptr(size)
		}
	}
}

// scanCellForEvacuatees scans one cell for outgoing references: the hub
// slot is updated first (so the layout consulted next is already
// forwarded if applicable), then every reference slot the layout
// describes is passed to updateEvacuatedRef. Returns the cell's size in
// bytes so the caller can advance.
func (e *Evacuator) scanCellForEvacuatees(origin uintptr) RegionSize {
	e.updateEvacuatedRef(origin) // HUB_INDEX: slot 0 is the hub word itself

	h := ReadHub(origin)
	if IsForwarded(h) {
		to, _ := Forwarded(origin)
		origin = to
		h = ReadHub(origin)
	}

	if IsFreeChunk(h) || IsDarkMatter(h) {
		return CellSize(origin, e.resolver)
	}

	layout, ok := e.resolver.Resolve(h)
	if !ok {
		return 0
	}

	for _, off := range layout.RefOffsetsWords {
		e.updateEvacuatedRef(origin + uintptr(off)*uintptr(WordSize))
	}

	if layout.ElementCount > 0 && layout.TrailingIsReferences {
		base := origin + uintptr(layout.ElementRefOffsetWords)*uintptr(WordSize)
		stride := uintptr(layout.ElementStrideWords) * uintptr(WordSize)

		for i := 0; i < layout.ElementCount; i++ {
			e.updateEvacuatedRef(base + uintptr(i)*stride)
		}
	}

	return CellSize(origin, e.resolver)
}

// updateEvacuatedRef is the reference-update step applied to every slot
// the evacuator visits: if the slot's current referent lies in
// from-space, it is evacuated (or its existing forwarding pointer is
// reused), the slot is rewritten to point at the to-space copy, and the
// remembered set is notified in case the new location needs a card
// dirtied.
func (e *Evacuator) updateEvacuatedRef(slotAddr uintptr) {
	referent := readSlot(slotAddr)
	if referent == 0 || !e.inFromSpace(referent) {
		return
	}

	to, ok := e.evacuateCell(referent)
	if !ok {
		return
	}

	writeSlot(slotAddr, to)
	e.rs.RecordWrite(slotAddr)
}

// evacuateCell copies the cell at fromOrigin into the LAB, installs a
// forwarding pointer, and enqueues the copy's range for later scanning.
// If fromOrigin is already forwarded, the existing to-space origin is
// returned without copying again (forwarding idempotence).
func (e *Evacuator) evacuateCell(fromOrigin uintptr) (uintptr, bool) {
	if to, ok := Forwarded(fromOrigin); ok {
		return to, true
	}

	size := CellSize(fromOrigin, e.resolver)

	beforeChunk, _ := e.lab.NextChunk()
	beforePtop := e.lab.Ptop()

	to, ok := e.lab.Allocate(size)
	if !ok {
		return 0, false
	}

	switch {
	case e.lab.LastAllocWasOverflow():
		// A direct overflow allocation never moves ptop/pend/
		// allocatedRangeStart, so the chunk-turnover check below can't see
		// it; the copy's range has to be tracked and enqueued separately.
		e.overflows++
		e.noteOverflowAllocation(to, size)
	default:
		if afterChunk, _ := e.lab.NextChunk(); afterChunk != beforeChunk {
			e.refills++
			e.flushSurvivorRange(beforePtop)
			e.pendingRangeStart = afterChunk

			if overflowStart, overflowEnd := e.lab.LastOverflow(); overflowEnd > overflowStart {
				// The abandoned chunk's unused tail holds no cells: format it
				// as dark matter rather than queueing it for scanning.
				tail := RegionSize(overflowEnd - overflowStart)
				if tail >= MinObjectSize {
					FormatDarkMatter(overflowStart, tail)
				}

				e.rs.UpdateForFreeSpace(overflowStart, tail)
			}
		}
	}

	copyWords(to, fromOrigin, size)
	InstallForwarding(fromOrigin, to)

	e.rs.NotifyFormat(to, size)

	e.cellsEvacuated++
	e.bytesEvacuated += uint64(size)

	return to, true
}

// flushSurvivorRange implements update_survivor_ranges: the span of LAB
// activity accumulated since pendingRangeStart becomes a survivor range,
// if non-empty.
func (e *Evacuator) flushSurvivorRange(end uintptr) {
	if end <= e.pendingRangeStart {
		return
	}

	e.survQ.Push(SurvivorRange{Start: e.pendingRangeStart, End: end})
	e.survivorRanges++
	e.pendingRangeStart = end
}

// noteOverflowAllocation records a direct-from-to-space overflow
// allocation's range, coalescing it into the run accumulated since the
// last flush when it immediately follows that run, rather than enqueuing
// a separate survivor range per allocation.
func (e *Evacuator) noteOverflowAllocation(to uintptr, size RegionSize) {
	end := to + uintptr(size)

	if e.pendingOverflowEnd == to {
		e.pendingOverflowEnd = end
		return
	}

	e.flushOverflowRange()
	e.pendingOverflowStart, e.pendingOverflowEnd = to, end
}

// flushOverflowRange pushes the accumulated run of direct-overflow
// allocations onto the survivor queue, if any has accumulated since the
// last flush.
func (e *Evacuator) flushOverflowRange() {
	if e.pendingOverflowEnd <= e.pendingOverflowStart {
		return
	}

	e.survQ.Push(SurvivorRange{Start: e.pendingOverflowStart, End: e.pendingOverflowEnd})
	e.survivorRanges++
	e.pendingOverflowStart, e.pendingOverflowEnd = 0, 0
}

// doAfterEvacuation finalizes the LAB: the unused tail either becomes a
// dead-object filler (if below the refill threshold, since it is too
// small to be worth keeping as an allocatable chunk) or a fresh free
// chunk the next cycle can resume from. Any still-unflushed survivor
// activity in the final chunk is flushed as a last range.
func (e *Evacuator) doAfterEvacuation() {
	e.flushSurvivorRange(e.lab.Ptop())
	e.flushOverflowRange()

	addr, size := e.lab.Retire()
	if size > 0 {
		if size < e.minRefillThreshold {
			if size >= MinObjectSize {
				FormatDarkMatter(addr, size)
				e.rs.UpdateForFreeSpace(addr, size)
			}
		} else {
			// A tail this large is worth keeping as an allocatable chunk
			// rather than dark matter: link it into its region's free list
			// (mirroring sweepDriver.ProcessDeadSpace's Format-before-
			// UpdateForFreeSpace pairing) before re-establishing the FOT.
			if e.freeLists != nil {
				if fl, ok := e.freeLists.FreeListFor(addr); ok {
					fl.Format(addr, size)
				}
			}

			e.rs.UpdateForFreeSpace(addr, size)
		}
	}

	if e.hooks != nil {
		e.hooks.DoAfterGC()
	}
}
