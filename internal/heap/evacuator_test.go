package heap

import (
	"testing"
	"unsafe"

	"go.uber.org/mock/gomock"

	"github.com/orizon-lang/gcx/internal/heap/heapmock"
)

// tupleResolver resolves a fixed set of hubs to pre-registered layouts,
// the same fixed-table contract the evacuator's doc comment describes
// production class metadata standing in for.
type tupleResolver map[Hub]Layout

func (r tupleResolver) Resolve(h Hub) (Layout, bool) {
	l, ok := r[h]
	return l, ok
}

// bumpRefiller hands out a single pre-allocated arena's whole remaining
// span on its first call, satisfying the Refiller contract without
// pulling in the region allocator package (which itself depends on this
// one).
type bumpRefiller struct {
	next uintptr
	end  uintptr
}

func (r *bumpRefiller) Refill(minWords RegionSize) (uintptr, RegionSize, bool) {
	avail := RegionSize(r.end - r.next)
	if avail < minWords {
		return 0, 0, false
	}

	addr := r.next
	r.next = r.end

	return addr, avail, true
}

// newToSpaceArena allocates a card-aligned arena of the given size,
// rounded up to whole cards, returning its [base, end) range for use as
// both a LAB's backing refiller and a remembered set's covered range.
func newToSpaceArena(t *testing.T, size RegionSize) (base, end uintptr) {
	t.Helper()

	size = (size + CardSize - 1) &^ (CardSize - 1)
	buf := make([]byte, int(size)+CardSize)
	raw := uintptr(unsafe.Pointer(&buf[0]))
	raw = (raw + CardSize - 1) &^ (CardSize - 1)
	t.Cleanup(func() { _ = buf })

	return raw, raw + uintptr(size)
}

const (
	hubLeaf Hub = 0x200 // no outgoing references
	hubNode Hub = 0x208 // one reference slot at word 1
	hubBig  Hub = 0x210 // oversized cell, one reference slot at word 1, large enough to force the LAB's overflow path
)

func fixedEvacResolver() tupleResolver {
	return tupleResolver{
		hubLeaf: {Kind: CellTuple, SizeWords: 2},
		hubNode: {Kind: CellTuple, SizeWords: 2, RefOffsetsWords: []int{1}},
		hubBig:  {Kind: CellTuple, SizeWords: 8, RefOffsetsWords: []int{1}},
	}
}

// writeCellAt writes a cell of hub h at addr in a from-space arena.
func writeCellAt(addr uintptr, h Hub, ref uintptr) {
	writeSlot(addr, uintptr(h))
	writeSlot(addr+uintptr(WordSize), ref)
}

func newFromSpaceArena(t *testing.T, cells int) (base uintptr, end uintptr) {
	t.Helper()

	size := RegionSize(cells) * MinObjectSize
	buf := make([]byte, int(size)+int(WordSize))
	raw := uintptr(unsafe.Pointer(&buf[0]))
	raw = (raw + uintptr(WordSize) - 1) &^ (uintptr(WordSize) - 1)
	t.Cleanup(func() { _ = buf })

	return raw, raw + uintptr(size)
}

func newTestEvacuator(t *testing.T, fromStart, fromEnd uintptr, roots RootScanner, opts func(*EvacuatorConfig)) *Evacuator {
	t.Helper()

	toSize := RegionSize(fromEnd-fromStart) + RegionSizeBytes
	toStart, toEnd := newToSpaceArena(t, toSize)

	rs := NewRememberedSet(toStart, uintptr(toEnd-toStart))
	lab := NewLAB(&bumpRefiller{next: toStart, end: toEnd}, MinObjectSize*4, MinObjectSize)

	cfg := EvacuatorConfig{
		LAB:                lab,
		Resolver:           fixedEvacResolver(),
		RememberedSet:      rs,
		SurvivorQueue:      NewSurvivorQueue(16),
		Roots:              roots,
		MinRefillThreshold: MinObjectSize,
		FromSpaceStart:     fromStart,
		FromSpaceEnd:       fromEnd,
	}

	if opts != nil {
		opts(&cfg)
	}

	return NewEvacuator(cfg)
}

func TestEvacuatorCopiesRootReferentAndUpdatesSlot(t *testing.T) {
	fromStart, fromEnd := newFromSpaceArena(t, 4)
	writeCellAt(fromStart, hubLeaf, 0)

	var rootSlot uintptr = fromStart

	roots := rootScannerFunc(func(visit func(uintptr)) {
		visit(uintptr(unsafe.Pointer(&rootSlot)))
	})

	e := newTestEvacuator(t, fromStart, fromEnd, roots, nil)
	res := e.Run()

	if !res.Success {
		t.Fatalf("evacuation failed: %v", res.Err)
	}

	if rootSlot == fromStart {
		t.Fatalf("root slot was not updated to point at the to-space copy")
	}

	if ReadHub(rootSlot) != hubLeaf {
		t.Fatalf("to-space copy has wrong hub: %#x", ReadHub(rootSlot))
	}

	if res.CellsEvacuated != 1 {
		t.Fatalf("expected 1 cell evacuated, got %d", res.CellsEvacuated)
	}
}

func TestEvacuatorForwardingIsIdempotent(t *testing.T) {
	fromStart, fromEnd := newFromSpaceArena(t, 4)
	writeCellAt(fromStart, hubLeaf, 0)

	var slotA, slotB uintptr = fromStart, fromStart

	roots := rootScannerFunc(func(visit func(uintptr)) {
		visit(uintptr(unsafe.Pointer(&slotA)))
		visit(uintptr(unsafe.Pointer(&slotB)))
	})

	e := newTestEvacuator(t, fromStart, fromEnd, roots, nil)
	res := e.Run()

	if !res.Success {
		t.Fatalf("evacuation failed: %v", res.Err)
	}

	if res.CellsEvacuated != 1 {
		t.Fatalf("expected the shared referent to be copied exactly once, got %d", res.CellsEvacuated)
	}

	if slotA != slotB {
		t.Fatalf("both roots should forward to the same to-space copy: %#x vs %#x", slotA, slotB)
	}
}

func TestEvacuatorFollowsChainToFixpoint(t *testing.T) {
	fromStart, fromEnd := newFromSpaceArena(t, 4)
	nodeAddr := fromStart
	leafAddr := fromStart + uintptr(MinObjectSize)

	writeCellAt(leafAddr, hubLeaf, 0)
	writeCellAt(nodeAddr, hubNode, leafAddr)

	var rootSlot uintptr = nodeAddr

	roots := rootScannerFunc(func(visit func(uintptr)) {
		visit(uintptr(unsafe.Pointer(&rootSlot)))
	})

	e := newTestEvacuator(t, fromStart, fromEnd, roots, nil)
	res := e.Run()

	if !res.Success {
		t.Fatalf("evacuation failed: %v", res.Err)
	}

	if res.CellsEvacuated != 2 {
		t.Fatalf("expected both chain cells evacuated, got %d", res.CellsEvacuated)
	}

	newNodeAddr := rootSlot
	newLeafRef := readSlot(newNodeAddr + uintptr(WordSize))

	if newLeafRef == leafAddr {
		t.Fatalf("node's reference slot still points at from-space after evacuation")
	}

	if ReadHub(newLeafRef) != hubLeaf {
		t.Fatalf("node's reference does not point at a valid leaf copy")
	}
}

func TestEvacuatorDrivesCollaboratorHooksAndSpecialRefs(t *testing.T) {
	ctrl := gomock.NewController(t)

	fromStart, fromEnd := newFromSpaceArena(t, 4)
	writeCellAt(fromStart, hubLeaf, 0)

	var specialSlot uintptr = fromStart

	boot := heapmock.NewMockBootHeapScanner(ctrl)
	boot.EXPECT().ScanBootHeap(gomock.Any()).Times(1)

	code := heapmock.NewMockCodeScanner(ctrl)
	code.EXPECT().ScanMutableCode(gomock.Any()).Times(1)

	special := heapmock.NewMockSpecialReferenceManager(ctrl)
	special.EXPECT().ScanSpecialReferents(gomock.Any()).Times(1).Do(func(visit func(uintptr)) {
		visit(uintptr(unsafe.Pointer(&specialSlot)))
	})

	hooks := heapmock.NewMockFromSpaceHooks(ctrl)
	hooks.EXPECT().DoBeforeGC().Times(1)
	hooks.EXPECT().DoAfterGC().Times(1)

	roots := heapmock.NewMockRootScanner(ctrl)
	roots.EXPECT().ScanRoots(gomock.Any()).Times(1)

	e := newTestEvacuator(t, fromStart, fromEnd, roots, func(cfg *EvacuatorConfig) {
		cfg.BootHeap = boot
		cfg.Code = code
		cfg.Special = special
		cfg.Hooks = hooks
	})

	res := e.Run()
	if !res.Success {
		t.Fatalf("evacuation failed: %v", res.Err)
	}

	if specialSlot == fromStart {
		t.Fatalf("special referent slot was not evacuated")
	}
}

// rootScannerFunc adapts a plain function literal to the RootScanner
// interface, for tests that don't need gomock's call recording.
type rootScannerFunc func(visit func(slotAddr uintptr))

func (f rootScannerFunc) ScanRoots(visit func(slotAddr uintptr)) { f(visit) }

// twoChunkRefiller hands out a fixed sequence of pre-sliced spans of one
// backing arena, in order: an ordinary-sized span for the LAB's initial
// fill, then a second span for a direct overflow allocation to draw from.
// bumpRefiller can't serve this scenario since it hands the whole arena
// out on its very first call.
type twoChunkRefiller struct {
	calls int
	spans []struct {
		addr uintptr
		size RegionSize
	}
}

func (r *twoChunkRefiller) Refill(minWords RegionSize) (uintptr, RegionSize, bool) {
	if r.calls >= len(r.spans) {
		return 0, 0, false
	}

	s := r.spans[r.calls]
	if s.size < minWords {
		return 0, 0, false
	}

	r.calls++

	return s.addr, s.size, true
}

// singleFreeList is a minimal FreeListProvider for tests backed by one
// to-space arena: every address maps to the same free list.
type singleFreeList struct{ fl *FreeList }

func (s singleFreeList) FreeListFor(uintptr) (*FreeList, bool) { return s.fl, true }

// TestEvacuatorOverflowAllocatedCellIsStillScannedForOutgoingRefs is the
// S4 scenario at the evacuator level: an oversized cell takes the LAB's
// direct overflow path, which leaves ptop/pend untouched and so can't be
// detected by the ordinary chunk-turnover check. The copy still has to
// be enqueued for scanning, or its own outgoing references would never
// be updated.
func TestEvacuatorOverflowAllocatedCellIsStillScannedForOutgoingRefs(t *testing.T) {
	fromStart, fromEnd := newFromSpaceArena(t, 8)

	bigAddr := fromStart
	leafAddr := fromStart + uintptr(MinObjectSize)*4

	writeSlot(bigAddr, uintptr(hubBig))
	writeSlot(bigAddr+uintptr(WordSize), leafAddr)
	writeCellAt(leafAddr, hubLeaf, 0)

	toSize := RegionSize(fromEnd-fromStart) + RegionSizeBytes
	toStart, toEnd := newToSpaceArena(t, toSize)

	ordinaryChunkSize := RegionSize(MinObjectSize * 4)
	overflowSpanAddr := toStart + uintptr(ordinaryChunkSize)
	overflowSpanSize := RegionSize(toEnd-toStart) - ordinaryChunkSize

	refiller := &twoChunkRefiller{spans: []struct {
		addr uintptr
		size RegionSize
	}{
		{toStart, ordinaryChunkSize},
		{overflowSpanAddr, overflowSpanSize},
	}}

	rs := NewRememberedSet(toStart, uintptr(toEnd-toStart))
	lab := NewLAB(refiller, ordinaryChunkSize, MinObjectSize)

	var rootSlot uintptr = bigAddr

	roots := rootScannerFunc(func(visit func(uintptr)) {
		visit(uintptr(unsafe.Pointer(&rootSlot)))
	})

	e := NewEvacuator(EvacuatorConfig{
		LAB:                lab,
		Resolver:           fixedEvacResolver(),
		RememberedSet:      rs,
		SurvivorQueue:      NewSurvivorQueue(16),
		FreeLists:          singleFreeList{fl: NewFreeList(toStart, 0)},
		Roots:              roots,
		MinRefillThreshold: MinObjectSize,
		FromSpaceStart:     fromStart,
		FromSpaceEnd:       fromEnd,
	})

	res := e.Run()
	if !res.Success {
		t.Fatalf("evacuation failed: %v", res.Err)
	}

	if res.CellsEvacuated != 2 {
		t.Fatalf("expected both the oversized cell and its referent evacuated, got %d", res.CellsEvacuated)
	}

	if res.Overflows == 0 {
		t.Fatal("expected the oversized allocation to be counted as an overflow")
	}

	newBigAddr := rootSlot
	if newBigAddr != overflowSpanAddr {
		t.Fatalf("oversized cell should have been allocated straight from the overflow span: got %#x, want %#x", newBigAddr, overflowSpanAddr)
	}

	newLeafRef := readSlot(newBigAddr + uintptr(WordSize))
	if newLeafRef == leafAddr {
		t.Fatal("oversized cell's reference slot still points at from-space after evacuation")
	}

	if ReadHub(newLeafRef) != hubLeaf {
		t.Fatal("oversized cell's reference does not point at a valid leaf copy")
	}
}

// countingResolver wraps a fixed resolver and counts how many times each
// hub is resolved, so a test can tell whether a cell got scanned more
// than once.
type countingResolver struct {
	tupleResolver
	resolves map[Hub]int
}

func (r *countingResolver) Resolve(h Hub) (Layout, bool) {
	if r.resolves == nil {
		r.resolves = make(map[Hub]int)
	}

	r.resolves[h]++

	return r.tupleResolver.Resolve(h)
}

// TestEvacuatorScansACellSpanningADirtyRunExactlyOnce is the run-batching
// scenario: an already-promoted cell wide enough to straddle several
// contiguous dirty cards must be scanned exactly once per
// evacuateFromRSets pass, not once per card it happens to cover.
func TestEvacuatorScansACellSpanningADirtyRunExactlyOnce(t *testing.T) {
	const hubWide Hub = 0x300

	const wideCellWords = RegionSize(CardSize * 4 / WordSize)

	resolver := &countingResolver{tupleResolver: tupleResolver{
		hubWide: {Kind: CellTuple, SizeWords: int(wideCellWords), RefOffsetsWords: []int{1}},
		hubLeaf: {Kind: CellTuple, SizeWords: 2},
	}}

	fromStart, fromEnd := newFromSpaceArena(t, 4)
	leafAddr := fromStart
	writeCellAt(leafAddr, hubLeaf, 0)

	toStart, toEnd := newToSpaceArena(t, RegionSize(CardSize*8))

	rs := NewRememberedSet(toStart, uintptr(toEnd-toStart))

	wideAddr := toStart
	wideSize := wideCellWords * WordSize
	writeSlot(wideAddr, uintptr(hubWide))
	writeSlot(wideAddr+uintptr(WordSize), leafAddr)
	rs.NotifyFormat(wideAddr, wideSize)
	rs.Cards().DirtyCovered(wideAddr, wideAddr+uintptr(wideSize))

	lab := NewLAB(&bumpRefiller{next: wideAddr + uintptr(wideSize), end: toEnd}, MinObjectSize*4, MinObjectSize)

	e := NewEvacuator(EvacuatorConfig{
		LAB:                lab,
		Resolver:           resolver,
		RememberedSet:      rs,
		SurvivorQueue:      NewSurvivorQueue(16),
		MinRefillThreshold: MinObjectSize,
		FromSpaceStart:     fromStart,
		FromSpaceEnd:       fromEnd,
	})

	res := e.Run()
	if !res.Success {
		t.Fatalf("evacuation failed: %v", res.Err)
	}

	// scanCellForEvacuatees resolves hubWide's layout once directly and
	// once more inside its own CellSize call; four dirty cards collapsing
	// into one run means that pair happens once, not four times.
	if resolver.resolves[hubWide] != 2 {
		t.Fatalf("expected the wide cell resolved exactly once (2 Resolve calls) despite spanning 4 dirty cards, got %d Resolve calls", resolver.resolves[hubWide])
	}

	newLeafRef := readSlot(wideAddr + uintptr(WordSize))
	if newLeafRef == leafAddr {
		t.Fatal("wide cell's reference slot still points at from-space after evacuation")
	}

	if ReadHub(newLeafRef) != hubLeaf {
		t.Fatal("wide cell's reference does not point at a valid leaf copy")
	}
}
