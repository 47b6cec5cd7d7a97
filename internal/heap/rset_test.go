package heap

import "testing"

func TestRememberedSetRecordWriteDirtiesCard(t *testing.T) {
	rs := NewRememberedSet(0x10000, CardSize*8)
	addr := uintptr(0x10000) + CardSize*2

	if rs.Cards().IsDirty(addr) {
		t.Fatal("card should start clean")
	}

	rs.RecordWrite(addr)

	if !rs.Cards().IsDirty(addr) {
		t.Fatal("RecordWrite should dirty the covering card")
	}
}

func TestRememberedSetRecordWriteIgnoresUncoveredAddress(t *testing.T) {
	rs := NewRememberedSet(0x10000, CardSize*8)

	// An address far outside the covered range (e.g. a root/stack slot)
	// must not be dirtied: the byte map's biased-pointer arithmetic is
	// only valid for covered addresses.
	rs.RecordWrite(0x7fff00000000)

	lo, hi := rs.CoveredRange()
	if rs.Cards().First(lo, hi) != NoIndex {
		t.Fatal("RecordWrite on an address outside the covered range must not dirty any card")
	}
}

func TestRememberedSetNotifyFormatAndCellStart(t *testing.T) {
	rs := NewRememberedSet(0x10000, CardSize*8)
	addr := uintptr(0x10000)

	rs.NotifyFormat(addr, RegionSize(CardSize*2))

	if got := rs.CellStart(addr + CardSize); got != addr {
		t.Errorf("CellStart = %#x, want %#x", got, addr)
	}
}

func TestRememberedSetNotifySplitRedirectsRemainder(t *testing.T) {
	rs := NewRememberedSet(0x10000, CardSize*8)
	addr := uintptr(0x10000)
	total := RegionSize(CardSize * 4)

	rs.NotifyFormat(addr, total)
	rs.NotifySplit(addr, total, RegionSize(CardSize*2))

	remAddr := addr + CardSize*2
	if got := rs.CellStart(remAddr + CardSize); got != remAddr {
		t.Errorf("CellStart(remainder) = %#x, want %#x", got, remAddr)
	}
}

func TestRememberedSetNotifyCoalescingMergesFOTEntries(t *testing.T) {
	rs := NewRememberedSet(0x10000, CardSize*8)
	addr1 := uintptr(0x10000)
	addr2 := addr1 + CardSize*2

	rs.NotifyFormat(addr1, RegionSize(CardSize*2))
	rs.NotifyFormat(addr2, RegionSize(CardSize*2))

	rs.NotifyCoalescing(addr1, RegionSize(CardSize*2), RegionSize(CardSize*2))

	if got := rs.CellStart(addr2 + 10); got != addr1 {
		t.Errorf("CellStart after coalescing = %#x, want %#x (merged origin)", got, addr1)
	}
}

func TestRememberedSetVisitCardsCleansAndResolvesCellStart(t *testing.T) {
	rs := NewRememberedSet(0x10000, CardSize*8)
	objAddr := uintptr(0x10000)

	rs.NotifyFormat(objAddr, RegionSize(CardSize*3))
	rs.RecordWrite(objAddr + CardSize*2 + 10)

	lo, hi := rs.CoveredRange()

	var gotCellStart uintptr
	visits := 0
	rs.VisitCards(lo, hi, func(cellStart, cardEnd uintptr) {
		visits++
		gotCellStart = cellStart
	})

	if visits != 1 {
		t.Fatalf("expected exactly 1 visited card, got %d", visits)
	}

	if gotCellStart != objAddr {
		t.Errorf("visited card resolved to cell start %#x, want %#x", gotCellStart, objAddr)
	}

	if rs.Cards().IsDirty(objAddr + CardSize*2 + 10) {
		t.Error("VisitCards should have cleaned the card it visited")
	}
}

func TestRememberedSetVisitCardsReportsOneRunForACellSpanningManyDirtyCards(t *testing.T) {
	rs := NewRememberedSet(0x10000, CardSize*8)
	objAddr := uintptr(0x10000)

	rs.NotifyFormat(objAddr, RegionSize(CardSize*4))
	rs.RecordWrite(objAddr + 10)
	rs.RecordWrite(objAddr + CardSize + 10)
	rs.RecordWrite(objAddr + CardSize*2 + 10)
	rs.RecordWrite(objAddr + CardSize*3 + 10)

	lo, hi := rs.CoveredRange()

	visits := 0
	rs.VisitCards(lo, hi, func(cellStart, runEnd uintptr) {
		visits++

		if cellStart != objAddr {
			t.Errorf("cellStart = %#x, want %#x", cellStart, objAddr)
		}

		if want := objAddr + CardSize*4; runEnd != want {
			t.Errorf("runEnd = %#x, want %#x", runEnd, want)
		}
	})

	if visits != 1 {
		t.Fatalf("a cell spanning 4 contiguous dirty cards should be reported once, got %d visits", visits)
	}
}
