package heap

import "testing"

func TestNewCardTableStartsClean(t *testing.T) {
	ct := NewCardTable(0x10000, CardSize*8)

	for i := 0; i < ct.Len(); i++ {
		if ct.bm.Get(i) != CardClean {
			t.Fatalf("card %d not clean at construction", i)
		}
	}
}

func TestCardTableDirtyAndClean(t *testing.T) {
	ct := NewCardTable(0x10000, CardSize*8)
	lo, _ := ct.CoveredRange()
	addr := lo + CardSize*3

	if ct.IsDirty(addr) {
		t.Fatal("card should start clean")
	}

	ct.Dirty(addr)
	if !ct.IsDirty(addr) {
		t.Fatal("card should be dirty after Dirty")
	}

	ct.Clean(addr)
	if ct.IsDirty(addr) {
		t.Fatal("card should be clean after Clean")
	}
}

func TestCardTableDirtyCoveredSpansMultipleCards(t *testing.T) {
	ct := NewCardTable(0x10000, CardSize*8)
	lo, _ := ct.CoveredRange()

	ct.DirtyCovered(lo+CardSize, lo+CardSize*3)

	if ct.IsDirty(lo) {
		t.Error("card 0 should remain clean")
	}

	if !ct.IsDirty(lo+CardSize) || !ct.IsDirty(lo+CardSize*2) {
		t.Error("cards 1 and 2 should be dirty")
	}

	if ct.IsDirty(lo + CardSize*3) {
		t.Error("card 3 should remain clean, DirtyCovered's hi is exclusive")
	}
}

func TestCardTableFirstFindsDirtyCard(t *testing.T) {
	ct := NewCardTable(0x10000, CardSize*8)
	lo, hi := ct.CoveredRange()

	if got := ct.First(lo, hi); got != NoIndex {
		t.Fatalf("First on an all-clean table = %d, want NoIndex", got)
	}

	ct.Dirty(lo + CardSize*5)

	if got := ct.First(lo, hi); got != 5 {
		t.Fatalf("First = %d, want 5", got)
	}
}

func TestCardTableCleanAndVisitCardsCleansBeforeVisiting(t *testing.T) {
	ct := NewCardTable(0x10000, CardSize*8)
	lo, hi := ct.CoveredRange()

	ct.Dirty(lo + CardSize*2)
	ct.Dirty(lo + CardSize*5)

	var visited []uintptr
	ct.CleanAndVisitCards(lo, hi, func(cardStart, cardEnd uintptr) {
		visited = append(visited, cardStart)

		if ct.IsDirty(cardStart) {
			t.Error("card must already be clean by the time visit runs")
		}
	})

	if len(visited) != 2 {
		t.Fatalf("expected 2 visited cards, got %d", len(visited))
	}

	if visited[0] != lo+CardSize*2 || visited[1] != lo+CardSize*5 {
		t.Errorf("unexpected visit order: %v", visited)
	}

	if got := ct.First(lo, hi); got != NoIndex {
		t.Fatal("all visited cards should have been cleaned")
	}
}

func TestCardTableCleanAndVisitCardsCoalescesContiguousRuns(t *testing.T) {
	ct := NewCardTable(0x10000, CardSize*8)
	lo, hi := ct.CoveredRange()

	ct.Dirty(lo + CardSize)
	ct.Dirty(lo + CardSize*2)
	ct.Dirty(lo + CardSize*3)
	ct.Dirty(lo + CardSize*6)

	type run struct{ start, end uintptr }

	var visited []run
	ct.CleanAndVisitCards(lo, hi, func(runStart, runEnd uintptr) {
		visited = append(visited, run{runStart, runEnd})
	})

	want := []run{
		{lo + CardSize, lo + CardSize*4},
		{lo + CardSize * 6, lo + CardSize*7},
	}

	if len(visited) != len(want) {
		t.Fatalf("expected %d coalesced runs, got %d: %v", len(want), len(visited), visited)
	}

	for i, w := range want {
		if visited[i] != w {
			t.Errorf("run %d = %+v, want %+v", i, visited[i], w)
		}
	}

	if got := ct.First(lo, hi); got != NoIndex {
		t.Fatal("all cards covered by a visited run should have been cleaned")
	}
}
