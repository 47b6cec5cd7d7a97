package heap

import "testing"

const testUnit = 1 << 9 // matches card granularity, a convenient stand-in

func TestNewByteMapRejectsMisalignedRange(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on misaligned coveredStart")
		}
	}()

	NewByteMap(1, testUnit, 9, nil)
}

func TestNewByteMapRejectsStorageSizeMismatch(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on storage size mismatch")
		}
	}()

	NewByteMap(0, testUnit*4, 9, make([]byte, 1))
}

func TestByteMapEntryIndexAndRangeStart(t *testing.T) {
	bm := NewByteMap(0x1000, testUnit*4, 9, nil)

	if got := bm.EntryIndex(0x1000); got != 0 {
		t.Errorf("EntryIndex(base) = %d, want 0", got)
	}

	if got := bm.EntryIndex(0x1000 + testUnit*2); got != 2 {
		t.Errorf("EntryIndex(base+2*unit) = %d, want 2", got)
	}

	if got := bm.RangeStart(2); got != 0x1000+testUnit*2 {
		t.Errorf("RangeStart(2) = %#x, want %#x", got, 0x1000+testUnit*2)
	}
}

func TestByteMapIsCovered(t *testing.T) {
	start, size := uintptr(0x2000), uintptr(testUnit*4)
	bm := NewByteMap(start, size, 9, nil)

	if !bm.IsCovered(start) {
		t.Error("start should be covered")
	}

	if bm.IsCovered(start + size) {
		t.Error("exclusive end should not be covered")
	}

	if bm.IsCovered(start - 1) {
		t.Error("address before start should not be covered")
	}
}

func TestByteMapGetSetAndFill(t *testing.T) {
	bm := NewByteMap(0, testUnit*4, 9, nil)
	bm.Fill(0xAA)

	for i := 0; i < bm.Len(); i++ {
		if bm.Get(i) != 0xAA {
			t.Fatalf("entry %d: want 0xAA after Fill, got %#x", i, bm.Get(i))
		}
	}

	bm.Set(2, 0x11)
	if bm.Get(2) != 0x11 {
		t.Errorf("Set(2, 0x11) then Get(2) = %#x, want 0x11", bm.Get(2))
	}
}

func TestByteMapFillRange(t *testing.T) {
	start := uintptr(0)
	bm := NewByteMap(start, testUnit*4, 9, nil)
	bm.Fill(0)

	bm.FillRange(start+testUnit, start+testUnit*3, 1)

	want := []byte{0, 1, 1, 0}
	for i, w := range want {
		if bm.Get(i) != w {
			t.Errorf("entry %d = %d, want %d", i, bm.Get(i), w)
		}
	}
}

func TestByteMapFirstAndFirstNot(t *testing.T) {
	start := uintptr(0)
	bm := NewByteMap(start, testUnit*4, 9, nil)
	bm.Fill(0xFF)
	bm.Set(2, 0x00)

	lo, hi := start, start+testUnit*4
	if got := bm.First(lo, hi, 0x00); got != 2 {
		t.Errorf("First(0x00) = %d, want 2", got)
	}

	if got := bm.FirstNot(lo, hi, 0xFF); got != 2 {
		t.Errorf("FirstNot(0xFF) = %d, want 2", got)
	}

	if got := bm.First(lo, hi, 0x77); got != NoIndex {
		t.Errorf("First(0x77) = %d, want NoIndex", got)
	}
}

func TestByteMapUnsafeGetSetRoundTrip(t *testing.T) {
	start := uintptr(0)
	bm := NewByteMap(start, testUnit*4, 9, nil)

	addr := start + testUnit*3
	bm.UnsafeSet(addr, 0x42)

	if got := bm.UnsafeGet(addr); got != 0x42 {
		t.Errorf("UnsafeGet after UnsafeSet = %#x, want 0x42", got)
	}

	if got := bm.Get(3); got != 0x42 {
		t.Errorf("UnsafeSet should be visible through Get: got %#x", got)
	}
}

func TestByteMapSharedStorageIsExplicit(t *testing.T) {
	storage := make([]byte, 4)
	bm := NewByteMap(0, testUnit*4, 9, storage)

	bm.Set(0, 0x5)
	if storage[0] != 0x5 {
		t.Error("ByteMap must write through the caller-supplied storage slice")
	}
}
