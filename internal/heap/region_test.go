package heap

import "testing"

func TestNewTableDescriptorsStartFreeAndIterable(t *testing.T) {
	table := NewTable(0x10000, 4)

	free := table.FreeRegions()
	if len(free) != 4 {
		t.Fatalf("expected all 4 regions free, got %d: %v", len(free), free)
	}

	for _, id := range free {
		d := table.Descriptor(id)
		if d.Owner() != OwnerNone {
			t.Errorf("region %d: expected OwnerNone, got %v", id, d.Owner())
		}

		if !d.HasFlag(FlagIterable) {
			t.Errorf("region %d: expected FlagIterable set", id)
		}
	}
}

func TestDescriptorResetMatchesFreshTableState(t *testing.T) {
	table := NewTable(0x20000, 1)
	d := table.Descriptor(0)

	d.SetOwner(OwnerYoung)
	d.SetFlags(FlagAllocating)

	d.Reset()

	if d.Owner() != OwnerNone {
		t.Fatalf("expected owner reset to OwnerNone, got %v", d.Owner())
	}

	if d.Flags() != FlagIterable {
		t.Fatalf("expected flags reset to exactly FlagIterable, got %v", d.Flags())
	}
}

func TestRegionAddressArithmetic(t *testing.T) {
	table := NewTable(0x100000, 3)

	if got := table.RegionAddress(0); got != 0x100000 {
		t.Errorf("region 0 address: expected 0x100000, got %#x", got)
	}

	if got := table.RegionAddress(1); got != 0x100000+uintptr(RegionSizeBytes) {
		t.Errorf("region 1 address: expected %#x, got %#x", 0x100000+uintptr(RegionSizeBytes), got)
	}

	if got := table.RegionEnd(0); got != table.RegionAddress(1) {
		t.Errorf("region 0 end should equal region 1 start, got %#x vs %#x", got, table.RegionAddress(1))
	}

	if id, ok := table.RegionOf(table.RegionAddress(2) + 10); !ok || id != 2 {
		t.Errorf("expected address in region 2, got id=%d ok=%v", id, ok)
	}

	if _, ok := table.RegionOf(0x99); ok {
		t.Errorf("expected address before base to be out of range")
	}

	if _, ok := table.RegionOf(table.RegionEnd(2)); ok {
		t.Errorf("expected address at table end to be out of range")
	}
}
