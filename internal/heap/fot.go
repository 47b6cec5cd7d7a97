package heap

// The first-object table answers one question in O(1) amortized: given an
// arbitrary address (e.g. the start of a dirty card), where does the cell
// that overlaps it begin? It shares the card table's granularity so the
// remembered set can map a dirty card straight to the first cell it needs
// to rescan.
//
// Each FOT entry is a byte. For a card whose first word IS a cell origin,
// the entry stores 0. For a card in the interior of a cell that started
// on an earlier card, the entry stores a small backward card-offset (the
// number of cards to step back before trying again), using the high bit
// as a continuation marker (sign/magnitude-style encoding): bit 7 clear
// means "the offset in bits 0-6 reaches the origin card
// directly"; bit 7 set means "step back the offset in bits 0-6 cards and
// re-consult the table there". A long object spanning many cards is
// encoded as a chain of decreasing offsets rather than one entry, so the
// walk back from any interior card always terminates in O(chain length)
// steps bounded by fotMaxDirectOffset per hop.
const (
	fotContinuationBit byte = 0x80
	fotMaxDirectOffset      = 0x7F
)

// FOT is the first-object table.
type FOT struct {
	bm *ByteMap
}

// NewFOT builds a first-object table covering [coveredStart,
// coveredStart+size) at card granularity.
func NewFOT(coveredStart uintptr, size uintptr) *FOT {
	return &FOT{bm: NewByteMap(coveredStart, size, Log2CardSize, nil)}
}

// Set records that a cell originates at addr, which may span one or more
// cards. Every card the cell overlaps gets an entry pointing back toward
// addr's card: the first overlapped card gets offset 0, and each
// subsequent one gets a chain of offsets capped at fotMaxDirectOffset per
// hop so CellStart never steps back more than fotMaxDirectOffset cards
// between continuation entries.
func (f *FOT) Set(addr uintptr, size RegionSize) {
	firstCard := f.bm.EntryIndex(addr)
	lastCard := f.bm.EntryIndex(addr + uintptr(size) - 1)

	f.bm.Set(firstCard, 0)

	for c := firstCard + 1; c <= lastCard; c++ {
		back := c - firstCard
		for back > fotMaxDirectOffset {
			back -= fotMaxDirectOffset
		}

		if c-back == firstCard {
			f.bm.Set(c, byte(c-firstCard))
		} else {
			f.bm.Set(c, fotContinuationBit|byte(back))
		}
	}
}

// CellStart returns the address of the cell that overlaps card-aligned
// address a. a need not be a card start; it is rounded down internally.
func (f *FOT) CellStart(a uintptr) uintptr {
	card := f.bm.EntryIndex(a)

	for {
		entry := f.bm.Get(card)
		if entry == 0 {
			return f.bm.RangeStart(card)
		}

		if entry&fotContinuationBit == 0 {
			card -= int(entry)
			continue
		}

		card -= int(entry &^ fotContinuationBit)
	}
}

// Split updates the table after a single chunk spanning [addr, addr+total)
// is divided into a used head of size head and a free remainder, so that
// CellStart queries against the remainder's cards resolve to the
// remainder's new origin rather than the original chunk's.
func (f *FOT) Split(addr uintptr, total, head RegionSize) {
	remAddr := addr + uintptr(head)
	remSize := total - head

	if remSize == 0 {
		return
	}

	f.Set(addr, head)
	f.Set(remAddr, remSize)
}
