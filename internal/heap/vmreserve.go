package heap

import "fmt"

// Reservation is a contiguous range of virtual address space reserved
// for the heap but not necessarily backed by physical memory: this
// collector reserves and commits a single contiguous range and goes no
// further into OS-level VM management (no huge pages, no NUMA placement,
// no guard-page tricks).
type Reservation struct {
	base uintptr
	size RegionSize

	// rawBase/rawSize are the platform mapping's own extent, which is
	// size+alignment bytes so an aligned sub-range of size bytes can
	// always be carved out of it; Release must give this whole span
	// back, not just [base, base+size).
	rawBase uintptr
	rawSize RegionSize

	committed RegionSize
}

// Base returns the reservation's start address.
func (r *Reservation) Base() uintptr { return r.base }

// Size returns the reservation's total reserved length.
func (r *Reservation) Size() RegionSize { return r.size }

// Committed returns how many bytes from Base are currently backed by
// physical memory.
func (r *Reservation) Committed() RegionSize { return r.committed }

// Reserve reserves size bytes of address space, aligned to alignment
// (which must be a power of two and is typically the region size), and
// commits the first initial bytes of it. The platform-specific
// reserveAddressSpace and commitRange do the actual syscall work.
func Reserve(size, initial RegionSize, alignment RegionSize) (*Reservation, error) {
	if size == 0 {
		return nil, fmt.Errorf("heap: cannot reserve zero bytes")
	}

	if initial > size {
		return nil, fmt.Errorf("heap: initial commit %d exceeds reservation size %d", initial, size)
	}

	if alignment == 0 || alignment&(alignment-1) != 0 {
		return nil, fmt.Errorf("heap: reservation alignment must be a power of two, got %d", alignment)
	}

	rawBase, base, err := reserveAddressSpace(size, alignment)
	if err != nil {
		return nil, fmt.Errorf("heap: reserve failed: %w", err)
	}

	rawSize := size + alignment

	r := &Reservation{base: base, size: size, rawBase: rawBase, rawSize: rawSize}

	if initial > 0 {
		if err := commitRange(base, initial); err != nil {
			_ = releaseAddressSpace(rawBase, rawSize)

			return nil, fmt.Errorf("heap: initial commit failed: %w", err)
		}

		r.committed = initial
	}

	return r, nil
}

// Grow commits additional bytes so that Committed() reaches newCommitted,
// which must not exceed Size(). It is a no-op if the range is already
// committed that far.
func (r *Reservation) Grow(newCommitted RegionSize) error {
	if newCommitted <= r.committed {
		return nil
	}

	if newCommitted > r.size {
		return fmt.Errorf("heap: cannot commit %d bytes beyond reservation of %d", newCommitted, r.size)
	}

	if err := commitRange(r.base+uintptr(r.committed), newCommitted-r.committed); err != nil {
		return fmt.Errorf("heap: commit failed: %w", err)
	}

	r.committed = newCommitted

	return nil
}

// Shrink decommits bytes so that Committed() reaches newCommitted, giving
// the pages back to the OS without releasing the address-space reservation
// itself.
func (r *Reservation) Shrink(newCommitted RegionSize) error {
	if newCommitted >= r.committed {
		return nil
	}

	if err := decommitRange(r.base+uintptr(newCommitted), r.committed-newCommitted); err != nil {
		return fmt.Errorf("heap: decommit failed: %w", err)
	}

	r.committed = newCommitted

	return nil
}

// Release gives the entire reservation back to the OS. The Reservation
// must not be used again afterward.
func (r *Reservation) Release() error {
	return releaseAddressSpace(r.rawBase, r.rawSize)
}
