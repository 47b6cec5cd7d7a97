// Package allocator is the region allocator / refill manager: it hands
// TLAB-sized chunks out of a region's free-chunk list to evacuators and
// mutators, refilling from the region table when a region's own list
// runs dry.
package allocator

import (
	"fmt"
	"sync"

	"github.com/orizon-lang/gcx/internal/heap"
)

// AllocStrategy selects how the manager picks a region to refill from
// once the currently active region's free-chunk list is exhausted.
type AllocStrategy int

const (
	// StrategyFirstFit scans the region table in ascending id order and
	// refills from the first region with any free chunk.
	StrategyFirstFit AllocStrategy = iota
	// StrategyBestFit scans every free region and refills from the one
	// whose descriptor reports the fewest free words (the lowest id on a
	// tie). The request size is not consulted.
	StrategyBestFit
)

// Config configures a Manager, following this codebase's functional-
// options construction idiom.
type Config struct {
	Strategy      AllocStrategy
	MinRefillSize heap.RegionSize
}

// Option mutates a Config.
type Option func(*Config)

func defaultConfig() *Config {
	return &Config{
		Strategy:      StrategyFirstFit,
		MinRefillSize: heap.MinObjectSize,
	}
}

// WithStrategy selects the region-selection strategy.
func WithStrategy(s AllocStrategy) Option {
	return func(c *Config) { c.Strategy = s }
}

// WithMinRefillSize sets the smallest refill Manager.Refill will ever
// report success for.
func WithMinRefillSize(size heap.RegionSize) Option {
	return func(c *Config) { c.MinRefillSize = size }
}

// Stats reports a Manager's cumulative activity, in the mutex-guarded
// struct-with-stats shape used throughout this codebase's runtime
// bookkeeping.
type Stats struct {
	Refills        uint64
	BytesHandedOut uint64
	RegionsOpened  uint64
	FailedRefills  uint64
}

// Manager is the region allocator / refill manager: it owns one
// FreeList per open region of a given owner class (young, old-from,
// old-to) and hands chunks out of whichever is currently active,
// opening a fresh region from the table when the active one runs dry.
// It implements heap.Refiller so it can back an evacuator's LAB
// directly.
type Manager struct {
	mu sync.Mutex

	config *Config
	table  *heap.Table
	owner  heap.Owner

	active   heap.RegionID
	hasActive bool
	freeLists map[heap.RegionID]*heap.FreeList

	rs *heap.RememberedSet

	stats Stats
}

// NewManager builds a Manager that refills regions owned by owner out of
// table, keeping rs informed of every format/split/coalesce it performs.
func NewManager(table *heap.Table, rs *heap.RememberedSet, owner heap.Owner, opts ...Option) *Manager {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return &Manager{
		config:    cfg,
		table:     table,
		owner:     owner,
		freeLists: make(map[heap.RegionID]*heap.FreeList),
		rs:        rs,
	}
}

// Refill implements heap.Refiller: it satisfies a request for at least
// minWords bytes by popping (and splitting) a chunk off the active
// region's free list, opening a new region if necessary.
func (m *Manager) Refill(minWords heap.RegionSize) (uintptr, heap.RegionSize, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if minWords < m.config.MinRefillSize {
		minWords = m.config.MinRefillSize
	}

	for {
		if m.hasActive {
			if addr, size, ok := m.popFrom(m.active, minWords); ok {
				m.stats.Refills++
				m.stats.BytesHandedOut += uint64(size)

				return addr, size, true
			}
		}

		if !m.openNextRegion(minWords) {
			m.stats.FailedRefills++

			return 0, 0, false
		}
	}
}

// popFrom pops the head chunk of region id's free list and splits
// minWords bytes off its front. A remainder of at least MinObjectSize is
// reformatted as a fresh chunk and the remembered set is notified of the
// split; a smaller remainder is handed out along with the request.
func (m *Manager) popFrom(id heap.RegionID, minWords heap.RegionSize) (uintptr, heap.RegionSize, bool) {
	fl, ok := m.freeLists[id]
	if !ok {
		return 0, 0, false
	}

	addr, size, ok := fl.Pop()
	if !ok {
		m.table.Descriptor(id).ClearFlags(heap.FlagHasFreeChunk)

		return 0, 0, false
	}

	want := minWords
	if size < want {
		// Chunk too small for the request: treat the whole chunk as dead
		// weight for this refill and keep looking rather than splitting.
		fl.Format(addr, size)

		return 0, 0, false
	}

	remAddr, remSize := heap.Split(addr, size, want)
	if remSize >= heap.MinObjectSize {
		fl.Format(remAddr, remSize)
		m.rs.NotifySplit(addr, size, want)
	} else if remSize > 0 {
		// Too small to format as a cell of its own.
		want = size
	}

	if fl.Empty() {
		m.table.Descriptor(id).ClearFlags(heap.FlagHasFreeChunk)
	}

	return addr, want, true
}

// openNextRegion selects and opens a fresh region from the table,
// per the manager's configured strategy, returning false if none is
// available with at least minWords free.
func (m *Manager) openNextRegion(minWords heap.RegionSize) bool {
	if minWords > heap.RegionSizeBytes {
		return false
	}

	candidates := m.table.FreeRegions()
	if len(candidates) == 0 {
		return false
	}

	var chosen heap.RegionID

	switch m.config.Strategy {
	case StrategyBestFit:
		chosen = candidates[0]

		for _, id := range candidates[1:] {
			if m.table.Descriptor(id).FreeWords() < m.table.Descriptor(chosen).FreeWords() {
				chosen = id
			}
		}
	default:
		chosen = candidates[0]
	}

	d := m.table.Descriptor(chosen)
	d.SetOwner(m.owner)
	d.SetFlags(heap.FlagAllocating | heap.FlagIterable)

	regionEnd := m.table.RegionEnd(chosen)
	regionStart := m.table.RegionAddress(chosen)

	fl := heap.NewFreeList(regionStart, 0)
	fl.Format(regionStart, heap.RegionSize(regionEnd-regionStart))
	m.rs.NotifyFormat(regionStart, heap.RegionSize(regionEnd-regionStart))

	m.freeLists[chosen] = fl
	m.active = chosen
	m.hasActive = true
	m.stats.RegionsOpened++

	return true
}

// FreeListFor implements heap.FreeListProvider: it returns the free list
// of whichever region currently owns addr, so a retired LAB tail can be
// linked back into the right region rather than a fixed one.
func (m *Manager) FreeListFor(addr uintptr) (*heap.FreeList, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.table.RegionOf(addr)
	if !ok {
		return nil, false
	}

	fl, ok := m.freeLists[id]

	return fl, ok
}

// Stats returns a snapshot of the manager's cumulative activity.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.stats
}

// String renders a one-line summary, used by cmd/gcx-harness's progress
// output.
func (m *Manager) String() string {
	s := m.Stats()

	return fmt.Sprintf("allocator: refills=%d bytes=%d regions=%d failed=%d",
		s.Refills, s.BytesHandedOut, s.RegionsOpened, s.FailedRefills)
}
