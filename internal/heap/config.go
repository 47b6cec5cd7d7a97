package heap

import (
	"fmt"
	"strconv"
	"strings"
)

// Config is the fully resolved set of heap parameters the collector is
// constructed from: -Xmx/-Xms plus the -XX: tuning flags. Size fields are
// parsed with ParseSize; Validate checks the constraints a single field
// cannot express (alignment must be a power of two, percentages must lie
// in (0,100)).
type Config struct {
	MaxMemory  RegionSize // -Xmx
	InitMemory RegionSize // -Xms

	MinYoungGenPercent float64 // -XX:MinYoungGenPercent, (0,100)
	HeapAlignment      RegionSize // -XX:HeapAlignment, power of two

	TraceCardTableRSet  bool // -XX:TraceCardTableRSet (debug builds only)
	TraceEvacVisitedCell bool // -XX:TraceEvacVisitedCell
}

// DefaultConfig returns the collector's built-in defaults, overridden by
// whatever -Xmx/-Xms/-XX: flags the embedder supplies.
func DefaultConfig() Config {
	return Config{
		MaxMemory:          256 << 20,
		InitMemory:         64 << 20,
		MinYoungGenPercent: 5,
		HeapAlignment:      4096,
	}
}

// Validate checks the constraints ParseSize can't enforce per field:
// InitMemory must not exceed MaxMemory, MinYoungGenPercent must
// lie in (0,100), and HeapAlignment must be a power of two.
func (c Config) Validate() error {
	if c.InitMemory > c.MaxMemory {
		return fmt.Errorf("heap: -Xms (%d) exceeds -Xmx (%d)", c.InitMemory, c.MaxMemory)
	}

	if c.MinYoungGenPercent <= 0 || c.MinYoungGenPercent >= 100 {
		return fmt.Errorf("heap: -XX:MinYoungGenPercent must lie in (0,100), got %v", c.MinYoungGenPercent)
	}

	if c.HeapAlignment == 0 || c.HeapAlignment&(c.HeapAlignment-1) != 0 {
		return fmt.Errorf("heap: -XX:HeapAlignment must be a power of two, got %d", c.HeapAlignment)
	}

	return nil
}

// ParseSize parses a byte quantity with an optional K/M/G suffix (case
// insensitive, binary multiples), as accepted by -Xmx/-Xms/-XX:HeapAlignment.
func ParseSize(s string) (RegionSize, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("heap: empty size")
	}

	mult := RegionSize(1)
	last := s[len(s)-1]

	switch last {
	case 'k', 'K':
		mult = 1 << 10
		s = s[:len(s)-1]
	case 'm', 'M':
		mult = 1 << 20
		s = s[:len(s)-1]
	case 'g', 'G':
		mult = 1 << 30
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("heap: invalid size %q: %w", s, err)
	}

	return RegionSize(n) * mult, nil
}
