package heap

import "github.com/orizon-lang/gcx/internal/errors"

// Mode distinguishes the two heap-sizing regimes the policy cycles between.
type Mode int

const (
	// Normal mode keeps the young-gen percent pinned at its configured
	// maximum and grows/shrinks the effective heap size to track occupancy.
	Normal Mode = iota
	// Degraded mode trades young-gen share for old-gen headroom when free
	// old space looks likely to run out before the next young GC.
	Degraded
)

func (m Mode) String() string {
	if m == Degraded {
		return "degraded"
	}

	return "normal"
}

// SizingParams are the user- and config-supplied inputs to the sizing
// policy: -Xmx/-Xms plus the policy's own tuning knobs, all set by the
// caller.
type SizingParams struct {
	MaxMemory          RegionSize // -Xmx
	InitMemory         RegionSize // -Xms
	YoungPercentMax    float64    // YP_max, 0..100
	MinYoungGenSize    RegionSize
	MinYoungGenPercent float64
	MaxFreePercent     float64 // shrink trigger threshold
	MinDelta           RegionSize
	Alignment          RegionSize // quantization granularity, typically a page
}

// SizingPolicy tracks the collector's generation-sizing state machine
// across GC cycles.
type SizingPolicy struct {
	params SizingParams
	mode   Mode
	log    *EventLog

	effectiveHeap RegionSize // H
	youngPercent  float64    // YP, current
}

// NewSizingPolicy starts in Normal mode with YP = YoungPercentMax and H
// derived from InitMemory. log may be nil, in which case sizing decisions
// are made exactly as before but nothing is recorded; pass a non-nil log
// to have ShouldPerformFullGC/ChangeYoungPercent/GrowHeap/ShrinkHeap
// events recorded as ResizeAfterFullGC runs.
func NewSizingPolicy(p SizingParams, log *EventLog) *SizingPolicy {
	sp := &SizingPolicy{params: p, mode: Normal, log: log, youngPercent: p.YoungPercentMax}
	sp.effectiveHeap = sp.quantize(effectiveHeapSize(p.InitMemory, sp.youngPercent/100))

	return sp
}

// record is a nil-safe wrapper around log.Record, since log is optional.
func (sp *SizingPolicy) record(code EventCode, args ...float64) {
	if sp.log != nil {
		sp.log.Record(code, args...)
	}
}

// effectiveHeapSize computes H = M / (2 - yp) for yp in [0,1), the
// semi-space-aware relationship between user-specified memory M and the
// usable effective heap size.
func effectiveHeapSize(m RegionSize, yp float64) RegionSize {
	return RegionSize(float64(m) / (2 - yp))
}

func (sp *SizingPolicy) quantize(size RegionSize) RegionSize {
	a := sp.params.Alignment
	if a == 0 {
		return size
	}

	return (size + a - 1) / a * a
}

// Mode returns the policy's current regime.
func (sp *SizingPolicy) Mode() Mode { return sp.mode }

// EffectiveHeapSize returns H, the current effective heap size.
func (sp *SizingPolicy) EffectiveHeapSize() RegionSize { return sp.effectiveHeap }

// YoungPercent returns YP as a percentage (0..100).
func (sp *SizingPolicy) YoungPercent() float64 { return sp.youngPercent }

// YoungGenSize returns YP*H, quantized.
func (sp *SizingPolicy) YoungGenSize() RegionSize {
	return sp.quantize(RegionSize(sp.youngPercent / 100 * float64(sp.effectiveHeap)))
}

// OldGenSemiSpaceSize returns (1-YP)*H, the size of one old-gen semi-space,
// quantized.
func (sp *SizingPolicy) OldGenSemiSpaceSize() RegionSize {
	return sp.quantize(RegionSize((1 - sp.youngPercent/100) * float64(sp.effectiveHeap)))
}

// OOMError reports a fatal inability to keep young-gen size at or above
// its configured floor. Its message is produced through
// errors.OutOfMemory so it carries the same category/code/caller
// metadata every other fatal heap error does.
type OOMError struct {
	Reason string
	std    *errors.StandardError
}

func newOOMError(reason string) *OOMError {
	return &OOMError{Reason: reason, std: errors.OutOfMemory(reason)}
}

func (e *OOMError) Error() string { return e.std.Error() }

// ResizeAfterFullGC applies the post-GC sizing decision: grow or shrink
// the effective heap in normal mode, or shift young/old-gen share in
// degraded mode. freeFraction is the fraction of the effective heap
// currently free after the GC that just completed; freeOldSpace and
// estimatedNextEvac are both in bytes, used for the normal-mode
// degraded-transition check and, in degraded mode, to size the shift from
// young to old gen. Returns an *OOMError if degraded mode
// cannot keep young-gen size at or above its floor.
func (sp *SizingPolicy) ResizeAfterFullGC(freeFraction float64, freeOldSpace, estimatedNextEvac RegionSize) error {
	switch sp.mode {
	case Normal:
		return sp.resizeNormal(freeFraction, freeOldSpace, estimatedNextEvac)
	default:
		return sp.resizeDegraded(freeOldSpace, estimatedNextEvac)
	}
}

func (sp *SizingPolicy) resizeNormal(freeFraction float64, freeOldSpace, estimatedNextEvac RegionSize) error {
	sp.youngPercent = sp.params.YoungPercentMax

	switch {
	case freeFraction*100 > sp.params.MaxFreePercent:
		shrink := sp.params.MinDelta
		if sp.effectiveHeap > shrink {
			sp.effectiveHeap = sp.quantize(sp.effectiveHeap - shrink)
			sp.record(ShrinkHeap, float64(sp.effectiveHeap))
		}
	case freeFraction < 0:
		sp.effectiveHeap = sp.quantize(sp.effectiveHeap + sp.params.MinDelta)
		sp.record(GrowHeap, float64(sp.effectiveHeap))
	}

	if sp.effectiveHeap > sp.params.MaxMemory {
		sp.effectiveHeap = sp.quantize(sp.params.MaxMemory)
	}

	needsFullGC := freeOldSpace < estimatedNextEvac

	decision := 0.0
	if needsFullGC {
		decision = 1.0
	}

	sp.record(ShouldPerformFullGC, decision, float64(freeOldSpace), float64(estimatedNextEvac))

	if needsFullGC {
		sp.mode = Degraded
		return sp.resizeDegraded(freeOldSpace, estimatedNextEvac)
	}

	return nil
}

func (sp *SizingPolicy) resizeDegraded(freeOldSpace, estimatedNextEvac RegionSize) error {
	h := sp.effectiveHeap
	ys := sp.YoungGenSize()

	shortfall := RegionSize(0)
	if estimatedNextEvac > freeOldSpace {
		shortfall = estimatedNextEvac - freeOldSpace
	}

	quarterYoung := ys / 4

	delta := sp.params.MinDelta
	if shortfall < delta {
		delta = shortfall
	}

	if quarterYoung < delta {
		delta = quarterYoung
	}

	if delta < sp.params.MinDelta {
		delta = sp.params.MinDelta
	}

	if h <= 2*delta {
		return newOOMError("degraded resize delta exceeds effective heap size")
	}

	newYS := RegionSize(0)
	if ys > 2*delta {
		newYS = ys - 2*delta
	}

	newH := h - delta
	if newH == 0 {
		return newOOMError("degraded resize collapses effective heap size to zero")
	}

	newYP := float64(newYS) / float64(newH) * 100

	floor := sp.params.MinYoungGenSize
	percentFloor := RegionSize(sp.params.MinYoungGenPercent / 100 * float64(sp.params.MaxMemory))

	if percentFloor > floor {
		floor = percentFloor
	}

	newYoungGenSize := RegionSize(newYP / 100 * float64(newH))
	if newYoungGenSize < floor {
		return newOOMError("degraded resize would push young generation below its floor")
	}

	sp.effectiveHeap = sp.quantize(newH)
	sp.youngPercent = newYP
	sp.record(ChangeYoungPercent, newYP)

	return nil
}
