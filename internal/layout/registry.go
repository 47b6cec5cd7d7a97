package layout

import (
	"fmt"

	"github.com/orizon-lang/gcx/internal/heap"
)

// hubFieldName is the synthetic leading field every registered layout
// carries to reserve word 0 for the hub itself: CalculateStructLayout
// knows nothing about hubs, so the registry pins one field's offset to
// zero and excludes it from IsReference before handing the rest to
// ToCellLayout.
const hubFieldName = "$hub"

// HubRegistry binds hub values to the cell layouts a LayoutCalculator
// computed for them, implementing heap.LayoutResolver. A registry lets a
// runtime with many live object shapes (cmd/gcx-harness registers its one
// node shape this way) register each one as its class metadata becomes known (at type
// definition or first allocation) and resolve hubs against computed,
// not hand-maintained, offsets.
type HubRegistry struct {
	calc    *LayoutCalculator
	layouts map[heap.Hub]heap.Layout
}

// NewHubRegistry builds an empty registry backed by a calculator sized
// for gcx's word size.
func NewHubRegistry() *HubRegistry {
	return &HubRegistry{
		calc:    NewLayoutCalculator(),
		layouts: make(map[heap.Hub]heap.Layout),
	}
}

func (hr *HubRegistry) withHubField(fields []FieldInfo) []FieldInfo {
	word := hr.calc.TargetPointerSize

	out := make([]FieldInfo, 0, len(fields)+1)
	out = append(out, FieldInfo{Name: hubFieldName, Offset: 0, Size: word, Alignment: word})

	for _, f := range fields {
		out = append(out, FieldInfo{
			Name: f.Name, Size: f.Size, Alignment: f.Alignment, IsReference: f.IsReference,
		})
	}

	return out
}

// RegisterTuple computes name's fixed-shape layout (hub plus fields, no
// trailing array) and binds it to hub. Re-registering an existing hub
// overwrites its layout.
func (hr *HubRegistry) RegisterTuple(hub heap.Hub, name string, fields []FieldInfo) error {
	sl, err := hr.calc.CalculateStructLayout(name, hr.withHubField(fields))
	if err != nil {
		return fmt.Errorf("layout: registering tuple hub %#x: %w", hub, err)
	}

	hr.layouts[hub] = sl.ToCellLayout(nil)

	return nil
}

// RegisterHybrid computes name's fixed-prefix layout followed by a
// trailing homogeneous array (elementSize/elementAlign/length/
// isReference describe the array) and binds it to hub.
func (hr *HubRegistry) RegisterHybrid(hub heap.Hub, name string, fields []FieldInfo, elementSize, elementAlign, length int64, elementIsReference bool) error {
	sl, err := hr.calc.CalculateStructLayout(name, hr.withHubField(fields))
	if err != nil {
		return fmt.Errorf("layout: registering hybrid hub %#x: %w", hub, err)
	}

	al, err := hr.calc.CalculateArrayLayout(elementSize, elementAlign, length, elementIsReference)
	if err != nil {
		return fmt.Errorf("layout: registering hybrid hub %#x: %w", hub, err)
	}

	hr.layouts[hub] = sl.ToCellLayout(al)

	return nil
}

// Resolve implements heap.LayoutResolver.
func (hr *HubRegistry) Resolve(hub heap.Hub) (heap.Layout, bool) {
	l, ok := hr.layouts[hub]
	return l, ok
}

// Len returns the number of hubs currently registered.
func (hr *HubRegistry) Len() int { return len(hr.layouts) }
