// Package layout calculates cell layouts for gcx: field offsets and
// alignment for tuple and hybrid (fixed-prefix-plus-trailing-array)
// cells, and reference-array element strides. A LayoutCalculator's
// output feeds directly into a heap.Layout, the minimum contract the
// evacuator needs to find a cell's reference slots.
package layout

import (
	"fmt"

	"github.com/orizon-lang/gcx/internal/heap"
)

// LayoutKind mirrors heap.CellKind, plus the two leaf kinds
// (pointer/reference) a struct field can itself be.
type LayoutKind int

const (
	LayoutStruct LayoutKind = iota
	LayoutArray
	LayoutPointer
	LayoutReference
)

// FieldInfo describes one field of a struct (tuple or hybrid-prefix)
// layout.
type FieldInfo struct {
	Name        string // Field name
	Offset      int64  // Offset from struct start, in bytes
	Size        int64  // Size of the field, in bytes
	Alignment   int64  // Required alignment, in bytes
	IsReference bool   // Whether this field is a GC-traced reference
}

// PaddingInfo represents padding bytes inserted for alignment.
type PaddingInfo struct {
	Offset int64
	Size   int64
	Reason string
}

// StructLayout is the computed layout of a fixed-shape cell.
type StructLayout struct {
	Name       string
	Fields     []FieldInfo
	TotalSize  int64
	Alignment  int64
	PaddingMap []PaddingInfo
}

// ArrayLayout is the computed layout of a homogeneous reference array's
// trailing element run.
type ArrayLayout struct {
	ElementSize  int64
	ElementAlign int64
	Length       int64
	IsReference  bool
}

// LayoutCalculator computes struct and array layouts for a fixed target
// word size.
type LayoutCalculator struct {
	TargetPointerSize int64
	MaxAlignment      int64
}

// NewLayoutCalculator creates a calculator sized for gcx's word size.
func NewLayoutCalculator() *LayoutCalculator {
	return &LayoutCalculator{
		TargetPointerSize: int64(heap.WordSize),
		MaxAlignment:      16,
	}
}

// CalculateStructLayout lays fields out in order, inserting padding for
// each field's alignment and for the struct's own trailing alignment.
func (lc *LayoutCalculator) CalculateStructLayout(name string, fields []FieldInfo) (*StructLayout, error) {
	if len(fields) == 0 {
		return &StructLayout{Name: name, TotalSize: 0, Alignment: 1}, nil
	}

	var padding []PaddingInfo

	layoutFields := make([]FieldInfo, 0, len(fields))
	currentOffset := int64(0)
	maxAlignment := int64(1)

	for _, field := range fields {
		if field.Size <= 0 {
			return nil, fmt.Errorf("layout: field %s has invalid size: %d", field.Name, field.Size)
		}

		if field.Alignment <= 0 {
			field.Alignment = 1
		}

		if !isPowerOfTwo(field.Alignment) {
			return nil, fmt.Errorf("layout: field %s alignment must be a power of two: %d", field.Name, field.Alignment)
		}

		if field.Alignment > maxAlignment {
			maxAlignment = field.Alignment
		}

		alignedOffset := alignUp(currentOffset, field.Alignment)
		if alignedOffset > currentOffset {
			padding = append(padding, PaddingInfo{
				Offset: currentOffset,
				Size:   alignedOffset - currentOffset,
				Reason: fmt.Sprintf("alignment for field %s", field.Name),
			})
		}

		layoutFields = append(layoutFields, FieldInfo{
			Name: field.Name, Offset: alignedOffset, Size: field.Size,
			Alignment: field.Alignment, IsReference: field.IsReference,
		})

		currentOffset = alignedOffset + field.Size
	}

	totalSize := alignUp(currentOffset, maxAlignment)
	if totalSize > currentOffset {
		padding = append(padding, PaddingInfo{
			Offset: currentOffset, Size: totalSize - currentOffset, Reason: "struct alignment",
		})
	}

	return &StructLayout{
		Name: name, Fields: layoutFields, TotalSize: totalSize,
		Alignment: maxAlignment, PaddingMap: padding,
	}, nil
}

// CalculateArrayLayout validates and records a trailing array's element
// size, alignment and length. It does not round elementSize to a word;
// ToCellLayout rounds the stride up to whole words.
func (lc *LayoutCalculator) CalculateArrayLayout(elementSize, elementAlign, length int64, isReference bool) (*ArrayLayout, error) {
	if length < 0 {
		return nil, fmt.Errorf("layout: array length cannot be negative: %d", length)
	}

	if elementSize <= 0 {
		return nil, fmt.Errorf("layout: element size must be positive: %d", elementSize)
	}

	if elementAlign <= 0 {
		elementAlign = 1
	}

	if !isPowerOfTwo(elementAlign) {
		return nil, fmt.Errorf("layout: element alignment must be a power of two: %d", elementAlign)
	}

	return &ArrayLayout{ElementSize: elementSize, ElementAlign: elementAlign, Length: length, IsReference: isReference}, nil
}

// ToCellLayout converts a computed struct layout (optionally with a
// trailing array) into the heap.Layout the evacuator consults to find a
// cell's reference slots. It does not reserve word 0 for the hub: a
// reference field at offset 0 is listed among RefOffsetsWords like any
// other. HubRegistry reserves word 0 with a leading non-reference field.
func (sl *StructLayout) ToCellLayout(trailing *ArrayLayout) heap.Layout {
	word := int64(heap.WordSize)

	var refOffsets []int

	for _, f := range sl.Fields {
		if f.IsReference {
			refOffsets = append(refOffsets, int(f.Offset/word))
		}
	}

	sizeWords := int(alignUp(sl.TotalSize, word) / word)

	if trailing == nil {
		return heap.Layout{Kind: heap.CellTuple, SizeWords: sizeWords, RefOffsetsWords: refOffsets}
	}

	strideWords := int(alignUp(trailing.ElementSize, word) / word)
	if strideWords == 0 {
		strideWords = 1
	}

	return heap.Layout{
		Kind:                  heap.CellHybrid,
		SizeWords:             sizeWords,
		RefOffsetsWords:       refOffsets,
		ElementRefOffsetWords: sizeWords,
		ElementCount:          int(trailing.Length),
		ElementStrideWords:    strideWords,
		TrailingIsReferences:  trailing.IsReference,
	}
}

// GetFieldOffset returns the byte offset of a field within the struct.
func (sl *StructLayout) GetFieldOffset(fieldName string) (int64, bool) {
	for _, field := range sl.Fields {
		if field.Name == fieldName {
			return field.Offset, true
		}
	}

	return 0, false
}

// GetPaddingBytes returns the total number of padding bytes in the struct.
func (sl *StructLayout) GetPaddingBytes() int64 {
	var total int64

	for _, pad := range sl.PaddingMap {
		total += pad.Size
	}

	return total
}

func isPowerOfTwo(n int64) bool {
	return n > 0 && n&(n-1) == 0
}

func alignUp(value, alignment int64) int64 {
	if alignment <= 1 {
		return value
	}

	return (value + alignment - 1) &^ (alignment - 1)
}
