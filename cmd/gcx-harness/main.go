// Command gcx-harness drives a synthetic mutator workload against the
// collector's evacuator for manual soak testing: it builds a singly
// linked chain of cells in a from-space region, evacuates it to a
// to-space region, and verifies the chain survives with every pointer
// updated.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"time"
	"unsafe"

	"github.com/orizon-lang/gcx/internal/allocator"
	"github.com/orizon-lang/gcx/internal/heap"
	"github.com/orizon-lang/gcx/internal/layout"
)

// nodeHub tags every cell this harness allocates: a two-word {hub, next}
// tuple, exactly heap.MinObjectSize bytes.
const nodeHub = heap.Hub(0x100)

// nodeResolver computes the harness's one node layout through the same
// LayoutCalculator a real class-metadata path would use, rather than
// hand-writing word offsets.
func nodeResolver() (*layout.HubRegistry, error) {
	reg := layout.NewHubRegistry()

	err := reg.RegisterTuple(nodeHub, "node", []layout.FieldInfo{
		{Name: "next", Size: int64(heap.WordSize), Alignment: int64(heap.WordSize), IsReference: true},
	})

	return reg, err
}

// rootSet is the harness's RootScanner: a single slot holding the head
// of the chain.
type rootSet struct{ headSlot uintptr }

func (r *rootSet) ScanRoots(visit func(slotAddr uintptr)) { visit(r.headSlot) }

func main() {
	var (
		cellCount   = flag.Int("cells", 10_000, "number of linked cells to allocate in from-space")
		maxMemory   = flag.String("Xmx", "64M", "max heap size for the sizing policy demonstration")
		showVerbose = flag.Bool("verbose", false, "print per-cell chain contents before and after evacuation")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "gcx synthetic mutator harness: builds a cell chain and evacuates it.\n\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if err := run(*cellCount, *maxMemory, *showVerbose); err != nil {
		fmt.Fprintf(os.Stderr, "gcx-harness: %v\n", err)
		os.Exit(1)
	}
}

func run(cellCount int, maxMemoryFlag string, verbose bool) error {
	maxMemory, err := heap.ParseSize(maxMemoryFlag)
	if err != nil {
		return fmt.Errorf("invalid -Xmx: %w", err)
	}

	chainBytes := heap.RegionSize(cellCount) * heap.MinObjectSize
	regionsNeeded := int(chainBytes/heap.RegionSizeBytes) + 1

	fromBuf, fromBase := allocAlignedRegions(regionsNeeded)
	toBuf, toBase := allocAlignedRegions(regionsNeeded + 1)

	fromTable := heap.NewTable(fromBase, regionsNeeded)
	toTable := heap.NewTable(toBase, regionsNeeded+1)

	fromEnd := fromTable.RegionEnd(heap.RegionID(regionsNeeded - 1))
	toEnd := toTable.RegionEnd(heap.RegionID(regionsNeeded))

	head := writeChain(fromBase, cellCount)

	rs := heap.NewRememberedSet(toBase, uintptr(toEnd-toBase))
	mgr := allocator.NewManager(toTable, rs, heap.OwnerOldTo)
	lab := heap.NewLAB(mgr, 4096, heap.MinObjectSize)

	resolver, err := nodeResolver()
	if err != nil {
		return fmt.Errorf("building node layout: %w", err)
	}

	roots := &rootSet{headSlot: uintptr(unsafe.Pointer(&head))}

	evac := heap.NewEvacuator(heap.EvacuatorConfig{
		LAB:                lab,
		Resolver:           resolver,
		RememberedSet:      rs,
		SurvivorQueue:      heap.NewSurvivorQueue(64),
		FreeLists:          mgr,
		Roots:              roots,
		MinRefillThreshold: heap.MinObjectSize,
		FromSpaceStart:     fromBase,
		FromSpaceEnd:       fromEnd,
	})

	if verbose {
		fmt.Printf("from-space: %d cells across %d region(s) at %#x\n", cellCount, regionsNeeded, fromBase)
	}

	start := time.Now()
	result := evac.Run()
	elapsed := time.Since(start)

	if !result.Success {
		return fmt.Errorf("evacuation failed: %w", result.Err)
	}

	newHead := readSlot(roots.headSlot)

	survivedCount, ok := walkChain(newHead, cellCount)
	if !ok {
		return fmt.Errorf("chain corrupted after evacuation: expected %d live cells, found %d", cellCount, survivedCount)
	}

	eventLog := heap.NewEventLog(nil)

	sizing := heap.NewSizingPolicy(heap.SizingParams{
		MaxMemory:          maxMemory,
		InitMemory:         maxMemory / 4,
		YoungPercentMax:    50,
		MinYoungGenSize:    heap.RegionSizeBytes,
		MinYoungGenPercent: 5,
		MaxFreePercent:     70,
		MinDelta:           heap.RegionSizeBytes,
		Alignment:          heap.RegionSizeBytes,
	}, eventLog)

	freeOldSpace := heap.RegionSize(toEnd - newHead)
	if err := sizing.ResizeAfterFullGC(0.5, freeOldSpace, heap.RegionSize(result.BytesEvacuated)); err != nil {
		fmt.Fprintf(os.Stderr, "gcx-harness: sizing policy resize: %v\n", err)
	}

	fmt.Printf("evacuation: cells=%d bytes=%d refills=%d overflows=%d survivor_ranges=%d duration=%s\n",
		result.CellsEvacuated, result.BytesEvacuated, result.Refills, result.Overflows, result.SurvivorRanges, elapsed)
	fmt.Printf("chain integrity: %d/%d cells survived in order\n", survivedCount, cellCount)
	fmt.Println(mgr.String())
	fmt.Printf("sizing policy: mode=%s young_percent=%.2f effective_heap=%d\n",
		sizing.Mode(), sizing.YoungPercent(), sizing.EffectiveHeapSize())

	for _, ev := range eventLog.Events() {
		fmt.Printf("sizing event: %s %v\n", ev.Code, ev.Args)
	}

	runtime.KeepAlive(fromBuf)
	runtime.KeepAlive(toBuf)

	return nil
}

// writeChain formats cellCount nodes as a singly linked chain starting
// at base, each MinObjectSize bytes, returning the head's address.
func writeChain(base uintptr, cellCount int) uintptr {
	stride := uintptr(heap.MinObjectSize)

	for i := 0; i < cellCount; i++ {
		addr := base + uintptr(i)*stride

		var next uintptr
		if i+1 < cellCount {
			next = addr + stride
		}

		writeSlotAt(addr, uintptr(nodeHub))
		writeSlotAt(addr+uintptr(heap.WordSize), next)
	}

	return base
}

// walkChain follows the chain starting at head, checking every cell's
// hub and counting its length.
func walkChain(head uintptr, want int) (int, bool) {
	count := 0
	addr := head

	for addr != 0 && count <= want {
		if heap.Hub(readSlot(addr)) != nodeHub {
			return count, false
		}

		count++
		addr = readSlot(addr + uintptr(heap.WordSize))
	}

	return count, count == want
}

func readSlot(addr uintptr) uintptr       { return *(*uintptr)(unsafe.Pointer(addr)) }
func writeSlotAt(addr uintptr, v uintptr) { *(*uintptr)(unsafe.Pointer(addr)) = v }

// allocAlignedRegions allocates a Go byte slice large enough to hold n
// regions at a RegionSizeBytes-aligned offset, returning the backing
// slice (which the caller must keep alive for as long as addresses into
// it are in use) and the aligned base address.
func allocAlignedRegions(n int) ([]byte, uintptr) {
	size := int(heap.RegionSizeBytes)*n + int(heap.RegionSizeBytes)
	buf := make([]byte, size)
	base := (uintptr(unsafe.Pointer(&buf[0])) + uintptr(heap.RegionSizeBytes) - 1) &^ (uintptr(heap.RegionSizeBytes) - 1)

	return buf, base
}
