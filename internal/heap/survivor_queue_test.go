package heap

import "testing"

func TestSurvivorQueueRoundsCapacityUpToPowerOfTwo(t *testing.T) {
	q := NewSurvivorQueue(5)
	if len(q.slots) != 8 {
		t.Fatalf("capacity not rounded to power of two: got %d slots, want 8", len(q.slots))
	}
}

func TestSurvivorQueueFIFOOrder(t *testing.T) {
	q := NewSurvivorQueue(4)

	ranges := []SurvivorRange{{1, 2}, {3, 4}, {5, 6}}
	for _, r := range ranges {
		q.Push(r)
	}

	if q.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", q.Len())
	}

	for _, want := range ranges {
		got, ok := q.Pop()
		if !ok || got != want {
			t.Fatalf("Pop() = (%+v, %v), want (%+v, true)", got, ok, want)
		}
	}

	if !q.Empty() {
		t.Fatal("queue should be empty after draining every pushed range")
	}

	if _, ok := q.Pop(); ok {
		t.Fatal("Pop on an empty queue must report false")
	}
}

func TestSurvivorQueueFullAndOverflowPanics(t *testing.T) {
	q := NewSurvivorQueue(2) // rounds to 2

	q.Push(SurvivorRange{0, 1})
	q.Push(SurvivorRange{1, 2})

	if !q.Full() {
		t.Fatal("queue should report full at capacity")
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic pushing past capacity")
		}
	}()

	q.Push(SurvivorRange{2, 3})
}

func TestSurvivorQueueWrapsAroundRingBuffer(t *testing.T) {
	q := NewSurvivorQueue(2)

	q.Push(SurvivorRange{0, 1})
	q.Push(SurvivorRange{1, 2})

	if _, ok := q.Pop(); !ok {
		t.Fatal("expected a range to pop")
	}

	q.Push(SurvivorRange{2, 3})

	first, _ := q.Pop()
	second, _ := q.Pop()

	if first != (SurvivorRange{1, 2}) || second != (SurvivorRange{2, 3}) {
		t.Fatalf("ring buffer wraparound broke FIFO order: got %+v, %+v", first, second)
	}
}
