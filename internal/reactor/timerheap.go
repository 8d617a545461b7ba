package reactor

import (
	"container/heap"
	"time"
)

// timerEntry is one pending or tombstoned timer firing. Entries are ordered
// in the heap by due; cancelled entries stay physically in the heap as
// tombstones until lazy compaction sweeps them out.
type timerEntry struct {
	due      MonoTime
	itime    MonoTime
	interval time.Duration

	remainingTicks int // -1 = infinite
	absolute       bool
	withTimestamp  bool

	hasJitter bool
	jitter    float64 // fraction p in [0,1]

	callback  func(ts MonoTime)
	cancelled bool

	seq   uint64 // insertion order, used as a deterministic tie-break
	index int    // heap.Interface bookkeeping
}

// timerHeap is a min-heap of *timerEntry ordered by due, with insertion
// order as tie-break so equal-due entries fire in a deterministic order.
type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].due.Time().Equal(h[j].due.Time()) {
		return h[i].seq < h[j].seq
	}
	return h[i].due.Before(h[j].due)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

var _ heap.Interface = (*timerHeap)(nil)

// jittered applies the data model's jitter formula: x * (1 + p*(1 - 2*U)).
// U is supplied by the caller's random source so the heap stays
// deterministic and testable.
func jittered(x time.Duration, p float64, u float64) time.Duration {
	if p <= 0 {
		return x
	}
	factor := 1 + p*(1-2*u)
	return time.Duration(float64(x) * factor)
}
