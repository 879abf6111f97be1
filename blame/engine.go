// Package blame implements C7, the shared-blame engine: given a sync
// epilogue's reference cursor into the retired tail, it walks the events
// that retired during the wait, rebuilds a sorted timeline of the kernels
// that overlapped it, and splits the wait's idle time fractionally across
// every kernel that was active at each instant (spec.md §4.7).
package blame

import (
	"github.com/hpcgpu/blameshift/cmn/debug"
	"github.com/hpcgpu/blameshift/collab"
	"github.com/hpcgpu/blameshift/equeue"
	"github.com/hpcgpu/blameshift/evpool"
	"github.com/hpcgpu/blameshift/stream"
)

// Engine runs one shared-blame sweep per sync epilogue invocation. It
// holds no state across calls — every field is a collaborator the sweep
// needs once.
type Engine struct {
	Pool    *evpool.Pool
	Metrics collab.MetricSink
}

// Run is the whole of spec.md §4.7: filter-and-decrement (step 1, done by
// delegating to RetiredTail.Walk), sorted insertion (step 2) and
// sweep-and-credit (step 3). Returns last_kernel_end_us — 0 if no kernel
// overlapped the wait window at all.
func (e *Engine) Run(retired *equeue.RetiredTail, ref *evpool.EventRecord, tStart int64, mask stream.Mask) (lastKernelEndUS int64) {
	var head, tail *evpool.ActiveKernelNode

	retired.Walk(ref, e.Pool, func(ev *evpool.EventRecord) {
		if ev.EndTimeUS <= tStart || !mask.Matches(ev.StreamID) {
			return
		}
		start := ev.StartTimeUS
		if start < tStart {
			start = tStart
		}
		if start == ev.EndTimeUS {
			return // degenerate: clamped interval collapsed to a point
		}

		s := e.Pool.AcquireActiveKernelNode()
		s.Tag, s.TimeUS, s.StreamID, s.LauncherCCT, s.Source = evpool.KernelStart, start, ev.StreamID, ev.LauncherCCT, ev
		insertSorted(&head, &tail, s)

		n := e.Pool.AcquireActiveKernelNode()
		n.Tag, n.TimeUS, n.StreamID, n.LauncherCCT, n.Source = evpool.KernelEnd, ev.EndTimeUS, ev.StreamID, ev.LauncherCCT, ev
		insertSorted(&head, &tail, n)
	})

	return e.sweep(head, tStart)
}

// insertSorted inserts n into the time-sorted doubly-linked list rooted
// at head/tail by scanning backward from the tail (spec.md §4.7 step 2):
// "linear when events arrive in submission order". Ties insert after the
// existing node (decided in DESIGN.md's Open Questions) so a kernel's own
// END always sorts after its own START even when both land on the same
// microsecond.
func insertSorted(head, tail **evpool.ActiveKernelNode, n *evpool.ActiveKernelNode) {
	if *tail == nil {
		*head, *tail = n, n
		return
	}
	cur := *tail
	for cur != nil && cur.TimeUS > n.TimeUS {
		cur = cur.Prev()
	}
	if cur == nil {
		n.SetNext(*head)
		(*head).SetPrev(n)
		*head = n
		return
	}
	next := cur.Next()
	n.SetPrev(cur)
	n.SetNext(next)
	cur.SetNext(n)
	if next != nil {
		next.SetPrev(n)
	} else {
		*tail = n
	}
}

// sweep is step 3: a single forward pass crediting CPU_IDLE_CAUSE
// fractionally to every kernel active during each sub-interval, freeing
// every node back to the pool as it's consumed. A dummy tail node (never
// pool-allocated, never freed) closes the walk per spec.md §4.7 step 3.
func (e *Engine) sweep(head *evpool.ActiveKernelNode, tStart int64) int64 {
	if head == nil {
		return 0
	}
	dummy := &evpool.ActiveKernelNode{TimeUS: 1<<63 - 1}
	tail := head
	for tail.Next() != nil {
		tail = tail.Next()
	}
	tail.SetNext(dummy)
	dummy.SetPrev(tail)

	var active []*evpool.ActiveKernelNode
	var lastKernelEndUS int64
	lastTime := tStart

	for node := head; node != nil; {
		next := node.Next()
		t := node.TimeUS

		if len(active) > 0 && t > lastTime {
			delta := float64(t - lastTime)
			share := delta / float64(len(active))
			if e.Metrics != nil {
				for _, s := range active {
					e.Metrics.Increment(collab.CPUIdleCause, s.LauncherCCT, collab.RealValue(share))
				}
			}
		}

		switch {
		case node == dummy:
			// sentinel; nothing to materialize or free.
		case node.Tag == evpool.KernelStart:
			active = append(active, node)
		default: // KernelEnd
			lastKernelEndUS = t
			for i, s := range active {
				if s.Source == node.Source {
					active = append(active[:i], active[i+1:]...)
					e.Pool.ReleaseActiveKernelNode(s)
					break
				}
			}
			e.Pool.ReleaseActiveKernelNode(node)
		}

		lastTime = t
		node = next
	}

	debug.Assert(len(active) == 0, "shared-blame sweep finished with unmatched active kernels")
	return lastKernelEndUS
}
