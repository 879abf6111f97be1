package equeue

import (
	"github.com/hpcgpu/blameshift/cmn/debug"
	"github.com/hpcgpu/blameshift/evpool"
)

// RetiredTail is C4: a sentinel-headed singly-linked list of events that
// have completed but are still referenced by at least one synchronizing
// thread (spec.md §3, "Retired-event tail"; §4.4). Every method requires
// the caller to already hold the GPU lock — the whole point of this
// structure is that it is mutated from inside the same critical section
// as the shared-blame engine it feeds.
type RetiredTail struct {
	head, tail *evpool.EventRecord
}

// Append attaches a just-retired event with its initial reference count
// (spec.md §4.3 step 3: "if num_threads_at_sync > 0, attach the event to
// the retired tail with ref_count = num_threads_at_sync"). Callers must
// not call this with refCount <= 0 — that case returns the event directly
// to the pool instead (see Reaper.Reap).
func (rt *RetiredTail) Append(e *evpool.EventRecord, refCount int32) {
	debug.Assert(refCount > 0, "retired event appended with non-positive ref_count")
	e.RefCount = refCount
	e.SetNext(nil)
	e.MarkRetired()
	if rt.tail == nil {
		rt.head = e
	} else {
		rt.tail.SetNext(e)
	}
	rt.tail = e
}

// Snapshot returns the current tail (the sync-prologue "reference point",
// spec.md §4.6 step 4). A nil result means the sentinel — the list is
// currently empty of real entries.
func (rt *RetiredTail) Snapshot() *evpool.EventRecord {
	return rt.tail
}

// Hold increments ref's ref_count to keep it reachable across the window
// between this thread's prologue (which snapshots it) and its eventual
// epilogue walk (which dereferences ref.Next()) — a window during which
// the thread holds no lock at all because it is blocked inside the driver
// (spec.md §4.6 step 5; §5 "Suspension and blocking points"). A nil ref
// (the sentinel) is a no-op.
func (rt *RetiredTail) Hold(ref *evpool.EventRecord) {
	if ref != nil {
		ref.RefCount++
	}
}

// Walk performs the shared-blame engine's filter-and-decrement step
// (spec.md §4.7 step 1): starting just past ref, it decrements every
// event's ref_count and invokes visit on it. Events strictly before ref in
// the list are skipped without decrementing — ref was already accounted
// for by whichever threads were at-sync when those events retired — but
// are still opportunistically garbage-collected if some other walker's
// pass already dropped them to zero (spec.md §4.4: "removed eagerly when
// its refcount drops to zero during walking"). ref itself is not visited,
// but this walk releases its protective hold (see Hold): ref's ref_count
// is decremented once, and ref is freed if that drops it to zero.
func (rt *RetiredTail) Walk(ref *evpool.EventRecord, pool *evpool.Pool, visit func(*evpool.EventRecord)) {
	var prev *evpool.EventRecord
	cur := rt.head

	// Phase 1: advance to (and including) ref, garbage-collecting only,
	// plus releasing this thread's own hold on ref.
	// Only runs when ref is non-nil (a real snapshot) — a nil ref means
	// the tail was the sentinel at snapshot time, so there is nothing to
	// skip past and phase 2 must start straight from rt.head. Without
	// this guard, cur != ref degenerates to cur != nil and phase 1 would
	// walk and GC the entire list without ever decrementing or visiting
	// anything, leaving phase 2 with nothing left to do.
	if ref != nil {
		for cur != nil && cur != ref {
			next := cur.Next()
			if cur.RefCount == 0 {
				rt.unlink(prev, cur, next)
				pool.ReleaseEvent(cur)
			} else {
				prev = cur
			}
			cur = next
		}
		if cur != nil { // cur == ref
			next := cur.Next()
			cur.RefCount-- // release the Hold taken at prologue time
			debug.Assert(cur.RefCount >= 0, "retired event ref_count went negative")
			if cur.RefCount == 0 {
				rt.unlink(prev, cur, next)
				pool.ReleaseEvent(cur)
			} else {
				prev = cur
			}
			cur = next
		}
	}

	// Phase 2: the window this thread is actually responsible for.
	for cur != nil {
		next := cur.Next()
		cur.RefCount--
		debug.Assert(cur.RefCount >= 0, "retired event ref_count went negative")
		visit(cur)
		if cur.RefCount == 0 {
			rt.unlink(prev, cur, next)
			pool.ReleaseEvent(cur)
		} else {
			prev = cur
		}
		cur = next
	}
}

// unlink removes cur (whose predecessor is prev, nil meaning cur was
// head) from the list; the caller still owns returning cur to the pool.
func (rt *RetiredTail) unlink(prev, cur, next *evpool.EventRecord) {
	if prev == nil {
		rt.head = next
	} else {
		prev.SetNext(next)
	}
	if rt.tail == cur {
		rt.tail = prev
	}
}
