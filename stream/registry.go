// Package stream implements C1 (stream registry): an ordered splay map
// from opaque driver stream handle to a dense small-integer stream ID,
// guarded by one lock (spec.md §4.1).
package stream

import (
	"sync"

	"github.com/hpcgpu/blameshift/cmn/cos"
	"github.com/hpcgpu/blameshift/cmn/debug"
	"github.com/hpcgpu/blameshift/collab"
)

const (
	// ReservedSlots is the CPU-thread ID space (spec.md §4.1: "first 32
	// slots are reserved for CPU threads by convention").
	ReservedSlots = 32
	// MaxStreams is the compile-time maximum number of non-reserved
	// (stream) slots.
	MaxStreams = 100
)

// Registry is C1. The zero value is not usable; construct with New.
type Registry struct {
	mu       sync.Mutex
	tree     splayTree
	nextID   int
	anchored bool

	unfinishedHead *StreamNode // global list of streams with in-flight work
}

func New() *Registry {
	return &Registry{nextID: ReservedSlots}
}

// Insert assigns the next dense ID and registers handle. isFirstStream
// reports whether this is the very first stream the registry has ever
// seen (the caller is responsible for the one-time world-start anchor
// and, if shared blaming is enabled, opening the IPC region — spec.md
// §4.5 "Stream create").
func (r *Registry) Insert(handle collab.StreamHandle, channel collab.ChannelHandle) (node *StreamNode, isFirstStream bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.nextID >= ReservedSlots+MaxStreams {
		return nil, false, &cos.ErrStreamSpaceExhausted{Max: MaxStreams}
	}
	isFirstStream = !r.anchored
	r.anchored = true

	node = &StreamNode{Handle: handle, ID: r.nextID, Channel: channel}
	if !r.tree.insert(handle, node) {
		return nil, false, &cos.ErrStreamExists{Handle: uintptr(handle)}
	}
	r.nextID++
	return node, isFirstStream, nil
}

// Lookup is O(log n) amortized; a hit rotates the node to the root
// (spec.md §4.1).
func (r *Registry) Lookup(handle collab.StreamHandle) (*StreamNode, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.tree.get(handle)
	return n, n != nil
}

// Remove unlinks handle; the dense ID itself is never recycled within a
// run (spec.md §4.1).
func (r *Registry) Remove(handle collab.StreamHandle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tree.remove(handle)
}

// CloseAll performs the post-order walk that finalizes every stream's
// trace channel (spec.md §4.1); fn is the collaborator's channel-close
// callback (collab.Tracer.CloseChannel, typically).
func (r *Registry) CloseAll(fn func(*StreamNode)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tree.walkPostOrder(fn)
}

// Handles returns every live stream handle in post-order, a stable
// snapshot a caller can then drain and destroy one at a time (a process-
// wide teardown, spec.md §4.1 "close_all", cannot remove nodes from
// inside the tree's own walk).
func (r *Registry) Handles() []collab.StreamHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	var handles []collab.StreamHandle
	r.tree.walkPostOrder(func(n *StreamNode) {
		handles = append(handles, n.Handle)
	})
	return handles
}

// Lock/Unlock expose the registry's single lock for the rare caller that
// needs to hold it across a Lookup+mutate pair atomically (stream
// create/destroy, spec.md §4.5). Hot paths (one lookup per intercepted
// API) use Lookup directly instead.
func (r *Registry) Lock()   { r.mu.Lock() }
func (r *Registry) Unlock() { r.mu.Unlock() }

// UnfinishedPtr exposes the slot backing the global unfinished-streams
// list so equeue's reap algorithm can Push/Remove from it while holding
// the GPU lock (a different lock than this registry's own mu — see the
// package comment below). Valid only while the GPU lock is held.
func (r *Registry) UnfinishedPtr() **StreamNode { return &r.unfinishedHead }

//
// Unfinished-streams list (spec.md §3 invariant: "a stream appears on the
// unfinished-streams list iff in_flight_head != nil"). Guarded by the
// caller's GPU lock, not this package's own mutex, because the reap
// algorithm (equeue, C3) mutates it in the same critical section as the
// per-stream in-flight queues it is tracking.
//

// PushUnfinished adds n to the global unfinished list; caller must hold
// the GPU lock and must not call this if n is already on the list.
func PushUnfinished(head **StreamNode, n *StreamNode) {
	debug.Assert(!n.onUnfinished, "stream already on unfinished list")
	n.NextUnfinished = *head
	n.onUnfinished = true
	*head = n
}

// RemoveUnfinished removes n from the list rooted at *head in O(k).
func RemoveUnfinished(head **StreamNode, n *StreamNode) {
	if !n.onUnfinished {
		return
	}
	if *head == n {
		*head = n.NextUnfinished
	} else {
		for cur := *head; cur != nil; cur = cur.NextUnfinished {
			if cur.NextUnfinished == n {
				cur.NextUnfinished = n.NextUnfinished
				break
			}
		}
	}
	n.NextUnfinished = nil
	n.onUnfinished = false
}

// OnUnfinished reports whether n is currently linked into an unfinished
// list (used by equeue to decide whether to unlink a now-empty stream).
func OnUnfinished(n *StreamNode) bool { return n.onUnfinished }
