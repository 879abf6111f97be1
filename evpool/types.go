// Package evpool implements C2 (event pool): two slab-allocated free lists
// — event records and active-kernel nodes — so the steady-state hot path
// (kernel launch, timer sample, sync epilogue) never calls into the
// runtime allocator. Growth, when the free lists run dry, comes from an
// arena supplied by the collaborator rather than one-off allocations
// (spec.md §4.2).
package evpool

import "github.com/hpcgpu/blameshift/collab"

// eventState enforces spec.md §3's invariant that an EventRecord's `next`
// link belongs to exactly one of the in-flight queue or the retired tail,
// never both.
type eventState int32

const (
	stateFree eventState = iota
	stateInFlight
	stateRetired
)

// EventRecord is the pool-allocated, indefinitely-reused record backing
// one (start, end) GPU event pair (spec.md §3, "Event record").
type EventRecord struct {
	StartEvent, EndEvent           collab.DriverEvent
	StartTimeUS, EndTimeUS         int64
	StreamID                       int
	LauncherCCT, StreamLauncherCCT collab.CCTNode

	// RefCount is the number of synchronizing threads that still need
	// this event for deferred attribution (spec.md §3: "zero exactly
	// when the event is not referenced by any waiter and may be freed").
	RefCount int32

	state eventState
	next  *EventRecord // intrusive link: in-flight queue XOR retired tail
}

// Ready reports whether start/end timestamps have been filled in by
// retirement (equeue's reap).
func (e *EventRecord) Ready() bool { return e.state != stateFree && e.EndTimeUS != 0 }

// Next/SetNext expose the intrusive link for the two packages that walk
// it: equeue (in-flight queue append/reap, retired tail) and blame (walks
// the retired tail during a sync epilogue). The field itself is
// unexported so every outside mutation goes through SetNext; the
// XOR-membership invariant (spec.md §3) is recorded by MarkInFlight/
// MarkRetired, not asserted here.
func (e *EventRecord) Next() *EventRecord     { return e.next }
func (e *EventRecord) SetNext(n *EventRecord) { e.next = n }

// MarkInFlight/MarkRetired/MarkFree record which of the two mutually
// exclusive lists currently owns this record (spec.md §3 invariant).
func (e *EventRecord) MarkInFlight()    { e.state = stateInFlight }
func (e *EventRecord) MarkRetired()     { e.state = stateRetired }
func (e *EventRecord) IsInFlight() bool { return e.state == stateInFlight }
func (e *EventRecord) IsRetired() bool  { return e.state == stateRetired }

// ActiveKernelTag distinguishes the two node kinds the shared-blame engine
// (C7) materializes for the duration of one sweep (spec.md §3,
// "Active-kernel node").
type ActiveKernelTag int

const (
	KernelStart ActiveKernelTag = iota
	KernelEnd
)

// ActiveKernelNode is transient, per sync-epilogue bookkeeping: it exists
// only for the duration of one blame-redistribution pass (spec.md §3).
type ActiveKernelNode struct {
	Tag         ActiveKernelTag
	TimeUS      int64
	StreamID    int
	LauncherCCT collab.CCTNode // valid for KernelStart only

	// Source links back to the EventRecord this node was materialized
	// from, so the sweep can locate the matching START when it processes
	// an END, and so the engine knows which record to unref/free.
	Source *EventRecord

	// prev/next form the doubly-linked, sorted-by-time list the shared
	// blame engine (§4.7 step 2) maintains for the duration of one sweep;
	// the list is nil-terminated at both ends, not circular.
	prev, next *ActiveKernelNode
}

// Prev/Next/SetPrev/SetNext expose the intrusive doubly-linked pointers
// for the blame package (C7), which owns the sorted-insertion and
// sweep-and-credit algorithm operating on them (spec.md §4.7 steps 2-3).
func (n *ActiveKernelNode) Prev() *ActiveKernelNode      { return n.prev }
func (n *ActiveKernelNode) Next() *ActiveKernelNode      { return n.next }
func (n *ActiveKernelNode) SetPrev(p *ActiveKernelNode)  { n.prev = p }
func (n *ActiveKernelNode) SetNext(nx *ActiveKernelNode) { n.next = nx }
