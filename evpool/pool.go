package evpool

import (
	"github.com/hpcgpu/blameshift/cmn/cos"
	"github.com/hpcgpu/blameshift/collab"
)

const defaultGrowBatch = 256

// Pool owns the two free lists described in spec.md §4.2. Every method
// here is documented as requiring the caller to hold the global GPU lock;
// the pool performs no internal synchronization of its own, exactly as the
// teacher's slab free lists rely on an externally-held lock rather than
// re-deriving one (spec.md §4.2: "All freelist operations occur with the
// global GPU lock held, so they need no further synchronization").
type Pool struct {
	arena     Arena
	driver    collab.Driver
	growBatch int

	eventFree *EventRecord
	knodeFree *ActiveKernelNode

	// counts are maintained for observability (read through EventsLive/
	// KnodesLive, currently only by tests); they are not required by the
	// algorithm itself.
	eventsLive, knodesLive int64
}

func New(arena Arena, driver collab.Driver) *Pool {
	if arena == nil {
		arena = NewSliceArena()
	}
	return &Pool{arena: arena, driver: driver, growBatch: defaultGrowBatch}
}

// AcquireEvent returns a ready-to-use EventRecord: either the head of the
// free list, or — if empty — a fresh batch grown from the arena, each
// member driver-initialized exactly once (spec.md §4.2: "Driver events
// inside pooled event records are created once and re-recorded").
func (p *Pool) AcquireEvent() (*EventRecord, error) {
	if p.eventFree == nil {
		if err := p.growEvents(); err != nil {
			return nil, err
		}
	}
	e := p.eventFree
	p.eventFree = e.next
	e.next = nil
	e.state = stateFree
	p.eventsLive++
	return e, nil
}

func (p *Pool) growEvents() error {
	fresh := p.arena.NewEventRecords(p.growBatch)
	if len(fresh) == 0 {
		return &cos.ErrPoolExhausted{Kind: "event record"}
	}
	for _, e := range fresh {
		start, err := p.driver.CreateEvent()
		if err != nil {
			return cos.NewErrDriverFatal("create start event", err)
		}
		end, err := p.driver.CreateEvent()
		if err != nil {
			return cos.NewErrDriverFatal("create end event", err)
		}
		e.StartEvent, e.EndEvent = start, end
		e.next = p.eventFree
		p.eventFree = e
	}
	return nil
}

// ReleaseEvent returns e to the free list. Driver event handles are kept
// (re-recorded on next acquire, not destroyed) — only context teardown
// destroys them (spec.md §4.2).
func (p *Pool) ReleaseEvent(e *EventRecord) {
	e.StartTimeUS, e.EndTimeUS = 0, 0
	e.StreamID = 0
	e.LauncherCCT, e.StreamLauncherCCT = collab.NoCCT, collab.NoCCT
	e.RefCount = 0
	e.state = stateFree
	e.next = p.eventFree
	p.eventFree = e
	p.eventsLive--
}

// DestroyAll releases every driver event handle; called only during
// context teardown (spec.md §4.2), never in the steady state.
func (p *Pool) DestroyAll() error {
	var errs cos.Errs
	for e := p.eventFree; e != nil; e = e.next {
		if err := p.driver.DestroyEvent(e.StartEvent); err != nil {
			errs.Add(err)
		}
		if err := p.driver.DestroyEvent(e.EndEvent); err != nil {
			errs.Add(err)
		}
	}
	p.eventFree = nil
	return errs.JoinErr()
}

// AcquireActiveKernelNode and ReleaseActiveKernelNode back the shared-blame
// engine's transient, per-sweep active-kernel list (spec.md §4.7).
func (p *Pool) AcquireActiveKernelNode() *ActiveKernelNode {
	if p.knodeFree == nil {
		p.growKnodes()
	}
	n := p.knodeFree
	p.knodeFree = n.next
	n.next, n.prev = nil, nil
	p.knodesLive++
	return n
}

func (p *Pool) growKnodes() {
	fresh := p.arena.NewActiveKernelNodes(p.growBatch)
	for _, n := range fresh {
		n.next = p.knodeFree
		p.knodeFree = n
	}
}

func (p *Pool) ReleaseActiveKernelNode(n *ActiveKernelNode) {
	*n = ActiveKernelNode{next: p.knodeFree}
	p.knodeFree = n
	p.knodesLive--
}

// EventsLive and KnodesLive are best-effort observability counters; they
// are not part of any invariant.
func (p *Pool) EventsLive() int64 { return p.eventsLive }
func (p *Pool) KnodesLive() int64 { return p.knodesLive }
