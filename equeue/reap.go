// Package equeue implements C3 (per-stream event queue) and C4 (retired-
// event tail): appending newly-submitted kernel/copy events to a stream's
// in-flight queue, and reaping (retiring) the ones the driver reports
// complete, handing each off to the retired tail for deferred attribution
// or straight back to the pool if no thread is currently synchronizing
// (spec.md §4.3, §4.4).
package equeue

import (
	"github.com/hpcgpu/blameshift/cmn/debug"
	"github.com/hpcgpu/blameshift/collab"
	"github.com/hpcgpu/blameshift/evpool"
	"github.com/hpcgpu/blameshift/stream"
)

// outstandingCounter is the one arbiter method C3's reap needs — kept as
// a narrow interface rather than an *arbiter.Arbiter dependency so equeue
// never needs to import golang.org/x/sys/unix just to retire an event.
type outstandingCounter interface {
	Decrement(collab.DeviceID)
}

// Reaper bundles the collaborators C3's reap step calls out to: the driver
// (non-blocking completion queries and elapsed-time conversion), the
// tracer (per-kernel trace emission), the metric sink (GPU activity
// time), and — when shared blaming is enabled — the cross-process
// arbiter's retirement-side decrement. It holds no lock of its own —
// every method requires the caller to already hold the GPU lock
// (spec.md §4.3: "the reap sweep ... runs with the global GPU lock
// held").
type Reaper struct {
	Driver  collab.Driver
	Tracer  collab.Tracer
	Metrics collab.MetricSink
	Pool    *evpool.Pool
	Retired *RetiredTail
	Anchor  *collab.WorldAnchor
	Arbiter outstandingCounter // nil when shared blaming is disabled
	Device  collab.DeviceID
}

// Append attaches a newly-submitted event to node's in-flight queue tail
// and, if the stream had no other in-flight work, links it onto the
// global unfinished-streams list rooted at *unfinished (spec.md §4.1
// invariant: "a stream appears on the unfinished list iff in_flight_head
// != nil"; §4.5, "Kernel launch" / "Async memcpy").
func (r *Reaper) Append(node *stream.StreamNode, unfinished **stream.StreamNode, e *evpool.EventRecord) {
	wasEmpty := node.Empty()
	e.StreamID = node.ID
	e.SetNext(nil)
	e.MarkInFlight()
	if node.InFlightTail == nil {
		node.InFlightHead = e
	} else {
		node.InFlightTail.SetNext(e)
	}
	node.InFlightTail = e
	if wasEmpty {
		stream.PushUnfinished(unfinished, node)
	}
}

// elapsedUS converts a driver-relative elapsed-ms reading anchored at
// r.Anchor into a CPU-epoch microsecond timestamp (spec.md §3, "world
// anchor").
func (r *Reaper) elapsedUS(ev collab.DriverEvent) (int64, error) {
	ms, err := r.Driver.ElapsedMS(r.Anchor.Event, ev)
	if err != nil {
		return 0, err
	}
	return r.Anchor.CPUMicros + int64(ms*1000), nil
}

// Reap is cleanup_finished_events (spec.md §4.3): for every stream on the
// unfinished list, drain completed events from the head of its in-flight
// queue — in submission order, so it stops at the first event the driver
// does not yet report ready — and either hand each one to the retired
// tail (if numThreadsAtSync threads are currently mid-sync and might
// still need it) or return it straight to the pool. Streams that drain to
// empty are unlinked from the unfinished list. Returns the count of
// events retired this sweep; the sync, sampler and profiler callers
// discard it.
func (r *Reaper) Reap(unfinished **stream.StreamNode, numThreadsAtSync int32) (int, error) {
	reaped := 0
	node := *unfinished
	for node != nil {
		next := node.NextUnfinished
		n, err := r.reapStream(node, unfinished, numThreadsAtSync)
		if err != nil {
			return reaped, err
		}
		reaped += n
		node = next
	}
	return reaped, nil
}

func (r *Reaper) reapStream(node *stream.StreamNode, unfinished **stream.StreamNode, numThreadsAtSync int32) (int, error) {
	reaped := 0
	for node.InFlightHead != nil {
		e := node.InFlightHead
		ready, err := r.Driver.QueryEvent(e.EndEvent)
		if err != nil {
			return reaped, err
		}
		if ready != collab.Ready {
			break // in-order completion: nothing further on this stream is ready either
		}

		startUS, err := r.elapsedUS(e.StartEvent)
		if err != nil {
			return reaped, err
		}
		endUS, err := r.elapsedUS(e.EndEvent)
		if err != nil {
			return reaped, err
		}
		e.StartTimeUS, e.EndTimeUS = startUS, endUS

		node.InFlightHead = e.Next()
		if node.InFlightHead == nil {
			node.InFlightTail = nil
		}
		e.SetNext(nil)

		r.emit(node, e)
		if r.Arbiter != nil {
			r.Arbiter.Decrement(r.Device)
		}

		if numThreadsAtSync > 0 {
			r.Retired.Append(e, numThreadsAtSync)
		} else {
			r.Pool.ReleaseEvent(e)
		}
		reaped++
	}
	if node.Empty() && stream.OnUnfinished(node) {
		stream.RemoveUnfinished(unfinished, node)
	}
	return reaped, nil
}

// emit traces the retiring kernel and folds its wall-clock duration into
// GPU_ACTIVITY_TIME (spec.md §6, "Metrics registered"); it is the one
// place C3 talks to the tracer and metric sink rather than just moving
// pointers around.
func (r *Reaper) emit(node *stream.StreamNode, e *evpool.EventRecord) {
	debug.Assert(e.EndTimeUS >= e.StartTimeUS, "retired event end precedes start")
	if r.Tracer != nil {
		r.Tracer.AppendWithTime(node.Channel, int(r.Device), node.ID, e.LauncherCCT, e.StartTimeUS)
		r.Tracer.AppendWithTime(node.Channel, int(r.Device), node.ID, e.LauncherCCT, e.EndTimeUS)
	}
	if r.Metrics != nil {
		dur := e.EndTimeUS - e.StartTimeUS
		r.Metrics.Increment(collab.GPUActivityTime, e.LauncherCCT, collab.IntValue(dur))
	}
}
