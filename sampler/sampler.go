// Package sampler implements C8, the async-signal-safe timer sampler.
// Invoked from signal/interrupt context (possibly on a thread that holds
// other locks the driver uses), it must never block and must bail out
// immediately if the interrupted thread is itself mid-shim (spec.md §4.8).
package sampler

import (
	"sync/atomic"
	"time"

	"github.com/hpcgpu/blameshift/cmn/reentrancy"
	"github.com/hpcgpu/blameshift/collab"
	"github.com/hpcgpu/blameshift/equeue"
	"github.com/hpcgpu/blameshift/stream"
)

// outstandingReader is the one arbiter method the sampler needs, kept
// narrow for the same reason equeue's outstandingCounter is: this
// package should never need to import golang.org/x/sys/unix just to take
// a sample.
type outstandingReader interface {
	Outstanding(collab.DeviceID) (count int64, open bool)
}

// cachedReap is the "opportunistic reap" state spec.md §4.8 step 2
// describes: either do a full reap now, or reuse a recent snapshot if
// staleness is within the configured budget, trading a little accuracy
// for bounding the signal handler's worst-case hold time.
type cachedReap struct {
	at              time.Time
	numUnfinished   int
	oldestPerStream map[int]collab.CCTNode
}

// Sampler bundles C8's collaborators. One Sampler is shared process-wide,
// same as blamesync.Sync (spec.md §9, "a single explicit profiler state
// value").
type Sampler struct {
	Reaper  *equeue.Reaper
	Metrics collab.MetricSink
	Arbiter outstandingReader // nil or closed region => shared blaming effectively disabled
	Device  collab.DeviceID

	Lock func() (unlock func())

	Unfinished **stream.StreamNode

	// NumThreadsAtSync is the same counter blamesync.Sync.NumThreadsAtSync
	// tracks — shared, not owned, by the sampler; the reap sweep's
	// retire-vs-free decision (spec.md §4.3 step 3) must see the true
	// process-wide count, not a sampler-local guess.
	NumThreadsAtSync *atomic.Int32

	// Staleness bounds how old a cached reap snapshot may be before
	// Sample forces a fresh one (spec.md §4.8 step 2).
	Staleness time.Duration

	// Dropped, if set, is called every time Sample bails out because the
	// interrupted thread was already at-sync (spec.md §7: a dropped
	// sample is counted, not silently discarded).
	Dropped func()

	cache cachedReap
}

// Sample is spec.md §4.8 in full. flag is the interrupted thread's own
// "at sync" cell; sampledNode is the CPU call path already captured by
// the collaborator's signal handler (sampling it is the collaborator's
// job, out of scope here — spec.md §1); delta is the wall-clock increment
// to attribute.
func (s *Sampler) Sample(flag *reentrancy.Flag, sampledNode collab.CCTNode, delta time.Duration) {
	if flag.IsSet() {
		if s.Dropped != nil {
			s.Dropped()
		}
		return // the interrupted thread is already inside a shim or a sync call
	}

	unlock := s.Lock()
	defer unlock()

	numUnfinished, oldestPerStream := s.reapOrReuse()

	if numUnfinished > 0 {
		s.creditOverlap(sampledNode, delta, numUnfinished, oldestPerStream)
		return
	}

	if out, open := s.outstanding(); open {
		if out > 0 {
			return // another process is using the GPU; not idle
		}
	}
	if s.Metrics != nil {
		s.Metrics.Increment(collab.GPUIdleCause, sampledNode, collab.IntValue(delta.Microseconds()))
	}
}

func (s *Sampler) outstanding() (int64, bool) {
	if s.Arbiter == nil {
		return 0, false
	}
	return s.Arbiter.Outstanding(s.Device)
}

func (s *Sampler) creditOverlap(sampledNode collab.CCTNode, delta time.Duration, numUnfinished int, oldestPerStream map[int]collab.CCTNode) {
	if s.Metrics == nil {
		return
	}
	s.Metrics.Increment(collab.OverlappedCPU, sampledNode, collab.RealValue(float64(delta.Microseconds())))
	share := float64(delta.Microseconds()) / float64(numUnfinished)
	for _, node := range oldestPerStream {
		s.Metrics.Increment(collab.OverlappedGPU, node, collab.RealValue(share))
	}
}

// reapOrReuse implements the "opportunistic reap" trade-off: a full reap
// (with its bounded, reap-cost-sized hold time) if the cache is stale or
// empty, otherwise the last snapshot.
func (s *Sampler) reapOrReuse() (int, map[int]collab.CCTNode) {
	if time.Since(s.cache.at) < s.Staleness && s.cache.oldestPerStream != nil {
		return s.cache.numUnfinished, s.cache.oldestPerStream
	}

	var n32 int32
	if s.NumThreadsAtSync != nil {
		n32 = s.NumThreadsAtSync.Load()
	}
	s.Reaper.Reap(s.Unfinished, n32)

	oldest := map[int]collab.CCTNode{}
	n := 0
	for node := *s.Unfinished; node != nil; node = node.NextUnfinished {
		n++
		if node.InFlightHead != nil {
			oldest[node.ID] = node.InFlightHead.LauncherCCT
		}
	}
	s.cache = cachedReap{at: time.Now(), numUnfinished: n, oldestPerStream: oldest}
	return n, oldest
}
