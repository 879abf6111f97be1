// Package blamesync implements C6, the sync prologue/epilogue pair every
// blocking driver API (stream synchronize, event synchronize, device
// synchronize, synchronous memcpy) wraps itself in. It is the one place
// that ties the reap sweep (equeue), the retired tail (equeue), and the
// shared-blame engine (blame) together into the CPU_IDLE / GPU_IDLE
// bucket computation (spec.md §4.6).
package blamesync

import (
	"sync/atomic"

	"github.com/hpcgpu/blameshift/blame"
	"github.com/hpcgpu/blameshift/cmn/mono"
	"github.com/hpcgpu/blameshift/cmn/reentrancy"
	"github.com/hpcgpu/blameshift/collab"
	"github.com/hpcgpu/blameshift/equeue"
	"github.com/hpcgpu/blameshift/evpool"
	"github.com/hpcgpu/blameshift/stream"
)

// Sync bundles the collaborators and shared state a sync prologue/epilogue
// pair needs. One Sync is shared by every thread of one profiled process
// (spec.md §9 Design Notes: "a single explicit profiler state value");
// NumThreadsAtSync is the only field the prologue/epilogue mutate outside
// the GPU lock, hence the atomic type.
type Sync struct {
	Reaper  *equeue.Reaper
	Engine  *blame.Engine
	Sampler collab.CallPathSampler

	// Lock is the GPU lock: the single mutex serializing the reap sweep,
	// the retired-tail walk, and the pool (spec.md §5). Every prologue and
	// epilogue call acquires and releases it around exactly the steps the
	// spec marks "under the GPU lock" — never across the real blocking
	// driver call in between.
	Lock func() (unlock func())

	// NumThreadsAtSync is shared with sampler.Sampler's field of the same
	// name — both the sync prologue/epilogue and the signal-handler
	// sampler need the one true process-wide count (spec.md §4.3 step 3,
	// §4.8 step 2), so the profiler package allocates a single counter and
	// points both at it rather than each owning its own.
	NumThreadsAtSync *atomic.Int32

	Unfinished **stream.StreamNode
}

// Call is one synchronizing thread's state between its prologue and its
// epilogue; the caller (an interception shim) owns its lifetime.
type Call struct {
	launcherCCT collab.CCTNode
	ref         *evpool.EventRecord
	syncStartUS int64
	exitAtSync  func()
}

// Prologue is spec.md §4.6's entry sequence, steps 1-7. flag is the
// calling thread's own "at sync" cell (spec.md §9: a thread-local cell
// with explicit scoping); Call.exitAtSync closes it, and the caller must
// invoke Epilogue exactly once to release it (step 7).
func (s *Sync) Prologue(ctx *collab.RegisterContext, flag *reentrancy.Flag, skipInner int) *Call {
	c := &Call{}
	if s.Sampler != nil {
		c.launcherCCT = s.Sampler.SampleCallPath(ctx, collab.CPUIdle, collab.IntValue(0), skipInner, true)
	}
	c.exitAtSync = flag.Enter()

	unlock := s.Lock()
	s.Reaper.Reap(s.Unfinished, s.numThreadsAtSync())
	c.ref = s.Reaper.Retired.Snapshot()
	s.Reaper.Retired.Hold(c.ref)
	unlock()

	if s.NumThreadsAtSync != nil {
		s.NumThreadsAtSync.Add(1)
	}
	c.syncStartUS = mono.NowMicros()
	return c
}

// numThreadsAtSync reads the shared counter, tolerating a nil pointer in
// tests that don't wire one up.
func (s *Sync) numThreadsAtSync() int32 {
	if s.NumThreadsAtSync == nil {
		return 0
	}
	return s.NumThreadsAtSync.Load()
}

// Epilogue is spec.md §4.6's exit sequence, steps 1-7, run after the real
// blocking driver call returns. mask identifies which streams the call
// actually waited on.
func (s *Sync) Epilogue(c *Call, mask stream.Mask, metrics collab.MetricSink) {
	unlock := s.Lock()
	s.Reaper.Reap(s.Unfinished, s.numThreadsAtSync())
	lastKernelEndUS := s.Engine.Run(s.Reaper.Retired, c.ref, c.syncStartUS, mask)
	unlock()

	if s.NumThreadsAtSync != nil {
		s.NumThreadsAtSync.Add(-1)
	}
	syncEndUS := mono.NowMicros()

	var cpuIdle, gpuIdle int64
	if lastKernelEndUS == 0 {
		gpuIdle = syncEndUS - c.syncStartUS
	} else {
		clamped := lastKernelEndUS
		if clamped > syncEndUS {
			clamped = syncEndUS
		}
		cpuIdle = clamped - c.syncStartUS
		gpuIdle = syncEndUS - clamped
	}

	if metrics != nil {
		metrics.Increment(collab.CPUIdle, c.launcherCCT, collab.IntValue(cpuIdle))
		metrics.Increment(collab.GPUIdleCause, c.launcherCCT, collab.IntValue(gpuIdle))
	}
	c.exitAtSync() // step 7
}
