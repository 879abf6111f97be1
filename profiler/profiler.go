// Package profiler is the top-level orchestrator: it owns the single
// explicit profiler-state value spec.md §9's Design Notes call for,
// constructing and wiring every component — registry, pool, arbiter,
// reaper, blame engine, sync, sampler, shims, metrics — exactly once per
// profiled process, and registering the housekeeping backstop reap job
// that sweeps completed in-flight events even when no thread happens to
// call a blocking API for a while.
package profiler

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hpcgpu/blameshift/arbiter"
	"github.com/hpcgpu/blameshift/blame"
	"github.com/hpcgpu/blameshift/blamesync"
	"github.com/hpcgpu/blameshift/cmn/rom"
	"github.com/hpcgpu/blameshift/collab"
	"github.com/hpcgpu/blameshift/equeue"
	"github.com/hpcgpu/blameshift/evpool"
	"github.com/hpcgpu/blameshift/hk"
	"github.com/hpcgpu/blameshift/intercept"
	"github.com/hpcgpu/blameshift/metrics"
	"github.com/hpcgpu/blameshift/sampler"
	"github.com/hpcgpu/blameshift/stream"
)

// Collaborators is every interface the core needs from outside this
// module (spec.md §6 "Consumed from collaborators"), supplied once at
// construction.
type Collaborators struct {
	Driver     collab.Driver
	Sampler    collab.CallPathSampler
	Duplicator collab.StreamDuplicator
	Tracer     collab.Tracer
	Lock       func() (unlock func())
}

// State is the single explicit profiler-state value: every package this
// module defines is reachable from here, and nothing in the core keeps
// its own process-global singleton (spec.md §9).
type State struct {
	Registry *stream.Registry
	Pool     *evpool.Pool
	Arbiter  *arbiter.Arbiter
	Reaper   *equeue.Reaper
	Engine   *blame.Engine
	Sync     *blamesync.Sync
	Sampler  *sampler.Sampler
	Shims    *intercept.Shims
	Metrics  *metrics.Registry

	numThreadsAtSync *atomic.Int32
	unfinished       *stream.StreamNode
	hk               *hk.Housekeeper
	device           collab.DeviceID
}

// New constructs and wires a full profiler state for one device. Call
// Start to begin the housekeeping backstop before any stream is created.
func New(device collab.DeviceID, reg prometheus.Registerer, col Collaborators) *State {
	anchor := &collab.WorldAnchor{}
	pool := evpool.New(nil, col.Driver)
	registry := stream.New()
	numThreadsAtSync := &atomic.Int32{}

	var arb *arbiter.Arbiter
	if rom.Rom.SharedBlaming() {
		arb = arbiter.New()
	}

	s := &State{
		Registry:         registry,
		Pool:             pool,
		Arbiter:          arb,
		numThreadsAtSync: numThreadsAtSync,
		device:           device,
		hk:               hk.New(),
	}
	s.Metrics = metrics.New(reg, deviceLabel(device))

	reaper := &equeue.Reaper{
		Driver:  col.Driver,
		Tracer:  col.Tracer,
		Metrics: s.Metrics,
		Pool:    pool,
		Retired: &equeue.RetiredTail{},
		Anchor:  anchor,
		Device:  device,
	}
	if arb != nil {
		reaper.Arbiter = arb
	}
	s.Reaper = reaper

	s.Engine = &blame.Engine{Pool: pool, Metrics: s.Metrics}

	s.Sync = &blamesync.Sync{
		Reaper:           reaper,
		Engine:           s.Engine,
		Sampler:          col.Sampler,
		Lock:             col.Lock,
		NumThreadsAtSync: numThreadsAtSync,
		Unfinished:       &s.unfinished,
	}

	smp := &sampler.Sampler{
		Reaper:           reaper,
		Metrics:          s.Metrics,
		Device:           device,
		Lock:             col.Lock,
		Unfinished:       &s.unfinished,
		NumThreadsAtSync: numThreadsAtSync,
		Staleness:        rom.Rom.SamplerReapStaleness(),
		Dropped:          s.Metrics.DroppedSample,
	}
	if arb != nil {
		smp.Arbiter = arb
	}
	s.Sampler = smp

	s.Shims = &intercept.Shims{
		Registry:   registry,
		Pool:       pool,
		Reaper:     reaper,
		Sync:       s.Sync,
		Arbiter:    arb,
		Sampler:    col.Sampler,
		Duplicator: col.Duplicator,
		Tracer:     col.Tracer,
		Metrics:    s.Metrics,
		Driver:     col.Driver,
		Anchor:     anchor,
		Device:     device,
		Lock:       col.Lock,
		Unfinished: &s.unfinished,
	}

	return s
}

func deviceLabel(d collab.DeviceID) string {
	return strconv.Itoa(int(d))
}

// Start registers the backstop reap housekeeping job and begins the
// scheduler loop on its own goroutine. backstopReap bounds how long
// in-flight events can go unswept when no thread happens to call a
// blocking API for a while — without this, a long gap between syncs on
// an otherwise-idle stream would leave completed events undetected until
// the next real sync call finally reaps them.
func (s *State) Start(backstopReap time.Duration) {
	s.hk.Register("blameshift-backstop-reap", func(time.Time) time.Duration {
		unlock := s.Sync.Lock()
		s.Reaper.Reap(&s.unfinished, s.numThreadsAtSync.Load())
		unlock()
		return backstopReap
	}, backstopReap)
	go s.hk.Run()
	s.hk.WaitStarted()
}

// Stop ends the housekeeping loop; call during process/context teardown.
func (s *State) Stop() {
	s.hk.Stop()
}

// Close is spec.md §4.1's close_all: force-drain and tear down every
// still-live stream (same path StreamDestroy uses for one stream at a
// time, so each stream's in-flight events retire and get blamed exactly
// as they would for an explicit synchronize), then release the
// cross-process arbiter region. Stops housekeeping first so the backstop
// reap can't race the teardown walk. Per spec.md §8's end-to-end
// invariant, after Close returns the retired tail and every stream's
// in-flight queue are empty.
func (s *State) Close() error {
	s.Stop()

	for _, handle := range s.Registry.Handles() {
		if err := s.Shims.StreamDestroy(handle, func() error { return nil }); err != nil {
			return err
		}
	}

	if s.Arbiter != nil {
		return s.Arbiter.Close()
	}
	return nil
}
