// Package intercept implements C5, the interception shims wrapping the
// driver/runtime API surface: stream create/destroy, kernel launch,
// asynchronous memcpy, and the synchronous (blocking) calls that delegate
// to blamesync's prologue/epilogue pair (spec.md §4.5). Every exported
// method here wraps a real driver call the caller supplies as a closure —
// this package never talks to the driver directly except through
// collab.Driver, so it can be linked against HIP, CUDA-alike, or a test
// fake without change.
package intercept

import (
	"time"

	"github.com/hpcgpu/blameshift/arbiter"
	"github.com/hpcgpu/blameshift/blamesync"
	"github.com/hpcgpu/blameshift/cmn/cos"
	"github.com/hpcgpu/blameshift/cmn/mono"
	"github.com/hpcgpu/blameshift/cmn/reentrancy"
	"github.com/hpcgpu/blameshift/collab"
	"github.com/hpcgpu/blameshift/equeue"
	"github.com/hpcgpu/blameshift/evpool"
	"github.com/hpcgpu/blameshift/stream"
)

// CopyDirection distinguishes the two byte-counted memcpy metrics
// (spec.md §6, H_TO_D_BYTES / D_TO_H_BYTES). Any other direction
// (device-to-device, host-to-host) is not metered.
type CopyDirection int

const (
	HostToDevice CopyDirection = iota
	DeviceToHost
	OtherDirection
)

// Shims bundles every collaborator the five intercepted operations need.
// One Shims is shared process-wide, same as the Sync and Sampler it wraps
// (spec.md §9, "a single explicit profiler state value").
type Shims struct {
	Registry   *stream.Registry
	Pool       *evpool.Pool
	Reaper     *equeue.Reaper
	Sync       *blamesync.Sync
	Arbiter    *arbiter.Arbiter
	Sampler    collab.CallPathSampler
	Duplicator collab.StreamDuplicator
	Tracer     collab.Tracer
	Metrics    collab.MetricSink
	Driver     collab.Driver
	Anchor     *collab.WorldAnchor
	Device     collab.DeviceID

	// Lock is the GPU lock guarding the pool, the per-stream queues, and
	// the registry's unfinished-streams list (spec.md §5).
	Lock func() (unlock func())

	Unfinished **stream.StreamNode
}

// StreamCreate is spec.md §4.5 "Stream create": allocate a dense ID,
// lazily record the world-start anchor and open the cross-process IPC
// region on the very first stream this process ever creates, and open the
// stream's private trace channel.
func (s *Shims) StreamCreate(handle collab.StreamHandle) (*stream.StreamNode, error) {
	node, isFirst, err := s.Registry.Insert(handle, collab.ChannelHandle(0))
	if err != nil {
		return nil, err
	}
	if s.Tracer != nil {
		s.Registry.Lock()
		node.Channel = s.Tracer.OpenChannel(int(s.Device), node.ID)
		s.Registry.Unlock()
	}
	if isFirst {
		if err := s.anchorWorld(); err != nil {
			return node, err
		}
		if s.Arbiter != nil {
			s.Arbiter.Open(s.Device)
		}
	}
	return node, nil
}

// anchorWorld records the (driver_event, cpu_microseconds) pair every
// elapsed-time conversion in this process is anchored against (spec.md
// §3, "World-start anchor"). Recorded on the null/default stream so it
// orders before any work a caller could possibly have submitted before
// its first stream existed.
func (s *Shims) anchorWorld() error {
	ev, err := s.Driver.CreateEvent()
	if err != nil {
		return cos.NewErrDriverFatal("anchor: create event", err)
	}
	if err := s.Driver.RecordEvent(ev, collab.NullStream); err != nil {
		return cos.NewErrDriverFatal("anchor: record event", err)
	}
	s.Anchor.Event = ev
	s.Anchor.CPUMicros = mono.NowMicros()
	s.Anchor.AnchoredAt = time.Now()
	return nil
}

// StreamDestroy is spec.md §4.5 "Stream destroy": force-drain the stream
// through the same sync prologue/epilogue path a real synchronize call
// uses (so any in-flight kernels are retired and blamed exactly as they
// would be for an explicit wait), then close its trace channel and unlink
// it from the registry. realDestroy performs the actual driver teardown;
// it runs between the prologue and epilogue, same as every other blocking
// call this package wraps.
func (s *Shims) StreamDestroy(handle collab.StreamHandle, realDestroy func() error) error {
	node, ok := s.Registry.Lookup(handle)
	if !ok {
		return &cos.ErrUnknownStream{Handle: uintptr(handle)}
	}

	var flag reentrancy.Flag
	call := s.Sync.Prologue(nil, &flag, 1)
	destroyErr := realDestroy()
	s.Sync.Epilogue(call, stream.OnStream(node.ID), s.Metrics)
	if destroyErr != nil {
		return destroyErr
	}

	if s.Tracer != nil {
		s.Tracer.CloseChannel(node.Channel)
	}
	s.Registry.Remove(handle)
	return nil
}

// LaunchKernel is spec.md §4.5 "Kernel launch" in full. ctx is the
// register snapshot for the unwinder; launch invokes the real driver
// launch API. Errors from event recording are treated as driver-fatal
// (spec.md §7: the profiler cannot produce correct results with a missing
// event); an error from launch itself passes through unchanged, with the
// event record and cross-process counter rolled back as if the launch
// had never been submitted.
func (s *Shims) LaunchKernel(handle collab.StreamHandle, ctx *collab.RegisterContext, skipInner int, launch func() error) error {
	var flag reentrancy.Flag
	exit := flag.Enter()
	defer exit()

	unlock := s.Lock()
	defer unlock()

	node, ok := s.Registry.Lookup(handle)
	if !ok {
		return &cos.ErrUnknownStream{Handle: uintptr(handle)}
	}

	var launcherCCT collab.CCTNode
	if s.Sampler != nil {
		launcherCCT = s.Sampler.SampleCallPath(ctx, collab.GPUActivityTime, collab.IntValue(0), skipInner, false)
	}
	var streamLauncherCCT collab.CCTNode
	if s.Duplicator != nil {
		streamLauncherCCT = s.Duplicator.DuplicateToStream(node.Channel, ctx, launcherCCT)
	}

	e, err := s.Pool.AcquireEvent()
	if err != nil {
		return err
	}
	e.LauncherCCT = launcherCCT
	e.StreamLauncherCCT = streamLauncherCCT

	if err := s.Driver.RecordEvent(e.StartEvent, handle); err != nil {
		s.Pool.ReleaseEvent(e)
		return cos.NewErrDriverFatal("launch: record start event", err)
	}

	if s.Arbiter != nil {
		s.Arbiter.Increment(s.Device)
	}

	if err := launch(); err != nil {
		if s.Arbiter != nil {
			s.Arbiter.Decrement(s.Device)
		}
		s.Pool.ReleaseEvent(e)
		return err
	}

	if err := s.Driver.RecordEvent(e.EndEvent, handle); err != nil {
		return cos.NewErrDriverFatal("launch: record end event", err)
	}

	s.Reaper.Append(node, s.Unfinished, e)
	return nil
}

// AsyncMemcpy is spec.md §4.5 "Asynchronous memcpy": the same event
// bracketing as a kernel launch, plus an immediate byte-count metric
// (H_TO_D_BYTES/D_TO_H_BYTES) credited to the launching call path — those
// two metrics measure bytes requested, not GPU-attributed time, so they
// are not deferred to retirement the way GPU_ACTIVITY_TIME is.
func (s *Shims) AsyncMemcpy(handle collab.StreamHandle, ctx *collab.RegisterContext, skipInner int, nbytes int64, dir CopyDirection, doCopy func() error) error {
	var flag reentrancy.Flag
	exit := flag.Enter()
	defer exit()

	unlock := s.Lock()
	defer unlock()

	node, ok := s.Registry.Lookup(handle)
	if !ok {
		return &cos.ErrUnknownStream{Handle: uintptr(handle)}
	}

	var launcherCCT collab.CCTNode
	if s.Sampler != nil {
		launcherCCT = s.Sampler.SampleCallPath(ctx, collab.GPUActivityTime, collab.IntValue(0), skipInner, false)
	}
	var streamLauncherCCT collab.CCTNode
	if s.Duplicator != nil {
		streamLauncherCCT = s.Duplicator.DuplicateToStream(node.Channel, ctx, launcherCCT)
	}

	e, err := s.Pool.AcquireEvent()
	if err != nil {
		return err
	}
	e.LauncherCCT = launcherCCT
	e.StreamLauncherCCT = streamLauncherCCT

	if err := s.Driver.RecordEvent(e.StartEvent, handle); err != nil {
		s.Pool.ReleaseEvent(e)
		return cos.NewErrDriverFatal("memcpy: record start event", err)
	}

	if s.Arbiter != nil {
		s.Arbiter.Increment(s.Device)
	}

	if err := doCopy(); err != nil {
		if s.Arbiter != nil {
			s.Arbiter.Decrement(s.Device)
		}
		s.Pool.ReleaseEvent(e)
		return err
	}

	if err := s.Driver.RecordEvent(e.EndEvent, handle); err != nil {
		return cos.NewErrDriverFatal("memcpy: record end event", err)
	}

	if s.Metrics != nil {
		switch dir {
		case HostToDevice:
			s.Metrics.Increment(collab.HToDBytes, launcherCCT, collab.IntValue(nbytes))
		case DeviceToHost:
			s.Metrics.Increment(collab.DToHBytes, launcherCCT, collab.IntValue(nbytes))
		}
	}

	s.Reaper.Append(node, s.Unfinished, e)
	return nil
}

// SyncBlocking is spec.md §4.5's last shim: every blocking API (stream
// synchronize, event synchronize, device synchronize, synchronous memcpy)
// delegates entirely to blamesync's prologue/epilogue, differing only in
// which streams mask identifies as waited-on.
func (s *Shims) SyncBlocking(ctx *collab.RegisterContext, skipInner int, mask stream.Mask, flag *reentrancy.Flag, call func() error) error {
	c := s.Sync.Prologue(ctx, flag, skipInner)
	err := call()
	s.Sync.Epilogue(c, mask, s.Metrics)
	return err
}
