package main

import (
	"sync"
	"time"

	"github.com/hpcgpu/blameshift/cmn/mono"
	"github.com/hpcgpu/blameshift/collab"
	"github.com/hpcgpu/blameshift/profiler"
)

// fakeDriver stands in for collab.Driver: event timestamps are mono-clock
// reads taken at RecordEvent time, the way a real driver's event would
// capture the GPU clock at the point it is enqueued. ElapsedMS converts the
// recorded gap back to milliseconds, mirroring what a CUDA-alike
// cudaEventElapsedTime would return.
type fakeDriver struct {
	mu     sync.Mutex
	nextID collab.DriverEvent
	at     map[collab.DriverEvent]int64
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{at: map[collab.DriverEvent]int64{}}
}

func (d *fakeDriver) CreateEvent() (collab.DriverEvent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID, nil
}

func (d *fakeDriver) DestroyEvent(collab.DriverEvent) error { return nil }

func (d *fakeDriver) RecordEvent(ev collab.DriverEvent, _ collab.StreamHandle) error {
	d.mu.Lock()
	d.at[ev] = mono.NanoTime()
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) QueryEvent(collab.DriverEvent) (collab.Readiness, error) {
	return collab.Ready, nil
}

func (d *fakeDriver) ElapsedMS(a, b collab.DriverEvent) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delta := d.at[b] - d.at[a]
	return float64(delta) / float64(time.Millisecond), nil
}

// fakeSampler stands in for collab.CallPathSampler: a real unwinder walks
// the interrupted thread's registers, so here one dense node ID is minted
// per call, good enough to exercise the core's bookkeeping.
type fakeSampler struct {
	mu   sync.Mutex
	next collab.CCTNode
}

func (s *fakeSampler) SampleCallPath(*collab.RegisterContext, collab.MetricID, collab.MetricValue, int, bool) collab.CCTNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return s.next
}

// fakeDuplicator stands in for collab.StreamDuplicator: a real runtime
// copies the launching frame into the stream's private CCT channel; here
// it just echoes the node, which is all LaunchKernel's bookkeeping needs.
type fakeDuplicator struct{}

func (fakeDuplicator) DuplicateToStream(_ collab.ChannelHandle, _ *collab.RegisterContext, node collab.CCTNode) collab.CCTNode {
	return node
}

// fakeTracer stands in for collab.Tracer: it drops every record rather
// than writing a real trace bundle, since this demo's point is exercising
// the attribution engine, not producing trace output worth persisting.
type fakeTracer struct {
	mu   sync.Mutex
	next collab.ChannelHandle
}

func (t *fakeTracer) OpenChannel(int, int) collab.ChannelHandle {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	return t.next
}
func (*fakeTracer) CloseChannel(collab.ChannelHandle)                                    {}
func (*fakeTracer) AppendWithTime(collab.ChannelHandle, int, int, collab.CCTNode, int64) {}

func newFakeCollaborators() profiler.Collaborators {
	var mu sync.Mutex
	return profiler.Collaborators{
		Driver:     newFakeDriver(),
		Sampler:    &fakeSampler{},
		Duplicator: fakeDuplicator{},
		Tracer:     &fakeTracer{},
		Lock:       func() func() { mu.Lock(); return mu.Unlock },
	}
}
