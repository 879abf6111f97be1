package equeue

import (
	"testing"

	"github.com/hpcgpu/blameshift/collab"
	"github.com/hpcgpu/blameshift/evpool"
	"github.com/hpcgpu/blameshift/stream"
)

// fakeDriver is a minimal collab.Driver double: every created event is
// "ready" unless its id is listed in notReady, and ElapsedMS returns the
// value set for the later event in elapsedMS (in ms) so tests can assert
// on exact microsecond math.
type fakeDriver struct {
	nextID    int
	elapsedMS map[collab.DriverEvent]float64
	notReady  map[collab.DriverEvent]bool
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{elapsedMS: map[collab.DriverEvent]float64{}, notReady: map[collab.DriverEvent]bool{}}
}

func (d *fakeDriver) CreateEvent() (collab.DriverEvent, error) {
	d.nextID++
	return collab.DriverEvent(d.nextID), nil
}
func (d *fakeDriver) DestroyEvent(collab.DriverEvent) error                     { return nil }
func (d *fakeDriver) RecordEvent(collab.DriverEvent, collab.StreamHandle) error { return nil }
func (d *fakeDriver) QueryEvent(ev collab.DriverEvent) (collab.Readiness, error) {
	if d.notReady[ev] {
		return collab.NotReady, nil
	}
	return collab.Ready, nil
}
func (d *fakeDriver) ElapsedMS(a, b collab.DriverEvent) (float64, error) {
	return d.elapsedMS[b], nil
}

type fakeTracer struct{ points []int64 }

func (t *fakeTracer) AppendWithTime(_ collab.ChannelHandle, _, _ int, _ collab.CCTNode, timeUS int64) {
	t.points = append(t.points, timeUS)
}
func (t *fakeTracer) OpenChannel(int, int) collab.ChannelHandle { return 0 }
func (t *fakeTracer) CloseChannel(collab.ChannelHandle)         {}

type fakeSink struct{ total float64 }

func (s *fakeSink) Increment(id collab.MetricID, _ collab.CCTNode, v collab.MetricValue) {
	if id == collab.GPUActivityTime {
		s.total += float64(v.Int)
	}
}

func newTestReaper(t *testing.T, drv *fakeDriver) (*Reaper, *evpool.Pool) {
	t.Helper()
	pool := evpool.New(nil, drv)
	return &Reaper{
		Driver:  drv,
		Tracer:  &fakeTracer{},
		Metrics: &fakeSink{},
		Pool:    pool,
		Retired: &RetiredTail{},
		Anchor:  &collab.WorldAnchor{CPUMicros: 0},
	}, pool
}

func TestReapRetiresInOrderAndStopsAtFirstNotReady(t *testing.T) {
	drv := newFakeDriver()
	r, pool := newTestReaper(t, drv)

	node := &stream.StreamNode{ID: 32}
	var unfinished *stream.StreamNode

	e1, err := pool.AcquireEvent()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	drv.elapsedMS[e1.StartEvent] = 1
	drv.elapsedMS[e1.EndEvent] = 2
	r.Append(node, &unfinished, e1)

	e2, err := pool.AcquireEvent()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	drv.elapsedMS[e2.StartEvent] = 3
	drv.elapsedMS[e2.EndEvent] = 4
	drv.notReady[e2.EndEvent] = true
	r.Append(node, &unfinished, e2)

	if unfinished != node {
		t.Fatalf("expected stream on unfinished list after append")
	}

	n, err := r.Reap(&unfinished, 0)
	if err != nil {
		t.Fatalf("reap: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected exactly 1 event reaped (second not ready), got %d", n)
	}
	if node.InFlightHead != e2 {
		t.Fatalf("expected e2 to remain head of in-flight queue")
	}
	if unfinished != node {
		t.Fatalf("stream must stay on unfinished list while work remains")
	}

	drv.notReady[e2.EndEvent] = false
	n, err = r.Reap(&unfinished, 0)
	if err != nil {
		t.Fatalf("reap: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected second event reaped, got %d", n)
	}
	if unfinished != nil {
		t.Fatalf("expected stream removed from unfinished list once drained")
	}
}

func TestReapWithWaitersAppendsToRetiredTailInsteadOfFreeing(t *testing.T) {
	drv := newFakeDriver()
	r, pool := newTestReaper(t, drv)

	node := &stream.StreamNode{ID: 32}
	var unfinished *stream.StreamNode

	e, err := pool.AcquireEvent()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	drv.elapsedMS[e.StartEvent] = 10
	drv.elapsedMS[e.EndEvent] = 20
	r.Append(node, &unfinished, e)

	liveBefore := pool.EventsLive()
	if _, err := r.Reap(&unfinished, 2); err != nil {
		t.Fatalf("reap: %v", err)
	}
	if pool.EventsLive() != liveBefore {
		t.Fatalf("event must not return to the pool while ref_count > 0")
	}
	if !e.IsRetired() {
		t.Fatalf("expected event marked retired")
	}
	if e.RefCount != 2 {
		t.Fatalf("expected ref_count == num_threads_at_sync (2), got %d", e.RefCount)
	}
	if got := r.Retired.Snapshot(); got != e {
		t.Fatalf("expected retired tail to point at the freshly retired event")
	}
}

func TestRetiredTailWalkDecrementsAndFreesAtZero(t *testing.T) {
	drv := newFakeDriver()
	_, pool := newTestReaper(t, drv)
	rt := &RetiredTail{}

	e1, _ := pool.AcquireEvent()
	e2, _ := pool.AcquireEvent()
	rt.Append(e1, 1)
	rt.Append(e2, 1)

	liveBefore := pool.EventsLive()
	var visited []*evpool.EventRecord
	rt.Walk(nil, pool, func(e *evpool.EventRecord) { visited = append(visited, e) })

	if len(visited) != 2 {
		t.Fatalf("expected both events visited from nil (sentinel) reference, got %d", len(visited))
	}
	if pool.EventsLive() != liveBefore-2 {
		t.Fatalf("both events should have been freed back to the pool once ref_count hit 0")
	}
}

func TestRetiredTailWalkFromMidpointSkipsEarlierEntries(t *testing.T) {
	drv := newFakeDriver()
	_, pool := newTestReaper(t, drv)
	rt := &RetiredTail{}

	e1, _ := pool.AcquireEvent()
	e2, _ := pool.AcquireEvent()
	rt.Append(e1, 1)

	// A second waiter snapshots after e1 retired but takes its reference at
	// e1 itself, protecting it from being freed while it is blocked.
	ref := rt.Snapshot()
	if ref != e1 {
		t.Fatalf("expected snapshot to be the current tail e1, got %v", ref)
	}
	rt.Hold(ref)
	if e1.RefCount != 2 {
		t.Fatalf("expected Hold to bump e1's ref_count to 2, got %d", e1.RefCount)
	}
	rt.Append(e2, 1)

	var visited []*evpool.EventRecord
	rt.Walk(ref, pool, func(e *evpool.EventRecord) { visited = append(visited, e) })

	if len(visited) != 1 || visited[0] != e2 {
		t.Fatalf("expected walk from ref to visit only e2, got %v", visited)
	}
	if e1.RefCount != 1 {
		t.Fatalf("expected e1's ref_count back to 1 (hold released, not visited), got %d", e1.RefCount)
	}
}
