package profiler

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hpcgpu/blameshift/cmn/reentrancy"
	"github.com/hpcgpu/blameshift/collab"
	"github.com/hpcgpu/blameshift/stream"
)

type fakeDriver struct{ next collab.DriverEvent }

func (d *fakeDriver) CreateEvent() (collab.DriverEvent, error)                  { d.next++; return d.next, nil }
func (d *fakeDriver) DestroyEvent(collab.DriverEvent) error                     { return nil }
func (d *fakeDriver) RecordEvent(collab.DriverEvent, collab.StreamHandle) error { return nil }
func (d *fakeDriver) QueryEvent(collab.DriverEvent) (collab.Readiness, error) {
	return collab.Ready, nil
}
func (d *fakeDriver) ElapsedMS(a, b collab.DriverEvent) (float64, error) { return 0, nil }

// TestNewWiresEveryComponent covers the integration the profiler package
// exists for: a stream created and a kernel launched through the wired
// Shims retires cleanly through the wired Sync's blocking path.
func TestNewWiresEveryComponent(t *testing.T) {
	var mu sync.Mutex
	col := Collaborators{
		Driver: &fakeDriver{},
		Lock:   func() func() { mu.Lock(); return mu.Unlock },
	}
	reg := prometheus.NewRegistry()
	s := New(collab.DeviceID(0), reg, col)

	node, err := s.Shims.StreamCreate(collab.StreamHandle(1))
	if err != nil {
		t.Fatalf("stream create: %v", err)
	}
	if s.Reaper.Anchor.Event == 0 {
		t.Fatalf("expected world anchor recorded on first stream create")
	}

	if err := s.Shims.LaunchKernel(collab.StreamHandle(1), nil, 0, func() error { return nil }); err != nil {
		t.Fatalf("launch: %v", err)
	}
	if node.Empty() {
		t.Fatalf("expected an in-flight event after launch")
	}

	var flag reentrancy.Flag
	if err := s.Shims.SyncBlocking(nil, 0, stream.AllStreams, &flag, func() error { return nil }); err != nil {
		t.Fatalf("sync blocking: %v", err)
	}
	if !node.Empty() {
		t.Fatalf("expected the launched kernel retired after a blocking sync")
	}
}

// TestCloseDrainsEveryStream covers spec.md §8's close_all invariant: after
// Close returns, every stream's in-flight queue is empty (the retired tail
// drains along with it, since Close's per-stream drain runs the ordinary
// sync prologue/epilogue that already retires anything still in flight).
func TestCloseDrainsEveryStream(t *testing.T) {
	var mu sync.Mutex
	col := Collaborators{
		Driver: &fakeDriver{},
		Lock:   func() func() { mu.Lock(); return mu.Unlock },
	}
	reg := prometheus.NewRegistry()
	s := New(collab.DeviceID(0), reg, col)
	s.Start(time.Hour)

	var nodes []*stream.StreamNode
	for i := 1; i <= 3; i++ {
		node, err := s.Shims.StreamCreate(collab.StreamHandle(i))
		if err != nil {
			t.Fatalf("stream create %d: %v", i, err)
		}
		if err := s.Shims.LaunchKernel(collab.StreamHandle(i), nil, 0, func() error { return nil }); err != nil {
			t.Fatalf("launch on stream %d: %v", i, err)
		}
		nodes = append(nodes, node)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	for i, node := range nodes {
		if !node.Empty() {
			t.Fatalf("stream %d: expected in-flight queue drained after Close", i+1)
		}
	}
	if len(s.Registry.Handles()) != 0 {
		t.Fatalf("expected every stream unregistered after Close")
	}
}
