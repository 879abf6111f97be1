package hk

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestRegisterFiresRepeatedlyAtOwnCadence(t *testing.T) {
	h := New()
	go h.Run()
	h.WaitStarted()
	defer h.Stop()

	var calls int32
	h.Register("repeat", func(time.Time) time.Duration {
		atomic.AddInt32(&calls, 1)
		return 5 * time.Millisecond
	}, time.Millisecond)

	deadline := time.After(time.Second)
	for atomic.LoadInt32(&calls) < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 calls, got %d", atomic.LoadInt32(&calls))
		case <-time.After(time.Millisecond):
		}
	}
}

func TestReturningNonPositiveUnregisters(t *testing.T) {
	h := New()
	go h.Run()
	h.WaitStarted()
	defer h.Stop()

	var calls int32
	h.Register("once", func(time.Time) time.Duration {
		atomic.AddInt32(&calls, 1)
		return 0
	}, time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected job to fire exactly once before unregistering itself, got %d", got)
	}
}

func TestUnregisterStopsFutureCalls(t *testing.T) {
	h := New()
	go h.Run()
	h.WaitStarted()
	defer h.Stop()

	var calls int32
	h.Register("cancel-me", func(time.Time) time.Duration {
		atomic.AddInt32(&calls, 1)
		return time.Millisecond
	}, time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	h.Unregister("cancel-me")
	seen := atomic.LoadInt32(&calls)
	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&calls) > seen+1 {
		t.Fatalf("expected no further calls after Unregister, before=%d after=%d", seen, atomic.LoadInt32(&calls))
	}
}
