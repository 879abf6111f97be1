// Package cos holds the low-level types and error helpers shared by every
// blame-shift package: driver-fatal errors (spec.md §7 — "the profiler
// cannot produce correct results with a missing event"), resource
// exhaustion, and the best-effort multi-error aggregator used by the
// multi-backend trace-bundle exporter.
package cos

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

// ErrDriverFatal wraps any driver error encountered while creating,
// recording, or querying the elapsed time of an event (spec.md §7: fatal,
// no recovery path keeps timestamps consistent).
type ErrDriverFatal struct {
	Op    string
	Cause error
}

func NewErrDriverFatal(op string, cause error) *ErrDriverFatal {
	return &ErrDriverFatal{Op: op, Cause: errors.WithStack(cause)}
}

func (e *ErrDriverFatal) Error() string {
	return fmt.Sprintf("driver hard error during %s: %v", e.Op, e.Cause)
}
func (e *ErrDriverFatal) Unwrap() error { return e.Cause }

// ErrPoolExhausted is returned when the arena-backed event/active-kernel
// pool (C2) cannot grow further.
type ErrPoolExhausted struct{ Kind string }

func (e *ErrPoolExhausted) Error() string { return "pool exhausted: " + e.Kind }

// ErrStreamSpaceExhausted is returned by the stream registry (C1) when the
// dense stream-ID space (a compile-time maximum) is full.
type ErrStreamSpaceExhausted struct{ Max int }

func (e *ErrStreamSpaceExhausted) Error() string {
	return fmt.Sprintf("stream ID space exhausted (max %d non-reserved slots)", e.Max)
}

// ErrStreamExists is returned by the stream registry on reinsertion of an
// already-present handle (spec.md §8, "boundary behavior").
type ErrStreamExists struct{ Handle uintptr }

func (e *ErrStreamExists) Error() string {
	return fmt.Sprintf("stream handle %#x already registered", e.Handle)
}

// ErrUnknownStream is returned by an interception shim that receives a
// stream handle the registry never saw a create for.
type ErrUnknownStream struct{ Handle uintptr }

func (e *ErrUnknownStream) Error() string {
	return fmt.Sprintf("stream handle %#x not registered", e.Handle)
}

// ErrIPCUnavailable marks the non-fatal degradation path (spec.md §7): the
// cross-process shared-memory region could not be opened, so the arbiter
// (C9) falls back to per-process blaming.
var ErrIPCUnavailable = errors.New("shared-memory IPC region unavailable, degrading to per-process blaming")

// Errs aggregates up to maxErrs distinct errors from a best-effort,
// multi-step operation (e.g. uploading one trace bundle to several object
// storage backends) without giving up after the first failure.
type Errs struct {
	mu   sync.Mutex
	errs []error
}

const maxErrs = 4

func (e *Errs) Add(err error) {
	if err == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, existing := range e.errs {
		if existing.Error() == err.Error() {
			return
		}
	}
	if len(e.errs) < maxErrs {
		e.errs = append(e.errs, err)
	}
}

func (e *Errs) Cnt() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.errs)
}

// JoinErr returns the aggregated error (nil if none were added).
func (e *Errs) JoinErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.errs) == 0 {
		return nil
	}
	return errors.Join(e.errs...)
}
