// Package reentrancy provides the "at sync" thread-local cell spec.md §5
// and §9 describe: every interception shim — not just the blocking sync
// ones — sets it before calling into the driver and clears it on exit, so
// the async-signal sampler (C8) can tell "this thread is already inside a
// shim holding the GPU lock, don't touch it" from "this thread is idle,
// safe to sample" without risking a self-deadlock on the GPU lock (spec.md
// §9 Design Notes: "prefer a thread-local cell with explicit scoping
// ('enter sync' / 'exit sync' as a scoped acquisition) over a flag toggle
// to ensure matched pairs even on unwind").
//
// Go has no real per-OS-thread storage a signal handler could read
// without also being tied to goroutine scheduling, so the collaborator
// that actually binds this to hardware signal delivery owns one Flag per
// OS thread (e.g. via pthread-level thread-local storage on the cgo
// side); this package only provides the scoped-acquisition shape an
// interception shim uses regardless of how the collaborator wires it up.
package reentrancy

import "sync/atomic"

// Flag is one thread's "at sync" cell.
type Flag struct{ set int32 }

// Enter scopes the critical region; the returned exit closure, typically
// deferred, ends it. There is no separate Exit method; deferring the
// closure means callers
// cannot forget to clear it even on a panicking unwind — spec.md §9's
// "ensure matched pairs even on unwind".
func (f *Flag) Enter() (exit func()) {
	atomic.StoreInt32(&f.set, 1)
	return func() { atomic.StoreInt32(&f.set, 0) }
}

// IsSet is read by the signal handler on the same thread the flag
// belongs to (spec.md §5: "read by the same thread from the signal
// handler").
func (f *Flag) IsSet() bool { return atomic.LoadInt32(&f.set) == 1 }
