//go:build !debug

// Package debug provides invariant-checking helpers that compile to no-ops
// outside of debug builds. The blame-shift core leans on these at exactly
// the points spec.md §8 calls out as "universal invariants" (in-flight
// queue ordering, ref_count positivity, num_threads_at_sync bookkeeping):
// checking them in every build would tax the sampler and sync hot paths
// the spec budgets as O(1)/O(k).
package debug

import "sync"

func ON() bool { return false }

func Assert(_ bool, _ ...any)            {}
func Assertf(_ bool, _ string, _ ...any) {}
func AssertNoErr(_ error)                {}
func AssertFunc(_ func() bool, _ ...any) {}

func AssertMutexLocked(_ *sync.Mutex)     {}
func AssertRWMutexLocked(_ *sync.RWMutex) {}
