//go:build mono

// Package mono provides a zero-cost monotonic clock read for the hot paths
// (sync epilogue, signal-handler sampler) that cannot afford a regular
// time.Now() allocation or the wall-clock/monotonic split it performs.
package mono

import (
	_ "unsafe" // for go:linkname
)

// NanoTime returns the runtime's monotonic clock reading directly,
// bypassing time.Now()'s wall-clock bookkeeping.
//
// https://golang.org/pkg/runtime/?m=all#nanotime
//
//go:linkname NanoTime runtime.nanotime
func NanoTime() int64
