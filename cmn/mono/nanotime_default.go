//go:build !mono

package mono

import "time"

// NanoTime is the portable fallback when the linkname trick (build tag
// "mono") is unavailable or undesirable, e.g. cross-compiling for a runtime
// version this package hasn't been pinned against.
func NanoTime() int64 { return time.Now().UnixNano() }
