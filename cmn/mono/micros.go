package mono

// NowMicros is the single clock reading every CPU-epoch microsecond
// timestamp in this module derives from — the world-start anchor
// (collab.WorldAnchor.CPUMicros) and every sync_start_us/sync_end_us
// reading (blamesync) alike. Using one function for both keeps them on
// the same clock basis so a sync window's timestamps and a kernel's
// anchor-derived timestamps remain directly comparable (spec.md §3,
// "World-start anchor").
func NowMicros() int64 { return NanoTime() / 1000 }
