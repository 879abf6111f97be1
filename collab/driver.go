package collab

import "time"

// StreamHandle is the opaque driver stream handle the stream registry (C1)
// maps to a dense integer ID. The null/default-stream handle is the zero
// value.
type StreamHandle uintptr

// NullStream is the driver's implicit default stream (spec.md §4.1,
// "Stream 0 treatment").
const NullStream StreamHandle = 0

// DeviceID names one GPU device; the cross-process arbiter (C9) keys its
// shared-memory region by this value.
type DeviceID int

// DriverEvent is an opaque driver timestamp handle (spec.md §3, "Event
// record": start_event/end_event). Created once per pool slot and
// re-recorded on every reuse.
type DriverEvent uintptr

// Readiness is the result of a non-blocking event query (spec.md §4.3 step
// 2): the reap algorithm and the signal-handler sampler must never block on
// the driver.
type Readiness int

const (
	NotReady Readiness = iota
	Ready
)

// Driver is the minimal set of driver primitives spec.md §6 requires:
// record_event, query_event, elapsed_ms, plus event lifecycle management
// the pool needs to create/destroy driver-side timestamp objects exactly
// once per pool slot.
type Driver interface {
	// CreateEvent allocates one driver timestamp object; called once per
	// pool slot, never per sample (spec.md §4.2).
	CreateEvent() (DriverEvent, error)
	// DestroyEvent releases a driver timestamp object; only called during
	// context teardown (spec.md §4.2).
	DestroyEvent(DriverEvent) error
	// RecordEvent enqueues ev onto stream's command queue so its
	// completion timestamp is captured at this point in submission order.
	RecordEvent(ev DriverEvent, stream StreamHandle) error
	// QueryEvent is a non-blocking readiness check (never the wait API).
	QueryEvent(ev DriverEvent) (Readiness, error)
	// ElapsedMS returns the elapsed time between two previously-recorded
	// events, in milliseconds (driver-native unit); the core converts to
	// CPU-epoch microseconds via the world-start anchor (spec.md §3).
	ElapsedMS(a, b DriverEvent) (float64, error)
}

// WorldAnchor is the (driver_event, cpu_microseconds) pair spec.md §3
// defines to translate driver-relative elapsed times into CPU-epoch
// microsecond timestamps.
type WorldAnchor struct {
	Event      DriverEvent
	CPUMicros  int64
	AnchoredAt time.Time
}
