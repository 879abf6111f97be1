// Package arbiter implements C9, the cross-process GPU-idle arbiter: a
// POSIX shared-memory block, keyed by device ID, holding an
// atomically-updated outstanding-kernel counter every profiled process on
// the same device increments on launch and decrements on retirement
// (spec.md §4.9, §3 "Cross-process IPC block").
package arbiter

import (
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/hpcgpu/blameshift/cmn/cos"
	"github.com/hpcgpu/blameshift/cmn/k8s"
	"github.com/hpcgpu/blameshift/cmn/nlog"
	"github.com/hpcgpu/blameshift/cmn/rom"
	"github.com/hpcgpu/blameshift/collab"
)

// regionSize covers the 64-bit outstanding_kernels counter plus the
// reserved-for-future-work spinlock word (spec.md §3), rounded up to a
// page-friendly size; mmap will round to the OS page size regardless.
const regionSize = 64

// region is one opened shared-memory mapping for one device.
type region struct {
	data    []byte
	counter *int64 // &data[0], 8-byte aligned by construction
}

// Arbiter owns every region this process has opened, one per device that
// has seen at least one GPU API call since shared blaming was enabled.
type Arbiter struct {
	mu      sync.Mutex
	regions map[collab.DeviceID]*region
}

func New() *Arbiter {
	return &Arbiter{regions: map[collab.DeviceID]*region{}}
}

// Open creates (if necessary) and maps the shared-memory region for
// device, on the first GPU API call of a process that has shared blaming
// enabled (spec.md §4.9). A failure degrades to per-process blaming —
// Increment/Decrement/Outstanding silently no-op for this device rather
// than returning an error, matching §4.9's "Failure mode" (the IPC
// pointer stays null and §4.8 takes the else branch).
func (a *Arbiter) Open(device collab.DeviceID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.regions[device]; ok {
		return
	}

	path := rom.Rom.ShmPrefix() + "-dev" + strconv.Itoa(int(device)) + "-" + cos.HashDeviceName(strconv.Itoa(int(device)))
	if suffix := k8s.NamespaceSuffix(); suffix != "" {
		// Two unrelated pods time-sliced onto the same physical GPU by a
		// device plugin must not collide on the same shared-memory name.
		path += "-" + suffix
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		nlog.Warningf("arbiter: open %s: %v; degrading to per-process blaming for device %d", path, err, device)
		return
	}
	defer f.Close()
	if err := f.Truncate(regionSize); err != nil {
		nlog.Warningf("arbiter: truncate %s: %v; degrading to per-process blaming for device %d", path, err, device)
		return
	}
	data, err := unix.Mmap(int(f.Fd()), 0, regionSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		nlog.Warningf("arbiter: mmap %s: %v; degrading to per-process blaming for device %d", path, err, device)
		return
	}
	a.regions[device] = &region{data: data, counter: (*int64)(unsafe.Pointer(&data[0]))}
}

// Increment is the launch-side atomic add (spec.md §4.5 step 5, "Increment
// cross-process outstanding_kernels"). No-op if device's region never
// opened successfully.
func (a *Arbiter) Increment(device collab.DeviceID) {
	if r := a.get(device); r != nil {
		atomic.AddInt64(r.counter, 1)
	}
}

// Decrement is the retirement-side counterpart, called from C3's reap
// (spec.md §4.9: "decrements (retirement) are atomic adds on the same
// counter across processes").
func (a *Arbiter) Decrement(device collab.DeviceID) {
	if r := a.get(device); r != nil {
		atomic.AddInt64(r.counter, -1)
	}
}

// Outstanding is the sampler's single atomic load (spec.md §4.8: "the IPC
// read is a single atomic load"). The bool reports whether the region is
// actually mapped — the sampler must treat an unopened region exactly
// like "shared blaming disabled" (§4.8's else branch), not like zero
// outstanding kernels on some other process's behalf.
func (a *Arbiter) Outstanding(device collab.DeviceID) (count int64, open bool) {
	if r := a.get(device); r != nil {
		return atomic.LoadInt64(r.counter), true
	}
	return 0, false
}

// Devices lists every device this process currently has a region mapped
// for — useful for housekeeping/export to enumerate what to report on,
// not part of the core algorithm itself.
func (a *Arbiter) Devices() []collab.DeviceID {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]collab.DeviceID, 0, len(a.regions))
	for d := range a.regions {
		out = append(out, d)
	}
	return out
}

func (a *Arbiter) get(device collab.DeviceID) *region {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.regions[device]
}

// Close unmaps every region this process opened. spec.md §3 describes an
// unmanaged process's default ("never unmapped; process exit releases")
// — this is the explicit counterpart for a profiler.State.Close caller
// that wants a graceful, pre-exit teardown instead of relying on the OS
// to reclaim the mapping.
func (a *Arbiter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var errs cos.Errs
	for d, r := range a.regions {
		if err := unix.Munmap(r.data); err != nil {
			errs.Add(err)
		}
		delete(a.regions, d)
	}
	return errs.JoinErr()
}
