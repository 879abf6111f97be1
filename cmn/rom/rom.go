// Package rom holds the blame-shift core's read-mostly configuration
// snapshot: parsed once at Init from the environment (spec.md §6) and read
// without locking from the sampler's signal-handler context and the sync
// hot path, mirroring the teacher's read-mostly-config pattern (one
// snapshot struct, assigned at startup, read via small accessor methods).
package rom

import (
	"os"
	"strconv"
	"time"

	"github.com/hpcgpu/blameshift/cmn/k8s"
)

const (
	envSharedBlaming = "GPUBLAME_SHARED_BLAMING"
	envShmPrefix     = "GPUBLAME_SHM_PREFIX"
	envSkipInner     = "GPUBLAME_SKIP_INNER"
	envReapStaleness = "GPUBLAME_SAMPLER_REAP_STALENESS_US"

	defaultShmPrefix     = "/gpublame"
	defaultSkipInner     = 0
	defaultReapStaleness = 500 // microseconds; see sampler's opportunistic-reap cache
)

type readMostly struct {
	sharedBlaming bool
	shmPrefix     string
	skipInner     int
	reapStaleness time.Duration
}

var Rom readMostly

// Init parses environment configuration once, at process/profiler-state
// initialization. Also attempts Kubernetes pod discovery so the arbiter
// can namespace its shared-memory region name by pod UID (see ShmPrefix
// callers in arbiter.Open) — two unrelated pods time-sliced onto the same
// physical GPU by a device plugin must not collide on the same name.
func Init() {
	k8s.Init()
	Rom.sharedBlaming = parseBool(os.Getenv(envSharedBlaming))
	Rom.shmPrefix = defaultShmPrefix
	if v := os.Getenv(envShmPrefix); v != "" {
		Rom.shmPrefix = v
	}
	Rom.skipInner = defaultSkipInner
	if v, err := strconv.Atoi(os.Getenv(envSkipInner)); err == nil {
		Rom.skipInner = v
	}
	Rom.reapStaleness = defaultReapStaleness * time.Microsecond
	if v, err := strconv.Atoi(os.Getenv(envReapStaleness)); err == nil && v >= 0 {
		Rom.reapStaleness = time.Duration(v) * time.Microsecond
	}
}

func parseBool(s string) bool {
	v, err := strconv.ParseBool(s)
	return err == nil && v
}

func (rom *readMostly) SharedBlaming() bool                 { return rom.sharedBlaming }
func (rom *readMostly) ShmPrefix() string                   { return rom.shmPrefix }
func (rom *readMostly) SkipInner() int                      { return rom.skipInner }
func (rom *readMostly) SamplerReapStaleness() time.Duration { return rom.reapStaleness }

// SetForTest lets package tests exercise both code paths deterministically
// without touching the process environment.
func SetForTest(sharedBlaming bool, skipInner int, reapStaleness time.Duration) {
	Rom.sharedBlaming = sharedBlaming
	Rom.skipInner = skipInner
	Rom.reapStaleness = reapStaleness
}
