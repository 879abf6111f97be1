package cos

import (
	"strconv"
	"sync/atomic"

	"github.com/OneOfOne/xxhash"
	"github.com/teris-io/shortid"
)

const uuidABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

// MLCG32 matches the teacher's xxhash seed convention; any fixed seed
// works as long as it is stable across a process's lifetime (the hash
// here need not be adversarially robust, only collision-unlikely for a
// handful of concurrently-open devices/runs).
const MLCG32 = 0x3fb21ea4

var (
	sid  *shortid.Shortid
	rtie atomic.Uint32
)

func init() {
	sid = shortid.MustNew(4 /*worker*/, uuidABC, 1)
}

// GenRunID returns a short, mostly-alphabetic identifier naming one
// profiling run. Nothing in this module calls it; export.Manager.Export
// takes its run ID from the caller.
func GenRunID() string {
	id := sid.MustGenerate()
	tie := rtie.Add(1)
	return id + "-" + strconv.FormatUint(uint64(tie), 36)
}

// HashDeviceName derives a stable, short, filesystem-safe suffix for the
// cross-process IPC shared-memory object name (spec.md §6: "a per-device
// shared-memory name derived as a fixed prefix followed by the device
// ID"); arbiter.Open appends it after the device ID in every region name,
// and appends any Kubernetes pod UID suffix (cmn/k8s) unhashed after it.
func HashDeviceName(name string) string {
	digest := xxhash.Checksum64S([]byte(name), MLCG32)
	return strconv.FormatUint(digest, 36)
}
