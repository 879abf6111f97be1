// Package export implements the optional trace/profile bundle exporter
// SPEC_FULL.md adds as a supplemental feature: once a collaborator closes
// out one profiling run, a manifest plus the collaborator's own trace
// bundle can be uploaded, compressed, to one or more object storage
// backends concurrently. None of this touches the blame-shift core's
// attribution algorithm — it is a side door for shipping what the core
// already produced.
package export

import (
	"time"

	jsoniter "github.com/json-iterator/go"
)

// Manifest describes one closed run's bundle: metadata an operator (or an
// automated pipeline) reading object storage needs before downloading the
// (possibly large) trace payload itself.
type Manifest struct {
	RunID       string             `json:"run_id"`
	Device      string             `json:"device"`
	GeneratedAt time.Time          `json:"generated_at"`
	Totals      map[string]float64 `json:"totals"` // MetricID.String() -> accumulated value
}

// Marshal encodes with jsoniter, matching the teacher's own
// hot-path-adjacent serialization convention (cmn/cos.FsID and friends)
// rather than encoding/json.
var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

func (m Manifest) Marshal() ([]byte, error) {
	return jsonAPI.Marshal(m)
}
