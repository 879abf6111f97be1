package export

import (
	"bytes"
	"context"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/hpcgpu/blameshift/cmn/cos"
)

// Manager fans a closed run's bundle out to every configured Target
// concurrently (spec.md-adjacent §7 best-effort pattern, generalizing
// _examples/google-schedviz's errgroup.Group fan-out to per-backend
// uploads rather than per-PID thread interval computation).
type Manager struct {
	Targets []Target
}

// Export compresses bundle, builds and appends its manifest, and uploads
// both under runID-derived keys to every target. A failure on one target
// does not stop the others; every failure is collected and returned
// together via cos.Errs, mirroring how the core's own export errors
// aggregate rather than abort on first failure.
func (m *Manager) Export(ctx context.Context, runID string, bundle io.Reader, manifest Manifest) error {
	compressed, err := compress(bundle)
	if err != nil {
		return err
	}
	manifestBytes, err := manifest.Marshal()
	if err != nil {
		return err
	}

	bundleKey := runID + "/bundle.lz4"
	manifestKey := runID + "/manifest.json"

	var errs cos.Errs
	eg, egCtx := errgroup.WithContext(ctx)
	for _, t := range m.Targets {
		t := t
		eg.Go(func() error {
			if err := t.Upload(egCtx, bundleKey, bytes.NewBuffer(append([]byte(nil), compressed.Bytes()...))); err != nil {
				errs.Add(wrapErr(t.Name, bundleKey, err))
			}
			if err := t.Upload(egCtx, manifestKey, bytes.NewBuffer(append([]byte(nil), manifestBytes...))); err != nil {
				errs.Add(wrapErr(t.Name, manifestKey, err))
			}
			return nil
		})
	}
	_ = eg.Wait() // every Go func reports failures through errs, never a returned error
	return errs.JoinErr()
}
