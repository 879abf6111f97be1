package export

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func fakeTarget(name string, fail bool) (Target, *[]string) {
	var mu sync.Mutex
	var keys []string
	return Target{
		Name: name,
		Upload: func(_ context.Context, key string, _ *bytes.Buffer) error {
			mu.Lock()
			keys = append(keys, key)
			mu.Unlock()
			if fail {
				return errors.New("injected upload failure")
			}
			return nil
		},
	}, &keys
}

// TestExportUploadsBundleAndManifestToEveryTarget covers the happy path:
// both the compressed bundle and its manifest reach every configured
// backend under run-scoped keys.
func TestExportUploadsBundleAndManifestToEveryTarget(t *testing.T) {
	t1, keys1 := fakeTarget("a", false)
	t2, keys2 := fakeTarget("b", false)
	m := &Manager{Targets: []Target{t1, t2}}

	manifest := Manifest{RunID: "run-1", Device: "0", GeneratedAt: time.Unix(0, 0), Totals: map[string]float64{"CPU_IDLE": 42}}
	err := m.Export(context.Background(), "run-1", strings.NewReader("trace bytes"), manifest)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	for _, keys := range [][]string{*keys1, *keys2} {
		if len(keys) != 2 {
			t.Fatalf("expected 2 uploads (bundle + manifest) per target, got %d", len(keys))
		}
	}
}

// TestExportAggregatesPartialFailures covers the best-effort fan-out: one
// failing backend does not prevent the others from completing, and its
// error is still surfaced to the caller.
func TestExportAggregatesPartialFailures(t *testing.T) {
	ok, okKeys := fakeTarget("ok", false)
	bad, _ := fakeTarget("bad", true)
	m := &Manager{Targets: []Target{ok, bad}}

	manifest := Manifest{RunID: "run-2"}
	err := m.Export(context.Background(), "run-2", strings.NewReader("trace bytes"), manifest)
	if err == nil {
		t.Fatalf("expected an aggregated error from the failing backend")
	}
	if len(*okKeys) != 2 {
		t.Fatalf("expected the healthy backend to still receive both uploads, got %d", len(*okKeys))
	}
}
