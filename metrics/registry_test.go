package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/hpcgpu/blameshift/collab"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		var total float64
		for _, m := range fam.GetMetric() {
			total += m.GetCounter().GetValue()
		}
		return total
	}
	return 0
}

// TestIncrementRoutesByValueTag covers DESIGN.md's integer-vs-real metric
// convention: an integer MetricValue lands in the int counter family, a
// real one in the real counter family, even for the same MetricID space.
func TestIncrementRoutesByValueTag(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, "0")

	m.Increment(collab.CPUIdle, collab.NoCCT, collab.IntValue(150))
	m.Increment(collab.OverlappedCPU, collab.NoCCT, collab.RealValue(37.5))

	if got := counterValue(t, reg, "blameshift_cpu_idle_us_total"); got != 150 {
		t.Fatalf("expected CPU_IDLE total 150, got %v", got)
	}
	if got := counterValue(t, reg, "blameshift_overlapped_cpu_us_total"); got != 37.5 {
		t.Fatalf("expected OVERLAPPED_CPU total 37.5, got %v", got)
	}
}

// TestDroppedSampleCounter covers spec.md §7's dropped-sample accounting.
func TestDroppedSampleCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, "0")

	m.DroppedSample()
	m.DroppedSample()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var found *dto.MetricFamily
	for _, fam := range families {
		if fam.GetName() == "blameshift_samples_dropped_total" {
			found = fam
		}
	}
	if found == nil {
		t.Fatalf("expected samples_dropped_total to be registered")
	}
	if got := found.GetMetric()[0].GetCounter().GetValue(); got != 2 {
		t.Fatalf("expected 2 dropped samples, got %v", got)
	}
}
