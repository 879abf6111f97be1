// Command blamedemo drives the blame-shift core against an in-process fake
// driver and unwinder, the way _examples/rockstar-0000-aistore's cmd/authn
// drives its own server against a real kvdb: parse a handful of flags, wire
// one profiler.State, run a workload, flush and exit. It exists so the core
// can be exercised end to end without a real GPU runtime on the other side
// of collab.Driver.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/hpcgpu/blameshift/cmn/nlog"
	"github.com/hpcgpu/blameshift/cmn/reentrancy"
	"github.com/hpcgpu/blameshift/cmn/rom"
	"github.com/hpcgpu/blameshift/collab"
	"github.com/hpcgpu/blameshift/export"
	"github.com/hpcgpu/blameshift/profiler"
	"github.com/hpcgpu/blameshift/stream"
)

var (
	numStreams     int
	numKernels     int
	kernelMillis   int
	backstopReapMS int
	doExport       bool
)

func init() {
	flag.IntVar(&numStreams, "streams", 4, "number of concurrent streams to simulate")
	flag.IntVar(&numKernels, "kernels", 50, "kernels launched per stream")
	flag.IntVar(&kernelMillis, "kernel-ms", 2, "simulated kernel duration in milliseconds")
	flag.IntVar(&backstopReapMS, "backstop-reap-ms", 5, "housekeeping backstop reap interval")
	flag.BoolVar(&doExport, "export", false, "upload a manifest to a local-filesystem export target on exit")
}

func main() {
	installSignalHandler()
	flag.Parse()
	rom.Init()

	reg := prometheus.NewRegistry()
	col := newFakeCollaborators()
	state := profiler.New(collab.DeviceID(0), reg, col)
	state.Start(time.Duration(backstopReapMS) * time.Millisecond)
	defer func() {
		if err := state.Close(); err != nil {
			nlog.Errorf("blamedemo: close: %v", err)
		}
	}()

	nlog.Infof("blamedemo: simulating %d streams x %d kernels (%dms each)", numStreams, numKernels, kernelMillis)
	runWorkload(state)

	summary := gatherSummary(reg)
	for name, v := range summary {
		nlog.Infof("blamedemo: %s = %v", name, v)
	}

	if doExport {
		if err := exportRun(reg, summary); err != nil {
			nlog.Errorf("blamedemo: export failed: %v", err)
		}
	}

	nlog.Flush()
}

func runWorkload(state *profiler.State) {
	var wg sync.WaitGroup
	for i := 0; i < numStreams; i++ {
		handle := collab.StreamHandle(i + 1)
		if _, err := state.Shims.StreamCreate(handle); err != nil {
			nlog.Errorf("blamedemo: stream create %d: %v", i, err)
			continue
		}
		wg.Add(1)
		go func(h collab.StreamHandle) {
			defer wg.Done()
			simulateStream(state, h)
		}(handle)
	}
	wg.Wait()

	var flag reentrancy.Flag
	if err := state.Shims.SyncBlocking(nil, 0, stream.AllStreams, &flag, func() error { return nil }); err != nil {
		nlog.Errorf("blamedemo: final sync: %v", err)
	}
}

func simulateStream(state *profiler.State, handle collab.StreamHandle) {
	for k := 0; k < numKernels; k++ {
		jitter := time.Duration(rand.Intn(kernelMillis+1)) * time.Millisecond
		err := state.Shims.LaunchKernel(handle, nil, 0, func() error {
			time.Sleep(time.Duration(kernelMillis)*time.Millisecond + jitter)
			return nil
		})
		if err != nil {
			nlog.Errorf("blamedemo: launch on stream %d: %v", handle, err)
			return
		}
	}
}

// gatherSummary reduces the registry's own collectors into a flat map for
// the closing log line and the optional export manifest's Totals field —
// it never inspects collab.CCTNode, matching metrics.Registry's own stance
// that per-node detail is collaborator-owned.
func gatherSummary(gatherer prometheus.Gatherer) map[string]float64 {
	out := map[string]float64{}
	families, err := gatherer.Gather()
	if err != nil {
		nlog.Errorf("blamedemo: gather metrics: %v", err)
		return out
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			out[metricKey(mf.GetName(), m)] += counterValue(m)
		}
	}
	return out
}

func metricKey(name string, m *dto.Metric) string {
	for _, lp := range m.GetLabel() {
		name += "{" + lp.GetName() + "=" + lp.GetValue() + "}"
	}
	return name
}

func counterValue(m *dto.Metric) float64 {
	if c := m.GetCounter(); c != nil {
		return c.GetValue()
	}
	return 0
}

func exportRun(gatherer prometheus.Gatherer, summary map[string]float64) error {
	dir, err := os.MkdirTemp("", "blamedemo-export-*")
	if err != nil {
		return err
	}
	target := export.Target{
		Name: "local",
		Upload: func(_ context.Context, key string, body *bytes.Buffer) error {
			return os.WriteFile(dir+"/"+sanitize(key), body.Bytes(), 0o644)
		},
	}
	mgr := &export.Manager{Targets: []export.Target{target}}
	manifest := export.Manifest{
		RunID:       fmt.Sprintf("blamedemo-%d", os.Getpid()),
		Device:      "0",
		GeneratedAt: time.Now(),
		Totals:      summary,
	}
	_ = gatherer // already folded into summary; kept for signature symmetry with gatherSummary
	if err := mgr.Export(context.Background(), manifest.RunID, bytes.NewBufferString("blamedemo trace bundle placeholder"), manifest); err != nil {
		return err
	}
	nlog.Infof("blamedemo: exported run to %s", dir)
	return nil
}

func sanitize(key string) string {
	out := []byte(key)
	for i, b := range out {
		if b == '/' {
			out[i] = '_'
		}
	}
	return string(out)
}

func installSignalHandler() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-c
		nlog.Flush()
		os.Exit(0)
	}()
}
