package simulate

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"log"
	"math/rand"
	"os"
	"testing"
	"time"

	"benchlab-telemetry/internal/session"
	telemetry "benchlab-telemetry/internal/telemetry/domain"
)

type fakeHost struct {
	err error
}

func (f fakeHost) Sample(context.Context) (map[string]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return map[string]float64{"cpu_percent": 12.5, "mem_percent": 40}, nil
}

func newTestRunner(t *testing.T, host HostSampler) (*Runner, session.Layout) {
	t.Helper()
	layout, err := session.New(t.TempDir(), "sim")
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	if err := layout.Prepare(); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	runner, err := NewRunner(layout, 10, WithSeed(7), WithHostSampler(host), WithLogger(log.New(&bytes.Buffer{}, "", 0)))
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	return runner, layout
}

func readRecords(t *testing.T, path string) []telemetry.Record {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	var out []telemetry.Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		rec, err := telemetry.DecodeRecord(scanner.Bytes())
		if err != nil {
			t.Fatalf("decode %q: %v", scanner.Text(), err)
		}
		out = append(out, rec)
	}
	return out
}

func TestPipelineFrame_StageOrder(t *testing.T) {
	frame, next := pipelineFrame(1000, rand.New(rand.NewSource(1)))
	if len(frame) != 3 {
		t.Fatalf("expected 3 stages, got %d", len(frame))
	}
	want := []string{StageIngress, StageEncoded, StageInferenceDone}
	for i, tr := range frame {
		if tr.rec.Stage() != want[i] {
			t.Fatalf("stage %d: expected %s, got %s", i, want[i], tr.rec.Stage())
		}
	}
	if frame[1].rec.TimestampNS-frame[0].rec.TimestampNS != int64(encodeDelay) {
		t.Fatalf("expected encode delay %v", encodeDelay)
	}
	inference := frame[2].rec.TimestampNS - frame[1].rec.TimestampNS
	if inference < int64(inferenceBase) || inference >= int64(inferenceBase+inferenceJit) {
		t.Fatalf("inference delay %d out of range", inference)
	}
	if next <= time.Duration(frame[2].rec.TimestampNS-1000) {
		t.Fatalf("next frame offset %v overlaps current frame", next)
	}
}

func TestBenchlabSample_DecodesAsRails(t *testing.T) {
	sample, err := telemetry.DecodeBenchlab(benchlabSample(5, 1.5))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sample.Power.Kind != telemetry.PowerKindRails || len(sample.Power.Rails) != 3 {
		t.Fatalf("expected 3 rails, got %+v", sample.Power)
	}
	total := 0.0
	for _, r := range sample.Power.Rails {
		total += r.Power
	}
	if sample.Power.TotalW != total {
		t.Fatalf("expected total %v, got %v", total, sample.Power.TotalW)
	}
	if sample.Device == nil || sample.Device.Name != "BENCHLAB-SIM" {
		t.Fatalf("expected device identity, got %+v", sample.Device)
	}
	if sample.CalibrationValid == nil || !*sample.CalibrationValid {
		t.Fatalf("expected calibration valid")
	}
}

func TestRunner_Generate(t *testing.T) {
	runner, layout := newTestRunner(t, fakeHost{})

	written, err := runner.Generate(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	pipeline := readRecords(t, layout.RawPath(session.RawPipeline))
	benchlab := readRecords(t, layout.RawPath(session.RawBenchlab))
	host := readRecords(t, layout.RawPath(session.RawTelemetry))
	if got := len(pipeline) + len(benchlab) + len(host); got != written {
		t.Fatalf("expected %d records on disk, got %d", written, got)
	}
	if len(pipeline) == 0 || len(pipeline)%3 != 0 {
		t.Fatalf("expected whole pipeline frames, got %d records", len(pipeline))
	}
	if len(benchlab) != 10 {
		t.Fatalf("expected 10 benchlab samples, got %d", len(benchlab))
	}
	// 10 gpu samples plus one host sample.
	if len(host) != 11 || host[len(host)-1].Source != SourceCPU {
		t.Fatalf("unexpected telemetry records %d", len(host))
	}
	for i := 1; i < len(pipeline); i++ {
		if pipeline[i].TimestampNS < pipeline[i-1].TimestampNS {
			t.Fatalf("pipeline timestamps not monotonic at %d", i)
		}
	}
}

func TestRunner_GenerateToleratesHostError(t *testing.T) {
	runner, layout := newTestRunner(t, fakeHost{err: errors.New("no procfs")})
	if _, err := runner.Generate(context.Background(), 200*time.Millisecond); err != nil {
		t.Fatalf("generate: %v", err)
	}
	for _, rec := range readRecords(t, layout.RawPath(session.RawTelemetry)) {
		if rec.Source == SourceCPU {
			t.Fatalf("expected no host record when sampler fails")
		}
	}
}

func TestRunner_RunStopsOnCancel(t *testing.T) {
	runner, layout := newTestRunner(t, fakeHost{})
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	if err := runner.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(readRecords(t, layout.RawPath(session.RawBenchlab))) == 0 {
		t.Fatalf("expected benchlab records written")
	}
	if len(readRecords(t, layout.RawPath(session.RawPipeline))) == 0 {
		t.Fatalf("expected pipeline records written")
	}
}

func TestNewRunner_Validation(t *testing.T) {
	if _, err := NewRunner(session.Layout{}, 10); err == nil {
		t.Fatalf("expected error for empty layout")
	}
	layout, _ := session.New(t.TempDir(), "x")
	if _, err := NewRunner(layout, 0); err == nil {
		t.Fatalf("expected error for zero rate")
	}
}
