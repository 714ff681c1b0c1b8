package report

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	efficiency "benchlab-telemetry/internal/analytics/domain/efficiency"
)

func sampleReport() efficiency.Report {
	return efficiency.Report{
		GeneratedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		StagePair:   [2]string{"ingress", "encoded"},
		SampleCount: 2,
		Latency:     efficiency.LatencyStats{MeanMS: 10},
		Power:       efficiency.PowerStats{MeanW: 100},
		OptimalPoints: []efficiency.Point{
			{LatencyMS: 9, PowerW: 100, EfficiencyMSPerW: 0.09},
		},
		PowerBuckets: map[string]efficiency.Bucket{"medium": {Count: 2, MeanLatencyMS: 10, MeanPowerW: 100}},
	}
}

func TestBuildReportPDF(t *testing.T) {
	data, err := BuildReportPDF(sampleReport())
	if err != nil {
		t.Fatalf("build pdf: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Fatalf("expected PDF header, got %q", data[:8])
	}
}

func TestBuildReportJSON(t *testing.T) {
	data, err := BuildReportJSON(sampleReport())
	if err != nil {
		t.Fatalf("build json: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"latency_stats", "power_stats", "efficiency_stats", "optimal_points", "power_buckets"} {
		if _, ok := decoded[key]; !ok {
			t.Fatalf("expected key %s in report", key)
		}
	}
}
