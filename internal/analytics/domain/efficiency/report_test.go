package efficiency

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	telemetry "benchlab-telemetry/internal/telemetry/domain"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func watts(v float64) *float64 { return &v }

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func testSamples() []telemetry.LatencySample {
	pair := [2]string{"ingress", "encoded"}
	return []telemetry.LatencySample{
		{AlignedTimestampNS: 1e9, LatencyMS: 10, StagePair: pair, PowerW: watts(100)},
		{AlignedTimestampNS: 2e9, LatencyMS: 20, StagePair: pair, PowerW: watts(100)},
		{AlignedTimestampNS: 3e9, LatencyMS: 30, StagePair: pair, PowerW: watts(200)},
		{AlignedTimestampNS: 4e9, LatencyMS: 5, StagePair: pair},
		{AlignedTimestampNS: 5e9, LatencyMS: 1, StagePair: [2]string{"encoded", "inference_done"}, PowerW: watts(50)},
	}
}

func TestBuild_Statistics(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	report, err := Build(testSamples(), [2]string{"ingress", "encoded"}, fixedClock{now})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if report.SampleCount != 3 || !near(report.DurationSec, 2) {
		t.Fatalf("unexpected count/duration %d/%v", report.SampleCount, report.DurationSec)
	}
	l := report.Latency
	if l.MinMS != 10 || l.MaxMS != 30 || !near(l.MeanMS, 20) || l.MedianMS != 20 || !near(l.StdevMS, 10) {
		t.Fatalf("unexpected latency stats %+v", l)
	}
	if l.P95MS != 30 || l.P99MS != 30 {
		t.Fatalf("expected small-sample percentiles at max, got %+v", l)
	}
	p := report.Power
	if p.MinW != 100 || p.MaxW != 200 || p.MedianW != 100 || !near(p.MeanW, 400.0/3) || !near(p.StdevW, 57.735027) {
		t.Fatalf("unexpected power stats %+v", p)
	}
	e := report.Efficiency
	if !near(e.BestMSPerW, 0.1) || !near(e.WorstMSPerW, 0.2) || !near(e.MeanMSPerW, 0.15) || !near(e.MedianMSPerW, 0.15) {
		t.Fatalf("unexpected efficiency stats %+v", e)
	}
	if len(report.OptimalPoints) != 1 || report.OptimalPoints[0].LatencyMS != 10 {
		t.Fatalf("unexpected optimal points %+v", report.OptimalPoints)
	}
	low, high := report.PowerBuckets["low"], report.PowerBuckets["high"]
	if low.Count != 2 || !near(low.MeanLatencyMS, 15) || high.Count != 1 || high.MeanPowerW != 200 {
		t.Fatalf("unexpected buckets %+v", report.PowerBuckets)
	}
	if _, ok := report.PowerBuckets["medium"]; ok {
		t.Fatalf("expected no medium bucket")
	}
	if !report.GeneratedAt.Equal(now) {
		t.Fatalf("unexpected generated at %v", report.GeneratedAt)
	}
}

func TestBuild_EvenCountMedianAveragesMiddle(t *testing.T) {
	pair := [2]string{"ingress", "encoded"}
	samples := []telemetry.LatencySample{
		{AlignedTimestampNS: 1e9, LatencyMS: 10, StagePair: pair, PowerW: watts(100)},
		{AlignedTimestampNS: 2e9, LatencyMS: 20, StagePair: pair, PowerW: watts(100)},
		{AlignedTimestampNS: 3e9, LatencyMS: 30, StagePair: pair, PowerW: watts(200)},
		{AlignedTimestampNS: 4e9, LatencyMS: 40, StagePair: pair, PowerW: watts(200)},
	}
	report, err := Build(samples, pair, fixedClock{time.Unix(0, 0)})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !near(report.Latency.MedianMS, 25) {
		t.Fatalf("expected latency median 25, got %v", report.Latency.MedianMS)
	}
	if !near(report.Power.MedianW, 150) {
		t.Fatalf("expected power median 150, got %v", report.Power.MedianW)
	}
	if !near(report.Efficiency.MedianMSPerW, 0.175) {
		t.Fatalf("expected efficiency median 0.175, got %v", report.Efficiency.MedianMSPerW)
	}
}

func TestBuild_AllPairs(t *testing.T) {
	report, err := Build(testSamples(), [2]string{}, fixedClock{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if report.SampleCount != 4 {
		t.Fatalf("expected 4 samples across pairs, got %d", report.SampleCount)
	}
}

func TestBuild_TailPercentiles(t *testing.T) {
	var samples []telemetry.LatencySample
	for i := 1; i <= 200; i++ {
		samples = append(samples, telemetry.LatencySample{
			AlignedTimestampNS: int64(i),
			LatencyMS:          float64(i),
			StagePair:          [2]string{"a", "b"},
			PowerW:             watts(100),
		})
	}
	report, err := Build(samples, [2]string{"a", "b"}, fixedClock{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if report.Latency.P95MS != 190 || report.Latency.P99MS != 198 {
		t.Fatalf("unexpected percentiles %+v", report.Latency)
	}
	if len(report.OptimalPoints) != maxOptimalPoints || report.OptimalPoints[0].LatencyMS != 1 {
		t.Fatalf("unexpected optimal points %d", len(report.OptimalPoints))
	}
}

func TestBuild_ZeroPowerIsNotRanked(t *testing.T) {
	samples := []telemetry.LatencySample{
		{LatencyMS: 4, StagePair: [2]string{"a", "b"}, PowerW: watts(0)},
	}
	report, err := Build(samples, [2]string{}, fixedClock{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(report.OptimalPoints) != 0 || report.Efficiency.BestMSPerW != 0 {
		t.Fatalf("expected zero-power samples excluded from efficiency, got %+v", report)
	}
	if _, err := json.Marshal(report); err != nil {
		t.Fatalf("report must be JSON encodable: %v", err)
	}
}

func TestBuild_NoSamples(t *testing.T) {
	samples := []telemetry.LatencySample{{LatencyMS: 1, StagePair: [2]string{"a", "b"}}}
	if _, err := Build(samples, [2]string{}, nil); err != ErrNoSamples {
		t.Fatalf("expected ErrNoSamples, got %v", err)
	}
}

func TestPerformanceScore(t *testing.T) {
	if got := PerformanceScore(TargetLatencyMS*2, 10); got != 0 {
		t.Fatalf("expected 0 beyond budget, got %v", got)
	}
	if got := PerformanceScore(0, 0); got != 100 {
		t.Fatalf("expected 100 at zero latency and power, got %v", got)
	}
}
