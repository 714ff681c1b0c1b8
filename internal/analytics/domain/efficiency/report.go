package efficiency

import (
	"errors"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	telemetry "benchlab-telemetry/internal/telemetry/domain"
)

// TargetLatencyMS is the frame budget used by the performance score (60 fps).
const TargetLatencyMS = 16.67

const (
	optimalPercentile = 5
	maxOptimalPoints  = 10
	lowBucketFactor   = 0.8
	highBucketFactor  = 1.2
)

// ErrNoSamples is returned when no sample carries both latency and power.
var ErrNoSamples = errors.New("efficiency: no samples with power")

// Clock provides time for report generation.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

// Now returns current time.
func (SystemClock) Now() time.Time { return time.Now() }

// LatencyStats summarises latency in milliseconds.
type LatencyStats struct {
	MinMS    float64 `json:"min_ms"`
	MaxMS    float64 `json:"max_ms"`
	MeanMS   float64 `json:"mean_ms"`
	MedianMS float64 `json:"median_ms"`
	StdevMS  float64 `json:"stdev_ms"`
	P95MS    float64 `json:"p95_ms"`
	P99MS    float64 `json:"p99_ms"`
}

// PowerStats summarises attached power in watts.
type PowerStats struct {
	MinW    float64 `json:"min_w"`
	MaxW    float64 `json:"max_w"`
	MeanW   float64 `json:"mean_w"`
	MedianW float64 `json:"median_w"`
	StdevW  float64 `json:"stdev_w"`
}

// EfficiencyStats summarises ms per watt; lower is better.
type EfficiencyStats struct {
	BestMSPerW   float64 `json:"best_ms_per_w"`
	WorstMSPerW  float64 `json:"worst_ms_per_w"`
	MeanMSPerW   float64 `json:"mean_ms_per_w"`
	MedianMSPerW float64 `json:"median_ms_per_w"`
}

// Point is one operating point ranked by efficiency.
type Point struct {
	Timestamp        float64 `json:"timestamp"`
	LatencyMS        float64 `json:"latency_ms"`
	PowerW           float64 `json:"power_w"`
	EfficiencyMSPerW float64 `json:"efficiency_ms_per_w"`
	PerformanceScore float64 `json:"performance_score"`
}

// Bucket groups samples by power relative to the mean.
type Bucket struct {
	Count         int     `json:"count"`
	MeanLatencyMS float64 `json:"mean_latency_ms"`
	MeanPowerW    float64 `json:"mean_power_w"`
}

// Report is the efficiency analysis of one latency stream.
type Report struct {
	GeneratedAt   time.Time         `json:"timestamp"`
	StagePair     [2]string         `json:"stage_pair"`
	SampleCount   int               `json:"sample_count"`
	DurationSec   float64           `json:"duration_sec"`
	Latency       LatencyStats      `json:"latency_stats"`
	Power         PowerStats        `json:"power_stats"`
	Efficiency    EfficiencyStats   `json:"efficiency_stats"`
	OptimalPoints []Point           `json:"optimal_points"`
	PowerBuckets  map[string]Bucket `json:"power_buckets"`
}

// Efficiency returns latency per watt, or +Inf when power is not positive.
func Efficiency(latencyMS, powerW float64) float64 {
	if powerW <= 0 {
		return math.Inf(1)
	}
	return latencyMS / powerW
}

// PerformanceScore balances meeting the frame budget against power draw;
// higher is better.
func PerformanceScore(latencyMS, powerW float64) float64 {
	latencyScore := math.Max(0, 1-latencyMS/TargetLatencyMS)
	return latencyScore * (1 / (powerW + 1)) * 100
}

// Build analyses samples of the given pair. An empty pair accepts every
// sample. Samples without power are skipped.
func Build(samples []telemetry.LatencySample, pair [2]string, clock Clock) (Report, error) {
	if clock == nil {
		clock = SystemClock{}
	}
	points := make([]Point, 0, len(samples))
	for _, s := range samples {
		if s.PowerW == nil {
			continue
		}
		if pair != [2]string{} && s.StagePair != pair {
			continue
		}
		points = append(points, Point{
			Timestamp:        float64(s.AlignedTimestampNS) / 1e9,
			LatencyMS:        s.LatencyMS,
			PowerW:           *s.PowerW,
			EfficiencyMSPerW: Efficiency(s.LatencyMS, *s.PowerW),
			PerformanceScore: PerformanceScore(s.LatencyMS, *s.PowerW),
		})
	}
	if len(points) == 0 {
		return Report{}, ErrNoSamples
	}

	latencies := make([]float64, len(points))
	powers := make([]float64, len(points))
	var efficiencies []float64
	for i, p := range points {
		latencies[i] = p.LatencyMS
		powers[i] = p.PowerW
		if p.PowerW > 0 {
			efficiencies = append(efficiencies, p.EfficiencyMSPerW)
		}
	}

	report := Report{
		GeneratedAt: clock.Now().UTC(),
		StagePair:   pair,
		SampleCount: len(points),
		Latency:     latencyStats(latencies),
		Power:       powerStats(powers),
		Efficiency:  efficiencyStats(efficiencies),
	}
	if len(points) > 1 {
		report.DurationSec = points[len(points)-1].Timestamp - points[0].Timestamp
	}
	report.OptimalPoints = optimalPoints(points)
	report.PowerBuckets = powerBuckets(points, report.Power.MeanW)
	return report, nil
}

func sortedCopy(values []float64) []float64 {
	out := append([]float64(nil), values...)
	sort.Float64s(out)
	return out
}

// median averages the two middle values of an even-length sorted slice.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func stdev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return stat.StdDev(values, nil)
}

func latencyStats(values []float64) LatencyStats {
	sorted := sortedCopy(values)
	n := len(sorted)
	out := LatencyStats{
		MinMS:    sorted[0],
		MaxMS:    sorted[n-1],
		MeanMS:   stat.Mean(sorted, nil),
		MedianMS: median(sorted),
		StdevMS:  stdev(sorted),
		P95MS:    sorted[n-1],
		P99MS:    sorted[n-1],
	}
	// Small samples report the maximum for tail percentiles.
	if n > 20 {
		out.P95MS = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	}
	if n > 100 {
		out.P99MS = stat.Quantile(0.99, stat.Empirical, sorted, nil)
	}
	return out
}

func powerStats(values []float64) PowerStats {
	sorted := sortedCopy(values)
	return PowerStats{
		MinW:    sorted[0],
		MaxW:    sorted[len(sorted)-1],
		MeanW:   stat.Mean(sorted, nil),
		MedianW: median(sorted),
		StdevW:  stdev(sorted),
	}
}

func efficiencyStats(values []float64) EfficiencyStats {
	if len(values) == 0 {
		return EfficiencyStats{}
	}
	sorted := sortedCopy(values)
	return EfficiencyStats{
		BestMSPerW:   sorted[0],
		WorstMSPerW:  sorted[len(sorted)-1],
		MeanMSPerW:   stat.Mean(sorted, nil),
		MedianMSPerW: median(sorted),
	}
}

func optimalPoints(points []Point) []Point {
	ranked := make([]Point, 0, len(points))
	for _, p := range points {
		if !math.IsInf(p.EfficiencyMSPerW, 0) {
			ranked = append(ranked, p)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].EfficiencyMSPerW < ranked[j].EfficiencyMSPerW
	})
	count := len(points) * optimalPercentile / 100
	if count < 1 {
		count = 1
	}
	if count > maxOptimalPoints {
		count = maxOptimalPoints
	}
	if count > len(ranked) {
		count = len(ranked)
	}
	return ranked[:count]
}

func powerBuckets(points []Point, meanW float64) map[string]Bucket {
	type acc struct {
		n            int
		latSum, pSum float64
	}
	accs := map[string]*acc{}
	for _, p := range points {
		name := "medium"
		switch {
		case p.PowerW < meanW*lowBucketFactor:
			name = "low"
		case p.PowerW > meanW*highBucketFactor:
			name = "high"
		}
		a := accs[name]
		if a == nil {
			a = &acc{}
			accs[name] = a
		}
		a.n++
		a.latSum += p.LatencyMS
		a.pSum += p.PowerW
	}
	out := make(map[string]Bucket, len(accs))
	for name, a := range accs {
		out[name] = Bucket{
			Count:         a.n,
			MeanLatencyMS: a.latSum / float64(a.n),
			MeanPowerW:    a.pSum / float64(a.n),
		}
	}
	return out
}
