package metrics

import (
	"context"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const countTimeout = 2 * time.Second

// SampleCounter reports the rows the current session has written to a sink.
type SampleCounter interface {
	CountSamples(ctx context.Context) (int64, error)
}

// RegisterSinkMetrics exposes the number of latency samples the running
// session has stored in the SQL sink.
func RegisterSinkMetrics(reg prometheus.Registerer, counter SampleCounter, logger *log.Logger) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "sink_rows",
			Help: "Latency samples stored in the SQL sink by this session",
		},
		func() float64 {
			return queryCount(counter, logger)
		},
	))
}

func queryCount(counter SampleCounter, logger *log.Logger) float64 {
	if counter == nil {
		return 0
	}
	ctx, cancel := context.WithTimeout(context.Background(), countTimeout)
	defer cancel()
	count, err := counter.CountSamples(ctx)
	if err != nil {
		if logger != nil {
			logger.Printf("metrics query failed: %v", err)
		}
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
