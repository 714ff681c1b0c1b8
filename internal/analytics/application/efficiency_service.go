package application

import (
	"context"
	"errors"
	"fmt"

	efficiency "benchlab-telemetry/internal/analytics/domain/efficiency"
	telemetry "benchlab-telemetry/internal/telemetry/domain"
)

// EfficiencyService builds efficiency reports from persisted latency samples.
type EfficiencyService struct {
	query telemetry.LatencyQuery
	clock efficiency.Clock
}

// EfficiencyOption customizes the service.
type EfficiencyOption func(*EfficiencyService)

// WithClock assigns a clock.
func WithClock(clock efficiency.Clock) EfficiencyOption {
	return func(s *EfficiencyService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewEfficiencyService constructs the service.
func NewEfficiencyService(query telemetry.LatencyQuery, opts ...EfficiencyOption) (*EfficiencyService, error) {
	if query == nil {
		return nil, errors.New("efficiency: nil latency query")
	}
	s := &EfficiencyService{query: query, clock: efficiency.SystemClock{}}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Report loads the samples of pair and analyses them.
func (s *EfficiencyService) Report(ctx context.Context, pair [2]string) (efficiency.Report, error) {
	samples, err := s.query.ListSamples(ctx, pair)
	if err != nil {
		return efficiency.Report{}, fmt.Errorf("efficiency: load samples: %w", err)
	}
	return efficiency.Build(samples, pair, s.clock)
}
