package telemetry

import (
	"context"
	"encoding/json"
	"errors"
)

// LatencySample is one paired stage-A/stage-B measurement.
type LatencySample struct {
	AlignedTimestampNS int64
	LatencyMS          float64
	StagePair          [2]string
	PowerW             *float64
}

// PairLabel formats the stage pair as a single metric label value.
func (s LatencySample) PairLabel() string {
	return s.StagePair[0] + "->" + s.StagePair[1]
}

type latencyLine struct {
	AlignedTimestampNS int64         `json:"aligned_timestamp_ns"`
	Source             string        `json:"source"`
	Fields             latencyFields `json:"fields"`
}

type latencyFields struct {
	LatencyMS float64   `json:"latency_ms"`
	StagePair [2]string `json:"stage_pair"`
	PowerW    *float64  `json:"power_w"`
}

// MarshalJSON renders the sample in the aligned output stream format.
func (s LatencySample) MarshalJSON() ([]byte, error) {
	return json.Marshal(latencyLine{
		AlignedTimestampNS: s.AlignedTimestampNS,
		Source:             SourceLatency,
		Fields: latencyFields{
			LatencyMS: s.LatencyMS,
			StagePair: s.StagePair,
			PowerW:    s.PowerW,
		},
	})
}

// UnmarshalJSON parses an aligned output stream line.
func (s *LatencySample) UnmarshalJSON(data []byte) error {
	var line latencyLine
	if err := json.Unmarshal(data, &line); err != nil {
		return err
	}
	if line.Source != "" && line.Source != SourceLatency {
		return errors.New("telemetry: not a latency record")
	}
	*s = LatencySample{
		AlignedTimestampNS: line.AlignedTimestampNS,
		LatencyMS:          line.Fields.LatencyMS,
		StagePair:          line.Fields.StagePair,
		PowerW:             line.Fields.PowerW,
	}
	return nil
}

// LatencyStream persists latency samples durably.
type LatencyStream interface {
	Append(ctx context.Context, sample LatencySample) error
}

// LatencyRepository stores latency samples in a queryable store.
type LatencyRepository interface {
	InsertSamples(ctx context.Context, samples []LatencySample) error
}

// LatencyQuery loads persisted samples of one stage pair in timestamp order.
type LatencyQuery interface {
	ListSamples(ctx context.Context, pair [2]string) ([]LatencySample, error)
}
