package application

import (
	"context"
	"errors"
	"log"
	"time"

	latency "benchlab-telemetry/internal/latency/domain"
	"benchlab-telemetry/internal/observability/metrics"
	power "benchlab-telemetry/internal/power/domain"
	telemetry "benchlab-telemetry/internal/telemetry/domain"
)

// DefaultIdleInterval is the sleep after a round in which no source had data.
const DefaultIdleInterval = 50 * time.Millisecond

// LineReader yields complete lines without blocking.
type LineReader interface {
	Poll() (line []byte, ok bool, err error)
}

// Source is one named input polled by the engine.
type Source struct {
	Name   string
	Reader LineReader
}

// Publisher receives everything the engine derives.
type Publisher interface {
	PublishLatency(ctx context.Context, sample telemetry.LatencySample) error
	PublishSensors(sample telemetry.BenchlabSample)
	PublishPassthrough(rec telemetry.Record)
	IncDropped(reason string, n int)
}

// Config describes the engine inputs.
type Config struct {
	Sources      []Source
	StageA       string
	StageB       string
	IdleInterval time.Duration
	Aligner      Aligner
	// QueueCapacity overrides latency.MaxBufferSize when positive.
	QueueCapacity int
}

// Stats counts what the engine has processed so far.
type Stats struct {
	Lines         int
	DecodeErrors  int
	Samples       int
	PowerUpdates  int
	Passthrough   int
	PublishErrors int
}

// Engine multiplexes every source in a fixed round-robin order. All state is
// owned by the goroutine calling Tick, Run or Drain.
type Engine struct {
	sources   []Source
	aligner   Aligner
	idle      time.Duration
	pairer    *latency.Pairer
	power     *power.Correlator
	publisher Publisher
	logger    *log.Logger
	stats     Stats
}

// NewEngine constructs an engine.
func NewEngine(cfg Config, publisher Publisher, logger *log.Logger) (*Engine, error) {
	if publisher == nil {
		return nil, errors.New("mux: nil publisher")
	}
	if len(cfg.Sources) == 0 {
		return nil, errors.New("mux: no sources")
	}
	for _, src := range cfg.Sources {
		if src.Reader == nil {
			return nil, errors.New("mux: nil reader for source " + src.Name)
		}
	}
	if logger == nil {
		logger = log.Default()
	}
	e := &Engine{
		sources:   append([]Source(nil), cfg.Sources...),
		aligner:   cfg.Aligner,
		idle:      cfg.IdleInterval,
		power:     power.NewCorrelator(),
		publisher: publisher,
		logger:    logger,
	}
	if e.aligner == nil {
		e.aligner = IdentityAligner{}
	}
	if e.idle <= 0 {
		e.idle = DefaultIdleInterval
	}

	opts := []latency.Option{
		latency.WithEvictionHook(func(string) {
			publisher.IncDropped(metrics.DropReasonEvicted, 1)
		}),
		latency.WithDiscardHook(func(string) {
			publisher.IncDropped(metrics.DropReasonStale, 1)
		}),
	}
	if cfg.QueueCapacity > 0 {
		opts = append(opts, latency.WithCapacity(cfg.QueueCapacity))
	}
	pairer, err := latency.NewPairer(cfg.StageA, cfg.StageB, opts...)
	if err != nil {
		return nil, err
	}
	e.pairer = pairer
	return e, nil
}

// Stats returns a copy of the processing counters.
func (e *Engine) Stats() Stats {
	return e.stats
}

// LastPower exposes the correlator state.
func (e *Engine) LastPower() (float64, bool) {
	return e.power.Last()
}

// Tick polls each source once and processes at most one line per source.
// It reports whether any source produced a line.
func (e *Engine) Tick(ctx context.Context) bool {
	progressed := false
	for _, src := range e.sources {
		line, ok, err := src.Reader.Poll()
		if errors.Is(err, telemetry.ErrLineTooLong) {
			progressed = true
			e.stats.Lines++
			e.dropDecode(src.Name, err)
			continue
		}
		if err != nil {
			e.logger.Printf("mux: poll %s: %v", src.Name, err)
			continue
		}
		if !ok {
			continue
		}
		progressed = true
		e.handleLine(ctx, src.Name, line)
	}
	return progressed
}

// Run ticks until ctx is cancelled, sleeping only after idle rounds.
func (e *Engine) Run(ctx context.Context) error {
	pair := e.pairer.Stages()
	e.logger.Printf("mux: following %d sources, pairing %s->%s", len(e.sources), pair[0], pair[1])
	timer := time.NewTimer(e.idle)
	defer timer.Stop()
	for {
		if ctx.Err() != nil {
			return nil
		}
		if e.Tick(ctx) {
			continue
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(e.idle)
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
	}
}

// Drain ticks until a full round produces nothing.
func (e *Engine) Drain(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !e.Tick(ctx) {
			return nil
		}
	}
}

func (e *Engine) handleLine(ctx context.Context, source string, line []byte) {
	e.stats.Lines++
	rec, err := telemetry.DecodeRecord(line)
	if err != nil {
		if errors.Is(err, telemetry.ErrEmptyLine) {
			return
		}
		e.dropDecode(source, err)
		return
	}
	aligned := e.aligner.Align(rec)

	switch rec.Class() {
	case telemetry.ClassPower:
		sample, err := telemetry.DecodeBenchlab(rec)
		if err != nil {
			e.dropDecode(source, err)
			return
		}
		sample.TimestampNS = aligned
		if e.power.Observe(sample.Power) {
			e.stats.PowerUpdates++
		}
		e.publisher.PublishSensors(sample)
	case telemetry.ClassPipeline:
		e.pairer.Add(telemetry.StageEvent{Stage: rec.Stage(), AlignedTimestampNS: aligned})
		for _, sample := range e.pairer.DrainPairs() {
			sample.PowerW = e.power.LastPtr()
			e.stats.Samples++
			if err := e.publisher.PublishLatency(ctx, sample); err != nil {
				e.stats.PublishErrors++
				e.logger.Printf("mux: publish latency %s: %v", sample.PairLabel(), err)
			}
		}
	default:
		e.stats.Passthrough++
		e.publisher.PublishPassthrough(rec)
	}
}

func (e *Engine) dropDecode(source string, err error) {
	e.stats.DecodeErrors++
	e.publisher.IncDropped(metrics.DropReasonDecode, 1)
	e.logger.Printf("mux: drop malformed line from %s: %v", source, err)
}
