package simulate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"benchlab-telemetry/internal/session"
	"benchlab-telemetry/internal/telemetry/infrastructure/jsonl"
)

// Runner drives the synthetic producers for one session.
type Runner struct {
	layout session.Layout
	period time.Duration
	host   HostSampler
	seed   int64
	start  time.Time
	logger *log.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithHostSampler overrides the gopsutil host sampler.
func WithHostSampler(s HostSampler) Option {
	return func(r *Runner) {
		if s != nil {
			r.host = s
		}
	}
}

// WithSeed fixes the pipeline jitter sequence.
func WithSeed(seed int64) Option {
	return func(r *Runner) {
		r.seed = seed
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger *log.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner builds a runner sampling host telemetry at sampleHz.
func NewRunner(layout session.Layout, sampleHz float64, opts ...Option) (*Runner, error) {
	if layout.RawDir == "" {
		return nil, errors.New("simulate: empty session layout")
	}
	if sampleHz <= 0 {
		return nil, errors.New("simulate: sample rate must be positive")
	}
	r := &Runner{
		layout: layout,
		period: time.Duration(float64(time.Second) / sampleHz),
		host:   PsutilSampler{},
		seed:   time.Now().UnixNano(),
		start:  time.Now(),
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

type streams struct {
	pipeline  *jsonl.Stream
	benchlab  *jsonl.Stream
	telemetry *jsonl.Stream
}

func (r *Runner) open() (*streams, error) {
	var s streams
	var err error
	if s.pipeline, err = jsonl.OpenStream(r.layout.RawPath(session.RawPipeline)); err != nil {
		return nil, err
	}
	if s.benchlab, err = jsonl.OpenStream(r.layout.RawPath(session.RawBenchlab)); err != nil {
		s.close()
		return nil, err
	}
	if s.telemetry, err = jsonl.OpenStream(r.layout.RawPath(session.RawTelemetry)); err != nil {
		s.close()
		return nil, err
	}
	return &s, nil
}

func (s *streams) close() {
	for _, st := range []*jsonl.Stream{s.pipeline, s.benchlab, s.telemetry} {
		if st != nil {
			_ = st.Close()
		}
	}
}

func (r *Runner) nowNS() int64 {
	return time.Since(r.start).Nanoseconds()
}

// Run appends synthetic records in real time until ctx is cancelled.
// Timestamps are nanoseconds since the runner was created.
func (r *Runner) Run(ctx context.Context) error {
	s, err := r.open()
	if err != nil {
		return err
	}
	defer s.close()
	r.logger.Printf("simulate: writing synthetic producers to %s", r.layout.RawDir)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rng := rand.New(rand.NewSource(r.seed))
		for {
			t0 := r.nowNS()
			frame, next := pipelineFrame(t0, rng)
			for _, tr := range frame {
				if err := sleepUntil(ctx, r.start, t0+int64(tr.after)); err != nil {
					return nil
				}
				tr.rec.TimestampNS = r.nowNS()
				if err := s.pipeline.AppendRecord(ctx, tr.rec); err != nil {
					return ignoreCanceled(ctx, err)
				}
			}
			if err := sleepUntil(ctx, r.start, t0+int64(next)); err != nil {
				return nil
			}
		}
	})
	g.Go(func() error {
		return r.every(ctx, benchlabPeriod, func(ts int64) error {
			return s.benchlab.AppendRecord(ctx, benchlabSample(ts, time.Duration(ts).Seconds()))
		})
	})
	g.Go(func() error {
		return r.every(ctx, r.period, func(ts int64) error {
			if err := s.telemetry.AppendRecord(ctx, gpuSample(ts, time.Duration(ts).Seconds())); err != nil {
				return err
			}
			rec, err := hostRecord(ctx, r.host, r.nowNS())
			if err != nil {
				r.logger.Printf("simulate: host sample: %v", err)
				return nil
			}
			return s.telemetry.AppendRecord(ctx, rec)
		})
	})
	return g.Wait()
}

func (r *Runner) every(ctx context.Context, period time.Duration, fn func(ts int64) error) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		if err := fn(r.nowNS()); err != nil {
			return ignoreCanceled(ctx, err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Generate writes a deterministic batch covering span of virtual time
// without sleeping. Run-once sessions use it to have data to drain.
func (r *Runner) Generate(ctx context.Context, span time.Duration) (int, error) {
	s, err := r.open()
	if err != nil {
		return 0, err
	}
	defer s.close()

	written := 0
	rng := rand.New(rand.NewSource(r.seed))
	for t := time.Duration(0); t < span; {
		frame, next := pipelineFrame(int64(t), rng)
		for _, tr := range frame {
			if err := s.pipeline.AppendRecord(ctx, tr.rec); err != nil {
				return written, err
			}
			written++
		}
		t += next
	}
	for t := time.Duration(0); t < span; t += benchlabPeriod {
		if err := s.benchlab.AppendRecord(ctx, benchlabSample(int64(t), t.Seconds())); err != nil {
			return written, err
		}
		written++
	}
	for t := time.Duration(0); t < span; t += r.period {
		if err := s.telemetry.AppendRecord(ctx, gpuSample(int64(t), t.Seconds())); err != nil {
			return written, err
		}
		written++
	}
	rec, err := hostRecord(ctx, r.host, int64(span))
	if err != nil {
		r.logger.Printf("simulate: host sample: %v", err)
		return written, nil
	}
	if err := s.telemetry.AppendRecord(ctx, rec); err != nil {
		return written, fmt.Errorf("simulate: %w", err)
	}
	return written + 1, nil
}

func sleepUntil(ctx context.Context, start time.Time, offsetNS int64) error {
	wait := time.Until(start.Add(time.Duration(offsetNS)))
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func ignoreCanceled(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}
