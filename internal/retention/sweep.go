package retention

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"benchlab-telemetry/internal/session"
)

// Defaults for the retention policy, in days.
const (
	DefaultDays        = 90
	DefaultRawKeepDays = 7
)

// Policy bounds how long session data is kept.
type Policy struct {
	// Days removes whole sessions older than this.
	Days int
	// RawKeepDays removes the raw inputs of older sessions, keeping aligned output.
	RawKeepDays int
}

// Result lists what one sweep removed.
type Result struct {
	RawRemoved      []string
	SessionsRemoved []string
}

// Sweeper applies a retention policy to a data root.
type Sweeper struct {
	dataRoot string
	policy   Policy
	now      func() time.Time
	logger   *log.Logger
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithNow overrides the clock.
func WithNow(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSweeper validates the policy and constructs a sweeper.
func NewSweeper(dataRoot string, policy Policy, opts ...Option) (*Sweeper, error) {
	if dataRoot == "" {
		return nil, errors.New("retention: empty data root")
	}
	if policy.Days <= 0 || policy.RawKeepDays < 0 {
		return nil, fmt.Errorf("retention: invalid policy %+v", policy)
	}
	s := &Sweeper{dataRoot: dataRoot, policy: policy, now: time.Now, logger: log.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Sweep removes expired raw directories and sessions once.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	var res Result
	layouts, err := session.List(s.dataRoot)
	if err != nil {
		return res, fmt.Errorf("retention: list sessions: %w", err)
	}
	now := s.now().UTC()
	for _, layout := range layouts {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		started, ok := session.ParseID(layout.ID)
		if !ok {
			info, err := os.Stat(layout.Dir)
			if err != nil {
				continue
			}
			started = info.ModTime().UTC()
		}
		ageDays := int(now.Sub(started).Hours() / 24)

		if ageDays > s.policy.Days {
			if err := os.RemoveAll(layout.Dir); err != nil {
				s.logger.Printf("retention: remove session %s: %v", layout.ID, err)
				continue
			}
			res.SessionsRemoved = append(res.SessionsRemoved, layout.ID)
			continue
		}
		if ageDays > s.policy.RawKeepDays {
			if _, err := os.Stat(layout.RawDir); err != nil {
				continue
			}
			if err := os.RemoveAll(layout.RawDir); err != nil {
				s.logger.Printf("retention: remove raw %s: %v", layout.ID, err)
				continue
			}
			res.RawRemoved = append(res.RawRemoved, layout.ID)
		}
	}
	return res, nil
}

// Run sweeps immediately and then every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("retention: interval must be positive")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		res, err := s.Sweep(ctx)
		if err != nil && ctx.Err() == nil {
			s.logger.Printf("retention: sweep failed: %v", err)
		} else if err == nil {
			s.logger.Printf("retention: removed %d sessions, %d raw dirs", len(res.SessionsRemoved), len(res.RawRemoved))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
