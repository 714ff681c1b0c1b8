package latency

import (
	"errors"

	telemetry "benchlab-telemetry/internal/telemetry/domain"
)

const (
	// WindowNS bounds |tb-ta| for two stage heads to be paired.
	WindowNS int64 = 2_000_000_000
	// MaxBufferSize caps each stage queue.
	MaxBufferSize = 100
)

// ErrSameStage is returned when both configured stages are identical.
var ErrSameStage = errors.New("latency: stage a and stage b must differ")

// Hook receives the stage name of events dropped without pairing.
type Hook func(stage string)

// Pairer joins two stage streams into latency samples.
type Pairer struct {
	a, b      string
	bufA      *boundedQueue
	bufB      *boundedQueue
	onEvict   Hook
	onDiscard Hook
}

// Option configures a Pairer.
type Option func(*Pairer)

// WithEvictionHook is called once per event evicted from a full queue.
func WithEvictionHook(h Hook) Option {
	return func(p *Pairer) {
		p.onEvict = h
	}
}

// WithDiscardHook is called once per head discarded as outside the window.
func WithDiscardHook(h Hook) Option {
	return func(p *Pairer) {
		p.onDiscard = h
	}
}

// WithCapacity overrides MaxBufferSize.
func WithCapacity(n int) Option {
	return func(p *Pairer) {
		if n > 0 {
			p.bufA = newBoundedQueue(n)
			p.bufB = newBoundedQueue(n)
		}
	}
}

// NewPairer constructs a pairer for stage a -> stage b.
func NewPairer(a, b string, opts ...Option) (*Pairer, error) {
	if a == "" || b == "" {
		return nil, errors.New("latency: empty stage name")
	}
	if a == b {
		return nil, ErrSameStage
	}
	p := &Pairer{
		a:    a,
		b:    b,
		bufA: newBoundedQueue(MaxBufferSize),
		bufB: newBoundedQueue(MaxBufferSize),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Stages returns the configured stage pair.
func (p *Pairer) Stages() [2]string {
	return [2]string{p.a, p.b}
}

// Add enqueues a stage event. Events for other stages are ignored.
func (p *Pairer) Add(ev telemetry.StageEvent) {
	switch ev.Stage {
	case p.a:
		if p.bufA.push(ev) && p.onEvict != nil {
			p.onEvict(p.a)
		}
	case p.b:
		if p.bufB.push(ev) && p.onEvict != nil {
			p.onEvict(p.b)
		}
	}
}

// Pending returns the queue lengths for stage a and stage b.
func (p *Pairer) Pending() (int, int) {
	return p.bufA.len(), p.bufB.len()
}

// DrainPairs emits every pair available from the queue heads. Power is not
// attached here.
func (p *Pairer) DrainPairs() []telemetry.LatencySample {
	var out []telemetry.LatencySample
	for p.bufA.len() > 0 && p.bufB.len() > 0 {
		ta := p.bufA.peek().AlignedTimestampNS
		tb := p.bufB.peek().AlignedTimestampNS
		if tb < ta && ta-tb > WindowNS {
			p.bufB.pop()
			if p.onDiscard != nil {
				p.onDiscard(p.b)
			}
			continue
		}
		if ta < tb && tb-ta > WindowNS {
			p.bufA.pop()
			if p.onDiscard != nil {
				p.onDiscard(p.a)
			}
			continue
		}
		// Inside the window in either order; tb < ta yields a negative latency.
		p.bufA.pop()
		p.bufB.pop()
		out = append(out, telemetry.LatencySample{
			AlignedTimestampNS: ta,
			LatencyMS:          float64(tb-ta) / 1e6,
			StagePair:          [2]string{p.a, p.b},
		})
	}
	return out
}
