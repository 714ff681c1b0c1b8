package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"

	"benchlab-telemetry/internal/observability/metrics"
	telemetry "benchlab-telemetry/internal/telemetry/domain"
)

// Publisher fans derived samples out to the durable stream, the optional SQL
// sink and the metrics registry. It is driven by the engine goroutine only.
type Publisher struct {
	stream     telemetry.LatencyStream
	repo       telemetry.LatencyRepository
	metrics    *metrics.Metrics
	logger     *log.Logger
	deviceSeen bool
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithRepository adds a secondary SQL sink.
func WithRepository(repo telemetry.LatencyRepository) PublisherOption {
	return func(p *Publisher) {
		p.repo = repo
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger *log.Logger) PublisherOption {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPublisher constructs a publisher.
func NewPublisher(stream telemetry.LatencyStream, m *metrics.Metrics, opts ...PublisherOption) (*Publisher, error) {
	if stream == nil {
		return nil, errors.New("publisher: nil latency stream")
	}
	if m == nil {
		return nil, errors.New("publisher: nil metrics")
	}
	p := &Publisher{stream: stream, metrics: m, logger: log.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// PublishLatency persists the sample and updates the latency and power
// gauges. Gauges are updated even if a sink fails.
func (p *Publisher) PublishLatency(ctx context.Context, sample telemetry.LatencySample) error {
	var errs []error
	if err := p.stream.Append(ctx, sample); err != nil {
		errs = append(errs, fmt.Errorf("publisher: stream: %w", err))
	}
	if p.repo != nil {
		if err := p.repo.InsertSamples(ctx, []telemetry.LatencySample{sample}); err != nil {
			errs = append(errs, fmt.Errorf("publisher: sql sink: %w", err))
		}
	}
	p.metrics.ObserveLatency(sample.PairLabel(), sample.LatencyMS)
	if sample.PowerW != nil {
		p.metrics.SetPower(*sample.PowerW)
	}
	return errors.Join(errs...)
}

// PublishSensors republishes every raw channel of a benchlab sample.
func (p *Publisher) PublishSensors(sample telemetry.BenchlabSample) {
	m := p.metrics
	if sample.Power.Kind != telemetry.PowerKindNone {
		m.SetPower(sample.Power.TotalW)
	}
	for _, rail := range sample.Power.Rails {
		m.SetRail(telemetry.RailLabel(rail.Rail), rail.Voltage, rail.Current, rail.Power)
	}
	for _, ch := range sample.Voltages {
		if ch.Name == "" {
			continue
		}
		m.Voltage.WithLabelValues(ch.Name).Set(ch.Voltage)
	}
	for _, fan := range sample.Fans {
		m.SetFan(strconv.Itoa(fan.Fan), fan.Enabled, fan.Duty, fan.RPM)
	}
	for _, name := range telemetry.SortedKeys(sample.Temperatures) {
		m.Temperature.WithLabelValues(name).Set(sample.Temperatures[name])
	}
	if sample.Humidity != nil {
		m.Humidity.Set(*sample.Humidity)
	}
	for _, name := range telemetry.SortedKeys(sample.ReferenceVoltages) {
		m.ReferenceVoltage.WithLabelValues(name).Set(sample.ReferenceVoltages[name])
	}
	if sample.Device != nil && !p.deviceSeen {
		d := sample.Device
		m.SetDeviceInfo(d.Name, d.VendorID, d.ProductID, d.FirmwareVersion)
		p.deviceSeen = true
		p.logger.Printf("publisher: device %s vendor=%s product=%s fw=%s", d.Name, d.VendorID, d.ProductID, d.FirmwareVersion)
	}
	if sample.CalibrationValid != nil {
		m.SetCalibrationValid(*sample.CalibrationValid)
	}
}

// PublishPassthrough exposes numeric fields of non-pairing sources.
func (p *Publisher) PublishPassthrough(rec telemetry.Record) {
	values := rec.NumericFields()
	for _, field := range telemetry.SortedKeys(values) {
		p.metrics.SourceValue.WithLabelValues(rec.Source, field).Set(values[field])
	}
}

// IncDropped counts events lost without producing a sample.
func (p *Publisher) IncDropped(reason string, n int) {
	p.metrics.IncDropped(reason, n)
}
