package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "benchlab_"

	// Drop reasons for the unpaired/dropped counter.
	DropReasonEvicted = "evicted"
	DropReasonStale   = "stale"
	DropReasonDecode  = "decode"
)

// Metrics bundles the collectors exposed on the pull endpoint.
type Metrics struct {
	PipelineLatency *prometheus.GaugeVec
	LatencySamples  *prometheus.CounterVec
	Dropped         *prometheus.CounterVec

	PowerTotal  prometheus.Gauge
	Voltage     *prometheus.GaugeVec
	RailVoltage *prometheus.GaugeVec
	RailCurrent *prometheus.GaugeVec
	RailPower   *prometheus.GaugeVec

	FanEnabled *prometheus.GaugeVec
	FanDuty    *prometheus.GaugeVec
	FanRPM     *prometheus.GaugeVec

	Temperature      *prometheus.GaugeVec
	Humidity         prometheus.Gauge
	ReferenceVoltage *prometheus.GaugeVec

	DeviceInfo       *prometheus.GaugeVec
	CalibrationValid prometheus.Gauge

	SourceValue *prometheus.GaugeVec
}

// New constructs collectors and registers them with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		PipelineLatency: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "pipeline_latency_ms",
				Help: "Latency in ms between the configured pipeline stages",
			},
			[]string{"pair"},
		),
		LatencySamples: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "latency_samples_total",
				Help: "Total latency samples emitted by stage pair",
			},
			[]string{"pair"},
		),
		Dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "pipeline_dropped_total",
				Help: "Unpaired or dropped pipeline events by reason",
			},
			[]string{"reason"},
		),
		PowerTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "power_w",
			Help: "System power (W)",
		}),
		Voltage: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "voltage_v",
				Help: "Measured voltage per channel",
			},
			[]string{"channel"},
		),
		RailVoltage: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "rail_voltage_v",
				Help: "Voltage per power rail",
			},
			[]string{"rail"},
		),
		RailCurrent: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "rail_current_a",
				Help: "Current per power rail",
			},
			[]string{"rail"},
		),
		RailPower: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "rail_power_w",
				Help: "Power per power rail",
			},
			[]string{"rail"},
		),
		FanEnabled: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "fan_enabled",
				Help: "Fan enabled state (0/1)",
			},
			[]string{"fan"},
		),
		FanDuty: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "fan_duty_percent",
				Help: "Fan duty cycle in percent",
			},
			[]string{"fan"},
		),
		FanRPM: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "fan_rpm",
				Help: "Fan speed in RPM",
			},
			[]string{"fan"},
		),
		Temperature: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "temperature_c",
				Help: "Temperature per sensor in Celsius",
			},
			[]string{"sensor"},
		),
		Humidity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "humidity_percent",
			Help: "Relative humidity in percent",
		}),
		ReferenceVoltage: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "reference_voltage_v",
				Help: "Reference voltages reported by the device",
			},
			[]string{"name"},
		),
		DeviceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "device_info",
				Help: "Measuring device identity",
			},
			[]string{"name", "vendor_id", "product_id", "firmware"},
		),
		CalibrationValid: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "calibration_valid",
			Help: "Whether the device calibration is valid (0/1)",
		}),
		SourceValue: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "source_value",
				Help: "Latest numeric field value from passthrough sources",
			},
			[]string{"source", "field"},
		),
	}
	reg.MustRegister(
		m.PipelineLatency,
		m.LatencySamples,
		m.Dropped,
		m.PowerTotal,
		m.Voltage,
		m.RailVoltage,
		m.RailCurrent,
		m.RailPower,
		m.FanEnabled,
		m.FanDuty,
		m.FanRPM,
		m.Temperature,
		m.Humidity,
		m.ReferenceVoltage,
		m.DeviceInfo,
		m.CalibrationValid,
		m.SourceValue,
	)
	return m
}

// IncDropped adds n to the dropped counter for reason.
func (m *Metrics) IncDropped(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.Dropped.WithLabelValues(reason).Add(float64(n))
}

// ObserveLatency sets the latency gauge and counts the sample.
func (m *Metrics) ObserveLatency(pair string, latencyMS float64) {
	if m == nil {
		return
	}
	m.PipelineLatency.WithLabelValues(pair).Set(latencyMS)
	m.LatencySamples.WithLabelValues(pair).Inc()
}

// SetPower sets the total power gauge.
func (m *Metrics) SetPower(watts float64) {
	if m == nil {
		return
	}
	m.PowerTotal.Set(watts)
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

// SetCalibrationValid sets the calibration gauge to 0 or 1.
func (m *Metrics) SetCalibrationValid(valid bool) {
	if m == nil {
		return
	}
	m.CalibrationValid.Set(boolGauge(valid))
}

// SetFan sets all gauges for one fan.
func (m *Metrics) SetFan(fan string, enabled bool, duty, rpm float64) {
	if m == nil {
		return
	}
	m.FanEnabled.WithLabelValues(fan).Set(boolGauge(enabled))
	m.FanDuty.WithLabelValues(fan).Set(duty)
	m.FanRPM.WithLabelValues(fan).Set(rpm)
}

// SetRail sets all gauges for one power rail.
func (m *Metrics) SetRail(rail string, voltage, current, power float64) {
	if m == nil {
		return
	}
	m.RailVoltage.WithLabelValues(rail).Set(voltage)
	m.RailCurrent.WithLabelValues(rail).Set(current)
	m.RailPower.WithLabelValues(rail).Set(power)
}

// SetDeviceInfo publishes the device identity series with value 1.
func (m *Metrics) SetDeviceInfo(name, vendorID, productID, firmware string) {
	if m == nil {
		return
	}
	m.DeviceInfo.WithLabelValues(name, vendorID, productID, firmware).Set(1)
}
