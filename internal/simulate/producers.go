package simulate

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	telemetry "benchlab-telemetry/internal/telemetry/domain"
)

// Source tags written by the synthetic producers.
const (
	SourceBenchlabUSB = "benchlab.usb"
	SourceGPU         = "gpu.nvml"
	SourceCPU         = "cpu.psutil"
)

// Pipeline stage tags emitted per synthetic frame.
const (
	StageIngress       = "ingress"
	StageEncoded       = "encoded"
	StageInferenceDone = "inference_done"
)

const (
	encodeDelay   = 10 * time.Millisecond
	inferenceBase = 20 * time.Millisecond
	inferenceJit  = 20 * time.Millisecond
	frameGap      = 10 * time.Millisecond

	benchlabPeriod = 100 * time.Millisecond
)

type timedRecord struct {
	after time.Duration
	rec   telemetry.Record
}

// pipelineFrame returns one ingress/encoded/inference_done triple starting at
// t0 and the offset of the next frame.
func pipelineFrame(t0 int64, rng *rand.Rand) ([]timedRecord, time.Duration) {
	inference := inferenceBase + time.Duration(rng.Int63n(int64(inferenceJit)))
	stages := []struct {
		stage string
		at    time.Duration
	}{
		{StageIngress, 0},
		{StageEncoded, encodeDelay},
		{StageInferenceDone, encodeDelay + inference},
	}
	out := make([]timedRecord, 0, len(stages))
	for _, s := range stages {
		rec, _ := telemetry.NewRecord(t0+int64(s.at), telemetry.SourcePipeline, map[string]string{"stage": s.stage})
		out = append(out, timedRecord{after: s.at, rec: rec})
	}
	return out, encodeDelay + inference + frameGap
}

type rail struct {
	Rail    int     `json:"rail"`
	Voltage float64 `json:"voltage"`
	Current float64 `json:"current"`
	Power   float64 `json:"power"`
}

type fan struct {
	Fan     int     `json:"fan"`
	Enabled bool    `json:"enabled"`
	Duty    float64 `json:"duty"`
	RPM     float64 `json:"rpm"`
}

type voltage struct {
	Name    string  `json:"name"`
	Voltage float64 `json:"voltage"`
}

type device struct {
	Name            string `json:"name"`
	VendorID        string `json:"vendor_id"`
	ProductID       string `json:"product_id"`
	FirmwareVersion string `json:"firmware_version"`
}

type benchlabPayload struct {
	Power             []rail             `json:"power"`
	Voltages          []voltage          `json:"voltages"`
	Fans              []fan              `json:"fans"`
	Temperatures      map[string]float64 `json:"temperatures"`
	Humidity          float64            `json:"humidity"`
	ReferenceVoltages map[string]float64 `json:"reference_voltages"`
	Device            device             `json:"device"`
	CalibrationValid  bool               `json:"calibration_valid"`
}

// benchlabSample synthesises a sensor frame. Loads follow slow sine waves of
// the elapsed seconds so consecutive samples are smooth.
func benchlabSample(ts int64, elapsed float64) telemetry.Record {
	load := math.Abs(math.Sin(elapsed / 3))
	rails := []rail{
		{Rail: 0, Voltage: 12.0, Current: 15 + 4*load},
		{Rail: 1, Voltage: 5.0, Current: 3 + load},
		{Rail: 2, Voltage: 3.3, Current: 1.5 + 0.5*load},
	}
	for i := range rails {
		rails[i].Power = rails[i].Voltage * rails[i].Current
	}
	temp := 40 + 5*math.Abs(math.Sin(elapsed/5))
	payload := benchlabPayload{
		Power: rails,
		Voltages: []voltage{
			{Name: "vin", Voltage: 12.0 + 0.05*math.Sin(elapsed)},
			{Name: "vbus", Voltage: 5.0},
		},
		Fans: []fan{
			{Fan: 0, Enabled: true, Duty: 40 + 20*load, RPM: 1200 + 600*load},
			{Fan: 1, Enabled: false},
		},
		Temperatures:      map[string]float64{"chip": temp, "ambient": 24},
		Humidity:          35 + 2*math.Sin(elapsed/7),
		ReferenceVoltages: map[string]float64{"vdd": 3.3, "vref": 1.2},
		Device: device{
			Name:            "BENCHLAB-SIM",
			VendorID:        "0483",
			ProductID:       "5740",
			FirmwareVersion: "sim-1",
		},
		CalibrationValid: true,
	}
	rec, _ := telemetry.NewRecord(ts, SourceBenchlabUSB, payload)
	return rec
}

// gpuSample synthesises an NVML-style sample.
func gpuSample(ts int64, elapsed float64) telemetry.Record {
	util := 50 + 40*math.Abs(math.Sin(elapsed/2))
	rec, _ := telemetry.NewRecord(ts, SourceGPU, map[string]float64{
		"gpu_util":      util,
		"mem_util":      util / 2,
		"gpu_mem_used":  4 << 30,
		"gpu_mem_total": 16 << 30,
		"power_w":       80 + 1.5*util,
		"temp_c":        55 + 10*math.Abs(math.Sin(elapsed/5)),
	})
	return rec
}

// HostSampler reads host CPU and memory usage.
type HostSampler interface {
	Sample(ctx context.Context) (map[string]float64, error)
}

// PsutilSampler samples the local host through gopsutil.
type PsutilSampler struct{}

// Sample returns cpu_percent, mem_percent and mem_used.
func (PsutilSampler) Sample(ctx context.Context) (map[string]float64, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, err
	}
	out := map[string]float64{}
	if len(percents) > 0 {
		out["cpu_percent"] = percents[0]
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return out, err
	}
	out["mem_percent"] = vm.UsedPercent
	out["mem_used"] = float64(vm.Used)
	return out, nil
}

func hostRecord(ctx context.Context, sampler HostSampler, ts int64) (telemetry.Record, error) {
	values, err := sampler.Sample(ctx)
	if err != nil && len(values) == 0 {
		return telemetry.Record{}, err
	}
	return telemetry.NewRecord(ts, SourceCPU, values)
}
