package telemetry

import (
	"encoding/json"
	"math"
	"testing"
)

func TestDecodeRecord_Valid(t *testing.T) {
	rec, err := DecodeRecord([]byte(`{"timestamp_ns": 42, "source": "pipeline", "fields": {"stage": "ingress"}}` + "\n"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.TimestampNS != 42 || rec.Source != "pipeline" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.Stage() != "ingress" {
		t.Fatalf("expected stage ingress, got %q", rec.Stage())
	}
	if rec.Class() != ClassPipeline {
		t.Fatalf("expected pipeline class, got %v", rec.Class())
	}
}

func TestDecodeRecord_LegacyAliases(t *testing.T) {
	rec, err := DecodeRecord([]byte(`{"ts_ns": 7, "source": "benchlab.usb", "kv": {"p_sys": 240.5}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.TimestampNS != 7 {
		t.Fatalf("expected ts 7, got %d", rec.TimestampNS)
	}
	if rec.Class() != ClassPower {
		t.Fatalf("expected power class, got %v", rec.Class())
	}
}

func TestDecodeRecord_Rejects(t *testing.T) {
	lines := []string{
		``,
		`not json`,
		`{"source": "pipeline", "fields": {}}`,
		`{"timestamp_ns": 1, "fields": {}}`,
		`{"timestamp_ns": 1, "source": "pipeline", "fields": [1,2]}`,
	}
	for _, line := range lines {
		if _, err := DecodeRecord([]byte(line)); err == nil {
			t.Fatalf("expected error for %q", line)
		}
	}
}

func TestDecodeRecord_MissingFieldsIsEmptyObject(t *testing.T) {
	rec, err := DecodeRecord([]byte(`{"timestamp_ns": 1, "source": "cpu.psutil"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(rec.Fields) != "{}" {
		t.Fatalf("expected empty fields, got %s", rec.Fields)
	}
}

func TestClassifySource(t *testing.T) {
	cases := map[string]Class{
		"pipeline":     ClassPipeline,
		"pipeline.gst": ClassPipeline,
		"benchlab":     ClassPower,
		"benchlab.usb": ClassPower,
		"benchlabx":    ClassOther,
		"gpu.nvml":     ClassOther,
		"cpu.psutil":   ClassOther,
	}
	for source, want := range cases {
		if got := ClassifySource(source); got != want {
			t.Fatalf("%s: expected %v, got %v", source, want, got)
		}
	}
}

func TestNumericFields(t *testing.T) {
	rec, err := DecodeRecord([]byte(`{"timestamp_ns": 1, "source": "gpu.nvml", "fields": {"gpu_util": 55.5, "busy": true, "name": "a100"}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	values := rec.NumericFields()
	if len(values) != 2 || values["gpu_util"] != 55.5 || values["busy"] != 1 {
		t.Fatalf("unexpected numeric fields: %v", values)
	}
}

func TestDecodeBenchlab_RailsSupersedeLegacy(t *testing.T) {
	rec, err := DecodeRecord([]byte(`{"timestamp_ns": 1, "source": "benchlab", "fields": {"power_w": 99, "power": [{"rail": 0, "power": 5.0}, {"rail": 1, "power": 7.0}]}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	sample, err := DecodeBenchlab(rec)
	if err != nil {
		t.Fatalf("decode benchlab: %v", err)
	}
	if sample.Power.Kind != PowerKindRails {
		t.Fatalf("expected rails kind, got %v", sample.Power.Kind)
	}
	if math.Abs(sample.Power.TotalW-12.0) > 1e-12 {
		t.Fatalf("expected 12.0, got %v", sample.Power.TotalW)
	}
}

func TestDecodeBenchlab_LegacyScalars(t *testing.T) {
	rec, err := DecodeRecord([]byte(`{"ts_ns": 1, "source": "benchlab.usb", "kv": {"v_sys": 12.0, "i_sys": 20.0, "p_sys": 240.0, "temp_c": 41.5}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	sample, err := DecodeBenchlab(rec)
	if err != nil {
		t.Fatalf("decode benchlab: %v", err)
	}
	if sample.Power.Kind != PowerKindLegacy || sample.Power.TotalW != 240.0 {
		t.Fatalf("unexpected power: %+v", sample.Power)
	}
	if len(sample.Power.Rails) != 1 || sample.Power.Rails[0].Current != 20.0 || sample.Power.Rails[0].Voltage != 12.0 {
		t.Fatalf("unexpected legacy rail: %+v", sample.Power.Rails)
	}
	if len(sample.Voltages) != 1 || sample.Voltages[0].Name != "sys" {
		t.Fatalf("unexpected voltages: %+v", sample.Voltages)
	}
	if sample.Temperatures["sys"] != 41.5 {
		t.Fatalf("unexpected temperatures: %+v", sample.Temperatures)
	}
}

func TestDecodeBenchlab_SystemPowerPreferredOverPowerW(t *testing.T) {
	rec, err := DecodeRecord([]byte(`{"timestamp_ns": 1, "source": "benchlab", "fields": {"p_sys": 240.0, "power_w": 99.0}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	sample, err := DecodeBenchlab(rec)
	if err != nil {
		t.Fatalf("decode benchlab: %v", err)
	}
	if sample.Power.Kind != PowerKindLegacy || sample.Power.TotalW != 240.0 {
		t.Fatalf("expected p_sys total 240, got %+v", sample.Power)
	}
}

func TestDecodeBenchlab_NoPower(t *testing.T) {
	rec, err := DecodeRecord([]byte(`{"timestamp_ns": 1, "source": "benchlab", "fields": {"humidity": 40, "device": {"name": "BENCHLAB", "vendor_id": "0483", "product_id": "5740", "firmware_version": 7}}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	sample, err := DecodeBenchlab(rec)
	if err != nil {
		t.Fatalf("decode benchlab: %v", err)
	}
	if sample.Power.Kind != PowerKindNone {
		t.Fatalf("expected no power, got %+v", sample.Power)
	}
	if sample.Humidity == nil || *sample.Humidity != 40 {
		t.Fatalf("unexpected humidity: %v", sample.Humidity)
	}
	if sample.Device == nil || sample.Device.FirmwareVersion != "7" {
		t.Fatalf("unexpected device: %+v", sample.Device)
	}
}

func TestLatencySample_JSONShape(t *testing.T) {
	power := 12.5
	sample := LatencySample{AlignedTimestampNS: 10, LatencyMS: 0.002, StagePair: [2]string{"ingress", "encoded"}, PowerW: &power}
	data, err := json.Marshal(sample)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var generic map[string]any
	if err := json.Unmarshal(data, &generic); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if generic["source"] != SourceLatency {
		t.Fatalf("unexpected source: %v", generic["source"])
	}
	fields := generic["fields"].(map[string]any)
	pair := fields["stage_pair"].([]any)
	if pair[0] != "ingress" || pair[1] != "encoded" || fields["power_w"] != 12.5 {
		t.Fatalf("unexpected fields: %v", fields)
	}

	nullPower, err := json.Marshal(LatencySample{StagePair: [2]string{"a", "b"}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back LatencySample
	if err := json.Unmarshal(nullPower, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.PowerW != nil {
		t.Fatalf("expected null power, got %v", *back.PowerW)
	}
}

func TestNewRecord_RejectsNonObject(t *testing.T) {
	if _, err := NewRecord(1, "gpu.nvml", []int{1, 2}); err != ErrFieldsNotObject {
		t.Fatalf("expected ErrFieldsNotObject, got %v", err)
	}
	rec, err := NewRecord(1, "gpu.nvml", map[string]float64{"gpu_util": 50})
	if err != nil {
		t.Fatalf("new record: %v", err)
	}
	if got := rec.NumericFields()["gpu_util"]; got != 50 {
		t.Fatalf("expected gpu_util 50, got %v", got)
	}
}
