package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// Source classes recognised by the multiplexer.
const (
	SourcePipeline = "pipeline"
	SourceBenchlab = "benchlab"
	SourceLatency  = "metric.latency"
)

// Class groups records by how the multiplexer routes them.
type Class int

const (
	ClassOther Class = iota
	ClassPipeline
	ClassPower
)

var (
	ErrEmptyLine       = errors.New("telemetry: empty line")
	ErrMissingTS       = errors.New("telemetry: missing timestamp_ns")
	ErrMissingSource   = errors.New("telemetry: missing source")
	ErrFieldsNotObject = errors.New("telemetry: fields is not an object")
	ErrLineTooLong     = errors.New("telemetry: line exceeds size limit")
)

// Record is the envelope shared by every ingested line.
type Record struct {
	TimestampNS int64
	Source      string
	Fields      json.RawMessage
}

type wireRecord struct {
	TimestampNS *int64          `json:"timestamp_ns"`
	Source      string          `json:"source"`
	Fields      json.RawMessage `json:"fields"`

	// Aliases written by older probe scripts.
	TSNS *int64          `json:"ts_ns"`
	KV   json.RawMessage `json:"kv"`
}

// DecodeRecord parses one line into a Record.
func DecodeRecord(line []byte) (Record, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Record{}, ErrEmptyLine
	}
	var w wireRecord
	if err := json.Unmarshal(line, &w); err != nil {
		return Record{}, err
	}
	ts := w.TimestampNS
	if ts == nil {
		ts = w.TSNS
	}
	if ts == nil {
		return Record{}, ErrMissingTS
	}
	if strings.TrimSpace(w.Source) == "" {
		return Record{}, ErrMissingSource
	}
	fields := w.Fields
	if len(fields) == 0 {
		fields = w.KV
	}
	if len(fields) == 0 || bytes.Equal(fields, []byte("null")) {
		fields = json.RawMessage("{}")
	}
	if fields[0] != '{' {
		return Record{}, ErrFieldsNotObject
	}
	return Record{TimestampNS: *ts, Source: w.Source, Fields: fields}, nil
}

// MarshalJSON renders the record in the ingest envelope format.
func (r Record) MarshalJSON() ([]byte, error) {
	fields := r.Fields
	if len(fields) == 0 {
		fields = json.RawMessage("{}")
	}
	return json.Marshal(struct {
		TimestampNS int64           `json:"timestamp_ns"`
		Source      string          `json:"source"`
		Fields      json.RawMessage `json:"fields"`
	}{r.TimestampNS, r.Source, fields})
}

// NewRecord builds a record from a payload value.
func NewRecord(timestampNS int64, source string, fields any) (Record, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return Record{}, err
	}
	if len(data) == 0 || data[0] != '{' {
		return Record{}, ErrFieldsNotObject
	}
	return Record{TimestampNS: timestampNS, Source: source, Fields: data}, nil
}

// Class returns the routing class of the record's declared source.
func (r Record) Class() Class {
	return ClassifySource(r.Source)
}

// ClassifySource maps a source tag to its routing class. Sub-sources such as
// "benchlab.usb" share the class of their prefix.
func ClassifySource(source string) Class {
	switch {
	case hasClassPrefix(source, SourcePipeline):
		return ClassPipeline
	case hasClassPrefix(source, SourceBenchlab):
		return ClassPower
	default:
		return ClassOther
	}
}

func hasClassPrefix(source, prefix string) bool {
	if !strings.HasPrefix(source, prefix) {
		return false
	}
	rest := source[len(prefix):]
	return rest == "" || rest[0] == '.'
}

// DecodeFields unmarshals the record payload into v.
func (r Record) DecodeFields(v any) error {
	return json.Unmarshal(r.Fields, v)
}

// Stage returns the stage tag of a pipeline record, or "" when absent.
func (r Record) Stage() string {
	var f struct {
		Stage string `json:"stage"`
	}
	if err := r.DecodeFields(&f); err != nil {
		return ""
	}
	return f.Stage
}

// NumericFields returns the top-level numeric and boolean payload values.
// Booleans are reported as 0/1.
func (r Record) NumericFields() map[string]float64 {
	var raw map[string]any
	if err := r.DecodeFields(&raw); err != nil {
		return nil
	}
	out := make(map[string]float64, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case float64:
			out[key] = v
		case bool:
			if v {
				out[key] = 1
			} else {
				out[key] = 0
			}
		}
	}
	return out
}

// StageEvent is a pipeline record carrying a stage tag, after alignment.
type StageEvent struct {
	Stage              string
	AlignedTimestampNS int64
}
