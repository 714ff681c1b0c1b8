package application

import telemetry "benchlab-telemetry/internal/telemetry/domain"

// Aligner maps a record's source timestamp onto the shared aligned clock.
type Aligner interface {
	Align(rec telemetry.Record) int64
}

// IdentityAligner assumes every producer already writes the shared clock.
type IdentityAligner struct{}

// Align returns the record timestamp unchanged.
func (IdentityAligner) Align(rec telemetry.Record) int64 {
	return rec.TimestampNS
}

// OffsetAligner applies a fixed per-source offset in nanoseconds. Sources
// without an entry are passed through.
type OffsetAligner map[string]int64

// Align adds the configured offset for the record source.
func (a OffsetAligner) Align(rec telemetry.Record) int64 {
	return rec.TimestampNS + a[rec.Source]
}
