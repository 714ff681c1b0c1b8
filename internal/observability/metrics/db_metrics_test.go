package metrics

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	telemetry "benchlab-telemetry/internal/telemetry/domain"
	"benchlab-telemetry/internal/telemetry/infrastructure/sqlstore"

	_ "modernc.org/sqlite"
)

type failingCounter struct{}

func (failingCounter) CountSamples(context.Context) (int64, error) {
	return 0, errors.New("db down")
}

func TestRegisterSinkMetrics_CountsCurrentSessionOnly(t *testing.T) {
	ctx := context.Background()
	db, err := sqlstore.Open(ctx, sqlstore.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	pair := [2]string{"ingress", "encoded"}
	older := sqlstore.NewLatencyRepository(db, "older", sqlstore.WithDriver(sqlstore.DriverSQLite))
	if err := older.EnsureSchema(ctx); err != nil {
		t.Fatalf("schema: %v", err)
	}
	if err := older.InsertSamples(ctx, []telemetry.LatencySample{
		{AlignedTimestampNS: 1, LatencyMS: 1, StagePair: pair},
		{AlignedTimestampNS: 2, LatencyMS: 1, StagePair: pair},
	}); err != nil {
		t.Fatalf("insert older: %v", err)
	}
	repo := sqlstore.NewLatencyRepository(db, "current", sqlstore.WithDriver(sqlstore.DriverSQLite))
	if err := repo.InsertSamples(ctx, []telemetry.LatencySample{
		{AlignedTimestampNS: 1, LatencyMS: 2, StagePair: pair},
		{AlignedTimestampNS: 2, LatencyMS: 2, StagePair: pair},
		{AlignedTimestampNS: 3, LatencyMS: 2, StagePair: pair},
	}); err != nil {
		t.Fatalf("insert current: %v", err)
	}

	reg := prometheus.NewRegistry()
	RegisterSinkMetrics(reg, repo, nil)

	expected := `
# HELP benchlab_sink_rows Latency samples stored in the SQL sink by this session
# TYPE benchlab_sink_rows gauge
benchlab_sink_rows 3
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "benchlab_sink_rows"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
}

func TestQueryCount_ErrorIsZero(t *testing.T) {
	if got := queryCount(failingCounter{}, nil); got != 0 {
		t.Fatalf("expected 0 on error, got %v", got)
	}
	if got := queryCount(nil, nil); got != 0 {
		t.Fatalf("expected 0 for nil counter, got %v", got)
	}
}
