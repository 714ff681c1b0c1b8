package integration_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	telemetry "benchlab-telemetry/internal/telemetry/domain"
	"benchlab-telemetry/internal/telemetry/infrastructure/sqlstore"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestLatencySinkPerf_InsertAndList(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	sessionID := "perf-" + time.Now().UTC().Format("20060102T150405")
	repo := sqlstore.NewLatencyRepository(db, sessionID, sqlstore.WithTable("latency_samples_perf"))
	if err := repo.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	defer func() {
		_, _ = db.ExecContext(ctx, `DELETE FROM latency_samples_perf WHERE session_id = $1`, sessionID)
	}()

	pair := [2]string{"ingress", "encoded"}
	const batches, perBatch = 60, 500
	insertStart := time.Now()
	for b := 0; b < batches; b++ {
		samples := make([]telemetry.LatencySample, 0, perBatch)
		for i := 0; i < perBatch; i++ {
			ts := int64(b*perBatch+i) * int64(16*time.Millisecond)
			power := 200 + float64(i%50)
			samples = append(samples, telemetry.LatencySample{
				AlignedTimestampNS: ts,
				LatencyMS:          10 + float64(i%7),
				StagePair:          pair,
				PowerW:             &power,
			})
		}
		if err := repo.InsertSamples(ctx, samples); err != nil {
			t.Fatalf("insert samples: %v", err)
		}
	}
	insertElapsed := time.Since(insertStart)

	queryStart := time.Now()
	got, err := repo.ListSamples(ctx, pair)
	if err != nil {
		t.Fatalf("list samples: %v", err)
	}
	queryElapsed := time.Since(queryStart)
	if len(got) != batches*perBatch {
		t.Fatalf("expected %d samples, got %d", batches*perBatch, len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].AlignedTimestampNS <= got[i-1].AlignedTimestampNS {
			t.Fatalf("samples out of order at %d", i)
		}
	}

	statStart := time.Now()
	var avg sql.NullFloat64
	if err := db.QueryRowContext(ctx, `
SELECT avg(latency_ms)
FROM latency_samples_perf
WHERE session_id = $1 AND stage_a = $2 AND stage_b = $3`, sessionID, pair[0], pair[1]).Scan(&avg); err != nil {
		t.Fatalf("avg query: %v", err)
	}
	statElapsed := time.Since(statStart)

	t.Logf("perf insert rows=%d elapsed=%s", batches*perBatch, insertElapsed)
	t.Logf("perf list rows=%d elapsed=%s", len(got), queryElapsed)
	t.Logf("perf avg latency=%.3f elapsed=%s", avg.Float64, statElapsed)
}
