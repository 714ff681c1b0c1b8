package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	telemetry "benchlab-telemetry/internal/telemetry/domain"
)

const defaultLatencyTable = "latency_samples"

// Driver names accepted by Open.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

// LatencyRepository stores latency samples in Postgres or SQLite.
type LatencyRepository struct {
	db        *sql.DB
	table     string
	sessionID string
	driver    string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*LatencyRepository)

// WithTable overrides the default table name.
func WithTable(table string) RepositoryOption {
	return func(repo *LatencyRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// WithDriver selects placeholder syntax for the given driver name.
func WithDriver(driver string) RepositoryOption {
	return func(repo *LatencyRepository) {
		if driver != "" {
			repo.driver = driver
		}
	}
}

// NewLatencyRepository constructs a repository scoped to one session.
func NewLatencyRepository(db *sql.DB, sessionID string, opts ...RepositoryOption) *LatencyRepository {
	repo := &LatencyRepository{db: db, table: defaultLatencyTable, sessionID: sessionID, driver: DriverPostgres}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Open opens a database handle for driver and verifies connectivity.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("latency repo: empty dsn")
	}
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("latency repo: unsupported driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (r *LatencyRepository) placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		if r.driver == DriverSQLite {
			parts[i] = "?"
		} else {
			parts[i] = "$" + strconv.Itoa(i+1)
		}
	}
	return strings.Join(parts, ", ")
}

// EnsureSchema creates the latency table when missing.
func (r *LatencyRepository) EnsureSchema(ctx context.Context) error {
	if r == nil || r.db == nil {
		return errors.New("latency repo: nil db")
	}
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	session_id TEXT NOT NULL,
	aligned_ts_ns BIGINT NOT NULL,
	stage_a TEXT NOT NULL,
	stage_b TEXT NOT NULL,
	latency_ms DOUBLE PRECISION NOT NULL,
	power_w DOUBLE PRECISION,
	PRIMARY KEY (session_id, stage_a, stage_b, aligned_ts_ns)
)`, r.table)
	_, err := r.db.ExecContext(ctx, query)
	return err
}

// InsertSamples upserts latency samples.
func (r *LatencyRepository) InsertSamples(ctx context.Context, samples []telemetry.LatencySample) error {
	if r == nil || r.db == nil {
		return errors.New("latency repo: nil db")
	}
	if len(samples) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	session_id,
	aligned_ts_ns,
	stage_a,
	stage_b,
	latency_ms,
	power_w
) VALUES (
	%s
)
ON CONFLICT (session_id, stage_a, stage_b, aligned_ts_ns)
DO UPDATE SET
	latency_ms = EXCLUDED.latency_ms,
	power_w = EXCLUDED.power_w`, r.table, r.placeholders(6))

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, s := range samples {
		if s.StagePair[0] == "" || s.StagePair[1] == "" {
			_ = tx.Rollback()
			return errors.New("latency repo: invalid sample")
		}

		power := sql.NullFloat64{}
		if s.PowerW != nil {
			power = sql.NullFloat64{Float64: *s.PowerW, Valid: true}
		}

		if _, err := stmt.ExecContext(
			ctx,
			r.sessionID,
			s.AlignedTimestampNS,
			s.StagePair[0],
			s.StagePair[1],
			s.LatencyMS,
			power,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// ListSamples returns the session's samples for a stage pair in timestamp order.
func (r *LatencyRepository) ListSamples(ctx context.Context, pair [2]string) ([]telemetry.LatencySample, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("latency repo: nil db")
	}
	ph := strings.Split(r.placeholders(3), ", ")
	query := fmt.Sprintf(`
SELECT aligned_ts_ns, latency_ms, power_w
FROM %s
WHERE session_id = %s
	AND stage_a = %s
	AND stage_b = %s
ORDER BY aligned_ts_ns ASC`, r.table, ph[0], ph[1], ph[2])

	rows, err := r.db.QueryContext(ctx, query, r.sessionID, pair[0], pair[1])
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []telemetry.LatencySample
	for rows.Next() {
		var (
			ts      int64
			latency float64
			power   sql.NullFloat64
		)
		if err := rows.Scan(&ts, &latency, &power); err != nil {
			return nil, err
		}
		sample := telemetry.LatencySample{AlignedTimestampNS: ts, LatencyMS: latency, StagePair: pair}
		if power.Valid {
			v := power.Float64
			sample.PowerW = &v
		}
		out = append(out, sample)
	}
	return out, rows.Err()
}

// CountSamples returns how many samples the session has stored.
func (r *LatencyRepository) CountSamples(ctx context.Context) (int64, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("latency repo: nil db")
	}
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE session_id = %s`, r.table, r.placeholders(1))
	var count int64
	if err := r.db.QueryRowContext(ctx, query, r.sessionID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
