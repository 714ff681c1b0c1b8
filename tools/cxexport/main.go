package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"benchlab-telemetry/internal/export"
	"benchlab-telemetry/internal/session"
	telemetry "benchlab-telemetry/internal/telemetry/domain"
	"benchlab-telemetry/internal/telemetry/infrastructure/jsonl"
	"benchlab-telemetry/internal/telemetry/infrastructure/sqlstore"
)

type config struct {
	dataRoot    string
	session     string
	stageA      string
	stageB      string
	application string
	format      string
	out         string
	sinkDSN     string
	sinkDriver  string
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	layout, err := session.New(cfg.dataRoot, cfg.session)
	if err != nil {
		fmt.Fprintln(os.Stderr, "session:", err)
		os.Exit(2)
	}

	ctx := context.Background()
	query, closeQuery, err := openQuery(ctx, cfg, layout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open samples:", err)
		os.Exit(2)
	}
	defer closeQuery()

	pair := [2]string{cfg.stageA, cfg.stageB}
	samples, err := query.ListSamples(ctx, pair)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load samples:", err)
		os.Exit(2)
	}
	rows := export.Rows(samples, pair)

	out := cfg.out
	if out == "" {
		out = filepath.Join(layout.Dir, "cx-export", fmt.Sprintf("%s_to_%s.%s", cfg.stageA, cfg.stageB, cfg.format))
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "create out dir:", err)
		os.Exit(2)
	}

	var buf bytes.Buffer
	switch cfg.format {
	case "csv":
		err = export.WriteCSV(&buf, rows, cfg.application)
	case "xlsx":
		var data []byte
		data, err = export.BuildXLSX(rows, pair, cfg.application)
		buf.Write(data)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "render:", err)
		os.Exit(2)
	}
	if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
		fmt.Fprintln(os.Stderr, "write:", err)
		os.Exit(2)
	}
	fmt.Printf("wrote %d samples to %s\n", len(rows), out)
}

func openQuery(ctx context.Context, cfg config, layout session.Layout) (telemetry.LatencyQuery, func(), error) {
	if cfg.sinkDSN == "" {
		return jsonl.FileQuery{Path: layout.LatencyPath()}, func() {}, nil
	}
	db, err := sqlstore.Open(ctx, cfg.sinkDriver, cfg.sinkDSN)
	if err != nil {
		return nil, nil, err
	}
	repo := sqlstore.NewLatencyRepository(db, layout.ID, sqlstore.WithDriver(cfg.sinkDriver))
	return repo, func() { _ = db.Close() }, nil
}

func parseFlags() (config, error) {
	var cfg config
	flag.StringVar(&cfg.dataRoot, "data-root", getenvDefault("BENCHLAB_DATA_ROOT", "/var/log/benchlab"), "data root directory")
	flag.StringVar(&cfg.session, "session", getenvDefault("BENCHLAB_SESSION", ""), "session identifier")
	flag.StringVar(&cfg.stageA, "stage-a", getenvDefault("CX_STAGE_A", "ingress"), "first stage of the pair")
	flag.StringVar(&cfg.stageB, "stage-b", getenvDefault("CX_STAGE_B", "encoded"), "second stage of the pair")
	flag.StringVar(&cfg.application, "application", getenvDefault("CX_APP", export.DefaultApplication), "Application column value")
	flag.StringVar(&cfg.format, "format", "csv", "output format: csv or xlsx")
	flag.StringVar(&cfg.out, "out", "", "output path (default <session>/cx-export/<a>_to_<b>.<format>)")
	flag.StringVar(&cfg.sinkDSN, "sink-dsn", getenvDefault("BENCHLAB_SINK_DSN", ""), "read samples from the SQL sink instead of latency.jsonl")
	flag.StringVar(&cfg.sinkDriver, "sink-driver", getenvDefault("BENCHLAB_SINK_DRIVER", "pgx"), "SQL sink driver: pgx or sqlite")
	flag.Parse()

	cfg.format = strings.ToLower(cfg.format)
	if cfg.session == "" {
		return cfg, errors.New("missing --session or BENCHLAB_SESSION")
	}
	if cfg.stageA == "" || cfg.stageB == "" {
		return cfg, errors.New("missing --stage-a/--stage-b")
	}
	if cfg.format != "csv" && cfg.format != "xlsx" {
		return cfg, fmt.Errorf("unsupported --format %q", cfg.format)
	}
	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}
