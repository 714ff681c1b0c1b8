package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"benchlab-telemetry/internal/analytics/application"
	"benchlab-telemetry/internal/analytics/interfaces/report"
	"benchlab-telemetry/internal/session"
	"benchlab-telemetry/internal/telemetry/infrastructure/jsonl"
)

type config struct {
	dataRoot string
	session  string
	stageA   string
	stageB   string
	allPairs bool
	format   string
	out      string
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

	service, err := application.NewEfficiencyService(jsonl.FileQuery{Path: layout.LatencyPath()})
	if err != nil {
		fmt.Fprintln(os.Stderr, "service:", err)
		os.Exit(2)
	}

	var pair [2]string
	if !cfg.allPairs {
		pair = [2]string{cfg.stageA, cfg.stageB}
	}
	rep, err := service.Report(context.Background(), pair)
	if err != nil {
		fmt.Fprintln(os.Stderr, "report:", err)
		os.Exit(1)
	}

	var data []byte
	switch cfg.format {
	case "json":
		data, err = report.BuildReportJSON(rep)
	case "pdf":
		data, err = report.BuildReportPDF(rep)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "render:", err)
		os.Exit(2)
	}

	out := cfg.out
	if out == "" {
		out = filepath.Join(layout.Dir, "analytics", "power_efficiency."+cfg.format)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "create out dir:", err)
		os.Exit(2)
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		fmt.Fprintln(os.Stderr, "write:", err)
		os.Exit(2)
	}
	fmt.Printf("samples=%d mean_latency_ms=%.2f mean_power_w=%.2f best_ms_per_w=%.4f\n",
		rep.SampleCount, rep.Latency.MeanMS, rep.Power.MeanW, rep.Efficiency.BestMSPerW)
	fmt.Printf("wrote %s\n", out)
}

func parseFlags() (config, error) {
	var cfg config
	flag.StringVar(&cfg.dataRoot, "data-root", getenvDefault("BENCHLAB_DATA_ROOT", "/var/log/benchlab"), "data root directory")
	flag.StringVar(&cfg.session, "session", getenvDefault("BENCHLAB_SESSION", ""), "session identifier")
	flag.StringVar(&cfg.stageA, "stage-a", getenvDefault("BENCHLAB_STAGE_A", "ingress"), "first stage of the pair")
	flag.StringVar(&cfg.stageB, "stage-b", getenvDefault("BENCHLAB_STAGE_B", "encoded"), "second stage of the pair")
	flag.BoolVar(&cfg.allPairs, "all-pairs", false, "analyse every stage pair together")
	flag.StringVar(&cfg.format, "format", "json", "output format: json or pdf")
	flag.StringVar(&cfg.out, "out", "", "output path (default <session>/analytics/power_efficiency.<format>)")
	flag.Parse()

	cfg.format = strings.ToLower(cfg.format)
	if cfg.session == "" {
		return cfg, errors.New("missing --session or BENCHLAB_SESSION")
	}
	if cfg.format != "json" && cfg.format != "pdf" {
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
