package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"benchlab-telemetry/internal/retention"
)

type config struct {
	dataRoot    string
	days        int
	rawKeepDays int
	runOnce     bool
	interval    time.Duration
}

func main() {
	cfg := parseFlags()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	sweeper, err := retention.NewSweeper(cfg.dataRoot, retention.Policy{
		Days:        cfg.days,
		RawKeepDays: cfg.rawKeepDays,
	}, retention.WithLogger(logger))
	if err != nil {
		logger.Fatalf("retention config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.runOnce {
		res, err := sweeper.Sweep(ctx)
		if err != nil {
			logger.Fatalf("retention sweep error: %v", err)
		}
		for _, id := range res.SessionsRemoved {
			logger.Printf("retention: removed session %s", id)
		}
		for _, id := range res.RawRemoved {
			logger.Printf("retention: removed raw data of %s", id)
		}
		return
	}
	if err := sweeper.Run(ctx, cfg.interval); err != nil {
		logger.Fatalf("retention error: %v", err)
	}
}

func parseFlags() config {
	var cfg config
	flag.StringVar(&cfg.dataRoot, "data-root", getenvDefault("BENCHLAB_DATA_ROOT", "/var/log/benchlab"), "data root directory")
	flag.IntVar(&cfg.days, "days", getenvIntDefault("BENCHLAB_RETENTION_DAYS", retention.DefaultDays), "remove sessions older than this many days")
	flag.IntVar(&cfg.rawKeepDays, "raw-keep-days", getenvIntDefault("BENCHLAB_RAW_KEEP_DAYS", retention.DefaultRawKeepDays), "remove raw inputs older than this many days")
	flag.BoolVar(&cfg.runOnce, "run-once", false, "sweep once and exit")
	flag.DurationVar(&cfg.interval, "interval", 24*time.Hour, "sweep interval in daemon mode")
	flag.Parse()
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
