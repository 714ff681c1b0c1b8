package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"benchlab-telemetry/internal/auth"
	"benchlab-telemetry/internal/config"
	muxapp "benchlab-telemetry/internal/mux/application"
	"benchlab-telemetry/internal/observability/metrics"
	"benchlab-telemetry/internal/session"
	"benchlab-telemetry/internal/simulate"
	telemetryapp "benchlab-telemetry/internal/telemetry/application"
	"benchlab-telemetry/internal/telemetry/infrastructure/jsonl"
	"benchlab-telemetry/internal/telemetry/infrastructure/sqlstore"
	"benchlab-telemetry/internal/telemetry/infrastructure/tail"
)

const (
	// simulateSpan is the virtual time generated for a run-once simulated session.
	simulateSpan    = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}
	if err := run(cfg, logger); err != nil {
		logger.Fatalf("benchlab-telemetry: %v", err)
	}
}

func run(cfg config.Config, logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	layout, err := session.New(cfg.DataRoot, cfg.Session)
	if err != nil {
		return err
	}
	if err := layout.Prepare(); err != nil {
		return err
	}
	logger.Printf("session %s at %s", layout.ID, layout.Dir)

	stream, err := jsonl.OpenStream(layout.LatencyPath())
	if err != nil {
		return err
	}
	defer stream.Close()
	logger.Printf("aligned output %s", stream.Path())

	m := metrics.New(prometheus.DefaultRegisterer)
	pubOpts := []telemetryapp.PublisherOption{telemetryapp.WithLogger(logger)}
	if cfg.SinkDSN != "" {
		db, repo, err := openSink(ctx, cfg, layout.ID)
		if err != nil {
			return err
		}
		defer db.Close()
		metrics.RegisterSinkMetrics(prometheus.DefaultRegisterer, repo, logger)
		pubOpts = append(pubOpts, telemetryapp.WithRepository(repo))
		logger.Printf("sql sink enabled: driver=%s", cfg.SinkDriver)
	}
	publisher, err := telemetryapp.NewPublisher(stream, m, pubOpts...)
	if err != nil {
		return err
	}

	var runner *simulate.Runner
	if cfg.Simulate {
		runner, err = simulate.NewRunner(layout, cfg.SampleHz, simulate.WithLogger(logger))
		if err != nil {
			return err
		}
		if !cfg.Daemon {
			written, err := runner.Generate(ctx, simulateSpan)
			if err != nil {
				return err
			}
			logger.Printf("simulate: generated %d records", written)
		}
	}

	sources, closeSources, err := openSources(layout, cfg.Daemon, logger)
	if err != nil {
		return err
	}
	defer closeSources()

	engineCfg := muxapp.Config{
		Sources:      sources,
		StageA:       cfg.StageA,
		StageB:       cfg.StageB,
		IdleInterval: cfg.IdleInterval,
	}
	if len(cfg.ClockOffsetsNS) > 0 {
		engineCfg.Aligner = muxapp.OffsetAligner(cfg.ClockOffsetsNS)
	}
	engine, err := muxapp.NewEngine(engineCfg, publisher, logger)
	if err != nil {
		return err
	}

	if !cfg.Daemon {
		if err := engine.Drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		logStats(logger, engine.Stats())
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	guard, err := auth.NewGuard([]byte(cfg.MetricsJWTSecret), cfg.MetricsMinRole,
		auth.WithOpenPaths("/healthz"), auth.WithLogger(logger))
	if err != nil {
		return err
	}
	if guard != nil {
		logger.Printf("metrics auth enabled: min role %s", guard.MinRole())
	}
	server := &http.Server{
		Addr:              cfg.PromBind,
		Handler:           guard.Wrap(loggingMiddleware(mux, logger)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Printf("metrics listening on %s", cfg.PromBind)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return engine.Run(gctx)
	})
	if runner != nil {
		g.Go(func() error {
			return runner.Run(gctx)
		})
	}

	err = g.Wait()
	logStats(logger, engine.Stats())
	return err
}

func openSink(ctx context.Context, cfg config.Config, sessionID string) (*sql.DB, *sqlstore.LatencyRepository, error) {
	db, err := sqlstore.Open(ctx, cfg.SinkDriver, cfg.SinkDSN)
	if err != nil {
		return nil, nil, err
	}
	repo := sqlstore.NewLatencyRepository(db, sessionID, sqlstore.WithDriver(cfg.SinkDriver))
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, repo, nil
}

// openSources opens one tail reader per raw file. Run-once sessions read
// each file from the start; daemons only follow new lines.
func openSources(layout session.Layout, daemon bool, logger *log.Logger) ([]muxapp.Source, func(), error) {
	var readers []*tail.Reader
	closeAll := func() {
		for _, r := range readers {
			_ = r.Close()
		}
	}
	var opts []tail.Option
	if !daemon {
		opts = append(opts, tail.FromStart())
	}
	sources := make([]muxapp.Source, 0, len(session.RawFiles))
	for _, name := range session.RawFiles {
		reader, err := tail.Open(layout.RawPath(name), opts...)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		readers = append(readers, reader)
		logger.Printf("tailing %s", reader.Path())
		sources = append(sources, muxapp.Source{Name: strings.TrimSuffix(name, ".jsonl"), Reader: reader})
	}
	return sources, closeAll, nil
}

func logStats(logger *log.Logger, stats muxapp.Stats) {
	logger.Printf("mux: lines=%d samples=%d power_updates=%d passthrough=%d decode_errors=%d publish_errors=%d",
		stats.Lines, stats.Samples, stats.PowerUpdates, stats.Passthrough, stats.DecodeErrors, stats.PublishErrors)
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		caller := "-"
		if id, ok := auth.IdentityFromContext(r.Context()); ok {
			caller = id.String()
		}
		logger.Printf("http %s %s %d %s caller=%s", r.Method, r.URL.Path, resp.status, time.Since(start), caller)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
