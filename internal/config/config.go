package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"benchlab-telemetry/internal/auth"
)

// SessionLayout formats the default session identifier.
const SessionLayout = "2006-01-02T15-04-05Z"

// Sink drivers accepted by BENCHLAB_SINK_DRIVER.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

// Config holds the engine configuration.
type Config struct {
	DataRoot         string
	Session          string
	StageA           string
	StageB           string
	PromBind         string
	Daemon           bool
	Simulate         bool
	IdleInterval     time.Duration
	SampleHz         float64
	SinkDSN          string
	SinkDriver       string
	MetricsJWTSecret string
	// MetricsMinRole is the lowest token role allowed to scrape /metrics.
	MetricsMinRole string
	// ClockOffsetsNS shifts timestamps of the named sources onto the shared clock.
	ClockOffsetsNS map[string]int64
}

// fileConfig mirrors the YAML file. Pointers distinguish unset keys.
type fileConfig struct {
	DataRoot         *string          `yaml:"data_root"`
	Session          *string          `yaml:"session"`
	StageA           *string          `yaml:"stage_a"`
	StageB           *string          `yaml:"stage_b"`
	PromBind         *string          `yaml:"prom_bind"`
	Daemon           *bool            `yaml:"daemon"`
	Simulate         *bool            `yaml:"simulate"`
	IdleInterval     *string          `yaml:"idle_interval"`
	SampleHz         *float64         `yaml:"sample_hz"`
	SinkDSN          *string          `yaml:"sink_dsn"`
	SinkDriver       *string          `yaml:"sink_driver"`
	MetricsJWTSecret *string          `yaml:"metrics_jwt_secret"`
	MetricsMinRole   *string          `yaml:"metrics_min_role"`
	ClockOffsetsNS   map[string]int64 `yaml:"clock_offsets_ns"`
}

// Load resolves configuration from flags, an optional YAML file and the
// environment, in that order of precedence.
func Load(args []string) (Config, error) {
	return load(args, time.Now)
}

func load(args []string, now func() time.Time) (Config, error) {
	cfg := fromEnv(now)

	fs := flag.NewFlagSet("benchlab-telemetry", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		configPath = fs.String("config", os.Getenv("BENCHLAB_CONFIG"), "YAML config file")
		dataRoot   = fs.String("data-root", cfg.DataRoot, "data root directory")
		session    = fs.String("session", cfg.Session, "session identifier")
		stageA     = fs.String("stage-a", cfg.StageA, "first stage of the latency pair")
		stageB     = fs.String("stage-b", cfg.StageB, "second stage of the latency pair")
		promBind   = fs.String("prom-bind", cfg.PromBind, "metrics listen address host:port")
		daemon     = fs.Bool("daemon", cfg.Daemon, "tail sources continuously")
		simulate   = fs.Bool("simulate", cfg.Simulate, "run synthetic producers")
		idle       = fs.Duration("idle", cfg.IdleInterval, "sleep after an idle round")
	)
	if err := fs.Parse(args); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}

	if *configPath != "" {
		if err := applyFile(&cfg, *configPath); err != nil {
			return cfg, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "data-root":
			cfg.DataRoot = *dataRoot
		case "session":
			cfg.Session = *session
		case "stage-a":
			cfg.StageA = *stageA
		case "stage-b":
			cfg.StageB = *stageB
		case "prom-bind":
			cfg.PromBind = *promBind
		case "daemon":
			cfg.Daemon = *daemon
		case "simulate":
			cfg.Simulate = *simulate
		case "idle":
			cfg.IdleInterval = *idle
		}
	})

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func fromEnv(now func() time.Time) Config {
	return Config{
		DataRoot:         getenvDefault("BENCHLAB_DATA_ROOT", "/var/log/benchlab"),
		Session:          getenvDefault("BENCHLAB_SESSION", now().UTC().Format(SessionLayout)),
		StageA:           getenvDefault("BENCHLAB_STAGE_A", "ingress"),
		StageB:           getenvDefault("BENCHLAB_STAGE_B", "encoded"),
		PromBind:         getenvDefault("BENCHLAB_PROM", "0.0.0.0:9109"),
		Daemon:           getenvBoolDefault("BENCHLAB_DAEMON", false),
		Simulate:         getenvBoolDefault("BENCHLAB_SIMULATE", false),
		IdleInterval:     getenvDuration("BENCHLAB_IDLE_INTERVAL", 50*time.Millisecond),
		SampleHz:         getenvFloatDefault("BENCHLAB_SAMPLE_HZ", 10),
		SinkDSN:          os.Getenv("BENCHLAB_SINK_DSN"),
		SinkDriver:       getenvDefault("BENCHLAB_SINK_DRIVER", DriverPostgres),
		MetricsJWTSecret: os.Getenv("BENCHLAB_METRICS_JWT_SECRET"),
		MetricsMinRole:   getenvDefault("BENCHLAB_METRICS_MIN_ROLE", string(auth.RoleViewer)),
	}
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	setString(&cfg.DataRoot, fc.DataRoot)
	setString(&cfg.Session, fc.Session)
	setString(&cfg.StageA, fc.StageA)
	setString(&cfg.StageB, fc.StageB)
	setString(&cfg.PromBind, fc.PromBind)
	setString(&cfg.SinkDSN, fc.SinkDSN)
	setString(&cfg.SinkDriver, fc.SinkDriver)
	setString(&cfg.MetricsJWTSecret, fc.MetricsJWTSecret)
	setString(&cfg.MetricsMinRole, fc.MetricsMinRole)
	if fc.Daemon != nil {
		cfg.Daemon = *fc.Daemon
	}
	if fc.Simulate != nil {
		cfg.Simulate = *fc.Simulate
	}
	if fc.SampleHz != nil {
		cfg.SampleHz = *fc.SampleHz
	}
	if fc.IdleInterval != nil {
		d, err := time.ParseDuration(*fc.IdleInterval)
		if err != nil {
			return fmt.Errorf("config: idle_interval: %w", err)
		}
		cfg.IdleInterval = d
	}
	if len(fc.ClockOffsetsNS) > 0 {
		cfg.ClockOffsetsNS = fc.ClockOffsetsNS
	}
	return nil
}

func setString(dst *string, value *string) {
	if value != nil {
		*dst = *value
	}
}

// Validate rejects configurations the engine cannot start with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.StageA) == "" || strings.TrimSpace(c.StageB) == "" {
		return errors.New("config: stage names required")
	}
	if c.StageA == c.StageB {
		return errors.New("config: stage a and stage b must differ")
	}
	if strings.TrimSpace(c.DataRoot) == "" {
		return errors.New("config: data root required")
	}
	if strings.TrimSpace(c.Session) == "" {
		return errors.New("config: session required")
	}
	if _, port, err := net.SplitHostPort(c.PromBind); err != nil || port == "" {
		return fmt.Errorf("config: invalid prom bind %q", c.PromBind)
	}
	if c.IdleInterval <= 0 {
		return errors.New("config: idle interval must be positive")
	}
	if c.SampleHz <= 0 {
		return errors.New("config: sample rate must be positive")
	}
	if c.SinkDSN != "" && c.SinkDriver != DriverPostgres && c.SinkDriver != DriverSQLite {
		return fmt.Errorf("config: unsupported sink driver %q", c.SinkDriver)
	}
	if _, err := auth.ParseRole(c.MetricsMinRole); err != nil {
		return fmt.Errorf("config: metrics min role: %w", err)
	}
	return nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvBoolDefault(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
