package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"benchlab-telemetry/internal/auth"
)

type config struct {
	secret  string
	subject string
	role    string
	ttl     time.Duration
}

func main() {
	cfg := parseFlags()
	if cfg.secret == "" {
		fmt.Fprintln(os.Stderr, "scrapetoken: BENCHLAB_METRICS_JWT_SECRET or --secret is required")
		os.Exit(2)
	}
	token, err := auth.IssueToken([]byte(cfg.secret), auth.Identity{Subject: cfg.subject, Role: auth.Role(cfg.role)}, cfg.ttl, time.Now())
	if err != nil {
		fmt.Fprintln(os.Stderr, "scrapetoken:", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

func parseFlags() config {
	var cfg config
	flag.StringVar(&cfg.secret, "secret", os.Getenv("BENCHLAB_METRICS_JWT_SECRET"), "HS256 signing secret")
	flag.StringVar(&cfg.subject, "subject", "prometheus", "token subject")
	flag.StringVar(&cfg.role, "role", string(auth.RoleViewer), "viewer, operator or admin")
	flag.DurationVar(&cfg.ttl, "ttl", 0, "token lifetime, 0 for no expiry")
	flag.Parse()
	return cfg
}
