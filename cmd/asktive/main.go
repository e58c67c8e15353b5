package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rpossan/asktive-record/internal/asker"
	"github.com/rpossan/asktive-record/internal/cli/asktive"
	"github.com/rpossan/asktive-record/internal/config"
	"github.com/rpossan/asktive-record/internal/observability"
)

func main() {
	timeout := parseDurationWithDefault(strings.TrimSpace(os.Getenv("ASKTIVE_CLI_TIMEOUT")), 60*time.Second)
	options := asktive.Options{
		Open:    openRuntime,
		Table:   strings.TrimSpace(os.Getenv("ASKTIVE_TABLE")),
		Timeout: timeout,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}

	code := asktive.Run(context.Background(), os.Args[1:], options)
	os.Exit(code)
}

func openRuntime(ctx context.Context) (*asker.Runtime, error) {
	cfg, err := config.LoadFromEnv("asktive")
	if err != nil {
		return nil, err
	}
	// stdout carries command output only.
	return asker.Open(ctx, cfg, observability.NewLogger(cfg, os.Stderr))
}

func parseDurationWithDefault(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid ASKTIVE_CLI_TIMEOUT %q; using %s\n", raw, fallback)
		return fallback
	}
	return parsed
}
