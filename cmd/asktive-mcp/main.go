package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/rpossan/asktive-record/internal/asker"
	"github.com/rpossan/asktive-record/internal/config"
	"github.com/rpossan/asktive-record/internal/mcpserver"
	"github.com/rpossan/asktive-record/internal/observability"
)

var version = "dev"

func main() {
	cfg, err := config.LoadFromEnv("asktive-mcp")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	// stdout is the MCP transport.
	logger := observability.NewLogger(cfg, os.Stderr)
	runtime, err := asker.Open(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to open runtime", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = runtime.Close() }()

	srv := mcpserver.New("asktive", version, &mcpserver.Tools{
		Asker:     runtime.Service,
		Target:    runtime.Target,
		TargetFor: runtime.TargetFor,
		Logger:    logger,
	})
	logger.Info("starting mcp stdio server", slog.String("version", version))
	if err := mcpserver.ServeStdio(srv); err != nil {
		logger.Error("mcp server failed", slog.Any("error", err))
		os.Exit(1)
	}
}
