package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rpossan/asktive-record/internal/api"
	"github.com/rpossan/asktive-record/internal/asker"
	"github.com/rpossan/asktive-record/internal/auth"
	"github.com/rpossan/asktive-record/internal/config"
	"github.com/rpossan/asktive-record/internal/observability"
)

func main() {
	cfg, err := config.LoadFromEnv("asktive-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	runtime, err := asker.Open(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to open runtime", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = runtime.Close() }()

	deps := api.Dependencies{
		Logger:    logger,
		Asker:     runtime.Service,
		Target:    runtime.Target,
		TargetFor: runtime.TargetFor,
		Readiness: api.CombineReadinessChecks(
			runtime.Ready,
			api.CheckLLMConfigured(cfg),
		),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
