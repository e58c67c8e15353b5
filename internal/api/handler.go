package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rpossan/asktive-record/internal/asker"
	"github.com/rpossan/asktive-record/internal/askerr"
	"github.com/rpossan/asktive-record/internal/config"
	"github.com/rpossan/asktive-record/internal/nl2sql"
	"github.com/rpossan/asktive-record/internal/observability"
	"github.com/rpossan/asktive-record/internal/query"
)

type ReadinessCheck func(ctx context.Context) error

// Asker is the pipeline surface served over HTTP; *asker.Service implements it.
type Asker interface {
	ResolveSchema(ctx context.Context) (string, error)
	Generate(ctx context.Context, question, table string) (nl2sql.Result, error)
	Run(ctx context.Context, question string, target query.Target, opts asker.AskOptions) (asker.Outcome, error)
	RunSQL(ctx context.Context, rawSQL string, target query.Target, allowWrites bool) (asker.Outcome, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Asker             Asker
	Target            query.Target
	// TargetFor binds requests that name a table; nil keeps Target.
	TargetFor func(table string) (query.Target, error)
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	routes := map[string]http.HandlerFunc{
		"GET /v1/schema": func(w http.ResponseWriter, r *http.Request) {
			handleSchema(deps, w, r)
		},
		"POST /v1/query/translate": func(w http.ResponseWriter, r *http.Request) {
			handleTranslate(deps, w, r)
		},
		"POST /v1/ask": func(w http.ResponseWriter, r *http.Request) {
			handleAsk(deps, w, r)
		},
		"POST /v1/sql": func(w http.ResponseWriter, r *http.Request) {
			handleSQL(deps, w, r)
		},
	}
	protected := http.NewServeMux()
	for pattern, handler := range routes {
		protected.HandleFunc(pattern, handler)
	}

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			observability.LoggerOrDiscard(deps.Logger).Error("auth required but auth middleware missing")
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	for pattern := range routes {
		mux.Handle(pattern, protectedHandler)
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

// CheckLLMConfigured fails readiness while no API key is configured.
func CheckLLMConfigured(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.LLM.APIKey == "" {
			return errors.New(cfg.LLM.Provider + " API key is not configured")
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}

// writePipelineError maps an askerr kind to its HTTP status and error code.
func writePipelineError(ctx context.Context, w http.ResponseWriter, err error, extra map[string]any) {
	switch askerr.KindOf(err) {
	case askerr.ErrConfiguration:
		writeError(ctx, w, http.StatusInternalServerError, "CONFIGURATION_ERROR", err.Error(), false, extra)
	case askerr.ErrAPI:
		writeError(ctx, w, http.StatusBadGateway, "LLM_API_ERROR", err.Error(), true, extra)
	case askerr.ErrQueryGeneration:
		writeError(ctx, w, http.StatusUnprocessableEntity, "QUERY_GENERATION_FAILED", err.Error(), false, extra)
	case askerr.ErrSanitization:
		writeError(ctx, w, http.StatusBadRequest, "SQL_NOT_ALLOWED", err.Error(), false, extra)
	case askerr.ErrQueryExecution:
		writeError(ctx, w, http.StatusUnprocessableEntity, "QUERY_EXECUTION_FAILED", err.Error(), false, extra)
	default:
		writeError(ctx, w, http.StatusInternalServerError, "INTERNAL", err.Error(), false, extra)
	}
}
