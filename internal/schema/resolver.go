// Package schema resolves the schema description handed to the SQL generator.
package schema

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/rpossan/asktive-record/internal/askerr"
	"github.com/rpossan/asktive-record/internal/config"
	"github.com/rpossan/asktive-record/internal/observability"
)

const (
	sourcePrimary     = "primary"
	sourceRegenerated = "regenerated"
	sourceAlternate   = "alternate"
	sourceNone        = "none"
)

type Config struct {
	Path             string
	HostFramework    bool
	SkipRegeneration bool
}

// FromConfig resolves the host-framework setting against the project root.
func FromConfig(cfg config.SchemaConfig) Config {
	host := false
	switch cfg.HostFramework {
	case config.HostFrameworkTrue:
		host = true
	case config.HostFrameworkAuto:
		host = DetectHostFramework(cfg.Root)
	}
	return Config{
		Path:             cfg.Path,
		HostFramework:    host,
		SkipRegeneration: cfg.SkipRegeneration,
	}
}

// Resolver walks the primary path, an optional regeneration, and the
// alternate path, in that order.
type Resolver struct {
	Config       Config
	Store        Store
	Materializer Materializer
	Logger       *slog.Logger
}

func (r *Resolver) Resolve(ctx context.Context) (string, error) {
	logger := observability.LoggerOrDiscard(r.Logger)
	primary := strings.TrimSpace(r.Config.Path)
	if primary == "" {
		return "", askerr.Configuration("Schema path is not configured.")
	}
	if r.Store == nil {
		return "", askerr.Configuration("Schema store is not configured.")
	}

	text, found, err := r.read(ctx, primary)
	if err != nil || found {
		return text, r.observe(sourcePrimary, err)
	}

	var dumpErr error
	if r.Config.HostFramework && !r.Config.SkipRegeneration && r.Materializer != nil {
		logger.InfoContext(ctx, "schema file missing, regenerating", slog.String("path", primary))
		if dumpErr = r.Materializer.Materialize(ctx); dumpErr != nil {
			logger.WarnContext(ctx, "schema dump failed", slog.String("path", primary), slog.Any("error", dumpErr))
		} else {
			text, found, err = r.read(ctx, primary)
			if err != nil || found {
				return text, r.observe(sourceRegenerated, err)
			}
		}
	}

	tried := []string{primary}
	if primary != AlternatePath {
		tried = append(tried, AlternatePath)
		text, found, err = r.read(ctx, AlternatePath)
		if err != nil || found {
			return text, r.observe(sourceAlternate, err)
		}
	}

	err = notFound(tried, dumpErr)
	return "", r.observe(sourceNone, err)
}

func (r *Resolver) read(ctx context.Context, path string) (string, bool, error) {
	data, err := r.Store.ReadSchema(ctx, path)
	if errors.Is(err, ErrSchemaNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, askerr.Configuration("Failed to read schema file %s: %s", path, err.Error())
	}
	text := string(data)
	if strings.TrimSpace(text) == "" {
		return "", false, askerr.Configuration("Schema content is empty in %s. Make sure the schema file is populated.", path)
	}
	return text, true, nil
}

func (r *Resolver) observe(source string, err error) error {
	outcome := observability.OutcomeOK
	if err != nil {
		outcome = observability.OutcomeError
	}
	observability.ObserveSchemaResolution(source, outcome)
	return err
}

func notFound(tried []string, dumpErr error) error {
	var b strings.Builder
	b.WriteString("Schema file not found. ")
	if dumpErr != nil {
		b.WriteString("Schema dump command failed: ")
		b.WriteString(dumpErr.Error())
		b.WriteString(". ")
	}
	b.WriteString("Tried: ")
	b.WriteString(strings.Join(tried, ", "))
	b.WriteString(". Configure the schema path or generate the schema file.")
	return askerr.Configuration("%s", b.String())
}
