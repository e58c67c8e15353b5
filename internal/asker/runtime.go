package asker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/gorm"

	"github.com/rpossan/asktive-record/internal/config"
	"github.com/rpossan/asktive-record/internal/database"
	"github.com/rpossan/asktive-record/internal/nl2sql"
	"github.com/rpossan/asktive-record/internal/observability"
	"github.com/rpossan/asktive-record/internal/query"
	"github.com/rpossan/asktive-record/internal/query/gormmodel"
	"github.com/rpossan/asktive-record/internal/query/sqlconn"
	"github.com/rpossan/asktive-record/internal/schema"
	s3store "github.com/rpossan/asktive-record/internal/storage/s3"
)

// Runtime holds the process-wide collaborators built from config.
type Runtime struct {
	DB *sql.DB
	// ORM is nil when the driver has no gorm dialector.
	ORM          *gorm.DB
	Target       query.Target
	Service      *Service
	Schema       *schema.Resolver
	Materializer schema.Materializer
}

// Open connects to the database, the schema store and the LLM provider. A
// missing API key does not fail Open; generation reports it instead.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	db, err := database.Open(ctx, database.DBConfig{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}

	runtime, err := newRuntime(ctx, cfg, db, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return runtime, nil
}

func newRuntime(ctx context.Context, cfg config.Config, db *sql.DB, logger *slog.Logger) (*Runtime, error) {
	logger = observability.LoggerOrDiscard(logger)
	target, err := query.ResolveTarget(sqlconn.New(db))
	if err != nil {
		return nil, err
	}

	orm, err := database.OpenORM(db, cfg.Database.Driver)
	switch {
	case errors.Is(err, database.ErrORMUnsupported):
		logger.Debug("typed targets unavailable; table-scoped questions use the connection",
			slog.String("driver", cfg.Database.Driver),
		)
		orm = nil
	case err != nil:
		return nil, err
	}

	store, err := openSchemaStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	materializer, err := newMaterializer(cfg, db, store)
	if err != nil {
		return nil, err
	}
	resolver := &schema.Resolver{
		Config:       schema.FromConfig(cfg.Schema),
		Store:        store,
		Materializer: materializer,
		Logger:       logger,
	}

	service := &Service{
		Schema:          resolver,
		AllowOnlySelect: cfg.Query.AllowOnlySelect,
		Logger:          logger,
	}
	client, err := nl2sql.NewOpenAIClient(nl2sql.OpenAIConfig{
		Provider:    cfg.LLM.Provider,
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
		Logger:      logger,
	})
	if err != nil {
		logger.Warn("llm client unavailable", slog.Any("error", err))
		service.TranslatorErr = err
	} else {
		service.Translator = nl2sql.NewGenerator(client, logger)
		service.Answerer = client
	}

	return &Runtime{
		DB:           db,
		ORM:          orm,
		Target:       target,
		Service:      service,
		Schema:       resolver,
		Materializer: materializer,
	}, nil
}

// TargetFor returns a typed target bound to table when an ORM is available,
// and the connection target otherwise or when table is blank.
func (r *Runtime) TargetFor(table string) (query.Target, error) {
	table = strings.TrimSpace(table)
	if table == "" || r.ORM == nil {
		return r.Target, nil
	}
	model, err := gormmodel.ForTable[gormmodel.Row](r.ORM, table)
	if err != nil {
		return query.Target{}, err
	}
	return query.ResolveTarget(model)
}

func (r *Runtime) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

// Ready pings the database.
func (r *Runtime) Ready(ctx context.Context) error {
	if err := r.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database unavailable: %w", err)
	}
	return nil
}

func openSchemaStore(ctx context.Context, cfg config.Config) (schema.Store, error) {
	if cfg.Schema.Store != config.SchemaStoreS3 {
		return schema.FileStore{Root: cfg.Schema.Root}, nil
	}
	objects, err := s3store.New(ctx, s3store.FromConfig(cfg.ObjectStore))
	if err != nil {
		return nil, fmt.Errorf("open schema object store: %w", err)
	}
	return schema.ObjectStore{Objects: objects}, nil
}

func newMaterializer(cfg config.Config, db *sql.DB, store schema.Store) (schema.Materializer, error) {
	switch cfg.Schema.Materializer {
	case config.MaterializerNone:
		return nil, nil
	case config.MaterializerIntrospect:
		dialect, err := database.DialectFor(cfg.Database.Driver)
		if err != nil {
			return nil, err
		}
		return schema.IntrospectionMaterializer{DB: db, Dialect: dialect, Store: store, Path: cfg.Schema.Path}, nil
	default:
		return schema.CommandMaterializer{Root: cfg.Schema.Root}, nil
	}
}
