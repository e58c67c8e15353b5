package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/marcboeker/go-duckdb/v2"
	_ "modernc.org/sqlite"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
	DialectDuckDB   Dialect = "duckdb"
)

type DBConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

var driverAliases = map[string]string{
	"":           "pgx",
	"pgx":        "pgx",
	"postgresql": "pgx",
	"postgres":   "postgres",
	"pq":         "postgres",
	"mysql":      "mysql",
	"mariadb":    "mysql",
	"sqlite":     "sqlite",
	"sqlite3":    "sqlite",
	"duckdb":     "duckdb",
}

// DriverName maps a configured driver to the registered database/sql name.
func DriverName(driver string) (string, error) {
	name, ok := driverAliases[strings.ToLower(strings.TrimSpace(driver))]
	if !ok {
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
	return name, nil
}

// DialectFor reports the SQL dialect spoken by a configured driver.
func DialectFor(driver string) (Dialect, error) {
	name, err := DriverName(driver)
	if err != nil {
		return "", err
	}
	switch name {
	case "pgx", "postgres":
		return DialectPostgres, nil
	case "mysql":
		return DialectMySQL, nil
	case "sqlite":
		return DialectSQLite, nil
	default:
		return DialectDuckDB, nil
	}
}

func Open(ctx context.Context, cfg DBConfig) (*sql.DB, error) {
	driver, err := DriverName(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if cfg.DSN == "" && driver != "duckdb" {
		return nil, fmt.Errorf("database dsn is required")
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", driver, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", driver, err)
	}

	return db, nil
}
