package database

import (
	"context"
	"testing"
)

func TestOpenRequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), DBConfig{Driver: "pgx"})
	if err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), DBConfig{Driver: "oracle", DSN: "x"})
	if err == nil || err.Error() != `unsupported database driver "oracle"` {
		t.Fatalf("error = %v", err)
	}
}

func TestDriverAliases(t *testing.T) {
	cases := map[string]string{
		"":           "pgx",
		"PostgreSQL": "pgx",
		"pq":         "postgres",
		"mariadb":    "mysql",
		" sqlite3 ":  "sqlite",
		"duckdb":     "duckdb",
	}
	for in, want := range cases {
		got, err := DriverName(in)
		if err != nil {
			t.Fatalf("DriverName(%q) error = %v", in, err)
		}
		if got != want {
			t.Fatalf("DriverName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDialectFor(t *testing.T) {
	cases := map[string]Dialect{
		"pgx":      DialectPostgres,
		"postgres": DialectPostgres,
		"mysql":    DialectMySQL,
		"sqlite":   DialectSQLite,
		"duckdb":   DialectDuckDB,
	}
	for in, want := range cases {
		got, err := DialectFor(in)
		if err != nil {
			t.Fatalf("DialectFor(%q) error = %v", in, err)
		}
		if got != want {
			t.Fatalf("DialectFor(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOpenInMemoryEngines(t *testing.T) {
	for _, cfg := range []DBConfig{
		{Driver: "duckdb"},
		{Driver: "sqlite", DSN: ":memory:", MaxOpenConns: 1},
	} {
		db, err := Open(context.Background(), cfg)
		if err != nil {
			t.Fatalf("Open(%s) error = %v", cfg.Driver, err)
		}
		var one int
		if err := db.QueryRowContext(context.Background(), "SELECT 1").Scan(&one); err != nil {
			t.Fatalf("%s SELECT 1 error = %v", cfg.Driver, err)
		}
		if one != 1 {
			t.Fatalf("%s SELECT 1 = %d", cfg.Driver, one)
		}
		_ = db.Close()
	}
}
