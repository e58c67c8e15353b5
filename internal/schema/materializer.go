package schema

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rpossan/asktive-record/internal/database"
)

const (
	// AlternatePath is tried after the configured path; it is not configurable.
	AlternatePath = "db/structure.sql"
	// DefaultDumpCommand regenerates the primary schema file inside a host project.
	DefaultDumpCommand = "bin/rails db:schema:dump"
)

// Materializer (re)creates the primary schema description.
type Materializer interface {
	Materialize(ctx context.Context) error
}

// DetectHostFramework reports whether root contains a bin/rails executable file.
func DetectHostFramework(root string) bool {
	info, err := os.Stat(filepath.Join(root, "bin", "rails"))
	return err == nil && info.Mode().IsRegular()
}

// RunFunc runs name with args in dir and returns its combined output.
type RunFunc func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

// CommandMaterializer runs the schema dump command in the project root.
type CommandMaterializer struct {
	Root string
	Run  RunFunc
}

func (m CommandMaterializer) Materialize(ctx context.Context) error {
	fields := strings.Fields(DefaultDumpCommand)
	run := m.Run
	if run == nil {
		run = runCommand
	}
	output, err := run(ctx, m.Root, fields[0], fields[1:]...)
	if err != nil {
		if detail := strings.TrimSpace(string(output)); detail != "" {
			return fmt.Errorf("%s: %w: %s", DefaultDumpCommand, err, detail)
		}
		return fmt.Errorf("%s: %w", DefaultDumpCommand, err)
	}
	return nil
}

func runCommand(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// Queryer is satisfied by *sql.DB.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// IntrospectionMaterializer renders CREATE TABLE statements from a live
// database catalogue and writes them to Path through Store.
type IntrospectionMaterializer struct {
	DB      Queryer
	Dialect database.Dialect
	Store   Store
	Path    string
}

var columnFilters = map[database.Dialect]string{
	database.DialectPostgres: "table_schema NOT IN ('pg_catalog', 'information_schema')",
	database.DialectMySQL:    "table_schema = DATABASE()",
	database.DialectDuckDB:   "table_schema NOT IN ('pg_catalog', 'information_schema')",
}

func (m IntrospectionMaterializer) Materialize(ctx context.Context) error {
	if m.DB == nil || m.Store == nil {
		return fmt.Errorf("introspection needs a database and a schema store")
	}
	var (
		text string
		err  error
	)
	if m.Dialect == database.DialectSQLite {
		text, err = m.sqliteSchema(ctx)
	} else {
		text, err = m.informationSchema(ctx)
	}
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("database has no tables to describe")
	}
	return m.Store.WriteSchema(ctx, m.Path, []byte(text))
}

func (m IntrospectionMaterializer) sqliteSchema(ctx context.Context) (string, error) {
	rows, err := m.DB.QueryContext(ctx,
		`SELECT name, sql FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return "", fmt.Errorf("introspect sqlite_master: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var b strings.Builder
	for rows.Next() {
		var name string
		var ddl sql.NullString
		if err := rows.Scan(&name, &ddl); err != nil {
			return "", fmt.Errorf("scan sqlite_master: %w", err)
		}
		if !ddl.Valid {
			continue
		}
		b.WriteString(strings.TrimSuffix(strings.TrimSpace(ddl.String), ";"))
		b.WriteString(";\n\n")
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterate sqlite_master: %w", err)
	}
	return b.String(), nil
}

func (m IntrospectionMaterializer) informationSchema(ctx context.Context) (string, error) {
	filter, ok := columnFilters[m.Dialect]
	if !ok {
		return "", fmt.Errorf("introspection is not supported for dialect %q", m.Dialect)
	}
	rows, err := m.DB.QueryContext(ctx, `SELECT table_name, column_name, data_type, is_nullable
FROM information_schema.columns
WHERE `+filter+`
ORDER BY table_name, ordinal_position`)
	if err != nil {
		return "", fmt.Errorf("introspect information_schema: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		b       strings.Builder
		current string
		columns []string
	)
	flush := func() {
		if current == "" {
			return
		}
		fmt.Fprintf(&b, "CREATE TABLE %s (\n  %s\n);\n\n", current, strings.Join(columns, ",\n  "))
	}
	for rows.Next() {
		var table, column, dataType, nullable string
		if err := rows.Scan(&table, &column, &dataType, &nullable); err != nil {
			return "", fmt.Errorf("scan information_schema: %w", err)
		}
		if table != current {
			flush()
			current = table
			columns = columns[:0]
		}
		definition := column + " " + dataType
		if strings.EqualFold(nullable, "NO") {
			definition += " NOT NULL"
		}
		columns = append(columns, definition)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterate information_schema: %w", err)
	}
	flush()
	return b.String(), nil
}
