package sqlconn

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// DB is the subset of *sql.DB (or *sql.Tx, *sql.Conn) the connection needs.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ExecResult is returned for statements that do not produce rows.
type ExecResult struct {
	RowsAffected int64 `json:"rows_affected"`
}

// Conn adapts a database/sql handle to query.Connection.
type Conn struct {
	db DB
}

func New(db DB) *Conn {
	return &Conn{db: db}
}

func (c *Conn) SelectRows(ctx context.Context, sqlText string) ([]map[string]any, error) {
	if strings.TrimSpace(sqlText) == "" {
		return nil, fmt.Errorf("sql is required")
	}
	rows, err := c.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}

	result := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, column := range columns {
			row[column] = normalizeValue(values[i])
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}

func (c *Conn) Exec(ctx context.Context, sqlText string) (any, error) {
	if strings.TrimSpace(sqlText) == "" {
		return nil, fmt.Errorf("sql is required")
	}
	res, err := c.db.ExecContext(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		// Some drivers cannot report affected rows; the statement still ran.
		return ExecResult{RowsAffected: -1}, nil
	}
	return ExecResult{RowsAffected: affected}, nil
}

func normalizeValue(value any) any {
	switch typed := value.(type) {
	case []byte:
		return string(typed)
	case time.Time:
		return typed.UTC().Format(time.RFC3339Nano)
	default:
		return typed
	}
}
