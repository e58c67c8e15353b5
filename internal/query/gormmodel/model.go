// Package gormmodel exposes a gorm model as a typed query target.
package gormmodel

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// CountRecord is produced when a typed statement returns a lone count column.
type CountRecord struct {
	Value any
}

func (r CountRecord) Count() any { return r.Value }

// Row is the record type for tables without a Go model.
type Row = map[string]any

// Model runs raw SQL through gorm and scans each row into T.
type Model[T any] struct {
	db    *gorm.DB
	table string
}

// New resolves T's table name from gorm's naming strategy.
func New[T any](db *gorm.DB) (*Model[T], error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db is required")
	}
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(new(T)); err != nil {
		return nil, fmt.Errorf("parse model: %w", err)
	}
	return &Model[T]{db: db, table: stmt.Schema.Table}, nil
}

// ForTable binds T to an explicit table without parsing T as a gorm model,
// which lets Row stand in for any table.
func ForTable[T any](db *gorm.DB, table string) (*Model[T], error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db is required")
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return nil, fmt.Errorf("table name is required")
	}
	return &Model[T]{db: db, table: table}, nil
}

// WithTable overrides the resolved table name.
func (m *Model[T]) WithTable(name string) *Model[T] {
	clone := *m
	clone.table = strings.TrimSpace(name)
	return &clone
}

func (m *Model[T]) TableName() string { return m.table }

func (m *Model[T]) ExecuteTypedSQL(ctx context.Context, sql string) ([]any, error) {
	rows, err := m.db.WithContext(ctx).Raw(sql).Rows()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	countOnly := len(columns) == 1 && strings.EqualFold(columns[0], "count")

	records := make([]any, 0)
	for rows.Next() {
		if countOnly {
			var value any
			if err := rows.Scan(&value); err != nil {
				return nil, fmt.Errorf("scan count: %w", err)
			}
			records = append(records, CountRecord{Value: value})
			continue
		}
		var record T
		if err := m.db.ScanRows(rows, &record); err != nil {
			return nil, fmt.Errorf("scan %s: %w", m.table, err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return records, nil
}
