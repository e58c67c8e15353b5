package query

import (
	"context"
	"strings"

	"github.com/rpossan/asktive-record/internal/nl2sql"
)

// countKey is matched literally on connection rows.
const countKey = "count"

func dispatch(ctx context.Context, target Target, sql string) (any, error) {
	switch target.kind {
	case TargetTyped:
		records, err := target.typed.ExecuteTypedSQL(ctx, sql)
		if err != nil {
			return nil, err
		}
		return unwrapTypedCount(records), nil
	default:
		if !nl2sql.IsSelect(sql) {
			return target.conn.Exec(ctx, sql)
		}
		rows, err := target.conn.SelectRows(ctx, strings.TrimSpace(sql))
		if err != nil {
			return nil, err
		}
		return unwrapRowCount(rows), nil
	}
}

func unwrapTypedCount(records []any) any {
	if len(records) != 1 {
		return records
	}
	if counter, ok := records[0].(Counter); ok {
		return counter.Count()
	}
	return records
}

func unwrapRowCount(rows []map[string]any) any {
	if len(rows) != 1 || len(rows[0]) != 1 {
		return rows
	}
	if value, ok := rows[0][countKey]; ok {
		return value
	}
	return rows
}
