package query

import (
	"context"
	"strings"

	"github.com/rpossan/asktive-record/internal/askerr"
)

// TypedAccessor is bound to one table and returns domain-typed records.
type TypedAccessor interface {
	TableName() string
	ExecuteTypedSQL(ctx context.Context, sql string) ([]any, error)
}

// Connection runs arbitrary SQL and returns untyped rows.
type Connection interface {
	SelectRows(ctx context.Context, sql string) ([]map[string]any, error)
	Exec(ctx context.Context, sql string) (any, error)
}

// Counter is implemented by records that carry a single aggregate count.
type Counter interface {
	Count() any
}

type TargetKind int

const (
	TargetTyped TargetKind = iota + 1
	TargetConnection
)

func (k TargetKind) String() string {
	switch k {
	case TargetTyped:
		return "typed"
	case TargetConnection:
		return "connection"
	default:
		return "unknown"
	}
}

// Target is the execution target of a Query. Exactly one variant is set.
type Target struct {
	kind  TargetKind
	typed TypedAccessor
	conn  Connection
}

// ResolveTarget picks the dispatch path once. A value that is a TypedAccessor
// with a non-empty table name runs on the typed path; anything else must be a
// Connection.
func ResolveTarget(v any) (Target, error) {
	if accessor, ok := v.(TypedAccessor); ok && strings.TrimSpace(accessor.TableName()) != "" {
		return Target{kind: TargetTyped, typed: accessor}, nil
	}
	if conn, ok := v.(Connection); ok {
		return Target{kind: TargetConnection, conn: conn}, nil
	}
	return Target{}, askerr.Configuration("execution target %T is neither a typed accessor with a table name nor a database connection", v)
}

func (t Target) Kind() TargetKind { return t.kind }

// TableName is empty for connection targets.
func (t Target) TableName() string {
	if t.kind == TargetTyped {
		return t.typed.TableName()
	}
	return ""
}

func (t Target) valid() bool {
	return (t.kind == TargetTyped && t.typed != nil) || (t.kind == TargetConnection && t.conn != nil)
}
