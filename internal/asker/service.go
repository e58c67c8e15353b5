// Package asker wires schema resolution, SQL generation and query execution
// into the ask / answer flows used by the CLI, HTTP API and MCP server.
package asker

import (
	"context"
	"log/slog"
	"strings"

	"github.com/rpossan/asktive-record/internal/askerr"
	"github.com/rpossan/asktive-record/internal/nl2sql"
	"github.com/rpossan/asktive-record/internal/observability"
	"github.com/rpossan/asktive-record/internal/query"
)

type SchemaSource interface {
	Resolve(ctx context.Context) (string, error)
}

type Service struct {
	Schema     SchemaSource
	Translator nl2sql.Translator
	Answerer   nl2sql.Completer
	// TranslatorErr explains a nil Translator, e.g. a missing API key.
	TranslatorErr error
	// AllowOnlySelect is the sanitization policy unless a call opts into writes.
	AllowOnlySelect bool
	Logger          *slog.Logger
}

type AskOptions struct {
	TableName   string
	Answer      bool
	AllowWrites bool
}

// Outcome is the result of a full ask flow. Result is nil when Answer is set.
type Outcome struct {
	Query  *query.Query
	SQL    string
	Result any
	Answer string
}

// Ask resolves the schema, generates SQL and returns a Fresh query bound to
// target. Typed targets and explicit table names use the scoped prompt.
func (s *Service) Ask(ctx context.Context, question string, target query.Target, opts AskOptions) (*query.Query, error) {
	table := strings.TrimSpace(opts.TableName)
	if table == "" {
		table = target.TableName()
	}
	result, err := s.Generate(ctx, question, table)
	if err != nil {
		return nil, err
	}
	return s.newQuery(question, result.SQL, target), nil
}

// Generate resolves the schema and translates question without executing.
func (s *Service) Generate(ctx context.Context, question, table string) (nl2sql.Result, error) {
	if strings.TrimSpace(question) == "" {
		return nl2sql.Result{}, askerr.QueryGeneration("Failed to generate SQL query: question is required")
	}
	if s.Translator == nil {
		if s.TranslatorErr != nil {
			return nl2sql.Result{}, s.TranslatorErr
		}
		return nl2sql.Result{}, askerr.Configuration("an LLM client is required to generate SQL")
	}
	schemaText, err := s.ResolveSchema(ctx)
	if err != nil {
		return nl2sql.Result{}, err
	}
	req := nl2sql.Request{Question: question, Schema: schemaText, Mode: nl2sql.ModeOpen}
	if table = strings.TrimSpace(table); table != "" {
		req.Mode = nl2sql.ModeScoped
		req.TableName = table
	}
	return s.Translator.Translate(ctx, req)
}

func (s *Service) ResolveSchema(ctx context.Context) (string, error) {
	if s.Schema == nil {
		return "", askerr.Configuration("Schema source is not configured.")
	}
	return s.Schema.Resolve(ctx)
}

// Run asks, sanitizes and then either executes or answers.
func (s *Service) Run(ctx context.Context, question string, target query.Target, opts AskOptions) (Outcome, error) {
	q, err := s.Ask(ctx, question, target, opts)
	if err != nil {
		return Outcome{}, err
	}
	return s.finish(ctx, q, opts)
}

// Wrap binds caller-supplied SQL to target without generation.
func (s *Service) Wrap(rawSQL string, target query.Target) *query.Query {
	return s.newQuery("", rawSQL, target)
}

// RunSQL wraps, sanitizes and executes caller-supplied SQL.
func (s *Service) RunSQL(ctx context.Context, rawSQL string, target query.Target, allowWrites bool) (Outcome, error) {
	return s.finish(ctx, s.Wrap(rawSQL, target), AskOptions{AllowWrites: allowWrites})
}

func (s *Service) finish(ctx context.Context, q *query.Query, opts AskOptions) (Outcome, error) {
	allowOnlySelect := s.AllowOnlySelect && !opts.AllowWrites
	if _, err := q.Sanitize(query.AllowOnlySelect(allowOnlySelect)); err != nil {
		return Outcome{Query: q, SQL: q.String()}, err
	}
	outcome := Outcome{Query: q, SQL: q.String()}

	if opts.Answer {
		answer, err := q.Answer(ctx)
		if err != nil {
			return outcome, err
		}
		outcome.Answer = answer
	} else {
		result, err := q.Execute(ctx)
		if err != nil {
			return outcome, err
		}
		outcome.Result = result
	}

	observability.LoggerOrDiscard(s.Logger).InfoContext(ctx, "question answered",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("query_id", q.ID),
		slog.String("target", q.Target().Kind().String()),
		slog.Bool("answered", opts.Answer),
	)
	return outcome, nil
}

func (s *Service) newQuery(question, sql string, target query.Target) *query.Query {
	opts := []query.Option{query.WithLogger(s.Logger)}
	if s.Answerer != nil {
		opts = append(opts, query.WithAnswerer(s.Answerer))
	}
	return query.New(question, sql, target, opts...)
}
