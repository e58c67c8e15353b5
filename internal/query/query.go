package query

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rpossan/asktive-record/internal/askerr"
	"github.com/rpossan/asktive-record/internal/nl2sql"
	"github.com/rpossan/asktive-record/internal/observability"
)

// Query owns a generated (or caller-supplied) statement and drives it through
// sanitize, execute and answer. A Query starts Fresh: the sanitized text is a
// copy of the raw text but the Sanitized flag is unset.
type Query struct {
	ID       string
	Question string
	RawSQL   string

	sanitizedSQL *string
	sanitized    bool
	target       Target
	answerer     nl2sql.Completer
	logger       *slog.Logger
}

type Option func(*Query)

// WithAnswerer sets the completion client used by Answer.
func WithAnswerer(c nl2sql.Completer) Option {
	return func(q *Query) { q.answerer = c }
}

func WithLogger(logger *slog.Logger) Option {
	return func(q *Query) { q.logger = logger }
}

func New(question, rawSQL string, target Target, opts ...Option) *Query {
	sanitized := rawSQL
	q := &Query{
		ID:           uuid.NewString(),
		Question:     question,
		RawSQL:       rawSQL,
		sanitizedSQL: &sanitized,
		target:       target,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.logger = observability.LoggerOrDiscard(q.logger)
	return q
}

// SanitizedSQL returns the sanitized text and whether it is present.
func (q *Query) SanitizedSQL() (string, bool) {
	if q.sanitizedSQL == nil {
		return "", false
	}
	return *q.sanitizedSQL, true
}

// SetSanitizedSQL assigns the sanitized text directly; nil marks it absent.
// Either way the text no longer counts as having passed Sanitize.
func (q *Query) SetSanitizedSQL(sql *string) {
	q.sanitized = false
	if sql == nil {
		q.sanitizedSQL = nil
		return
	}
	value := *sql
	q.sanitizedSQL = &value
}

// Sanitized reports whether an explicit Sanitize pass has been applied.
func (q *Query) Sanitized() bool { return q.sanitized }

func (q *Query) Target() Target { return q.target }

type sanitizeOptions struct {
	allowOnlySelect bool
}

type SanitizeOption func(*sanitizeOptions)

func AllowOnlySelect(allow bool) SanitizeOption {
	return func(o *sanitizeOptions) { o.allowOnlySelect = allow }
}

// Sanitize applies the pre-execution policy. It accepts or rejects the
// statement and never rewrites it.
func (q *Query) Sanitize(opts ...SanitizeOption) (*Query, error) {
	options := sanitizeOptions{allowOnlySelect: true}
	for _, opt := range opts {
		opt(&options)
	}

	current := q.String()
	if options.allowOnlySelect && !nl2sql.IsSelect(current) {
		observability.IncrementSanitizationRejections()
		q.logger.Warn("statement rejected by sanitization",
			slog.String("query_id", q.ID),
			slog.String("sql", current),
		)
		return q, askerr.Sanitization("Only SELECT statements are allowed by default")
	}
	q.sanitizedSQL = &current
	q.sanitized = true
	return q, nil
}

// Execute runs the sanitized statement against the target. Single-value
// count aggregates collapse to the scalar on both dispatch paths.
func (q *Query) Execute(ctx context.Context) (any, error) {
	if q.sanitizedSQL == nil {
		return nil, askerr.QueryExecution("Query has not been sanitized. Call Sanitize before Execute")
	}
	if !q.target.valid() {
		return nil, askerr.QueryExecution("Query has no execution target")
	}
	sql := *q.sanitizedSQL
	path := q.target.kind.String()

	start := time.Now()
	result, err := dispatch(ctx, q.target, sql)
	elapsed := time.Since(start)
	if err != nil {
		observability.ObserveExecution(path, observability.OutcomeError, elapsed)
		q.logger.ErrorContext(ctx, "query execution failed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("query_id", q.ID),
			slog.String("path", path),
			slog.Any("error", err),
		)
		return nil, askerr.ExecutionFailed(err)
	}
	observability.ObserveExecution(path, observability.OutcomeOK, elapsed)
	q.logger.DebugContext(ctx, "query executed",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("query_id", q.ID),
		slog.String("path", path),
		slog.String("duration", elapsed.String()),
	)
	return result, nil
}

// Answer executes the query and asks the LLM to phrase the result. Errors
// from Execute are returned as they are.
func (q *Query) Answer(ctx context.Context) (string, error) {
	if q.answerer == nil {
		return "", askerr.Configuration("an LLM client is required to answer questions")
	}
	result, err := q.Execute(ctx)
	if err != nil {
		return "", err
	}
	sql, _ := q.SanitizedSQL()
	answer, err := q.answerer.Complete(ctx, nl2sql.AnswerPrompt(q.Question, sql, Inspect(result)))
	if err != nil {
		if askerr.IsPipelineError(err) {
			return "", err
		}
		return "", askerr.GenerationFailed(err)
	}
	return strings.TrimSpace(answer), nil
}

// String returns the sanitized text when present, otherwise the raw text.
func (q *Query) String() string {
	if q.sanitizedSQL != nil {
		return *q.sanitizedSQL
	}
	return q.RawSQL
}
