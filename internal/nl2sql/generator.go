package nl2sql

import (
	"context"
	"log/slog"
	"strings"

	"github.com/rpossan/asktive-record/internal/askerr"
	"github.com/rpossan/asktive-record/internal/observability"
)

// Generator turns a question into a single validated SELECT statement.
type Generator struct {
	Completer Completer
	Provider  string
	Model     string
	Logger    *slog.Logger
}

// NewGenerator labels results with the client's provider and model.
func NewGenerator(client *OpenAIClient, logger *slog.Logger) *Generator {
	return &Generator{
		Completer: client,
		Provider:  client.Provider(),
		Model:     client.Model(),
		Logger:    logger,
	}
}

func (g *Generator) Translate(ctx context.Context, req Request) (Result, error) {
	mode := req.Mode
	if mode == "" {
		mode = ModeOpen
	}
	sql, err := g.generate(ctx, req, mode)
	if err != nil {
		observability.ObserveGeneration(string(mode), observability.OutcomeError)
		observability.LoggerOrDiscard(g.Logger).WarnContext(ctx, "sql generation failed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("mode", string(mode)),
			slog.String("table", req.TableName),
			slog.Any("error", err),
		)
		return Result{}, err
	}
	observability.ObserveGeneration(string(mode), observability.OutcomeOK)
	observability.LoggerOrDiscard(g.Logger).DebugContext(ctx, "sql generated",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("mode", string(mode)),
		slog.String("sql", sql),
	)
	return Result{SQL: sql, Provider: g.Provider, Model: g.Model}, nil
}

// Generate is Translate without the provider labels.
func (g *Generator) Generate(ctx context.Context, req Request) (string, error) {
	result, err := g.Translate(ctx, req)
	if err != nil {
		return "", err
	}
	return result.SQL, nil
}

func (g *Generator) generate(ctx context.Context, req Request, mode Mode) (string, error) {
	if g.Completer == nil {
		return "", askerr.Configuration("an LLM client is required to generate SQL")
	}
	if strings.TrimSpace(req.Schema) == "" {
		return "", askerr.Configuration("Schema content is empty. A schema description is required to generate SQL.")
	}

	var prompt string
	switch mode {
	case ModeScoped:
		table := strings.TrimSpace(req.TableName)
		if table == "" {
			return "", askerr.QueryGeneration("Failed to generate SQL query: a table name is required for scoped generation")
		}
		prompt = ScopedPrompt(req.Question, req.Schema, table)
	case ModeOpen:
		prompt = OpenPrompt(req.Question, req.Schema)
	default:
		return "", askerr.QueryGeneration("Failed to generate SQL query: unknown generation mode %q", mode)
	}

	content, err := g.Completer.Complete(ctx, prompt)
	if err != nil {
		if askerr.IsPipelineError(err) {
			return "", err
		}
		return "", askerr.GenerationFailed(err)
	}

	sql := stripMarkdownSQL(content)
	if sql == "" {
		return "", askerr.QueryGeneration("LLM did not return a SQL query")
	}
	if !IsSelect(sql) {
		return "", askerr.QueryGeneration("LLM generated a non-SELECT query: %s", sql)
	}
	return stripTrailingTerminator(sql), nil
}

// IsSelect reports whether the trimmed statement starts with SELECT, ignoring case.
func IsSelect(sql string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(sql)), "select")
}

func stripTrailingTerminator(sql string) string {
	trimmed := strings.TrimSpace(sql)
	if strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

func stripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}
