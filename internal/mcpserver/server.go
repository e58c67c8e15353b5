// Package mcpserver exposes the ask pipeline as MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rpossan/asktive-record/internal/asker"
	"github.com/rpossan/asktive-record/internal/nl2sql"
	"github.com/rpossan/asktive-record/internal/observability"
	"github.com/rpossan/asktive-record/internal/query"
)

type Asker interface {
	ResolveSchema(ctx context.Context) (string, error)
	Generate(ctx context.Context, question, table string) (nl2sql.Result, error)
	Run(ctx context.Context, question string, target query.Target, opts asker.AskOptions) (asker.Outcome, error)
}

// Tools holds the dependencies shared by the tool handlers.
type Tools struct {
	Asker  Asker
	Target query.Target
	// TargetFor binds a table-scoped target; nil keeps Target for every call.
	TargetFor func(table string) (query.Target, error)
	Logger    *slog.Logger
}

func New(name, version string, tools *Tools) *server.MCPServer {
	srv := server.NewMCPServer(name, version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	srv.AddTool(mcp.NewTool("ask",
		mcp.WithDescription("Answer a natural-language question by generating and running a read-only SQL query against the application database."),
		mcp.WithString("question", mcp.Description("The question to answer"), mcp.Required()),
		mcp.WithString("table", mcp.Description("Restrict generation to this table (optional)")),
		mcp.WithBoolean("answer", mcp.Description("Return a natural-language answer instead of raw rows")),
	), tools.HandleAsk)

	srv.AddTool(mcp.NewTool("generate_sql",
		mcp.WithDescription("Translate a natural-language question into a single SELECT statement without running it."),
		mcp.WithString("question", mcp.Description("The question to translate"), mcp.Required()),
		mcp.WithString("table", mcp.Description("Restrict generation to this table (optional)")),
	), tools.HandleGenerateSQL)

	srv.AddTool(mcp.NewTool("describe_schema",
		mcp.WithDescription("Return the schema description used to ground SQL generation."),
	), tools.HandleDescribeSchema)

	return srv
}

// ServeStdio blocks serving srv over stdin/stdout.
func ServeStdio(srv *server.MCPServer) error {
	return server.ServeStdio(srv)
}

func (t *Tools) HandleAsk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question := strings.TrimSpace(request.GetString("question", ""))
	if question == "" {
		return mcp.NewToolResultError("question parameter is required"), nil
	}
	table := request.GetString("table", "")
	target, err := t.targetFor(table)
	if err != nil {
		return t.toolError(ctx, "ask", err), nil
	}
	answer := request.GetBool("answer", false)
	outcome, err := t.Asker.Run(ctx, question, target, asker.AskOptions{
		TableName: table,
		Answer:    answer,
	})
	if err != nil {
		return t.toolError(ctx, "ask", err), nil
	}
	if answer {
		return mcp.NewToolResultText(outcome.Answer), nil
	}
	payload, err := json.Marshal(map[string]any{
		"query_id": outcome.Query.ID,
		"sql":      outcome.SQL,
		"result":   outcome.Result,
	})
	if err != nil {
		return t.toolError(ctx, "ask", err), nil
	}
	return mcp.NewToolResultText(string(payload)), nil
}

func (t *Tools) HandleGenerateSQL(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question := strings.TrimSpace(request.GetString("question", ""))
	if question == "" {
		return mcp.NewToolResultError("question parameter is required"), nil
	}
	result, err := t.Asker.Generate(ctx, question, request.GetString("table", ""))
	if err != nil {
		return t.toolError(ctx, "generate_sql", err), nil
	}
	return mcp.NewToolResultText(result.SQL), nil
}

func (t *Tools) HandleDescribeSchema(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := t.Asker.ResolveSchema(ctx)
	if err != nil {
		return t.toolError(ctx, "describe_schema", err), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (t *Tools) targetFor(table string) (query.Target, error) {
	if t.TargetFor == nil || strings.TrimSpace(table) == "" {
		return t.Target, nil
	}
	return t.TargetFor(table)
}

func (t *Tools) toolError(ctx context.Context, tool string, err error) *mcp.CallToolResult {
	observability.LoggerOrDiscard(t.Logger).WarnContext(ctx, "mcp tool failed",
		slog.String("tool", tool),
		slog.Any("error", err),
	)
	return mcp.NewToolResultError(err.Error())
}
