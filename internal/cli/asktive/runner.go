package asktive

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rpossan/asktive-record/internal/asker"
)

type Options struct {
	// Open builds the runtime once the command line has been validated.
	Open    func(ctx context.Context) (*asker.Runtime, error)
	Table   string
	Timeout time.Duration
	Stdout  io.Writer
	Stderr  io.Writer
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("asktive", flag.ContinueOnError)
	fs.SetOutput(stderr)

	table := fs.String("table", defaults.Table, "Restrict generation to this table")
	allowWrites := fs.Bool("allow-writes", false, "Skip the SELECT-only check for this call")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 60*time.Second), "Overall command timeout (e.g. 30s)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	command := strings.TrimSpace(fs.Arg(0))
	text := strings.TrimSpace(strings.Join(fs.Args()[1:], " "))
	switch command {
	case "ask", "answer", "generate", "sql":
		if text == "" {
			_, _ = fmt.Fprintf(stderr, "%s requires text\n\n", command)
			writeUsage(stderr)
			return 2
		}
	case "schema", "schema-dump":
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}
	if defaults.Open == nil {
		_, _ = fmt.Fprintln(stderr, "runtime is not configured")
		return 1
	}

	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	runtime, err := defaults.Open(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "startup failed: %v\n", err)
		return 1
	}
	defer func() { _ = runtime.Close() }()

	output, err := execute(ctx, runtime, command, text, *table, *allowWrites)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%s failed: %v\n", command, err)
		return 1
	}
	if output != "" {
		_, _ = fmt.Fprintln(stdout, output)
	}
	return 0
}

func execute(ctx context.Context, runtime *asker.Runtime, command, text, table string, allowWrites bool) (string, error) {
	service := runtime.Service
	switch command {
	case "ask", "answer":
		target, err := runtime.TargetFor(table)
		if err != nil {
			return "", err
		}
		outcome, err := service.Run(ctx, text, target, asker.AskOptions{
			TableName:   table,
			Answer:      command == "answer",
			AllowWrites: allowWrites,
		})
		if err != nil {
			return "", err
		}
		if command == "answer" {
			return outcome.Answer, nil
		}
		return renderOutcome(outcome)
	case "generate":
		result, err := service.Generate(ctx, text, table)
		if err != nil {
			return "", err
		}
		return result.SQL, nil
	case "sql":
		target, err := runtime.TargetFor(table)
		if err != nil {
			return "", err
		}
		outcome, err := service.RunSQL(ctx, text, target, allowWrites)
		if err != nil {
			return "", err
		}
		return renderOutcome(outcome)
	case "schema-dump":
		if runtime.Materializer == nil {
			return "", fmt.Errorf("no schema materializer configured")
		}
		if err := runtime.Materializer.Materialize(ctx); err != nil {
			return "", fmt.Errorf("materialize schema: %w", err)
		}
		return service.ResolveSchema(ctx)
	default:
		return service.ResolveSchema(ctx)
	}
}

func renderOutcome(outcome asker.Outcome) (string, error) {
	formatted, err := json.MarshalIndent(map[string]any{
		"query_id": outcome.Query.ID,
		"sql":      outcome.SQL,
		"result":   outcome.Result,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(formatted), nil
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: asktive [flags] <command> [text]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  ask <question>      generate and run a SELECT, print the rows")
	_, _ = fmt.Fprintln(w, "  answer <question>   generate, run and phrase the result")
	_, _ = fmt.Fprintln(w, "  generate <question> print the generated SQL only")
	_, _ = fmt.Fprintln(w, "  sql <statement>     sanitize and run a statement")
	_, _ = fmt.Fprintln(w, "  schema              print the resolved schema")
	_, _ = fmt.Fprintln(w, "  schema-dump         regenerate the schema, then print it")
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
