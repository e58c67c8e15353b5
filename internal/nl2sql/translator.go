package nl2sql

import "context"

type Mode string

const (
	// ModeScoped constrains generation to one target table.
	ModeScoped Mode = "scoped"
	// ModeOpen lets the model pick tables and JOIN as needed.
	ModeOpen Mode = "open"
)

// Completer performs a single prompt/response round trip against an LLM
// provider. An absent answer is returned as "" with a nil error.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type Request struct {
	Question  string `json:"question"`
	Schema    string `json:"-"`
	Mode      Mode   `json:"mode"`
	TableName string `json:"table_name,omitempty"`
}

type Result struct {
	SQL      string `json:"sql"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}
