// Package askerr holds the error kinds surfaced by the question-to-SQL
// pipeline. Messages are stable and callers may match on them.
package askerr

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration   = errors.New("configuration error")
	ErrAPI             = errors.New("api error")
	ErrQueryGeneration = errors.New("query generation error")
	ErrSanitization    = errors.New("sanitization error")
	ErrQueryExecution  = errors.New("query execution error")
)

// Error carries one of the Err* kinds and a user-visible message. The cause
// that produced it is folded into Message and never exposed through Unwrap.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Is(target error) bool {
	return e.Kind == target
}

func Configuration(format string, args ...any) error {
	return &Error{Kind: ErrConfiguration, Message: fmt.Sprintf(format, args...)}
}

func API(provider, detail string) error {
	return &Error{Kind: ErrAPI, Message: fmt.Sprintf("%s API error: %s", provider, detail)}
}

func QueryGeneration(format string, args ...any) error {
	return &Error{Kind: ErrQueryGeneration, Message: fmt.Sprintf(format, args...)}
}

func GenerationFailed(cause error) error {
	return QueryGeneration("Failed to generate SQL query: %s", detail(cause))
}

func Sanitization(format string, args ...any) error {
	return &Error{Kind: ErrSanitization, Message: fmt.Sprintf(format, args...)}
}

func QueryExecution(format string, args ...any) error {
	return &Error{Kind: ErrQueryExecution, Message: fmt.Sprintf(format, args...)}
}

func ExecutionFailed(cause error) error {
	return QueryExecution("Failed to execute SQL query: %s", detail(cause))
}

// IsPipelineError reports whether err already belongs to the taxonomy, in which
// case boundaries pass it through instead of wrapping it a second time.
func IsPipelineError(err error) bool {
	var typed *Error
	return errors.As(err, &typed)
}

// KindOf returns the Err* kind of err, or nil for foreign errors.
func KindOf(err error) error {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return nil
}

func detail(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
