package query

import (
	"encoding/json"
	"fmt"
)

// Inspector lets result values choose their own display text.
type Inspector interface {
	Inspect() string
}

// Inspect renders an execution result for the answer prompt: Inspect() when
// available, JSON when the value encodes, fmt otherwise.
func Inspect(result any) string {
	if inspector, ok := result.(Inspector); ok {
		return inspector.Inspect()
	}
	if result == nil {
		return "null"
	}
	encoded, err := json.Marshal(result)
	if err == nil {
		return string(encoded)
	}
	return fmt.Sprint(result)
}
