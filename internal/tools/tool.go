package tools

import (
	"context"
	"encoding/json"
)

// Tool is a named operation invokable with JSON parameters.
type Tool interface {
	Name() string
	Description() string
	Parameters() json.RawMessage // JSON Schema
	Execute(ctx context.Context, params json.RawMessage) (string, error)
}
