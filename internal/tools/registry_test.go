package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

type echoTool struct {
	err error
}

func (e *echoTool) Name() string                    { return "echo" }
func (e *echoTool) Description() string             { return "echoes its input" }
func (e *echoTool) Parameters() json.RawMessage     { return json.RawMessage(`{"type":"object"}`) }
func (e *echoTool) Execute(ctx context.Context, params json.RawMessage) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	return string(params), nil
}

func TestRegistryExecute(t *testing.T) {
	r := NewRegistry()
	r.Register(&echoTool{})

	got := r.Execute(context.Background(), "echo", json.RawMessage(`{"a":1}`))
	if got != `{"a":1}` {
		t.Errorf("unexpected result: %q", got)
	}
}

func TestRegistryExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()
	r.Register(&echoTool{})

	got := r.Execute(context.Background(), "missing", nil)
	if !strings.Contains(got, "Unknown tool: missing") {
		t.Errorf("expected unknown-tool message, got %q", got)
	}
	if !strings.Contains(got, "echo") {
		t.Errorf("expected available tool names in %q", got)
	}
}

func TestRegistryExecuteFoldsError(t *testing.T) {
	r := NewRegistry()
	r.Register(&echoTool{err: errors.New("boom")})

	got := r.Execute(context.Background(), "echo", nil)
	if !strings.Contains(got, "boom") {
		t.Errorf("expected error text in %q", got)
	}
}

func TestRegistryDefinitionsSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(&echoTool{})
	r.Register(NewManageScheduleTool(&fakeScheduler{}, "UTC"))

	defs := r.Definitions()
	if len(defs) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(defs))
	}
	if defs[0].Function.Name != "echo" || defs[1].Function.Name != "manage_schedule" {
		t.Errorf("definitions not sorted: %s, %s", defs[0].Function.Name, defs[1].Function.Name)
	}
}
