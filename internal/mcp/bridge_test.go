package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

type fakeCaller struct {
	lastServer string
	lastTool   string
	lastArgs   map[string]any
	result     *ToolCallResult
	err        error
}

func (f *fakeCaller) CallTool(ctx context.Context, serverID, toolName string, arguments map[string]any) (*ToolCallResult, error) {
	f.lastServer = serverID
	f.lastTool = toolName
	f.lastArgs = arguments
	return f.result, f.err
}

func TestToolBridgeExecute(t *testing.T) {
	caller := &fakeCaller{result: &ToolCallResult{Content: []ToolResultContent{{Type: "text", Text: "42"}}}}
	bridge := NewToolBridge(caller, "calc", stubTool("multiply"), "calc_multiply")

	if bridge.Name() != "calc_multiply" {
		t.Errorf("name = %q", bridge.Name())
	}
	if !strings.Contains(bridge.Description(), "calc.multiply") {
		t.Errorf("description = %q, want origin prefix", bridge.Description())
	}

	result, err := bridge.Execute(context.Background(), json.RawMessage(`{"a":3,"b":2}`))
	if err != nil {
		t.Fatal(err)
	}
	if result.Content != "42" || result.IsError {
		t.Errorf("result = %+v", result)
	}
	if caller.lastServer != "calc" || caller.lastTool != "multiply" {
		t.Errorf("routed to %s.%s", caller.lastServer, caller.lastTool)
	}
	if caller.lastArgs["a"].(float64) != 3 {
		t.Errorf("args = %v", caller.lastArgs)
	}
}

func TestToolBridgeExecutePropagatesError(t *testing.T) {
	caller := &fakeCaller{err: errors.New("server down")}
	bridge := NewToolBridge(caller, "s", stubTool("x"), "s_x")

	if _, err := bridge.Execute(context.Background(), nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestToolBridgeSchemaFallback(t *testing.T) {
	bridge := NewToolBridge(&fakeCaller{}, "s", &MCPTool{Name: "bare"}, "s_bare")
	var shape struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(bridge.Schema(), &shape); err != nil {
		t.Fatal(err)
	}
	if shape.Type != "object" {
		t.Errorf("fallback schema type = %q", shape.Type)
	}
}

func TestFormatToolCallResult(t *testing.T) {
	text := &ToolCallResult{Content: []ToolResultContent{
		{Type: "text", Text: "one"},
		{Type: "text", Text: "two"},
	}}
	content, isError := formatToolCallResult(text)
	if content != "one\ntwo" || isError {
		t.Errorf("content = %q, isError = %v", content, isError)
	}

	mixed := &ToolCallResult{Content: []ToolResultContent{
		{Type: "json", JSON: json.RawMessage(`{"n":1}`)},
	}, IsError: true}
	content, isError = formatToolCallResult(mixed)
	if !isError {
		t.Error("isError lost")
	}
	if !strings.Contains(content, `"n":1`) {
		t.Errorf("json content not preserved: %q", content)
	}

	if content, _ := formatToolCallResult(nil); content != "" {
		t.Errorf("nil result content = %q", content)
	}
}
