package providers

import (
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/nexuscore/agentcore/internal/agent"
	"github.com/nexuscore/agentcore/pkg/models"
)

func TestToolCallAccumulation_StringFragments(t *testing.T) {
	acc := map[int]*toolCallAccumulator{}
	accumulate(acc, ollamaToolCall{Index: 0, ID: "c1", Function: ollamaToolFunction{Name: "mul"}})
	accumulate(acc, ollamaToolCall{Index: 0, Function: ollamaToolFunction{Name: "tiply", Arguments: json.RawMessage(`"{\"a\":3,"`)}})
	accumulate(acc, ollamaToolCall{Index: 0, Function: ollamaToolFunction{Arguments: json.RawMessage(`"\"b\":2}"`)}})

	calls := finalize(acc, slog.Default())
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	if calls[0].Name != "multiply" || calls[0].ID != "c1" {
		t.Fatalf("call = %+v", calls[0])
	}
	var args map[string]float64
	if err := json.Unmarshal(calls[0].Input, &args); err != nil {
		t.Fatalf("args did not assemble into an object: %v", err)
	}
	if args["a"] != 3 || args["b"] != 2 {
		t.Fatalf("args = %v", args)
	}
}

func TestToolCallAccumulation_WholeObjectWins(t *testing.T) {
	acc := map[int]*toolCallAccumulator{}
	accumulate(acc, ollamaToolCall{Index: 0, Function: ollamaToolFunction{Name: "search", Arguments: json.RawMessage(`{"q":"go"}`)}})

	calls := finalize(acc, slog.Default())
	if len(calls) != 1 || string(calls[0].Input) != `{"q":"go"}` {
		t.Fatalf("calls = %+v", calls)
	}
	if calls[0].ID == "" {
		t.Error("missing synthesized id")
	}
}

func TestToolCallAccumulation_MalformedArgsBecomeEmptyObject(t *testing.T) {
	acc := map[int]*toolCallAccumulator{}
	accumulate(acc, ollamaToolCall{Index: 0, Function: ollamaToolFunction{Name: "broken", Arguments: json.RawMessage(`"{\"a\": unfinished"`)}})

	calls := finalize(acc, slog.Default())
	if len(calls) != 1 {
		t.Fatalf("calls = %d", len(calls))
	}
	if string(calls[0].Input) != `{}` {
		t.Fatalf("input = %s, want {}", calls[0].Input)
	}
}

func TestToolCallAccumulation_OrderedByIndex(t *testing.T) {
	acc := map[int]*toolCallAccumulator{}
	accumulate(acc, ollamaToolCall{Index: 1, Function: ollamaToolFunction{Name: "second"}})
	accumulate(acc, ollamaToolCall{Index: 0, Function: ollamaToolFunction{Name: "first"}})

	calls := finalize(acc, slog.Default())
	if len(calls) != 2 || calls[0].Name != "first" || calls[1].Name != "second" {
		t.Fatalf("calls = %+v", calls)
	}
}

func TestBuildOllamaMessages_ToolCallsAndResults(t *testing.T) {
	req := &agent.CompletionRequest{
		System: "sys",
		Messages: []agent.CompletionMessage{
			{Role: "user", Content: "hi"},
			{
				Role: "assistant",
				ToolCalls: []models.ToolCall{
					{ID: "call-1", Name: "lookup", Input: json.RawMessage(`{"q":"test"}`)},
				},
			},
			{
				Role: "tool",
				ToolResults: []models.ToolResult{
					{ToolCallID: "call-1", Content: "ok"},
				},
			},
		},
	}

	msgs := buildOllamaMessages(req)
	if len(msgs) != 4 {
		t.Fatalf("messages = %d, want 4", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[0].Content != "sys" {
		t.Fatalf("system message mismatch: %+v", msgs[0])
	}
	if msgs[2].Role != "assistant" || len(msgs[2].ToolCalls) != 1 {
		t.Fatalf("assistant tool calls missing: %+v", msgs[2])
	}
	if msgs[2].ToolCalls[0].Function.Name != "lookup" {
		t.Errorf("tool name = %q, want %q", msgs[2].ToolCalls[0].Function.Name, "lookup")
	}
	if string(msgs[2].ToolCalls[0].Function.Arguments) != `{"q":"test"}` {
		t.Errorf("tool args = %s, want %s", string(msgs[2].ToolCalls[0].Function.Arguments), `{"q":"test"}`)
	}
	if msgs[3].Role != "tool" || msgs[3].ToolName != "lookup" || msgs[3].Content != "ok" {
		t.Errorf("tool result message mismatch: %+v", msgs[3])
	}
}
