// Package models defines the core data types shared across the agent core:
// chat messages, tool calls/results, streaming events, and the RAG document
// pipeline's chunk and ingestion types.
package models

import (
	"encoding/json"
	"time"
)

// Role indicates the author of a ChatMessage.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// ChatMessage is a single turn in the conversation passed to the LLM client
// and accumulated by the agent loop. It carries no channel/session
// identifiers: persistence and channel delivery live outside the core,
// which only emits events for them.
type ChatMessage struct {
	Role        Role            `json:"role"`
	Content     string          `json:"content,omitempty"`
	ToolCalls   []ToolCall      `json:"tool_calls,omitempty"`
	ToolResults []ToolResult    `json:"tool_results,omitempty"`
	CreatedAt   time.Time       `json:"created_at,omitempty"`
}

// ToolCall represents an LLM's request to execute a single tool, addressed
// by its exposed (sanitized) name.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult represents the output of one tool execution.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// ToolSummary describes one tool available to the agent loop regardless of
// its origin (a native tool or an MCP server), for status/introspection
// surfaces such as a `mcp tools` CLI listing.
type ToolSummary struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Schema      json.RawMessage `json:"schema,omitempty"`
	Source      string          `json:"source"` // "native" | "mcp"
	Namespace   string          `json:"namespace,omitempty"`
	Canonical   string          `json:"canonical,omitempty"`
}

// AgentTurnResult is returned by run_until_completion once the loop reaches
// a terminal state (no further tool call requested, or max_iterations hit).
type AgentTurnResult struct {
	FinalText  string        `json:"final_text"`
	Messages   []ChatMessage `json:"messages"`
	Iterations int           `json:"iterations"`
	StoppedAt  string        `json:"stopped_at"` // "success" | "max_iterations" | "error"
	Err        error         `json:"-"`
}
