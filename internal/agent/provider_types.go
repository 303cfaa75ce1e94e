package agent

import (
	"context"
	"encoding/json"

	"github.com/nexuscore/agentcore/pkg/models"
)

// LLMProvider is the C3 contract: a streaming chat completion client plus
// embedding and model-management operations against a local model runtime.
//
// Thread Safety: implementations must be safe for concurrent use.
type LLMProvider interface {
	// Complete sends a prompt and returns a streaming response.
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)

	// Name returns the provider name.
	Name() string

	// Models returns the models currently available on the runtime.
	Models() []Model

	// SupportsTools returns whether the provider supports tool use.
	SupportsTools() bool

	// Embed returns the embedding vector for a single piece of text.
	Embed(ctx context.Context, model, text string) ([]float32, error)

	// ModelExists reports whether a model is already present on the runtime.
	ModelExists(ctx context.Context, model string) (bool, error)

	// EnsureModelAvailable pulls a model if it is not already present,
	// blocking until the pull completes.
	EnsureModelAvailable(ctx context.Context, model string) error
}

// CompletionRequest contains all parameters for a single LLM turn.
type CompletionRequest struct {
	Model       string              `json:"model"`
	System      string              `json:"system,omitempty"`
	Messages    []CompletionMessage `json:"messages"`
	Tools       []Tool              `json:"tools,omitempty"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Temperature float64             `json:"temperature,omitempty"`
	// ThinkLevel requests the model surface a reasoning/thinking trace
	// alongside content. The trace is accumulated by the caller but never
	// surfaced past the agent loop.
	ThinkLevel string `json:"think,omitempty"`
}

// CompletionMessage represents a single message in a conversation, carried
// over the wire to the LLM client.
type CompletionMessage struct {
	Role        string             `json:"role"`
	Content     string             `json:"content,omitempty"`
	ToolCalls   []models.ToolCall  `json:"tool_calls,omitempty"`
	ToolResults []models.ToolResult `json:"tool_results,omitempty"`
}

// CompletionChunk represents a single chunk in a streaming LLM response.
type CompletionChunk struct {
	Text     string           `json:"text,omitempty"`
	Thinking string           `json:"thinking,omitempty"`
	ToolCall *models.ToolCall `json:"tool_call,omitempty"`
	Done     bool             `json:"done,omitempty"`
	Error    error            `json:"-"`

	// InputTokens/OutputTokens are only populated on the final chunk.
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
}

// Model describes a model available on the local runtime.
type Model struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContextSize int    `json:"context_size"`
}

// Tool defines the interface for an executable agent tool — either a native
// tool or an MCP ToolBridge wrapping a remote tool-server tool.
type Tool interface {
	// Name returns the tool's exposed name as passed to the LLM.
	Name() string

	// Description returns a natural-language description of the tool.
	Description() string

	// Schema returns the JSON Schema describing the tool's parameters.
	Schema() json.RawMessage

	// Execute runs the tool with the given JSON parameters.
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolResult contains the output from a single tool execution.
type ToolResult struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}
