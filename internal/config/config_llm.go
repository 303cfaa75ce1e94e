package config

import "time"

// LLMConfig configures C3, the streaming HTTP client to the local model
// runtime, and the defaults C4's agent loop falls back to.
type LLMConfig struct {
	// BaseURL is the local model runtime's HTTP endpoint.
	BaseURL string `yaml:"base_url"`

	// ChatModel is the default chat/completion model name.
	ChatModel string `yaml:"chat_model"`

	// EmbeddingModel is the model used by C7's embed() calls.
	EmbeddingModel string `yaml:"embedding_model"`

	// ContextLength is the chat context window requested via
	// options.num_ctx.
	ContextLength int `yaml:"context_length"`

	// Temperature is passed through to every chat request.
	Temperature float64 `yaml:"temperature"`

	// ThinkLevel requests a reasoning trace from the model runtime; the
	// trace is never surfaced to callers.
	ThinkLevel string `yaml:"think_level"`

	// MaxIterations caps the agent loop's run_until_completion loop body.
	MaxIterations int `yaml:"max_iterations"`

	// RequestTimeout bounds a single chat/embeddings HTTP call.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// AutoPullModels enables a blocking /api/pull when a requested model
	// is missing; when false, a missing model is a fatal
	// error rather than an implicit download.
	AutoPullModels bool `yaml:"auto_pull_models"`
}
