package agent

import (
	"log/slog"
	"time"
)

// LoopConfig configures the single-tool-stepper agent loop.
type LoopConfig struct {
	// MaxIterations caps the number of loop iterations — one LLM turn plus,
	// if it requested a tool, that tool's single execution — per turn.
	MaxIterations int

	// MaxTokens is the default max tokens for LLM responses.
	MaxTokens int

	// ToolTimeout bounds a single tool execution.
	ToolTimeout time.Duration

	// Temperature is passed through to the LLM client on every turn.
	Temperature float64

	// ThinkLevel requests a reasoning trace from the LLM client; the trace
	// itself is never surfaced to callers.
	ThinkLevel string

	// Logger receives loop diagnostics.
	Logger *slog.Logger
}

// DefaultLoopConfig returns the baseline loop configuration.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		MaxIterations: 10,
		MaxTokens:     4096,
		ToolTimeout:   30 * time.Second,
		Logger:        slog.Default(),
	}
}

func sanitizeLoopConfig(cfg LoopConfig) LoopConfig {
	defaults := DefaultLoopConfig()
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaults.MaxIterations
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = defaults.ToolTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = defaults.Logger
	}
	return cfg
}
