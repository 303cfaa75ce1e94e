package agent

import (
	"context"

	"github.com/nexuscore/agentcore/pkg/models"
)

// Runtime is the top-level entry point for C4: it owns the tool registry
// and LLM client and exposes Process as the single call a caller (an HTTP
// handler, a CLI command) needs to drive one agent turn end to end.
type Runtime struct {
	loop *AgenticLoop
}

// NewRuntime wires a provider and tool registry into a Runtime using the
// given loop configuration.
func NewRuntime(provider LLMProvider, registry *ToolRegistry, config LoopConfig) *Runtime {
	return &Runtime{loop: NewAgenticLoop(provider, registry, config)}
}

// SetDefaultModel configures the fallback model used when a turn doesn't specify one.
func (r *Runtime) SetDefaultModel(model string) { r.loop.SetDefaultModel(model) }

// SetDefaultSystem configures the fallback system prompt used when a turn doesn't specify one.
func (r *Runtime) SetDefaultSystem(system string) { r.loop.SetDefaultSystem(system) }

// RegisterTool adds a tool to the runtime's tool registry.
func (r *Runtime) RegisterTool(tool Tool) { r.loop.RegisterTool(tool) }

// Process runs run_until_completion against the given conversation history,
// streaming Events to sink and returning the turn's final result. enableTools
// defaults to true; pass false to disable tool use for this turn.
func (r *Runtime) Process(ctx context.Context, history []models.ChatMessage, sink EventSink, enableTools ...bool) (*models.AgentTurnResult, error) {
	return r.loop.Run(ctx, history, sink, enableTools...)
}
