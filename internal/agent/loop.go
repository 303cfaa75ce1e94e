package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/nexuscore/agentcore/pkg/models"
)

// tokenSplitter splits already-generated text into whitespace-preserving
// pieces for display: each token carries its own trailing whitespace so
// frontends can render the stream back-to-back without re-inserting spaces
// or markup.
var tokenSplitter = regexp.MustCompile(`\S+\s*|\s+`)

// tokenizeForDisplay splits text into \S+\s* pieces, preserving trailing
// whitespace on each token.
func tokenizeForDisplay(text string) []string {
	if text == "" {
		return nil
	}
	return tokenSplitter.FindAllString(text, -1)
}

// singleToolSystemPrompt is inserted when a conversation opens without a
// system message: it states the one-tool-per-turn discipline the stepper
// enforces mechanically, so the model works with the loop instead of
// against it.
const singleToolSystemPrompt = `You are a helpful assistant with access to tools. ` +
	`Call at most ONE tool per response. After a tool result arrives, reason about it, ` +
	`then either call the next single tool or answer the user directly. ` +
	`Never request more than one tool call in the same response.`

// AgenticLoop implements the single-tool stepper: reason, call at most one
// tool, observe, continue. If the model requests more than one tool call in
// a single turn, only the first is executed; the rest are discarded and a
// corrective system message is appended so the next turn can issue them one
// at a time.
//
//	┌────────┐     ┌─────────┐     ┌──────────────┐
//	│ reason │────▶│ execute │────▶│ observe       │──┐
//	└────────┘     │ ≤1 tool │     └──────────────┘  │
//	     ▲         └─────────┘                        │
//	     └────────────────────────────────────────────┘
//	               (until no tool call requested, or max_iterations)
type AgenticLoop struct {
	provider LLMProvider
	registry *ToolRegistry
	config   LoopConfig

	defaultModel  string
	defaultSystem string
}

// NewAgenticLoop creates a loop wired to the given provider and tool
// registry. If registry is nil, an empty one is created.
func NewAgenticLoop(provider LLMProvider, registry *ToolRegistry, config LoopConfig) *AgenticLoop {
	if registry == nil {
		registry = NewToolRegistry()
	}
	return &AgenticLoop{
		provider: provider,
		registry: registry,
		config:   sanitizeLoopConfig(config),
	}
}

// SetDefaultModel sets the model used when a turn does not override it.
func (l *AgenticLoop) SetDefaultModel(model string) { l.defaultModel = model }

// SetDefaultSystem sets the system prompt used when a turn does not override it.
func (l *AgenticLoop) SetDefaultSystem(system string) { l.defaultSystem = system }

// RegisterTool adds a tool to the loop's registry.
func (l *AgenticLoop) RegisterTool(tool Tool) { l.registry.Register(tool) }

// Run executes run_until_completion: it streams model turns, executing at
// most one tool call per iteration, until the model stops requesting tools
// or max_iterations is reached. Events are emitted to sink as the turn
// progresses; the returned AgentTurnResult carries the same data the
// terminal done event carries.
//
// enableTools is optional and defaults to true; pass false to run a turn
// with no tools attached to the request regardless of what's registered.
func (l *AgenticLoop) Run(ctx context.Context, history []models.ChatMessage, sink EventSink, enableTools ...bool) (*models.AgentTurnResult, error) {
	if l.provider == nil {
		return nil, ErrNoProvider
	}
	toolsEnabled := true
	if len(enableTools) > 0 {
		toolsEnabled = enableTools[0]
	}
	if sink == nil {
		sink = NopSink{}
	}

	messages := make([]CompletionMessage, 0, len(history)+1)
	for _, m := range history {
		messages = append(messages, CompletionMessage{
			Role:        string(m.Role),
			Content:     m.Content,
			ToolCalls:   m.ToolCalls,
			ToolResults: m.ToolResults,
		})
	}

	// A conversation that doesn't open with its own system message gets
	// the single-tool discipline prompt (or the configured default).
	system := ""
	if len(messages) == 0 || messages[0].Role != string(models.RoleSystem) {
		system = l.defaultSystem
		if system == "" {
			system = singleToolSystemPrompt
		}
	}

	iteration := 0
	toolCallsExecuted := 0
	for iteration < l.config.MaxIterations {
		select {
		case <-ctx.Done():
			return l.fail(ctx, sink, iteration, &LoopError{Phase: PhaseInit, Iteration: iteration, Cause: ctx.Err()})
		default:
		}

		// thinking is accumulated by streamTurn and intentionally discarded
		// here: it must never reach sink.
		text, _, toolCalls, err := l.streamTurn(ctx, messages, system, toolsEnabled)
		if err != nil {
			return l.fail(ctx, sink, iteration, &LoopError{Phase: PhaseStream, Iteration: iteration, Cause: err})
		}

		if len(toolCalls) == 0 {
			messages = append(messages, CompletionMessage{Role: string(models.RoleAssistant), Content: text})
			for _, tok := range tokenizeForDisplay(text) {
				sink.Emit(ctx, models.NewTokenEvent(tok))
			}
			return l.finish(ctx, sink, messages, text, iteration, toolCallsExecuted, "success")
		}

		chosen := toolCalls[0]
		if len(toolCalls) > 1 {
			l.warnDiscardedToolCalls(ctx, sink, toolCalls[1:])
		}

		messages = append(messages, CompletionMessage{
			Role:      string(models.RoleAssistant),
			Content:   text,
			ToolCalls: []models.ToolCall{chosen},
		})

		result := l.executeTool(ctx, sink, chosen)
		messages = append(messages, CompletionMessage{
			Role:        string(models.RoleTool),
			ToolResults: []models.ToolResult{result},
		})

		if len(toolCalls) > 1 {
			messages = append(messages, CompletionMessage{
				Role: string(models.RoleSystem),
				Content: fmt.Sprintf(
					"Only one tool call is executed per turn. %d additional tool call(s) were discarded; "+
						"issue them one at a time in subsequent turns.", len(toolCalls)-1,
				),
			})
		}

		toolCallsExecuted++
		iteration++
	}

	sink.Emit(ctx, models.NewLogEvent(models.LogLevelWarn, "agent loop reached max_iterations without a final answer"))
	return l.finish(ctx, sink, messages, "", iteration, toolCallsExecuted, "max_iterations")
}

// streamTurn calls the LLM client and collects its streamed text, thinking
// trace, and any requested tool calls. Thinking is never forwarded
// anywhere; content is buffered and only turned into token Events once the
// caller knows no further tool call follows it.
func (l *AgenticLoop) streamTurn(ctx context.Context, messages []CompletionMessage, system string, toolsEnabled bool) (string, string, []models.ToolCall, error) {
	req := &CompletionRequest{
		Model:       l.defaultModel,
		System:      system,
		Messages:    messages,
		MaxTokens:   l.config.MaxTokens,
		Temperature: l.config.Temperature,
		ThinkLevel:  l.config.ThinkLevel,
	}
	if toolsEnabled {
		req.Tools = l.registry.AsLLMTools()
	}

	chunks, err := l.provider.Complete(ctx, req)
	if err != nil {
		return "", "", nil, err
	}

	var text, thinking strings.Builder
	var toolCalls []models.ToolCall
	for chunk := range chunks {
		if chunk.Error != nil {
			return "", "", nil, chunk.Error
		}
		if chunk.Text != "" {
			text.WriteString(chunk.Text)
		}
		if chunk.Thinking != "" {
			thinking.WriteString(chunk.Thinking)
		}
		if chunk.ToolCall != nil {
			toolCalls = append(toolCalls, *chunk.ToolCall)
		}
	}
	return text.String(), thinking.String(), toolCalls, nil
}

// executeTool runs exactly one tool call, bounded by ToolTimeout, and emits
// its start/end lifecycle as tool Events.
func (l *AgenticLoop) executeTool(ctx context.Context, sink EventSink, tc models.ToolCall) models.ToolResult {
	start := time.Now()
	sink.Emit(ctx, models.NewToolEvent(models.ToolEvent{
		Tool:      tc.Name,
		Args:      string(tc.Input),
		Status:    models.ToolEventStart,
		Timestamp: start,
	}))

	toolCtx := ctx
	var cancel context.CancelFunc
	if l.config.ToolTimeout > 0 {
		toolCtx, cancel = context.WithTimeout(ctx, l.config.ToolTimeout)
		defer cancel()
	}

	res, err := l.registry.Execute(toolCtx, tc.Name, tc.Input)
	latency := time.Since(start)
	if err == nil && toolCtx.Err() != nil {
		err = fmt.Errorf("%w: %v", ErrToolTimeout, toolCtx.Err())
	}

	var result models.ToolResult
	status := models.ToolEventEnd
	preview := ""
	if err != nil {
		// The error goes back to the LLM as a JSON object so the model
		// can self-correct instead of the whole turn failing.
		toolErr := NewToolError(tc.Name, err)
		l.config.Logger.Warn("tool execution failed",
			"tool", tc.Name, "type", toolErr.Type, "retryable", toolErr.Retryable, "error", err)
		result = models.ToolResult{ToolCallID: tc.ID, Content: errorResultJSON(err), IsError: true}
		status = models.ToolEventError
		preview = truncatePreview(err.Error())
	} else if res != nil {
		result = models.ToolResult{ToolCallID: tc.ID, Content: res.Content, IsError: res.IsError}
		if res.IsError {
			status = models.ToolEventError
		}
		preview = truncatePreview(res.Content)
	} else {
		result = models.ToolResult{ToolCallID: tc.ID, Content: errorResultJSON(fmt.Errorf("tool produced no result")), IsError: true}
		status = models.ToolEventError
	}
	if result.ToolCallID == "" {
		result.ToolCallID = tc.ID
	}

	sink.Emit(ctx, models.NewToolEvent(models.ToolEvent{
		Tool:          tc.Name,
		Status:        status,
		Timestamp:     time.Now(),
		LatencyMS:     latency.Milliseconds(),
		ResultPreview: preview,
	}))

	return result
}

func (l *AgenticLoop) warnDiscardedToolCalls(ctx context.Context, sink EventSink, discarded []models.ToolCall) {
	names := make([]string, 0, len(discarded))
	for _, tc := range discarded {
		names = append(names, tc.Name)
	}
	l.config.Logger.Warn("discarding extra tool calls from single turn", "count", len(discarded), "tools", names)
	sink.Emit(ctx, models.NewLogEvent(models.LogLevelWarn,
		fmt.Sprintf("discarded %d extra tool call(s) beyond the single-tool-per-turn limit: %s", len(discarded), strings.Join(names, ", "))))
}

func (l *AgenticLoop) finish(ctx context.Context, sink EventSink, messages []CompletionMessage, finalText string, iterations, toolCalls int, stoppedAt string) (*models.AgentTurnResult, error) {
	meta := models.TurnMetadata{Iterations: iterations, ToolCalls: toolCalls, Status: stoppedAt}
	sink.Emit(ctx, models.NewDoneEvent(finalText, meta))
	return &models.AgentTurnResult{
		FinalText:  finalText,
		Messages:   fromCompletionMessages(messages),
		Iterations: iterations,
		StoppedAt:  stoppedAt,
	}, nil
}

func (l *AgenticLoop) fail(ctx context.Context, sink EventSink, iteration int, err error) (*models.AgentTurnResult, error) {
	sink.Emit(ctx, models.NewLogEvent(models.LogLevelError, err.Error()))
	return &models.AgentTurnResult{Iterations: iteration, StoppedAt: "error", Err: err}, err
}

func fromCompletionMessages(messages []CompletionMessage) []models.ChatMessage {
	out := make([]models.ChatMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, models.ChatMessage{
			Role:        models.Role(m.Role),
			Content:     m.Content,
			ToolCalls:   m.ToolCalls,
			ToolResults: m.ToolResults,
		})
	}
	return out
}

// errorResultJSON encodes a tool failure as the {"error": "..."} object
// fed back to the LLM in the tool-role message.
func errorResultJSON(err error) string {
	data, marshalErr := json.Marshal(map[string]string{"error": err.Error()})
	if marshalErr != nil {
		return `{"error":"tool execution failed"}`
	}
	return string(data)
}

const previewMaxLen = 500

func truncatePreview(s string) string {
	if len(s) <= previewMaxLen {
		return s
	}
	return s[:previewMaxLen] + "..."
}
