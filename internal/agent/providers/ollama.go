// Package providers contains LLM provider implementations.
package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nexuscore/agentcore/internal/agent"
	"github.com/nexuscore/agentcore/internal/agent/toolconv"
	"github.com/nexuscore/agentcore/pkg/models"
	openai "github.com/sashabaranov/go-openai"
)

// OllamaConfig configures the Ollama provider.
type OllamaConfig struct {
	BaseURL      string
	DefaultModel string

	// ContextLength is sent as options.num_ctx on every chat request when
	// positive.
	ContextLength int

	Timeout time.Duration
}

// OllamaProvider implements agent.LLMProvider for Ollama.
type OllamaProvider struct {
	client        *http.Client
	baseURL       string
	defaultModel  string
	contextLength int

	// ensureMu serializes EnsureModelAvailable calls and guards ensured so
	// concurrent callers requesting the same model only trigger one pull.
	ensureMu sync.Mutex
	ensured  map[string]bool
}

var _ agent.LLMProvider = (*OllamaProvider)(nil)

// NewOllamaProvider creates a new Ollama provider.
func NewOllamaProvider(cfg OllamaConfig) *OllamaProvider {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &OllamaProvider{
		client:        &http.Client{Timeout: timeout},
		baseURL:       baseURL,
		defaultModel:  strings.TrimSpace(cfg.DefaultModel),
		contextLength: cfg.ContextLength,
		ensured:       make(map[string]bool),
	}
}

// Name returns the provider name.
func (p *OllamaProvider) Name() string {
	return "ollama"
}

// Close releases the HTTP connection pool. In-flight requests complete.
func (p *OllamaProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

// Models returns available models (default only when configured).
func (p *OllamaProvider) Models() []agent.Model {
	if p.defaultModel == "" {
		return nil
	}
	return []agent.Model{{ID: p.defaultModel, Name: p.defaultModel}}
}

// SupportsTools returns true when tool definitions can be supplied.
func (p *OllamaProvider) SupportsTools() bool {
	return true
}

// Embed returns the embedding vector for a single piece of text via
// Ollama's /api/embeddings endpoint.
func (p *OllamaProvider) Embed(ctx context.Context, model, text string) ([]float32, error) {
	if strings.TrimSpace(model) == "" {
		model = p.defaultModel
	}
	if strings.TrimSpace(model) == "" {
		return nil, NewProviderError("ollama", model, errors.New("model is required"))
	}

	payload := ollamaEmbeddingsRequest{Model: model, Prompt: text}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, NewProviderError("ollama", model, fmt.Errorf("marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, NewProviderError("ollama", model, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, NewProviderError("ollama", model, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, NewProviderError("ollama", model, fmt.Errorf("ollama status %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody)))).WithStatus(resp.StatusCode)
	}

	var out ollamaEmbeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, NewProviderError("ollama", model, fmt.Errorf("decode response: %w", err))
	}
	return out.Embedding, nil
}

// ModelExists reports whether model is already present on the runtime by
// querying /api/show.
func (p *OllamaProvider) ModelExists(ctx context.Context, model string) (bool, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return false, NewProviderError("ollama", model, errors.New("model is required"))
	}

	body, err := json.Marshal(ollamaShowRequest{Name: model})
	if err != nil {
		return false, NewProviderError("ollama", model, fmt.Errorf("marshal request: %w", err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/show", bytes.NewReader(body))
	if err != nil {
		return false, NewProviderError("ollama", model, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return false, NewProviderError("ollama", model, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= http.StatusBadRequest:
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return false, NewProviderError("ollama", model, fmt.Errorf("ollama status %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody)))).WithStatus(resp.StatusCode)
	default:
		return true, nil
	}
}

// EnsureModelAvailable pulls model if it is not already present, blocking
// until the pull completes. Concurrent callers are serialized on ensureMu;
// a model already recorded in the per-process cache short-circuits without
// another round trip to Ollama.
func (p *OllamaProvider) EnsureModelAvailable(ctx context.Context, model string) error {
	model = strings.TrimSpace(model)
	if model == "" {
		return NewProviderError("ollama", model, errors.New("model is required"))
	}

	p.ensureMu.Lock()
	defer p.ensureMu.Unlock()

	if p.ensured[model] {
		return nil
	}

	exists, err := p.ModelExists(ctx, model)
	if err != nil {
		return err
	}
	if exists {
		p.ensured[model] = true
		return nil
	}

	body, err := json.Marshal(ollamaPullRequest{Name: model, Stream: false})
	if err != nil {
		return NewProviderError("ollama", model, fmt.Errorf("marshal request: %w", err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return NewProviderError("ollama", model, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return NewProviderError("ollama", model, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return NewProviderError("ollama", model, fmt.Errorf("ollama status %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody)))).WithStatus(resp.StatusCode)
	}

	var pullResp ollamaPullResponse
	if err := json.NewDecoder(resp.Body).Decode(&pullResp); err != nil && err != io.EOF {
		return NewProviderError("ollama", model, fmt.Errorf("decode pull response: %w", err))
	}
	if pullResp.Error != "" {
		return NewProviderError("ollama", model, errors.New(pullResp.Error))
	}

	p.ensured[model] = true
	return nil
}

// Complete sends a streaming chat request to Ollama.
func (p *OllamaProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	if req == nil {
		return nil, errors.New("request is nil")
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = p.defaultModel
	}
	if model == "" {
		return nil, NewProviderError("ollama", req.Model, errors.New("model is required"))
	}

	payload := ollamaChatRequest{
		Model:    model,
		Stream:   true,
		Messages: buildOllamaMessages(req),
	}
	if len(req.Tools) > 0 {
		payload.Tools = toolconv.ToOpenAITools(req.Tools)
	}
	options := map[string]any{}
	if p.contextLength > 0 {
		options["num_ctx"] = p.contextLength
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	if req.Temperature > 0 {
		options["temperature"] = req.Temperature
	}
	if len(options) > 0 {
		payload.Options = options
	}
	if strings.TrimSpace(req.ThinkLevel) != "" {
		payload.Think = req.ThinkLevel
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, NewProviderError("ollama", model, fmt.Errorf("marshal request: %w", err))
	}

	url := p.baseURL + "/api/chat"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewProviderError("ollama", model, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, NewProviderError("ollama", model, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		errBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		if err != nil {
			return nil, NewProviderError("ollama", model, fmt.Errorf("ollama status %d (read body failed: %w)", resp.StatusCode, err)).WithStatus(resp.StatusCode)
		}
		return nil, NewProviderError("ollama", model, fmt.Errorf("ollama status %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody)))).WithStatus(resp.StatusCode)
	}

	chunks := make(chan *agent.CompletionChunk)
	go p.streamResponse(ctx, resp.Body, chunks, model)
	return chunks, nil
}

// toolCallAccumulator assembles one streamed tool call: the name arrives as
// appended string fragments, the arguments either as chunked fragments of a
// JSON string or as one complete object. Nothing is parsed until the stream
// signals done.
type toolCallAccumulator struct {
	id   string
	name strings.Builder
	args strings.Builder
}

// accumulate folds one streamed delta into the per-index accumulators.
func accumulate(acc map[int]*toolCallAccumulator, tc ollamaToolCall) {
	entry, ok := acc[tc.Index]
	if !ok {
		entry = &toolCallAccumulator{}
		acc[tc.Index] = entry
	}
	if id := strings.TrimSpace(tc.ID); id != "" {
		entry.id = id
	}
	entry.name.WriteString(tc.Function.Name)

	if len(tc.Function.Arguments) == 0 {
		return
	}
	raw := tc.Function.Arguments
	if raw[0] == '"' {
		// A streamed fragment: a JSON string holding part of the final
		// arguments text.
		var fragment string
		if json.Unmarshal(raw, &fragment) == nil {
			entry.args.WriteString(fragment)
			return
		}
	}
	// A whole object (or anything else): replaces what came before.
	entry.args.Reset()
	entry.args.Write(raw)
}

// finalize parses each accumulated tool call, in index order. Malformed
// arguments degrade to {} with a warning rather than failing the turn.
func finalize(acc map[int]*toolCallAccumulator, logger *slog.Logger) []*models.ToolCall {
	indexes := make([]int, 0, len(acc))
	for idx := range acc {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	calls := make([]*models.ToolCall, 0, len(acc))
	for _, idx := range indexes {
		entry := acc[idx]
		name := strings.TrimSpace(entry.name.String())
		if name == "" {
			continue
		}

		id := entry.id
		if id == "" {
			id = uuid.NewString()
		}

		input := json.RawMessage(`{}`)
		if text := strings.TrimSpace(entry.args.String()); text != "" {
			var probe map[string]any
			if err := json.Unmarshal([]byte(text), &probe); err != nil {
				logger.Warn("unparseable tool call arguments, using empty object",
					"tool", name, "error", err, "args_len", len(text))
			} else {
				input = json.RawMessage(text)
			}
		}
		calls = append(calls, &models.ToolCall{ID: id, Name: name, Input: input})
	}
	return calls
}

func (p *OllamaProvider) streamResponse(ctx context.Context, body io.ReadCloser, out chan *agent.CompletionChunk, model string) {
	defer close(out)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	buf := make([]byte, 0, 1024*64)
	scanner.Buffer(buf, 1024*1024)

	pendingCalls := map[int]*toolCallAccumulator{}
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			out <- &agent.CompletionChunk{Error: ctx.Err(), Done: true}
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var resp ollamaChatResponse
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			out <- &agent.CompletionChunk{Error: NewProviderError("ollama", model, fmt.Errorf("decode response: %w", err)), Done: true}
			return
		}
		if resp.Error != "" {
			out <- &agent.CompletionChunk{Error: NewProviderError("ollama", model, errors.New(resp.Error)), Done: true}
			return
		}
		if resp.Message != nil {
			if resp.Message.Content != "" || resp.Message.Thinking != "" {
				out <- &agent.CompletionChunk{Text: resp.Message.Content, Thinking: resp.Message.Thinking}
			}
			for _, tc := range resp.Message.ToolCalls {
				accumulate(pendingCalls, tc)
			}
		}
		if resp.Done {
			for _, call := range finalize(pendingCalls, slog.Default()) {
				out <- &agent.CompletionChunk{ToolCall: call}
			}
			out <- &agent.CompletionChunk{
				Done:         true,
				InputTokens:  resp.PromptEvalCount,
				OutputTokens: resp.EvalCount,
			}
			return
		}
	}

	if err := scanner.Err(); err != nil {
		out <- &agent.CompletionChunk{Error: NewProviderError("ollama", model, err), Done: true}
		return
	}
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Tools    []openai.Tool       `json:"tools,omitempty"`
	Stream   bool                `json:"stream"`
	Options  map[string]any      `json:"options,omitempty"`
	Think    string              `json:"think,omitempty"`
}

type ollamaChatMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content,omitempty"`
	Thinking  string           `json:"thinking,omitempty"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolName  string           `json:"tool_name,omitempty"`
}

type ollamaChatResponse struct {
	Message         *ollamaChatMessage `json:"message"`
	Done            bool               `json:"done"`
	Error           string             `json:"error"`
	EvalCount       int                `json:"eval_count"`
	PromptEvalCount int                `json:"prompt_eval_count"`
}

type ollamaToolCall struct {
	Index    int                `json:"index,omitempty"`
	ID       string             `json:"id,omitempty"`
	Type     string             `json:"type,omitempty"`
	Function ollamaToolFunction `json:"function"`
}

type ollamaToolFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type ollamaEmbeddingsRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbeddingsResponse struct {
	Embedding []float32 `json:"embedding"`
}

type ollamaShowRequest struct {
	Name string `json:"name"`
}

type ollamaPullRequest struct {
	Name   string `json:"name"`
	Stream bool   `json:"stream"`
}

type ollamaPullResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

func buildOllamaMessages(req *agent.CompletionRequest) []ollamaChatMessage {
	messages := make([]ollamaChatMessage, 0, len(req.Messages)+1)
	toolNames := map[string]string{}
	for _, msg := range req.Messages {
		for _, tc := range msg.ToolCalls {
			if tc.ID != "" && tc.Name != "" {
				toolNames[tc.ID] = tc.Name
			}
		}
	}
	if system := strings.TrimSpace(req.System); system != "" {
		messages = append(messages, ollamaChatMessage{Role: "system", Content: system})
	}
	for _, msg := range req.Messages {
		role := msg.Role
		if role == "" {
			role = "user"
		}
		switch role {
		case "assistant":
			ollamaMsg := ollamaChatMessage{Role: role, Content: msg.Content}
			if len(msg.ToolCalls) > 0 {
				ollamaMsg.ToolCalls = make([]ollamaToolCall, len(msg.ToolCalls))
				for i, tc := range msg.ToolCalls {
					args := tc.Input
					if len(args) == 0 {
						args = json.RawMessage(`{}`)
					}
					ollamaMsg.ToolCalls[i] = ollamaToolCall{
						ID:   tc.ID,
						Type: "function",
						Function: ollamaToolFunction{
							Name:      tc.Name,
							Arguments: args,
						},
					}
				}
			}
			messages = append(messages, ollamaMsg)
		case "tool":
			if len(msg.ToolResults) > 0 {
				for _, tr := range msg.ToolResults {
					toolName := toolNames[tr.ToolCallID]
					messages = append(messages, ollamaChatMessage{
						Role:     "tool",
						Content:  tr.Content,
						ToolName: toolName,
					})
				}
			} else {
				messages = append(messages, ollamaChatMessage{Role: role, Content: msg.Content})
			}
		default:
			messages = append(messages, ollamaChatMessage{Role: role, Content: msg.Content})
		}
	}
	return messages
}
