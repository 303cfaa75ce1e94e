// Package embedder turns chunk text into vectors, bounding how many
// embedding requests are in flight against the backing provider at once.
package embedder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nexuscore/agentcore/internal/agent"
)

const (
	defaultBatchSize  = 32
	defaultConcurrency = 8
)

// Config controls batching and concurrency for an Embedder.
type Config struct {
	// Model is the embedding model name passed to the provider.
	Model string

	// BatchSize is the number of texts grouped per logical batch.
	// Batching only affects logging granularity; every text within a
	// batch is still dispatched as its own provider request.
	BatchSize int

	// Concurrency bounds how many embedding requests are in flight
	// across all batches at once.
	Concurrency int
}

func (c Config) sanitized() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	return c
}

// Embedder embeds text through an agent.LLMProvider, preserving input
// order and bounding concurrent in-flight requests with a semaphore.
type Embedder struct {
	provider agent.LLMProvider
	cfg      Config
	logger   *slog.Logger
}

// New creates an Embedder backed by provider.
func New(provider agent.LLMProvider, cfg Config, logger *slog.Logger) *Embedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Embedder{
		provider: provider,
		cfg:      cfg.sanitized(),
		logger:   logger.With("component", "embedder"),
	}
}

// EmbedText embeds a single piece of text.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.provider.Embed(ctx, e.cfg.Model, text)
	if err != nil {
		return nil, fmt.Errorf("embedder: embed text: %w", err)
	}
	if len(vec) == 0 {
		e.logger.Warn("backend returned empty embedding", "text_len", len(text))
	}
	return vec, nil
}

// EmbedTexts embeds many texts, preserving the order of the input slice
// in the returned slice. Requests are split into batches of cfg.BatchSize
// and dispatched with at most cfg.Concurrency requests in flight at once.
// An empty input returns an empty, non-nil output. If a single backend
// call returns an empty embedding it is logged and left as a zero-length
// entry in the result rather than aborting the whole call.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	sem := make(chan struct{}, e.cfg.Concurrency)

	for start := 0; start < len(texts); start += e.cfg.BatchSize {
		end := start + e.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}

		var wg sync.WaitGroup
		var firstErr error
		var errMu sync.Mutex

		for i := start; i < end; i++ {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("embedder: %w", ctx.Err())
			default:
			}

			wg.Add(1)
			go func(idx int, text string) {
				defer wg.Done()

				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-ctx.Done():
					errMu.Lock()
					if firstErr == nil {
						firstErr = ctx.Err()
					}
					errMu.Unlock()
					return
				}

				vec, err := e.provider.Embed(ctx, e.cfg.Model, text)
				if err != nil {
					errMu.Lock()
					if firstErr == nil {
						firstErr = fmt.Errorf("embed index %d: %w", idx, err)
					}
					errMu.Unlock()
					return
				}
				if len(vec) == 0 {
					e.logger.Warn("backend returned empty embedding", "index", idx)
				}
				results[idx] = vec
			}(i, texts[i])
		}

		wg.Wait()
		if firstErr != nil {
			return nil, fmt.Errorf("embedder: %w", firstErr)
		}
	}

	return results, nil
}

// Close releases resources held by the embedder. The provider is owned
// by its caller, so Close is currently a no-op kept for interface parity
// with other embed_text/embed_texts/close-shaped components.
func (e *Embedder) Close() error {
	return nil
}
