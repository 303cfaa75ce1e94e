package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nexuscore/agentcore/internal/agent"
	"github.com/nexuscore/agentcore/internal/agent/providers"
	"github.com/nexuscore/agentcore/internal/config"
	"github.com/nexuscore/agentcore/internal/media/transcribe"
	"github.com/nexuscore/agentcore/internal/mcp"
	"github.com/nexuscore/agentcore/internal/rag/chunker"
	"github.com/nexuscore/agentcore/internal/rag/embedder"
	"github.com/nexuscore/agentcore/internal/rag/index"
	"github.com/nexuscore/agentcore/internal/rag/parser"
	imageparser "github.com/nexuscore/agentcore/internal/rag/parser/image"
	markdownparser "github.com/nexuscore/agentcore/internal/rag/parser/markdown"
	mediaparser "github.com/nexuscore/agentcore/internal/rag/parser/media"
	officeparser "github.com/nexuscore/agentcore/internal/rag/parser/office"
	pdfparser "github.com/nexuscore/agentcore/internal/rag/parser/pdf"
	textparser "github.com/nexuscore/agentcore/internal/rag/parser/text"
	webparser "github.com/nexuscore/agentcore/internal/rag/parser/web"
	"github.com/nexuscore/agentcore/internal/rag/store"
	"github.com/nexuscore/agentcore/internal/rag/store/pgvector"
	"github.com/nexuscore/agentcore/internal/tools/browser"
	"github.com/spf13/cobra"
)

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	if path == "" {
		if root := cmd.Root(); root != nil {
			path, _ = root.PersistentFlags().GetString("config")
		}
	}
	return config.Load(path)
}

// buildProvider wires C3: the streaming client to the local model runtime.
func buildProvider(cfg *config.Config) agent.LLMProvider {
	return providers.NewOllamaProvider(providers.OllamaConfig{
		BaseURL:       cfg.LLM.BaseURL,
		DefaultModel:  cfg.LLM.ChatModel,
		ContextLength: cfg.LLM.ContextLength,
		Timeout:       cfg.LLM.RequestTimeout,
	})
}

// buildRuntime wires C4 atop a provider, registering every MCP tool the
// registry currently knows about.
func buildRuntime(cfg *config.Config, provider agent.LLMProvider, registry *mcp.Registry) *agent.Runtime {
	runtime := agent.NewRuntime(provider, agent.NewToolRegistry(), agent.LoopConfig{
		MaxIterations: cfg.LLM.MaxIterations,
		ToolTimeout:   30 * time.Second,
		Temperature:   cfg.LLM.Temperature,
		ThinkLevel:    cfg.LLM.ThinkLevel,
		Logger:        slog.Default(),
	})
	runtime.SetDefaultModel(cfg.LLM.ChatModel)
	if registry != nil {
		registry.RegisterAgentTools(runtime)
	}
	return runtime
}

// buildMCPRegistry starts the configured MCP servers (C2) and wraps the
// manager in a Registry exposing the sanitized exposed-name tool surface
// (C1) the agent loop calls through.
func buildMCPRegistry(ctx context.Context, cfg *config.Config) (*mcp.Manager, *mcp.Registry, error) {
	manager := mcp.NewManager(&cfg.MCP, slog.Default())
	if cfg.MCP.Enabled {
		if err := manager.Start(ctx); err != nil {
			return manager, nil, fmt.Errorf("start mcp servers: %w", err)
		}
	}
	registry := mcp.NewRegistry(manager, slog.Default())
	if cfg.MCP.Enabled {
		if err := registry.Refresh(ctx); err != nil {
			slog.Warn("initial mcp tool refresh failed", "error", err)
		}
		if cfg.MCP.RefreshIntervalSeconds > 0 {
			registry.StartPeriodicRefresh(ctx, time.Duration(cfg.MCP.RefreshIntervalSeconds)*time.Second)
		}
	}
	return manager, registry, nil
}

// buildParserRegistry assembles C5: every format-specific parser the
// ingestion pipeline can dispatch to, falling back to plain text.
func buildParserRegistry(cfg *config.Config) *parser.Registry {
	registry := parser.NewRegistry()
	registry.Register(pdfparser.New())
	registry.Register(officeparser.New())
	registry.Register(webparser.New())
	registry.Register(imageparser.New())
	registry.Register(markdownparser.New())

	textDefault := textparser.New()
	registry.Register(textDefault)
	registry.SetDefault(textDefault)

	if transcriber, err := transcribe.New(transcribe.Config{
		Provider: "openai",
		APIKey:   os.Getenv("OPENAI_API_KEY"),
		Model:    cfg.RAG.Whisper.Model,
	}); err != nil {
		slog.Warn("transcription unavailable, audio/video ingestion will fail", "error", err)
	} else {
		registry.Register(mediaparser.New(transcriber, ""))
	}

	return registry
}

// buildVectorStore wires C8 against the configured pgvector DSN.
func buildVectorStore(cfg *config.Config) (store.VectorStore, error) {
	return pgvector.New(pgvector.Config{
		DSN:               cfg.RAG.VectorStoreURL,
		Dimension:         cfg.RAG.EmbeddingDim,
		RunMigrations:     true,
		DefaultCollection: cfg.RAG.DefaultCollection,
	})
}

// buildPipeline wires C9 end to end from its collaborators (C5-C8).
func buildPipeline(cfg *config.Config, provider agent.LLMProvider, vectorStore store.VectorStore, pool *browser.Pool) *index.Pipeline {
	return &index.Pipeline{
		Parsers: buildParserRegistry(cfg),
		Chunker: chunker.New(chunker.Config{ChunkSize: cfg.RAG.ChunkSize, ChunkOverlap: cfg.RAG.ChunkOverlap}),
		Embedder: embedder.New(provider, embedder.Config{
			Model:       cfg.LLM.EmbeddingModel,
			BatchSize:   cfg.RAG.EmbedBatchSize,
			Concurrency: cfg.RAG.EmbedConcurrency,
		}, slog.Default()),
		Store:       vectorStore,
		Recorder:    index.LoggingRecorder{},
		BrowserPool: pool,
		Concurrency: cfg.RAG.Concurrency,
		UploadRoot:  cfg.RAG.UploadRoot,
		Logger:      slog.Default(),
	}
}

// buildBrowserPool wires the headless-browser web fetcher behind the
// ingestion pipeline's "from_web" source.
func buildBrowserPool() (*browser.Pool, error) {
	return browser.NewPool(browser.PoolConfig{
		MaxInstances: 4,
		Timeout:      30 * time.Second,
		Headless:     true,
	})
}
