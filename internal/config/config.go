// Package config loads and validates the agent core's configuration: the
// LLM runtime endpoint, the MCP server list, the RAG/ingestion pipeline,
// the HTTP edge the CLI exposes, and the ambient logging/tracing/metrics
// stack. Configuration is YAML, overridable by environment variables, and
// validated once at startup; a broken configuration refuses to start.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nexuscore/agentcore/internal/mcp"
)

// Config is the top-level configuration for the agent core.
type Config struct {
	// Version is the config file schema version; zero means the file
	// predates versioning and is accepted as-is.
	Version int `yaml:"version"`

	Server        ServerConfig        `yaml:"server"`
	LLM           LLMConfig           `yaml:"llm"`
	MCP           mcp.Config          `yaml:"mcp"`
	RAG           RAGConfig           `yaml:"rag"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig configures the HTTP edge the CLI's `serve` command exposes:
// the chat-completion/SSE endpoint and the ingestion endpoint. Routing,
// rate limiting, CORS and auth translation proper live in front of this
// process; this is just the listener.
type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	MetricsPort int    `yaml:"metrics_port"`
}

// RAGConfig configures the ingestion pipeline (C9) and its collaborators
// (C6 chunker, C7 embedder, C8 vector store).
type RAGConfig struct {
	VectorStoreURL    string        `yaml:"vector_store_url"`
	EmbeddingDim      int           `yaml:"embedding_dim"`
	DefaultCollection string        `yaml:"default_collection"`
	Concurrency       int           `yaml:"concurrency"`
	ChunkSize         int           `yaml:"chunk_size"`
	ChunkOverlap      int           `yaml:"chunk_overlap"`
	EmbedBatchSize    int           `yaml:"embed_batch_size"`
	EmbedConcurrency  int           `yaml:"embed_concurrency"`
	UploadRoot        string        `yaml:"upload_root"`
	Whisper           WhisperConfig `yaml:"whisper"`
}

// WhisperConfig configures the audio/video transcription engine (§4.5, §6).
type WhisperConfig struct {
	Model       string `yaml:"model"`
	ComputeType string `yaml:"compute_type"`
	Device      string `yaml:"device"`
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{Host: "127.0.0.1", Port: 8080, MetricsPort: 9090},
		LLM: LLMConfig{
			BaseURL:         "http://127.0.0.1:11434",
			ChatModel:       "llama3.1",
			EmbeddingModel:  "nomic-embed-text",
			ContextLength:   8192,
			Temperature:     0.7,
			MaxIterations:   10,
			RequestTimeout:  60 * time.Second,
			AutoPullModels:  true,
		},
		MCP: mcp.Config{Enabled: true, RefreshIntervalSeconds: 300},
		RAG: RAGConfig{
			EmbeddingDim:      768,
			DefaultCollection: "documents",
			Concurrency:       8,
			ChunkSize:         256,
			ChunkOverlap:      32,
			EmbedBatchSize:    32,
			EmbedConcurrency:  8,
			UploadRoot:        os.TempDir(),
			Whisper:           WhisperConfig{Model: "base", ComputeType: "int8", Device: "cpu"},
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads path as YAML, applies environment-variable overrides, fills
// defaults, and validates the result. A missing or invalid required field
// is a fatal error.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if strings.TrimSpace(path) != "" {
		raw, err := LoadRaw(path)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		if err := decodeInto(raw, &cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		if _, versioned := raw["version"]; versioned {
			if err := ValidateVersion(cfg.Version); err != nil {
				return nil, err
			}
		}
	}
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces the startup invariants the server refuses to start
// without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.LLM.BaseURL) == "" {
		return fmt.Errorf("llm.base_url is required")
	}
	if strings.TrimSpace(c.LLM.ChatModel) == "" {
		return fmt.Errorf("llm.chat_model is required")
	}
	if c.RAG.EmbeddingDim <= 0 {
		return fmt.Errorf("rag.embedding_dim must be positive")
	}
	if c.RAG.Concurrency <= 0 {
		return fmt.Errorf("rag.concurrency must be positive")
	}
	for _, server := range c.MCP.Servers {
		if err := server.Validate(); err != nil {
			return fmt.Errorf("mcp.servers[%s]: %w", server.ID, err)
		}
	}
	return nil
}

// applyEnvOverrides lets operators override the config file from the
// environment without a restart-time template engine.
func applyEnvOverrides(cfg *Config) {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := os.LookupEnv(key); ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}

	str("NEXUS_LLM_BASE_URL", &cfg.LLM.BaseURL)
	str("NEXUS_CHAT_MODEL", &cfg.LLM.ChatModel)
	str("NEXUS_EMBEDDING_MODEL", &cfg.LLM.EmbeddingModel)
	integer("NEXUS_CHAT_CONTEXT_LENGTH", &cfg.LLM.ContextLength)
	float("NEXUS_LLM_TEMPERATURE", &cfg.LLM.Temperature)

	str("NEXUS_VECTOR_STORE_URL", &cfg.RAG.VectorStoreURL)
	integer("NEXUS_EMBEDDING_DIM", &cfg.RAG.EmbeddingDim)
	str("NEXUS_DEFAULT_COLLECTION", &cfg.RAG.DefaultCollection)
	integer("NEXUS_INGESTION_CONCURRENCY", &cfg.RAG.Concurrency)
	str("NEXUS_UPLOAD_ROOT", &cfg.RAG.UploadRoot)
	str("NEXUS_WHISPER_MODEL", &cfg.RAG.Whisper.Model)
	str("NEXUS_WHISPER_COMPUTE_TYPE", &cfg.RAG.Whisper.ComputeType)
	str("NEXUS_WHISPER_DEVICE", &cfg.RAG.Whisper.Device)

	if v, ok := os.LookupEnv("NEXUS_MCP_SERVERS"); ok {
		cfg.MCP.Servers = nil
		for _, url := range strings.Split(v, ",") {
			url = strings.TrimSpace(url)
			if url == "" {
				continue
			}
			transport := mcp.TransportHTTP
			if strings.HasPrefix(url, "ws://") || strings.HasPrefix(url, "wss://") {
				transport = mcp.TransportWS
			}
			cfg.MCP.Servers = append(cfg.MCP.Servers, &mcp.ServerConfig{
				ID:        url,
				URL:       url,
				Transport: transport,
				AutoStart: true,
			})
		}
	}
	integer("NEXUS_MCP_REFRESH_INTERVAL", &cfg.MCP.RefreshIntervalSeconds)

	str("NEXUS_LOG_LEVEL", &cfg.Logging.Level)
	str("NEXUS_LOG_FORMAT", &cfg.Logging.Format)
}
