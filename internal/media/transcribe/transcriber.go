// Package transcribe converts audio to text through pluggable
// speech-to-text providers.
package transcribe

import (
	"fmt"
	"io"
	"log/slog"
)

// Provider converts an audio stream into text. language is an ISO 639-1
// hint; empty auto-detects.
type Provider interface {
	Transcribe(audio io.Reader, mimeType string, language string) (string, error)
}

// Config holds configuration for transcription providers.
type Config struct {
	// Provider selects the transcription backend (currently "openai").
	Provider string `yaml:"provider"`

	// APIKey is the API key for the provider.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model is the transcription model (e.g. "whisper-1").
	Model string `yaml:"model"`

	// Language is the default transcription language; empty auto-detects.
	Language string `yaml:"language"`

	Logger *slog.Logger `yaml:"-"`
}

func (c *Config) applyDefaults() {
	if c.Provider == "" {
		c.Provider = "openai"
	}
	if c.Model == "" {
		c.Model = "whisper-1"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Transcriber wraps a Provider with logging and a stable name for
// diagnostics.
type Transcriber struct {
	provider Provider
	name     string
	logger   *slog.Logger
}

// Transcribe converts audio to text via the underlying provider.
func (t *Transcriber) Transcribe(audio io.Reader, mimeType string, language string) (string, error) {
	text, err := t.provider.Transcribe(audio, mimeType, language)
	if err != nil {
		t.logger.Error("transcription failed", "provider", t.name, "error", err)
		return "", err
	}
	t.logger.Debug("transcription complete", "provider", t.name, "text_length", len(text))
	return text, nil
}

// Name returns the provider name.
func (t *Transcriber) Name() string {
	return t.name
}

// New creates a Transcriber from configuration, failing when the provider
// is unknown or required settings are missing.
func New(cfg Config) (*Transcriber, error) {
	cfg.applyDefaults()

	var provider Provider
	var err error

	switch cfg.Provider {
	case "openai":
		provider, err = NewOpenAITranscriber(OpenAIConfig{
			APIKey:   cfg.APIKey,
			BaseURL:  cfg.BaseURL,
			Model:    cfg.Model,
			Language: cfg.Language,
			Logger:   cfg.Logger,
		})
	default:
		return nil, fmt.Errorf("unsupported transcription provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s transcriber: %w", cfg.Provider, err)
	}

	return &Transcriber{
		provider: provider,
		name:     cfg.Provider,
		logger:   cfg.Logger.With("component", "transcriber"),
	}, nil
}

// NewWithProvider wraps a custom Provider implementation, mainly for tests.
func NewWithProvider(name string, provider Provider, logger *slog.Logger) *Transcriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transcriber{
		provider: provider,
		name:     name,
		logger:   logger.With("component", "transcriber"),
	}
}
