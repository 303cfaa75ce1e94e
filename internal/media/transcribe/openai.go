package transcribe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// maxAudioBytes is the Whisper API's upload ceiling.
const maxAudioBytes = 25 * 1024 * 1024

// OpenAIConfig holds configuration for the OpenAI Whisper transcriber.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// BaseURL overrides the API endpoint (default https://api.openai.com/v1).
	BaseURL string

	// Model is the Whisper model to use (default whisper-1).
	Model string

	// Language is the default transcription language; empty auto-detects.
	Language string

	// Timeout bounds one transcription request (default 60s).
	Timeout time.Duration

	Logger *slog.Logger
}

// OpenAITranscriber implements Provider against OpenAI's Whisper API.
type OpenAITranscriber struct {
	client   *openai.Client
	model    string
	language string
	timeout  time.Duration
	logger   *slog.Logger
}

var _ Provider = (*OpenAITranscriber)(nil)

// NewOpenAITranscriber creates a Whisper-backed transcriber.
func NewOpenAITranscriber(cfg OpenAIConfig) (*OpenAITranscriber, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}

	model := cfg.Model
	if model == "" {
		model = "whisper-1"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &OpenAITranscriber{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    model,
		language: cfg.Language,
		timeout:  timeout,
		logger:   logger.With("component", "openai_transcriber"),
	}, nil
}

// Transcribe converts audio to text via the Whisper API. The whole stream
// is buffered first since the API takes a multipart upload, capped at the
// API's 25 MB limit.
func (t *OpenAITranscriber) Transcribe(audio io.Reader, mimeType string, language string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	return t.TranscribeWithContext(ctx, audio, mimeType, language)
}

// TranscribeWithContext transcribes audio under the caller's context.
func (t *OpenAITranscriber) TranscribeWithContext(ctx context.Context, audio io.Reader, mimeType string, language string) (string, error) {
	data, err := io.ReadAll(io.LimitReader(audio, maxAudioBytes+1))
	if err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("audio data is empty")
	}
	if len(data) > maxAudioBytes {
		return "", fmt.Errorf("audio data too large (%d bytes)", len(data))
	}

	lang := language
	if lang == "" {
		lang = t.language
	}

	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: filenameForMimeType(mimeType),
		Reader:   strings.NewReader(string(data)),
		Language: lang,
		Format:   openai.AudioResponseFormatText,
	})
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}

	return strings.TrimSpace(resp.Text), nil
}

// filenameForMimeType maps a MIME type to a filename whose extension the
// Whisper API recognizes; the API rejects uploads it cannot name.
func filenameForMimeType(mimeType string) string {
	lower := strings.ToLower(mimeType)
	if idx := strings.Index(lower, ";"); idx != -1 {
		lower = strings.TrimSpace(lower[:idx])
	}
	switch lower {
	case "audio/flac":
		return "audio.flac"
	case "audio/m4a", "audio/mp4", "audio/x-m4a":
		return "audio.m4a"
	case "audio/mpeg", "audio/mp3":
		return "audio.mp3"
	case "audio/mpga":
		return "audio.mpga"
	case "audio/ogg", "audio/opus":
		return "audio.ogg"
	case "audio/wav", "audio/x-wav":
		return "audio.wav"
	case "audio/webm":
		return "audio.webm"
	default:
		return "audio.mp3"
	}
}

// SupportedMimeTypes returns the MIME types the Whisper API accepts.
func SupportedMimeTypes() []string {
	return []string{
		"audio/flac",
		"audio/m4a",
		"audio/mp3",
		"audio/mp4",
		"audio/mpeg",
		"audio/mpga",
		"audio/ogg",
		"audio/opus",
		"audio/wav",
		"audio/webm",
		"audio/x-m4a",
		"audio/x-wav",
	}
}

// IsSupportedMimeType reports whether a MIME type can be transcribed,
// ignoring any codec parameters.
func IsSupportedMimeType(mimeType string) bool {
	lower := strings.ToLower(mimeType)
	if idx := strings.Index(lower, ";"); idx != -1 {
		lower = strings.TrimSpace(lower[:idx])
	}
	for _, supported := range SupportedMimeTypes() {
		if lower == supported {
			return true
		}
	}
	return false
}
