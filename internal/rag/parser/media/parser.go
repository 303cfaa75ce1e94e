// Package media parses audio and video sources by transcribing them, then
// splitting the transcript into paragraph-level RawChunks with
// proportionally interpolated timestamps.
package media

import (
	"bytes"
	"context"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/nexuscore/agentcore/internal/media"
	"github.com/nexuscore/agentcore/internal/media/transcribe"
	"github.com/nexuscore/agentcore/internal/rag/parser"
)

// paragraphBoundary splits a transcript into paragraphs on terminal
// punctuation or blank lines, since Whisper-style transcribers return a
// flat string with no structural markers.
var paragraphBoundary = regexp.MustCompile(`(?:[.!?]\s+)|\n\s*\n`)

// Parser transcribes audio/video sources via an injected Transcriber.
// Video containers are demuxed to a mono PCM WAV track first; audio is
// handed to the transcriber as-is.
type Parser struct {
	Transcriber *transcribe.Transcriber

	// Language hints the transcriber's target language; empty auto-detects.
	Language string

	// FFmpegPath and FFProbePath name the binaries used for demuxing and
	// duration probing. Defaults resolve from PATH; duration probing is
	// best-effort and timestamps are simply omitted when it fails.
	FFmpegPath  string
	FFProbePath string
}

// New creates a media parser bound to a transcriber.
func New(t *transcribe.Transcriber, language string) *Parser {
	return &Parser{Transcriber: t, Language: language, FFmpegPath: "ffmpeg", FFProbePath: "ffprobe"}
}

func (p *Parser) Name() string { return "media" }

func (p *Parser) SupportedTypes() []string {
	return []string{"audio/mpeg", "audio/wav", "audio/x-wav", "audio/mp4", "audio/ogg", "video/mp4", "video/webm"}
}

func (p *Parser) SupportedExtensions() []string {
	return []string{".mp3", ".wav", ".m4a", ".ogg", ".mp4", ".webm", ".mov"}
}

// Parse transcribes the source and emits one RawChunk per heuristically
// detected paragraph, each carrying a start/end offset proportional to its
// share of the transcript's character length against the probed total
// duration.
func (p *Parser) Parse(ctx context.Context, reader io.Reader, filename string) (*parser.ParseResult, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	mimeType := mimeFromFilename(filename)
	duration, _ := media.ProbeDuration(ctx, data, p.FFProbePath)

	audio := data
	audioMime := mimeType
	if media.IsVideo(mimeType) {
		wav, err := media.DemuxToWAV(ctx, data, p.FFmpegPath)
		if err != nil {
			return nil, err
		}
		audio = wav
		audioMime = "audio/wav"
	}

	text, err := p.Transcriber.Transcribe(bytes.NewReader(audio), audioMime, p.Language)
	if err != nil {
		return nil, err
	}

	result := &parser.ParseResult{}
	paragraphs := splitParagraphs(text)
	if len(paragraphs) == 0 {
		return result, nil
	}

	totalChars := 0
	for _, para := range paragraphs {
		totalChars += len(para)
	}
	if totalChars == 0 {
		totalChars = 1
	}

	var consumed int
	for _, para := range paragraphs {
		chunk := parser.RawChunk{Kind: parser.KindText, Text: para}
		if duration > 0 {
			start := duration * time.Duration(consumed) / time.Duration(totalChars)
			consumed += len(para)
			end := duration * time.Duration(consumed) / time.Duration(totalChars)
			chunk.TimeStart = &start
			chunk.TimeEnd = &end
		}
		result.Chunks = append(result.Chunks, chunk)
	}

	return result, nil
}

func splitParagraphs(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	raw := paragraphBoundary.Split(text, -1)
	paragraphs := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return paragraphs
}

// mimeFromFilename maps common media extensions back to a MIME type; the
// parser registry routes on MIME, but Parse only receives the filename.
func mimeFromFilename(filename string) string {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".mp4"), strings.HasSuffix(lower, ".mov"):
		return "video/mp4"
	case strings.HasSuffix(lower, ".webm"):
		return "video/webm"
	case strings.HasSuffix(lower, ".wav"):
		return "audio/wav"
	case strings.HasSuffix(lower, ".ogg"):
		return "audio/ogg"
	case strings.HasSuffix(lower, ".m4a"):
		return "audio/mp4"
	default:
		return "audio/mpeg"
	}
}

// Register is intentionally omitted: the media parser needs a Transcriber
// instance and is registered imperatively wherever the ingestion pipeline
// wires its parser registry, not via a blank-import side effect.
