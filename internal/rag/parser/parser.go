// Package parser extracts structured chunks of text (and the artifacts
// embedded alongside them) from raw document bytes, ahead of chunking.
package parser

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/nexuscore/agentcore/pkg/models"
)

// ChunkKind classifies one extracted fragment of a parsed document.
type ChunkKind string

const (
	KindText    ChunkKind = "text"
	KindHeading ChunkKind = "heading"
	KindTable   ChunkKind = "table"
	KindPicture ChunkKind = "picture"
	KindChart   ChunkKind = "chart"
	KindList    ChunkKind = "list"
)

// RawChunk is one fragment of text (or a reference to an artifact) pulled
// out of a document by a Parser, ahead of the chunker's token-window pass.
type RawChunk struct {
	Kind     ChunkKind
	Text     string
	Page     int // 1-based; 0 when the format carries no page concept
	Artifact *models.Artifact

	// TimeStart/TimeEnd bound this chunk within a source recording. Only
	// set by media parsers; nil for page- or section-based formats.
	TimeStart *time.Duration
	TimeEnd   *time.Duration
}

// ParseResult is everything a Parser extracted from one document.
type ParseResult struct {
	Title  string
	Chunks []RawChunk
}

// Parser extracts structured content from one document format.
type Parser interface {
	Parse(ctx context.Context, reader io.Reader, filename string) (*ParseResult, error)
	Name() string
	SupportedTypes() []string
	SupportedExtensions() []string
}

// Registry resolves the right Parser for a document by MIME type or file
// extension, falling back to a configured default.
type Registry struct {
	mu            sync.RWMutex
	parsersByType map[string]Parser
	parsersByExt  map[string]Parser
	defaultParser Parser
}

// NewRegistry creates an empty parser registry.
func NewRegistry() *Registry {
	return &Registry{
		parsersByType: make(map[string]Parser),
		parsersByExt:  make(map[string]Parser),
	}
}

// Register adds a parser under all of its declared MIME types and
// extensions.
func (r *Registry) Register(parser Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, mimeType := range parser.SupportedTypes() {
		r.parsersByType[strings.ToLower(mimeType)] = parser
	}
	for _, ext := range parser.SupportedExtensions() {
		r.parsersByExt[strings.ToLower(strings.TrimPrefix(ext, "."))] = parser
	}
}

// SetDefault sets the parser used when no specific match is found.
func (r *Registry) SetDefault(parser Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultParser = parser
}

// GetByType returns the parser registered for a MIME type.
func (r *Registry) GetByType(mimeType string) (Parser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if idx := strings.Index(mimeType, ";"); idx != -1 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}
	parser, ok := r.parsersByType[strings.ToLower(mimeType)]
	return parser, ok
}

// GetByExtension returns the parser registered for a file extension.
func (r *Registry) GetByExtension(ext string) (Parser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	parser, ok := r.parsersByExt[strings.ToLower(strings.TrimPrefix(ext, "."))]
	return parser, ok
}

// Get resolves the best parser for a document, trying MIME type first,
// then extension, then the registry default.
func (r *Registry) Get(contentType, ext string) (Parser, error) {
	if contentType != "" {
		if parser, ok := r.GetByType(contentType); ok {
			return parser, nil
		}
	}
	if ext != "" {
		if parser, ok := r.GetByExtension(ext); ok {
			return parser, nil
		}
	}
	r.mu.RLock()
	defaultParser := r.defaultParser
	r.mu.RUnlock()
	if defaultParser != nil {
		return defaultParser, nil
	}
	return nil, fmt.Errorf("no parser found for content type %q, extension %q", contentType, ext)
}

// Parse resolves the best parser for contentType/ext within r and runs it.
func (r *Registry) Parse(ctx context.Context, reader io.Reader, contentType, ext, filename string) (*ParseResult, error) {
	parser, err := r.Get(contentType, ext)
	if err != nil {
		return nil, err
	}
	return parser.Parse(ctx, reader, filename)
}

// DefaultRegistry is populated by each format sub-package's Register().
var DefaultRegistry = NewRegistry()

// Parse resolves and runs the best parser from DefaultRegistry.
func Parse(ctx context.Context, reader io.Reader, contentType, ext, filename string) (*ParseResult, error) {
	parser, err := DefaultRegistry.Get(contentType, ext)
	if err != nil {
		return nil, err
	}
	return parser.Parse(ctx, reader, filename)
}
