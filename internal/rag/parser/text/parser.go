// Package text provides a parser for plain text and delimited (csv/tsv)
// documents.
package text

import (
	"context"
	"io"
	"strings"

	"github.com/nexuscore/agentcore/internal/rag/parser"
)

// Parser parses plain text documents.
type Parser struct{}

// New creates a new plain text parser.
func New() *Parser { return &Parser{} }

func (p *Parser) Name() string { return "text" }

func (p *Parser) SupportedTypes() []string {
	return []string{
		"text/plain",
		"text/csv",
		"text/tab-separated-values",
		"application/json",
		"application/xml",
		"text/xml",
	}
}

func (p *Parser) SupportedExtensions() []string {
	return []string{".txt", ".text", ".csv", ".tsv", ".json", ".xml", ".log"}
}

// Parse splits the document into paragraph chunks, using the first
// non-empty line as the title.
func (p *Parser) Parse(ctx context.Context, reader io.Reader, filename string) (*parser.ParseResult, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	content := strings.ReplaceAll(string(data), "\r\n", "\n")

	result := &parser.ParseResult{Title: extractFirstLine(content)}
	for _, para := range splitParagraphs(content) {
		result.Chunks = append(result.Chunks, parser.RawChunk{Kind: parser.KindText, Text: para})
	}
	return result, nil
}

func extractFirstLine(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(line) > 100 {
			return line[:100] + "..."
		}
		return line
	}
	return ""
}

func splitParagraphs(content string) []string {
	raw := strings.Split(content, "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Register registers the text parser with the default registry and sets
// it as the fallback parser for unrecognized types.
func Register() {
	p := New()
	parser.DefaultRegistry.Register(p)
	parser.DefaultRegistry.SetDefault(p)
}
