// Package markdown provides a parser for Markdown documents with
// frontmatter and heading-aware section extraction.
package markdown

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"regexp"
	"strings"

	"github.com/nexuscore/agentcore/internal/rag/parser"
	"gopkg.in/yaml.v3"
)

// Parser parses Markdown documents, extracting frontmatter and
// heading-delimited sections.
type Parser struct{}

// New creates a new Markdown parser.
func New() *Parser { return &Parser{} }

func (p *Parser) Name() string { return "markdown" }

func (p *Parser) SupportedTypes() []string {
	return []string{"text/markdown", "text/x-markdown"}
}

func (p *Parser) SupportedExtensions() []string {
	return []string{".md", ".markdown", ".mdown", ".mkd"}
}

// Parse strips frontmatter, then emits one heading RawChunk per heading
// encountered and one text RawChunk per section body.
func (p *Parser) Parse(ctx context.Context, reader io.Reader, filename string) (*parser.ParseResult, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	content := string(data)

	frontmatter, body := extractFrontmatter(content)
	title := ""
	if frontmatter != "" {
		title = frontmatterTitle(frontmatter)
	}
	content = body
	if title == "" {
		title = extractFirstHeading(content)
	}

	return &parser.ParseResult{Title: title, Chunks: extractChunks(content)}, nil
}

func extractFrontmatter(content string) (frontmatter, body string) {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "---") {
		return "", content
	}
	lines := strings.Split(content, "\n")
	if len(lines) < 3 {
		return "", content
	}
	endIndex := -1
	for i := 1; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "---" || trimmed == "..." {
			endIndex = i
			break
		}
	}
	if endIndex == -1 {
		return "", content
	}
	return strings.Join(lines[1:endIndex], "\n"), strings.Join(lines[endIndex+1:], "\n")
}

func frontmatterTitle(fm string) string {
	var data struct {
		Title string `yaml:"title"`
	}
	if yaml.Unmarshal([]byte(fm), &data) != nil {
		return ""
	}
	return data.Title
}

var headingRegex = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

func extractFirstHeading(content string) string {
	scanner := bufio.NewScanner(bytes.NewBufferString(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if matches := headingRegex.FindStringSubmatch(line); len(matches) == 3 {
			return strings.TrimSpace(matches[2])
		}
	}
	return ""
}

// extractChunks walks the body line by line, emitting a heading chunk at
// each "#"-prefixed line and a text chunk for the body accumulated since
// the previous heading.
func extractChunks(content string) []parser.RawChunk {
	var chunks []parser.RawChunk
	var body strings.Builder

	flush := func() {
		text := strings.TrimSpace(body.String())
		if text != "" {
			chunks = append(chunks, parser.RawChunk{Kind: parser.KindText, Text: text})
		}
		body.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		if matches := headingRegex.FindStringSubmatch(strings.TrimSpace(line)); len(matches) == 3 {
			flush()
			chunks = append(chunks, parser.RawChunk{Kind: parser.KindHeading, Text: strings.TrimSpace(matches[2])})
			continue
		}
		body.WriteString(line)
		body.WriteString("\n")
	}
	flush()

	return chunks
}

// Register registers the Markdown parser with the default registry.
func Register() {
	parser.DefaultRegistry.Register(New())
}
