// Package web extracts readable text from rendered HTML pages fetched by
// the ingestion pipeline's headless browser step.
package web

import (
	"context"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/nexuscore/agentcore/internal/rag/parser"
)

// Parser strips markup from an HTML document, keeping heading and
// paragraph-level structure.
type Parser struct{}

// New creates a new HTML parser.
func New() *Parser { return &Parser{} }

func (p *Parser) Name() string { return "web" }

func (p *Parser) SupportedTypes() []string { return []string{"text/html"} }

func (p *Parser) SupportedExtensions() []string { return []string{".html", ".htm"} }

func (p *Parser) Parse(ctx context.Context, reader io.Reader, filename string) (*parser.ParseResult, error) {
	doc, err := html.Parse(reader)
	if err != nil {
		return nil, err
	}

	result := &parser.ParseResult{}
	var walk func(*html.Node)
	var buf strings.Builder

	flush := func() {
		text := strings.TrimSpace(buf.String())
		if text != "" {
			result.Chunks = append(result.Chunks, parser.RawChunk{Kind: parser.KindText, Text: text})
		}
		buf.Reset()
	}

	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript":
				return
			case "h1", "h2", "h3", "h4", "h5", "h6":
				flush()
				var heading strings.Builder
				collectText(n, &heading)
				text := strings.TrimSpace(heading.String())
				if text != "" {
					if result.Title == "" {
						result.Title = text
					}
					result.Chunks = append(result.Chunks, parser.RawChunk{Kind: parser.KindHeading, Text: text})
				}
				return
			case "p", "div", "li", "br":
				flush()
			}
		case html.TextNode:
			text := strings.TrimSpace(n.Data)
			if text != "" {
				buf.WriteString(text)
				buf.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	flush()

	return result, nil
}

func collectText(n *html.Node, buf *strings.Builder) {
	if n.Type == html.TextNode {
		buf.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, buf)
	}
}

// Register registers the web parser with the default registry.
func Register() { parser.DefaultRegistry.Register(New()) }
