// Package pdf extracts text from PDF documents in two tiers: a structured
// pass over each page's content-stream text runs that recovers headings
// and paragraph boundaries from font sizes and line spacing, then a plain
// per-page text dump for pages whose content streams yield nothing.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"

	ledongthucpdf "github.com/ledongthuc/pdf"

	"github.com/nexuscore/agentcore/internal/rag/parser"
)

// Parser extracts structured text from PDF files.
type Parser struct{}

// New creates a new PDF parser.
func New() *Parser { return &Parser{} }

func (p *Parser) Name() string { return "pdf" }

func (p *Parser) SupportedTypes() []string { return []string{"application/pdf"} }

func (p *Parser) SupportedExtensions() []string { return []string{".pdf"} }

// Parse reads the whole document into memory (ledongthuc/pdf requires an
// io.ReaderAt) and emits heading/text RawChunks per page. Pages whose
// content streams decode to nothing fall back to the plain text
// extractor; pages with no text at all (scanned images) are left for the
// caller to route through OCR.
func (p *Parser) Parse(ctx context.Context, reader io.Reader, filename string) (*parser.ParseResult, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}

	doc, err := ledongthucpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	result := &parser.ParseResult{}
	total := doc.NumPage()
	for i := 1; i <= total; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		page := doc.Page(i)
		if page.V.IsNull() {
			continue
		}

		chunks := extractStructured(page.Content().Text, i)
		if len(chunks) == 0 {
			text, err := page.GetPlainText(nil)
			if err != nil || text == "" {
				continue
			}
			chunks = []parser.RawChunk{{Kind: parser.KindText, Text: text, Page: i}}
		}
		result.Chunks = append(result.Chunks, chunks...)
	}

	return result, nil
}

// Register registers the PDF parser with the default registry.
func Register() { parser.DefaultRegistry.Register(New()) }
