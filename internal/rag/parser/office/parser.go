// Package office extracts tabular content from spreadsheet documents.
package office

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/nexuscore/agentcore/internal/rag/parser"
	"github.com/nexuscore/agentcore/pkg/models"
)

// Parser extracts sheet data from xlsx/xlsm workbooks as table artifacts.
type Parser struct{}

// New creates a new spreadsheet parser.
func New() *Parser { return &Parser{} }

func (p *Parser) Name() string { return "office" }

func (p *Parser) SupportedTypes() []string {
	return []string{
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"application/vnd.ms-excel",
	}
}

func (p *Parser) SupportedExtensions() []string { return []string{".xlsx", ".xlsm"} }

// Parse renders each sheet's rows as a tab-separated text block, with one
// table artifact per sheet carrying the full grid and a content hash of
// its serialized form.
func (p *Parser) Parse(ctx context.Context, reader io.Reader, filename string) (*parser.ParseResult, error) {
	f, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	result := &parser.ParseResult{}
	for page, sheet := range f.GetSheetList() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}

		serialized := serializeGrid(rows)
		var text strings.Builder
		text.WriteString(sheet)
		text.WriteString("\n")
		text.WriteString(serialized)

		result.Chunks = append(result.Chunks, parser.RawChunk{
			Kind: parser.KindTable,
			Text: text.String(),
			Page: page + 1,
			Artifact: &models.Artifact{
				Kind:        models.ArtifactTable,
				Description: sheet,
				Hash:        gridHash(serialized),
				Grid:        rows,
				Ref:         sheet,
			},
		})
	}

	return result, nil
}

// serializeGrid flattens rows into the tab/newline form that both the
// chunk text and the content hash are derived from.
func serializeGrid(rows [][]string) string {
	var b strings.Builder
	for _, row := range rows {
		b.WriteString(strings.Join(row, "\t"))
		b.WriteString("\n")
	}
	return b.String()
}

func gridHash(serialized string) string {
	sum := sha256.Sum256([]byte(serialized))
	return hex.EncodeToString(sum[:])
}

// Register registers the office parser with the default registry.
func Register() { parser.DefaultRegistry.Register(New()) }
