package index

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/nexuscore/agentcore/internal/rag/parser"
	imageparser "github.com/nexuscore/agentcore/internal/rag/parser/image"
)

// ocrScannedPDF rasterizes a PDF that yielded no extractable text (a
// scanned document) and OCRs each page image. Rasterization shells out to
// pdftoppm; when the binary is unavailable the gate simply reports failure
// and the caller falls through to its next fallback.
func ocrScannedPDF(ctx context.Context, pdfPath string) (*parser.ParseResult, error) {
	tmpDir, err := os.MkdirTemp("", "pdf-ocr-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	cmd := exec.CommandContext(ctx, "pdftoppm", "-png", "-r", "200", pdfPath, prefix)
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("rasterize pdf: %w", err)
	}

	pages, err := filepath.Glob(prefix + "*.png")
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("rasterize pdf: no pages produced")
	}
	sort.Strings(pages)

	ocr := imageparser.New()
	result := &parser.ParseResult{}
	for i, pagePath := range pages {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		f, err := os.Open(pagePath)
		if err != nil {
			continue
		}
		pageResult, err := ocr.Parse(ctx, f, filepath.Base(pagePath))
		f.Close()
		if err != nil {
			continue
		}
		for _, chunk := range pageResult.Chunks {
			chunk.Page = i + 1
			result.Chunks = append(result.Chunks, chunk)
		}
	}
	return result, nil
}
