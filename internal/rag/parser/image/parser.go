// Package image extracts text from raster images via OCR. No Go OCR
// library appears anywhere in the example corpus, so this shells out to
// the tesseract CLI, the same way the corpus's other external-process
// integrations (ffmpeg, browsers) are driven via os/exec.
package image

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/nexuscore/agentcore/internal/rag/parser"
	"github.com/nexuscore/agentcore/pkg/models"
)

// ocrTextMaxLen bounds the OCR text carried on the artifact; the full
// recognized text is the chunk's own body.
const ocrTextMaxLen = 200

// Parser runs OCR over a fixed sequence of preprocessed variants of an
// image — original, autocontrast, sharpen, threshold — and keeps the first
// variant that recognizes any text.
type Parser struct {
	// TesseractPath is the tesseract binary to invoke. Defaults to
	// "tesseract" resolved from PATH.
	TesseractPath string
}

// New creates a new image OCR parser.
func New() *Parser { return &Parser{TesseractPath: "tesseract"} }

func (p *Parser) Name() string { return "image" }

func (p *Parser) SupportedTypes() []string {
	return []string{"image/png", "image/jpeg", "image/webp", "image/tiff", "image/bmp"}
}

func (p *Parser) SupportedExtensions() []string {
	return []string{".png", ".jpg", ".jpeg", ".webp", ".tiff", ".tif", ".bmp"}
}

// Parse decodes the image, OCRs the preprocessing variants in order until
// one yields text, and returns that text alongside a picture artifact
// carrying the image's content hash, dimensions and source reference.
func (p *Parser) Parse(ctx context.Context, reader io.Reader, filename string) (*parser.ParseResult, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	variants := []struct {
		name string
		img  image.Image
	}{
		{"original", img},
		{"autocontrast", imaging.AdjustContrast(img, 20)},
		{"sharpen", imaging.Sharpen(img, 1.5)},
		{"threshold", threshold(img, 160)},
	}

	var text string
	for _, v := range variants {
		candidate, err := p.ocr(ctx, v.img)
		if err != nil {
			continue
		}
		if candidate = strings.TrimSpace(candidate); candidate != "" {
			text = candidate
			break
		}
	}

	sum := sha256.Sum256(data)
	bounds := img.Bounds()
	result := &parser.ParseResult{}
	result.Chunks = append(result.Chunks, parser.RawChunk{
		Kind: parser.KindPicture,
		Text: text,
		Artifact: &models.Artifact{
			Kind:        models.ArtifactImage,
			Description: filepath.Base(filename),
			Hash:        hex.EncodeToString(sum[:]),
			Width:       bounds.Dx(),
			Height:      bounds.Dy(),
			Ref:         filepath.Base(filename),
			OCRText:     truncateOCR(text),
		},
	})
	return result, nil
}

// threshold binarizes the image: every pixel whose grayscale value exceeds
// cutoff becomes white, everything else black. Scanned text survives this
// where halftones and background noise do not.
func threshold(img image.Image, cutoff uint8) image.Image {
	gray := imaging.Grayscale(img)
	bounds := gray.Bounds()
	out := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.GrayModel.Convert(gray.At(x, y)).(color.Gray)
			if c.Y > cutoff {
				out.SetGray(x, y, color.Gray{Y: 255})
			} else {
				out.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	return out
}

func truncateOCR(s string) string {
	if len(s) <= ocrTextMaxLen {
		return s
	}
	return s[:ocrTextMaxLen] + "..."
}

// ocr writes img to a temp PNG and shells out to tesseract, returning the
// recognized text.
func (p *Parser) ocr(ctx context.Context, img image.Image) (string, error) {
	tmp, err := os.CreateTemp("", "ocr-*.png")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if err := png.Encode(tmp, img); err != nil {
		return "", err
	}
	tmp.Close()

	bin := p.TesseractPath
	if bin == "" {
		bin = "tesseract"
	}
	cmd := exec.CommandContext(ctx, bin, tmp.Name(), "stdout")
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tesseract: %w", err)
	}
	return out.String(), nil
}

// Register registers the image parser with the default registry.
func Register() { parser.DefaultRegistry.Register(New()) }
