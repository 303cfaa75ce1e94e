package image

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestParse_ArtifactMetadataWithoutOCR(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 6))
	data := encodePNG(t, img)

	// A nonexistent binary makes every OCR variant fail, leaving the
	// artifact metadata path on its own.
	p := &Parser{TesseractPath: "/nonexistent/tesseract"}
	result, err := p.Parse(context.Background(), bytes.NewReader(data), "scan.png")
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Chunks) != 1 {
		t.Fatalf("chunks = %d, want 1", len(result.Chunks))
	}

	art := result.Chunks[0].Artifact
	if art == nil {
		t.Fatal("no artifact on picture chunk")
	}
	if art.Width != 10 || art.Height != 6 {
		t.Errorf("dimensions = %dx%d, want 10x6", art.Width, art.Height)
	}
	if len(art.Hash) != 64 {
		t.Errorf("hash = %q, want sha256 hex", art.Hash)
	}
	if art.Ref != "scan.png" {
		t.Errorf("ref = %q", art.Ref)
	}
	if result.Chunks[0].Text != "" || art.OCRText != "" {
		t.Errorf("text should be empty when OCR is unavailable, got %q / %q", result.Chunks[0].Text, art.OCRText)
	}
}

func TestParse_HashIsContentDerived(t *testing.T) {
	a := encodePNG(t, image.NewRGBA(image.Rect(0, 0, 4, 4)))
	white := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			white.Set(x, y, color.White)
		}
	}
	b := encodePNG(t, white)

	p := &Parser{TesseractPath: "/nonexistent/tesseract"}
	resA, err := p.Parse(context.Background(), bytes.NewReader(a), "a.png")
	if err != nil {
		t.Fatal(err)
	}
	resB, err := p.Parse(context.Background(), bytes.NewReader(b), "b.png")
	if err != nil {
		t.Fatal(err)
	}
	if resA.Chunks[0].Artifact.Hash == resB.Chunks[0].Artifact.Hash {
		t.Error("different image contents must not share a hash")
	}
}

func TestThreshold_Binarizes(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 2, 1))
	img.SetGray(0, 0, color.Gray{Y: 200})
	img.SetGray(1, 0, color.Gray{Y: 50})

	out := threshold(img, 160)
	light := color.GrayModel.Convert(out.At(0, 0)).(color.Gray)
	dark := color.GrayModel.Convert(out.At(1, 0)).(color.Gray)
	if light.Y != 255 {
		t.Errorf("bright pixel = %d, want 255", light.Y)
	}
	if dark.Y != 0 {
		t.Errorf("dark pixel = %d, want 0", dark.Y)
	}
}

func TestTruncateOCR(t *testing.T) {
	long := make([]byte, ocrTextMaxLen+50)
	for i := range long {
		long[i] = 'a'
	}
	if got := truncateOCR(string(long)); len(got) != ocrTextMaxLen+3 {
		t.Errorf("truncated length = %d", len(got))
	}
	if got := truncateOCR("short"); got != "short" {
		t.Errorf("short text altered: %q", got)
	}
}
