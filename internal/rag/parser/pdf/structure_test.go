package pdf

import (
	"testing"

	ledongthucpdf "github.com/ledongthuc/pdf"

	"github.com/nexuscore/agentcore/internal/rag/parser"
)

func run(s string, x, y, size float64) ledongthucpdf.Text {
	return ledongthucpdf.Text{S: s, X: x, Y: y, W: size * float64(len(s)) * 0.4, FontSize: size}
}

func TestExtractStructured_HeadingsAndParagraphs(t *testing.T) {
	texts := []ledongthucpdf.Text{
		// Heading line in 18pt over a 10pt body.
		run("Quarterly", 50, 700, 18),
		run("Report", 130, 700, 18),
		// Body paragraph, tight leading.
		run("Revenue grew in", 50, 680, 10),
		run("every region.", 130, 680, 10),
		run("Costs stayed flat.", 50, 668, 10),
		// Large vertical gap starts a second paragraph.
		run("Outlook remains stable.", 50, 600, 10),
	}

	chunks := extractStructured(texts, 3)
	if len(chunks) != 3 {
		t.Fatalf("chunks = %d (%+v), want heading + 2 paragraphs", len(chunks), chunks)
	}

	if chunks[0].Kind != parser.KindHeading || chunks[0].Text != "Quarterly Report" {
		t.Errorf("heading = %+v", chunks[0])
	}
	if chunks[1].Kind != parser.KindText || chunks[1].Text != "Revenue grew in every region. Costs stayed flat." {
		t.Errorf("first paragraph = %q", chunks[1].Text)
	}
	if chunks[2].Text != "Outlook remains stable." {
		t.Errorf("second paragraph = %q", chunks[2].Text)
	}
	for _, c := range chunks {
		if c.Page != 3 {
			t.Errorf("page = %d, want 3", c.Page)
		}
	}
}

func TestExtractStructured_EmptyPage(t *testing.T) {
	if got := extractStructured(nil, 1); got != nil {
		t.Errorf("chunks = %+v, want nil for an empty page", got)
	}
	whitespace := []ledongthucpdf.Text{run("   ", 0, 0, 10)}
	if got := extractStructured(whitespace, 1); got != nil {
		t.Errorf("chunks = %+v, want nil for whitespace-only runs", got)
	}
}

func TestExtractStructured_LongLargePrintIsNotAHeading(t *testing.T) {
	texts := []ledongthucpdf.Text{
		run("A pull quote that rambles on for well over twelve words should stay body text here", 50, 700, 18),
		run("body", 50, 680, 10),
		run("body", 50, 668, 10),
	}
	chunks := extractStructured(texts, 1)
	for _, c := range chunks {
		if c.Kind == parser.KindHeading {
			t.Fatalf("long large-print line classified as heading: %q", c.Text)
		}
	}
}

func TestBodyFontSize_Modal(t *testing.T) {
	lines := []line{
		{fontSize: 10}, {fontSize: 10}, {fontSize: 10}, {fontSize: 18},
	}
	if got := bodyFontSize(lines); got != 10 {
		t.Errorf("body size = %v, want 10", got)
	}
}

func TestGroupLines_OrdersTopToBottomLeftToRight(t *testing.T) {
	texts := []ledongthucpdf.Text{
		run("world", 100, 700, 10),
		run("below", 50, 650, 10),
		run("hello", 40, 700, 10),
	}
	lines := groupLines(texts)
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if lines[0].text != "hello world" {
		t.Errorf("first line = %q", lines[0].text)
	}
	if lines[1].text != "below" {
		t.Errorf("second line = %q", lines[1].text)
	}
}
