package pdf

import (
	"sort"
	"strings"

	ledongthucpdf "github.com/ledongthuc/pdf"

	"github.com/nexuscore/agentcore/internal/rag/parser"
)

const (
	// lineYTolerance groups text runs whose baselines differ by less than
	// this many points onto one visual line.
	lineYTolerance = 2.0

	// headingSizeRatio marks a line as a heading when its dominant font
	// size exceeds the page's body size by this factor.
	headingSizeRatio = 1.15

	// headingMaxWords keeps long large-print passages (pull quotes, cover
	// pages) from being misread as headings.
	headingMaxWords = 12

	// paragraphGapRatio starts a new paragraph when the vertical gap to
	// the previous line exceeds this multiple of the body font size.
	paragraphGapRatio = 1.6
)

// line is one visual line of a page: its baseline and the text runs on it
// in reading order.
type line struct {
	y        float64
	fontSize float64
	text     string
}

// extractStructured rebuilds headings and paragraphs from a page's raw
// content-stream text runs. Runs carry position and font size but no
// logical structure, so structure is recovered geometrically: runs group
// into lines by baseline, lines into paragraphs by vertical gap, and a
// line set well above the body font size becomes a heading.
func extractStructured(texts []ledongthucpdf.Text, page int) []parser.RawChunk {
	lines := groupLines(texts)
	if len(lines) == 0 {
		return nil
	}

	body := bodyFontSize(lines)

	var chunks []parser.RawChunk
	var para strings.Builder
	flush := func() {
		if text := strings.TrimSpace(para.String()); text != "" {
			chunks = append(chunks, parser.RawChunk{Kind: parser.KindText, Text: text, Page: page})
		}
		para.Reset()
	}

	prevY := lines[0].y
	for i, ln := range lines {
		if isHeading(ln, body) {
			flush()
			chunks = append(chunks, parser.RawChunk{Kind: parser.KindHeading, Text: ln.text, Page: page})
			prevY = ln.y
			continue
		}

		if i > 0 && prevY-ln.y > body*paragraphGapRatio {
			flush()
		}
		if para.Len() > 0 {
			para.WriteString(" ")
		}
		para.WriteString(ln.text)
		prevY = ln.y
	}
	flush()

	return chunks
}

// groupLines buckets text runs by baseline and orders them top-to-bottom,
// left-to-right. PDF coordinates put the origin at the bottom-left, so
// reading order is descending Y.
func groupLines(texts []ledongthucpdf.Text) []line {
	runs := make([]ledongthucpdf.Text, 0, len(texts))
	for _, t := range texts {
		if strings.TrimSpace(t.S) != "" {
			runs = append(runs, t)
		}
	}
	if len(runs) == 0 {
		return nil
	}

	sort.SliceStable(runs, func(i, j int) bool {
		if diff := runs[i].Y - runs[j].Y; diff > lineYTolerance || diff < -lineYTolerance {
			return runs[i].Y > runs[j].Y
		}
		return runs[i].X < runs[j].X
	})

	var lines []line
	var current []ledongthucpdf.Text
	for _, run := range runs {
		if len(current) > 0 && current[0].Y-run.Y > lineYTolerance {
			lines = append(lines, buildLine(current))
			current = current[:0]
		}
		current = append(current, run)
	}
	lines = append(lines, buildLine(current))
	return lines
}

func buildLine(runs []ledongthucpdf.Text) line {
	var b strings.Builder
	maxSize := 0.0
	for i, run := range runs {
		piece := strings.TrimSpace(run.S)
		if piece == "" {
			continue
		}
		if i > 0 && b.Len() > 0 && needsSpace(runs[i-1], run) {
			b.WriteString(" ")
		}
		b.WriteString(piece)
		if run.FontSize > maxSize {
			maxSize = run.FontSize
		}
	}
	return line{y: runs[0].Y, fontSize: maxSize, text: b.String()}
}

// needsSpace reports whether two adjacent runs on a line are separated by
// enough horizontal distance to be distinct words. Content streams often
// emit one run per glyph cluster with no explicit spaces.
func needsSpace(prev, next ledongthucpdf.Text) bool {
	gap := next.X - (prev.X + prev.W)
	return gap > prev.FontSize*0.15
}

// bodyFontSize returns the dominant (modal) font size across the page's
// lines — the size body text is set in.
func bodyFontSize(lines []line) float64 {
	counts := map[float64]int{}
	for _, ln := range lines {
		counts[ln.fontSize]++
	}
	best, bestCount := 0.0, 0
	for size, count := range counts {
		if count > bestCount || (count == bestCount && size < best) {
			best, bestCount = size, count
		}
	}
	if best <= 0 {
		best = 12
	}
	return best
}

func isHeading(ln line, body float64) bool {
	if ln.fontSize <= body*headingSizeRatio {
		return false
	}
	return len(strings.Fields(ln.text)) <= headingMaxWords
}
