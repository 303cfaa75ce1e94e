// Package chunker turns a parser's raw extracted fragments into
// token-bounded DocChunks ready for embedding, in the two modes the
// ingestion pipeline needs: a time-windowed pass over media transcripts and
// a token-windowed pass over everything else.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/nexuscore/agentcore/internal/rag/parser"
	"github.com/nexuscore/agentcore/pkg/models"
)

// tokenPattern is the whitespace-preserving tokenizer shared by both modes:
// a word, a single punctuation rune, or a run of whitespace, each kept as
// its own token so the original text reconstructs losslessly by joining.
var tokenPattern = regexp.MustCompile(`\w+|[^\w\s]|\s+`)

func tokenize(text string) []string {
	if text == "" {
		return nil
	}
	return tokenPattern.FindAllString(text, -1)
}

// Config controls the sliding window shared by both chunking modes.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
}

// DefaultConfig returns a reasonable default window.
func DefaultConfig() Config {
	return Config{ChunkSize: 256, ChunkOverlap: 32}
}

func (c Config) sanitized() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 256
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = c.ChunkSize / 8
	}
	return c
}

func (c Config) step() int {
	step := c.ChunkSize - c.ChunkOverlap
	if step <= 0 {
		step = c.ChunkSize
	}
	return step
}

// ItemMeta carries the per-item provenance fields stamped onto every chunk
// built from one ingestion item.
type ItemMeta struct {
	URI      string
	PathHash string
	Source   string
	MimeType string
	UserID   string
}

// Chunker builds DocChunks from parser output.
type Chunker struct {
	cfg Config
}

// New creates a chunker bound to cfg, filling in defaults for zero values.
func New(cfg Config) *Chunker {
	return &Chunker{cfg: cfg.sanitized()}
}

// ChunkMedia implements the media-mode pass: each
// paragraph-level raw chunk is tokenized and slid over independently, so a
// window never spans two paragraphs. Each resulting chunk's start/end are
// interpolated proportionally from the paragraph's own time range.
func (c *Chunker) ChunkMedia(meta ItemMeta, raws []parser.RawChunk) []models.DocChunk {
	var out []models.DocChunk
	step := c.cfg.step()
	segIndex := 0

	for _, raw := range raws {
		tokens := tokenize(raw.Text)
		if len(tokens) == 0 {
			continue
		}

		for start := 0; start < len(tokens); start += step {
			end := start + c.cfg.ChunkSize
			if end > len(tokens) {
				end = len(tokens)
			}

			chunk := models.DocChunk{
				ChunkID:    fmt.Sprintf("%s:%d", meta.PathHash, segIndex),
				URI:        meta.URI,
				PathHash:   meta.PathHash,
				Source:     meta.Source,
				MimeType:   meta.MimeType,
				UserID:     meta.UserID,
				Text:       strings.Join(tokens[start:end], ""),
				TokenStart: start,
				TokenEnd:   end,
				Extra:      map[string]any{"segment_index": segIndex},
			}

			if raw.TimeStart != nil && raw.TimeEnd != nil {
				span := *raw.TimeEnd - *raw.TimeStart
				s := *raw.TimeStart + span*time.Duration(start)/time.Duration(len(tokens))
				e := *raw.TimeStart + span*time.Duration(end)/time.Duration(len(tokens))
				chunk.TimeStart, chunk.TimeEnd = &s, &e
				chunk.Extra["start_time"] = formatHMS(s)
				chunk.Extra["end_time"] = formatHMS(e)
			}

			out = append(out, chunk)
			segIndex++
			if end == len(tokens) {
				break
			}
		}
	}
	return out
}

// rawToken is one tokenized unit of the document-mode concatenated stream,
// tagged with the index of the raw chunk it came from (the token_sources
// provenance map, inverted for convenience).
type rawToken struct {
	text   string
	source int
}

func buildTokenStream(chunks []parser.RawChunk) []rawToken {
	var stream []rawToken
	for i, raw := range chunks {
		if strings.TrimSpace(raw.Text) == "" {
			continue
		}
		if len(stream) > 0 {
			stream = append(stream, rawToken{text: "\n\n", source: i})
		}
		for _, tok := range tokenize(raw.Text) {
			stream = append(stream, rawToken{text: tok, source: i})
		}
	}
	return stream
}

// segment records which page and raw-chunk kind contributed which token
// range of a document-mode chunk's window.
type segment struct {
	Page  int    `json:"page"`
	Kind  string `json:"kind"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// ChunkDocument implements the document-mode pass: all raw
// chunks are concatenated into one token stream separated by paragraph
// breaks, then slid over as a whole; per window, contributing raw chunks
// are recovered from token provenance to emit per-page segments and
// classified, deduplicated artifacts.
func (c *Chunker) ChunkDocument(meta ItemMeta, result *parser.ParseResult) []models.DocChunk {
	if result == nil || len(result.Chunks) == 0 {
		return nil
	}
	stream := buildTokenStream(result.Chunks)
	if len(stream) == 0 {
		return nil
	}

	step := c.cfg.step()
	var out []models.DocChunk
	idx := 0

	for start := 0; start < len(stream); start += step {
		end := start + c.cfg.ChunkSize
		if end > len(stream) {
			end = len(stream)
		}
		window := stream[start:end]

		var text strings.Builder
		for _, tok := range window {
			text.WriteString(tok.text)
		}

		segments, artifacts := collectSegmentsAndArtifacts(result.Chunks, window, start)

		chunk := models.DocChunk{
			ChunkID:    fmt.Sprintf("%s:%d", meta.PathHash, idx),
			URI:        meta.URI,
			PathHash:   meta.PathHash,
			Source:     meta.Source,
			MimeType:   meta.MimeType,
			UserID:     meta.UserID,
			Text:       renderOutput(text.String(), segments, artifacts),
			TokenStart: start,
			TokenEnd:   end,
			Artifacts:  artifacts,
			Extra: map[string]any{
				"pages":    pagesFromSegments(segments),
				"segments": segments,
			},
		}
		out = append(out, chunk)
		idx++
		if end == len(stream) {
			break
		}
	}
	return out
}

func collectSegmentsAndArtifacts(raws []parser.RawChunk, window []rawToken, windowStart int) ([]segment, []models.Artifact) {
	contributors := map[int]struct{}{}
	for _, tok := range window {
		contributors[tok.source] = struct{}{}
	}
	order := make([]int, 0, len(contributors))
	for i := range contributors {
		order = append(order, i)
	}
	sort.Ints(order)

	seenArtifacts := map[string]struct{}{}
	var segments []segment
	var artifacts []models.Artifact

	for _, i := range order {
		raw := raws[i]
		first, last := -1, -1
		for pos, tok := range window {
			if tok.source != i {
				continue
			}
			if first == -1 {
				first = pos
			}
			last = pos
		}
		if first == -1 {
			continue
		}

		segments = append(segments, segment{
			Page:  raw.Page,
			Kind:  string(raw.Kind),
			Start: windowStart + first,
			End:   windowStart + last + 1,
		})

		if art := classifyArtifact(raw); art != nil {
			key := artifactDedupeKey(raw, *art)
			if _, ok := seenArtifacts[key]; !ok {
				seenArtifacts[key] = struct{}{}
				artifacts = append(artifacts, *art)
			}
		}
	}
	return segments, artifacts
}

var chartKeywords = []string{"chart", "graph", "plot", "diagram"}

// classifyArtifact returns the artifact carried by raw, reclassified as a
// chart when its caption or text contains chart-shaped keywords regardless
// of the kind its parser assigned.
func classifyArtifact(raw parser.RawChunk) *models.Artifact {
	if raw.Artifact == nil {
		return nil
	}
	art := *raw.Artifact
	haystack := strings.ToLower(art.Description + " " + raw.Text)
	for _, kw := range chartKeywords {
		if strings.Contains(haystack, kw) {
			art.Kind = models.ArtifactChart
			break
		}
	}
	return &art
}

func artifactDedupeKey(raw parser.RawChunk, art models.Artifact) string {
	switch art.Kind {
	case models.ArtifactTable:
		return fmt.Sprintf("table:%s:%d", hashText(raw.Text), raw.Page)
	case models.ArtifactChart:
		if art.Hash != "" {
			return "chart:" + art.Hash
		}
		return fmt.Sprintf("chart:%d:%s", raw.Page, art.Description)
	default:
		if art.Hash != "" {
			return fmt.Sprintf("image:%s:%d", art.Hash, raw.Page)
		}
		return fmt.Sprintf("image:%s:%d", art.Ref, raw.Page)
	}
}

func hashText(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}

// renderOutput picks markdown or json output and renders the chunk body
// accordingly: markdown whenever there is text, json when the window is
// all tables/charts.
func renderOutput(text string, segments []segment, artifacts []models.Artifact) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" && hasTablesOrCharts(artifacts) {
		return renderJSON(segments, artifacts)
	}
	return renderMarkdown(trimmed, artifacts)
}

func renderMarkdown(text string, artifacts []models.Artifact) string {
	var b strings.Builder
	b.WriteString(text)

	if tables := filterArtifacts(artifacts, models.ArtifactTable); len(tables) > 0 {
		b.WriteString("\n\n## Embedded Tables\n")
		for _, t := range tables {
			b.WriteString("\n")
			if t.Description != "" {
				fmt.Fprintf(&b, "%s\n\n", t.Description)
			}
			b.WriteString(renderGrid(t))
		}
	}
	if images := filterArtifacts(artifacts, models.ArtifactImage); len(images) > 0 {
		b.WriteString("\n\n## Embedded Images\n")
		for _, img := range images {
			ref := img.Ref
			if ref == "" {
				ref = "artifact:" + img.Hash
			}
			fmt.Fprintf(&b, "\n![%s](%s)\n", img.Description, ref)
			if img.Width > 0 && img.Height > 0 {
				fmt.Fprintf(&b, "> %dx%d px\n", img.Width, img.Height)
			}
			fmt.Fprintf(&b, "> hash=%s\n", img.Hash)
			if img.OCRText != "" {
				fmt.Fprintf(&b, "> ocr: %s\n", img.OCRText)
			}
		}
	}
	if charts := filterArtifacts(artifacts, models.ArtifactChart); len(charts) > 0 {
		b.WriteString("\n\n## Embedded Charts\n")
		for _, ch := range charts {
			data, _ := json.Marshal(ch)
			fmt.Fprintf(&b, "\n```json\n%s\n```\n", data)
		}
	}
	return b.String()
}

// renderGrid emits a table artifact's grid as a well-formed markdown
// table: first row as header, a separator row, then the data rows. An
// artifact without a grid degrades to a one-cell table naming it.
func renderGrid(t models.Artifact) string {
	if len(t.Grid) == 0 {
		return fmt.Sprintf("| %s |\n|---|\n", escapeCell(t.Description))
	}

	cols := 0
	for _, row := range t.Grid {
		if len(row) > cols {
			cols = len(row)
		}
	}

	var b strings.Builder
	writeRow := func(row []string) {
		b.WriteString("|")
		for i := 0; i < cols; i++ {
			cell := ""
			if i < len(row) {
				cell = escapeCell(row[i])
			}
			b.WriteString(" " + cell + " |")
		}
		b.WriteString("\n")
	}

	writeRow(t.Grid[0])
	b.WriteString("|")
	for i := 0; i < cols; i++ {
		b.WriteString("---|")
	}
	b.WriteString("\n")
	for _, row := range t.Grid[1:] {
		writeRow(row)
	}
	return b.String()
}

func escapeCell(cell string) string {
	cell = strings.ReplaceAll(cell, "|", `\|`)
	return strings.ReplaceAll(cell, "\n", " ")
}

func renderJSON(segments []segment, artifacts []models.Artifact) string {
	payload := map[string]any{"pages": pagesFromSegments(segments)}
	if tables := filterArtifacts(artifacts, models.ArtifactTable); len(tables) > 0 {
		payload["tables"] = tables
	}
	if charts := filterArtifacts(artifacts, models.ArtifactChart); len(charts) > 0 {
		payload["charts"] = charts
	}
	if images := filterArtifacts(artifacts, models.ArtifactImage); len(images) > 0 {
		payload["images"] = images
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func filterArtifacts(artifacts []models.Artifact, kind models.ArtifactKind) []models.Artifact {
	var out []models.Artifact
	for _, a := range artifacts {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

func hasTablesOrCharts(artifacts []models.Artifact) bool {
	for _, a := range artifacts {
		if a.Kind == models.ArtifactTable || a.Kind == models.ArtifactChart {
			return true
		}
	}
	return false
}

func pagesFromSegments(segments []segment) []int {
	seen := map[int]struct{}{}
	var pages []int
	for _, s := range segments {
		if s.Page == 0 {
			continue
		}
		if _, ok := seen[s.Page]; !ok {
			seen[s.Page] = struct{}{}
			pages = append(pages, s.Page)
		}
	}
	sort.Ints(pages)
	return pages
}

func formatHMS(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// essentialPayloadKeys are never dropped by PrunePayload regardless of size
// budget.
var essentialPayloadKeys = map[string]struct{}{
	"uri": {}, "path_hash": {}, "chunk_id": {}, "source": {}, "mime": {}, "user_id": {},
}

// maxPayloadBytes is the approximate JSON-encoded size budget for point
// payloads handed to the vector store.
const maxPayloadBytes = 6000

// truncatableListKeys are the list-valued payload fields truncated to 3
// items before any key is dropped outright.
var truncatableListKeys = []string{"pages", "tables", "images", "charts", "artifacts_sample"}

// PrunePayload bounds the approximate byte size of a point payload: first
// truncating large list fields to 3 items, then dropping non-essential keys
// in ascending size order, until the payload fits the budget or only
// essential keys remain. payload is mutated in place and returned.
func PrunePayload(payload map[string]any) map[string]any {
	if approxSize(payload) <= maxPayloadBytes {
		return payload
	}

	for _, key := range truncatableListKeys {
		truncateList(payload, key, 3)
	}
	if approxSize(payload) <= maxPayloadBytes {
		return payload
	}

	type candidate struct {
		key  string
		size int
	}
	var candidates []candidate
	for k, v := range payload {
		if _, essential := essentialPayloadKeys[k]; essential {
			continue
		}
		candidates = append(candidates, candidate{k, approxFieldSize(k, v)})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].size < candidates[j].size })

	for _, c := range candidates {
		delete(payload, c.key)
		if approxSize(payload) <= maxPayloadBytes {
			break
		}
	}
	return payload
}

func truncateList(payload map[string]any, key string, limit int) {
	v, ok := payload[key]
	if !ok {
		return
	}
	switch list := v.(type) {
	case []any:
		if len(list) > limit {
			payload[key] = list[:limit]
		}
	case []models.Artifact:
		if len(list) > limit {
			payload[key] = list[:limit]
		}
	case []int:
		if len(list) > limit {
			payload[key] = list[:limit]
		}
	}
}

func approxSize(payload map[string]any) int {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0
	}
	return len(data)
}

func approxFieldSize(key string, value any) int {
	data, err := json.Marshal(map[string]any{key: value})
	if err != nil {
		return 0
	}
	return len(data)
}
