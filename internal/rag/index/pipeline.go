// Package index implements C9, the ingestion pipeline: it enumerates an
// ingest_path request into items, fans them out under a bounded
// concurrency limit through the parser set (C5), the chunker (C6), the
// embedder (C7) and the vector store (C8), and records a deterministic
// report plus a persistence summary.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nexuscore/agentcore/internal/rag/chunker"
	"github.com/nexuscore/agentcore/internal/rag/embedder"
	"github.com/nexuscore/agentcore/internal/rag/parser"
	"github.com/nexuscore/agentcore/internal/rag/store"
	"github.com/nexuscore/agentcore/internal/tools/browser"
	"github.com/nexuscore/agentcore/pkg/models"
)

const maxConcurrencyCeiling = 18

// Request describes one ingestion call.
type Request struct {
	Path      string // local path or URL
	Recursive bool
	FromWeb   bool
	UserID    string
	Tags      map[string]string
	Collection string
}

// Pipeline wires the parser registry, chunker, embedder and vector store
// together behind the single ingest_path entry point.
type Pipeline struct {
	Parsers     *parser.Registry
	Chunker     *chunker.Chunker
	Embedder    *embedder.Embedder
	Store       store.VectorStore
	Recorder    Recorder
	BrowserPool *browser.Pool
	Concurrency int
	UploadRoot  string
	Logger      *slog.Logger
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p *Pipeline) concurrency() int {
	limit := p.Concurrency
	if limit <= 0 {
		limit = 8
	}
	if cpu := runtime.NumCPU(); limit > cpu {
		limit = cpu
	}
	if limit > maxConcurrencyCeiling {
		limit = maxConcurrencyCeiling
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

// itemOutcome is one enumerated item's processing result, collected in
// completion order and re-sorted by index before upsert so output stays
// deterministic.
type itemOutcome struct {
	item   sourceItem
	chunks []models.DocChunk
	points []store.UpsertPoint
	err    error
}

// Ingest runs ingest_path end to end: enumerate, bounded fan-out through
// parse/chunk/embed, a single batched upsert, and a persistence summary.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (*models.IngestionReport, error) {
	started := time.Now()
	report := &models.IngestionReport{StartedAt: started}

	items, tempDir, err := p.enumerate(ctx, req)
	if tempDir != "" {
		defer os.RemoveAll(tempDir)
	}
	if err != nil {
		report.FinishedAt = time.Now()
		report.Errors = append(report.Errors, models.IngestionError{Error: err.Error()})
		p.recordRun(ctx, RunSummary{
			TotalItems: 0, Failed: 1, Status: RunFailed,
			StartedAt: started, FinishedAt: report.FinishedAt,
			Errors: []string{err.Error()},
		})
		return report, err
	}

	report.TotalItems = len(items)
	outcomes := p.processAll(ctx, items, req)

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].item.Index < outcomes[j].item.Index })

	var allPoints []store.UpsertPoint
	var runErrors []string
	for _, oc := range outcomes {
		if oc.err != nil {
			report.Failed++
			report.Errors = append(report.Errors, models.IngestionError{
				Item: models.IngestionItem{
					Index: oc.item.Index, URI: oc.item.URI, MimeType: oc.item.MimeType, Size: oc.item.Size,
				},
				Error: oc.err.Error(),
			})
			runErrors = append(runErrors, oc.err.Error())
			continue
		}
		report.Succeeded++
		report.ChunksIndexed += len(oc.chunks)
		allPoints = append(allPoints, oc.points...)
	}

	if len(allPoints) > 0 {
		collection := req.Collection
		if err := p.Store.EnsureCollection(ctx, collection); err != nil {
			return report, fmt.Errorf("ensure collection: %w", err)
		}
		if _, err := p.Store.UpsertChunks(ctx, allPoints, collection); err != nil {
			return report, fmt.Errorf("upsert chunks: %w", err)
		}
	}

	report.FinishedAt = time.Now()

	status := RunSucceeded
	if report.Failed > 0 && report.Succeeded > 0 {
		status = RunPartial
	} else if report.Failed > 0 && report.Succeeded == 0 {
		status = RunFailed
	}
	p.recordRun(ctx, RunSummary{
		TotalItems: report.TotalItems, Succeeded: report.Succeeded, Failed: report.Failed,
		Chunks: report.ChunksIndexed, Status: status,
		StartedAt: started, FinishedAt: report.FinishedAt, Errors: runErrors,
	})
	for _, oc := range outcomes {
		if oc.err != nil {
			continue
		}
		_ = p.Recorder.RecordDocument(ctx, DocumentRecord{
			PathHash: hashURI(oc.item.URI), URI: oc.item.URI, Path: oc.item.Path,
			MimeType: oc.item.MimeType, Bytes: oc.item.Size, Source: oc.item.Source,
			Tags: req.Tags, Collection: req.Collection,
		})
	}

	return report, nil
}

func (p *Pipeline) recordRun(ctx context.Context, summary RunSummary) {
	if err := p.Recorder.RecordRun(ctx, summary); err != nil {
		p.logger().Warn("failed to record ingestion run", "error", err)
	}
}

// enumerate expands req.Path into local sourceItems, fetching it with the
// headless browser pool first when it names a URL.
func (p *Pipeline) enumerate(ctx context.Context, req Request) ([]sourceItem, string, error) {
	if looksLikeURL(req.Path) || req.FromWeb {
		tempDir, err := os.MkdirTemp(p.UploadRoot, "nexus-ingest-*")
		if err != nil {
			return nil, "", fmt.Errorf("create temp dir: %w", err)
		}
		items, err := enumerateURL(ctx, p.BrowserPool, req.Path, tempDir)
		if err != nil {
			return nil, tempDir, fmt.Errorf("enumerate url %s: %w", req.Path, err)
		}
		for i := range items {
			items[i].Index = i
		}
		return items, tempDir, nil
	}

	items, err := enumerateLocal(req.Path, req.Recursive)
	if err != nil {
		return nil, "", fmt.Errorf("enumerate path %s: %w", req.Path, err)
	}
	for i := range items {
		items[i].Index = i
	}
	return items, "", nil
}

func looksLikeURL(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}

// processAll fans items out under a semaphore bounding concurrency to
// min(configured, CPU count, 18), collecting outcomes in
// completion order (the caller re-sorts by index).
func (p *Pipeline) processAll(ctx context.Context, items []sourceItem, req Request) []itemOutcome {
	sem := make(chan struct{}, p.concurrency())
	outcomes := make([]itemOutcome, len(items))

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(idx int, it sourceItem) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				outcomes[idx] = itemOutcome{item: it, err: ctx.Err()}
				return
			}
			outcomes[idx] = p.processItem(ctx, it, req)
		}(i, item)
	}
	wg.Wait()
	return outcomes
}

// processItem runs one item through parse -> chunk -> embed and builds its
// vector-store points, but does not upsert (the caller batches all items'
// points into a single call).
func (p *Pipeline) processItem(ctx context.Context, item sourceItem, req Request) itemOutcome {
	override := item.Source
	if req.FromWeb {
		override = "web"
	}
	item.Source = override

	result, err := p.parseItem(ctx, item)
	if err != nil {
		return itemOutcome{item: item, err: fmt.Errorf("parse %s: %w", item.URI, err)}
	}

	meta := chunker.ItemMeta{
		URI: item.URI, PathHash: hashURI(item.URI), Source: item.Source,
		MimeType: item.MimeType, UserID: req.UserID,
	}

	var chunks []models.DocChunk
	switch item.Source {
	case "audio", "video":
		chunks = p.Chunker.ChunkMedia(meta, result.Chunks)
	default:
		chunks = p.Chunker.ChunkDocument(meta, result)
	}

	if len(chunks) == 0 {
		return itemOutcome{item: item}
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := p.Embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return itemOutcome{item: item, err: fmt.Errorf("embed %s: %w", item.URI, err)}
	}

	points := make([]store.UpsertPoint, len(chunks))
	for i, c := range chunks {
		payload := chunkPayload(c, item, req)
		tags := mergeTags(req.Tags, chunkTags(c))
		points[i] = store.UpsertPoint{
			ID:        uuid.NewString(),
			Text:      c.Text,
			Embedding: vectors[i],
			Payload:   chunker.PrunePayload(payload),
			Tags:      tags,
		}
	}

	return itemOutcome{item: item, chunks: chunks, points: points}
}

// parseItem resolves and runs the parser for item, falling back to the
// plain-text/whole-file decoder when the primary parser yields nothing
// (the fallback chain collapsed to the two steps this pipeline's
// registered parsers support: a format-specific structured extractor,
// then whole-file text decode).
func (p *Pipeline) parseItem(ctx context.Context, item sourceItem) (*parser.ParseResult, error) {
	f, err := os.Open(item.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ext := filepath.Ext(item.Path)
	result, err := p.Parsers.Parse(ctx, f, item.MimeType, ext, filepath.Base(item.Path))
	if err == nil && len(result.Chunks) > 0 {
		return result, nil
	}
	if err != nil {
		p.logger().Warn("primary parser failed, falling back to text decode", "uri", item.URI, "error", err)
	}

	// A PDF with no extractable text is a scanned document; OCR its
	// rasterized pages before giving up on structure entirely.
	if item.MimeType == "application/pdf" {
		if ocrResult, ocrErr := ocrScannedPDF(ctx, item.Path); ocrErr == nil && len(ocrResult.Chunks) > 0 {
			return ocrResult, nil
		} else if ocrErr != nil {
			p.logger().Warn("scanned-pdf ocr unavailable", "uri", item.URI, "error", ocrErr)
		}
	}

	if _, seekErr := f.Seek(0, 0); seekErr != nil {
		return nil, fmt.Errorf("rewind %s: %w", item.Path, seekErr)
	}
	fallback, ok := p.Parsers.GetByType("text/plain")
	if !ok {
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return fallback.Parse(ctx, f, filepath.Base(item.Path))
}

func hashURI(uri string) string {
	sum := sha256.Sum256([]byte(uri))
	return hex.EncodeToString(sum[:])
}

func chunkPayload(c models.DocChunk, item sourceItem, req Request) map[string]any {
	payload := map[string]any{
		"id":         c.ChunkID,
		"chunk_id":   c.ChunkID,
		"uri":        c.URI,
		"path_hash":  c.PathHash,
		"source":     c.Source,
		"mime":       c.MimeType,
		"text":       c.Text,
		"created_at": time.Now().UTC().Format(time.RFC3339),
	}
	if c.UserID != "" {
		payload["user_id"] = c.UserID
	}
	for k, v := range c.Extra {
		payload[k] = v
	}
	if len(c.Artifacts) > 0 {
		payload["artifacts_sample"] = c.Artifacts
	}
	return payload
}

func chunkTags(c models.DocChunk) map[string]string {
	if c.UserID == "" {
		return nil
	}
	return map[string]string{"user_id": c.UserID}
}

func mergeTags(supplied map[string]string, fromChunk map[string]string) map[string]string {
	if len(supplied) == 0 && len(fromChunk) == 0 {
		return nil
	}
	merged := make(map[string]string, len(supplied)+len(fromChunk))
	for k, v := range supplied {
		merged[k] = v
	}
	for k, v := range fromChunk {
		merged[k] = v
	}
	return merged
}
