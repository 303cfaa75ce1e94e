package index

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/nexuscore/agentcore/internal/agent"
	"github.com/nexuscore/agentcore/internal/rag/chunker"
	"github.com/nexuscore/agentcore/internal/rag/embedder"
	"github.com/nexuscore/agentcore/internal/rag/parser"
	markdownparser "github.com/nexuscore/agentcore/internal/rag/parser/markdown"
	textparser "github.com/nexuscore/agentcore/internal/rag/parser/text"
	"github.com/nexuscore/agentcore/internal/rag/store"
	"github.com/nexuscore/agentcore/pkg/models"
)

// vectorProvider returns a fixed embedding for every text.
type vectorProvider struct{}

func (vectorProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	ch := make(chan *agent.CompletionChunk)
	close(ch)
	return ch, nil
}
func (vectorProvider) Name() string                                      { return "vec" }
func (vectorProvider) Models() []agent.Model                             { return nil }
func (vectorProvider) SupportsTools() bool                               { return false }
func (vectorProvider) ModelExists(context.Context, string) (bool, error)  { return true, nil }
func (vectorProvider) EnsureModelAvailable(context.Context, string) error { return nil }
func (vectorProvider) Embed(ctx context.Context, model, text string) ([]float32, error) {
	return []float32{0.5, 0.5}, nil
}

// captureStore records every upsert batch.
type captureStore struct {
	mu      sync.Mutex
	batches [][]store.UpsertPoint
}

func (s *captureStore) EnsureCollection(ctx context.Context, name string) error { return nil }
func (s *captureStore) UpsertChunks(ctx context.Context, points []store.UpsertPoint, collection string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := append([]store.UpsertPoint(nil), points...)
	s.batches = append(s.batches, batch)
	return len(points), nil
}
func (s *captureStore) Search(ctx context.Context, queryEmbedding []float32, topK int, collection string, tags map[string]string) ([]models.SearchResult, error) {
	return nil, nil
}
func (s *captureStore) ListCollections(ctx context.Context) ([]string, error) { return nil, nil }
func (s *captureStore) Close() error                                          { return nil }

func newTestPipeline(t *testing.T) (*Pipeline, *captureStore) {
	t.Helper()

	registry := parser.NewRegistry()
	registry.Register(markdownparser.New())
	text := textparser.New()
	registry.Register(text)
	registry.SetDefault(text)

	cs := &captureStore{}
	return &Pipeline{
		Parsers: registry,
		Chunker: chunker.New(chunker.Config{ChunkSize: 32, ChunkOverlap: 4}),
		Embedder: embedder.New(vectorProvider{}, embedder.Config{
			Model: "m", BatchSize: 4, Concurrency: 2,
		}, nil),
		Store:       cs,
		Recorder:    NoopRecorder{},
		Concurrency: 3,
	}, cs
}

func writeFiles(t *testing.T, names map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestIngest_DirectoryFanOutKeepsOrder(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a.txt": "alpha document with enough words to produce a chunk",
		"b.md":  "# beta\n\nsecond document body",
		"c.txt": "gamma gamma gamma",
	})

	pipeline, cs := newTestPipeline(t)
	report, err := pipeline.Ingest(context.Background(), Request{Path: dir, UserID: "u-1"})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if report.TotalItems != 3 || report.Succeeded != 3 || report.Failed != 0 {
		t.Fatalf("report = %+v", report)
	}
	if len(report.Errors) != 0 {
		t.Fatalf("errors = %v", report.Errors)
	}
	if report.ChunksIndexed == 0 {
		t.Fatal("no chunks produced")
	}

	// All points across items land in one upsert call.
	if len(cs.batches) != 1 {
		t.Fatalf("upsert batches = %d, want 1", len(cs.batches))
	}
	if len(cs.batches[0]) != report.ChunksIndexed {
		t.Fatalf("points = %d, chunks = %d", len(cs.batches[0]), report.ChunksIndexed)
	}

	// Points preserve enumeration order (a before b before c) regardless
	// of completion order.
	var lastIdx int = -1
	order := map[string]int{"a.txt": 0, "b.md": 1, "c.txt": 2}
	for _, p := range cs.batches[0] {
		uri, _ := p.Payload["uri"].(string)
		idx, ok := order[filepath.Base(uri)]
		if !ok {
			t.Fatalf("unexpected uri %q", uri)
		}
		if idx < lastIdx {
			t.Fatalf("points out of enumeration order: %q after index %d", uri, lastIdx)
		}
		lastIdx = idx
	}
}

func TestIngest_PointPayloadCarriesEssentials(t *testing.T) {
	dir := writeFiles(t, map[string]string{"doc.txt": "one small document"})

	pipeline, cs := newTestPipeline(t)
	report, err := pipeline.Ingest(context.Background(), Request{
		Path:   dir,
		UserID: "u-7",
		Tags:   map[string]string{"team": "research"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if report.ChunksIndexed == 0 {
		t.Fatal("no chunks")
	}

	point := cs.batches[0][0]
	for _, key := range []string{"uri", "path_hash", "chunk_id", "source", "mime", "text", "created_at", "user_id"} {
		if _, ok := point.Payload[key]; !ok {
			t.Errorf("payload missing %q: %v", key, point.Payload)
		}
	}
	if point.Payload["source"] != "file" {
		t.Errorf("source = %v", point.Payload["source"])
	}
	if point.Tags["team"] != "research" || point.Tags["user_id"] != "u-7" {
		t.Errorf("tags = %v", point.Tags)
	}
	if point.ID == "" {
		t.Error("point id not synthesized")
	}
}

func TestIngest_SingleFile(t *testing.T) {
	dir := writeFiles(t, map[string]string{"only.txt": "just one file"})

	pipeline, _ := newTestPipeline(t)
	report, err := pipeline.Ingest(context.Background(), Request{Path: filepath.Join(dir, "only.txt")})
	if err != nil {
		t.Fatal(err)
	}
	if report.TotalItems != 1 || report.Succeeded != 1 {
		t.Fatalf("report = %+v", report)
	}
}

func TestIngest_EnumerationFailureAborts(t *testing.T) {
	pipeline, cs := newTestPipeline(t)
	report, err := pipeline.Ingest(context.Background(), Request{Path: "/definitely/not/here"})
	if err == nil {
		t.Fatal("expected enumeration error")
	}
	if len(report.Errors) != 1 {
		t.Fatalf("errors = %v, want exactly the enumeration failure", report.Errors)
	}
	if len(cs.batches) != 0 {
		t.Error("nothing should be upserted on enumeration failure")
	}
}

func TestEnumerateLocal_SortsAndRecurses(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{
		filepath.Join(dir, "z.txt"),
		filepath.Join(dir, "a.txt"),
		filepath.Join(sub, "inner.txt"),
	} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	flat, err := enumerateLocal(dir, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(flat) != 2 {
		t.Fatalf("non-recursive items = %d, want 2", len(flat))
	}
	if filepath.Base(flat[0].Path) != "a.txt" {
		t.Errorf("items not sorted: %v", flat)
	}

	deep, err := enumerateLocal(dir, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(deep) != 3 {
		t.Fatalf("recursive items = %d, want 3", len(deep))
	}
}

func TestSourceFromMime(t *testing.T) {
	cases := map[string]string{
		"audio/mpeg":      "audio",
		"video/mp4":       "video",
		"image/png":       "image",
		"application/pdf": "file",
		"text/plain":      "file",
	}
	for mime, want := range cases {
		if got := sourceFromMime(mime); got != want {
			t.Errorf("sourceFromMime(%q) = %q, want %q", mime, got, want)
		}
	}
}

func TestExtractAssetRefs(t *testing.T) {
	html := `<html><body>
		<img src="/static/logo.png">
		<source src="https://cdn.example.com/video.mp4">
		<link rel="icon" href="/favicon.ico">
		<a href="/not-an-asset">link</a>
	</body></html>`

	refs := extractAssetRefs(html)
	if len(refs) != 3 {
		t.Fatalf("refs = %v, want 3 entries", refs)
	}
}
