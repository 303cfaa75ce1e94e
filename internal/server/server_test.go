package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nexuscore/agentcore/internal/agent"
	"github.com/nexuscore/agentcore/internal/observability"
	"github.com/nexuscore/agentcore/internal/rag/store"
	"github.com/nexuscore/agentcore/pkg/models"
)

// fakeProvider emits a fixed text answer for every completion and a fixed
// vector for every embedding.
type fakeProvider struct {
	text      string
	embedding []float32
}

func (p *fakeProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	ch := make(chan *agent.CompletionChunk, 2)
	ch <- &agent.CompletionChunk{Text: p.text}
	ch <- &agent.CompletionChunk{Done: true}
	close(ch)
	return ch, nil
}

func (p *fakeProvider) Name() string                                     { return "fake" }
func (p *fakeProvider) Models() []agent.Model                            { return nil }
func (p *fakeProvider) SupportsTools() bool                              { return false }
func (p *fakeProvider) ModelExists(context.Context, string) (bool, error) { return true, nil }
func (p *fakeProvider) EnsureModelAvailable(context.Context, string) error { return nil }
func (p *fakeProvider) Embed(ctx context.Context, model, text string) ([]float32, error) {
	return p.embedding, nil
}

// fakeStore records the last search filter.
type fakeStore struct {
	lastTags map[string]string
	lastTopK int
	results  []models.SearchResult
}

func (s *fakeStore) EnsureCollection(ctx context.Context, name string) error { return nil }
func (s *fakeStore) UpsertChunks(ctx context.Context, points []store.UpsertPoint, collection string) (int, error) {
	return len(points), nil
}
func (s *fakeStore) Search(ctx context.Context, queryEmbedding []float32, topK int, collection string, tags map[string]string) ([]models.SearchResult, error) {
	s.lastTags = tags
	s.lastTopK = topK
	return s.results, nil
}
func (s *fakeStore) ListCollections(ctx context.Context) ([]string, error) { return nil, nil }
func (s *fakeStore) Close() error                                          { return nil }

func newTestServer(t *testing.T) (*Server, *fakeStore) {
	t.Helper()
	provider := &fakeProvider{text: "hello there", embedding: []float32{0.1, 0.2}}
	runtime := agent.NewRuntime(provider, agent.NewToolRegistry(), agent.DefaultLoopConfig())

	fs := &fakeStore{}
	return &Server{
		Runtime:        runtime,
		Provider:       provider,
		Store:          fs,
		EmbeddingModel: "embed-model",
		Metrics:        observability.NewMetrics(),
	}, fs
}

func TestHandleChat_StreamsSSE(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"messages":[{"role":"user","content":"hi"}]}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "event: token") {
		t.Error("no token events in stream")
	}
	if !strings.Contains(body, "event: done") {
		t.Error("no done event in stream")
	}
	if strings.Index(body, "event: done") < strings.Index(body, "event: token") {
		t.Error("done event arrived before token events")
	}
	// First event carries the anti-buffering padding comment.
	if !strings.Contains(body, ": "+strings.Repeat(" ", 64)) {
		t.Error("no padding comment on the stream")
	}
	if strings.Count(body, "event: done") != 1 {
		t.Error("expected exactly one done event")
	}
}

func TestHandleChat_RejectsEmpty(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"messages":[]}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleSearch_AlwaysFiltersByUser(t *testing.T) {
	srv, fs := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/search",
		strings.NewReader(`{"query":"quarterly numbers","tags":{"project":"atlas"}}`))
	req.Header.Set(userIDHeader, "u-42")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if fs.lastTags["user_id"] != "u-42" {
		t.Errorf("user filter not applied: %v", fs.lastTags)
	}
	if fs.lastTags["project"] != "atlas" {
		t.Errorf("caller tags dropped: %v", fs.lastTags)
	}
	if fs.lastTopK != 10 {
		t.Errorf("default top_k = %d, want 10", fs.lastTopK)
	}
}

func TestHandleIngest_RequiresPath(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/ingest", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Fatalf("healthz = %d %s", rec.Code, rec.Body.String())
	}
}
