// Package server is the HTTP edge in front of the agent core: a chat
// endpoint streaming agent events as SSE, an ingestion endpoint, and a
// tag-filtered vector search endpoint. Auth translation, rate limiting and
// CORS live in front of this process; identity arrives as a user id header
// set by the SSO proxy.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/nexuscore/agentcore/internal/agent"
	"github.com/nexuscore/agentcore/internal/observability"
	"github.com/nexuscore/agentcore/internal/rag/index"
	"github.com/nexuscore/agentcore/internal/rag/store"
	"github.com/nexuscore/agentcore/pkg/models"
	"go.opentelemetry.io/otel/trace"
)

// userIDHeader carries the authenticated user id, stamped by the SSO
// proxy after cookie validation.
const userIDHeader = "X-User-ID"

// Server wires the HTTP edge to the agent runtime and ingestion pipeline.
type Server struct {
	Runtime  *agent.Runtime
	Provider agent.LLMProvider
	Pipeline *index.Pipeline
	Store    store.VectorStore

	// EmbeddingModel is the model used to embed search queries.
	EmbeddingModel string

	Metrics *observability.Metrics
	Tracer  *observability.Tracer
	Logger  *slog.Logger
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", s.instrument("/api/chat", s.handleChat))
	mux.HandleFunc("POST /api/ingest", s.instrument("/api/ingest", s.handleIngest))
	mux.HandleFunc("POST /api/search", s.instrument("/api/search", s.handleSearch))
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	return mux
}

// instrument wraps a handler with metrics and a server span.
func (s *Server) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		if s.Tracer != nil {
			var span trace.Span
			ctx, span = s.Tracer.TraceHTTPRequest(ctx, r.Method, route)
			defer span.End()
		}

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(recorder, r.WithContext(ctx))

		if s.Metrics != nil {
			s.Metrics.RecordHTTPRequest(r.Method, route, strconv.Itoa(recorder.status), time.Since(start).Seconds())
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush forwards to the wrapped writer so SSE keeps streaming through the
// instrumentation layer.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

type chatRequest struct {
	Messages    []models.ChatMessage `json:"messages"`
	EnableTools *bool                `json:"enable_tools,omitempty"`
}

// handleChat runs one agent turn and streams its events as SSE. The
// agent loop produces into a bounded channel; this handler drains it, so
// client disconnect cancels the loop at its next emit.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Messages) == 0 {
		http.Error(w, "messages are required", http.StatusBadRequest)
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	enableTools := true
	if req.EnableTools != nil {
		enableTools = *req.EnableTools
	}

	events := make(chan models.Event, 64)
	go func() {
		defer close(events)
		start := time.Now()
		result, err := s.Runtime.Process(ctx, req.Messages, agent.NewBlockingChanSink(events), enableTools)
		status := "success"
		iterations := 0
		if result != nil {
			status = result.StoppedAt
			iterations = result.Iterations
		}
		if err != nil {
			s.logger().Error("agent run failed", "error", err, "duration", time.Since(start))
		}
		if s.Metrics != nil {
			s.Metrics.RecordAgentRun(status, iterations)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := sse.WriteEvent(string(event.Kind), event); err != nil {
				// Client went away; the deferred cancel stops the loop at
				// its next emit.
				return
			}
		}
	}
}

type ingestRequest struct {
	Path       string            `json:"path"`
	Recursive  bool              `json:"recursive,omitempty"`
	FromWeb    bool              `json:"from_web,omitempty"`
	Collection string            `json:"collection,omitempty"`
	Tags       map[string]string `json:"tags,omitempty"`
}

// handleIngest runs one ingestion pass synchronously and returns the
// report.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Path == "" {
		http.Error(w, "path is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if s.Tracer != nil {
		var span trace.Span
		ctx, span = s.Tracer.TraceIngestion(ctx, req.Path)
		defer span.End()
	}

	report, err := s.Pipeline.Ingest(ctx, index.Request{
		Path:       req.Path,
		Recursive:  req.Recursive,
		FromWeb:    req.FromWeb,
		UserID:     r.Header.Get(userIDHeader),
		Tags:       req.Tags,
		Collection: req.Collection,
	})
	if s.Metrics != nil && report != nil {
		status := "success"
		switch {
		case report.Failed > 0 && report.Succeeded == 0:
			status = "error"
		case report.Failed > 0:
			status = "partial"
		}
		s.Metrics.RecordIngestionRun(status, report.TotalItems, report.ChunksIndexed)
	}
	if err != nil && (report == nil || report.TotalItems == 0) {
		http.Error(w, fmt.Sprintf("ingestion failed: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

type searchRequest struct {
	Query      string            `json:"query"`
	TopK       int               `json:"top_k,omitempty"`
	Collection string            `json:"collection,omitempty"`
	Tags       map[string]string `json:"tags,omitempty"`
}

// handleSearch embeds the query and runs a tag-filtered vector search.
// The caller's user id is always ANDed into the filter so one user never
// reads another's documents.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}
	if req.TopK <= 0 {
		req.TopK = 10
	}

	ctx := r.Context()
	embedding, err := s.Provider.Embed(ctx, s.EmbeddingModel, req.Query)
	if err != nil {
		s.logger().Error("query embedding failed", "error", err)
		http.Error(w, "embedding failed", http.StatusBadGateway)
		return
	}

	tags := make(map[string]string, len(req.Tags)+1)
	for k, v := range req.Tags {
		tags[k] = v
	}
	if userID := r.Header.Get(userIDHeader); userID != "" {
		tags["user_id"] = userID
	}

	results, err := s.Store.Search(ctx, embedding, req.TopK, req.Collection, tags)
	if err != nil {
		s.logger().Error("vector search failed", "error", err)
		http.Error(w, "search failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"results": results})
}

// handleHealthz is the liveness probe.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
