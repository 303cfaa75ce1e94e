package index

import (
	"context"
	"log/slog"
	"time"
)

// RunStatus classifies the outcome of a single ingestion run.
type RunStatus string

const (
	RunSucceeded RunStatus = "success"
	RunPartial   RunStatus = "partial"
	RunFailed    RunStatus = "error"
)

// RunSummary is handed to the Recorder once an ingestion run finishes,
// independent of the IngestionReport returned to the caller, so storage
// concerns never leak into the pipeline's own result type.
type RunSummary struct {
	TotalItems int
	Succeeded  int
	Failed     int
	Chunks     int
	Status     RunStatus
	StartedAt  time.Time
	FinishedAt time.Time
	Errors     []string
}

// DocumentRecord describes one successfully ingested item, keyed by the
// path hash under which the persistence collaborator upserts a document
// row (user_id + path_hash is the natural key).
type DocumentRecord struct {
	PathHash   string
	URI        string
	Path       string
	MimeType   string
	Bytes      int64
	Source     string
	Tags       map[string]string
	Collection string
}

// Recorder is the persistence collaborator C9 reports to after a
// successful upsert. The pipeline itself keeps no long-lived state;
// callers that don't need persistence can pass NoopRecorder{}.
type Recorder interface {
	RecordRun(ctx context.Context, summary RunSummary) error
	RecordDocument(ctx context.Context, doc DocumentRecord) error
}

// NoopRecorder discards every record. It is the default Recorder for
// callers that only want the in-process IngestionReport.
type NoopRecorder struct{}

func (NoopRecorder) RecordRun(ctx context.Context, summary RunSummary) error      { return nil }
func (NoopRecorder) RecordDocument(ctx context.Context, doc DocumentRecord) error { return nil }

// LoggingRecorder logs run and document records at Info level instead of
// persisting them, useful for CLI invocations with no storage backend.
type LoggingRecorder struct {
	Logger *slog.Logger
}

func (r LoggingRecorder) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

func (r LoggingRecorder) RecordRun(ctx context.Context, summary RunSummary) error {
	r.logger().Info("ingestion run finished",
		"status", summary.Status,
		"total_items", summary.TotalItems,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"chunks", summary.Chunks,
		"duration", summary.FinishedAt.Sub(summary.StartedAt))
	return nil
}

func (r LoggingRecorder) RecordDocument(ctx context.Context, doc DocumentRecord) error {
	r.logger().Info("document ingested",
		"path_hash", doc.PathHash,
		"uri", doc.URI,
		"mime", doc.MimeType,
		"source", doc.Source,
		"collection", doc.Collection)
	return nil
}

var (
	_ Recorder = NoopRecorder{}
	_ Recorder = LoggingRecorder{}
)
