package models

import "time"

// DocChunk is a window of extracted text (or a time-windowed media segment)
// produced by the chunker ahead of embedding, carrying enough provenance to
// reconstruct where it came from in its source document.
type DocChunk struct {
	ChunkID    string         `json:"chunk_id"`
	URI        string         `json:"uri"`
	PathHash   string         `json:"path_hash"`
	Source     string         `json:"source"`
	MimeType   string         `json:"mime"`
	UserID     string         `json:"user_id,omitempty"`
	Text       string         `json:"text"`
	TokenStart int            `json:"token_start"`
	TokenEnd   int            `json:"token_end"`
	TimeStart  *time.Duration `json:"time_start,omitempty"`
	TimeEnd    *time.Duration `json:"time_end,omitempty"`
	Artifacts  []Artifact     `json:"artifacts,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// ArtifactKind classifies an embedded artifact found while parsing a
// document (a table, an image, or a chart render).
type ArtifactKind string

const (
	ArtifactTable ArtifactKind = "table"
	ArtifactImage ArtifactKind = "image"
	ArtifactChart ArtifactKind = "chart"
)

// Artifact describes a structured or visual element extracted alongside the
// surrounding text of a chunk. Artifacts are metadata only — the agent core
// does not own artifact storage; Ref points back at where the bytes live.
type Artifact struct {
	Kind        ArtifactKind `json:"kind"`
	Description string       `json:"description,omitempty"`

	// Hash is a content hash (sha256 hex) of the artifact's bytes or
	// serialized grid, used for deduplication across chunk windows.
	Hash string `json:"hash"`

	// Grid is a table artifact's serialized rows.
	Grid [][]string `json:"grid,omitempty"`

	// Width/Height are an image artifact's pixel dimensions.
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`

	// Ref locates the artifact's source (a filename, URI or page anchor).
	Ref string `json:"ref,omitempty"`

	// OCRText is the text recognized inside an image artifact, distinct
	// from Description (the caption).
	OCRText string `json:"ocr_text,omitempty"`
}

// IngestionItem is one unit of work discovered while enumerating an
// ingest_path request: a single file, page, or fetched URL.
type IngestionItem struct {
	Index    int    `json:"index"`
	URI      string `json:"uri"`
	PathHash string `json:"path_hash"`
	MimeType string `json:"mime"`
	Size     int64  `json:"size,omitempty"`
}

// IngestionReport summarizes the outcome of an ingestion run across all
// enumerated items.
type IngestionReport struct {
	TotalItems     int              `json:"total_items"`
	Succeeded      int              `json:"succeeded"`
	Failed         int              `json:"failed"`
	ChunksIndexed  int              `json:"chunks_indexed"`
	Errors         []IngestionError `json:"errors,omitempty"`
	StartedAt      time.Time        `json:"started_at"`
	FinishedAt     time.Time        `json:"finished_at"`
}

// IngestionError records why a single item failed ingestion without
// aborting the rest of the run.
type IngestionError struct {
	Item  IngestionItem `json:"item"`
	Error string        `json:"error"`
}

// Point is a vector-store record: an embedding plus the payload it was
// derived from and the ACL tags used to filter search.
type Point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
	Tags    map[string]string `json:"tags,omitempty"`
}

// SearchResult is one hit returned from a vector-store search.
type SearchResult struct {
	Point Point   `json:"point"`
	Score float32 `json:"score"`
}
