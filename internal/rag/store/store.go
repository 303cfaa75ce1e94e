// Package store defines the C8 vector-store adapter contract: collection
// lifecycle, point upsert, and tag-filtered similarity search. Concrete
// backends (pgvector, ...) live in sub-packages.
package store

import (
	"context"

	"github.com/nexuscore/agentcore/pkg/models"
)

// UpsertPoint is one point submitted to UpsertChunks; Embedding and
// Payload/Tags are assembled by the ingestion pipeline from a DocChunk and
// its chunk metadata. ID is synthesized by the
// store when empty.
type UpsertPoint struct {
	ID        string
	Text      string
	Embedding []float32
	Payload   map[string]any
	Tags      map[string]string
}

// VectorStore is the C8 contract: an external vector database, encapsulated
// behind collection lifecycle, upsert, and tag-filtered search operations.
// The store is the trust boundary for per-user isolation — when callers
// attach a user_id or other access tags, the store applies them as
// server-side filters rather than trusting the caller to pre-filter.
type VectorStore interface {
	// EnsureCollection creates the named collection if it doesn't already
	// exist, sized to the store's configured embedding dimension with
	// cosine distance. An empty name resolves to the store's default
	// collection.
	EnsureCollection(ctx context.Context, name string) error

	// UpsertChunks writes points into collection (or the default
	// collection when empty) and returns the number written.
	UpsertChunks(ctx context.Context, points []UpsertPoint, collection string) (int, error)

	// Search returns the top_k nearest points to queryEmbedding in
	// collection (or the default collection when empty). When tags is
	// non-empty, only points whose tags match every entry (logical AND)
	// are considered.
	Search(ctx context.Context, queryEmbedding []float32, topK int, collection string, tags map[string]string) ([]models.SearchResult, error)

	// ListCollections returns the names of all known collections.
	ListCollections(ctx context.Context) ([]string, error)

	// Close releases resources held by the store.
	Close() error
}
