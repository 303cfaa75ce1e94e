// Package pgvector implements the C8 vector-store adapter against
// PostgreSQL with the pgvector extension.
package pgvector

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/nexuscore/agentcore/internal/rag/store"
	"github.com/nexuscore/agentcore/pkg/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store implements store.VectorStore against a pgvector-enabled Postgres.
type Store struct {
	db        *sql.DB
	dimension int
	ownsDB    bool
	defaultColl string

	mu        sync.Mutex
	collCache map[string]bool
}

// Config contains configuration for the pgvector store.
type Config struct {
	// DSN is the PostgreSQL connection string. If empty, DB must be provided.
	DSN string

	// DB is an existing connection to reuse; when set, DSN is ignored and
	// the store will not close it.
	DB *sql.DB

	// Dimension is the embedding dimension every point must match. A
	// mismatch is a fatal startup error, not a soft warning.
	Dimension int

	// RunMigrations controls whether migrations run on startup.
	RunMigrations bool

	// DefaultCollection names the collection used when callers omit one.
	DefaultCollection string
}

var _ store.VectorStore = (*Store)(nil)

// New creates a new pgvector store.
func New(cfg Config) (*Store, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("pgvector: embedding dimension must be configured")
	}

	var db *sql.DB
	var ownsDB bool
	var err error

	switch {
	case cfg.DB != nil:
		db = cfg.DB
	case cfg.DSN != "":
		db, err = sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		ownsDB = true

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
	default:
		return nil, fmt.Errorf("pgvector: either DSN or DB must be provided")
	}

	defaultColl := strings.TrimSpace(cfg.DefaultCollection)
	if defaultColl == "" {
		defaultColl = "documents"
	}

	s := &Store{
		db:          db,
		dimension:   cfg.Dimension,
		ownsDB:      ownsDB,
		defaultColl: defaultColl,
		collCache:   make(map[string]bool),
	}

	if cfg.RunMigrations {
		if err := s.runMigrations(context.Background()); err != nil {
			if ownsDB {
				db.Close()
			}
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	return s, nil
}

func (s *Store) resolveCollection(name string) string {
	if strings.TrimSpace(name) == "" {
		return s.defaultColl
	}
	return name
}

// EnsureCollection creates the named collection if missing. Existence is
// cached best-effort per process so repeated calls short-circuit without a
// round trip.
func (s *Store) EnsureCollection(ctx context.Context, name string) error {
	name = s.resolveCollection(name)

	s.mu.Lock()
	cached := s.collCache[name]
	s.mu.Unlock()
	if cached {
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rag_collections (name, dimension, distance)
		VALUES ($1, $2, 'cosine')
		ON CONFLICT (name) DO NOTHING
	`, name, s.dimension)
	if err != nil {
		return fmt.Errorf("ensure collection %q: %w", name, err)
	}

	s.mu.Lock()
	s.collCache[name] = true
	s.mu.Unlock()
	return nil
}

// UpsertChunks writes points into collection, synthesizing an id for any
// point that omits one, and returns the number written.
func (s *Store) UpsertChunks(ctx context.Context, points []store.UpsertPoint, collection string) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}
	collection = s.resolveCollection(collection)
	if err := s.EnsureCollection(ctx, collection); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO rag_points (id, collection, embedding, payload, tags, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			collection = EXCLUDED.collection,
			embedding  = EXCLUDED.embedding,
			payload    = EXCLUDED.payload,
			tags       = EXCLUDED.tags
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	written := 0
	for i, p := range points {
		if err := s.validateEmbedding(p.Embedding); err != nil {
			return written, fmt.Errorf("validate embedding for point %d: %w", i, err)
		}

		id := strings.TrimSpace(p.ID)
		if id == "" {
			id = uuid.NewString()
		}

		payload := map[string]any{"text": p.Text}
		for k, v := range p.Payload {
			payload[k] = v
		}
		payloadJSON, err := json.Marshal(payload)
		if err != nil {
			return written, fmt.Errorf("marshal payload for point %d: %w", i, err)
		}
		tagsJSON, err := json.Marshal(nonNilTags(p.Tags))
		if err != nil {
			return written, fmt.Errorf("marshal tags for point %d: %w", i, err)
		}

		if _, err := stmt.ExecContext(ctx, id, collection, encodeEmbedding(p.Embedding), string(payloadJSON), string(tagsJSON), time.Now()); err != nil {
			return written, fmt.Errorf("upsert point %d: %w", i, err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit upsert: %w", err)
	}
	return written, nil
}

// Search returns the top_k nearest points to queryEmbedding in collection.
// When tags is non-empty, only points whose tags contain every supplied
// key/value pair are considered (logical AND via JSONB containment).
func (s *Store) Search(ctx context.Context, queryEmbedding []float32, topK int, collection string, tags map[string]string) ([]models.SearchResult, error) {
	if err := s.validateEmbedding(queryEmbedding); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 10
	}
	collection = s.resolveCollection(collection)

	query := `
		SELECT id, embedding, payload, tags, 1 - (embedding <=> $1::vector) AS score
		FROM rag_points
		WHERE collection = $2
	`
	args := []any{encodeEmbedding(queryEmbedding), collection}

	if len(tags) > 0 {
		tagsJSON, err := json.Marshal(nonNilTags(tags))
		if err != nil {
			return nil, fmt.Errorf("marshal tag filter: %w", err)
		}
		query += fmt.Sprintf(" AND tags @> $%d::jsonb", len(args)+1)
		args = append(args, string(tagsJSON))
	}

	query += " ORDER BY embedding <=> $1::vector ASC"
	query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
	args = append(args, topK)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()

	var results []models.SearchResult
	for rows.Next() {
		var id, embeddingStr, payloadJSON, tagsOut string
		var score float64
		if err := rows.Scan(&id, &embeddingStr, &payloadJSON, &tagsOut, &score); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}

		var payload map[string]any
		if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		var pointTags map[string]string
		if err := json.Unmarshal([]byte(tagsOut), &pointTags); err != nil {
			return nil, fmt.Errorf("unmarshal tags: %w", err)
		}

		results = append(results, models.SearchResult{
			Point: models.Point{
				ID:      id,
				Vector:  decodeEmbedding(embeddingStr),
				Payload: payload,
				Tags:    pointTags,
			},
			Score: float32(score),
		})
	}
	return results, rows.Err()
}

// ListCollections returns the names of all known collections.
func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM rag_collections ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Close releases resources held by the store.
func (s *Store) Close() error {
	if s.ownsDB && s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) validateEmbedding(embedding []float32) error {
	if len(embedding) == 0 {
		return fmt.Errorf("embedding is empty")
	}
	if len(embedding) != s.dimension {
		return fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(embedding), s.dimension)
	}
	for _, v := range embedding {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("embedding contains invalid values")
		}
	}
	return nil
}

func nonNilTags(tags map[string]string) map[string]string {
	if tags == nil {
		return map[string]string{}
	}
	return tags
}

func encodeEmbedding(embedding []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range embedding {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%g", f)
	}
	sb.WriteByte(']')
	return sb.String()
}

func decodeEmbedding(s string) []float32 {
	s = strings.TrimPrefix(strings.TrimSuffix(s, "]"), "[")
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	embedding := make([]float32, len(parts))
	for i, p := range parts {
		var f float64
		fmt.Sscanf(strings.TrimSpace(p), "%f", &f)
		embedding[i] = float32(f)
	}
	return embedding
}

// runMigrations applies pending embedded migrations inside the
// rag_schema_migrations bookkeeping table.
func (s *Store) runMigrations(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS rag_schema_migrations (
			id TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("create rag_schema_migrations: %w", err)
	}

	migrations, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.ID] {
			continue
		}
		if strings.TrimSpace(m.UpSQL) == "" {
			return fmt.Errorf("missing up migration for %s", m.ID)
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", m.ID, err)
		}
		if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", m.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO rag_schema_migrations (id) VALUES ($1)`, m.ID); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", m.ID, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", m.ID, err)
		}
	}
	return nil
}

func (s *Store) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM rag_schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query rag_schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan rag_schema_migrations: %w", err)
		}
		applied[id] = true
	}
	return applied, rows.Err()
}

// Migration is one embedded up/down migration pair.
type Migration struct {
	ID      string
	UpSQL   string
	DownSQL string
}

func loadMigrations() ([]Migration, error) {
	paths, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	entries := map[string]*Migration{}
	for _, path := range paths {
		base := strings.TrimPrefix(path, "migrations/")
		var suffix string
		switch {
		case strings.HasSuffix(base, ".up.sql"):
			suffix = ".up.sql"
		case strings.HasSuffix(base, ".down.sql"):
			suffix = ".down.sql"
		default:
			continue
		}
		id := strings.TrimSuffix(base, suffix)
		entry := entries[id]
		if entry == nil {
			entry = &Migration{ID: id}
			entries[id] = entry
		}
		data, err := migrationsFS.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", path, err)
		}
		if suffix == ".up.sql" {
			entry.UpSQL = string(data)
		} else {
			entry.DownSQL = string(data)
		}
	}

	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	migrations := make([]Migration, 0, len(ids))
	for _, id := range ids {
		migrations = append(migrations, *entries[id])
	}
	return migrations, nil
}
