package pgvector

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/nexuscore/agentcore/internal/rag/store"
)

func setupMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Store{db: db, dimension: 3, defaultColl: "documents", collCache: map[string]bool{}}, mock
}

func TestStore_EnsureCollection_CachesAfterFirstCall(t *testing.T) {
	s, mock := setupMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO rag_collections")).
		WithArgs("documents", 3).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.EnsureCollection(context.Background(), ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Second call must not hit the database again.
	if err := s.EnsureCollection(context.Background(), "documents"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStore_UpsertChunks_RejectsDimensionMismatch(t *testing.T) {
	s, mock := setupMockStore(t)
	s.collCache["documents"] = true

	mock.ExpectBegin()
	mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO rag_points"))
	mock.ExpectRollback()

	_, err := s.UpsertChunks(context.Background(), []store.UpsertPoint{
		{Text: "hello", Embedding: []float32{0.1, 0.2}},
	}, "")
	if err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestStore_UpsertChunks_SynthesizesMissingID(t *testing.T) {
	s, mock := setupMockStore(t)
	s.collCache["documents"] = true

	mock.ExpectBegin()
	mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO rag_points"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO rag_points")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := s.UpsertChunks(context.Background(), []store.UpsertPoint{
		{Text: "hello", Embedding: []float32{0.1, 0.2, 0.3}},
	}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 point written, got %d", n)
	}
}

func TestStore_Search_RejectsEmptyEmbedding(t *testing.T) {
	s, _ := setupMockStore(t)
	if _, err := s.Search(context.Background(), nil, 5, "", nil); err == nil {
		t.Fatal("expected error for empty query embedding")
	}
}

func TestEncodeDecodeEmbedding_RoundTrips(t *testing.T) {
	original := []float32{0.5, -1.25, 3}
	decoded := decodeEmbedding(encodeEmbedding(original))
	if len(decoded) != len(original) {
		t.Fatalf("expected %d values, got %d", len(original), len(decoded))
	}
	for i := range original {
		if decoded[i] != original[i] {
			t.Fatalf("value %d: expected %v, got %v", i, original[i], decoded[i])
		}
	}
}

func TestStore_Close_OnlyClosesOwnedConnections(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	s := &Store{db: db, ownsDB: false}
	if err := s.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Connection should still be usable since ownsDB was false.
	if err := db.PingContext(context.Background()); err != nil && err != sql.ErrConnDone {
		t.Fatalf("expected connection to remain open, got: %v", err)
	}
}
