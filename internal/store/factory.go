package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// VectorBackend names a vector index implementation.
type VectorBackend string

const (
	// VectorBackendHNSW is the in-process coder/hnsw graph persisted to the
	// data directory (default).
	VectorBackendHNSW VectorBackend = "hnsw"

	// VectorBackendQdrant is a remote Qdrant collection.
	VectorBackendQdrant VectorBackend = "qdrant"
)

// KeywordBackend names a keyword index implementation.
type KeywordBackend string

const (
	// KeywordBackendSQLite is SQLite FTS5 in the data directory (default).
	KeywordBackendSQLite KeywordBackend = "sqlite"

	// KeywordBackendPostgres is PostgreSQL full-text search.
	KeywordBackendPostgres KeywordBackend = "postgres"
)

// VectorStore is a vector index that can also be written to.
type VectorStore interface {
	VectorIndex
	VectorWriter
}

// KeywordStore is a keyword index that also stores and resolves records.
type KeywordStore interface {
	KeywordIndex
	KeywordWriter
	RecordStore
}

// VectorOptions selects and configures the vector backend.
type VectorOptions struct {
	Backend string

	// DataDir holds the HNSW files. Empty means in-memory.
	DataDir string

	HNSW   VectorStoreConfig
	Qdrant QdrantConfig
}

// KeywordOptions selects and configures the keyword backend.
type KeywordOptions struct {
	Backend string

	// DataDir holds the SQLite database. Empty means in-memory.
	DataDir string

	// DSN is the PostgreSQL connection string.
	DSN string
}

// HNSWPath returns the HNSW graph file under dataDir.
func HNSWPath(dataDir string) string {
	return filepath.Join(dataDir, "vectors.hnsw")
}

// KeywordDBPath returns the SQLite keyword database under dataDir.
func KeywordDBPath(dataDir string) string {
	return filepath.Join(dataDir, "keyword.db")
}

// NewVectorStore opens the configured vector backend. An existing HNSW
// index in DataDir is loaded; otherwise an empty one is created.
func NewVectorStore(opts VectorOptions) (VectorStore, error) {
	switch VectorBackend(opts.Backend) {
	case VectorBackendHNSW, "":
		if opts.DataDir != "" && fileExists(HNSWPath(opts.DataDir)) {
			idx, err := LoadHNSWIndex(HNSWPath(opts.DataDir))
			if err != nil {
				return nil, fmt.Errorf("load hnsw index: %w", err)
			}
			if idx.config.Dimensions != opts.HNSW.Dimensions && opts.HNSW.Dimensions > 0 {
				_ = idx.Close()
				return nil, ErrDimensionMismatch{Expected: opts.HNSW.Dimensions, Got: idx.config.Dimensions}
			}
			return idx, nil
		}
		idx, err := NewHNSWIndex(opts.HNSW)
		if err != nil {
			return nil, err
		}
		return idx, nil

	case VectorBackendQdrant:
		cfg := opts.Qdrant
		if cfg.Dimensions == 0 {
			cfg.Dimensions = opts.HNSW.Dimensions
		}
		idx, err := NewQdrantIndex(cfg)
		if err != nil {
			return nil, err
		}
		return idx, nil

	default:
		return nil, fmt.Errorf("unknown vector backend: %s (valid options: hnsw, qdrant)", opts.Backend)
	}
}

// NewKeywordStore opens the configured keyword backend.
func NewKeywordStore(ctx context.Context, opts KeywordOptions) (KeywordStore, error) {
	switch KeywordBackend(opts.Backend) {
	case KeywordBackendSQLite, "":
		var path string
		if opts.DataDir != "" {
			path = KeywordDBPath(opts.DataDir)
		}
		idx, err := NewSQLiteKeywordIndex(path)
		if err != nil {
			return nil, err
		}
		return idx, nil

	case KeywordBackendPostgres:
		if opts.DSN == "" {
			return nil, fmt.Errorf("postgres keyword backend requires a dsn")
		}
		db, err := OpenPostgres(ctx, opts.DSN)
		if err != nil {
			return nil, err
		}
		idx := NewPostgresKeywordIndex(db)
		if err := idx.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return idx, nil

	default:
		return nil, fmt.Errorf("unknown keyword backend: %s (valid options: sqlite, postgres)", opts.Backend)
	}
}

// fileExists checks if a file exists at the given path.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
