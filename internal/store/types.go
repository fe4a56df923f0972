// Package store provides the index backends queried by retrieval: vector
// indexes (in-process HNSW, Qdrant) and keyword indexes (SQLite FTS5,
// PostgreSQL full-text). Each backend translates its native score into
// [0,1] through a documented monotonic NormalizeScore.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Aman-CERP/bulletinsearch/internal/chunk"
	"github.com/Aman-CERP/bulletinsearch/internal/filter"
)

// ErrIndexClosed is returned by operations on a closed backend.
var ErrIndexClosed = errors.New("index is closed")

// RankedHit is one row of a backend's ranked result list.
// RawScore is backend-native and not comparable across backends.
type RankedHit struct {
	ChunkID  string
	RawScore float64
	// Rank is the 1-based position in the backend's native ordering.
	Rank int
	// MatchedTerms holds the normalized query terms (keyword backends only).
	MatchedTerms []string
}

// VectorIndex is a semantic nearest-neighbor backend.
type VectorIndex interface {
	// Search returns at most topK hits most similar to query that satisfy
	// pred, highest similarity first.
	Search(ctx context.Context, query []float32, pred filter.VectorPredicate, topK int) ([]*RankedHit, error)

	// Capabilities describes the predicate algebra this backend accepts.
	Capabilities() filter.VectorCapabilities

	// NormalizeScore maps a RawScore into [0,1], monotonically.
	NormalizeScore(raw float64) float64

	// Name identifies the backend in logs and diagnostics.
	Name() string

	Close() error
}

// KeywordIndex is a ranked full-text backend.
type KeywordIndex interface {
	// Search tokenizes query itself and returns at most topK hits that
	// satisfy pred, highest relevance first.
	Search(ctx context.Context, query string, pred filter.KeywordPredicate, topK int) ([]*RankedHit, error)

	// Capabilities describes the SQL dialect and entity support.
	Capabilities() filter.KeywordCapabilities

	// NormalizeScore maps a RawScore into [0,1], monotonically.
	NormalizeScore(raw float64) float64

	// Name identifies the backend in logs and diagnostics.
	Name() string

	Close() error
}

// RecordStore resolves chunk ids to their text and metadata.
type RecordStore interface {
	// GetChunks returns the records found, keyed by chunk id.
	// Missing ids are absent from the map, not an error.
	GetChunks(ctx context.Context, ids []string) (map[string]*chunk.ChunkRecord, error)
}

// VectorWriter stores embeddings for chunk records.
type VectorWriter interface {
	Upsert(ctx context.Context, records []*chunk.ChunkRecord, vectors [][]float32) error
}

// KeywordWriter stores chunk records for full-text search and lookup.
type KeywordWriter interface {
	Upsert(ctx context.Context, records []*chunk.ChunkRecord) error
}

// Persister is implemented by backends that keep state in local files.
type Persister interface {
	Save(path string) error
}

// VectorStoreConfig configures vector backends.
type VectorStoreConfig struct {
	// Dimensions is the embedding dimension.
	Dimensions int

	// Metric is the distance metric: "cos" (default) or "l2".
	Metric string

	// M is the HNSW graph degree.
	M int

	// EfSearch is the HNSW search width.
	EfSearch int

	// Oversample multiplies topK for filtered HNSW searches.
	Oversample int
}

// DefaultVectorStoreConfig returns defaults for the given dimensions.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions: dimensions,
		Metric:     "cos",
		M:          16,
		EfSearch:   64,
		Oversample: 4,
	}
}

// ErrDimensionMismatch is returned when a vector does not match the
// configured dimensions.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
