// Package embed provides the Embedder collaborator used by semantic search
// and indexing: a deterministic offline embedder, the Ollama HTTP embedder,
// and an LRU cache decorator.
package embed

import (
	"context"
	"math"
	"time"
)

const (
	// DefaultBatchSize is the number of chunk texts per embedding request.
	DefaultBatchSize = 32

	// MaxBatchSize caps configured batch sizes.
	MaxBatchSize = 256

	// DefaultTimeout bounds a single embedding request.
	DefaultTimeout = 60 * time.Second

	DefaultMaxRetries = 3

	// StaticDimensions is the vector size of StaticEmbedder.
	StaticDimensions = 256
)

// Embedder turns query and chunk text into vectors. Implementations return
// unit-length vectors, or a zero vector for blank text, so cosine distance
// is meaningful across queries and chunks.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per text, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	Dimensions() int

	// ModelName identifies the model; vectors from different models must
	// not share an index.
	ModelName() string

	// Available reports whether Embed can currently succeed.
	Available(ctx context.Context) bool

	Close() error
}

// l2Norm returns the Euclidean length of v.
func l2Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// normalizeVector returns v scaled to unit length. A zero vector is
// returned unchanged.
func normalizeVector(v []float32) []float32 {
	norm := l2Norm(v)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
