package embed

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync/atomic"

	"github.com/Aman-CERP/bulletinsearch/internal/store"
)

// Feature weights of the static embedder. Whole tokens dominate; character
// trigrams keep inflected forms ("convocatoria", "convocatorias") close.
const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

var errEmbedderClosed = errors.New("embedder is closed")

// StaticEmbedder hashes tokens and trigrams into a fixed-size vector. It
// needs no model or network and is deterministic, at the cost of semantic
// quality. Text goes through the keyword index tokenizer, so "Aragón" and
// "aragon" embed identically.
type StaticEmbedder struct {
	closed atomic.Bool
}

var _ Embedder = (*StaticEmbedder)(nil)

func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{}
}

// Embed returns the zero vector for blank text.
func (e *StaticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.closed.Load() {
		return nil, errEmbedderClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := make([]float32, StaticDimensions)
	if strings.TrimSpace(text) == "" {
		return v, nil
	}
	forEachFeature(text, func(feature string, weight float32) {
		v[bucket(feature)] += weight
	})
	return normalizeVector(v), nil
}

// forEachFeature calls fn for every token, then for every trigram of
// every token.
func forEachFeature(text string, fn func(feature string, weight float32)) {
	tokens := store.Tokenize(text)
	for _, tok := range tokens {
		fn(tok, tokenWeight)
	}
	for _, tok := range tokens {
		runes := []rune(tok)
		for i := 0; i+ngramSize <= len(runes); i++ {
			fn(string(runes[i:i+ngramSize]), ngramWeight)
		}
	}
}

// bucket maps a feature to a vector position with FNV-64.
func bucket(feature string) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(feature))
	return int(h.Sum64() % StaticDimensions)
}

func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (e *StaticEmbedder) Dimensions() int { return StaticDimensions }

func (e *StaticEmbedder) ModelName() string { return "static" }

// Available is true until Close.
func (e *StaticEmbedder) Available(context.Context) bool { return !e.closed.Load() }

func (e *StaticEmbedder) Close() error {
	e.closed.Store(true)
	return nil
}
