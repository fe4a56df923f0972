package embed

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStatic(t *testing.T) *StaticEmbedder {
	t.Helper()
	e := NewStaticEmbedder()
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// ============================================================================
// Vector Shape
// ============================================================================

func TestStaticEmbedder_Embed_Shape(t *testing.T) {
	embedder := newStatic(t)

	tests := []struct {
		name     string
		input    string
		wantNorm float64
	}{
		{"sentence is unit length", "Convocatoria de ayudas a la vivienda", 1},
		{"empty is zero", "", 0},
		{"whitespace is zero", "   \t\n  ", 0},
		{"long text", strings.Repeat("boletín oficial provincial ", 2000), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			embedding, err := embedder.Embed(context.Background(), tt.input)

			require.NoError(t, err)
			assert.Len(t, embedding, StaticDimensions)
			assert.InDelta(t, tt.wantNorm, l2Norm(embedding), 0.001)
		})
	}
}

// ============================================================================
// Determinism and Folding
// ============================================================================

func TestStaticEmbedder_Embed_Equivalence(t *testing.T) {
	// Given: two separate instances, so no state is shared
	first, second := newStatic(t), newStatic(t)

	tests := []struct {
		name string
		a, b string
		same bool
	}{
		{"same text across instances", "Resolución de la Dirección General de Vivienda", "Resolución de la Dirección General de Vivienda", true},
		{"accents and case fold", "Gobierno de Aragón", "GOBIERNO DE ARAGON", true},
		{"different topics differ", "subvenciones agrarias", "oposiciones policía local", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// When: each instance embeds one side
			a, err := first.Embed(context.Background(), tt.a)
			require.NoError(t, err)
			b, err := second.Embed(context.Background(), tt.b)
			require.NoError(t, err)

			// Then: the vectors match exactly or not at all
			if tt.same {
				assert.Equal(t, a, b)
			} else {
				assert.NotEqual(t, a, b)
			}
		})
	}
}

// ============================================================================
// Similarity
// ============================================================================

func TestStaticEmbedder_SimilarText_HasHigherSimilarity(t *testing.T) {
	// Given: two housing-aid texts and one unrelated text
	embedder := newStatic(t)

	housing := "ayudas para el alquiler de vivienda"
	housing2 := "convocatoria de ayudas al alquiler de viviendas"
	jobs := "oferta de empleo público en la administración"

	// When: I compute embeddings
	a, _ := embedder.Embed(context.Background(), housing)
	b, _ := embedder.Embed(context.Background(), housing2)
	c, _ := embedder.Embed(context.Background(), jobs)

	// Then: the housing pair is closer
	assert.Greater(t, cosine(a, b), cosine(a, c))
}

// ============================================================================
// Batch and Lifecycle
// ============================================================================

func TestStaticEmbedder_EmbedBatch_HandlesEmptyStringsInBatch(t *testing.T) {
	embedder := newStatic(t)

	embeddings, err := embedder.EmbedBatch(context.Background(), []string{"vivienda", "", "empleo"})

	require.NoError(t, err)
	require.Len(t, embeddings, 3)
	assert.InDelta(t, 0.0, l2Norm(embeddings[1]), 1e-9)
	assert.InDelta(t, 1.0, l2Norm(embeddings[2]), 0.001)

	empty, err := embedder.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStaticEmbedder_Embed_CanceledContext(t *testing.T) {
	embedder := newStatic(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := embedder.Embed(ctx, "vivienda")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStaticEmbedder_Close(t *testing.T) {
	embedder := NewStaticEmbedder()
	assert.True(t, embedder.Available(context.Background()))
	assert.Equal(t, "static", embedder.ModelName())
	assert.Equal(t, StaticDimensions, embedder.Dimensions())

	require.NoError(t, embedder.Close())
	require.NoError(t, embedder.Close())

	assert.False(t, embedder.Available(context.Background()))
	_, err := embedder.Embed(context.Background(), "vivienda")
	assert.Error(t, err)
}

func TestExtractNgrams_CountsRunes(t *testing.T) {
	assert.Equal(t, []string{"ara", "rag", "ago", "gon"}, extractNgrams("aragon", 3))
	assert.Equal(t, []string{"año"}, extractNgrams("año", 3))
	assert.Empty(t, extractNgrams("no", 3))
}

func TestForEachFeature_TokensThenTrigrams(t *testing.T) {
	var features []string
	var weights []float32

	forEachFeature("Aragón BOE", func(f string, w float32) {
		features = append(features, f)
		weights = append(weights, w)
	})

	assert.Equal(t, []string{"aragon", "boe", "ara", "rag", "ago", "gon", "boe"}, features)
	assert.Equal(t, []float32{tokenWeight, tokenWeight, ngramWeight, ngramWeight, ngramWeight, ngramWeight, ngramWeight}, weights)
}
