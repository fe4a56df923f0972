package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/bulletinsearch/internal/chunk"
	"github.com/Aman-CERP/bulletinsearch/internal/filter"
)

func rec(id string, m chunk.Metadata) *chunk.ChunkRecord {
	return &chunk.ChunkRecord{ID: id, DocumentID: "doc-" + id, Text: "text " + id, Metadata: m}
}

func newTestHNSW(t *testing.T) *HNSWIndex {
	t.Helper()
	idx, err := NewHNSWIndex(DefaultVectorStoreConfig(4))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestHNSWIndex_UpsertAndSearch(t *testing.T) {
	// Given: vectors a=[1,0,0,0], b=[0,1,0,0], c=[0.9,0.1,0,0]
	idx := newTestHNSW(t)
	records := []*chunk.ChunkRecord{rec("a", chunk.Metadata{}), rec("b", chunk.Metadata{}), rec("c", chunk.Metadata{})}
	vectors := [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}, {0.9, 0.1, 0, 0}}
	require.NoError(t, idx.Upsert(context.Background(), records, vectors))

	// When: searching for [1,0,0,0] with k=2
	hits, err := idx.Search(context.Background(), []float32{1, 0, 0, 0}, filter.VectorPredicate{}, 2)
	require.NoError(t, err)

	// Then: a then c, ranked 1 and 2
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ChunkID)
	assert.Equal(t, 1, hits[0].Rank)
	assert.Equal(t, "c", hits[1].ChunkID)
	assert.Equal(t, 2, hits[1].Rank)
	assert.Greater(t, hits[0].RawScore, 0.99)
	assert.InDelta(t, hits[0].RawScore, idx.NormalizeScore(hits[0].RawScore), 1e-9)
}

func TestHNSWIndex_SearchAppliesPredicate(t *testing.T) {
	// Given: 40 records where only two have topic "vivienda"
	idx := newTestHNSW(t)
	var records []*chunk.ChunkRecord
	var vectors [][]float32
	for i := 0; i < 40; i++ {
		topic := "empleo"
		if i == 17 || i == 33 {
			topic = "vivienda"
		}
		records = append(records, rec(fmt.Sprintf("c%02d", i), chunk.Metadata{Topic: topic, Year: "2025"}))
		vectors = append(vectors, []float32{1, float32(i) / 40, 0.1, 0})
	}
	require.NoError(t, idx.Upsert(context.Background(), records, vectors))

	pred := filter.VectorPredicate{Conditions: []filter.Condition{
		{Field: chunk.FieldTopic, Op: filter.OpEq, Values: []any{"vivienda"}},
	}}

	// When: searching near the first record with the rare predicate
	hits, err := idx.Search(context.Background(), []float32{1, 0, 0.1, 0}, pred, 5)
	require.NoError(t, err)

	// Then: only matching records come back, widening past the oversample window
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.Contains(t, []string{"c17", "c33"}, h.ChunkID)
	}
}

func TestHNSWIndex_UpsertReplacesVectorAndMetadata(t *testing.T) {
	idx := newTestHNSW(t)
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, []*chunk.ChunkRecord{rec("a", chunk.Metadata{Language: "es"})}, [][]float32{{1, 0, 0, 0}}))
	require.NoError(t, idx.Upsert(ctx, []*chunk.ChunkRecord{rec("b", chunk.Metadata{Language: "es"})}, [][]float32{{0, 0, 1, 0}}))

	// When: a is re-upserted with a new vector and language
	require.NoError(t, idx.Upsert(ctx, []*chunk.ChunkRecord{rec("a", chunk.Metadata{Language: "ca"})}, [][]float32{{0, 1, 0, 0}}))

	// Then: count is unchanged and the new metadata is used for filtering
	assert.Equal(t, 2, idx.Count())
	pred := filter.VectorPredicate{Conditions: []filter.Condition{
		{Field: chunk.FieldLanguage, Op: filter.OpEq, Values: []any{"ca"}},
	}}
	hits, err := idx.Search(ctx, []float32{0, 1, 0, 0}, pred, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].ChunkID)
}

func TestHNSWIndex_Delete(t *testing.T) {
	idx := newTestHNSW(t)
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx,
		[]*chunk.ChunkRecord{rec("a", chunk.Metadata{}), rec("b", chunk.Metadata{})},
		[][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}))

	require.NoError(t, idx.Delete(ctx, []string{"a"}))

	hits, err := idx.Search(ctx, []float32{1, 0, 0, 0}, filter.VectorPredicate{}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].ChunkID)
	assert.Equal(t, 1, idx.Count())
}

func TestHNSWIndex_DimensionMismatch(t *testing.T) {
	idx := newTestHNSW(t)

	err := idx.Upsert(context.Background(), []*chunk.ChunkRecord{rec("a", chunk.Metadata{})}, [][]float32{{1, 0}})
	var dm ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 4, dm.Expected)

	_, err = idx.Search(context.Background(), []float32{1}, filter.VectorPredicate{}, 1)
	assert.ErrorAs(t, err, &dm)
}

func TestHNSWIndex_EmptyAndClosed(t *testing.T) {
	idx, err := NewHNSWIndex(DefaultVectorStoreConfig(4))
	require.NoError(t, err)

	hits, err := idx.Search(context.Background(), []float32{1, 0, 0, 0}, filter.VectorPredicate{}, 3)
	require.NoError(t, err)
	assert.Empty(t, hits)

	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close())
	_, err = idx.Search(context.Background(), []float32{1, 0, 0, 0}, filter.VectorPredicate{}, 3)
	assert.ErrorIs(t, err, ErrIndexClosed)
}

func TestHNSWIndex_CanceledContext(t *testing.T) {
	idx := newTestHNSW(t)
	require.NoError(t, idx.Upsert(context.Background(), []*chunk.ChunkRecord{rec("a", chunk.Metadata{})}, [][]float32{{1, 0, 0, 0}}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := idx.Search(ctx, []float32{1, 0, 0, 0}, filter.VectorPredicate{}, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHNSWIndex_SaveAndLoad(t *testing.T) {
	// Given: a populated index saved to disk
	idx := newTestHNSW(t)
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx,
		[]*chunk.ChunkRecord{rec("a", chunk.Metadata{Year: "2025"}), rec("b", chunk.Metadata{Year: "2024"})},
		[][]float32{{1, 0, 0, 0}, {0.9, 0.2, 0, 0}}))
	path := filepath.Join(t.TempDir(), "vectors.hnsw")
	require.NoError(t, idx.Save(path))

	// When: loading it back
	loaded, err := LoadHNSWIndex(path)
	require.NoError(t, err)
	defer loaded.Close()

	// Then: vectors and metadata survive
	assert.Equal(t, 2, loaded.Count())
	pred := filter.VectorPredicate{Conditions: []filter.Condition{
		{Field: chunk.FieldYear, Op: filter.OpEq, Values: []any{"2024"}},
	}}
	hits, err := loaded.Search(ctx, []float32{1, 0, 0, 0}, pred, 2)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].ChunkID)
}

func TestNewHNSWIndex_RejectsZeroDimensions(t *testing.T) {
	_, err := NewHNSWIndex(VectorStoreConfig{})
	assert.Error(t, err)
}
