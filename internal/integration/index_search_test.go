// Package integration exercises indexing and retrieval end to end over the
// local HNSW and SQLite backends.
package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/bulletinsearch/internal/chunk"
	"github.com/Aman-CERP/bulletinsearch/internal/embed"
	"github.com/Aman-CERP/bulletinsearch/internal/filter"
	"github.com/Aman-CERP/bulletinsearch/internal/index"
	"github.com/Aman-CERP/bulletinsearch/internal/search"
	"github.com/Aman-CERP/bulletinsearch/internal/store"
)

func strPtr(s string) *string { return &s }

var bulletinRecords = []*chunk.ChunkRecord{
	{
		ID:         "boja-2024-041#3",
		DocumentID: "boja-2024-041",
		Text:       "Resolución por la que se convocan subvenciones para trabajadores autónomos",
		Metadata:   chunk.Metadata{SectionType: "resolution", Topic: "employment", Language: "es", Year: "2024", Month: "03", Entities: []string{"Junta de Andalucía"}},
	},
	{
		ID:         "boja-2023-112#1",
		DocumentID: "boja-2023-112",
		Text:       "Anuncio de licitación de obras de mejora de la red de carreteras",
		Metadata:   chunk.Metadata{SectionType: "announcement", Topic: "infrastructure", Language: "es", Year: "2023", Month: "11", HasAmounts: true},
	},
	{
		ID:         "boja-2023-090#7",
		DocumentID: "boja-2023-090",
		Text:       "Orden de subvenciones destinadas a la rehabilitación de vivienda",
		Metadata:   chunk.Metadata{SectionType: "order", Topic: "housing", Language: "es", Year: "2023", Month: "06", Entities: []string{"Consejería de Fomento"}},
	},
	{
		ID:         "boja-2024-007#2",
		DocumentID: "boja-2024-007",
		Text:       "Corrección de errores de la orden de ayudas al alquiler de vivienda",
		Metadata:   chunk.Metadata{SectionType: "correction", Topic: "housing", Language: "es", Year: "2024", Month: "01", HasTables: true},
	},
}

// indexedDataDir indexes bulletinRecords into a data directory through the
// store factories and closes everything, as the index command does.
func indexedDataDir(t *testing.T) (string, embed.Embedder) {
	t.Helper()
	ctx := context.Background()
	dataDir := t.TempDir()
	embedder := embed.NewStaticEmbedder()

	vector, keyword := openStores(t, dataDir, embedder)

	runner, err := index.NewRunner(index.RunnerDependencies{Vector: vector, Keyword: keyword, Embedder: embedder})
	require.NoError(t, err)
	result, err := runner.Run(ctx, bulletinRecords, index.RunnerConfig{DataDir: dataDir, BatchSize: 3})
	require.NoError(t, err)
	require.Equal(t, len(bulletinRecords), result.Chunks)

	require.NoError(t, vector.Close())
	require.NoError(t, keyword.Close())
	return dataDir, embedder
}

func openStores(t *testing.T, dataDir string, embedder embed.Embedder) (store.VectorStore, store.KeywordStore) {
	t.Helper()
	vector, err := store.NewVectorStore(store.VectorOptions{
		DataDir: dataDir,
		HNSW:    store.DefaultVectorStoreConfig(embedder.Dimensions()),
	})
	require.NoError(t, err)

	keyword, err := store.NewKeywordStore(context.Background(), store.KeywordOptions{DataDir: dataDir})
	require.NoError(t, err)
	return vector, keyword
}

// reopenService loads the persisted indexes and builds a service over them.
func reopenService(t *testing.T, dataDir string, embedder embed.Embedder, wrap func(store.VectorIndex) store.VectorIndex) *search.Service {
	t.Helper()
	vector, keyword := openStores(t, dataDir, embedder)
	t.Cleanup(func() {
		_ = vector.Close()
		_ = keyword.Close()
	})

	var vi store.VectorIndex = vector
	if wrap != nil {
		vi = wrap(vector)
	}
	svc, err := search.NewService(vi, keyword, keyword, embedder, search.DefaultConfig())
	require.NoError(t, err)
	return svc
}

// failingVector fails every search.
type failingVector struct {
	store.VectorIndex
	err error
}

func (f failingVector) Search(context.Context, []float32, filter.VectorPredicate, int) ([]*store.RankedHit, error) {
	return nil, f.err
}

func ids(resp *search.Response) []string {
	out := make([]string, len(resp.Results))
	for i, r := range resp.Results {
		out[i] = r.ChunkID
	}
	return out
}

// ============================================================================
// Persisted hybrid retrieval
// ============================================================================

func TestIndexThenSearch_HybridAfterReload(t *testing.T) {
	// Given: records indexed and the process restarted
	dataDir, embedder := indexedDataDir(t)
	svc := reopenService(t, dataDir, embedder, nil)

	// When: a hybrid query matching two records by keyword
	resp, err := svc.Search(context.Background(), search.Request{Query: "subvenciones", TopK: 4})

	// Then: both keyword matches are fused with semantic ranks
	require.NoError(t, err)
	assert.False(t, resp.Diagnostics.Degraded, resp.Diagnostics.BackendErrors)
	assert.Subset(t, ids(resp), []string{"boja-2024-041#3", "boja-2023-090#7"})
	for _, r := range resp.Results {
		if r.ChunkID == "boja-2024-041#3" {
			assert.Contains(t, r.Ranks, search.SourceKeyword)
			assert.Contains(t, r.Ranks, search.SourceSemantic)
			assert.Greater(t, r.FusionScore, 0.0)
			assert.Equal(t, "Junta de Andalucía", r.Metadata.Entities[0])
		}
	}
}

func TestIndexThenSearch_FilterAppliesToBothTechniques(t *testing.T) {
	dataDir, embedder := indexedDataDir(t)
	svc := reopenService(t, dataDir, embedder, nil)

	tests := []struct {
		name    string
		filters filter.Params
		want    []string
	}{
		{"section type", filter.Params{SectionType: strPtr("order")}, []string{"boja-2023-090#7"}},
		{"year and month", filter.Params{Year: strPtr("2024"), Month: strPtr("1")}, []string{"boja-2024-007#2"}},
		{"topic", filter.Params{Topic: strPtr("housing")}, []string{"boja-2023-090#7", "boja-2024-007#2"}},
		{"entity", filter.Params{Entities: []string{"Consejería de Fomento"}}, []string{"boja-2023-090#7"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// When: searching semantically, where every record is a candidate
			resp, err := svc.Search(context.Background(), search.Request{
				Query:     "vivienda subvenciones orden",
				TopK:      10,
				Filters:   tt.filters,
				Technique: string(search.TechniqueSemantic),
			})

			// Then: only records satisfying the filter come back
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, ids(resp))
		})
	}
}

// ============================================================================
// Degradation
// ============================================================================

func TestIndexThenSearch_VectorDownDegrades(t *testing.T) {
	// Given: the vector backend fails every query
	dataDir, embedder := indexedDataDir(t)
	svc := reopenService(t, dataDir, embedder, func(v store.VectorIndex) store.VectorIndex {
		return failingVector{VectorIndex: v, err: errors.New("hnsw unavailable")}
	})

	// When: a hybrid query runs
	resp, err := svc.Search(context.Background(), search.Request{Query: "licitación carreteras"})

	// Then: keyword results are returned and the failure is reported
	require.NoError(t, err)
	assert.True(t, resp.Diagnostics.Degraded)
	assert.Contains(t, resp.Diagnostics.BackendErrors[search.SourceSemantic], "hnsw unavailable")
	assert.Equal(t, []string{"boja-2023-112#1"}, ids(resp))
}

func TestIndexThenSearch_SemanticOnlyWithVectorDownFails(t *testing.T) {
	dataDir, embedder := indexedDataDir(t)
	svc := reopenService(t, dataDir, embedder, func(v store.VectorIndex) store.VectorIndex {
		return failingVector{VectorIndex: v, err: errors.New("hnsw unavailable")}
	})

	_, err := svc.Search(context.Background(), search.Request{
		Query:     "licitación",
		Technique: string(search.TechniqueSemantic),
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, search.ErrServiceUnavailable))
}

// ============================================================================
// Re-indexing
// ============================================================================

func TestReindex_ReplacesChangedRecord(t *testing.T) {
	// Given: an indexed data directory
	ctx := context.Background()
	dataDir, embedder := indexedDataDir(t)

	// When: one record is re-indexed with new text
	vector, keyword := openStores(t, dataDir, embedder)
	changed := *bulletinRecords[1]
	changed.Text = "Anuncio de licitación del servicio de limpieza de edificios"
	runner, err := index.NewRunner(index.RunnerDependencies{Vector: vector, Keyword: keyword, Embedder: embedder})
	require.NoError(t, err)
	_, err = runner.Run(ctx, []*chunk.ChunkRecord{&changed}, index.RunnerConfig{DataDir: dataDir})
	require.NoError(t, err)
	require.NoError(t, vector.Close())
	require.NoError(t, keyword.Close())

	// Then: the old text no longer matches and the new text does
	svc := reopenService(t, dataDir, embedder, nil)
	old, err := svc.Search(ctx, search.Request{Query: "carreteras", Technique: string(search.TechniqueKeyword)})
	require.NoError(t, err)
	assert.Empty(t, old.Results)

	updated, err := svc.Search(ctx, search.Request{Query: "limpieza", Technique: string(search.TechniqueKeyword)})
	require.NoError(t, err)
	assert.Equal(t, []string{"boja-2023-112#1"}, ids(updated))
}
