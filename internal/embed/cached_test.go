package embed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockEmbedder is a test double that counts calls
type mockEmbedder struct {
	embedCalls atomic.Int64
	batchCalls atomic.Int64
	batchSizes []int
	mu         sync.Mutex
	dimensions int
	modelName  string
	err        error
	closed     atomic.Bool
}

func newMockEmbedder(dims int) *mockEmbedder {
	return &mockEmbedder{dimensions: dims, modelName: "mock-model"}
}

func (m *mockEmbedder) vector(text string) []float32 {
	vec := make([]float32, m.dimensions)
	vec[len(text)%m.dimensions] = 1
	return vec
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.embedCalls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return m.vector(text), nil
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.batchCalls.Add(1)
	m.mu.Lock()
	m.batchSizes = append(m.batchSizes, len(texts))
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	result := make([][]float32, len(texts))
	for i, text := range texts {
		result[i] = m.vector(text)
	}
	return result, nil
}

func (m *mockEmbedder) Dimensions() int                  { return m.dimensions }
func (m *mockEmbedder) ModelName() string                { return m.modelName }
func (m *mockEmbedder) Available(_ context.Context) bool { return !m.closed.Load() }
func (m *mockEmbedder) Close() error                     { m.closed.Store(true); return nil }

// ============================================================================
// Cache Hits and Misses
// ============================================================================

func TestCachedEmbedder_RepeatedQueryHitsCache(t *testing.T) {
	// Given: a cached embedder
	inner := newMockEmbedder(8)
	cached := NewCachedEmbedder(inner, 100)
	defer func() { _ = cached.Close() }()

	// When: the same query is embedded twice, once with surrounding spaces
	emb1, err := cached.Embed(context.Background(), "ayudas vivienda")
	require.NoError(t, err)
	emb2, err := cached.Embed(context.Background(), "  ayudas vivienda ")
	require.NoError(t, err)

	// Then: the inner embedder is called once
	assert.Equal(t, emb1, emb2)
	assert.Equal(t, int64(1), inner.embedCalls.Load())
	assert.Equal(t, CacheStats{Hits: 1, Misses: 1, Size: 1}, cached.Stats())
}

func TestCachedEmbedder_KeyIncludesModel(t *testing.T) {
	inner := newMockEmbedder(8)
	cached := NewCachedEmbedder(inner, 100)
	defer func() { _ = cached.Close() }()

	_, _ = cached.Embed(context.Background(), "empleo")
	inner.modelName = "other-model"
	_, _ = cached.Embed(context.Background(), "empleo")

	assert.Equal(t, int64(2), inner.embedCalls.Load())
}

func TestCachedEmbedder_ErrorsAreNotCached(t *testing.T) {
	inner := newMockEmbedder(8)
	inner.err = errors.New("model offline")
	cached := NewCachedEmbedder(inner, 100)
	defer func() { _ = cached.Close() }()

	_, err := cached.Embed(context.Background(), "empleo")
	require.Error(t, err)

	inner.err = nil
	_, err = cached.Embed(context.Background(), "empleo")
	require.NoError(t, err)
	assert.Equal(t, int64(2), inner.embedCalls.Load())
}

// ============================================================================
// EmbedBatch
// ============================================================================

func TestCachedEmbedder_EmbedBatch_OnlyEmbedsMisses(t *testing.T) {
	// Given: one text already cached
	inner := newMockEmbedder(8)
	cached := NewCachedEmbedder(inner, 100)
	defer func() { _ = cached.Close() }()
	_, _ = cached.Embed(context.Background(), "b")

	// When: embedding a batch containing it
	out, err := cached.EmbedBatch(context.Background(), []string{"a", "b", "ccc"})

	// Then: only the two misses reach the inner batch call, in order
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, []int{2}, inner.batchSizes)
	assert.Equal(t, inner.vector("ccc"), out[2])

	// And: a second batch is fully cached
	_, err = cached.EmbedBatch(context.Background(), []string{"a", "ccc"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), inner.batchCalls.Load())
}

func TestCachedEmbedder_EmbedBatch_Empty(t *testing.T) {
	cached := NewCachedEmbedder(newMockEmbedder(8), 10)
	out, err := cached.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

// ============================================================================
// Eviction and Lifecycle
// ============================================================================

func TestCachedEmbedder_CacheEviction_OldestEvictedFirst(t *testing.T) {
	// Given: a cache of 3 entries filled with 4 texts
	inner := newMockEmbedder(8)
	cached := NewCachedEmbedder(inner, 3)
	defer func() { _ = cached.Close() }()

	ctx := context.Background()
	for _, text := range []string{"t1", "t2", "t3", "t4"} {
		_, _ = cached.Embed(ctx, text)
	}
	inner.embedCalls.Store(0)

	// Then: the oldest text misses and recent ones hit
	_, _ = cached.Embed(ctx, "t4")
	_, _ = cached.Embed(ctx, "t3")
	assert.Equal(t, int64(0), inner.embedCalls.Load())
	_, _ = cached.Embed(ctx, "t1")
	assert.Equal(t, int64(1), inner.embedCalls.Load())
}

func TestCachedEmbedder_Passthrough(t *testing.T) {
	inner := newMockEmbedder(16)
	cached := NewCachedEmbedder(inner, 0)

	assert.Equal(t, 16, cached.Dimensions())
	assert.Equal(t, "mock-model", cached.ModelName())
	assert.True(t, cached.Available(context.Background()))
	assert.Same(t, inner, cached.Inner().(*mockEmbedder))

	require.NoError(t, cached.Close())
	assert.False(t, cached.Available(context.Background()))
	assert.Equal(t, 0, cached.Stats().Size)
}

func TestCachedEmbedder_ConcurrentAccess_NoRace(t *testing.T) {
	cached := NewCachedEmbedder(newMockEmbedder(8), 100)
	defer func() { _ = cached.Close() }()

	texts := []string{"a", "b", "c", "d", "e"}
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = cached.Embed(context.Background(), texts[j%len(texts)])
			}
		}()
	}
	wg.Wait()

	stats := cached.Stats()
	assert.Equal(t, int64(1000), stats.Hits+stats.Misses)
}

// gatedEmbedder blocks Embed until release is closed.
type gatedEmbedder struct {
	*mockEmbedder
	entered chan struct{}
	release chan struct{}
}

func (g *gatedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.mockEmbedder.Embed(ctx, text)
}

func TestCachedEmbedder_ConcurrentMissesShareOneCall(t *testing.T) {
	// Given: an inner embedder that blocks on the first call
	inner := &gatedEmbedder{
		mockEmbedder: newMockEmbedder(8),
		entered:      make(chan struct{}, 8),
		release:      make(chan struct{}),
	}
	cached := NewCachedEmbedder(inner, 10)

	// When: several callers miss on the same query at once
	const callers = 4
	var wg sync.WaitGroup
	results := make([][]float32, callers)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = cached.Embed(context.Background(), "ayudas")
	}()
	<-inner.entered
	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = cached.Embed(context.Background(), "ayudas")
		}()
	}
	// The waiters have counted their miss before joining the flight.
	require.Eventually(t, func() bool { return cached.Stats().Misses == callers }, time.Second, time.Millisecond)
	close(inner.release)
	wg.Wait()

	// Then: the model ran once and everyone got its vector
	assert.Equal(t, int64(1), inner.embedCalls.Load())
	for _, r := range results {
		assert.Equal(t, results[0], r)
	}
}
