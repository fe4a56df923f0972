package telemetry

import (
	"errors"
	"maps"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Latency Buckets
// =============================================================================

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		latency time.Duration
		want    LatencyBucket
	}{
		{0, BucketP50},
		{49 * time.Millisecond, BucketP50},
		{50 * time.Millisecond, BucketP100},
		{99 * time.Millisecond, BucketP100},
		{100 * time.Millisecond, BucketP250},
		{250 * time.Millisecond, BucketP1000},
		{999 * time.Millisecond, BucketP1000},
		{time.Second, BucketSlow},
		{5 * time.Second, BucketSlow},
	}

	for _, tt := range tests {
		t.Run(tt.latency.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, LatencyToBucket(tt.latency))
		})
	}
}

// =============================================================================
// Terms
// =============================================================================

func TestExtractTerms(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"folds and drops stop words", "Ayudas al Alquiler de Vivienda", []string{"ayudas", "alquiler", "vivienda"}},
		{"accents", "Subvención pública", []string{"subvencion", "publica"}},
		{"duplicates", "empleo empleo EMPLEO", []string{"empleo"}},
		{"only stop words", "de la y", nil},
		{"empty", "   ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractTerms(tt.query))
		})
	}
}

func TestQueryEvent_IsZeroResult(t *testing.T) {
	assert.True(t, QueryEvent{ResultCount: 0}.IsZeroResult())
	assert.False(t, QueryEvent{ResultCount: 3}.IsZeroResult())
}

// =============================================================================
// Recording
// =============================================================================

func TestQueryMetrics_Record_IncrementsCounts(t *testing.T) {
	// Given: an in-memory collector
	m := NewQueryMetrics(nil)
	defer func() { _ = m.Close() }()

	// When: recording searches of different techniques
	m.Record(QueryEvent{Query: "ayudas vivienda", Technique: "hybrid", ResultCount: 5, Latency: 20 * time.Millisecond})
	m.Record(QueryEvent{Query: "oposiciones", Technique: "hybrid", ResultCount: 3, Latency: 80 * time.Millisecond, Degraded: true})
	m.Record(QueryEvent{Query: "BOE-A-2025-1234", Technique: "keyword", ResultCount: 1, Latency: 5 * time.Millisecond})

	// Then: totals, technique counts, and latency buckets are tracked
	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.TotalQueries)
	assert.Equal(t, map[string]int64{"hybrid": 2, "keyword": 1}, snap.TechniqueCounts)
	assert.Equal(t, int64(2), snap.LatencyDistribution[BucketP50])
	assert.Equal(t, int64(1), snap.LatencyDistribution[BucketP100])
	assert.Equal(t, int64(1), snap.DegradedCount)
	assert.Zero(t, snap.ZeroResultCount)
}

func TestQueryMetrics_Record_CountsFilterFields(t *testing.T) {
	// Given: an in-memory collector
	m := NewQueryMetrics(nil)
	defer func() { _ = m.Close() }()

	// When: searches use different filter combinations
	m.Record(QueryEvent{Query: "oposiciones", Technique: "hybrid", ResultCount: 2, Filters: []string{"section_type", "year"}})
	m.Record(QueryEvent{Query: "subvenciones", Technique: "hybrid", ResultCount: 1, Filters: []string{"year", "month"}})
	m.Record(QueryEvent{Query: "becas", Technique: "keyword", ResultCount: 1})

	// Then: each field is counted once per request that set it
	assert.Equal(t, map[string]int64{"section_type": 1, "year": 2, "month": 1}, m.Snapshot().FilterCounts)
}

func TestQueryMetrics_Record_TracksTopTerms(t *testing.T) {
	m := NewQueryMetrics(nil)
	defer func() { _ = m.Close() }()

	m.Record(QueryEvent{Query: "ayudas vivienda", ResultCount: 1})
	m.Record(QueryEvent{Query: "ayudas empleo", ResultCount: 1})
	m.Record(QueryEvent{Query: "Ayudas al alquiler", ResultCount: 1})

	snap := m.Snapshot()
	require.NotEmpty(t, snap.TopTerms)
	assert.Equal(t, TermCount{Term: "ayudas", Count: 3}, snap.TopTerms[0])
	// Ties sort by term.
	assert.Equal(t, "alquiler", snap.TopTerms[1].Term)
}

func TestQueryMetrics_Record_CountsZeroResultQueries(t *testing.T) {
	m := NewQueryMetrics(nil)
	defer func() { _ = m.Close() }()

	m.Record(QueryEvent{Query: "licencia de pesca", ResultCount: 0})
	m.Record(QueryEvent{Query: "licencia de pesca", ResultCount: 0})
	m.Record(QueryEvent{Query: "becas", ResultCount: 0})
	m.Record(QueryEvent{Query: "empleo", ResultCount: 4})

	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.ZeroResultCount)
	assert.Equal(t, []TermCount{
		{Term: "licencia de pesca", Count: 2},
		{Term: "becas", Count: 1},
	}, snap.ZeroResultQueries)
	assert.InDelta(t, 75.0, snap.ZeroResultPercentage(), 1e-9)
}

func TestQueryMetrics_ZeroResults_LRUEviction(t *testing.T) {
	// Given: room for two zero-result queries
	m := NewQueryMetricsWithConfig(nil, QueryMetricsConfig{ZeroResultsCapacity: 2})
	defer func() { _ = m.Close() }()

	// When: three distinct queries miss
	m.Record(QueryEvent{Query: "q1"})
	m.Record(QueryEvent{Query: "q2"})
	m.Record(QueryEvent{Query: "q3"})

	// Then: the least recently seen is evicted
	snap := m.Snapshot()
	terms := make([]string, 0, len(snap.ZeroResultQueries))
	for _, tc := range snap.ZeroResultQueries {
		terms = append(terms, tc.Term)
	}
	assert.ElementsMatch(t, []string{"q2", "q3"}, terms)
}

func TestQueryMetrics_RecordAfterClose_Ignored(t *testing.T) {
	m := NewQueryMetrics(nil)
	require.NoError(t, m.Close())

	m.Record(QueryEvent{Query: "empleo"})

	assert.Zero(t, m.Snapshot().TotalQueries)
	require.NoError(t, m.Close())
}

func TestQueryMetrics_Concurrent_ThreadSafe(t *testing.T) {
	m := NewQueryMetrics(nil)
	defer func() { _ = m.Close() }()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Record(QueryEvent{Query: "ayudas vivienda", Technique: "hybrid", ResultCount: j % 2})
				_ = m.Snapshot()
			}
		}()
	}
	wg.Wait()

	snap := m.Snapshot()
	assert.Equal(t, int64(1000), snap.TotalQueries)
	assert.Equal(t, int64(500), snap.ZeroResultCount)
}

func TestQueryMetricsSnapshot_ZeroResultPercentage_NoQueries(t *testing.T) {
	snap := &QueryMetricsSnapshot{}
	assert.Zero(t, snap.ZeroResultPercentage())
}

// =============================================================================
// Flushing
// =============================================================================

// memoryStore is an in-memory QueryMetricsStore. Dates are ignored.
type memoryStore struct {
	mu          sync.Mutex
	daily       map[Counter]map[string]int64
	terms       map[string]int64
	zeroResults []string
	failTerms   bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{daily: map[Counter]map[string]int64{}, terms: map[string]int64{}}
}

func (s *memoryStore) AddDailyCounts(_ string, c Counter, counts map[string]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.daily[c] == nil {
		s.daily[c] = map[string]int64{}
	}
	for k, v := range counts {
		s.daily[c][k] += v
	}
	return nil
}

func (s *memoryStore) SumDailyCounts(c Counter, _, _ string) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.daily[c]), nil
}

func (s *memoryStore) count(c Counter, key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.daily[c][key]
}

func (s *memoryStore) UpsertTermCounts(terms map[string]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTerms {
		return errors.New("database is locked")
	}
	for k, v := range terms {
		s.terms[k] += v
	}
	return nil
}

func (s *memoryStore) GetTopTerms(int) ([]TermCount, error) { return nil, nil }

func (s *memoryStore) AddZeroResultQuery(query string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zeroResults = append(s.zeroResults, query)
	return nil
}

func (s *memoryStore) GetZeroResultQueries(int) ([]string, error) { return s.zeroResults, nil }

func (s *memoryStore) Close() error { return nil }

func TestQueryMetrics_Flush_WritesIncrementsOnly(t *testing.T) {
	// Given: a collector with a store and no auto-flush
	st := newMemoryStore()
	m := NewQueryMetricsWithConfig(st, QueryMetricsConfig{})
	defer func() { _ = m.Close() }()

	// When: flushing twice with new events in between
	m.Record(QueryEvent{Query: "ayudas", Technique: "hybrid", ResultCount: 2})
	require.NoError(t, m.Flush())
	m.Record(QueryEvent{Query: "ayudas", Technique: "hybrid", ResultCount: 0})
	require.NoError(t, m.Flush())
	require.NoError(t, m.Flush())

	// Then: the store holds each event exactly once
	assert.Equal(t, int64(2), st.count(CounterTechnique, "hybrid"))
	assert.Equal(t, int64(2), st.terms["ayudas"])
	assert.Equal(t, int64(2), st.count(CounterLatency, string(BucketP50)))
	assert.Equal(t, []string{"ayudas"}, st.zeroResults)
}

func TestQueryMetrics_Flush_FailureKeepsUncommitted(t *testing.T) {
	// Given: a store that fails on terms
	st := newMemoryStore()
	st.failTerms = true
	m := NewQueryMetricsWithConfig(st, QueryMetricsConfig{})
	defer func() { _ = m.Close() }()

	m.Record(QueryEvent{Query: "empleo", Technique: "keyword", ResultCount: 1})

	// When: the first flush fails and a later one succeeds
	require.Error(t, m.Flush())
	st.failTerms = false
	require.NoError(t, m.Flush())

	// Then: committed techniques are not written twice and terms arrive once
	assert.Equal(t, int64(1), st.count(CounterTechnique, "keyword"))
	assert.Equal(t, int64(1), st.terms["empleo"])
	assert.Equal(t, int64(1), st.count(CounterLatency, string(BucketP50)))
}

func TestQueryMetrics_Close_FlushesRemaining(t *testing.T) {
	st := newMemoryStore()
	m := NewQueryMetricsWithConfig(st, QueryMetricsConfig{FlushInterval: time.Hour})

	m.Record(QueryEvent{Query: "becas", Technique: "semantic", ResultCount: 1})
	require.NoError(t, m.Close())

	assert.Equal(t, int64(1), st.count(CounterTechnique, "semantic"))
}

func TestQueryMetrics_Flush_NoStore(t *testing.T) {
	m := NewQueryMetrics(nil)
	m.Record(QueryEvent{Query: "empleo"})
	assert.NoError(t, m.Flush())
}
