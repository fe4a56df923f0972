package telemetry

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *SQLiteMetricsStore {
	t.Helper()

	store, err := OpenSQLiteMetricsStore(filepath.Join(t.TempDir(), "telemetry", "telemetry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteMetricsStore_DailyCounts_Accumulate(t *testing.T) {
	store := setupTestStore(t)

	require.NoError(t, store.AddDailyCounts("2026-01-06", CounterTechnique, map[string]int64{"hybrid": 5, "keyword": 2}))
	require.NoError(t, store.AddDailyCounts("2026-01-06", CounterTechnique, map[string]int64{"hybrid": 3}))

	result, err := store.SumDailyCounts(CounterTechnique, "2026-01-06", "2026-01-06")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"hybrid": 8, "keyword": 2}, result)
}

func TestSQLiteMetricsStore_DailyCounts_CountersAreSeparate(t *testing.T) {
	// Given: the same key under two counters
	store := setupTestStore(t)
	require.NoError(t, store.AddDailyCounts("2026-01-06", CounterFilter, map[string]int64{"year": 4, "section_type": 1}))
	require.NoError(t, store.AddDailyCounts("2026-01-06", CounterLatency, map[string]int64{string(BucketP50): 7}))

	// When: reading one counter
	filters, err := store.SumDailyCounts(CounterFilter, "2026-01-01", "2026-01-31")
	require.NoError(t, err)

	// Then: only its keys come back
	assert.Equal(t, map[string]int64{"year": 4, "section_type": 1}, filters)
}

func TestSQLiteMetricsStore_DailyCounts_DateRangeIsInclusive(t *testing.T) {
	store := setupTestStore(t)

	for date, n := range map[string]int64{"2026-01-01": 1, "2026-01-05": 2, "2026-01-10": 4} {
		require.NoError(t, store.AddDailyCounts(date, CounterTechnique, map[string]int64{"hybrid": n}))
	}

	result, err := store.SumDailyCounts(CounterTechnique, "2026-01-02", "2026-01-10")
	require.NoError(t, err)
	assert.Equal(t, int64(6), result["hybrid"])

	none, err := store.SumDailyCounts(CounterTechnique, "2025-01-01", "2025-12-31")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteMetricsStore_UpsertTermCounts_Incremental(t *testing.T) {
	store := setupTestStore(t)

	require.NoError(t, store.UpsertTermCounts(map[string]int64{"ayudas": 3, "vivienda": 1}))
	require.NoError(t, store.UpsertTermCounts(map[string]int64{"ayudas": 2}))

	terms, err := store.GetTopTerms(10)
	require.NoError(t, err)
	assert.Equal(t, []TermCount{{Term: "ayudas", Count: 5}, {Term: "vivienda", Count: 1}}, terms)
}

func TestSQLiteMetricsStore_GetTopTerms_Limit(t *testing.T) {
	store := setupTestStore(t)

	counts := make(map[string]int64)
	for i := 0; i < 20; i++ {
		counts[fmt.Sprintf("term%02d", i)] = int64(i + 1)
	}
	require.NoError(t, store.UpsertTermCounts(counts))

	terms, err := store.GetTopTerms(5)
	require.NoError(t, err)
	require.Len(t, terms, 5)
	assert.Equal(t, "term19", terms[0].Term)
}

func TestSQLiteMetricsStore_EmptyTerms(t *testing.T) {
	store := setupTestStore(t)
	assert.NoError(t, store.UpsertTermCounts(nil))
	assert.NoError(t, store.AddDailyCounts("2026-01-06", CounterTechnique, nil))
}

func TestSQLiteMetricsStore_ZeroResultQueries_NewestFirst(t *testing.T) {
	store := setupTestStore(t)
	now := time.Now()

	require.NoError(t, store.AddZeroResultQuery("licencia de pesca", now))
	require.NoError(t, store.AddZeroResultQuery("becas comedor", now.Add(time.Second)))

	queries, err := store.GetZeroResultQueries(10)
	require.NoError(t, err)
	assert.Equal(t, []string{"becas comedor", "licencia de pesca"}, queries)
}

func TestSQLiteMetricsStore_ZeroResultQueries_Bounded(t *testing.T) {
	store := setupTestStore(t)

	for i := 0; i < MaxZeroResultQueries+10; i++ {
		require.NoError(t, store.AddZeroResultQuery(fmt.Sprintf("q%03d", i), time.Now()))
	}

	queries, err := store.GetZeroResultQueries(1000)
	require.NoError(t, err)
	assert.Len(t, queries, MaxZeroResultQueries)
	assert.Equal(t, fmt.Sprintf("q%03d", MaxZeroResultQueries+9), queries[0])
}

func TestNewSQLiteMetricsStore_NilDB(t *testing.T) {
	_, err := NewSQLiteMetricsStore(nil)
	assert.Error(t, err)
}

func TestNewSQLiteMetricsStore_SharedConnectionStaysOpen(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "shared.db"))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	require.NoError(t, InitTelemetrySchema(db))

	store, err := NewSQLiteMetricsStore(db)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	assert.NoError(t, db.Ping())
}

func TestQueryMetrics_FlushToSQLite(t *testing.T) {
	// Given: a collector persisting to SQLite
	store := setupTestStore(t)
	m := NewQueryMetricsWithConfig(store, QueryMetricsConfig{})

	// When: recording and closing
	m.Record(QueryEvent{Query: "ayudas alquiler", Technique: "hybrid", ResultCount: 3, Filters: []string{"year"}})
	m.Record(QueryEvent{Query: "permiso de obras", Technique: "keyword", ResultCount: 0, Latency: 300 * time.Millisecond})
	require.NoError(t, m.Close())

	// Then: everything is queryable from the database
	today := time.Now().Format("2006-01-02")
	counts, err := store.SumDailyCounts(CounterTechnique, today, today)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"hybrid": 1, "keyword": 1}, counts)

	latencies, err := store.SumDailyCounts(CounterLatency, today, today)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"p50": 1, "p1000": 1}, latencies)

	filters, err := store.SumDailyCounts(CounterFilter, today, today)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"year": 1}, filters)

	zero, err := store.GetZeroResultQueries(10)
	require.NoError(t, err)
	assert.Equal(t, []string{"permiso de obras"}, zero)
}
