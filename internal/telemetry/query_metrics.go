package telemetry

import (
	"cmp"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// QueryMetricsConfig bounds the in-memory statistics. A zero FlushInterval
// disables the background flush.
type QueryMetricsConfig struct {
	TopTermsCapacity    int
	ZeroResultsCapacity int
	FlushInterval       time.Duration
}

func DefaultQueryMetricsConfig() QueryMetricsConfig {
	return QueryMetricsConfig{
		TopTermsCapacity:    200,
		ZeroResultsCapacity: 100,
		FlushInterval:       time.Minute,
	}
}

// dailyCounters are kept per key in memory and flushed in this order.
var dailyCounters = []Counter{CounterTechnique, CounterLatency, CounterFilter}

type counts map[Counter]map[string]int64

func newCounts() counts {
	c := make(counts, len(dailyCounters))
	for _, name := range dailyCounters {
		c[name] = map[string]int64{}
	}
	return c
}

// pending holds increments not yet written to the store.
type pending struct {
	daily       counts
	terms       map[string]int64
	zeroResults []QueryEvent
}

func newPending() pending {
	return pending{daily: newCounts(), terms: map[string]int64{}}
}

func (p pending) empty() bool {
	for _, m := range p.daily {
		if len(m) > 0 {
			return false
		}
	}
	return len(p.terms) == 0 && len(p.zeroResults) == 0
}

// mergePending sums two sets of increments.
func mergePending(a, b pending) pending {
	out := newPending()
	for _, p := range []pending{a, b} {
		for c, m := range p.daily {
			for k, v := range m {
				out.daily[c][k] += v
			}
		}
		for k, v := range p.terms {
			out.terms[k] += v
		}
		out.zeroResults = append(out.zeroResults, p.zeroResults...)
	}
	return out
}

// QueryMetrics aggregates query statistics in memory and, with a store,
// writes the increments out periodically. Safe for concurrent use.
type QueryMetrics struct {
	mu          sync.Mutex
	totals      counts
	topTerms    *lru.Cache[string, int64]
	zeroResults *lru.Cache[string, int64]
	queries     int64
	zeroCount   int64
	degraded    int64
	since       time.Time
	unflushed   pending
	closed      bool

	store QueryMetricsStore
	stop  chan struct{}
	done  chan struct{}
}

// NewQueryMetrics keeps statistics in memory only when store is nil.
func NewQueryMetrics(store QueryMetricsStore) *QueryMetrics {
	return NewQueryMetricsWithConfig(store, DefaultQueryMetricsConfig())
}

func NewQueryMetricsWithConfig(store QueryMetricsStore, cfg QueryMetricsConfig) *QueryMetrics {
	d := DefaultQueryMetricsConfig()
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = d.TopTermsCapacity
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = d.ZeroResultsCapacity
	}
	// lru.New only fails for a non-positive size.
	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	zeroResults, _ := lru.New[string, int64](cfg.ZeroResultsCapacity)

	m := &QueryMetrics{
		totals:      newCounts(),
		topTerms:    topTerms,
		zeroResults: zeroResults,
		since:       time.Now(),
		unflushed:   newPending(),
		store:       store,
	}
	if store != nil && cfg.FlushInterval > 0 {
		m.stop = make(chan struct{})
		m.done = make(chan struct{})
		go m.flushEvery(cfg.FlushInterval)
	}
	return m
}

func (m *QueryMetrics) flushEvery(interval time.Duration) {
	defer close(m.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			if err := m.Flush(); err != nil {
				slog.Warn("telemetry_flush_failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Record adds one completed search. Events after Close are dropped.
func (m *QueryMetrics) Record(event QueryEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	bump := func(c Counter, key string) {
		m.totals[c][key]++
		m.unflushed.daily[c][key]++
	}
	m.queries++
	bump(CounterTechnique, event.Technique)
	bump(CounterLatency, string(LatencyToBucket(event.Latency)))
	for _, f := range event.Filters {
		bump(CounterFilter, f)
	}

	for _, term := range ExtractTerms(event.Query) {
		increment(m.topTerms, term)
		m.unflushed.terms[term]++
	}
	if event.IsZeroResult() {
		m.zeroCount++
		increment(m.zeroResults, event.Query)
		m.unflushed.zeroResults = append(m.unflushed.zeroResults, event)
	}
	if event.Degraded {
		m.degraded++
	}
}

func increment(c *lru.Cache[string, int64], key string) {
	n, _ := c.Get(key)
	c.Add(key, n+1)
}

func (m *QueryMetrics) Snapshot() *QueryMetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	latency := make(map[LatencyBucket]int64, len(m.totals[CounterLatency]))
	for k, v := range m.totals[CounterLatency] {
		latency[LatencyBucket(k)] = v
	}
	return &QueryMetricsSnapshot{
		TechniqueCounts:     maps.Clone(m.totals[CounterTechnique]),
		FilterCounts:        maps.Clone(m.totals[CounterFilter]),
		TopTerms:            byCount(m.topTerms),
		ZeroResultQueries:   byCount(m.zeroResults),
		LatencyDistribution: latency,
		TotalQueries:        m.queries,
		ZeroResultCount:     m.zeroCount,
		DegradedCount:       m.degraded,
		Since:               m.since,
	}
}

// byCount lists a cache by count descending, then key.
func byCount(c *lru.Cache[string, int64]) []TermCount {
	out := make([]TermCount, 0, c.Len())
	for _, key := range c.Keys() {
		if n, ok := c.Peek(key); ok {
			out = append(out, TermCount{Term: key, Count: n})
		}
	}
	slices.SortFunc(out, func(a, b TermCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Term, b.Term)
	})
	return out
}

// Flush writes the increments recorded since the last flush. Whatever the
// store did not accept is kept for the next call. Without a store it is a
// no-op.
func (m *QueryMetrics) Flush() error {
	if m.store == nil {
		return nil
	}

	m.mu.Lock()
	batch := m.unflushed
	m.unflushed = newPending()
	m.mu.Unlock()

	if batch.empty() {
		return nil
	}
	rest, err := m.write(batch)
	if err != nil {
		m.mu.Lock()
		m.unflushed = mergePending(rest, m.unflushed)
		m.mu.Unlock()
	}
	return err
}

// write persists batch in order and returns the part not yet committed.
func (m *QueryMetrics) write(batch pending) (pending, error) {
	today := time.Now().Format(time.DateOnly)

	for _, c := range dailyCounters {
		if err := m.store.AddDailyCounts(today, c, batch.daily[c]); err != nil {
			return batch, err
		}
		delete(batch.daily, c)
	}
	if err := m.store.UpsertTermCounts(batch.terms); err != nil {
		return batch, err
	}
	batch.terms = nil
	for i, ev := range batch.zeroResults {
		if err := m.store.AddZeroResultQuery(ev.Query, ev.Timestamp); err != nil {
			batch.zeroResults = batch.zeroResults[i:]
			return batch, err
		}
	}
	return pending{}, nil
}

// Close stops the background flush and writes what is left. Calling it
// again is a no-op.
func (m *QueryMetrics) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if m.stop != nil {
		close(m.stop)
		<-m.done
	}
	return m.Flush()
}
