// Package telemetry records retrieval metrics: Prometheus collectors for
// scraping, and local query statistics for relevance tuning. Query
// statistics never leave the machine.
package telemetry

import (
	"time"

	"github.com/Aman-CERP/bulletinsearch/internal/store"
)

// LatencyBucket is a coarse latency class used by the daily counts.
type LatencyBucket string

const (
	BucketP50   LatencyBucket = "p50"
	BucketP100  LatencyBucket = "p100"
	BucketP250  LatencyBucket = "p250"
	BucketP1000 LatencyBucket = "p1000"
	BucketSlow  LatencyBucket = "slow"
)

// latencyBounds are exclusive upper bounds in ascending order.
var latencyBounds = []struct {
	below  time.Duration
	bucket LatencyBucket
}{
	{50 * time.Millisecond, BucketP50},
	{100 * time.Millisecond, BucketP100},
	{250 * time.Millisecond, BucketP250},
	{time.Second, BucketP1000},
}

// LatencyToBucket classifies d. Anything from one second up is BucketSlow.
func LatencyToBucket(d time.Duration) LatencyBucket {
	for _, b := range latencyBounds {
		if d < b.below {
			return b.bucket
		}
	}
	return BucketSlow
}

// QueryEvent is one completed search.
type QueryEvent struct {
	Query       string
	Technique   string
	ResultCount int
	Latency     time.Duration
	Degraded    bool
	// Filters are the names of the filter fields the request set.
	Filters   []string
	Timestamp time.Time
}

func (e QueryEvent) IsZeroResult() bool {
	return e.ResultCount == 0
}

// ExtractTerms returns the distinct index terms of a query, folded and
// without stop words, so statistics line up with what the keyword index sees.
func ExtractTerms(query string) []string {
	terms := store.UniqueTokens(store.Tokenize(query))
	if len(terms) == 0 {
		return nil
	}
	return terms
}

// TermCount is a term or full query with how often it was seen.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// QueryMetricsSnapshot is a point-in-time copy of the in-memory statistics.
type QueryMetricsSnapshot struct {
	TechniqueCounts     map[string]int64        `json:"technique_counts"`
	FilterCounts        map[string]int64        `json:"filter_counts"`
	TopTerms            []TermCount             `json:"top_terms"`
	ZeroResultQueries   []TermCount             `json:"zero_result_queries"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TotalQueries        int64                   `json:"total_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	DegradedCount       int64                   `json:"degraded_count"`
	Since               time.Time               `json:"since"`
}

// ZeroResultPercentage is in the range [0, 100].
func (s *QueryMetricsSnapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// QueryMetricsStore persists query statistics. Counts passed to the Add
// and Upsert methods are increments.
type QueryMetricsStore interface {
	AddDailyCounts(date string, counter Counter, counts map[string]int64) error
	SumDailyCounts(counter Counter, from, to string) (map[string]int64, error)

	UpsertTermCounts(terms map[string]int64) error
	GetTopTerms(limit int) ([]TermCount, error)

	AddZeroResultQuery(query string, timestamp time.Time) error
	GetZeroResultQueries(limit int) ([]string, error)

	Close() error
}
