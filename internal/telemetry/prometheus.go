package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Aman-CERP/bulletinsearch/internal/search"
)

// Namespace prefixes every exported metric.
const Namespace = "bulletinsearch"

// Metrics holds the retrieval collectors on a private registry and feeds
// completed searches to QueryMetrics. It implements search.Metrics.
type Metrics struct {
	registry *prometheus.Registry
	queries  *QueryMetrics

	searchesTotal       *prometheus.CounterVec
	searchDuration      *prometheus.HistogramVec
	backendFailures     *prometheus.CounterVec
	filterDegradations  *prometheus.CounterVec
	rerankTotal         *prometheus.CounterVec
	resultsReturned     prometheus.Histogram
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

var _ search.Metrics = (*Metrics)(nil)

// NewMetrics registers the collectors. queries may be nil.
func NewMetrics(queries *QueryMetrics) *Metrics {
	registry := prometheus.NewRegistry()

	searchesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "searches_total",
			Help:      "Total searches by technique and outcome.",
		},
		[]string{"technique", "status"},
	)
	searchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "search_duration_seconds",
			Help:      "Search latency in seconds.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"technique"},
	)
	backendFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "backend_failures_total",
			Help:      "Retrieval techniques that failed or timed out.",
		},
		[]string{"technique"},
	)
	filterDegradations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "filter_degradations_total",
			Help:      "Filter fields a backend could not apply.",
		},
		[]string{"backend", "field"},
	)
	rerankTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "rerank_total",
			Help:      "Rerank attempts by strategy and outcome.",
		},
		[]string{"strategy", "outcome"},
	)
	resultsReturned := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "results_returned",
			Help:      "Number of results returned per successful search.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		},
	)
	httpRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"method", "path", "status"},
	)
	httpRequestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	registry.MustRegister(
		searchesTotal,
		searchDuration,
		backendFailures,
		filterDegradations,
		rerankTotal,
		resultsReturned,
		httpRequestsTotal,
		httpRequestDuration,
	)

	return &Metrics{
		registry:            registry,
		queries:             queries,
		searchesTotal:       searchesTotal,
		searchDuration:      searchDuration,
		backendFailures:     backendFailures,
		filterDegradations:  filterDegradations,
		rerankTotal:         rerankTotal,
		resultsReturned:     resultsReturned,
		httpRequestsTotal:   httpRequestsTotal,
		httpRequestDuration: httpRequestDuration,
	}
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Queries returns the query statistics collector, or nil.
func (m *Metrics) Queries() *QueryMetrics { return m.queries }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveSearch records one search. Failed searches do not count as
// zero-result queries.
func (m *Metrics) ObserveSearch(obs search.Observation) {
	technique := string(obs.Technique)
	m.searchesTotal.WithLabelValues(technique, obs.Status).Inc()
	m.searchDuration.WithLabelValues(technique).Observe(obs.Elapsed.Seconds())
	if obs.Status == search.StatusError {
		return
	}
	m.resultsReturned.Observe(float64(obs.Results))

	if m.queries != nil {
		m.queries.Record(QueryEvent{
			Query:       obs.Query,
			Technique:   technique,
			ResultCount: obs.Results,
			Latency:     obs.Elapsed,
			Degraded:    obs.Status == search.StatusDegraded,
			Filters:     obs.Filters,
		})
	}
}

// BackendFailure counts a failed technique.
func (m *Metrics) BackendFailure(technique string) {
	m.backendFailures.WithLabelValues(technique).Inc()
}

// FilterDegraded counts a filter field dropped by a backend.
func (m *Metrics) FilterDegraded(backend, field string) {
	m.filterDegradations.WithLabelValues(backend, field).Inc()
}

// Rerank counts a rerank attempt.
func (m *Metrics) Rerank(strategy search.Strategy, outcome string) {
	m.rerankTotal.WithLabelValues(string(strategy), outcome).Inc()
}

// Middleware records request counts and latency. route names the path
// label so ids in URLs do not create new series.
func (m *Metrics) Middleware(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(recorder, r)

		m.httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(recorder.statusCode)).Inc()
		m.httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// statusRecorder captures the response status for metrics and access logs.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
