package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Aman-CERP/bulletinsearch/internal/embed"
	"github.com/Aman-CERP/bulletinsearch/internal/filter"
	"github.com/Aman-CERP/bulletinsearch/internal/store"
)

// Search outcome labels reported to Metrics.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusError    = "error"
)

// Rerank outcome labels reported to Metrics.
const (
	RerankApplied  = "applied"
	RerankFallback = "fallback"
)

// Observation describes one request that reached the backends.
type Observation struct {
	Query     string
	Technique Technique
	// Status is StatusOK, StatusDegraded or StatusError.
	Status  string
	Elapsed time.Duration
	Results int
	// Filters names the filter fields the request set.
	Filters []string
}

// Metrics receives retrieval events. The telemetry package provides the
// Prometheus implementation.
type Metrics interface {
	ObserveSearch(obs Observation)
	BackendFailure(technique string)
	FilterDegraded(backend, field string)
	Rerank(strategy Strategy, outcome string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveSearch(Observation)     {}
func (noopMetrics) BackendFailure(string)         {}
func (noopMetrics) FilterDegraded(string, string) {}
func (noopMetrics) Rerank(Strategy, string)       {}

// Option customizes a Service.
type Option func(*Service)

// WithReranker sets the reranker used when a request asks for reranking.
// The default keeps the fused order.
func WithReranker(r Reranker) Option {
	return func(s *Service) {
		if r != nil {
			s.reranker = r
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithHighlighter replaces the default highlighter.
func WithHighlighter(h *Highlighter) Option {
	return func(s *Service) {
		if h != nil {
			s.highlighter = h
		}
	}
}

type requestIDKey struct{}

// ContextWithRequestID attaches a request id used in Diagnostics and logs.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id set by ContextWithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Service is the retrieval entry point. It holds no per-request state and
// is safe for concurrent use.
type Service struct {
	vector   store.VectorIndex
	keyword  store.KeywordIndex
	records  store.RecordStore
	embedder embed.Embedder

	cfg         Config
	translator  *filter.Translator
	fusion      *RRFFusion
	reranker    Reranker
	highlighter *Highlighter
	metrics     Metrics
	logger      *slog.Logger
}

// NewService wires the retrieval collaborators.
func NewService(
	vector store.VectorIndex,
	keyword store.KeywordIndex,
	records store.RecordStore,
	embedder embed.Embedder,
	cfg Config,
	opts ...Option,
) (*Service, error) {
	switch {
	case vector == nil:
		return nil, fmt.Errorf("%w: vector index", ErrNilDependency)
	case keyword == nil:
		return nil, fmt.Errorf("%w: keyword index", ErrNilDependency)
	case records == nil:
		return nil, fmt.Errorf("%w: record store", ErrNilDependency)
	case embedder == nil:
		return nil, fmt.Errorf("%w: embedder", ErrNilDependency)
	}

	cfg = cfg.withDefaults()
	s := &Service{
		vector:      vector,
		keyword:     keyword,
		records:     records,
		embedder:    embedder,
		cfg:         cfg,
		translator:  filter.NewTranslator(vector.Capabilities(), keyword.Capabilities()),
		fusion:      NewRRFFusionWithK(cfg.RRFConstant),
		reranker:    NoopReranker{},
		highlighter: NewHighlighter(),
		metrics:     noopMetrics{},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the effective configuration.
func (s *Service) Config() Config { return s.cfg }

// Search validates a boundary request and runs it. An invalid query,
// technique, top_k or filter fails before any backend is called.
func (s *Service) Search(ctx context.Context, req Request) (*Response, error) {
	requestID := s.requestID(ctx)
	s.logState(requestID, "received")

	technique, err := ParseTechnique(req.Technique)
	if err != nil {
		return nil, err
	}
	if req.TopK < 0 || req.TopK > s.cfg.MaxTopK {
		return nil, fmt.Errorf("%w: top_k must be between 1 and %d", ErrInvalidRequest, s.cfg.MaxTopK)
	}

	s.logState(requestID, "filtering")
	f, err := filter.FromParams(req.Filters)
	if err != nil {
		return nil, err
	}

	return s.run(ctx, plan{
		requestID: requestID,
		query:     req.Query,
		filter:    f,
		technique: technique,
		topK:      req.TopK,
		rerank:    req.Rerank,
	})
}

// SemanticSearch runs vector search only. topK <= 0 uses DefaultTopK.
func (s *Service) SemanticSearch(ctx context.Context, query string, f filter.SearchFilter, topK int) (*Response, error) {
	return s.run(ctx, plan{requestID: s.requestID(ctx), query: query, filter: f, technique: TechniqueSemantic, topK: topK})
}

// KeywordSearch runs keyword search only. topK <= 0 uses DefaultTopK.
func (s *Service) KeywordSearch(ctx context.Context, query string, f filter.SearchFilter, topK int) (*Response, error) {
	return s.run(ctx, plan{requestID: s.requestID(ctx), query: query, filter: f, technique: TechniqueKeyword, topK: topK})
}

// HybridSearch runs both techniques concurrently and fuses them. A failed
// or empty technique degrades the response; only both failing is an error.
func (s *Service) HybridSearch(ctx context.Context, query string, f filter.SearchFilter, topK int, rerank bool) (*Response, error) {
	return s.run(ctx, plan{requestID: s.requestID(ctx), query: query, filter: f, technique: TechniqueHybrid, topK: topK, rerank: rerank})
}

// plan is one validated request.
type plan struct {
	requestID string
	query     string
	filter    filter.SearchFilter
	technique Technique
	topK      int // 0 = not set
	rerank    bool
}

// sizes returns the number of results to return and the number of fused
// candidates to keep before reranking.
func (s *Service) sizes(p plan) (resultSize, candidates int) {
	if p.rerank {
		if p.topK > 0 {
			return p.topK, max(s.cfg.RerankCandidates, p.topK)
		}
		return s.cfg.RerankTopM, max(s.cfg.RerankCandidates, s.cfg.RerankTopM)
	}
	if p.topK > 0 {
		return p.topK, p.topK
	}
	return s.cfg.DefaultTopK, s.cfg.DefaultTopK
}

func (s *Service) run(ctx context.Context, p plan) (*Response, error) {
	start := time.Now()

	query := strings.TrimSpace(p.query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is empty", ErrInvalidRequest)
	}
	if utf8.RuneCountInString(query) > s.cfg.MaxQueryLength {
		return nil, fmt.Errorf("%w: query exceeds %d characters", ErrInvalidRequest, s.cfg.MaxQueryLength)
	}
	if p.topK > s.cfg.MaxTopK {
		return nil, fmt.Errorf("%w: top_k must be between 1 and %d", ErrInvalidRequest, s.cfg.MaxTopK)
	}
	if p.topK < 0 {
		p.topK = 0
	}

	resultSize, candidateCount := s.sizes(p)
	diag := Diagnostics{
		RequestID:     p.requestID,
		Technique:     p.technique,
		FilterApplied: make(map[string]bool, 2),
	}

	translation := s.translator.Translate(p.filter)
	diag.FilterWarnings = s.reportFilterWarnings(p, translation)

	var results []*RetrievalResult
	var err error
	switch p.technique {
	case TechniqueHybrid:
		diag.FilterApplied[s.vector.Name()] = translation.VectorFullyApplied
		diag.FilterApplied[s.keyword.Name()] = translation.KeywordFullyApplied
		results, err = s.hybrid(ctx, p, translation, max(s.cfg.CandidatePool, candidateCount), &diag)
	case TechniqueSemantic:
		diag.FilterApplied[s.vector.Name()] = translation.VectorFullyApplied
		results, err = s.single(ctx, p, SourceSemantic, s.semanticBranch(query, translation.Vector, candidateCount), s.vector.NormalizeScore, &diag)
	case TechniqueKeyword:
		diag.FilterApplied[s.keyword.Name()] = translation.KeywordFullyApplied
		results, err = s.single(ctx, p, SourceKeyword, s.keywordBranch(query, translation.Keyword, candidateCount), s.keyword.NormalizeScore, &diag)
	default:
		err = fmt.Errorf("%w: unknown technique %q", ErrInvalidRequest, p.technique)
	}
	if err != nil {
		s.observe(p, StatusError, time.Since(start), 0)
		return nil, err
	}

	// Missing records are dropped before the cut, so they do not cost slots.
	results, err = s.attachRecords(ctx, p, results)
	if err != nil {
		s.observe(p, StatusError, time.Since(start), 0)
		return nil, err
	}
	if len(results) > candidateCount {
		results = results[:candidateCount]
	}
	if p.technique == TechniqueHybrid {
		normalizeFused(results)
	}

	if p.rerank {
		results = s.rerank(ctx, p, query, results, resultSize, &diag)
	} else if len(results) > resultSize {
		results = results[:resultSize]
	}

	s.logState(p.requestID, "formatting")
	resp := &Response{
		Results:     s.format(query, results),
		Diagnostics: diag,
	}
	resp.Diagnostics.Elapsed = time.Since(start)

	status := StatusOK
	if diag.Degraded {
		status = StatusDegraded
	}
	s.observe(p, status, resp.Diagnostics.Elapsed, len(resp.Results))
	s.logState(p.requestID, "done",
		slog.Bool("degraded", diag.Degraded),
		slog.Int("results", len(resp.Results)),
		slog.Duration("elapsed", resp.Diagnostics.Elapsed))

	return resp, nil
}

func (s *Service) observe(p plan, status string, elapsed time.Duration, results int) {
	s.metrics.ObserveSearch(Observation{
		Query:     strings.TrimSpace(p.query),
		Technique: p.technique,
		Status:    status,
		Elapsed:   elapsed,
		Results:   results,
		Filters:   p.filter.Fields(),
	})
}

func (s *Service) semanticBranch(query string, pred filter.VectorPredicate, topK int) branchFunc {
	return func(ctx context.Context) ([]*store.RankedHit, error) {
		vec, err := s.embedder.Embed(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		return s.vector.Search(ctx, vec, pred, topK)
	}
}

func (s *Service) keywordBranch(query string, pred filter.KeywordPredicate, topK int) branchFunc {
	return func(ctx context.Context) ([]*store.RankedHit, error) {
		return s.keyword.Search(ctx, query, pred, topK)
	}
}

// single runs one technique. Its failure fails the request.
func (s *Service) single(
	ctx context.Context,
	p plan,
	source string,
	fn branchFunc,
	normalize func(float64) float64,
	diag *Diagnostics,
) ([]*RetrievalResult, error) {
	s.logState(p.requestID, "searching")
	out := runBranch(ctx, s.cfg.BackendTimeout, fn)
	if out.Err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		backendErr := s.backendFailed(p, source, out, diag)
		return nil, errors.Join(ErrServiceUnavailable, backendErr)
	}
	if len(out.Hits) == 0 {
		diag.EmptyTechniques = append(diag.EmptyTechniques, source)
	}

	results := make([]*RetrievalResult, 0, len(out.Hits))
	for i, hit := range out.Hits {
		results = append(results, &RetrievalResult{
			ChunkID:         hit.ChunkID,
			NormalizedScore: normalize(hit.RawScore),
			Ranks:           map[string]int{source: i + 1},
			matchedTerms:    hit.MatchedTerms,
		})
	}
	return results, nil
}

// hybrid runs both techniques through the join point and fuses them.
func (s *Service) hybrid(
	ctx context.Context,
	p plan,
	translation filter.Translation,
	pool int,
	diag *Diagnostics,
) ([]*RetrievalResult, error) {
	query := strings.TrimSpace(p.query)

	s.logState(p.requestID, "searching", slog.Int("candidates", pool))
	joint := runJoint(ctx, s.cfg.BackendTimeout,
		s.semanticBranch(query, translation.Vector, pool),
		s.keywordBranch(query, translation.Keyword, pool),
	)

	var failures []error
	lists := make([]RankedList, 0, 2)
	for _, branch := range []struct {
		source string
		out    outcome
	}{
		{SourceSemantic, joint.Semantic},
		{SourceKeyword, joint.Keyword},
	} {
		switch {
		case branch.out.Err != nil:
			failures = append(failures, s.backendFailed(p, branch.source, branch.out, diag))
			diag.Degraded = true
		case len(branch.out.Hits) == 0:
			diag.EmptyTechniques = append(diag.EmptyTechniques, branch.source)
			diag.Degraded = true
		}
		lists = append(lists, RankedList{Source: branch.source, Hits: branch.out.Hits})
	}

	if len(failures) == len(lists) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Join(append([]error{ErrServiceUnavailable}, failures...)...)
	}
	if diag.Degraded {
		s.logState(p.requestID, "degraded",
			slog.Any("empty_techniques", diag.EmptyTechniques),
			slog.Int("failed_techniques", len(failures)))
	}

	s.logState(p.requestID, "fusing")
	fused := s.fusion.Fuse(lists...)

	results := make([]*RetrievalResult, len(fused))
	for i, fr := range fused {
		results[i] = &RetrievalResult{
			ChunkID:      fr.ChunkID,
			FusionScore:  fr.Score,
			Ranks:        fr.Ranks,
			matchedTerms: fr.MatchedTerms,
		}
	}
	return results, nil
}

// backendFailed records a failed technique in diagnostics, logs and metrics.
func (s *Service) backendFailed(p plan, source string, out outcome, diag *Diagnostics) error {
	backend := s.vector.Name()
	if source == SourceKeyword {
		backend = s.keyword.Name()
	}
	err := &BackendUnavailableError{Technique: source, Backend: backend, Cause: out.Err}

	if diag.BackendErrors == nil {
		diag.BackendErrors = make(map[string]string, 2)
	}
	diag.BackendErrors[source] = err.Error()
	s.metrics.BackendFailure(source)
	s.logger.Warn("retrieval_backend_failed",
		slog.String("request_id", p.requestID),
		slog.String("technique", source),
		slog.String("backend", backend),
		slog.Duration("elapsed", out.Elapsed),
		slog.String("error", out.Err.Error()))
	return err
}

func (s *Service) reportFilterWarnings(p plan, t filter.Translation) []filter.DegradedFilterWarning {
	if len(t.Warnings) == 0 {
		return nil
	}
	relevant := make([]filter.DegradedFilterWarning, 0, len(t.Warnings))
	for _, w := range t.Warnings {
		if p.technique == TechniqueSemantic && w.Backend != s.vector.Name() {
			continue
		}
		if p.technique == TechniqueKeyword && w.Backend != s.keyword.Name() {
			continue
		}
		relevant = append(relevant, w)
		s.metrics.FilterDegraded(w.Backend, w.Field)
		s.logger.Info("filter_degraded",
			slog.String("request_id", p.requestID),
			slog.String("backend", w.Backend),
			slog.String("field", w.Field),
			slog.String("reason", w.Reason))
	}
	if len(relevant) == 0 {
		return nil
	}
	return relevant
}

// attachRecords fills text and metadata in one batch lookup. Results whose
// record is missing are dropped.
func (s *Service) attachRecords(ctx context.Context, p plan, results []*RetrievalResult) ([]*RetrievalResult, error) {
	if len(results) == 0 {
		return results, nil
	}

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ChunkID
	}
	// A caller that gave up mid-search still gets what completed, so the
	// lookup outlives the cancellation under its own bound.
	lookupCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), s.cfg.BackendTimeout)
		defer cancel()
	}
	records, err := s.records.GetChunks(lookupCtx, ids)
	if err != nil {
		if lookupCtx.Err() != nil {
			return nil, lookupCtx.Err()
		}
		return nil, errors.Join(ErrServiceUnavailable, fmt.Errorf("fetch chunk records: %w", err))
	}

	kept := results[:0]
	for _, r := range results {
		rec, ok := records[r.ChunkID]
		if !ok || rec == nil {
			s.logger.Warn("chunk_record_missing",
				slog.String("request_id", p.requestID),
				slog.String("chunk_id", r.ChunkID))
			continue
		}
		r.DocumentID = rec.DocumentID
		r.Text = rec.Text
		r.Metadata = rec.Metadata
		kept = append(kept, r)
	}
	return kept, nil
}

// normalizeFused divides fusion scores by the maximum so the top result
// scores 1 and order is preserved.
func normalizeFused(results []*RetrievalResult) {
	var maxScore float64
	for _, r := range results {
		maxScore = max(maxScore, r.FusionScore)
	}
	for _, r := range results {
		if maxScore > 0 {
			r.NormalizedScore = r.FusionScore / maxScore
		}
	}
}

// rerank applies the reranker to the candidates and falls back to the
// un-reranked top-M on failure.
func (s *Service) rerank(ctx context.Context, p plan, query string, candidates []*RetrievalResult, topM int, diag *Diagnostics) []*RetrievalResult {
	s.logState(p.requestID, "reranking", slog.Int("candidates", len(candidates)), slog.Int("top_m", topM))
	strategy := s.reranker.Strategy()
	diag.RerankStrategy = string(strategy)

	reranked, err := s.reranker.Rerank(ctx, query, candidates, topM)
	if err != nil {
		failure := &RerankFailureError{Strategy: strategy, Cause: err}
		diag.RerankError = failure.Error()
		s.metrics.Rerank(strategy, RerankFallback)
		s.logger.Warn("rerank_fallback",
			slog.String("request_id", p.requestID),
			slog.String("strategy", string(strategy)),
			slog.String("error", err.Error()))
		return candidates[:limitTopM(len(candidates), topM)]
	}

	diag.Reranked = true
	s.metrics.Rerank(strategy, RerankApplied)
	for _, r := range reranked {
		if r.RerankScore != nil {
			r.NormalizedScore = *r.RerankScore
		}
	}
	return reranked
}

// format highlights and clamps the final results.
func (s *Service) format(query string, results []*RetrievalResult) []RetrievalResult {
	queryTerms := store.UniqueTokens(store.Tokenize(query))

	out := make([]RetrievalResult, len(results))
	for i, r := range results {
		terms := r.matchedTerms
		if len(terms) == 0 {
			terms = queryTerms
		}
		res := *r
		res.NormalizedScore = store.Clamp01(res.NormalizedScore)
		if r.RerankScore != nil {
			score := store.Clamp01(*r.RerankScore)
			res.RerankScore = &score
		}
		res.Highlight = s.highlighter.Highlight(res.Text, terms)
		res.matchedTerms = nil
		out[i] = res
	}
	return out
}

func (s *Service) requestID(ctx context.Context) string {
	if id := RequestIDFromContext(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}

func (s *Service) logState(requestID, state string, attrs ...slog.Attr) {
	args := make([]any, 0, len(attrs)+2)
	args = append(args, slog.String("request_id", requestID), slog.String("state", state))
	for _, a := range attrs {
		args = append(args, a)
	}
	s.logger.Debug("search_state", args...)
}
