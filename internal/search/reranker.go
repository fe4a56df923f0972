package search

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	amerrors "github.com/Aman-CERP/bulletinsearch/internal/errors"
	"github.com/Aman-CERP/bulletinsearch/internal/store"
)

// Strategy names a reranking strategy.
type Strategy string

const (
	// StrategyNoop keeps the fused order.
	StrategyNoop Strategy = "noop"

	// StrategyExternal calls a remote cross-encoder through a Scorer.
	StrategyExternal Strategy = "external"

	// StrategyLocal scores query-term coverage and proximity in-process.
	StrategyLocal Strategy = "local"
)

// ParseStrategy parses a strategy name. Empty means local.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyLocal:
		return StrategyLocal, nil
	case StrategyNoop:
		return StrategyNoop, nil
	case StrategyExternal:
		return StrategyExternal, nil
	default:
		return "", fmt.Errorf("unknown rerank strategy %q (valid options: noop, external, local)", s)
	}
}

// Reranker reorders the top fused candidates. Implementations return at
// most topM results sorted by score descending, ties in input order, and
// never modify the candidates they are given.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []*RetrievalResult, topM int) ([]*RetrievalResult, error)
	Strategy() Strategy
}

// ScoreScale selects how raw external scores map into [0,1].
type ScoreScale string

const (
	// ScaleProbability clamps scores already in [0,1].
	ScaleProbability ScoreScale = "probability"

	// ScaleLogit applies the logistic sigmoid to raw logits.
	ScaleLogit ScoreScale = "logit"
)

// RerankerConfig configures NewReranker.
type RerankerConfig struct {
	Strategy string `yaml:"strategy"`

	// External scorer settings.
	Endpoint   string        `yaml:"endpoint"`
	Model      string        `yaml:"model"`
	Timeout    time.Duration `yaml:"timeout"`
	ScoreScale string        `yaml:"score_scale"`

	// RatePerSecond limits external scorer calls (0 = unlimited).
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`

	Breaker amerrors.BreakerConfig `yaml:"-"`
}

// DefaultRerankerConfig returns the local strategy with external defaults
// filled in for when the strategy is switched.
func DefaultRerankerConfig() RerankerConfig {
	return RerankerConfig{
		Strategy:      string(StrategyLocal),
		Endpoint:      DefaultScorerEndpoint,
		Model:         DefaultScorerModel,
		Timeout:       DefaultScorerTimeout,
		ScoreScale:    string(ScaleProbability),
		RatePerSecond: 10,
		Burst:         5,
		Breaker:       amerrors.DefaultBreakerConfig(),
	}
}

// RerankerOption customizes NewReranker.
type RerankerOption func(*rerankerOptions)

type rerankerOptions struct {
	scorer Scorer
}

// WithScorer replaces the HTTP scorer of the external strategy.
func WithScorer(s Scorer) RerankerOption {
	return func(o *rerankerOptions) { o.scorer = s }
}

// NewReranker builds the configured strategy.
func NewReranker(cfg RerankerConfig, opts ...RerankerOption) (Reranker, error) {
	var o rerankerOptions
	for _, opt := range opts {
		opt(&o)
	}

	strategy, err := ParseStrategy(cfg.Strategy)
	if err != nil {
		return nil, err
	}

	switch strategy {
	case StrategyNoop:
		return NoopReranker{}, nil
	case StrategyLocal:
		return LocalReranker{}, nil
	default:
		scale := ScoreScale(strings.ToLower(cfg.ScoreScale))
		switch scale {
		case "":
			scale = ScaleProbability
		case ScaleProbability, ScaleLogit:
		default:
			return nil, fmt.Errorf("unknown score scale %q (valid options: probability, logit)", cfg.ScoreScale)
		}

		scorer := o.scorer
		if scorer == nil {
			scorer = NewHTTPScorer(HTTPScorerConfig{Endpoint: cfg.Endpoint, Model: cfg.Model, Timeout: cfg.Timeout})
		}

		limit := rate.Inf
		if cfg.RatePerSecond > 0 {
			limit = rate.Limit(cfg.RatePerSecond)
		}
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}

		return &ExternalReranker{
			scorer:  scorer,
			scale:   scale,
			breaker: amerrors.NewCircuitBreaker[[]float64]("rerank", cfg.Breaker),
			limiter: rate.NewLimiter(limit, burst),
		}, nil
	}
}

// =============================================================================
// Noop
// =============================================================================

// NoopReranker returns the first topM candidates unchanged.
type NoopReranker struct{}

// Rerank returns copies of the first topM candidates in input order.
func (NoopReranker) Rerank(_ context.Context, _ string, candidates []*RetrievalResult, topM int) ([]*RetrievalResult, error) {
	n := limitTopM(len(candidates), topM)
	out := make([]*RetrievalResult, n)
	for i := 0; i < n; i++ {
		c := *candidates[i]
		out[i] = &c
	}
	return out, nil
}

// Strategy returns StrategyNoop.
func (NoopReranker) Strategy() Strategy { return StrategyNoop }

// =============================================================================
// External
// =============================================================================

// ExternalReranker scores candidates with a remote cross-encoder. Calls are
// rate limited and pass through a circuit breaker, so a failing scorer is
// skipped quickly and the caller falls back to the fused order.
type ExternalReranker struct {
	scorer  Scorer
	scale   ScoreScale
	breaker *gobreaker.CircuitBreaker[[]float64]
	limiter *rate.Limiter
}

// Rerank scores all candidates in one call and returns the topM best.
func (r *ExternalReranker) Rerank(ctx context.Context, query string, candidates []*RetrievalResult, topM int) ([]*RetrievalResult, error) {
	if len(candidates) == 0 {
		return []*RetrievalResult{}, nil
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rerank rate limit: %w", err)
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Text
	}

	raw, err := r.breaker.Execute(func() ([]float64, error) {
		return r.scorer.Score(ctx, query, texts)
	})
	if err != nil {
		return nil, err
	}
	if len(raw) != len(candidates) {
		return nil, fmt.Errorf("scorer returned %d scores for %d candidates", len(raw), len(candidates))
	}

	scores := make([]float64, len(raw))
	for i, s := range raw {
		scores[i] = r.scaleScore(s)
	}
	return sortByScore(candidates, scores, topM), nil
}

func (r *ExternalReranker) scaleScore(s float64) float64 {
	if math.IsNaN(s) {
		return 0
	}
	if r.scale == ScaleLogit {
		return 1 / (1 + math.Exp(-s))
	}
	return store.Clamp01(s)
}

// Strategy returns StrategyExternal.
func (r *ExternalReranker) Strategy() Strategy { return StrategyExternal }

// =============================================================================
// Local
// =============================================================================

// Local scoring weights. They sum to 1 so scores stay in [0,1].
const (
	localCoverageWeight  = 0.6
	localPriorWeight     = 0.3
	localProximityWeight = 0.1
)

// LocalReranker is a deterministic lexical cross-scorer:
//
//	score = 0.6 × query-term coverage + 0.3 × prior score + 0.1 × bigram proximity
//
// Coverage is the share of distinct query terms present in the text. The
// prior is the candidate's NormalizedScore. Proximity is the share of
// adjacent query-term pairs that appear adjacent and in order; a one-term
// query uses its coverage instead.
type LocalReranker struct{}

// Rerank scores every candidate and returns the topM best.
func (LocalReranker) Rerank(ctx context.Context, query string, candidates []*RetrievalResult, topM int) ([]*RetrievalResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	queryTerms := store.Tokenize(query)
	unique := store.UniqueTokens(queryTerms)

	scores := make([]float64, len(candidates))
	for i, c := range candidates {
		scores[i] = localScore(queryTerms, unique, store.Tokenize(c.Text), c.NormalizedScore)
	}
	return sortByScore(candidates, scores, topM), nil
}

// Strategy returns StrategyLocal.
func (LocalReranker) Strategy() Strategy { return StrategyLocal }

func localScore(queryTerms, unique, docTerms []string, prior float64) float64 {
	if len(unique) == 0 {
		return store.Clamp01(localPriorWeight * store.Clamp01(prior))
	}

	present := make(map[string]struct{}, len(docTerms))
	for _, t := range docTerms {
		present[t] = struct{}{}
	}
	covered := 0
	for _, t := range unique {
		if _, ok := present[t]; ok {
			covered++
		}
	}
	coverage := float64(covered) / float64(len(unique))

	proximity := coverage
	if len(queryTerms) > 1 {
		bigrams := make(map[[2]string]struct{}, len(docTerms))
		for i := 0; i+1 < len(docTerms); i++ {
			bigrams[[2]string{docTerms[i], docTerms[i+1]}] = struct{}{}
		}
		found := 0
		for i := 0; i+1 < len(queryTerms); i++ {
			if _, ok := bigrams[[2]string{queryTerms[i], queryTerms[i+1]}]; ok {
				found++
			}
		}
		proximity = float64(found) / float64(len(queryTerms)-1)
	}

	return store.Clamp01(localCoverageWeight*coverage +
		localPriorWeight*store.Clamp01(prior) +
		localProximityWeight*proximity)
}

// =============================================================================
// Helpers
// =============================================================================

// sortByScore copies candidates, sets RerankScore, sorts by score desc with
// input order breaking ties, and keeps topM.
func sortByScore(candidates []*RetrievalResult, scores []float64, topM int) []*RetrievalResult {
	out := make([]*RetrievalResult, len(candidates))
	for i, c := range candidates {
		cp := *c
		score := scores[i]
		cp.RerankScore = &score
		out[i] = &cp
	}
	sort.SliceStable(out, func(i, j int) bool {
		return *out[i].RerankScore > *out[j].RerankScore
	})
	return out[:limitTopM(len(out), topM)]
}

// limitTopM returns min(n, topM), treating topM <= 0 as unlimited.
func limitTopM(n, topM int) int {
	if topM <= 0 || topM > n {
		return n
	}
	return topM
}
