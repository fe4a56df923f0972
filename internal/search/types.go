// Package search implements retrieval over bulletin chunks: semantic and
// keyword search run concurrently and fused with Reciprocal Rank Fusion
// (RRF), with one metadata filter applied consistently to both backends and
// an optional reranking pass.
package search

import (
	"fmt"
	"strings"
	"time"

	"github.com/Aman-CERP/bulletinsearch/internal/chunk"
	"github.com/Aman-CERP/bulletinsearch/internal/filter"
)

// Technique selects which retrieval techniques a request runs.
type Technique string

const (
	// TechniqueSemantic runs vector search only.
	TechniqueSemantic Technique = "semantic"

	// TechniqueKeyword runs BM25 keyword search only.
	TechniqueKeyword Technique = "keyword"

	// TechniqueHybrid runs both concurrently and fuses the rankings (default).
	TechniqueHybrid Technique = "hybrid"
)

// ParseTechnique parses a technique name. Empty means hybrid.
func ParseTechnique(s string) (Technique, error) {
	switch Technique(strings.ToLower(strings.TrimSpace(s))) {
	case "", TechniqueHybrid:
		return TechniqueHybrid, nil
	case TechniqueSemantic:
		return TechniqueSemantic, nil
	case TechniqueKeyword:
		return TechniqueKeyword, nil
	default:
		return "", fmt.Errorf("%w: unknown technique %q (valid options: semantic, keyword, hybrid)", ErrInvalidRequest, s)
	}
}

// Request is the boundary input of a search.
type Request struct {
	Query string `json:"query"`

	// TopK is the number of results. Zero means not set: DefaultTopK, or
	// the rerank output size when Rerank is true.
	TopK int `json:"top_k,omitempty"`

	Filters   filter.Params `json:"filters"`
	Technique string        `json:"technique,omitempty"`
	Rerank    bool          `json:"rerank,omitempty"`
}

// RetrievalResult is one formatted search result.
type RetrievalResult struct {
	ChunkID    string         `json:"chunk_id"`
	DocumentID string         `json:"document_id"`
	Text       string         `json:"text"`
	Metadata   chunk.Metadata `json:"metadata"`

	// NormalizedScore is in [0,1] and comparable within one response.
	NormalizedScore float64 `json:"normalized_score"`

	// Highlight is a bounded snippet with matched terms wrapped in marks.
	Highlight string `json:"highlight,omitempty"`

	// RerankScore is set only when a reranker scored this result.
	RerankScore *float64 `json:"rerank_score,omitempty"`

	// FusionScore is the raw RRF score (hybrid only).
	FusionScore float64 `json:"fusion_score,omitempty"`

	// Ranks maps each technique to this result's 1-based position in it.
	Ranks map[string]int `json:"ranks,omitempty"`

	// matchedTerms feeds the highlighter.
	matchedTerms []string
}

// Diagnostics describes how a response was produced.
type Diagnostics struct {
	RequestID string    `json:"request_id,omitempty"`
	Technique Technique `json:"technique"`

	// Degraded is true when a technique failed or returned nothing in
	// hybrid mode. The results are still valid.
	Degraded bool `json:"degraded"`

	// BackendErrors maps a failed technique to its error message.
	BackendErrors map[string]string `json:"backend_errors,omitempty"`

	// EmptyTechniques lists techniques that succeeded with zero hits.
	EmptyTechniques []string `json:"empty_techniques,omitempty"`

	FilterWarnings []filter.DegradedFilterWarning `json:"filter_warnings,omitempty"`

	// FilterApplied reports, per backend, whether every filter field was applied.
	FilterApplied map[string]bool `json:"filter_applied,omitempty"`

	Reranked       bool   `json:"reranked"`
	RerankStrategy string `json:"rerank_strategy,omitempty"`
	RerankError    string `json:"rerank_error,omitempty"`

	Elapsed time.Duration `json:"elapsed_ns"`
}

// Response is the result of a search.
type Response struct {
	Results     []RetrievalResult `json:"results"`
	Diagnostics Diagnostics       `json:"diagnostics"`
}

// Config configures the retrieval service.
type Config struct {
	// DefaultTopK applies when a request sets no top_k (default: 10).
	DefaultTopK int `yaml:"default_top_k"`

	// MaxTopK bounds top_k (default: 100).
	MaxTopK int `yaml:"max_top_k"`

	// CandidatePool is the minimum number of hits requested from each
	// technique in hybrid mode (default: 20).
	CandidatePool int `yaml:"candidate_pool"`

	// RRFConstant is the fusion k (default: 60).
	RRFConstant int `yaml:"rrf_constant"`

	// BackendTimeout bounds each technique independently (default: 5s).
	BackendTimeout time.Duration `yaml:"backend_timeout"`

	// MaxQueryLength bounds the query in runes (default: 1000).
	MaxQueryLength int `yaml:"max_query_length"`

	// RerankCandidates is K, the number of fused candidates handed to the
	// reranker (default: 20).
	RerankCandidates int `yaml:"rerank_candidates"`

	// RerankTopM is M, the reranker output size when top_k is not set (default: 5).
	RerankTopM int `yaml:"rerank_top_m"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		DefaultTopK:      10,
		MaxTopK:          100,
		CandidatePool:    20,
		RRFConstant:      DefaultRRFConstant,
		BackendTimeout:   5 * time.Second,
		MaxQueryLength:   1000,
		RerankCandidates: 20,
		RerankTopM:       5,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DefaultTopK <= 0 {
		c.DefaultTopK = d.DefaultTopK
	}
	if c.MaxTopK <= 0 {
		c.MaxTopK = d.MaxTopK
	}
	if c.CandidatePool <= 0 {
		c.CandidatePool = d.CandidatePool
	}
	if c.RRFConstant <= 0 {
		c.RRFConstant = d.RRFConstant
	}
	if c.BackendTimeout <= 0 {
		c.BackendTimeout = d.BackendTimeout
	}
	if c.MaxQueryLength <= 0 {
		c.MaxQueryLength = d.MaxQueryLength
	}
	if c.RerankCandidates <= 0 {
		c.RerankCandidates = d.RerankCandidates
	}
	if c.RerankTopM <= 0 {
		c.RerankTopM = d.RerankTopM
	}
	return c
}
