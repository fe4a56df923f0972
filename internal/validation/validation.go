// Package validation runs data-driven relevance checks against the
// retrieval service.
//
// Query suites are YAML files, so expectations can be tuned without a
// rebuild. Tier 1 queries must find an expected chunk, Tier 2 queries are
// tracked for quality, and negative queries only need to be handled
// cleanly: a normal response or a client error, never a server error.
package validation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	amerrors "github.com/Aman-CERP/bulletinsearch/internal/errors"
	"github.com/Aman-CERP/bulletinsearch/internal/filter"
	"github.com/Aman-CERP/bulletinsearch/internal/search"
)

// QuerySpec defines a test query with expected results.
type QuerySpec struct {
	ID        string        `yaml:"id" json:"id"`     // e.g., "T1-Q7"
	Name      string        `yaml:"name" json:"name"` // Human-readable name
	Query     string        `yaml:"query" json:"query"`
	Technique string        `yaml:"technique,omitempty" json:"technique,omitempty"`
	TopK      int           `yaml:"top_k,omitempty" json:"top_k,omitempty"`
	Filters   filter.Params `yaml:"filters,omitempty" json:"filters,omitempty"`

	// Expected holds chunk ids or document ids; a result matches when its
	// chunk id equals an entry or its document id equals one.
	Expected []string `yaml:"expected,omitempty" json:"expected,omitempty"`
	Notes    string   `yaml:"notes,omitempty" json:"notes,omitempty"`
	Tier     int      `yaml:"-" json:"tier"`
}

// Suite holds all validation queries loaded from YAML.
type Suite struct {
	Tier1    []QuerySpec `yaml:"tier1"`
	Tier2    []QuerySpec `yaml:"tier2"`
	Negative []QuerySpec `yaml:"negative"`
}

// LoadSuite reads a suite file.
func LoadSuite(path string) (*Suite, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read query suite: %w", err)
	}
	defer func() { _ = f.Close() }()

	suite, err := ParseSuite(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return suite, nil
}

// ParseSuite decodes a suite, rejecting unknown keys so a typo in a field
// name does not silently drop an expectation.
func ParseSuite(r io.Reader) (*Suite, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var suite Suite
	if err := dec.Decode(&suite); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse query suite: %w", err)
	}

	seen := make(map[string]bool)
	for tier, specs := range map[int][]QuerySpec{1: suite.Tier1, 2: suite.Tier2, 0: suite.Negative} {
		for i := range specs {
			specs[i].Tier = tier
			if specs[i].ID == "" {
				return nil, fmt.Errorf("query %q has no id", specs[i].Query)
			}
			if seen[specs[i].ID] {
				return nil, fmt.Errorf("duplicate query id %s", specs[i].ID)
			}
			seen[specs[i].ID] = true
			if tier > 0 && len(specs[i].Expected) == 0 {
				return nil, fmt.Errorf("query %s has no expected results", specs[i].ID)
			}
		}
	}
	return &suite, nil
}

// Len returns the number of queries in the suite.
func (s *Suite) Len() int {
	return len(s.Tier1) + len(s.Tier2) + len(s.Negative)
}

// TestResult captures the outcome of a single query test.
type TestResult struct {
	Spec       QuerySpec     `json:"spec"`
	Passed     bool          `json:"passed"`
	Duration   time.Duration `json:"duration_ns"`
	TopResults []string      `json:"top_results"` // Chunk ids returned
	MatchedAt  int           `json:"matched_at"`  // Position of first match (-1 if not found)
	Degraded   bool          `json:"degraded,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// ReciprocalRank is 1/(MatchedAt+1), or 0 without a match.
func (r TestResult) ReciprocalRank() float64 {
	if r.MatchedAt < 0 {
		return 0
	}
	return 1 / float64(r.MatchedAt+1)
}

// ValidationResult captures results of a full validation run.
type ValidationResult struct {
	Timestamp  time.Time    `json:"timestamp"`
	Tier1      []TestResult `json:"tier1"`
	Tier2      []TestResult `json:"tier2"`
	Negative   []TestResult `json:"negative"`
	Tier1Pass  int          `json:"tier1_pass"`
	Tier1Total int          `json:"tier1_total"`
	Tier2Pass  int          `json:"tier2_pass"`
	Tier2Total int          `json:"tier2_total"`
	NegPass    int          `json:"negative_pass"`
	NegTotal   int          `json:"negative_total"`

	// MRR is the mean reciprocal rank over Tier 1 and Tier 2 queries.
	MRR float64 `json:"mrr"`
}

// Tier1PassRate returns the share of Tier 1 queries that passed, 1 when
// there are none.
func (r *ValidationResult) Tier1PassRate() float64 {
	if r.Tier1Total == 0 {
		return 1
	}
	return float64(r.Tier1Pass) / float64(r.Tier1Total)
}

// Failed returns every failed result across tiers.
func (r *ValidationResult) Failed() []TestResult {
	var failed []TestResult
	for _, group := range [][]TestResult{r.Tier1, r.Tier2, r.Negative} {
		for _, tr := range group {
			if !tr.Passed {
				failed = append(failed, tr)
			}
		}
	}
	return failed
}

// Searcher is the part of the retrieval service the validator needs.
type Searcher interface {
	Search(ctx context.Context, req search.Request) (*search.Response, error)
}

// Validator runs validation queries against a Searcher.
type Validator struct {
	searcher Searcher
}

// NewValidator creates a validator over s.
func NewValidator(s Searcher) *Validator {
	return &Validator{searcher: s}
}

// RunQuery executes a single query and returns the result.
func (v *Validator) RunQuery(ctx context.Context, spec QuerySpec) TestResult {
	result := TestResult{
		Spec:      spec,
		MatchedAt: -1,
	}

	start := time.Now()
	resp, err := v.searcher.Search(ctx, search.Request{
		Query:     spec.Query,
		TopK:      spec.TopK,
		Filters:   spec.Filters,
		Technique: spec.Technique,
	})
	result.Duration = time.Since(start)

	if err != nil {
		result.Error = err.Error()
		// Negative queries may be rejected, but only as the caller's fault.
		result.Passed = spec.Tier == 0 && amerrors.Classify(err) == amerrors.ClassBadRequest
		return result
	}

	result.Degraded = resp.Diagnostics.Degraded
	result.TopResults = make([]string, len(resp.Results))
	for i, r := range resp.Results {
		result.TopResults[i] = r.ChunkID
	}

	if len(spec.Expected) == 0 {
		result.Passed = true
	} else {
		result.Passed, result.MatchedAt = checkExpected(resp.Results, spec.Expected)
	}
	return result
}

// RunAll executes all validation queries and returns results.
func (v *Validator) RunAll(ctx context.Context, suite *Suite) *ValidationResult {
	result := &ValidationResult{
		Timestamp: time.Now(),
	}

	var rrSum float64
	var ranked int
	run := func(specs []QuerySpec, out *[]TestResult, pass, total *int) {
		for _, spec := range specs {
			tr := v.RunQuery(ctx, spec)
			*out = append(*out, tr)
			*total++
			if tr.Passed {
				*pass++
			}
			if spec.Tier > 0 {
				rrSum += tr.ReciprocalRank()
				ranked++
			}
		}
	}

	run(suite.Tier1, &result.Tier1, &result.Tier1Pass, &result.Tier1Total)
	run(suite.Tier2, &result.Tier2, &result.Tier2Pass, &result.Tier2Total)
	run(suite.Negative, &result.Negative, &result.NegPass, &result.NegTotal)

	if ranked > 0 {
		result.MRR = rrSum / float64(ranked)
	}
	return result
}

// checkExpected returns the position of the first result matching any
// expected id.
func checkExpected(results []search.RetrievalResult, expected []string) (bool, int) {
	for i, r := range results {
		for _, exp := range expected {
			exp = strings.TrimSpace(exp)
			if r.ChunkID == exp || r.DocumentID == exp {
				return true, i
			}
		}
	}
	return false, -1
}
