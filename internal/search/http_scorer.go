package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Aman-CERP/bulletinsearch/pkg/version"
)

// External scorer defaults
const (
	DefaultScorerEndpoint = "http://localhost:9659"
	DefaultScorerModel    = "bge-reranker-v2-m3"
	DefaultScorerTimeout  = 10 * time.Second
)

// Scorer assigns a relevance score to each text for a query. Scores are
// returned in input order; their scale depends on the implementation.
type Scorer interface {
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
}

// HTTPScorerConfig configures an HTTPScorer.
type HTTPScorerConfig struct {
	// Endpoint is the scorer base URL; requests go to {Endpoint}/rerank.
	Endpoint string

	// Model is passed through to the server (optional).
	Model string

	// Timeout bounds one request (default: 10s).
	Timeout time.Duration
}

// HTTPScorer calls a cross-encoder server speaking the common /rerank API:
// request {query, documents, model}, response {results: [{index, score}]}.
type HTTPScorer struct {
	client *http.Client
	config HTTPScorerConfig
	mu     sync.RWMutex
	closed bool
}

// Verify interface implementation at compile time
var _ Scorer = (*HTTPScorer)(nil)

// NewHTTPScorer creates a scorer client. It does not contact the server.
func NewHTTPScorer(cfg HTTPScorerConfig) *HTTPScorer {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultScorerEndpoint
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultScorerTimeout
	}

	return &HTTPScorer{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		config: cfg,
	}
}

// rerankRequest is the JSON request to /rerank endpoint
type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model,omitempty"`
}

// rerankResponse is the JSON response from /rerank endpoint
type rerankResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	} `json:"results"`
}

// Score posts the texts and maps the returned scores back to input order.
// A response that does not score every text is an error.
func (s *HTTPScorer) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, fmt.Errorf("scorer is closed")
	}
	s.mu.RUnlock()

	if len(texts) == 0 {
		return []float64{}, nil
	}

	start := time.Now()
	body, err := json.Marshal(rerankRequest{Query: query, Documents: texts, Model: s.config.Model})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rerank request: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodPost, s.config.Endpoint+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("rerank failed (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode rerank response: %w", err)
	}

	scores := make([]float64, len(texts))
	seen := make([]bool, len(texts))
	for _, r := range result.Results {
		if r.Index < 0 || r.Index >= len(texts) {
			return nil, fmt.Errorf("rerank response index %d out of range", r.Index)
		}
		scores[r.Index] = r.Score
		seen[r.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("rerank response missing score for document %d", i)
		}
	}

	slog.Debug("rerank_http_call",
		slog.Int("doc_count", len(texts)),
		slog.Int("payload_bytes", len(body)),
		slog.Duration("total", time.Since(start)))

	return scores, nil
}

// Close releases idle connections.
func (s *HTTPScorer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if transport, ok := s.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
	return nil
}
