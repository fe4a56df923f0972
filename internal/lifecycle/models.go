// Package lifecycle checks and prepares the Ollama embedding model used for
// semantic search and indexing.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultHost = "http://localhost:11434"
	// DefaultModel handles Spanish and the co-official languages.
	DefaultModel = "nomic-embed-text"

	ReadyPollInterval    = 100 * time.Millisecond
	MaxReadyPollInterval = 2 * time.Second

	defaultRequestTimeout = 5 * time.Second
	pingTimeout           = 2 * time.Second
	maxErrorBody          = 4 << 10
)

// ErrNoModel is returned by ResolveModel when no candidate is installed.
var ErrNoModel = errors.New("no candidate model is installed")

// StatusError is a non-200 answer from the Ollama API.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ollama returned status %d: %s", e.Status, e.Body)
}

// ModelManager talks to an Ollama server about its models.
type ModelManager struct {
	host       string
	client     *http.Client
	pullClient *http.Client
}

// Option configures a ModelManager.
type Option func(*ModelManager)

// WithHTTPClient sends model listing requests through c, so callers that
// already hold a pooled client can share it. Pulls keep their own client.
func WithHTTPClient(c *http.Client) Option {
	return func(m *ModelManager) {
		m.client = c
	}
}

// NewModelManager returns a manager for host, DefaultHost when empty.
func NewModelManager(host string, opts ...Option) *ModelManager {
	if host == "" {
		host = DefaultHost
	}
	m := &ModelManager{
		host:       strings.TrimRight(host, "/"),
		client:     &http.Client{Timeout: defaultRequestTimeout},
		pullClient: &http.Client{Timeout: PullTimeout},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *ModelManager) Host() string {
	return m.host
}

// IsRunning reports whether GET /api/tags answers 200.
func (m *ModelManager) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	_, err := m.ListModels(ctx)
	return err == nil
}

// WaitForReady polls IsRunning, doubling the interval up to
// MaxReadyPollInterval, until Ollama answers or timeout passes.
func (m *ModelManager) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for interval := ReadyPollInterval; !m.IsRunning(ctx); interval = min(interval*2, MaxReadyPollInterval) {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for Ollama at %s: %w", m.host, ctx.Err())
		case <-time.After(interval):
		}
	}
	return nil
}

// ListModels returns the names of the installed models, tags included.
func (m *ModelManager) ListModels(ctx context.Context) ([]string, error) {
	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := m.getJSON(ctx, "/api/tags", &tags); err != nil {
		return nil, err
	}

	names := make([]string, len(tags.Models))
	for i, model := range tags.Models {
		names[i] = model.Name
	}
	return names, nil
}

func (m *ModelManager) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.host+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to Ollama: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

// HasModel reports whether model is installed, by MatchModel's rules.
func (m *ModelManager) HasModel(ctx context.Context, model string) (bool, error) {
	installed, err := m.ListModels(ctx)
	if err != nil {
		return false, err
	}
	_, ok := MatchModel(installed, model)
	return ok, nil
}

// ResolveModel returns the installed name of the first candidate that is
// installed, or an error wrapping ErrNoModel.
func (m *ModelManager) ResolveModel(ctx context.Context, candidates ...string) (string, error) {
	installed, err := m.ListModels(ctx)
	if err != nil {
		return "", err
	}
	for _, c := range candidates {
		if name, ok := MatchModel(installed, c); ok {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: tried %s", ErrNoModel, strings.Join(candidates, ", "))
}

// MatchModel finds want among installed names, ignoring case. A name
// without a tag matches its ":latest" tag only, since other tags of the
// same model can embed with different dimensions.
func MatchModel(installed []string, want string) (string, bool) {
	want = canonicalModel(want)
	for _, name := range installed {
		if canonicalModel(name) == want {
			return name, true
		}
	}
	return "", false
}

func canonicalModel(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if !strings.Contains(name, ":") {
		name += ":latest"
	}
	return name
}
