package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	amerrors "github.com/Aman-CERP/bulletinsearch/internal/errors"
	"github.com/Aman-CERP/bulletinsearch/internal/lifecycle"
)

// ollamaDefaultDimensions is used when the health check is skipped and no
// dimensions are configured.
const ollamaDefaultDimensions = 768

var errUnexpectedDimensions = errors.New("unexpected embedding dimensions")

// OllamaEmbedder embeds through a local or remote Ollama server.
type OllamaEmbedder struct {
	client    *http.Client
	transport *http.Transport
	models    *lifecycle.ModelManager
	config    OllamaConfig
	modelName string
	dims      int
	closed    atomic.Bool
}

var _ Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder connects to Ollama. Unless SkipHealthCheck is set it
// resolves the configured model or the first installed fallback, then
// detects dimensions with one embedding when none are configured.
func NewOllamaEmbedder(ctx context.Context, cfg OllamaConfig) (*OllamaEmbedder, error) {
	cfg = cfg.withDefaults()

	// Requests carry their own deadlines, so the client has no timeout.
	transport := &http.Transport{
		MaxIdleConns:        OllamaPoolSize,
		MaxIdleConnsPerHost: OllamaPoolSize,
		MaxConnsPerHost:     OllamaPoolSize * 2,
		IdleConnTimeout:     30 * time.Second,
	}
	client := &http.Client{Transport: transport}

	e := &OllamaEmbedder{
		client:    client,
		transport: transport,
		models:    lifecycle.NewModelManager(cfg.Host, lifecycle.WithHTTPClient(client)),
		config:    cfg,
		modelName: cfg.Model,
		dims:      cfg.Dimensions,
	}

	if !cfg.SkipHealthCheck {
		if err := e.resolve(ctx); err != nil {
			transport.CloseIdleConnections()
			return nil, err
		}
	}
	if e.dims == 0 {
		e.dims = ollamaDefaultDimensions
	}
	return e, nil
}

func (c OllamaConfig) withDefaults() OllamaConfig {
	if c.Host == "" {
		c.Host = DefaultOllamaHost
	}
	c.Host = strings.TrimRight(c.Host, "/")
	if c.Model == "" {
		c.Model = DefaultOllamaModel
	}
	if c.FallbackModels == nil {
		c.FallbackModels = FallbackOllamaModels
	}
	c.BatchSize = min(max(c.BatchSize, 0), MaxBatchSize)
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	c.MaxRetries = max(c.MaxRetries, 0)
	return c
}

// resolve picks the installed model and, when unset, its dimensions.
func (e *OllamaEmbedder) resolve(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, OllamaConnectTimeout)
	defer cancel()

	candidates := append([]string{e.config.Model}, e.config.FallbackModels...)
	name, err := e.models.ResolveModel(ctx, candidates...)
	if err != nil {
		if errors.Is(err, lifecycle.ErrNoModel) {
			err = fmt.Errorf("no embedding model available: %w", err)
		}
		return amerrors.New(amerrors.ErrCodeNetworkUnavailable, "failed to connect to Ollama or find model", err).
			WithDetail("host", e.config.Host).
			WithSuggestion("Start Ollama and pull an embedding model, or set embeddings.provider to static")
	}
	e.modelName = name

	if e.dims != 0 {
		return nil
	}
	vecs, err := e.doEmbed(ctx, []string{"dimension detection"})
	if err != nil {
		return fmt.Errorf("failed to detect embedding dimensions: %w", err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return errors.New("failed to detect embedding dimensions: empty embedding returned")
	}
	e.dims = len(vecs[0])
	return nil
}

// Embed returns the unit vector of text, or a zero vector for blank text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in requests of at most BatchSize inputs,
// preserving order. Blank texts get zero vectors without a request.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.closed.Load() {
		return nil, errEmbedderClosed
	}

	out := make([][]float32, len(texts))
	var (
		slots []int
		batch []string
	)
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			out[i] = make([]float32, e.dims)
			continue
		}
		slots = append(slots, i)
		batch = append(batch, text)
	}

	for start := 0; start < len(batch); start += e.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+e.config.BatchSize, len(batch))

		vecs, err := e.embedWithRetry(ctx, batch[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch: %w", err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("ollama returned %d embeddings for %d texts", len(vecs), end-start)
		}
		for j, vec := range vecs {
			out[slots[start+j]] = vec
		}
	}
	return out, nil
}

// embedWithRetry retries transport failures, 429 and 5xx answers with
// jittered exponential backoff. Each attempt gets its own Timeout.
func (e *OllamaEmbedder) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	cfg := amerrors.DefaultRetryConfig()
	cfg.MaxRetries = e.config.MaxRetries
	cfg.Jitter = true
	cfg.ShouldRetry = isRetryableOllamaError
	cfg.OnRetry = func(retry int, err error, wait time.Duration) {
		slog.Debug("embedding_retry",
			slog.Int("retry", retry),
			slog.Int("texts_count", len(texts)),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()))
	}

	return amerrors.RetryWithResult(ctx, cfg, func() ([][]float32, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
		return e.doEmbed(attemptCtx, texts)
	})
}

func isRetryableOllamaError(err error) bool {
	var statusErr *lifecycle.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status >= 500 || statusErr.Status == http.StatusTooManyRequests
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, errUnexpectedDimensions)
}

// doEmbed sends one POST /api/embed. A single text goes as a string input.
func (e *OllamaEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	req := ollamaEmbedRequest{Model: e.modelName, Input: texts}
	if len(texts) == 1 {
		req.Input = texts[0]
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &lifecycle.StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	var decoded ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	vecs := make([][]float32, len(decoded.Embeddings))
	for i, raw := range decoded.Embeddings {
		if e.dims > 0 && len(raw) != e.dims {
			return nil, fmt.Errorf("%w: got %d, expected %d", errUnexpectedDimensions, len(raw), e.dims)
		}
		vec := make([]float32, len(raw))
		for j, v := range raw {
			vec[j] = float32(v)
		}
		vecs[i] = normalizeVector(vec)
	}
	return vecs, nil
}

func (e *OllamaEmbedder) Dimensions() int {
	return e.dims
}

// ModelName is the installed model name, tag included.
func (e *OllamaEmbedder) ModelName() string {
	return e.modelName
}

// Available reports whether Ollama answers and still has the model.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	if e.closed.Load() {
		return false
	}
	ok, err := e.models.HasModel(ctx, e.modelName)
	return err == nil && ok
}

// Close releases idle connections. Safe to call twice.
func (e *OllamaEmbedder) Close() error {
	if e.closed.CompareAndSwap(false, true) {
		e.transport.CloseIdleConnections()
	}
	return nil
}
