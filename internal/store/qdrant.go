package store

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
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"

	"github.com/Aman-CERP/bulletinsearch/internal/chunk"
	amerrors "github.com/Aman-CERP/bulletinsearch/internal/errors"
	"github.com/Aman-CERP/bulletinsearch/internal/filter"
	"github.com/Aman-CERP/bulletinsearch/pkg/version"
)

// QdrantConfig configures the Qdrant REST client.
type QdrantConfig struct {
	URL        string
	Collection string
	APIKey     string
	Dimensions int
	Timeout    time.Duration

	// Capabilities describes the payload layout of the collection.
	Capabilities filter.VectorCapabilities

	Breaker amerrors.BreakerConfig
}

// DefaultQdrantConfig returns defaults for the deployed collection layout:
// entities as a keyword array and a combined "YYYY-MM" date field.
func DefaultQdrantConfig() QdrantConfig {
	return QdrantConfig{
		URL:        "http://localhost:6333",
		Collection: "bulletin_chunks",
		Timeout:    10 * time.Second,
		Capabilities: filter.VectorCapabilities{
			Backend:    "qdrant",
			AnyOf:      true,
			DateLayout: filter.DateCombined,
		},
		Breaker: amerrors.DefaultBreakerConfig(),
	}
}

// QdrantIndex implements VectorIndex against a Qdrant collection over REST.
//
// Filters are pushed down as filter.must conditions. Scores are cosine
// similarities in [-1,1]; NormalizeScore maps them with (s+1)/2. Results
// keep the server's order.
type QdrantIndex struct {
	baseURL    string
	collection string
	apiKey     string
	dims       int
	caps       filter.VectorCapabilities
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]

	ensureMu sync.Mutex
	ensured  bool
}

var (
	_ VectorIndex  = (*QdrantIndex)(nil)
	_ VectorWriter = (*QdrantIndex)(nil)
)

// NewQdrantIndex creates a client. No request is made until first use.
func NewQdrantIndex(cfg QdrantConfig) (*QdrantIndex, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("qdrant: url is required")
	}
	if strings.TrimSpace(cfg.Collection) == "" {
		return nil, fmt.Errorf("qdrant: collection is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultQdrantConfig().Timeout
	}
	if cfg.Capabilities.Backend == "" {
		cfg.Capabilities.Backend = "qdrant"
	}

	return &QdrantIndex{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		collection: cfg.Collection,
		apiKey:     cfg.APIKey,
		dims:       cfg.Dimensions,
		caps:       cfg.Capabilities,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    amerrors.NewCircuitBreaker[[]byte]("qdrant", cfg.Breaker),
	}, nil
}

// Name implements VectorIndex.
func (q *QdrantIndex) Name() string { return q.caps.Backend }

// Capabilities implements VectorIndex.
func (q *QdrantIndex) Capabilities() filter.VectorCapabilities { return q.caps }

// NormalizeScore implements VectorIndex.
func (q *QdrantIndex) NormalizeScore(raw float64) float64 { return CosineToUnit(raw) }

// qdrantStatusError is a non-2xx response.
type qdrantStatusError struct {
	Status int
	Body   string
}

func (e *qdrantStatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("qdrant status %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("qdrant status %d", e.Status)
}

// do sends a JSON request through the circuit breaker and returns the body.
func (q *QdrantIndex) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal qdrant request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	return q.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, body)
		if err != nil {
			return nil, fmt.Errorf("create qdrant request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", version.UserAgent())
		if q.apiKey != "" {
			req.Header.Set("api-key", q.apiKey)
		}

		resp, err := q.httpClient.Do(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("qdrant request: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
		if err != nil {
			return nil, fmt.Errorf("read qdrant response: %w", err)
		}
		if resp.StatusCode >= 300 {
			msg := strings.TrimSpace(string(data))
			if len(msg) > 512 {
				msg = msg[:512]
			}
			return nil, &qdrantStatusError{Status: resp.StatusCode, Body: msg}
		}
		return data, nil
	})
}

// buildQdrantFilter converts a predicate into a Qdrant filter object.
// It returns nil for an empty predicate.
func buildQdrantFilter(pred filter.VectorPredicate) map[string]any {
	if pred.IsEmpty() {
		return nil
	}
	must := make([]map[string]any, 0, len(pred.Conditions))
	for _, c := range pred.Conditions {
		switch c.Op {
		case filter.OpEq:
			must = append(must, map[string]any{"key": c.Field, "match": map[string]any{"value": c.Values[0]}})
		case filter.OpIn, filter.OpAny:
			must = append(must, map[string]any{"key": c.Field, "match": map[string]any{"any": c.Values}})
		case filter.OpGte:
			must = append(must, map[string]any{"key": c.Field, "range": map[string]any{"gte": c.Values[0]}})
		case filter.OpLte:
			must = append(must, map[string]any{"key": c.Field, "range": map[string]any{"lte": c.Values[0]}})
		}
	}
	return map[string]any{"must": must}
}

// Search implements VectorIndex.
func (q *QdrantIndex) Search(ctx context.Context, query []float32, pred filter.VectorPredicate, topK int) ([]*RankedHit, error) {
	if q.dims > 0 && len(query) != q.dims {
		return nil, ErrDimensionMismatch{Expected: q.dims, Got: len(query)}
	}
	if topK <= 0 {
		return []*RankedHit{}, nil
	}

	reqBody := map[string]any{
		"vector":       query,
		"limit":        topK,
		"with_payload": []string{"chunk_id"},
	}
	if f := buildQdrantFilter(pred); f != nil {
		reqBody["filter"] = f
	}

	data, err := q.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/search", q.collection), reqBody)
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := json.Unmarshal(data, &searchResp); err != nil {
		return nil, fmt.Errorf("decode qdrant search response: %w", err)
	}

	hits := make([]*RankedHit, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		id, _ := r.Payload["chunk_id"].(string)
		if id == "" {
			slog.Warn("qdrant_point_without_chunk_id", slog.String("collection", q.collection))
			continue
		}
		hits = append(hits, &RankedHit{ChunkID: id, RawScore: r.Score, Rank: len(hits) + 1})
	}
	return hits, nil
}

// PointID maps a chunk id to its deterministic Qdrant point id (UUIDv5).
func PointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("bulletinsearch:chunk:"+chunkID)).String()
}

// payloadFor lays out the filterable fields for the collection's date layout.
func (q *QdrantIndex) payloadFor(r *chunk.ChunkRecord) map[string]any {
	m := r.Metadata
	entities := m.Entities
	if entities == nil {
		entities = []string{}
	}
	payload := map[string]any{
		"chunk_id":                r.ID,
		chunk.FieldDocumentID:     r.DocumentID,
		chunk.FieldSectionType:    m.SectionType,
		chunk.FieldTopic:          m.Topic,
		chunk.FieldLanguage:       m.Language,
		chunk.FieldHasTables:      m.HasTables,
		chunk.FieldHasAmounts:     m.HasAmounts,
		chunk.FieldEntities:       entities,
		chunk.FieldJurisdictionID: m.JurisdictionID,
	}
	switch q.caps.DateLayout {
	case filter.DateCombined:
		payload[chunk.FieldDate] = m.Date()
	case filter.DateNone:
	default:
		payload[chunk.FieldYear] = m.Year
		payload[chunk.FieldMonth] = m.Month
	}
	return payload
}

// Upsert implements VectorWriter. The collection is created on first use.
func (q *QdrantIndex) Upsert(ctx context.Context, records []*chunk.ChunkRecord, vectors [][]float32) error {
	if len(records) == 0 {
		return nil
	}
	if len(records) != len(vectors) {
		return fmt.Errorf("records and vectors length mismatch: %d vs %d", len(records), len(vectors))
	}
	for _, v := range vectors {
		if q.dims > 0 && len(v) != q.dims {
			return ErrDimensionMismatch{Expected: q.dims, Got: len(v)}
		}
	}
	if err := q.ensureCollection(ctx, len(vectors[0])); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}
	points := make([]point, len(records))
	for i, r := range records {
		points[i] = point{ID: PointID(r.ID), Vector: vectors[i], Payload: q.payloadFor(r)}
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", q.collection)
	if _, err := q.do(ctx, http.MethodPut, path, map[string]any{"points": points}); err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

func (q *QdrantIndex) ensureCollection(ctx context.Context, vectorSize int) error {
	q.ensureMu.Lock()
	defer q.ensureMu.Unlock()

	if q.ensured {
		return nil
	}

	path := fmt.Sprintf("/collections/%s", q.collection)
	_, err := q.do(ctx, http.MethodGet, path, nil)
	if err == nil {
		q.ensured = true
		return nil
	}
	var statusErr *qdrantStatusError
	if !errors.As(err, &statusErr) || statusErr.Status != http.StatusNotFound {
		return fmt.Errorf("qdrant get collection: %w", err)
	}

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	if _, err := q.do(ctx, http.MethodPut, path, reqBody); err != nil {
		if errors.As(err, &statusErr) && statusErr.Status == http.StatusConflict {
			q.ensured = true
			return nil
		}
		return fmt.Errorf("qdrant create collection: %w", err)
	}

	slog.Info("qdrant_collection_created",
		slog.String("collection", q.collection),
		slog.Int("dimensions", vectorSize))
	q.ensured = true
	return nil
}

// Close releases idle connections.
func (q *QdrantIndex) Close() error {
	q.httpClient.CloseIdleConnections()
	return nil
}
