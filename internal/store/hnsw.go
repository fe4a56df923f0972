package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	"github.com/Aman-CERP/bulletinsearch/internal/chunk"
	"github.com/Aman-CERP/bulletinsearch/internal/filter"
)

// HNSWIndex implements VectorIndex with the pure Go coder/hnsw graph.
//
// The graph has no payload filtering, so the index keeps each chunk's
// metadata next to the graph and post-filters candidates with
// VectorPredicate.Matches, widening the graph search until topK matches are
// found or the graph is exhausted.
//
// Scores are 1 - d/2 for cosine distance d, already within [0,1].
// Equal scores are ordered by chunk id.
type HNSWIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorStoreConfig

	// ID mapping (chunk id <-> graph key)
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	// records holds filterable fields only; Text is not kept.
	records map[string]*chunk.ChunkRecord

	closed bool
}

// hnswMetadata stores ID mappings and chunk metadata for persistence.
type hnswMetadata struct {
	IDMap   map[string]uint64
	NextKey uint64
	Config  VectorStoreConfig
	Records map[string]*chunk.ChunkRecord
}

var (
	_ VectorIndex  = (*HNSWIndex)(nil)
	_ VectorWriter = (*HNSWIndex)(nil)
	_ Persister    = (*HNSWIndex)(nil)
)

// NewHNSWIndex creates an empty HNSW vector index.
func NewHNSWIndex(cfg VectorStoreConfig) (*HNSWIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("hnsw: dimensions must be positive, got %d", cfg.Dimensions)
	}
	defaults := DefaultVectorStoreConfig(cfg.Dimensions)
	if cfg.Metric == "" {
		cfg.Metric = defaults.Metric
	}
	if cfg.M == 0 {
		cfg.M = defaults.M
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = defaults.EfSearch
	}
	if cfg.Oversample <= 0 {
		cfg.Oversample = defaults.Oversample
	}

	return &HNSWIndex{
		graph:   newGraph(cfg),
		config:  cfg,
		idMap:   make(map[string]uint64),
		keyMap:  make(map[uint64]string),
		records: make(map[string]*chunk.ChunkRecord),
	}, nil
}

func newGraph(cfg VectorStoreConfig) *hnsw.Graph[uint64] {
	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25
	return graph
}

// Name implements VectorIndex.
func (s *HNSWIndex) Name() string { return "hnsw" }

// Capabilities implements VectorIndex. Every condition is evaluated
// in-process, so any-of and separate date parts are supported.
func (s *HNSWIndex) Capabilities() filter.VectorCapabilities {
	return filter.VectorCapabilities{
		Backend:    s.Name(),
		AnyOf:      true,
		DateLayout: filter.DateParts,
	}
}

// NormalizeScore implements VectorIndex.
func (s *HNSWIndex) NormalizeScore(raw float64) float64 {
	return Clamp01(raw)
}

// Upsert inserts or replaces vectors for the given records.
func (s *HNSWIndex) Upsert(ctx context.Context, records []*chunk.ChunkRecord, vectors [][]float32) error {
	if len(records) == 0 {
		return nil
	}
	if len(records) != len(vectors) {
		return fmt.Errorf("records and vectors length mismatch: %d vs %d", len(records), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrIndexClosed
	}

	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(v)}
		}
	}

	for i, r := range records {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Lazy deletion: orphan the old key instead of removing the node,
		// coder/hnsw misbehaves when the last node of a layer is deleted.
		if existingKey, exists := s.idMap[r.ID]; exists {
			delete(s.keyMap, existingKey)
			delete(s.idMap, r.ID)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if s.config.Metric == "cos" {
			normalizeVectorInPlace(vec)
		}

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[r.ID] = key
		s.keyMap[key] = r.ID

		meta := *r
		meta.Text = ""
		meta.Metadata.Entities = append([]string(nil), r.Metadata.Entities...)
		s.records[r.ID] = &meta
	}

	return nil
}

// Search implements VectorIndex.
func (s *HNSWIndex) Search(ctx context.Context, query []float32, pred filter.VectorPredicate, topK int) ([]*RankedHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrIndexClosed
	}
	if len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(query)}
	}
	if topK <= 0 || s.graph.Len() == 0 {
		return []*RankedHit{}, nil
	}

	normalizedQuery := make([]float32, len(query))
	copy(normalizedQuery, query)
	if s.config.Metric == "cos" {
		normalizeVectorInPlace(normalizedQuery)
	}

	total := s.graph.Len()
	k := topK
	if !pred.IsEmpty() || len(s.keyMap) < total {
		k = topK * s.config.Oversample
	}

	var hits []*RankedHit
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if k > total {
			k = total
		}

		hits = hits[:0]
		for _, node := range s.graph.Search(normalizedQuery, k) {
			id, ok := s.keyMap[node.Key]
			if !ok {
				continue // orphaned by lazy deletion
			}
			if !pred.IsEmpty() {
				if rec := s.records[id]; rec == nil || !pred.Matches(rec) {
					continue
				}
			}
			distance := s.graph.Distance(normalizedQuery, node.Value)
			hits = append(hits, &RankedHit{ChunkID: id, RawScore: distanceToScore(distance, s.config.Metric)})
		}

		if len(hits) >= topK || k >= total {
			break
		}
		k *= 2
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].RawScore != hits[j].RawScore {
			return hits[i].RawScore > hits[j].RawScore
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	for i, h := range hits {
		h.Rank = i + 1
	}

	slog.Debug("hnsw_search",
		slog.Int("top_k", topK),
		slog.Int("searched", k),
		slog.Int("conditions", len(pred.Conditions)),
		slog.Int("results", len(hits)))

	return hits, nil
}

// Delete removes vectors by chunk id using lazy deletion.
func (s *HNSWIndex) Delete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrIndexClosed
	}
	for _, id := range ids {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, id)
			delete(s.records, id)
		}
	}
	return nil
}

// Count returns the number of live vectors.
func (s *HNSWIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}
	return len(s.idMap)
}

// Save persists the graph and its metadata next to each other.
// Both files are written to a temp path and renamed.
func (s *HNSWIndex) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrIndexClosed
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpIndexPath := path + ".tmp"
	file, err := os.Create(tmpIndexPath)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	if err := s.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmpIndexPath)
		return fmt.Errorf("failed to export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpIndexPath)
		return fmt.Errorf("failed to close index file: %w", err)
	}
	if err := os.Rename(tmpIndexPath, path); err != nil {
		os.Remove(tmpIndexPath)
		return fmt.Errorf("failed to rename index file: %w", err)
	}

	if err := s.saveMetadata(path + ".meta"); err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}
	return nil
}

func (s *HNSWIndex) saveMetadata(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp metadata file: %w", err)
	}

	meta := hnswMetadata{
		IDMap:   s.idMap,
		NextKey: s.nextKey,
		Config:  s.config,
		Records: s.records,
	}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		if closeErr := file.Close(); closeErr != nil {
			slog.Warn("failed to close temp file during cleanup", slog.String("error", closeErr.Error()))
		}
		os.Remove(tmpPath)
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close metadata file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// LoadHNSWIndex opens an index previously written by Save.
func LoadHNSWIndex(path string) (*HNSWIndex, error) {
	metaFile, err := os.Open(path + ".meta")
	if err != nil {
		return nil, fmt.Errorf("open hnsw metadata: %w", err)
	}
	defer func() {
		if err := metaFile.Close(); err != nil {
			slog.Warn("failed to close metadata file", slog.String("error", err.Error()))
		}
	}()

	var meta hnswMetadata
	if err := gob.NewDecoder(metaFile).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode hnsw metadata: %w", err)
	}

	idx, err := NewHNSWIndex(meta.Config)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index file: %w", err)
	}
	defer file.Close()

	// coder/hnsw Import requires an io.ByteReader
	if err := idx.graph.Import(bufio.NewReader(file)); err != nil {
		return nil, fmt.Errorf("failed to import graph: %w", err)
	}

	idx.idMap = meta.IDMap
	idx.nextKey = meta.NextKey
	if meta.Records != nil {
		idx.records = meta.Records
	}
	for id, key := range idx.idMap {
		idx.keyMap[key] = id
	}
	return idx, nil
}

// Close releases resources.
func (s *HNSWIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

// normalizeVectorInPlace normalizes a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}
