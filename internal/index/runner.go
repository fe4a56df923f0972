// Package index loads chunk records and writes them into the vector and
// keyword backends queried by retrieval.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/bulletinsearch/internal/chunk"
	"github.com/Aman-CERP/bulletinsearch/internal/embed"
	"github.com/Aman-CERP/bulletinsearch/internal/store"
)

// Stage names a phase of an indexing run.
type Stage string

const (
	StageEmbedding Stage = "embedding"
	StageSaving    Stage = "saving"
)

// ProgressEvent reports how many records have been written.
type ProgressEvent struct {
	Stage   Stage
	Current int
	Total   int
}

// ProgressFunc receives progress events. It is called from the Run
// goroutine only.
type ProgressFunc func(ProgressEvent)

// RunnerConfig configures an indexing run.
type RunnerConfig struct {
	// DataDir receives the files of backends that persist locally
	// (store.Persister). Empty skips saving.
	DataDir string

	// BatchSize is the number of records embedded and written together
	// (default: embed.DefaultBatchSize).
	BatchSize int

	// InterBatchDelay is a pause between batches for shared embedders.
	InterBatchDelay time.Duration
}

// RunnerResult contains the outcome of an indexing run.
type RunnerResult struct {
	Chunks   int
	Batches  int
	Duration time.Duration

	EmbedDuration time.Duration
	WriteDuration time.Duration
	SaveDuration  time.Duration
}

// RunnerDependencies contains the injected dependencies for Runner.
type RunnerDependencies struct {
	Vector   store.VectorWriter
	Keyword  store.KeywordWriter
	Embedder embed.Embedder

	// Progress is optional.
	Progress ProgressFunc
}

// Runner embeds chunk records and writes them into both backends.
type Runner struct {
	vector   store.VectorWriter
	keyword  store.KeywordWriter
	embedder embed.Embedder
	progress ProgressFunc
}

// NewRunner creates a Runner with injected dependencies.
func NewRunner(deps RunnerDependencies) (*Runner, error) {
	if deps.Vector == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if deps.Keyword == nil {
		return nil, fmt.Errorf("keyword store is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	progress := deps.Progress
	if progress == nil {
		progress = func(ProgressEvent) {}
	}

	return &Runner{
		vector:   deps.Vector,
		keyword:  deps.Keyword,
		embedder: deps.Embedder,
		progress: progress,
	}, nil
}

// Run embeds records batch by batch and upserts each batch into the
// vector and keyword backends concurrently. Records already written stay
// written when a later batch fails; upserts are idempotent, so rerunning
// the same file completes the index.
func (r *Runner) Run(ctx context.Context, records []*chunk.ChunkRecord, cfg RunnerConfig) (*RunnerResult, error) {
	start := time.Now()
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = embed.DefaultBatchSize
	}

	result := &RunnerResult{}
	if len(records) == 0 {
		result.Duration = time.Since(start)
		return result, nil
	}

	r.progress(ProgressEvent{Stage: StageEmbedding, Total: len(records)})

	for batchStart := 0; batchStart < len(records); batchStart += batchSize {
		if err := ctx.Err(); err != nil {
			slog.Info("index_interrupted",
				slog.Int("written", batchStart),
				slog.Int("total", len(records)))
			return nil, fmt.Errorf("indexing interrupted at %d/%d chunks: %w", batchStart, len(records), err)
		}

		batchEnd := min(batchStart+batchSize, len(records))
		batch := records[batchStart:batchEnd]

		embedStart := time.Now()
		vectors, err := r.embedBatch(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("failed to generate embeddings for batch %d-%d: %w", batchStart, batchEnd, err)
		}
		result.EmbedDuration += time.Since(embedStart)

		writeStart := time.Now()
		if err := r.writeBatch(ctx, batch, vectors); err != nil {
			return nil, fmt.Errorf("failed to write batch %d-%d: %w", batchStart, batchEnd, err)
		}
		result.WriteDuration += time.Since(writeStart)

		result.Batches++
		result.Chunks += len(batch)
		r.progress(ProgressEvent{Stage: StageEmbedding, Current: batchEnd, Total: len(records)})

		if cfg.InterBatchDelay > 0 && batchEnd < len(records) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(cfg.InterBatchDelay):
			}
		}
	}

	saveStart := time.Now()
	if err := r.save(cfg.DataDir); err != nil {
		return nil, err
	}
	result.SaveDuration = time.Since(saveStart)
	result.Duration = time.Since(start)

	info := embed.GetInfo(ctx, r.embedder)
	chunksPerSec := 0.0
	if result.EmbedDuration.Seconds() > 0 {
		chunksPerSec = float64(result.Chunks) / result.EmbedDuration.Seconds()
	}
	slog.Info("index_complete",
		slog.Int("chunks", result.Chunks),
		slog.Int("batches", result.Batches),
		slog.Int64("duration_total_ms", result.Duration.Milliseconds()),
		slog.Int64("duration_embed_ms", result.EmbedDuration.Milliseconds()),
		slog.Int64("duration_write_ms", result.WriteDuration.Milliseconds()),
		slog.Int64("duration_save_ms", result.SaveDuration.Milliseconds()),
		slog.String("embedder_backend", string(info.Provider)),
		slog.String("embedder_model", info.Model),
		slog.Int("embedder_dimensions", info.Dimensions),
		slog.Float64("chunks_per_sec", chunksPerSec))

	return result, nil
}

func (r *Runner) embedBatch(ctx context.Context, batch []*chunk.ChunkRecord) ([][]float32, error) {
	texts := make([]string, len(batch))
	for i, rec := range batch {
		texts[i] = rec.Text
	}

	vectors, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(batch) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(batch))
	}
	dims := r.embedder.Dimensions()
	for i, v := range vectors {
		if len(v) != dims {
			return nil, fmt.Errorf("chunk %s: %w", batch[i].ID, store.ErrDimensionMismatch{Expected: dims, Got: len(v)})
		}
	}
	return vectors, nil
}

// writeBatch upserts into both backends concurrently. The first failure
// cancels the other write.
func (r *Runner) writeBatch(ctx context.Context, batch []*chunk.ChunkRecord, vectors [][]float32) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := r.vector.Upsert(gctx, batch, vectors); err != nil {
			return fmt.Errorf("vector upsert: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := r.keyword.Upsert(gctx, batch); err != nil {
			return fmt.Errorf("keyword upsert: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// save persists backends that keep state in local files.
func (r *Runner) save(dataDir string) error {
	if dataDir == "" {
		return nil
	}
	r.progress(ProgressEvent{Stage: StageSaving})

	var errs []error
	if p, ok := r.vector.(store.Persister); ok {
		if err := p.Save(store.HNSWPath(dataDir)); err != nil {
			errs = append(errs, fmt.Errorf("failed to save vector index: %w", err))
		}
	}
	if p, ok := r.keyword.(store.Persister); ok {
		if err := p.Save(store.KeywordDBPath(dataDir)); err != nil {
			errs = append(errs, fmt.Errorf("failed to save keyword index: %w", err))
		}
	}
	return errors.Join(errs...)
}
