package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Aman-CERP/bulletinsearch/internal/config"
	"github.com/Aman-CERP/bulletinsearch/internal/embed"
	"github.com/Aman-CERP/bulletinsearch/internal/filter"
	"github.com/Aman-CERP/bulletinsearch/internal/preflight"
	"github.com/Aman-CERP/bulletinsearch/internal/search"
	"github.com/Aman-CERP/bulletinsearch/internal/store"
)

// backends holds the collaborators shared by search, serve and index.
type backends struct {
	embedder embed.Embedder
	vector   store.VectorStore
	keyword  store.KeywordStore
}

// openBackends creates the embedder first because the vector backend is
// sized from its dimensions.
func openBackends(ctx context.Context, cfg *config.Config) (*backends, error) {
	embedder, err := embed.NewEmbedder(ctx, cfg.EmbedderConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	b := &backends{embedder: embedder}

	vopts, err := cfg.VectorOptions(embedder.Dimensions())
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	b.vector, err = store.NewVectorStore(vopts)
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("failed to open vector index: %w", err)
	}

	b.keyword, err = store.NewKeywordStore(ctx, cfg.KeywordOptions())
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("failed to open keyword index: %w", err)
	}

	info := embed.GetInfo(ctx, embedder)
	slog.Debug("backends_opened",
		slog.String("embedder", string(info.Provider)),
		slog.String("model", info.Model),
		slog.Int("dimensions", info.Dimensions),
		slog.String("vector", b.vector.Name()),
		slog.String("keyword", b.keyword.Name()))

	return b, nil
}

// Close releases every opened backend.
func (b *backends) Close() error {
	var errs []error
	if b.keyword != nil {
		errs = append(errs, b.keyword.Close())
	}
	if b.vector != nil {
		errs = append(errs, b.vector.Close())
	}
	if b.embedder != nil {
		errs = append(errs, b.embedder.Close())
	}
	return errors.Join(errs...)
}

// newService builds the retrieval service over b.
func newService(cfg *config.Config, b *backends, opts ...search.Option) (*search.Service, error) {
	reranker, err := search.NewReranker(cfg.RerankerConfig())
	if err != nil {
		return nil, err
	}
	opts = append([]search.Option{search.WithReranker(reranker)}, opts...)
	return search.NewService(b.vector, b.keyword, b.keyword, b.embedder, cfg.SearchServiceConfig(), opts...)
}

// probeQuery is a short query every backend can answer, even when empty.
const probeQuery = "boletín oficial"

// checkerOptions adds the embedder and one unfiltered top-1 query per
// backend to a preflight checker.
func (b *backends) checkerOptions() []preflight.Option {
	return []preflight.Option{
		preflight.WithEmbedder(b.embedder),
		preflight.WithBackendProbe(b.vector.Name(), func(ctx context.Context) error {
			vec, err := b.embedder.Embed(ctx, probeQuery)
			if err != nil {
				return fmt.Errorf("embed probe query: %w", err)
			}
			_, err = b.vector.Search(ctx, vec, filter.VectorPredicate{}, 1)
			return err
		}),
		preflight.WithBackendProbe(b.keyword.Name(), func(ctx context.Context) error {
			_, err := b.keyword.Search(ctx, probeQuery, filter.KeywordPredicate{}, 1)
			return err
		}),
	}
}
