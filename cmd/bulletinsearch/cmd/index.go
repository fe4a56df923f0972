package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/bulletinsearch/internal/config"
	"github.com/Aman-CERP/bulletinsearch/internal/index"
	"github.com/Aman-CERP/bulletinsearch/internal/output"
	"github.com/Aman-CERP/bulletinsearch/internal/profiling"
	"github.com/Aman-CERP/bulletinsearch/internal/watcher"
)

type indexOptions struct {
	batchSize int
	verify    bool
	watch     bool
	poll      bool
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index <records.jsonl>",
		Short: "Index chunk records into the configured backends",
		Long: `Index chunk records into the configured backends.

The input holds one JSON chunk record per line:
  {"chunk_id": "...", "document_id": "...", "text": "...", "metadata": {...}}

Records are embedded in batches and upserted into the vector and keyword
indexes. Re-indexing the same file replaces records with the same chunk_id.
Only one index run may use a data directory at a time.

With --watch the file is indexed again whenever it changes, until
interrupted. Records removed from the file stay in the index.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), cmd, args[0], opts)
		},
	}

	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "Records per embedding batch (0 = embeddings.batch_size)")
	cmd.Flags().BoolVar(&opts.verify, "verify", true, "Check every record can be resolved after indexing")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Re-index when the file changes")
	cmd.Flags().BoolVar(&opts.poll, "poll", false, "Poll the file instead of using filesystem notifications (with --watch)")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, path string, opts indexOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := newWriter(cmd)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg, false)

	lock := index.NewDataDirLock(cfg.DataDir)
	if err := lock.TryLock(); err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()

	if !opts.watch {
		return indexFile(ctx, out, cfg, b, path, opts)
	}
	return watchIndex(ctx, out, cfg, b, path, opts)
}

// indexFile loads path and indexes every record in it.
func indexFile(ctx context.Context, out *output.Writer, cfg *config.Config, b *backends, path string, opts indexOptions) error {
	loaded, err := index.LoadFile(path)
	if err != nil {
		return err
	}
	if loaded.Duplicates > 0 {
		out.Warningf("%d duplicate chunk_id(s); the last occurrence was kept", loaded.Duplicates)
	}
	if len(loaded.Records) == 0 {
		out.Warning("No records to index")
		return nil
	}
	out.Statusf("", "Loaded %d records from %s", len(loaded.Records), path)

	runner, err := index.NewRunner(index.RunnerDependencies{
		Vector:   b.vector,
		Keyword:  b.keyword,
		Embedder: b.embedder,
		Progress: func(e index.ProgressEvent) {
			if e.Stage == index.StageEmbedding {
				out.Progress(e.Current, e.Total, "embedding and writing")
			}
		},
	})
	if err != nil {
		return err
	}

	batchSize := opts.batchSize
	if batchSize <= 0 {
		batchSize = cfg.Embeddings.BatchSize
	}

	result, err := runner.Run(ctx, loaded.Records, index.RunnerConfig{
		DataDir:   cfg.DataDir,
		BatchSize: batchSize,
	})
	if err != nil {
		out.ProgressDone()
		slog.Error("index_failed", slog.String("path", path), slog.String("error", err.Error()))
		return err
	}

	if opts.verify {
		check, err := index.NewConsistencyChecker(b.keyword).Check(ctx, loaded.Records)
		if err != nil {
			return err
		}
		if !check.Consistent() {
			for _, issue := range check.Issues {
				out.Warningf("%s: %s", issue.ChunkID, issue.Reason)
			}
			return fmt.Errorf("index verification failed: %d of %d records inconsistent", len(check.Issues), check.Checked)
		}
	}

	profiling.LogMemory("index_memory")
	out.Successf("Indexed %d records in %s (%s, %s)",
		result.Chunks, result.Duration.Round(1e6), b.vector.Name(), b.keyword.Name())
	return nil
}

// watchIndex indexes path once, then again after every change until ctx is
// cancelled or a signal arrives. Failed runs are reported and watching
// continues.
func watchIndex(ctx context.Context, out *output.Writer, cfg *config.Config, b *backends, path string, opts indexOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := watcher.NewFileWatcher(path, watcher.Options{ForcePolling: opts.poll})
	if err != nil {
		return err
	}

	// Watch before the first run so changes made during it are not missed.
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	if err := indexFile(ctx, out, cfg, b, path, opts); err != nil {
		out.Errorf("Index failed: %v", err)
	}
	out.Statusf("", "Watching %s (Ctrl+C to stop)", w.Path())

	for {
		select {
		case batch, ok := <-w.Events():
			if !ok {
				return <-done
			}
			last := batch[len(batch)-1]
			slog.Info("records_changed", slog.String("path", last.Path), slog.String("op", last.Operation.String()))
			if last.Operation == watcher.OpDelete {
				out.Warningf("%s was removed; waiting for it to reappear", path)
				continue
			}
			if err := indexFile(ctx, out, cfg, b, path, opts); err != nil {
				out.Errorf("Index failed: %v", err)
			}
		case err := <-w.Errors():
			slog.Warn("watch_error", slog.String("path", path), slog.String("error", err.Error()))
		}
	}
}
