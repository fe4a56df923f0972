package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/bulletinsearch/internal/api"
	"github.com/Aman-CERP/bulletinsearch/internal/config"
	"github.com/Aman-CERP/bulletinsearch/internal/preflight"
	"github.com/Aman-CERP/bulletinsearch/internal/search"
	"github.com/Aman-CERP/bulletinsearch/internal/telemetry"
	"github.com/Aman-CERP/bulletinsearch/pkg/version"
)

// TelemetryDBName is the query statistics database in the data directory.
const TelemetryDBName = "telemetry.db"

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the search HTTP API",
		Long: `Serve the search HTTP API.

Endpoints:
  POST /v1/search   run a search request
  GET  /v1/stats    aggregated query statistics
  GET  /healthz     readiness and build information
  GET  /metrics     Prometheus metrics

The first start of each version runs the doctor checks and refuses to
serve if a backend cannot answer. The server shuts down gracefully on
SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config: 127.0.0.1:8080)")

	return cmd
}

func runServe(ctx context.Context, addr string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg, true)
	if addr != "" {
		cfg.Server.Addr = addr
	}

	queries, closeQueries, err := openQueryMetrics(cfg)
	if err != nil {
		return err
	}
	defer closeQueries()
	metrics := telemetry.NewMetrics(queries)

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()

	if preflight.NeedsCheck(cfg.DataDir) {
		if err := preflight.New(b.checkerOptions()...).Run(ctx, cfg.DataDir).Err(); err != nil {
			return fmt.Errorf("%w (run `bulletinsearch doctor` for details)", err)
		}
		if err := preflight.MarkPassed(cfg.DataDir); err != nil {
			slog.Warn("preflight_marker_failed", slog.String("error", err.Error()))
		}
		slog.Info("preflight_passed", slog.String("data_dir", cfg.DataDir))
	}

	svc, err := newService(cfg, b, search.WithMetrics(metrics))
	if err != nil {
		return err
	}

	srv, err := api.NewServer(svc, apiConfig(cfg),
		api.WithMetrics(metrics),
		api.WithLogger(slog.Default()),
		api.WithHealthCheck("embedder", func(ctx context.Context) error {
			if !b.embedder.Available(ctx) {
				return errors.New("embedder unavailable")
			}
			return nil
		}),
	)
	if err != nil {
		return err
	}

	slog.Info("server_starting",
		slog.String("addr", cfg.Server.Addr),
		slog.String("version", version.Version),
		slog.String("vector", b.vector.Name()),
		slog.String("keyword", b.keyword.Name()),
		slog.Bool("telemetry", queries != nil))

	return srv.ListenAndServe(ctx)
}

// openQueryMetrics returns nil metrics when telemetry is disabled.
func openQueryMetrics(cfg *config.Config) (*telemetry.QueryMetrics, func(), error) {
	if !cfg.Telemetry.Enabled {
		return nil, func() {}, nil
	}

	st, err := telemetry.OpenSQLiteMetricsStore(filepath.Join(cfg.DataDir, TelemetryDBName))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open telemetry store: %w", err)
	}

	qcfg := telemetry.DefaultQueryMetricsConfig()
	qcfg.FlushInterval = cfg.Telemetry.FlushInterval
	queries := telemetry.NewQueryMetricsWithConfig(st, qcfg)

	return queries, func() {
		if err := queries.Close(); err != nil {
			slog.Warn("telemetry_flush_failed", slog.String("error", err.Error()))
		}
		_ = st.Close()
	}, nil
}

func apiConfig(cfg *config.Config) api.Config {
	ac := api.DefaultConfig()
	ac.Addr = cfg.Server.Addr
	ac.RateLimit = cfg.Server.RateLimit
	ac.RateBurst = cfg.Server.RateBurst
	ac.ReadTimeout = cfg.Server.ReadTimeout
	ac.WriteTimeout = cfg.Server.WriteTimeout
	ac.ShutdownTimeout = cfg.Server.ShutdownTimeout
	return ac
}
