package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/bulletinsearch/internal/config"
	"github.com/Aman-CERP/bulletinsearch/internal/embed"
	"github.com/Aman-CERP/bulletinsearch/internal/lifecycle"
	"github.com/Aman-CERP/bulletinsearch/internal/output"
	"github.com/Aman-CERP/bulletinsearch/internal/preflight"
)

type doctorOptions struct {
	format  string
	verbose bool
	pull    bool
}

func newDoctorCmd() *cobra.Command {
	var opts doctorOptions

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the data directory, embedder and backends",
		Long: `Check that bulletinsearch can index and serve with the current configuration.

Verifies the data directory is writable with enough free space, the file
descriptor limit, that the embedder answers, and that each retrieval
backend answers a probe query. Exits non-zero when a required check fails.

With the Ollama provider, --pull downloads a missing embedding model first.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Show check details")
	cmd.Flags().BoolVar(&opts.pull, "pull", false, "Pull a missing Ollama embedding model")

	return cmd
}

func runDoctor(ctx context.Context, cmd *cobra.Command, opts doctorOptions) error {
	format, err := output.ParseFormat(opts.format)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg, false)

	var checkerOpts []preflight.Option
	var extra []preflight.CheckResult

	if cfg.Embeddings.Provider == string(embed.ProviderOllama) {
		extra = append(extra, checkOllamaModel(ctx, cmd, cfg, opts.pull))
	}

	b, err := openBackends(ctx, cfg)
	if err != nil {
		extra = append(extra, preflight.CheckResult{
			Name:     "backends",
			Status:   preflight.StatusFail,
			Message:  err.Error(),
			Required: true,
		})
	} else {
		defer func() { _ = b.Close() }()
		checkerOpts = b.checkerOptions()
	}

	report := preflight.New(checkerOpts...).Run(ctx, cfg.DataDir)
	report.Add(extra...)

	if format == output.FormatJSON {
		err = output.New(cmd.OutOrStdout()).JSON(report)
	} else {
		err = report.Render(cmd.OutOrStdout(), opts.verbose)
	}
	if err != nil {
		return err
	}

	if err := report.Err(); err != nil {
		_ = preflight.ClearMarker(cfg.DataDir)
		return err
	}
	return preflight.MarkPassed(cfg.DataDir)
}

// checkOllamaModel reports whether the configured model is on the Ollama
// server, pulling it first when pull is set.
func checkOllamaModel(ctx context.Context, cmd *cobra.Command, cfg *config.Config, pull bool) preflight.CheckResult {
	mgr := lifecycle.NewModelManager(cfg.Embeddings.OllamaHost)
	model := cfg.Embeddings.Model
	result := preflight.CheckResult{
		Name:     "embedding_model",
		Required: true,
		Details:  "Ollama host: " + mgr.Host(),
	}

	out := output.New(cmd.ErrOrStderr())
	err := mgr.EnsureModel(ctx, model, lifecycle.EnsureOpts{
		Pull: pull,
		Progress: func(p lifecycle.PullProgress) {
			if p.Total > 0 {
				out.Progress(int(p.Percent), 100, p.Status)
			}
		},
	})
	out.ProgressDone()

	if err != nil {
		result.Status = preflight.StatusFail
		result.Message = err.Error()
		return result
	}
	result.Status = preflight.StatusPass
	result.Message = model + " available"
	return result
}
