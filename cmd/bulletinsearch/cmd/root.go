// Package cmd provides the CLI commands for bulletinsearch.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/bulletinsearch/internal/config"
	amerrors "github.com/Aman-CERP/bulletinsearch/internal/errors"
	"github.com/Aman-CERP/bulletinsearch/internal/logging"
	"github.com/Aman-CERP/bulletinsearch/internal/output"
	"github.com/Aman-CERP/bulletinsearch/internal/profiling"
	"github.com/Aman-CERP/bulletinsearch/pkg/version"
)

// Global flags
var (
	debugMode      bool
	configPath     string
	loggingCleanup func()

	profileOpts    profiling.Options
	profileSession *profiling.Session
)

// NewRootCmd creates the root command for the bulletinsearch CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bulletinsearch",
		Short: "Hybrid retrieval over government bulletins",
		Long: `bulletinsearch retrieves paragraphs of official government bulletins.

It runs semantic (vector) and BM25 keyword search concurrently, fuses the
rankings with Reciprocal Rank Fusion and optionally reranks the top results.
Filters on section type, topic, date and entities are pushed down to both
backends.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("bulletinsearch version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (replaces user and project config lookup)")

	cmd.PersistentFlags().StringVar(&profileOpts.CPUProfile, "cpuprofile", "", "Write a CPU profile to this file")
	cmd.PersistentFlags().StringVar(&profileOpts.HeapProfile, "memprofile", "", "Write a heap profile to this file on exit")
	cmd.PersistentFlags().StringVar(&profileOpts.Trace, "trace", "", "Write an execution trace to this file")
	for _, name := range []string{"cpuprofile", "memprofile", "trace"} {
		_ = cmd.PersistentFlags().MarkHidden(name)
	}

	cmd.PersistentPreRunE = startProfiling
	cmd.PersistentPostRunE = finish

	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newEvalCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command and prints any error for the terminal.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		_ = finish(nil, nil)
		format := amerrors.FormatForCLI
		if debugMode {
			format = amerrors.FormatForCLIDebug
		}
		_, _ = fmt.Fprintln(os.Stderr, format(err))
	}
	return err
}

// loadConfig loads --config when set, otherwise the user, project and
// environment layers for the current project root.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}

	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}
	return config.Load(root)
}

// setupLogging installs the configured logger as the default. Commands
// that print results to stdout pass stderr=false so logs stay in the file.
func setupLogging(cfg *config.Config, stderr bool) {
	lc := cfg.LogConfig(debugMode)
	if !stderr {
		lc.WriteToStderr = false
	}

	cleanup, err := logging.SetupDefault(lc)
	if err != nil {
		// Best effort: a read-only home still searches.
		return
	}
	loggingCleanup = cleanup
	slog.Debug("logging_configured",
		slog.String("level", lc.Level),
		slog.String("file", lc.FilePath))
}

func startProfiling(_ *cobra.Command, _ []string) error {
	if !profileOpts.Enabled() {
		return nil
	}
	s, err := profiling.Start(profileOpts)
	if err != nil {
		return err
	}
	profileSession = s
	return nil
}

// finish stops profiling and then flushes the log.
func finish(cmd *cobra.Command, args []string) error {
	var err error
	if profileSession != nil {
		err = profileSession.Stop()
		profileSession = nil
	}
	_ = stopLogging(cmd, args)
	return err
}

// stopLogging flushes the log file.
func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// newWriter returns a terminal-aware writer when stdout is a file.
func newWriter(cmd *cobra.Command) *output.Writer {
	if f, ok := cmd.OutOrStdout().(*os.File); ok {
		return output.NewTerminal(f)
	}
	return output.New(cmd.OutOrStdout())
}
