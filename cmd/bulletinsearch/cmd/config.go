package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/bulletinsearch/internal/config"
)

const redacted = "********"

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage the bulletinsearch configuration.

Configuration precedence (lowest to highest):
  1. Built-in defaults
  2. User config (~/.config/bulletinsearch/config.yaml)
  3. Project config (.bulletinsearch.yaml)
  4. Environment variables (BULLETINSEARCH_*)

--config replaces steps 2 and 3 with a single file.`,
		Example: `  # Write the defaults to the user config
  bulletinsearch config init

  # Show the effective configuration
  bulletinsearch config show

  # Undo the last config init --force
  bulletinsearch config restore`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())
	cmd.AddCommand(newConfigRestoreCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force, project bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default user configuration",
		Long: `Write the default configuration to the user config file.

An existing file is only replaced with --force. The replaced file is kept
as a timestamped backup next to it; the newest backups are retained.

With --project a commented .bulletinsearch.yaml is written to the current
directory instead.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := newWriter(cmd)
			if project {
				path, err := config.InitProjectConfig(".")
				if err != nil {
					return err
				}
				out.Successf("Wrote project configuration template to %s", path)
				return nil
			}

			backup, err := config.InitUserConfig(force)
			if err != nil {
				return err
			}

			out.Successf("Wrote default configuration to %s", config.GetUserConfigPath())
			if backup != "" {
				out.Statusf("", "Previous file backed up to %s", backup)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing user configuration")
	cmd.Flags().BoolVar(&project, "project", false, "Write a project config template to the current directory")

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long: `Show the effective configuration after merging all sources.

Credentials (Qdrant API key, PostgreSQL DSN) are redacted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			}

			shown := *cfg
			if shown.Vector.Qdrant.APIKey != "" {
				shown.Vector.Qdrant.APIKey = redacted
			}
			if shown.Keyword.PostgresDSN != "" {
				shown.Keyword.PostgresDSN = redacted
			}
			data, err := yaml.Marshal(&shown)
			if err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the user config file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return err
		},
	}
}

func newConfigRestoreCmd() *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "restore [backup]",
		Short: "Restore the user config from a backup",
		Long: `Restore the user configuration from a backup made by config init --force.

Without an argument the newest backup is restored. The current file is
itself backed up first, so a restore can be undone.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newWriter(cmd)
			path := config.GetUserConfigPath()

			backups, err := config.ListBackups(path)
			if err != nil {
				return err
			}

			if list {
				if len(backups) == 0 {
					out.Warning("No backups found")
					return nil
				}
				for _, b := range backups {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), b)
				}
				return nil
			}

			var source string
			switch {
			case len(args) == 1:
				source = args[0]
			case len(backups) > 0:
				source = backups[0]
			default:
				return fmt.Errorf("no backups of %s found", path)
			}

			if err := config.RestoreBackup(path, source); err != nil {
				return err
			}
			out.Successf("Restored %s from %s", path, source)
			return nil
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "List available backups, newest first")

	return cmd
}
