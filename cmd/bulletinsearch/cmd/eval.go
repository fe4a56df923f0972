package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/bulletinsearch/internal/output"
	"github.com/Aman-CERP/bulletinsearch/internal/validation"
)

type evalOptions struct {
	format   string
	minPass  float64
	failOnly bool
}

func newEvalCmd() *cobra.Command {
	var opts evalOptions

	cmd := &cobra.Command{
		Use:   "eval <queries.yaml>",
		Short: "Run a relevance query suite against the index",
		Long: `Run a relevance query suite against the configured index.

The suite lists tier1, tier2 and negative queries, each with optional
technique, top_k and filters. Tier 1 and Tier 2 queries name the chunk or
document ids that should be returned:

  tier1:
    - id: T1-Q1
      name: self-employed grants
      query: subvenciones autónomos
      filters: {year: "2024"}
      expected: [boja-2024-041#3]

Exits non-zero when the Tier 1 pass rate is below --min-pass or a negative
query causes a server error.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(cmd.Context(), cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().Float64Var(&opts.minPass, "min-pass", 1.0, "Minimum Tier 1 pass rate (0-1)")
	cmd.Flags().BoolVar(&opts.failOnly, "failures", false, "List only failed queries")

	return cmd
}

func runEval(ctx context.Context, cmd *cobra.Command, path string, opts evalOptions) error {
	format, err := output.ParseFormat(opts.format)
	if err != nil {
		return err
	}

	suite, err := validation.LoadSuite(path)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg, false)

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()

	svc, err := newService(cfg, b)
	if err != nil {
		return err
	}

	result := validation.NewValidator(svc).RunAll(ctx, suite)

	out := newWriter(cmd)
	if format == output.FormatJSON {
		if err := out.JSON(result); err != nil {
			return err
		}
	} else {
		printEval(out, result, opts.failOnly)
	}

	if rate := result.Tier1PassRate(); rate < opts.minPass {
		return fmt.Errorf("tier 1 pass rate %.2f is below %.2f", rate, opts.minPass)
	}
	if result.NegPass < result.NegTotal {
		return fmt.Errorf("%d of %d negative queries failed", result.NegTotal-result.NegPass, result.NegTotal)
	}
	return nil
}

func printEval(out *output.Writer, result *validation.ValidationResult, failOnly bool) {
	groups := []struct {
		title   string
		results []validation.TestResult
	}{
		{"Tier 1", result.Tier1},
		{"Tier 2", result.Tier2},
		{"Negative", result.Negative},
	}

	for _, g := range groups {
		for _, tr := range g.results {
			if failOnly && tr.Passed {
				continue
			}
			label := fmt.Sprintf("%s %s %s", g.title, tr.Spec.ID, tr.Spec.Name)
			switch {
			case tr.Passed && tr.MatchedAt >= 0:
				out.Successf("%s (rank %d, %s)", label, tr.MatchedAt+1, tr.Duration.Round(1e5))
			case tr.Passed:
				out.Successf("%s (%s)", label, tr.Duration.Round(1e5))
			case tr.Error != "":
				out.Errorf("%s: %s", label, tr.Error)
			default:
				out.Errorf("%s: expected %s, got [%s]", label,
					strings.Join(tr.Spec.Expected, ", "), strings.Join(tr.TopResults, ", "))
			}
		}
	}

	out.Newline()
	out.Statusf("", "Tier 1: %d/%d  Tier 2: %d/%d  Negative: %d/%d  MRR: %.3f",
		result.Tier1Pass, result.Tier1Total,
		result.Tier2Pass, result.Tier2Total,
		result.NegPass, result.NegTotal,
		result.MRR)
}
