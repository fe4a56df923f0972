package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/bulletinsearch/internal/filter"
	"github.com/Aman-CERP/bulletinsearch/internal/output"
	"github.com/Aman-CERP/bulletinsearch/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	technique      string
	topK           int
	rerank         bool
	format         string
	sectionType    string
	topic          string
	language       string
	year           string
	month          string
	entities       []string
	documentID     string
	jurisdictionID int64
	hasTables      bool
	hasAmounts     bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed bulletin paragraphs",
		Long: `Search indexed bulletin paragraphs.

Runs semantic and keyword search concurrently and fuses the rankings with
Reciprocal Rank Fusion. Filters apply to both techniques.

Examples:
  bulletinsearch search "subvenciones para autónomos"
  bulletinsearch search "licitación obras" --section-type resolution --year 2024 --month 3
  bulletinsearch search "convocatoria" --entity "Junta de Andalucía" --technique keyword
  bulletinsearch search "ayudas vivienda" --rerank --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.technique, "technique", "t", "hybrid", "Retrieval technique: semantic, keyword, hybrid")
	cmd.Flags().IntVarP(&opts.topK, "top-k", "n", 0, "Maximum number of results (0 = configured default)")
	cmd.Flags().BoolVar(&opts.rerank, "rerank", false, "Rerank the fused candidates")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().StringVar(&opts.sectionType, "section-type", "", "Filter by section type")
	cmd.Flags().StringVar(&opts.topic, "topic", "", "Filter by topic")
	cmd.Flags().StringVar(&opts.language, "language", "", "Filter by language code")
	cmd.Flags().StringVar(&opts.year, "year", "", "Filter by publication year (YYYY)")
	cmd.Flags().StringVar(&opts.month, "month", "", "Filter by publication month (1-12, requires --year)")
	cmd.Flags().StringSliceVar(&opts.entities, "entity", nil, "Filter by mentioned entity (repeatable, any-of)")
	cmd.Flags().StringVar(&opts.documentID, "document-id", "", "Restrict to one bulletin document")
	cmd.Flags().Int64Var(&opts.jurisdictionID, "jurisdiction-id", 0, "Filter by jurisdiction id")
	cmd.Flags().BoolVar(&opts.hasTables, "has-tables", false, "Filter by presence of tables")
	cmd.Flags().BoolVar(&opts.hasAmounts, "has-amounts", false, "Filter by presence of monetary amounts")

	return cmd
}

// filterParams maps the flags that were set to wire filter parameters.
// Unset flags leave their field nil so they do not constrain the search.
func filterParams(cmd *cobra.Command, opts searchOptions) filter.Params {
	var p filter.Params
	changed := cmd.Flags().Changed

	if changed("section-type") {
		p.SectionType = &opts.sectionType
	}
	if changed("topic") {
		p.Topic = &opts.topic
	}
	if changed("language") {
		p.Language = &opts.language
	}
	if changed("year") {
		p.Year = &opts.year
	}
	if changed("month") {
		p.Month = &opts.month
	}
	if changed("entity") {
		p.Entities = opts.entities
	}
	if changed("document-id") {
		p.DocumentID = &opts.documentID
	}
	if changed("jurisdiction-id") {
		p.JurisdictionID = &opts.jurisdictionID
	}
	if changed("has-tables") {
		p.HasTables = &opts.hasTables
	}
	if changed("has-amounts") {
		p.HasAmounts = &opts.hasAmounts
	}
	return p
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	format, err := output.ParseFormat(opts.format)
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

	resp, err := svc.Search(ctx, search.Request{
		Query:     query,
		TopK:      opts.topK,
		Filters:   filterParams(cmd, opts),
		Technique: opts.technique,
		Rerank:    opts.rerank,
	})
	if err != nil {
		slog.Warn("search_failed", slog.String("error", err.Error()))
		return err
	}

	return newWriter(cmd).SearchResults(resp, format)
}
