package output

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/Aman-CERP/bulletinsearch/internal/search"
)

// Format selects how search results are printed.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat parses a --format value. Empty means text.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown format %q (valid options: text, json)", s)
	}
}

// JSON writes v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// SearchResults prints a response in the given format.
func (w *Writer) SearchResults(resp *search.Response, format Format) error {
	if format == FormatJSON {
		return w.JSON(resp)
	}

	d := resp.Diagnostics
	if len(resp.Results) == 0 {
		w.Warning("No results")
	}

	for i, r := range resp.Results {
		score := w.color(ansiGreen, fmt.Sprintf("%.3f", r.NormalizedScore))
		title := w.color(ansiBold, r.DocumentID)
		_, _ = fmt.Fprintf(w.out, "%2d. [%s] %s %s%s\n", i+1, score, title, r.ChunkID, describeMetadata(r))

		snippet := r.Highlight
		if snippet == "" {
			snippet = r.Text
		}
		snippet = strings.Join(strings.Fields(snippet), " ")
		open, closing := "", ""
		if w.useColor {
			open, closing = ansiYellow, ansiReset
		}
		snippet = strings.NewReplacer(search.DefaultHighlightOpen, open, search.DefaultHighlightClose, closing).Replace(snippet)
		_, _ = fmt.Fprintf(w.out, "    %s\n", snippet)
	}

	w.Newline()
	summary := fmt.Sprintf("%d results · %s · %s", len(resp.Results), d.Technique, d.Elapsed.Round(100_000))
	if d.Reranked {
		summary += " · reranked (" + d.RerankStrategy + ")"
	}
	w.Status("", summary)

	if d.Degraded {
		failed := make([]string, 0, len(d.BackendErrors))
		for technique := range d.BackendErrors {
			failed = append(failed, technique)
		}
		sort.Strings(failed)
		for _, technique := range failed {
			w.Warningf("%s unavailable: %s", technique, d.BackendErrors[technique])
		}
		for _, technique := range d.EmptyTechniques {
			w.Warningf("%s returned no results", technique)
		}
	}
	if d.RerankError != "" {
		w.Warningf("rerank skipped: %s", d.RerankError)
	}
	for _, warning := range d.FilterWarnings {
		w.Warning(warning.String())
	}
	return nil
}

func describeMetadata(r search.RetrievalResult) string {
	var parts []string
	if r.Metadata.SectionType != "" {
		parts = append(parts, r.Metadata.SectionType)
	}
	if date := r.Metadata.Date(); date != "" {
		parts = append(parts, date)
	}
	if len(parts) == 0 {
		return ""
	}
	return "  (" + strings.Join(parts, ", ") + ")"
}
