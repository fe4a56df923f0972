package preflight

import (
	"fmt"
	"io"
	"strings"
)

// Summary is the overall verdict of a Report.
type Summary string

const (
	SummaryReady    Summary = "ready"
	SummaryWarnings Summary = "ready_with_warnings"
	SummaryFailed   Summary = "failed"
)

// Report collects check results. Status is kept in step with Checks by
// NewReport and Add.
type Report struct {
	Status Summary       `json:"status"`
	Checks []CheckResult `json:"checks"`
}

// NewReport returns a report over checks.
func NewReport(checks ...CheckResult) *Report {
	r := &Report{}
	r.Add(checks...)
	return r
}

// Add appends checks and recomputes the status.
func (r *Report) Add(checks ...CheckResult) {
	r.Checks = append(r.Checks, checks...)
	r.Status = summarize(r.Checks)
}

// summarize fails on any critical check. Warnings and failed optional
// checks downgrade the verdict without failing it.
func summarize(checks []CheckResult) Summary {
	s := SummaryReady
	for _, c := range checks {
		switch {
		case c.IsCritical():
			return SummaryFailed
		case c.Status != StatusPass:
			s = SummaryWarnings
		}
	}
	return s
}

// Critical returns the failed required checks.
func (r *Report) Critical() []CheckResult {
	return r.filter(CheckResult.IsCritical)
}

// Warnings returns the checks that did not pass but do not block.
func (r *Report) Warnings() []CheckResult {
	return r.filter(func(c CheckResult) bool {
		return c.Status != StatusPass && !c.IsCritical()
	})
}

func (r *Report) filter(keep func(CheckResult) bool) []CheckResult {
	var out []CheckResult
	for _, c := range r.Checks {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

// Err joins the critical failures into one error, or returns nil.
func (r *Report) Err() error {
	critical := r.Critical()
	if len(critical) == 0 {
		return nil
	}
	msgs := make([]string, len(critical))
	for i, c := range critical {
		msgs[i] = c.line()
	}
	return fmt.Errorf("preflight failed: %s", strings.Join(msgs, "; "))
}

// Render writes the report as text. Details are included when verbose is
// set.
func (r *Report) Render(w io.Writer, verbose bool) error {
	var b strings.Builder
	b.WriteString("bulletinsearch system check\n\n")

	for _, c := range r.Checks {
		fmt.Fprintf(&b, "[%s] %s\n", c.Status, c.line())
		if verbose && c.Details != "" {
			fmt.Fprintf(&b, "       %s\n", c.Details)
		}
	}
	fmt.Fprintf(&b, "\nStatus: %s\n", strings.ToUpper(string(r.Status)))

	writeGroup(&b, "error(s)", r.Critical())
	writeGroup(&b, "warning(s)", r.Warnings())

	_, err := io.WriteString(w, b.String())
	return err
}

func writeGroup(b *strings.Builder, label string, checks []CheckResult) {
	if len(checks) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%d %s:\n", len(checks), label)
	for _, c := range checks {
		fmt.Fprintf(b, "  - %s\n", c.line())
	}
}
