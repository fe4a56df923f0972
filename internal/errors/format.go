package errors

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
)

// FormatForCLI renders err for stderr. Errors without a code are shown as
// internal errors.
func FormatForCLI(err error) string {
	return formatCLI(err, false)
}

// FormatForCLIDebug also prints the cause chain and details.
func FormatForCLIDebug(err error) string {
	return formatCLI(err, true)
}

func formatCLI(err error, debug bool) string {
	if err == nil {
		return ""
	}
	e, ok := As(err)
	if !ok {
		e = Wrap(ErrCodeInternal, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Error: %s\n", e.Message)
	if debug {
		if e.Cause != nil {
			fmt.Fprintf(&b, "  Cause: %s\n", e.Cause)
		}
		for _, k := range slices.Sorted(maps.Keys(e.Details)) {
			fmt.Fprintf(&b, "  %s: %s\n", k, e.Details[k])
		}
	}
	if e.Suggestion != "" {
		fmt.Fprintf(&b, "  Hint: %s\n", e.Suggestion)
	}
	fmt.Fprintf(&b, "  Code: %s\n", e.Code)
	return b.String()
}

// LogAttr returns err as a slog group keyed "error". Errors without a code
// become a plain string attribute.
func LogAttr(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	e, ok := As(err)
	if !ok {
		return slog.String("error", err.Error())
	}

	attrs := []any{
		slog.String("code", e.Code),
		slog.String("message", err.Error()),
		slog.String("category", string(e.Category)),
		slog.Bool("retryable", e.Retryable),
	}
	if e.Cause != nil {
		attrs = append(attrs, slog.String("cause", e.Cause.Error()))
	}
	for _, k := range slices.Sorted(maps.Keys(e.Details)) {
		attrs = append(attrs, slog.String(k, e.Details[k]))
	}
	return slog.Group("error", attrs...)
}
