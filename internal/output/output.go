// Package output writes the human-facing CLI output: status lines,
// progress bars and search results.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"

	progressWidth = 30
)

// Writer formats CLI output. Write errors are ignored; there is nowhere
// left to report them.
type Writer struct {
	out         io.Writer
	useColor    bool
	interactive bool
}

// New returns a plain Writer: no colors, no in-place progress.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// NewTerminal enables in-place progress when f is a terminal, and colors
// as well unless NO_COLOR is set.
func NewTerminal(f *os.File) *Writer {
	tty := IsTerminal(f)
	return &Writer{
		out:         f,
		useColor:    tty && os.Getenv("NO_COLOR") == "",
		interactive: tty,
	}
}

// IsTerminal also accepts Cygwin and MSYS ptys.
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (w *Writer) Interactive() bool { return w.interactive }

// Status prints msg after icon, or indented under the previous line when
// icon is empty.
func (w *Writer) Status(icon, msg string) {
	if icon == "" {
		icon = "  "
	}
	_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
}

func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

func (w *Writer) Success(msg string) { w.Status("✅", w.color(ansiGreen, msg)) }
func (w *Writer) Warning(msg string) { w.Status("⚠️ ", w.color(ansiYellow, msg)) }
func (w *Writer) Error(msg string)   { w.Status("❌", w.color(ansiRed, msg)) }

func (w *Writer) Successf(format string, args ...any) { w.Success(fmt.Sprintf(format, args...)) }
func (w *Writer) Warningf(format string, args ...any) { w.Warning(fmt.Sprintf(format, args...)) }
func (w *Writer) Errorf(format string, args ...any)   { w.Error(fmt.Sprintf(format, args...)) }

func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Progress draws "[bar] pct% current/total msg". On a terminal the line is
// redrawn in place; elsewhere only the completed line is written, so logs
// of redirected runs get one line.
func (w *Writer) Progress(current, total int, msg string) {
	if total <= 0 {
		return
	}
	done := current >= total
	if !w.interactive && !done {
		return
	}

	line := fmt.Sprintf("[%s] %3.0f%% %s/%s %s",
		renderProgressBar(current, total, progressWidth),
		float64(current)/float64(total)*100,
		humanize.Comma(int64(current)), humanize.Comma(int64(total)), msg)

	switch {
	case !w.interactive:
		_, _ = fmt.Fprintln(w.out, line)
	case done:
		_, _ = fmt.Fprint(w.out, "\r"+line+"\n")
	default:
		_, _ = fmt.Fprint(w.out, "\r"+line)
	}
}

// ProgressDone ends an in-place progress line cut short, e.g. by an error.
func (w *Writer) ProgressDone() {
	if w.interactive {
		_, _ = fmt.Fprintln(w.out)
	}
}

func (w *Writer) color(code, s string) string {
	if !w.useColor {
		return s
	}
	return code + s + ansiReset
}

// renderProgressBar returns a bar of exactly width runes.
func renderProgressBar(current, total, width int) string {
	filled := 0
	if total > 0 {
		filled = min(max(current*width/total, 0), width)
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
