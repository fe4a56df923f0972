package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"
)

const (
	followInterval = 100 * time.Millisecond
	maxLineBytes   = 1 << 20
)

// LogEntry is one line of the JSON log. Lines that are not JSON, such as
// panics written to stderr, keep only Raw.
type LogEntry struct {
	Time      time.Time
	Level     string
	Msg       string
	RequestID string
	Attrs     map[string]any
	Raw       string
	IsValid   bool
}

// ParseEntry decodes a slog JSON line. The time, level, msg and request_id
// keys become fields; every other key lands in Attrs.
func ParseEntry(line string) LogEntry {
	entry := LogEntry{Raw: line}

	var attrs map[string]any
	if err := json.Unmarshal([]byte(line), &attrs); err != nil {
		return entry
	}
	entry.IsValid = true

	if ts, ok := attrs["time"].(string); ok {
		entry.Time, _ = time.Parse(time.RFC3339Nano, ts)
	}
	entry.Level, _ = attrs["level"].(string)
	entry.Msg, _ = attrs["msg"].(string)
	entry.RequestID, _ = attrs["request_id"].(string)
	for _, k := range []string{"time", "level", "msg", "request_id"} {
		delete(attrs, k)
	}
	entry.Attrs = attrs
	return entry
}

// ViewerConfig selects and styles entries. Zero values disable a filter.
type ViewerConfig struct {
	Level     string         // minimum level
	Pattern   *regexp.Regexp // matched against the raw line
	RequestID string
	Event     string // exact msg, e.g. rerank_fallback
	NoColor   bool
}

// Match reports whether entry passes every configured filter. The level
// filter does not apply to lines that are not JSON.
func (c ViewerConfig) Match(entry LogEntry) bool {
	switch {
	case c.Level != "" && entry.IsValid && ParseLevel(entry.Level) < ParseLevel(c.Level):
		return false
	case c.RequestID != "" && entry.RequestID != c.RequestID:
		return false
	case c.Event != "" && entry.Msg != c.Event:
		return false
	case c.Pattern != nil && !c.Pattern.MatchString(entry.Raw):
		return false
	}
	return true
}

// Viewer reads, filters and prints the log behind `bulletinsearch logs`.
type Viewer struct {
	config ViewerConfig
	out    io.Writer
}

// NewViewer returns a Viewer printing to out.
func NewViewer(cfg ViewerConfig, out io.Writer) *Viewer {
	return &Viewer{config: cfg, out: out}
}

// Tail returns the last n matching entries of the log at path. Rotated
// files are read first, so a recent rotation does not hide history.
func (v *Viewer) Tail(path string, n int) ([]LogEntry, error) {
	files := RotatedFiles(path)
	if len(files) == 0 {
		return nil, fmt.Errorf("failed to open log file: %s does not exist", path)
	}
	if n <= 0 {
		return nil, nil
	}

	// ring keeps the last n matches; next is the slot to overwrite.
	ring := make([]LogEntry, 0, n)
	next := 0
	for _, file := range files {
		err := eachLine(file, func(line string) {
			entry := ParseEntry(line)
			if !v.config.Match(entry) {
				return
			}
			if len(ring) < n {
				ring = append(ring, entry)
				return
			}
			ring[next] = entry
			next = (next + 1) % n
		})
		if err != nil {
			return nil, err
		}
	}
	return slices.Concat(ring[next:], ring[:next]), nil
}

func eachLine(path string, fn func(string)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64<<10), maxLineBytes)
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			fn(line)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read log file: %w", err)
	}
	return nil
}

// Follow sends entries appended to path after the call until ctx is
// cancelled. When the writer rotates, Follow moves to the new file and
// reads it from the start.
func (v *Viewer) Follow(ctx context.Context, path string, entries chan<- LogEntry) error {
	t, err := openTail(path)
	if err != nil {
		return err
	}
	defer func() { _ = t.f.Close() }()

	ticker := time.NewTicker(followInterval)
	defer ticker.Stop()

	send := func(lines []string) bool {
		for _, line := range lines {
			entry := ParseEntry(line)
			if !v.config.Match(entry) {
				continue
			}
			select {
			case entries <- entry:
			case <-ctx.Done():
				return false
			}
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if !send(t.drain()) {
			return nil
		}
		if !t.rotated(path) {
			continue
		}
		next, err := os.Open(path)
		if err != nil {
			// Renamed, but the writer has not created the new file yet.
			continue
		}
		// Lines written just before the rename are still in the old file.
		if !send(t.drain()) {
			_ = next.Close()
			return nil
		}
		_ = t.f.Close()
		t = newTail(next)
	}
}

// tail reads complete lines from an open file, holding back a trailing
// line until the writer terminates it.
type tail struct {
	f       *os.File
	r       *bufio.Reader
	partial string
}

func openTail(path string) (*tail, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to seek to end: %w", err)
	}
	return newTail(f), nil
}

func newTail(f *os.File) *tail {
	return &tail{f: f, r: bufio.NewReader(f)}
}

func (t *tail) drain() []string {
	var lines []string
	for {
		chunk, err := t.r.ReadString('\n')
		if err != nil {
			t.partial += chunk
			return lines
		}
		line := strings.TrimSuffix(t.partial+chunk, "\n")
		t.partial = ""
		if line != "" {
			lines = append(lines, line)
		}
	}
}

// rotated reports whether path now names a different file than the one
// being read.
func (t *tail) rotated(path string) bool {
	cur, err := t.f.Stat()
	if err != nil {
		return false
	}
	now, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !os.SameFile(cur, now)
}

// FormatEntry renders entry as one line: time, level, a short request id,
// the message and the remaining attributes sorted by key.
func (v *Viewer) FormatEntry(entry LogEntry) string {
	if !entry.IsValid {
		return entry.Raw
	}

	var b strings.Builder
	b.WriteString(entry.Time.Format("15:04:05.000"))
	b.WriteByte(' ')
	b.WriteString(v.formatLevel(entry.Level))
	b.WriteByte(' ')
	if id := entry.RequestID; id != "" {
		b.WriteString(v.colorize(ansiCyan, "["+id[:min(len(id), 8)]+"]"))
		b.WriteByte(' ')
	}
	b.WriteString(entry.Msg)

	keys := make([]string, 0, len(entry.Attrs))
	for k := range entry.Attrs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Attrs[k])
	}
	return b.String()
}

// Print writes each entry on its own line.
func (v *Viewer) Print(entries []LogEntry) {
	for _, entry := range entries {
		_, _ = fmt.Fprintln(v.out, v.FormatEntry(entry))
	}
}

const (
	ansiGray   = "\033[90m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
	ansiReset  = "\033[0m"
)

var levelColors = map[string]string{
	"DEBUG": ansiGray,
	"INFO":  ansiGreen,
	"WARN":  ansiYellow,
	"ERROR": ansiRed,
}

// formatLevel pads the level to five columns and colors the known ones.
func (v *Viewer) formatLevel(level string) string {
	name := strings.ToUpper(level)
	if name == "WARNING" {
		name = "WARN"
	}
	padded := fmt.Sprintf("%-5.5s", name)
	if color, ok := levelColors[name]; ok {
		return v.colorize(color, padded)
	}
	return padded
}

func (v *Viewer) colorize(code, s string) string {
	if v.config.NoColor {
		return s
	}
	return code + s + ansiReset
}
