package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Rotation defaults used when Config leaves the limits unset.
const (
	defaultMaxSizeMB = 10
	defaultMaxFiles  = 5
)

// Config selects the log level and destinations. An empty FilePath
// disables the log file.
type Config struct {
	Level         string
	FilePath      string
	MaxSizeMB     int
	MaxFiles      int
	WriteToStderr bool
}

// DefaultConfig logs at info to DefaultLogPath and stderr.
func DefaultConfig() Config {
	return Config{
		Level:         "info",
		FilePath:      DefaultLogPath(),
		MaxSizeMB:     defaultMaxSizeMB,
		MaxFiles:      defaultMaxFiles,
		WriteToStderr: true,
	}
}

// Setup builds a JSON logger over every configured destination. The
// returned cleanup syncs and closes the log file; it is safe to call when
// no file was opened.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	var (
		dests   []io.Writer
		cleanup = func() {}
	)

	if cfg.FilePath != "" {
		w, err := NewRotatingWriter(cfg.FilePath, orDefault(cfg.MaxSizeMB, defaultMaxSizeMB), orDefault(cfg.MaxFiles, defaultMaxFiles))
		if err != nil {
			return nil, nil, err
		}
		dests = append(dests, w)
		cleanup = func() {
			_ = w.Sync()
			_ = w.Close()
		}
	}
	if cfg.WriteToStderr {
		dests = append(dests, os.Stderr)
	}

	// MultiWriter over no writers accepts and drops everything.
	h := slog.NewJSONHandler(io.MultiWriter(dests...), &slog.HandlerOptions{Level: ParseLevel(cfg.Level)})
	return slog.New(h), cleanup, nil
}

// SetupDefault runs Setup and installs the logger as slog's default.
func SetupDefault(cfg Config) (func(), error) {
	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return cleanup, nil
}

// ParseLevel accepts slog level names in any case, offsets such as
// "info+2", and "warning". Anything else is info.
func ParseLevel(level string) slog.Level {
	level = strings.TrimSpace(level)
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
