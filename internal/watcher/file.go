package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher watches one file for changes.
type FileWatcher struct {
	path      string
	opts      Options
	debouncer *Debouncer
	errors    chan error
}

// NewFileWatcher creates a watcher for path. The file's directory must
// exist; the file itself may not exist yet.
func NewFileWatcher(path string, opts Options) (*FileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve absolute path: %w", err)
	}
	info, err := os.Stat(filepath.Dir(abs))
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch %s: parent is not a directory", path)
	}

	opts = opts.WithDefaults()
	return &FileWatcher{
		path:      abs,
		opts:      opts,
		debouncer: NewDebouncer(opts.DebounceWindow),
		errors:    make(chan error, 10),
	}, nil
}

// Path returns the absolute path being watched.
func (w *FileWatcher) Path() string {
	return w.path
}

// Events returns debounced batches of changes. The channel is closed when
// Run returns.
func (w *FileWatcher) Events() <-chan []FileEvent {
	return w.debouncer.Output()
}

// Errors returns non-fatal watch errors. Errors are dropped when nobody
// reads them.
func (w *FileWatcher) Errors() <-chan error {
	return w.errors
}

// Run watches until ctx is cancelled. It falls back to polling when
// fsnotify cannot be started.
func (w *FileWatcher) Run(ctx context.Context) error {
	defer w.debouncer.Stop()

	if !w.opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			err = fsw.Add(filepath.Dir(w.path))
			if err == nil {
				return w.runFsnotify(ctx, fsw)
			}
			_ = fsw.Close()
		}
		slog.Warn("watch_fallback_polling",
			slog.String("path", w.path),
			slog.String("error", err.Error()))
	}
	return w.runPolling(ctx)
}

func (w *FileWatcher) runFsnotify(ctx context.Context, fsw *fsnotify.Watcher) error {
	defer func() { _ = fsw.Close() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if op, ok := translateOp(event.Op); ok {
				w.debouncer.Add(FileEvent{Path: w.path, Operation: op, Timestamp: time.Now()})
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

// translateOp maps fsnotify operations. Chmod alone is not a change.
func translateOp(op fsnotify.Op) (Operation, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return OpCreate, true
	case op.Has(fsnotify.Write):
		return OpModify, true
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return OpDelete, true
	default:
		return 0, false
	}
}

// fileState is what polling compares between ticks.
type fileState struct {
	exists  bool
	size    int64
	modTime time.Time
}

func (w *FileWatcher) stat() fileState {
	info, err := os.Stat(w.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			w.emitError(err)
		}
		return fileState{}
	}
	return fileState{exists: true, size: info.Size(), modTime: info.ModTime()}
}

func (w *FileWatcher) runPolling(ctx context.Context) error {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	last := w.stat()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			cur := w.stat()
			if op, changed := diffStates(last, cur); changed {
				w.debouncer.Add(FileEvent{Path: w.path, Operation: op, Timestamp: time.Now()})
			}
			last = cur
		}
	}
}

func diffStates(prev, cur fileState) (Operation, bool) {
	switch {
	case !prev.exists && cur.exists:
		return OpCreate, true
	case prev.exists && !cur.exists:
		return OpDelete, true
	case cur.exists && (cur.size != prev.size || !cur.modTime.Equal(prev.modTime)):
		return OpModify, true
	default:
		return 0, false
	}
}

func (w *FileWatcher) emitError(err error) {
	select {
	case w.errors <- err:
	default:
		slog.Debug("watch_error_dropped", slog.String("error", err.Error()))
	}
}
