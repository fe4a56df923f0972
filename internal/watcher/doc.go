// Package watcher reports changes to a single chunk records file.
//
// The parent directory is watched with fsnotify so that atomic replaces
// (write to a temp file, then rename) are seen. Where fsnotify cannot be
// used the file is polled by size and modification time. Events are
// debounced so an exporter writing in many small chunks triggers one
// re-index.
//
// Usage:
//
//	w, err := watcher.NewFileWatcher("records.jsonl", watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	go func() { _ = w.Run(ctx) }()
//
//	for batch := range w.Events() {
//	    // re-index unless the last event is a delete
//	}
package watcher
