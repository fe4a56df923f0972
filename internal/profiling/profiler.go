// Package profiling captures CPU, heap and execution-trace profiles for one
// CLI run, typically a large index or a benchmark search.
package profiling

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"

	"github.com/dustin/go-humanize"
)

// Options names the profile files to write. Empty paths are skipped.
type Options struct {
	CPUProfile  string
	HeapProfile string
	Trace       string
}

// Enabled reports whether any profile was requested.
func (o Options) Enabled() bool {
	return o.CPUProfile != "" || o.HeapProfile != "" || o.Trace != ""
}

// Session is an active set of profiles. Stop must be called once.
type Session struct {
	opts      Options
	cpuFile   *os.File
	traceFile *os.File
}

// Start begins CPU profiling and tracing as requested. On error nothing is
// left running.
func Start(opts Options) (*Session, error) {
	s := &Session{opts: opts}

	if opts.CPUProfile != "" {
		f, err := os.Create(opts.CPUProfile)
		if err != nil {
			return nil, fmt.Errorf("failed to create CPU profile file: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to start CPU profile: %w", err)
		}
		s.cpuFile = f
	}

	if opts.Trace != "" {
		f, err := os.Create(opts.Trace)
		if err != nil {
			s.stopCPU()
			return nil, fmt.Errorf("failed to create trace file: %w", err)
		}
		if err := trace.Start(f); err != nil {
			_ = f.Close()
			s.stopCPU()
			return nil, fmt.Errorf("failed to start trace: %w", err)
		}
		s.traceFile = f
	}

	return s, nil
}

// Stop ends CPU profiling and tracing, then writes the heap profile.
func (s *Session) Stop() error {
	if s == nil {
		return nil
	}

	var errs []error
	if s.cpuFile != nil {
		errs = append(errs, s.stopCPU())
	}
	if s.traceFile != nil {
		trace.Stop()
		errs = append(errs, closeAndLog(s.traceFile, "trace"))
		s.traceFile = nil
	}
	if s.opts.HeapProfile != "" {
		errs = append(errs, WriteHeap(s.opts.HeapProfile))
	}
	return errors.Join(errs...)
}

func (s *Session) stopCPU() error {
	if s.cpuFile == nil {
		return nil
	}
	pprof.StopCPUProfile()
	err := closeAndLog(s.cpuFile, "cpu")
	s.cpuFile = nil
	return err
}

func closeAndLog(f *os.File, kind string) error {
	info, statErr := f.Stat()
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s profile: %w", kind, err)
	}
	if statErr == nil {
		slog.Info("profile_written",
			slog.String("kind", kind),
			slog.String("path", f.Name()),
			slog.String("size", humanize.IBytes(uint64(info.Size()))))
	}
	return nil
}

// WriteHeap writes a heap profile to the specified file.
// This is a point-in-time snapshot of memory allocations.
func WriteHeap(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create heap profile file: %w", err)
	}

	// Collect first so the profile shows live objects only.
	runtime.GC()

	if err := pprof.WriteHeapProfile(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write heap profile: %w", err)
	}
	return closeAndLog(f, "heap")
}

// LogMemory logs the current heap and system memory under event.
func LogMemory(event string) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	slog.Info(event,
		slog.String("heap_alloc", humanize.IBytes(m.HeapAlloc)),
		slog.String("sys", humanize.IBytes(m.Sys)),
		slog.Uint64("num_gc", uint64(m.NumGC)))
}
