package watcher

import "time"

// Operation is the kind of change seen on the records file.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	// OpDelete also covers a rename away from the watched path.
	OpDelete
)

var opNames = [...]string{OpCreate: "CREATE", OpModify: "MODIFY", OpDelete: "DELETE"}

func (op Operation) String() string {
	if op < 0 || int(op) >= len(opNames) {
		return "UNKNOWN"
	}
	return opNames[op]
}

// FileEvent is one detected change. Path is absolute.
type FileEvent struct {
	Path      string
	Operation Operation
	Timestamp time.Time
}

const (
	defaultDebounceWindow = 500 * time.Millisecond
	defaultPollInterval   = 2 * time.Second
)

// Options tune a FileWatcher. Zero values take the defaults.
type Options struct {
	// DebounceWindow is the quiet period after the last change before a
	// batch is emitted. Exporters often write a records file in several
	// syscalls.
	DebounceWindow time.Duration
	// PollInterval is used when fsnotify is unavailable or ForcePolling
	// is set.
	PollInterval time.Duration
	// ForcePolling skips fsnotify, for network filesystems that do not
	// deliver notifications.
	ForcePolling bool
}

func DefaultOptions() Options {
	return Options{DebounceWindow: defaultDebounceWindow, PollInterval: defaultPollInterval}
}

// WithDefaults fills zero or negative durations.
func (o Options) WithDefaults() Options {
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = defaultDebounceWindow
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
	return o
}
