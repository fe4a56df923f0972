package preflight

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/bulletinsearch/internal/embed"
)

// DefaultProbeTimeout bounds each embedder and backend probe.
const DefaultProbeTimeout = 5 * time.Second

// CheckStatus is the outcome of one check.
type CheckStatus int

const (
	StatusPass CheckStatus = iota
	StatusWarn
	StatusFail
)

var statusNames = [...]string{StatusPass: "PASS", StatusWarn: "WARN", StatusFail: "FAIL"}

func (s CheckStatus) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "UNKNOWN"
	}
	return statusNames[s]
}

// MarshalText renders the status in lower case for JSON output.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(s.String())), nil
}

// CheckResult is the outcome of one named check. A failed Required check
// blocks serving.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical reports whether r is a failed required check.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

func (r CheckResult) line() string {
	return r.Name + ": " + r.Message
}

// ProbeFunc answers whether a backend can serve a query.
type ProbeFunc func(ctx context.Context) error

type probe struct {
	name string
	fn   ProbeFunc
}

// Checker runs the local and remote readiness checks for a data directory.
type Checker struct {
	embedder embed.Embedder
	probes   []probe
	timeout  time.Duration
}

// Option configures a Checker.
type Option func(*Checker)

// WithEmbedder adds the embedder check.
func WithEmbedder(e embed.Embedder) Option {
	return func(c *Checker) {
		c.embedder = e
	}
}

// WithBackendProbe adds a required check named backend_<name>.
func WithBackendProbe(name string, fn ProbeFunc) Option {
	return func(c *Checker) {
		c.probes = append(c.probes, probe{name: name, fn: fn})
	}
}

// WithProbeTimeout overrides DefaultProbeTimeout. Non-positive values are
// ignored.
func WithProbeTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New returns a Checker.
func New(opts ...Option) *Checker {
	c := &Checker{timeout: DefaultProbeTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run checks dataDir, then probes the embedder and every backend
// concurrently. Checks appear in the report in a fixed order: local checks,
// the embedder, then the backends in the order they were added.
func (c *Checker) Run(ctx context.Context, dataDir string) *Report {
	local := []CheckResult{
		c.CheckWritePermissions(dataDir),
		c.CheckDiskSpace(dataDir),
		c.CheckFileDescriptors(),
	}

	var remote []func(context.Context) CheckResult
	if c.embedder != nil {
		remote = append(remote, func(ctx context.Context) CheckResult {
			return c.CheckEmbedder(ctx, c.embedder)
		})
	}
	for _, p := range c.probes {
		remote = append(remote, func(ctx context.Context) CheckResult {
			return c.CheckBackend(ctx, p.name, p.fn)
		})
	}

	// Each check reports its own failure, so the group never returns an error.
	results := make([]CheckResult, len(remote))
	g, gctx := errgroup.WithContext(ctx)
	for i, check := range remote {
		g.Go(func() error {
			results[i] = check(gctx)
			return nil
		})
	}
	_ = g.Wait()

	return NewReport(append(local, results...)...)
}

// CheckWritePermissions creates path if needed and checks a file can be
// written in it.
func (c *Checker) CheckWritePermissions(path string) CheckResult {
	result := CheckResult{
		Name:     "write_permissions",
		Required: true,
		Details:  "Data directory: " + path,
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create data directory: %v", err)
		return result
	}

	f, err := os.CreateTemp(path, ".preflight-*")
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(f.Name())

	result.Status = StatusPass
	result.Message = "OK"
	return result
}
