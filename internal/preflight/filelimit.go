package preflight

import (
	"fmt"
	"syscall"
)

// The server keeps the SQLite database, the HNSW graph, the log file and one
// descriptor per open connection.
const (
	MinFileDescriptors         = 256
	RecommendedFileDescriptors = 1024
)

// noFileLimit returns the soft RLIMIT_NOFILE.
var noFileLimit = func() (uint64, error) {
	var lim syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &lim); err != nil {
		return 0, err
	}
	return lim.Cur, nil
}

// CheckFileDescriptors fails below MinFileDescriptors and warns below
// RecommendedFileDescriptors.
func (c *Checker) CheckFileDescriptors() CheckResult {
	r := CheckResult{Name: "file_descriptors", Required: true}

	limit, err := noFileLimit()
	if err != nil {
		r.Status = StatusFail
		r.Message = fmt.Sprintf("failed to read open file limit: %v", err)
		return r
	}

	r.Message = fmt.Sprintf("%d open files allowed", limit)
	switch {
	case limit < MinFileDescriptors:
		r.Status = StatusFail
		r.Message += fmt.Sprintf(" (minimum: %d)", MinFileDescriptors)
	case limit < RecommendedFileDescriptors:
		r.Status = StatusWarn
		r.Message += fmt.Sprintf(" (recommended: %d)", RecommendedFileDescriptors)
	default:
		r.Status = StatusPass
		return r
	}
	r.Details = fmt.Sprintf("Raise the limit with `ulimit -n %d` before starting bulletinsearch", RecommendedFileDescriptors*4)
	return r
}
