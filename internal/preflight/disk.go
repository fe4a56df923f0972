package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"
)

// MinDiskSpaceBytes is the free space needed under the data directory.
const MinDiskSpaceBytes = 100 << 20

// freeBytes returns the space available to unprivileged users on the
// filesystem holding path.
var freeBytes = func(path string) (uint64, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil
}

// CheckDiskSpace measures the filesystem of path, or of its nearest
// existing parent before the first index run creates it.
func (c *Checker) CheckDiskSpace(path string) CheckResult {
	r := CheckResult{Name: "disk_space", Required: true}

	free, err := freeBytes(nearestExisting(path))
	if err != nil {
		r.Status = StatusFail
		r.Message = fmt.Sprintf("failed to check disk space: %v", err)
		return r
	}

	r.Message = fmt.Sprintf("%s free (minimum: %s)", humanize.IBytes(free), humanize.IBytes(MinDiskSpaceBytes))
	r.Status = StatusPass
	if free < MinDiskSpaceBytes {
		r.Status = StatusFail
	}
	return r
}

func nearestExisting(path string) string {
	for {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return path
		}
		path = parent
	}
}
