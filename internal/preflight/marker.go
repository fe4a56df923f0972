package preflight

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/Aman-CERP/bulletinsearch/pkg/version"
)

// MarkerFile is written to the data directory once the checks pass, so
// serve can skip them on later starts of the same binary.
const MarkerFile = ".preflight-passed"

// Marker is the content of MarkerFile.
type Marker struct {
	Version  string    `json:"version"`
	PassedAt time.Time `json:"passed_at"`
}

// ReadMarker loads the marker of dataDir. A missing or unreadable marker
// is reported as an error.
func ReadMarker(dataDir string) (Marker, error) {
	var m Marker
	data, err := os.ReadFile(filepath.Join(dataDir, MarkerFile))
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("corrupt preflight marker: %w", err)
	}
	if m.Version == "" || m.PassedAt.IsZero() {
		return m, errors.New("corrupt preflight marker: missing fields")
	}
	return m, nil
}

// NeedsCheck reports whether dataDir lacks a valid marker from this version.
func NeedsCheck(dataDir string) bool {
	m, err := ReadMarker(dataDir)
	return err != nil || m.Version != version.Version
}

// MarkPassed records a successful check run for the running version.
func MarkPassed(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create marker directory: %w", err)
	}
	data, err := json.Marshal(Marker{Version: version.Version, PassedAt: time.Now().UTC()})
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dataDir, MarkerFile+".*")
	if err != nil {
		return fmt.Errorf("write marker: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write marker: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write marker: %w", err)
	}
	return os.Rename(tmp.Name(), filepath.Join(dataDir, MarkerFile))
}

// ClearMarker forces the checks to run on the next serve.
func ClearMarker(dataDir string) error {
	err := os.Remove(filepath.Join(dataDir, MarkerFile))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove marker file: %w", err)
	}
	return nil
}

// MarkerAge is the time since the last passing run, or zero without a
// valid marker.
func MarkerAge(dataDir string) time.Duration {
	m, err := ReadMarker(dataDir)
	if err != nil {
		return 0
	}
	return time.Since(m.PassedAt)
}
