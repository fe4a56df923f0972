package preflight

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/bulletinsearch/pkg/version"
)

func writeMarker(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, MarkerFile), []byte(content), 0o644))
}

func TestNeedsCheck(t *testing.T) {
	tests := []struct {
		name    string
		content string // empty means no marker
		want    bool
	}{
		{"no marker", "", true},
		{"other version", `{"version":"0.0.1-old","passed_at":"2026-01-02T03:04:05Z"}`, true},
		{"current version", `{"version":"` + version.Version + `","passed_at":"2026-01-02T03:04:05Z"}`, false},
		{"not json", "garbage", true},
		{"missing time", `{"version":"` + version.Version + `"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.content != "" {
				writeMarker(t, dir, tt.content)
			}
			assert.Equal(t, tt.want, NeedsCheck(dir))
		})
	}
}

func TestMarkPassed_RoundTrip(t *testing.T) {
	// Given: a data directory that does not exist yet
	dir := filepath.Join(t.TempDir(), "subdir", "data")

	// When: marking as passed
	before := time.Now().UTC().Add(-time.Second)
	require.NoError(t, MarkPassed(dir))

	// Then: the marker names this version and a recent time
	m, err := ReadMarker(dir)
	require.NoError(t, err)
	assert.Equal(t, version.Version, m.Version)
	assert.True(t, m.PassedAt.After(before))
	assert.False(t, NeedsCheck(dir))

	// And: no temporary files are left next to it
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestReadMarker_Missing(t *testing.T) {
	_, err := ReadMarker(t.TempDir())
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestClearMarker(t *testing.T) {
	// Given: a passed data directory
	dir := t.TempDir()
	require.NoError(t, MarkPassed(dir))

	// When: clearing twice
	require.NoError(t, ClearMarker(dir))
	require.NoError(t, ClearMarker(dir))

	// Then: the checks run again
	assert.NoFileExists(t, filepath.Join(dir, MarkerFile))
	assert.True(t, NeedsCheck(dir))
}

func TestMarkerAge(t *testing.T) {
	dir := t.TempDir()
	assert.Zero(t, MarkerAge(dir))

	writeMarker(t, dir, "garbage")
	assert.Zero(t, MarkerAge(dir))

	require.NoError(t, MarkPassed(dir))
	assert.Less(t, MarkerAge(dir), 2*time.Second)
}
