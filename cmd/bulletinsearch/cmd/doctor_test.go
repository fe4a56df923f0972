package cmd

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/bulletinsearch/internal/preflight"
)

func TestDoctorCmd_PassesAndMarks(t *testing.T) {
	// Given: an isolated data directory with the static embedder
	dataDir := isolate(t)

	// When: running doctor
	out, err := execute(t, "doctor")

	// Then: every check passes and the marker is written
	require.NoError(t, err)
	assert.Contains(t, out, "[PASS] embedder")
	assert.Contains(t, out, "[PASS] backend_hnsw")
	assert.Contains(t, out, "[PASS] backend_sqlite")
	assert.False(t, preflight.NeedsCheck(dataDir))
}

func TestDoctorCmd_JSON(t *testing.T) {
	isolate(t)
	indexTestRecords(t)

	out, err := execute(t, "doctor", "--format", "json")

	require.NoError(t, err)
	var report struct {
		Status string `json:"status"`
		Checks []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"checks"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report), out)
	assert.NotEqual(t, "failed", report.Status)
	require.NotEmpty(t, report.Checks)
	for _, c := range report.Checks {
		if c.Name == "embedder" {
			assert.Equal(t, "pass", c.Status)
		}
	}
}

func TestDoctorCmd_UnreachableBackendFails(t *testing.T) {
	// Given: a PostgreSQL keyword backend that cannot be reached
	dataDir := isolate(t)
	t.Setenv("BULLETINSEARCH_KEYWORD_BACKEND", "postgres")
	t.Setenv("BULLETINSEARCH_POSTGRES_DSN", "postgres://nobody@127.0.0.1:1/none?connect_timeout=1")

	// When: running doctor
	out, err := execute(t, "doctor")

	// Then: the failure is reported and no marker is left
	require.Error(t, err)
	assert.Contains(t, out, "[FAIL]")
	assert.True(t, preflight.NeedsCheck(dataDir))
}
