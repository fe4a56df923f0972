package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// isolate points every config, data and log path at a temp directory and
// returns the data directory.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	dataDir := filepath.Join(home, "data")
	t.Setenv("BULLETINSEARCH_DATA_DIR", dataDir)
	t.Setenv("BULLETINSEARCH_EMBEDDINGS_PROVIDER", "static")
	t.Chdir(home)
	t.Cleanup(func() { _ = finish(nil, nil) })
	return dataDir
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeContext(t, context.Background(), args...)
}

func executeContext(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	stdout := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return stdout.String(), err
}

const testRecords = `{"chunk_id":"boja-2024-041#3","document_id":"boja-2024-041","text":"Resolución por la que se convocan subvenciones para trabajadores autónomos","metadata":{"section_type":"resolution","topic":"employment","language":"es","year":"2024","month":"03","entities":["Junta de Andalucía"]}}
{"chunk_id":"boja-2023-112#1","document_id":"boja-2023-112","text":"Anuncio de licitación de obras de mejora de la red de carreteras","metadata":{"section_type":"announcement","topic":"infrastructure","language":"es","year":"2023","month":"11","has_amounts":true}}
{"chunk_id":"boja-2023-090#7","document_id":"boja-2023-090","text":"Orden de subvenciones destinadas a la rehabilitación de vivienda","metadata":{"section_type":"order","topic":"housing","language":"es","year":"2023","month":"06","entities":["Consejería de Fomento"]}}
`

func writeRecords(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "records.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(testRecords), 0o644))
	return path
}

func indexTestRecords(t *testing.T) {
	t.Helper()
	out, err := execute(t, "index", writeRecords(t))
	require.NoError(t, err)
	require.True(t, strings.Contains(out, "Indexed 3 records"), out)
}
