package index

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Aman-CERP/bulletinsearch/internal/chunk"
)

// maxRecordLine bounds a single JSONL line. Chunks are paragraphs, not
// documents, so anything larger is a malformed export.
const maxRecordLine = 4 * 1024 * 1024

// LoadResult is the outcome of reading a record file.
type LoadResult struct {
	Records []*chunk.ChunkRecord

	// Duplicates counts records whose chunk_id appeared earlier in the
	// file. The later record wins.
	Duplicates int
}

// LoadFile reads chunk records from a JSONL file.
func LoadFile(path string) (*LoadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open records: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Load(f)
}

// Load reads one JSON chunk record per line. Blank lines are skipped.
// The first malformed or invalid record aborts the load with its line
// number, so a partial file never reaches the indexes.
func Load(r io.Reader) (*LoadResult, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxRecordLine)

	result := &LoadResult{}
	seen := make(map[string]int)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var rec chunk.ChunkRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("line %d: invalid json: %w", line, err)
		}
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		if pos, ok := seen[rec.ID]; ok {
			result.Duplicates++
			slog.Debug("duplicate_chunk_record",
				slog.String("chunk_id", rec.ID),
				slog.Int("line", line))
			result.Records[pos] = &rec
			continue
		}
		seen[rec.ID] = len(result.Records)
		result.Records = append(result.Records, &rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("line %d: failed to read records: %w", line+1, err)
	}
	return result, nil
}
