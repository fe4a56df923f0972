package index

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Aman-CERP/bulletinsearch/internal/chunk"
	"github.com/Aman-CERP/bulletinsearch/internal/store"
)

// DefaultCheckBatchSize is the number of ids resolved per lookup.
const DefaultCheckBatchSize = 500

// Inconsistency is a record whose stored copy differs from the source.
type Inconsistency struct {
	ChunkID string
	Reason  string
}

// CheckResult contains the results of a consistency check.
type CheckResult struct {
	Checked int
	Issues  []Inconsistency
}

// Consistent reports whether every record was found intact.
func (r *CheckResult) Consistent() bool {
	return len(r.Issues) == 0
}

// ConsistencyChecker verifies that indexed records can be resolved by the
// record store, which is what retrieval joins fused ids against.
type ConsistencyChecker struct {
	records   store.RecordStore
	batchSize int
}

// NewConsistencyChecker creates a checker over records.
func NewConsistencyChecker(records store.RecordStore) *ConsistencyChecker {
	return &ConsistencyChecker{
		records:   records,
		batchSize: DefaultCheckBatchSize,
	}
}

// Check looks up every expected record and reports missing or stale ones.
func (c *ConsistencyChecker) Check(ctx context.Context, expected []*chunk.ChunkRecord) (*CheckResult, error) {
	result := &CheckResult{}

	for start := 0; start < len(expected); start += c.batchSize {
		end := min(start+c.batchSize, len(expected))
		batch := expected[start:end]

		ids := make([]string, len(batch))
		for i, rec := range batch {
			ids[i] = rec.ID
		}

		found, err := c.records.GetChunks(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve records: %w", err)
		}

		for _, want := range batch {
			result.Checked++
			got, ok := found[want.ID]
			switch {
			case !ok:
				result.Issues = append(result.Issues, Inconsistency{ChunkID: want.ID, Reason: "missing from record store"})
			case got.Text != want.Text:
				result.Issues = append(result.Issues, Inconsistency{ChunkID: want.ID, Reason: "text differs"})
			case got.DocumentID != want.DocumentID:
				result.Issues = append(result.Issues, Inconsistency{ChunkID: want.ID, Reason: "document_id differs"})
			}
		}
	}

	if !result.Consistent() {
		slog.Warn("index_inconsistent",
			slog.Int("checked", result.Checked),
			slog.Int("issues", len(result.Issues)),
			slog.String("first_chunk", result.Issues[0].ChunkID))
	}
	return result, nil
}
