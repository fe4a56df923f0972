package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/Aman-CERP/bulletinsearch/internal/chunk"
	"github.com/Aman-CERP/bulletinsearch/internal/filter"
)

// postgresSchemaLockID serializes schema bootstrap across processes.
const postgresSchemaLockID int64 = 2025031701

// PostgresKeywordIndex implements KeywordIndex and RecordStore on
// PostgreSQL full-text search.
//
// Like the SQLite index, content is pre-tokenized with Tokenize and queried
// with OR-ed terms through websearch_to_tsquery('simple', ...). RawScore is
// ts_rank_cd with normalization flag 32 (rank/(rank+1)), already in [0,1).
type PostgresKeywordIndex struct {
	db *sql.DB
}

var (
	_ KeywordIndex  = (*PostgresKeywordIndex)(nil)
	_ KeywordWriter = (*PostgresKeywordIndex)(nil)
	_ RecordStore   = (*PostgresKeywordIndex)(nil)
)

// OpenPostgres opens a pooled connection through the pgx stdlib driver.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// NewPostgresKeywordIndex wraps an open database. Call EnsureSchema before
// the first write.
func NewPostgresKeywordIndex(db *sql.DB) *PostgresKeywordIndex {
	return &PostgresKeywordIndex{db: db}
}

// EnsureSchema creates the chunks table and its indexes.
func (p *PostgresKeywordIndex) EnsureSchema(ctx context.Context) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, postgresSchemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS chunks (
	chunk_id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	text TEXT NOT NULL,
	content TEXT NOT NULL,
	section_type TEXT NOT NULL DEFAULT '',
	topic TEXT NOT NULL DEFAULT '',
	language TEXT NOT NULL DEFAULT '',
	has_tables BOOLEAN NOT NULL DEFAULT false,
	has_amounts BOOLEAN NOT NULL DEFAULT false,
	jurisdiction_id BIGINT NOT NULL DEFAULT 0,
	year TEXT NOT NULL DEFAULT '',
	month TEXT NOT NULL DEFAULT '',
	entities TEXT[] NOT NULL DEFAULT '{}',
	tsv TSVECTOR GENERATED ALWAYS AS (to_tsvector('simple', content)) STORED
);

CREATE INDEX IF NOT EXISTS idx_chunks_tsv ON chunks USING GIN (tsv);
CREATE INDEX IF NOT EXISTS idx_chunks_entities ON chunks USING GIN (entities);
CREATE INDEX IF NOT EXISTS idx_chunks_date ON chunks(year, month);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Name implements KeywordIndex.
func (p *PostgresKeywordIndex) Name() string { return "postgres" }

// Capabilities implements KeywordIndex. The query text is bound as $1.
func (p *PostgresKeywordIndex) Capabilities() filter.KeywordCapabilities {
	return filter.KeywordCapabilities{
		Backend:        p.Name(),
		Dialect:        filter.DialectPostgres,
		EntityMatching: true,
		ArgOffset:      1,
	}
}

// NormalizeScore implements KeywordIndex.
func (p *PostgresKeywordIndex) NormalizeScore(raw float64) float64 { return Clamp01(raw) }

// Search implements KeywordIndex.
func (p *PostgresKeywordIndex) Search(ctx context.Context, query string, pred filter.KeywordPredicate, topK int) ([]*RankedHit, error) {
	tokens := UniqueTokens(Tokenize(query))
	if len(tokens) == 0 || topK <= 0 {
		return []*RankedHit{}, nil
	}

	args := make([]any, 0, len(pred.Args)+2)
	args = append(args, strings.Join(tokens, " or "))
	args = append(args, pred.Args...)
	args = append(args, topK)

	q := `SELECT c.chunk_id, ts_rank_cd(c.tsv, q, 32) AS rank
FROM chunks c, websearch_to_tsquery('simple', $1) q
WHERE c.tsv @@ q` + pred.AndClause() + `
ORDER BY rank DESC, c.chunk_id
LIMIT $` + fmt.Sprint(len(args))

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres search: %w", err)
	}
	defer rows.Close()

	hits := make([]*RankedHit, 0, topK)
	for rows.Next() {
		var id string
		var rank float64
		if err := rows.Scan(&id, &rank); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		hits = append(hits, &RankedHit{
			ChunkID:      id,
			RawScore:     rank,
			Rank:         len(hits) + 1,
			MatchedTerms: tokens,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return hits, nil
}

// Upsert implements KeywordWriter.
func (p *PostgresKeywordIndex) Upsert(ctx context.Context, records []*chunk.ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	const query = `
INSERT INTO chunks (chunk_id, document_id, text, content, section_type, topic, language,
	has_tables, has_amounts, jurisdiction_id, year, month, entities)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (chunk_id) DO UPDATE SET
	document_id = EXCLUDED.document_id,
	text = EXCLUDED.text,
	content = EXCLUDED.content,
	section_type = EXCLUDED.section_type,
	topic = EXCLUDED.topic,
	language = EXCLUDED.language,
	has_tables = EXCLUDED.has_tables,
	has_amounts = EXCLUDED.has_amounts,
	jurisdiction_id = EXCLUDED.jurisdiction_id,
	year = EXCLUDED.year,
	month = EXCLUDED.month,
	entities = EXCLUDED.entities`

	for _, r := range records {
		m := r.Metadata
		entities := m.Entities
		if entities == nil {
			entities = []string{}
		}
		if _, err := tx.ExecContext(ctx, query,
			r.ID, r.DocumentID, r.Text, strings.Join(Tokenize(r.Text), " "),
			m.SectionType, m.Topic, m.Language, m.HasTables, m.HasAmounts,
			m.JurisdictionID, m.Year, m.Month, entities,
		); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert tx: %w", err)
	}
	return nil
}

// GetChunks implements RecordStore.
func (p *PostgresKeywordIndex) GetChunks(ctx context.Context, ids []string) (map[string]*chunk.ChunkRecord, error) {
	out := make(map[string]*chunk.ChunkRecord, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	// entities come back as JSON so the scan needs no array support
	rows, err := p.db.QueryContext(ctx, `
SELECT chunk_id, document_id, text, section_type, topic, language,
	has_tables, has_amounts, jurisdiction_id, year, month,
	COALESCE(array_to_json(entities)::text, '[]')
FROM chunks WHERE chunk_id = ANY($1::text[])`, ids)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r chunk.ChunkRecord
		var entities string
		if err := rows.Scan(&r.ID, &r.DocumentID, &r.Text, &r.Metadata.SectionType, &r.Metadata.Topic,
			&r.Metadata.Language, &r.Metadata.HasTables, &r.Metadata.HasAmounts, &r.Metadata.JurisdictionID,
			&r.Metadata.Year, &r.Metadata.Month, &entities); err != nil {
			return nil, fmt.Errorf("scan chunk row: %w", err)
		}
		if err := json.Unmarshal([]byte(entities), &r.Metadata.Entities); err != nil {
			return nil, fmt.Errorf("decode entities of %s: %w", r.ID, err)
		}
		if len(r.Metadata.Entities) == 0 {
			r.Metadata.Entities = nil
		}
		out[r.ID] = &r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunk rows: %w", err)
	}
	return out, nil
}

// Close closes the underlying pool.
func (p *PostgresKeywordIndex) Close() error {
	return p.db.Close()
}
