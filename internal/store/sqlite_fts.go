package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/Aman-CERP/bulletinsearch/internal/chunk"
	"github.com/Aman-CERP/bulletinsearch/internal/filter"
)

// sqliteBM25Saturation is the raw BM25 score that normalizes to 0.5.
// FTS5 scores for bulletin-sized chunks mostly fall between 1 and 20.
const sqliteBM25Saturation = 5.0

// SQLiteKeywordIndex implements KeywordIndex and RecordStore on SQLite FTS5.
//
// Chunk text is pre-tokenized with Tokenize (accent folding, stop words)
// before it reaches FTS5, and queries go through the same function. Query
// terms are OR-ed, so a chunk matching any term is a candidate and bm25()
// ranks chunks matching more and rarer terms higher.
//
// RawScore is -bm25() (higher is better). NormalizeScore is s/(s+5).
// Equal scores are ordered by chunk_id.
type SQLiteKeywordIndex struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var (
	_ KeywordIndex  = (*SQLiteKeywordIndex)(nil)
	_ KeywordWriter = (*SQLiteKeywordIndex)(nil)
	_ RecordStore   = (*SQLiteKeywordIndex)(nil)
)

// validateSQLiteIntegrity checks if an existing database is usable.
func validateSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // Database doesn't exist, will be created
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master
                       WHERE type='table' AND name='chunks_fts'`).Scan(&count)
	if err != nil {
		return fmt.Errorf("cannot query schema: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("FTS5 table 'chunks_fts' missing")
	}
	return nil
}

// NewSQLiteKeywordIndex opens or creates a keyword index at path.
// An empty path creates an in-memory index.
func NewSQLiteKeywordIndex(path string) (*SQLiteKeywordIndex, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}

		if validErr := validateSQLiteIntegrity(path); validErr != nil {
			slog.Warn("sqlite_keyword_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))

			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, fmt.Errorf("keyword index corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")

			slog.Info("sqlite_keyword_index_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, please reindex"))
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: in-memory databases are per-connection, and a
	// single writer avoids lock contention on disk.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// DSN params may be ignored by modernc.org/sqlite, so pragmas are set explicitly.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	idx := &SQLiteKeywordIndex{db: db, path: path}
	if err := idx.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return idx, nil
}

func (s *SQLiteKeywordIndex) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS chunks (
		chunk_id        TEXT PRIMARY KEY,
		document_id     TEXT NOT NULL,
		text            TEXT NOT NULL,
		section_type    TEXT NOT NULL DEFAULT '',
		topic           TEXT NOT NULL DEFAULT '',
		language        TEXT NOT NULL DEFAULT '',
		has_tables      INTEGER NOT NULL DEFAULT 0,
		has_amounts     INTEGER NOT NULL DEFAULT 0,
		jurisdiction_id INTEGER NOT NULL DEFAULT 0,
		year            TEXT NOT NULL DEFAULT '',
		month           TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_date ON chunks(year, month);

	CREATE TABLE IF NOT EXISTS chunk_entities (
		chunk_id TEXT NOT NULL,
		entity   TEXT NOT NULL,
		PRIMARY KEY (chunk_id, entity)
	);
	CREATE INDEX IF NOT EXISTS idx_chunk_entities_entity ON chunk_entities(entity);

	-- content holds Tokenize output; chunk_id is stored but not searchable
	CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
		chunk_id UNINDEXED,
		content,
		tokenize='unicode61'
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Name implements KeywordIndex.
func (s *SQLiteKeywordIndex) Name() string { return "sqlite" }

// Capabilities implements KeywordIndex.
func (s *SQLiteKeywordIndex) Capabilities() filter.KeywordCapabilities {
	return filter.KeywordCapabilities{
		Backend:        s.Name(),
		Dialect:        filter.DialectSQLite,
		EntityMatching: true,
	}
}

// NormalizeScore implements KeywordIndex.
func (s *SQLiteKeywordIndex) NormalizeScore(raw float64) float64 {
	return SaturateScore(raw, sqliteBM25Saturation)
}

// Upsert adds or replaces records. FTS5 has no REPLACE, so existing rows
// are deleted first.
func (s *SQLiteKeywordIndex) Upsert(ctx context.Context, records []*chunk.ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrIndexClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	deleteFTS, err := tx.PrepareContext(ctx, `DELETE FROM chunks_fts WHERE chunk_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}
	defer deleteFTS.Close()

	insertFTS, err := tx.PrepareContext(ctx, `INSERT INTO chunks_fts(chunk_id, content) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare FTS statement: %w", err)
	}
	defer insertFTS.Close()

	upsertChunk, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO chunks(chunk_id, document_id, text, section_type, topic, language,
			has_tables, has_amounts, jurisdiction_id, year, month)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk statement: %w", err)
	}
	defer upsertChunk.Close()

	deleteEntities, err := tx.PrepareContext(ctx, `DELETE FROM chunk_entities WHERE chunk_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare entity delete statement: %w", err)
	}
	defer deleteEntities.Close()

	insertEntity, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO chunk_entities(chunk_id, entity) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare entity statement: %w", err)
	}
	defer insertEntity.Close()

	for _, r := range records {
		m := r.Metadata
		if _, err := deleteFTS.ExecContext(ctx, r.ID); err != nil {
			return fmt.Errorf("failed to delete existing chunk %s: %w", r.ID, err)
		}
		if _, err := insertFTS.ExecContext(ctx, r.ID, strings.Join(Tokenize(r.Text), " ")); err != nil {
			return fmt.Errorf("failed to index chunk %s: %w", r.ID, err)
		}
		if _, err := upsertChunk.ExecContext(ctx, r.ID, r.DocumentID, r.Text, m.SectionType, m.Topic,
			m.Language, boolToInt(m.HasTables), boolToInt(m.HasAmounts), m.JurisdictionID, m.Year, m.Month); err != nil {
			return fmt.Errorf("failed to store chunk %s: %w", r.ID, err)
		}
		if _, err := deleteEntities.ExecContext(ctx, r.ID); err != nil {
			return fmt.Errorf("failed to clear entities of %s: %w", r.ID, err)
		}
		for _, e := range m.Entities {
			if _, err := insertEntity.ExecContext(ctx, r.ID, e); err != nil {
				return fmt.Errorf("failed to store entity of %s: %w", r.ID, err)
			}
		}
	}

	return tx.Commit()
}

// buildMatchQuery turns query tokens into an FTS5 OR expression. Every
// token is quoted, so user input can never produce FTS5 syntax.
func buildMatchQuery(tokens []string) string {
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " OR ")
}

// Search implements KeywordIndex.
func (s *SQLiteKeywordIndex) Search(ctx context.Context, query string, pred filter.KeywordPredicate, topK int) ([]*RankedHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrIndexClosed
	}

	tokens := UniqueTokens(Tokenize(query))
	if len(tokens) == 0 || topK <= 0 {
		return []*RankedHit{}, nil
	}

	// bm25() is negative, lower is better
	q := `
		SELECT chunks_fts.chunk_id, bm25(chunks_fts) AS score
		FROM chunks_fts
		JOIN chunks c ON c.chunk_id = chunks_fts.chunk_id
		WHERE chunks_fts MATCH ?` + pred.AndClause() + `
		ORDER BY score, chunks_fts.chunk_id
		LIMIT ?`

	args := make([]any, 0, len(pred.Args)+2)
	args = append(args, buildMatchQuery(tokens))
	args = append(args, pred.Args...)
	args = append(args, topK)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		if strings.Contains(err.Error(), "fts5:") {
			slog.Debug("sqlite_fts_query_rejected", slog.String("error", err.Error()))
			return []*RankedHit{}, nil
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	hits := make([]*RankedHit, 0, topK)
	for rows.Next() {
		var id string
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		hits = append(hits, &RankedHit{
			ChunkID:      id,
			RawScore:     -score,
			Rank:         len(hits) + 1,
			MatchedTerms: tokens,
		})
	}
	return hits, rows.Err()
}

// GetChunks implements RecordStore.
func (s *SQLiteKeywordIndex) GetChunks(ctx context.Context, ids []string) (map[string]*chunk.ChunkRecord, error) {
	out := make(map[string]*chunk.ChunkRecord, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrIndexClosed
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, document_id, text, section_type, topic, language,
			has_tables, has_amounts, jurisdiction_id, year, month
		FROM chunks WHERE chunk_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	for rows.Next() {
		var r chunk.ChunkRecord
		var hasTables, hasAmounts int
		if err := rows.Scan(&r.ID, &r.DocumentID, &r.Text, &r.Metadata.SectionType, &r.Metadata.Topic,
			&r.Metadata.Language, &hasTables, &hasAmounts, &r.Metadata.JurisdictionID,
			&r.Metadata.Year, &r.Metadata.Month); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		r.Metadata.HasTables = hasTables != 0
		r.Metadata.HasAmounts = hasAmounts != 0
		out[r.ID] = &r
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	entityRows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, entity FROM chunk_entities
		WHERE chunk_id IN (`+placeholders+`) ORDER BY chunk_id, entity`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer entityRows.Close()
	for entityRows.Next() {
		var id, entity string
		if err := entityRows.Scan(&id, &entity); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		if r, ok := out[id]; ok {
			r.Metadata.Entities = append(r.Metadata.Entities, entity)
		}
	}
	return out, entityRows.Err()
}

// Delete removes chunks from every table.
func (s *SQLiteKeywordIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrIndexClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	for _, table := range []string{"chunks_fts", "chunks", "chunk_entities"} {
		q := fmt.Sprintf("DELETE FROM %s WHERE chunk_id IN (%s)", table, placeholders)
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("failed to delete from %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// Count returns the number of stored chunks.
func (s *SQLiteKeywordIndex) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrIndexClosed
	}
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count)
	return count, err
}

// Close checkpoints the WAL and closes the database.
func (s *SQLiteKeywordIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.db != nil {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return s.db.Close()
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
