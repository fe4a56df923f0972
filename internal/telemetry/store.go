package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// MaxZeroResultQueries bounds the persisted zero-result buffer.
const MaxZeroResultQueries = 100

// Counter names a family of daily counts.
type Counter string

const (
	CounterTechnique Counter = "technique"
	CounterLatency   Counter = "latency"
	// CounterFilter counts requests per filter field, e.g. "year".
	CounterFilter Counter = "filter"
)

const telemetrySchema = `
CREATE TABLE IF NOT EXISTS daily_counts (
	date    TEXT    NOT NULL,
	counter TEXT    NOT NULL,
	key     TEXT    NOT NULL,
	count   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (date, counter, key)
);

CREATE TABLE IF NOT EXISTS query_terms (
	term      TEXT PRIMARY KEY,
	count     INTEGER NOT NULL DEFAULT 1,
	last_seen TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_query_terms_count ON query_terms(count DESC);

CREATE TABLE IF NOT EXISTS zero_result_queries (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	query     TEXT NOT NULL,
	timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// SQLiteMetricsStore persists query statistics in SQLite.
type SQLiteMetricsStore struct {
	db *sql.DB
	// owned is set when Open created db, so Close closes it.
	owned bool
}

var _ QueryMetricsStore = (*SQLiteMetricsStore)(nil)

// NewSQLiteMetricsStore uses an existing connection whose schema was set up
// with InitTelemetrySchema. Close leaves db open.
func NewSQLiteMetricsStore(db *sql.DB) (*SQLiteMetricsStore, error) {
	if db == nil {
		return nil, errors.New("database connection is required")
	}
	return &SQLiteMetricsStore{db: db}, nil
}

// OpenSQLiteMetricsStore opens or creates the database at path.
func OpenSQLiteMetricsStore(path string) (*SQLiteMetricsStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create telemetry directory: %w", err)
	}

	// The flush loop is the only writer; WAL lets `stats` read concurrently.
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open telemetry database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := InitTelemetrySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteMetricsStore{db: db, owned: true}, nil
}

func InitTelemetrySchema(db *sql.DB) error {
	if _, err := db.Exec(telemetrySchema); err != nil {
		return fmt.Errorf("create telemetry schema: %w", err)
	}
	return nil
}

// inTx runs fn with a statement prepared from query inside one transaction.
func (s *SQLiteMetricsStore) inTx(query string, fn func(*sql.Stmt) error) error {
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	if err := fn(stmt); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// AddDailyCounts adds counts to the totals of counter on date (YYYY-MM-DD).
func (s *SQLiteMetricsStore) AddDailyCounts(date string, counter Counter, counts map[string]int64) error {
	if len(counts) == 0 {
		return nil
	}
	return s.inTx(`
		INSERT INTO daily_counts (date, counter, key, count) VALUES (?, ?, ?, ?)
		ON CONFLICT(date, counter, key) DO UPDATE SET count = count + excluded.count`,
		func(stmt *sql.Stmt) error {
			for key, n := range counts {
				if _, err := stmt.Exec(date, string(counter), key, n); err != nil {
					return fmt.Errorf("add %s count: %w", counter, err)
				}
			}
			return nil
		})
}

// SumDailyCounts totals counter per key over the inclusive date range.
func (s *SQLiteMetricsStore) SumDailyCounts(counter Counter, from, to string) (map[string]int64, error) {
	rows, err := s.db.Query(`
		SELECT key, SUM(count) FROM daily_counts
		WHERE counter = ? AND date BETWEEN ? AND ?
		GROUP BY key`, string(counter), from, to)
	if err != nil {
		return nil, fmt.Errorf("query %s counts: %w", counter, err)
	}
	defer func() { _ = rows.Close() }()

	counts := map[string]int64{}
	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		counts[key] = n
	}
	return counts, rows.Err()
}

func (s *SQLiteMetricsStore) UpsertTermCounts(terms map[string]int64) error {
	if len(terms) == 0 {
		return nil
	}
	return s.inTx(`
		INSERT INTO query_terms (term, count, last_seen) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(term) DO UPDATE SET count = count + excluded.count, last_seen = CURRENT_TIMESTAMP`,
		func(stmt *sql.Stmt) error {
			for term, n := range terms {
				if _, err := stmt.Exec(term, n); err != nil {
					return fmt.Errorf("upsert term count: %w", err)
				}
			}
			return nil
		})
}

// GetTopTerms orders by count, ties by term.
func (s *SQLiteMetricsStore) GetTopTerms(limit int) ([]TermCount, error) {
	rows, err := s.db.Query(`SELECT term, count FROM query_terms ORDER BY count DESC, term ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top terms: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var terms []TermCount
	for rows.Next() {
		var tc TermCount
		if err := rows.Scan(&tc.Term, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		terms = append(terms, tc)
	}
	return terms, rows.Err()
}

// AddZeroResultQuery appends query and drops all but the newest
// MaxZeroResultQueries.
func (s *SQLiteMetricsStore) AddZeroResultQuery(query string, at time.Time) error {
	if _, err := s.db.Exec(`INSERT INTO zero_result_queries (query, timestamp) VALUES (?, ?)`, query, at.UTC()); err != nil {
		return fmt.Errorf("insert zero-result query: %w", err)
	}
	_, err := s.db.Exec(`
		DELETE FROM zero_result_queries
		WHERE id <= (SELECT id FROM zero_result_queries ORDER BY id DESC LIMIT 1 OFFSET ?)`,
		MaxZeroResultQueries)
	if err != nil {
		return fmt.Errorf("trim zero-result queries: %w", err)
	}
	return nil
}

// GetZeroResultQueries returns the newest first.
func (s *SQLiteMetricsStore) GetZeroResultQueries(limit int) ([]string, error) {
	rows, err := s.db.Query(`SELECT query FROM zero_result_queries ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query zero-result queries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var queries []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		queries = append(queries, q)
	}
	return queries, rows.Err()
}

func (s *SQLiteMetricsStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}
