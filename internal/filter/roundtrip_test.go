package filter

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/Aman-CERP/bulletinsearch/internal/chunk"
)

// corpus covers every filterable field with overlapping values.
var corpus = []*chunk.ChunkRecord{
	{ID: "a", DocumentID: "D1", Metadata: chunk.Metadata{SectionType: "anuncio", Topic: "empleo", Language: "es", HasTables: true, Entities: []string{"DGA", "INAEM"}, Year: "2025", Month: "03", JurisdictionID: 1}},
	{ID: "b", DocumentID: "D1", Metadata: chunk.Metadata{SectionType: "orden", Topic: "empleo", Language: "es", HasAmounts: true, Entities: []string{"DGA"}, Year: "2025", Month: "04", JurisdictionID: 1}},
	{ID: "c", DocumentID: "D2", Metadata: chunk.Metadata{SectionType: "anuncio", Topic: "vivienda", Language: "ca", HasTables: true, HasAmounts: true, Year: "2024", Month: "03", JurisdictionID: 2}},
	{ID: "d", DocumentID: "D3", Metadata: chunk.Metadata{SectionType: "resolucion", Topic: "vivienda", Language: "es", Entities: []string{"Huesca"}, Year: "2025", JurisdictionID: 2}},
	{ID: "e", DocumentID: "D3", Metadata: chunk.Metadata{SectionType: "resolucion", Topic: "subvenciones", Language: "es", Entities: []string{"Teruel", "INAEM"}, Year: "2023", Month: "12", JurisdictionID: 3}},
	{ID: "f", DocumentID: "D4", Metadata: chunk.Metadata{SectionType: "orden", Language: "es"}},
}

func openCorpusDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
		CREATE TABLE chunks (
			chunk_id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			section_type TEXT NOT NULL DEFAULT '',
			topic TEXT NOT NULL DEFAULT '',
			language TEXT NOT NULL DEFAULT '',
			has_tables INTEGER NOT NULL DEFAULT 0,
			has_amounts INTEGER NOT NULL DEFAULT 0,
			jurisdiction_id INTEGER NOT NULL DEFAULT 0,
			year TEXT NOT NULL DEFAULT '',
			month TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE chunk_entities (chunk_id TEXT NOT NULL, entity TEXT NOT NULL);
	`)
	require.NoError(t, err)

	for _, r := range corpus {
		m := r.Metadata
		_, err := db.Exec(`INSERT INTO chunks VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.DocumentID, m.SectionType, m.Topic, m.Language,
			boolInt(m.HasTables), boolInt(m.HasAmounts), m.JurisdictionID, m.Year, m.Month)
		require.NoError(t, err)
		for _, e := range m.Entities {
			_, err := db.Exec(`INSERT INTO chunk_entities VALUES (?, ?)`, r.ID, e)
			require.NoError(t, err)
		}
	}
	return db
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func keywordMatches(t *testing.T, db *sql.DB, p KeywordPredicate) []string {
	t.Helper()
	rows, err := db.QueryContext(context.Background(),
		`SELECT c.chunk_id FROM chunks c WHERE 1 = 1`+p.AndClause()+` ORDER BY c.chunk_id`, p.Args...)
	require.NoError(t, err)
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	require.NoError(t, rows.Err())
	return ids
}

func vectorMatches(p VectorPredicate) []string {
	var ids []string
	for _, r := range corpus {
		if p.Matches(r) {
			ids = append(ids, r.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

func referenceMatches(f SearchFilter) []string {
	var ids []string
	for _, r := range corpus {
		if f.Matches(r) {
			ids = append(ids, r.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// filterSpace enumerates filters built from combinations of field values.
func filterSpace() []SearchFilter {
	sections := []string{"", "anuncio", "orden", "resolucion"}
	dates := [][2]string{{"", ""}, {"2025", ""}, {"2025", "03"}, {"2024", "3"}}
	entitySets := [][]string{nil, {"DGA"}, {"INAEM", "Huesca"}, {"Nadie"}}
	flags := []*bool{nil, boolPtr(true), boolPtr(false)}

	var out []SearchFilter
	for _, s := range sections {
		for _, d := range dates {
			for _, e := range entitySets {
				for _, fl := range flags {
					opts := []Option{WithSectionType(s), WithYear(d[0]), WithMonth(d[1])}
					if e != nil {
						opts = append(opts, WithEntities(e...))
					}
					if fl != nil {
						opts = append(opts, WithHasTables(*fl))
					}
					out = append(out, MustNew(opts...))
				}
			}
		}
	}
	out = append(out,
		MustNew(WithTopic("vivienda"), WithLanguage("ES")),
		MustNew(WithDocumentID("D3"), WithJurisdictionID(2)),
		MustNew(WithHasAmounts(true), WithJurisdictionID(1)),
	)
	return out
}

func TestTranslate_RoundTripAgreesAcrossBackends(t *testing.T) {
	// Given: a SQLite table holding the corpus and a fully capable vector side
	db := openCorpusDB(t)
	tr := NewTranslator(partsCaps(), sqliteCaps())

	for i, f := range filterSpace() {
		t.Run(fmt.Sprintf("filter_%03d", i), func(t *testing.T) {
			// When: translating and applying each predicate independently
			got := tr.Translate(f)
			require.True(t, got.VectorFullyApplied)
			require.True(t, got.KeywordFullyApplied)

			want := referenceMatches(f)

			// Then: both backends include and exclude the same records
			assert.Equal(t, want, vectorMatches(got.Vector), "vector predicate %v", got.Vector.Conditions)
			assert.Equal(t, want, keywordMatches(t, db, got.Keyword), "keyword clause %q", got.Keyword.Where)
		})
	}
}

func TestTranslate_RoundTripWithCombinedDate(t *testing.T) {
	db := openCorpusDB(t)
	caps := VectorCapabilities{Backend: "qdrant", AnyOf: true, DateLayout: DateCombined}
	tr := NewTranslator(caps, sqliteCaps())

	f := MustNew(WithYear("2025"), WithMonth("03"), WithSectionType("anuncio"))
	got := tr.Translate(f)

	require.True(t, got.VectorFullyApplied)
	assert.Equal(t, []string{"a"}, vectorMatches(got.Vector))
	assert.Equal(t, []string{"a"}, keywordMatches(t, db, got.Keyword))
}
