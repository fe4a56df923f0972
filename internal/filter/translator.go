package filter

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/bulletinsearch/internal/chunk"
)

// Translation is the per-backend form of one SearchFilter.
type Translation struct {
	Vector  VectorPredicate
	Keyword KeywordPredicate

	VectorFullyApplied  bool
	KeywordFullyApplied bool

	// Warnings lists every field dropped for a backend, vector side first.
	Warnings []DegradedFilterWarning
}

// Translator converts a SearchFilter into the predicate forms of a fixed
// pair of backends. It holds no per-request state and is safe for
// concurrent use.
type Translator struct {
	Vector  VectorCapabilities
	Keyword KeywordCapabilities
}

// NewTranslator creates a translator for the given backend capabilities.
func NewTranslator(vector VectorCapabilities, keyword KeywordCapabilities) *Translator {
	return &Translator{Vector: vector, Keyword: keyword}
}

// Translate produces both predicates. It never fails: fields a backend
// cannot express are dropped for that backend and reported in Warnings.
func (t *Translator) Translate(f SearchFilter) Translation {
	vector, vwarn := t.translateVector(f)
	keyword, kwarn := t.translateKeyword(f)

	warnings := make([]DegradedFilterWarning, 0, len(vwarn)+len(kwarn))
	warnings = append(warnings, vwarn...)
	warnings = append(warnings, kwarn...)

	return Translation{
		Vector:              vector,
		Keyword:             keyword,
		VectorFullyApplied:  len(vwarn) == 0,
		KeywordFullyApplied: len(kwarn) == 0,
		Warnings:            warnings,
	}
}

func (t *Translator) translateVector(f SearchFilter) (VectorPredicate, []DegradedFilterWarning) {
	caps := t.Vector
	var conds []Condition
	var warnings []DegradedFilterWarning

	drop := func(field, reason string) {
		warnings = append(warnings, DegradedFilterWarning{Backend: caps.Backend, Field: field, Reason: reason})
	}
	eq := func(field string, value any) {
		if caps.Unsupported[field] {
			drop(field, "field is not indexed by this backend")
			return
		}
		conds = append(conds, Condition{Field: field, Op: OpEq, Values: []any{value}})
	}

	if v := f.SectionType(); v != "" {
		eq(chunk.FieldSectionType, v)
	}
	if v := f.Topic(); v != "" {
		eq(chunk.FieldTopic, v)
	}
	if v := f.Language(); v != "" {
		eq(chunk.FieldLanguage, v)
	}
	if v, ok := f.HasTables(); ok {
		eq(chunk.FieldHasTables, v)
	}
	if v, ok := f.HasAmounts(); ok {
		eq(chunk.FieldHasAmounts, v)
	}
	if entities := f.Entities(); len(entities) > 0 {
		switch {
		case caps.Unsupported[chunk.FieldEntities]:
			drop(chunk.FieldEntities, "field is not indexed by this backend")
		case !caps.AnyOf:
			drop(chunk.FieldEntities, "backend has no array any-of matching")
		default:
			values := make([]any, len(entities))
			for i, e := range entities {
				values[i] = e
			}
			conds = append(conds, Condition{Field: chunk.FieldEntities, Op: OpAny, Values: values})
		}
	}
	if v := f.DocumentID(); v != "" {
		eq(chunk.FieldDocumentID, v)
	}
	if v := f.JurisdictionID(); v != 0 {
		eq(chunk.FieldJurisdictionID, v)
	}

	year, month := f.Year(), f.Month()
	switch caps.DateLayout {
	case DateCombined:
		switch {
		case year != "" && month != "":
			eq(chunk.FieldDate, year+"-"+month)
		case year != "":
			drop(chunk.FieldYear, "combined date field needs prefix matching for a year-only filter")
		}
	case DateNone:
		if year != "" {
			drop(chunk.FieldYear, "backend stores no date")
		}
		if month != "" {
			drop(chunk.FieldMonth, "backend stores no date")
		}
	default:
		if year != "" {
			eq(chunk.FieldYear, year)
		}
		if month != "" {
			eq(chunk.FieldMonth, month)
		}
	}

	return VectorPredicate{Conditions: conds}, warnings
}

// sqlBuilder accumulates AND-ed clauses with dialect-specific placeholders.
type sqlBuilder struct {
	dialect Dialect
	offset  int
	clauses []string
	args    []any
}

func (b *sqlBuilder) placeholder(arg any) string {
	b.args = append(b.args, arg)
	if b.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", b.offset+len(b.args))
	}
	return "?"
}

func (b *sqlBuilder) eq(column string, arg any) {
	b.clauses = append(b.clauses, fmt.Sprintf("c.%s = %s", column, b.placeholder(arg)))
}

func (b *sqlBuilder) boolArg(v bool) any {
	// SQLite has no boolean type; flags are stored as 0/1.
	if b.dialect == DialectSQLite {
		if v {
			return 1
		}
		return 0
	}
	return v
}

func (t *Translator) translateKeyword(f SearchFilter) (KeywordPredicate, []DegradedFilterWarning) {
	caps := t.Keyword
	b := &sqlBuilder{dialect: caps.Dialect, offset: caps.ArgOffset}
	var warnings []DegradedFilterWarning

	if v := f.SectionType(); v != "" {
		b.eq(chunk.FieldSectionType, v)
	}
	if v := f.Topic(); v != "" {
		b.eq(chunk.FieldTopic, v)
	}
	if v := f.Language(); v != "" {
		b.eq(chunk.FieldLanguage, v)
	}
	if v, ok := f.HasTables(); ok {
		b.eq(chunk.FieldHasTables, b.boolArg(v))
	}
	if v, ok := f.HasAmounts(); ok {
		b.eq(chunk.FieldHasAmounts, b.boolArg(v))
	}
	if entities := f.Entities(); len(entities) > 0 {
		switch {
		case !caps.EntityMatching:
			warnings = append(warnings, DegradedFilterWarning{
				Backend: caps.Backend,
				Field:   chunk.FieldEntities,
				Reason:  "backend has no entity index",
			})
		case caps.Dialect == DialectPostgres:
			b.clauses = append(b.clauses, fmt.Sprintf("c.entities && %s::text[]", b.placeholder(entities)))
		default:
			marks := make([]string, len(entities))
			for i, e := range entities {
				marks[i] = b.placeholder(e)
			}
			b.clauses = append(b.clauses, fmt.Sprintf(
				"EXISTS (SELECT 1 FROM chunk_entities e WHERE e.chunk_id = c.chunk_id AND e.entity IN (%s))",
				strings.Join(marks, ", ")))
		}
	}
	if v := f.DocumentID(); v != "" {
		b.eq(chunk.FieldDocumentID, v)
	}
	if v := f.JurisdictionID(); v != 0 {
		b.eq(chunk.FieldJurisdictionID, v)
	}
	if v := f.Year(); v != "" {
		b.eq(chunk.FieldYear, v)
	}
	if v := f.Month(); v != "" {
		b.eq(chunk.FieldMonth, v)
	}

	return KeywordPredicate{Where: strings.Join(b.clauses, " AND "), Args: b.args}, warnings
}
