package filter

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/bulletinsearch/internal/chunk"
)

// Op is an operator of the restricted vector predicate algebra.
type Op string

const (
	// OpEq requires the field to equal Values[0].
	OpEq Op = "eq"
	// OpIn requires the scalar field to equal one of Values.
	OpIn Op = "in"
	// OpAny requires the array field to share at least one element with Values.
	OpAny Op = "any"
	// OpGte requires a numeric field to be >= Values[0].
	OpGte Op = "gte"
	// OpLte requires a numeric field to be <= Values[0].
	OpLte Op = "lte"
)

// Condition is one clause of a VectorPredicate.
type Condition struct {
	Field  string
	Op     Op
	Values []any
}

func (c Condition) String() string {
	parts := make([]string, len(c.Values))
	for i, v := range c.Values {
		parts[i] = fmt.Sprint(v)
	}
	return fmt.Sprintf("%s %s [%s]", c.Field, c.Op, strings.Join(parts, ","))
}

// VectorPredicate is a conjunction of conditions. The empty predicate
// matches every record.
type VectorPredicate struct {
	Conditions []Condition
}

// IsEmpty reports whether the predicate has no conditions.
func (p VectorPredicate) IsEmpty() bool {
	return len(p.Conditions) == 0
}

// Matches evaluates the predicate against a record in-process.
// Backends that filter client-side use this; remote backends receive the
// same conditions in their own query syntax.
func (p VectorPredicate) Matches(r *chunk.ChunkRecord) bool {
	for _, c := range p.Conditions {
		if !c.matches(r) {
			return false
		}
	}
	return true
}

func (c Condition) matches(r *chunk.ChunkRecord) bool {
	value := FieldValue(r, c.Field)
	switch c.Op {
	case OpEq:
		return len(c.Values) > 0 && equalValues(value, c.Values[0])
	case OpIn:
		for _, v := range c.Values {
			if equalValues(value, v) {
				return true
			}
		}
		return false
	case OpAny:
		items, ok := value.([]string)
		if !ok {
			return false
		}
		for _, item := range items {
			for _, v := range c.Values {
				if equalValues(item, v) {
					return true
				}
			}
		}
		return false
	case OpGte, OpLte:
		if len(c.Values) == 0 {
			return false
		}
		left, lok := toFloat(value)
		right, rok := toFloat(c.Values[0])
		if !lok || !rok {
			return false
		}
		if c.Op == OpGte {
			return left >= right
		}
		return left <= right
	default:
		return false
	}
}

// FieldValue returns a record field by its canonical name, or nil.
func FieldValue(r *chunk.ChunkRecord, field string) any {
	m := r.Metadata
	switch field {
	case chunk.FieldSectionType:
		return m.SectionType
	case chunk.FieldTopic:
		return m.Topic
	case chunk.FieldLanguage:
		return m.Language
	case chunk.FieldHasTables:
		return m.HasTables
	case chunk.FieldHasAmounts:
		return m.HasAmounts
	case chunk.FieldEntities:
		return m.Entities
	case chunk.FieldDocumentID:
		return r.DocumentID
	case chunk.FieldJurisdictionID:
		return m.JurisdictionID
	case chunk.FieldYear:
		return m.Year
	case chunk.FieldMonth:
		return m.Month
	case chunk.FieldDate:
		return m.Date()
	default:
		return nil
	}
}

func equalValues(a, b any) bool {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

// KeywordPredicate is a parameterized SQL boolean expression over the
// chunks table aliased "c". An empty Where means no constraint.
type KeywordPredicate struct {
	Where string
	Args  []any
}

// IsEmpty reports whether the predicate constrains nothing.
func (p KeywordPredicate) IsEmpty() bool {
	return p.Where == ""
}

// AndClause returns " AND (<where>)" for appending to an existing WHERE,
// or "" for an empty predicate.
func (p KeywordPredicate) AndClause() string {
	if p.Where == "" {
		return ""
	}
	return " AND (" + p.Where + ")"
}
