package filter

import "fmt"

// DateLayout describes how a vector backend stores bulletin dates.
type DateLayout string

const (
	// DateParts stores year and month as separate payload fields.
	DateParts DateLayout = "parts"
	// DateCombined stores a single "date" field holding "YYYY-MM".
	DateCombined DateLayout = "combined"
	// DateNone stores no date at all.
	DateNone DateLayout = "none"
)

// ParseDateLayout parses a configured date layout. Empty means DateParts.
func ParseDateLayout(s string) (DateLayout, error) {
	switch DateLayout(s) {
	case "", DateParts:
		return DateParts, nil
	case DateCombined:
		return DateCombined, nil
	case DateNone:
		return DateNone, nil
	default:
		return "", fmt.Errorf("unknown date layout %q (want parts, combined or none)", s)
	}
}

// VectorCapabilities describes the predicate algebra a vector backend
// supports. The algebra is always eq/in/any/numeric compare; substring and
// prefix matching are never available.
type VectorCapabilities struct {
	// Backend names the backend in warnings.
	Backend string

	// AnyOf reports array any-of matching, needed for entities.
	AnyOf bool

	// DateLayout is how year and month are stored.
	DateLayout DateLayout

	// Unsupported lists fields the backend does not index at all.
	Unsupported map[string]bool
}

// Dialect selects placeholder and array syntax for keyword SQL.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// KeywordCapabilities describes what a keyword backend can filter on.
type KeywordCapabilities struct {
	// Backend names the backend in warnings.
	Backend string

	Dialect Dialect

	// EntityMatching reports whether entity any-of can be expressed.
	EntityMatching bool

	// ArgOffset is the number of positional args the backend binds before
	// the filter's own (Postgres numbers placeholders from ArgOffset+1).
	ArgOffset int
}
