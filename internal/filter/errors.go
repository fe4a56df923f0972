package filter

import (
	"fmt"

	amerrors "github.com/Aman-CERP/bulletinsearch/internal/errors"
)

// ErrInvalidFilter is matched by every InvalidFilterError via errors.Is.
var ErrInvalidFilter = amerrors.New(amerrors.ErrCodeInvalidFilter, "invalid search filter", nil).
	WithSuggestion("Check the filter fields; month requires year, year is YYYY, month is 1-12")

// InvalidFilterError reports a filter that violates a construction invariant.
// It is raised before any backend is queried.
type InvalidFilterError struct {
	Field  string
	Value  string
	Reason string
}

func (e *InvalidFilterError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid filter field %q: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid filter field %q (%s): %s", e.Field, e.Value, e.Reason)
}

// Unwrap links the error to ErrInvalidFilter so transports can classify it.
func (e *InvalidFilterError) Unwrap() error {
	return ErrInvalidFilter
}

// DegradedFilterWarning records a filter field that one backend could not
// express. The field was dropped for that backend only, never approximated.
type DegradedFilterWarning struct {
	Backend string `json:"backend"`
	Field   string `json:"field"`
	Reason  string `json:"reason"`
}

func (w DegradedFilterWarning) String() string {
	return fmt.Sprintf("%s: filter %s not applied (%s)", w.Backend, w.Field, w.Reason)
}
