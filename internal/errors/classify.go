package errors

import (
	"context"
	"errors"
)

// Class groups errors by how a transport should report them.
type Class string

const (
	// ClassNone means no error.
	ClassNone Class = ""
	// ClassBadRequest is caller input the engine refused (invalid filter, empty query).
	ClassBadRequest Class = "bad_request"
	// ClassUnavailable means no requested technique produced a ranking.
	ClassUnavailable Class = "unavailable"
	// ClassCanceled means the caller gave up before the request finished.
	ClassCanceled Class = "canceled"
	// ClassInternal is everything else.
	ClassInternal Class = "internal"
)

// Classify maps an error to its transport class.
// Degraded responses are not errors and never reach this function.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}

	if GetCategory(err) == CategoryValidation {
		return ClassBadRequest
	}
	switch GetCode(err) {
	case ErrCodeServiceUnavailable, ErrCodeBackendUnavailable:
		return ClassUnavailable
	}

	if errors.Is(err, context.Canceled) {
		return ClassCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassUnavailable
	}
	return ClassInternal
}
