package search

import (
	"errors"
	"fmt"

	amerrors "github.com/Aman-CERP/bulletinsearch/internal/errors"
)

var (
	// ErrInvalidRequest is returned for an empty or oversized query, an
	// unknown technique, or an out-of-range top_k.
	ErrInvalidRequest = amerrors.New(amerrors.ErrCodeInvalidRequest, "invalid search request", nil)

	// ErrServiceUnavailable is returned when every requested technique failed.
	ErrServiceUnavailable = amerrors.New(amerrors.ErrCodeServiceUnavailable, "no search backend available", nil).
		WithSuggestion("Check that the vector and keyword backends are reachable")

	// ErrBackendUnavailable is matched by every BackendUnavailableError.
	ErrBackendUnavailable = amerrors.New(amerrors.ErrCodeBackendUnavailable, "search backend unavailable", nil)

	// ErrRerankFailed is matched by every RerankFailureError.
	ErrRerankFailed = amerrors.New(amerrors.ErrCodeRerankFailed, "rerank failed", nil)

	// ErrNilDependency is returned by NewService for a nil collaborator.
	ErrNilDependency = errors.New("search: nil dependency")
)

// BackendUnavailableError records a technique that failed or timed out.
// In hybrid mode it degrades the response instead of failing it.
type BackendUnavailableError struct {
	Technique string
	Backend   string
	Cause     error
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("%s search (%s) unavailable: %v", e.Technique, e.Backend, e.Cause)
}

// Unwrap exposes both the sentinel and the cause to errors.Is.
func (e *BackendUnavailableError) Unwrap() []error {
	return []error{ErrBackendUnavailable, e.Cause}
}

// RerankFailureError records a reranker failure. The un-reranked order is
// returned instead.
type RerankFailureError struct {
	Strategy Strategy
	Cause    error
}

func (e *RerankFailureError) Error() string {
	return fmt.Sprintf("rerank (%s) failed: %v", e.Strategy, e.Cause)
}

// Unwrap exposes both the sentinel and the cause to errors.Is.
func (e *RerankFailureError) Unwrap() []error {
	return []error{ErrRerankFailed, e.Cause}
}
