package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Unwrap_PreservesOriginalError(t *testing.T) {
	// Given: an original error
	originalErr := errors.New("connection refused")

	// When: wrapping it
	structured := New(ErrCodeBackendUnavailable, "keyword backend unavailable", originalErr)

	// Then: unwrapping returns original error
	require.NotNil(t, structured)
	assert.Equal(t, originalErr, errors.Unwrap(structured))
	assert.True(t, errors.Is(structured, originalErr))
}

func TestError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{
			name:     "config error",
			code:     ErrCodeConfigNotFound,
			message:  "config file not found",
			expected: "[ERR_101_CONFIG_NOT_FOUND] config file not found",
		},
		{
			name:     "filter error",
			code:     ErrCodeInvalidFilter,
			message:  "month requires year",
			expected: "[ERR_407_INVALID_FILTER] month requires year",
		},
		{
			name:     "service error",
			code:     ErrCodeServiceUnavailable,
			message:  "all techniques failed",
			expected: "[ERR_305_SERVICE_UNAVAILABLE] all techniques failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, nil)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestError_Is_MatchesByCode(t *testing.T) {
	// Given: two errors with same code
	err1 := New(ErrCodeInvalidFilter, "bad year", nil)
	err2 := New(ErrCodeInvalidFilter, "bad month", nil)

	// Then: they match by code, even through fmt wrapping
	assert.True(t, errors.Is(err1, err2))
	assert.True(t, errors.Is(fmt.Errorf("search: %w", err1), err2))
}

func TestError_Is_DoesNotMatchDifferentCodes(t *testing.T) {
	err1 := New(ErrCodeInvalidFilter, "bad filter", nil)
	err2 := New(ErrCodeServiceUnavailable, "down", nil)

	assert.False(t, errors.Is(err1, err2))
}

func TestError_WithDetail_AddsContext(t *testing.T) {
	err := New(ErrCodeInvalidFilter, "invalid month", nil).
		WithDetail("field", "month").
		WithDetail("value", "13")

	assert.Equal(t, "month", err.Details["field"])
	assert.Equal(t, "13", err.Details["value"])
}

func TestError_CategoryFromCode(t *testing.T) {
	tests := []struct {
		code         string
		wantCategory Category
	}{
		{ErrCodeConfigInvalid, CategoryConfig},
		{ErrCodeCorruptIndex, CategoryIO},
		{ErrCodeIndexLocked, CategoryIO},
		{ErrCodeBackendUnavailable, CategoryNetwork},
		{ErrCodeServiceUnavailable, CategoryNetwork},
		{ErrCodeInvalidFilter, CategoryValidation},
		{ErrCodeInvalidRequest, CategoryValidation},
		{ErrCodeRerankFailed, CategoryInternal},
		{"BAD", CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantCategory, err.Category)
		})
	}
}

func TestError_SeverityAndRetryable(t *testing.T) {
	tests := []struct {
		code          string
		wantSeverity  Severity
		wantRetryable bool
	}{
		{ErrCodeCorruptIndex, SeverityFatal, false},
		{ErrCodeBackendUnavailable, SeverityWarning, true},
		{ErrCodeNetworkTimeout, SeverityWarning, true},
		{ErrCodeRerankFailed, SeverityWarning, false},
		{ErrCodeInvalidFilter, SeverityError, false},
		{ErrCodeServiceUnavailable, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantSeverity, err.Severity)
			assert.Equal(t, tt.wantRetryable, err.Retryable)
		})
	}
}

func TestNew_DefaultSuggestionFromCode(t *testing.T) {
	// Given: a code with a known remedy
	err := New(ErrCodeIndexLocked, "locked", nil)

	// Then: the suggestion is filled in, and can still be replaced
	assert.Contains(t, err.Suggestion, "bulletinsearch index")
	assert.Equal(t, "try later", err.WithSuggestion("try later").Suggestion)
	assert.Empty(t, New(ErrCodeInvalidFilter, "bad", nil).Suggestion)
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestIsRetryable_FindsErrorInChain(t *testing.T) {
	wrapped := fmt.Errorf("embed: %w", New(ErrCodeNetworkTimeout, "ollama timed out", nil))

	assert.True(t, IsRetryable(wrapped))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(nil))
	assert.Equal(t, ErrCodeNetworkTimeout, GetCode(wrapped))
	assert.Equal(t, CategoryNetwork, GetCategory(wrapped))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"nil", nil, ClassNone},
		{"invalid filter", New(ErrCodeInvalidFilter, "month without year", nil), ClassBadRequest},
		{"wrapped invalid request", fmt.Errorf("search: %w", New(ErrCodeInvalidRequest, "empty query", nil)), ClassBadRequest},
		{"service unavailable", New(ErrCodeServiceUnavailable, "all failed", nil), ClassUnavailable},
		{"deadline", context.DeadlineExceeded, ClassUnavailable},
		{"canceled", fmt.Errorf("hybrid: %w", context.Canceled), ClassCanceled},
		{"internal", errors.New("boom"), ClassInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
