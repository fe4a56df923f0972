package errors

import "errors"

// Error is the structured error returned across package boundaries. The
// code decides the transport status, the log level and the CLI hint.
type Error struct {
	Code     string
	Message  string
	Category Category
	Severity Severity
	// Details are extra key/value context, shown with --debug and logged.
	Details map[string]string
	Cause   error

	Retryable bool
	// Suggestion is an action the user can take.
	Suggestion string
}

func (e *Error) Error() string {
	return "[" + e.Code + "] " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code, so package sentinels work with
// errors.Is however the error was built.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// WithDetail sets a detail and returns e.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = map[string]string{}
	}
	e.Details[key] = value
	return e
}

// WithSuggestion replaces the default suggestion for the code.
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestion = suggestion
	return e
}

// New builds an Error, filling category, severity, retryability and the
// default suggestion from the code.
func New(code, message string, cause error) *Error {
	spec := specFor(code)
	return &Error{
		Code:       code,
		Message:    message,
		Category:   categoryFromCode(code),
		Severity:   spec.severity,
		Cause:      cause,
		Retryable:  spec.retryable,
		Suggestion: spec.hint,
	}
}

// Wrap returns nil for a nil err.
func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

func ConfigError(message string, cause error) *Error {
	return New(ErrCodeConfigInvalid, message, cause)
}

func ValidationError(message string, cause error) *Error {
	return New(ErrCodeInvalidInput, message, cause)
}

// As returns the outermost *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

func IsRetryable(err error) bool {
	e, ok := As(err)
	return ok && e.Retryable
}

// GetCode returns "" when err carries no *Error.
func GetCode(err error) string {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}

func GetCategory(err error) Category {
	if e, ok := As(err); ok {
		return e.Category
	}
	return ""
}
