// Package errors provides structured error handling for bulletinsearch.
//
// Codes read ERR_<number>_<NAME>. The hundreds digit is the category:
// 1 config, 2 io, 3 network and backends, 4 validation, 5 internal.
package errors

// Category classifies an error by the subsystem that produced it.
type Category string

const (
	CategoryConfig     Category = "CONFIG"
	CategoryIO         Category = "IO"
	CategoryNetwork    Category = "NETWORK"
	CategoryValidation Category = "VALIDATION"
	CategoryInternal   Category = "INTERNAL"
)

// Severity tells callers whether to abort, fail the operation or degrade.
type Severity string

const (
	SeverityFatal   Severity = "FATAL"
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
)

const (
	ErrCodeConfigNotFound   = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid    = "ERR_102_CONFIG_INVALID"
	ErrCodeConfigPermission = "ERR_103_CONFIG_PERMISSION"

	ErrCodeFileNotFound = "ERR_201_FILE_NOT_FOUND"
	ErrCodeDiskFull     = "ERR_203_DISK_FULL"
	ErrCodeCorruptIndex = "ERR_205_CORRUPT_INDEX"
	ErrCodeIndexLocked  = "ERR_207_INDEX_LOCKED"

	ErrCodeNetworkTimeout     = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeNetworkUnavailable = "ERR_302_NETWORK_UNAVAILABLE"
	ErrCodeBackendUnavailable = "ERR_304_BACKEND_UNAVAILABLE"
	ErrCodeServiceUnavailable = "ERR_305_SERVICE_UNAVAILABLE"

	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeInvalidQuery      = "ERR_403_INVALID_QUERY"
	ErrCodeQueryEmpty        = "ERR_404_QUERY_EMPTY"
	ErrCodeQueryTooLong      = "ERR_405_QUERY_TOO_LONG"
	ErrCodeInvalidFilter     = "ERR_407_INVALID_FILTER"
	ErrCodeInvalidRequest    = "ERR_408_INVALID_REQUEST"

	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed = "ERR_502_EMBEDDING_FAILED"
	ErrCodeSearchFailed    = "ERR_503_SEARCH_FAILED"
	ErrCodeIndexFailed     = "ERR_505_INDEX_FAILED"
	ErrCodeRerankFailed    = "ERR_506_RERANK_FAILED"
)

// codeSpec holds what New derives from a code. Codes missing from the
// table get the category of their hundreds digit and SeverityError.
type codeSpec struct {
	severity  Severity
	retryable bool
	hint      string
}

var codeSpecs = map[string]codeSpec{
	ErrCodeConfigInvalid: {
		severity: SeverityError,
		hint:     "Run `bulletinsearch config show` to see the merged configuration",
	},
	ErrCodeDiskFull: {severity: SeverityFatal},
	ErrCodeCorruptIndex: {
		severity: SeverityFatal,
		hint:     "Remove the data directory and run `bulletinsearch index` again",
	},
	ErrCodeIndexLocked: {
		severity: SeverityError,
		hint:     "Wait for the running `bulletinsearch index` to finish",
	},
	ErrCodeNetworkTimeout:     {severity: SeverityWarning, retryable: true},
	ErrCodeNetworkUnavailable: {severity: SeverityWarning, retryable: true},
	ErrCodeBackendUnavailable: {severity: SeverityWarning, retryable: true},
	ErrCodeServiceUnavailable: {
		severity: SeverityError,
		hint:     "Run `bulletinsearch doctor` to check the search backends",
	},
	// The fused order is returned instead.
	ErrCodeRerankFailed: {severity: SeverityWarning},
}

func categoryFromCode(code string) Category {
	if len(code) < len("ERR_1") {
		return CategoryInternal
	}
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	}
	return CategoryInternal
}

func specFor(code string) codeSpec {
	if s, ok := codeSpecs[code]; ok {
		return s
	}
	return codeSpec{severity: SeverityError}
}
