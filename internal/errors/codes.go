// Package errors provides structured error handling for pagemind.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration and settings errors
//   - 2XX: Page fetch and extraction errors
//   - 3XX: Language model errors
//   - 4XX: Storage errors
//   - 5XX: Query errors
//   - 6XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryFetch indicates page fetch and extraction errors.
	CategoryFetch Category = "FETCH"
	// CategoryLLM indicates language model request and response errors.
	CategoryLLM Category = "LLM"
	// CategoryStorage indicates record store errors.
	CategoryStorage Category = "STORAGE"
	// CategoryQuery indicates user-facing query errors.
	CategoryQuery Category = "QUERY"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound  = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid   = "ERR_102_CONFIG_INVALID"
	ErrCodeSettingsMissing = "ERR_103_SETTINGS_MISSING"

	// Fetch errors (200-299)
	ErrCodeFetchTimeout    = "ERR_201_FETCH_TIMEOUT"
	ErrCodeFetchNetwork    = "ERR_202_FETCH_NETWORK"
	ErrCodeFetchHTTP       = "ERR_203_FETCH_HTTP"
	ErrCodeFetchRestricted = "ERR_204_FETCH_RESTRICTED"
	ErrCodeExtractEmpty    = "ERR_205_EXTRACT_EMPTY"
	ErrCodeSourceInvalid   = "ERR_206_SOURCE_INVALID"

	// LLM errors (300-399)
	ErrCodeLLMRequest     = "ERR_301_LLM_REQUEST"
	ErrCodeLLMUnavailable = "ERR_302_LLM_UNAVAILABLE"
	ErrCodeLLMAuth        = "ERR_303_LLM_AUTH"
	ErrCodeLLMInvalid     = "ERR_304_LLM_INVALID_RESPONSE"
	ErrCodeCircuitOpen    = "ERR_305_CIRCUIT_OPEN"

	// Storage errors (400-499)
	ErrCodeStoreOpen     = "ERR_401_STORE_OPEN"
	ErrCodeStoreQuery    = "ERR_402_STORE_QUERY"
	ErrCodeStoreNotFound = "ERR_403_STORE_NOT_FOUND"
	ErrCodeStoreCorrupt  = "ERR_404_STORE_CORRUPT"

	// Query errors (500-599)
	ErrCodeQueryEmpty    = "ERR_501_QUERY_EMPTY"
	ErrCodeNothingToAsk  = "ERR_502_NOTHING_TO_SEARCH"
	ErrCodeNoMatches     = "ERR_503_NO_MATCHES"
	ErrCodeUnknownMethod = "ERR_504_UNKNOWN_METHOD"
	ErrCodeInvalidInput  = "ERR_505_INVALID_INPUT"

	// Internal errors (600-699)
	ErrCodeInternal = "ERR_601_INTERNAL"
	ErrCodeRunBusy  = "ERR_602_RUN_BUSY"
	ErrCodeExport   = "ERR_603_EXPORT_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryFetch
	case '3':
		return CategoryLLM
	case '4':
		return CategoryStorage
	case '5':
		return CategoryQuery
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeStoreCorrupt, ErrCodeStoreOpen:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode checks if an error code represents a transient failure.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeFetchTimeout, ErrCodeFetchNetwork, ErrCodeLLMUnavailable:
		return true
	default:
		return false
	}
}
