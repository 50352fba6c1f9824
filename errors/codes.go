package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Gateway boundary errors. These are the only codes a Gateway call surfaces.
const (
	// ErrCodeRateLimited indicates the local call quota is exhausted.
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"
	// ErrCodeServiceUnavailable indicates the circuit breaker is open.
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	// ErrCodeAllModelsUnavailable indicates every model in the ladder failed.
	ErrCodeAllModelsUnavailable ErrorCode = "ALL_MODELS_UNAVAILABLE"
)

// Provider/transport errors (internal to the gateway; recovered or folded
// into a boundary error before crossing it).
const (
	// ErrCodeTimeout indicates a downstream call exceeded its attempt timeout.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeConnectionFailed indicates a failed connection to a provider.
	ErrCodeConnectionFailed ErrorCode = "CONNECTION_FAILED"
	// ErrCodeExternalService indicates a provider-side error.
	ErrCodeExternalService ErrorCode = "EXTERNAL_SERVICE_ERROR"
)

// Validation errors
const (
	// ErrCodeInvalidInput indicates the input is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeMissingField indicates a required field is missing.
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"
)

// Internal errors
const (
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeRateLimited:          true,
	ErrCodeServiceUnavailable:   true,
	ErrCodeAllModelsUnavailable: true,
	ErrCodeTimeout:              true,
	ErrCodeConnectionFailed:     true,
	ErrCodeExternalService:      true,
	ErrCodeInternal:             false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
