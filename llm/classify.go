package llm

import (
	"net/http"

	apperrors "github.com/kestrel-ai/relay/errors"
)

// RetryableStatus reports whether an HTTP status from a provider is worth
// retrying. Timeouts, provider-side throttling and 5xx responses are
// transient; other 4xx responses mean the request itself is bad and a
// retry would waste an attempt.
func RetryableStatus(status int) bool {
	switch {
	case status == http.StatusRequestTimeout:
		return true
	case status == http.StatusTooManyRequests:
		return true
	case status >= 500:
		return true
	default:
		return false
	}
}

// WrapProviderError folds a provider SDK failure into the shared error
// taxonomy. status 0 means no HTTP response was received (transport error),
// which is treated as retryable.
func WrapProviderError(provider string, status int, cause error) *apperrors.AppError {
	retryable := status == 0 || RetryableStatus(status)
	appErr := apperrors.ExternalServiceError(provider, retryable, cause)
	if status > 0 {
		appErr.WithDetail("status", status)
	}
	return appErr
}
