package verdict

import (
	"errors"
	"fmt"
)

// Category defines the normalized failure taxonomy for a check.
type Category string

const (
	// CategorySyntax indicates the value failed local plausibility checks
	// and never reached the network.
	CategorySyntax Category = "invalid_syntax"

	// CategoryTransient indicates a timeout or connection failure.
	CategoryTransient Category = "transient_network"

	// CategoryMalformed indicates the remote answered with a non-JSON or
	// otherwise undecodable body. Treated like a transient failure.
	CategoryMalformed Category = "malformed_response"

	// CategoryRateLimited indicates the client-side budget or the proxy's
	// counter gate rejected the request. Recoverable, never retried blindly.
	CategoryRateLimited Category = "rate_limited"

	// CategoryUnknown indicates the remote answered but could not classify
	// the value.
	CategoryUnknown Category = "unknown_verdict"

	// CategoryStorage indicates local cache storage is unavailable. The
	// cache silently disables itself; callers never see this as a failure.
	CategoryStorage Category = "storage_unavailable"
)

// CheckError wraps check failures with normalized categorization.
type CheckError struct {
	Category   Category
	Value      string // normalized subject value, may be empty
	Message    string
	Underlying error
	Retryable  bool
}

func (e *CheckError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("check [%s]: %s: %v", e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("check [%s]: %s", e.Category, e.Message)
}

func (e *CheckError) Unwrap() error {
	return e.Underlying
}

// NewCheckError creates a normalized check error. Retryability follows the
// category: timeouts, connection failures and malformed bodies are worth
// retrying; syntax and rate-limit failures are not.
func NewCheckError(category Category, value, message string, underlying error) *CheckError {
	retryable := category == CategoryTransient || category == CategoryMalformed

	return &CheckError{
		Category:   category,
		Value:      value,
		Message:    message,
		Underlying: underlying,
		Retryable:  retryable,
	}
}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var ce *CheckError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error.
func GetCategory(err error) Category {
	var ce *CheckError
	if errors.As(err, &ce) {
		return ce.Category
	}
	return CategoryTransient
}
