package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType classifies transport failures.
type ErrorType string

const (
	ErrorTypeEndpoint  ErrorType = "endpoint"
	ErrorTypeAuth      ErrorType = "auth"
	ErrorTypeModel     ErrorType = "model"
	ErrorTypeRateLimit ErrorType = "rate_limit"
	ErrorTypeTimeout   ErrorType = "timeout"
	ErrorTypeResponse  ErrorType = "response"
	ErrorTypeUnknown   ErrorType = "unknown"
)

// Error is a classified LLM transport error.
type Error struct {
	Type       ErrorType
	Message    string
	Retryable  bool
	Cause      error
	StatusCode int
}

// Error implements the error interface.
func (e *Error) Error() string {
	parts := []string{string(e.Type)}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	parts = append(parts, e.Message)
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements retry.RetryableError.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewError creates a new structured LLM error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

// ClassifyError categorizes an error by its message and returns a structured Error.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	errStr := err.Error()
	lower := strings.ToLower(errStr)

	statusCode := 0
	for _, code := range []int{400, 401, 403, 404, 429, 500, 502, 503, 504, 529} {
		if strings.Contains(errStr, fmt.Sprintf("%d", code)) {
			statusCode = code
			break
		}
	}

	classified := func(t ErrorType, msg string, retryable bool) *Error {
		e := NewError(t, msg, retryable, err)
		e.StatusCode = statusCode
		return e
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return classified(ErrorTypeTimeout, "request timeout", true)
	case errors.Is(err, context.Canceled):
		return classified(ErrorTypeTimeout, "request canceled", false)
	case statusCode == 401 || statusCode == 403 || strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "invalid api key") || strings.Contains(lower, "invalid x-api-key"):
		return classified(ErrorTypeAuth, "authentication failed", false)
	case strings.Contains(lower, "model") && (strings.Contains(lower, "not found") ||
		strings.Contains(lower, "does not exist")):
		return classified(ErrorTypeModel, "model not found", false)
	case statusCode == 404:
		return classified(ErrorTypeEndpoint, "endpoint not found", false)
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "connection reset"):
		return classified(ErrorTypeEndpoint, "connection failed", true)
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return classified(ErrorTypeTimeout, "request timeout", true)
	case statusCode == 429 || strings.Contains(lower, "rate limit"):
		return classified(ErrorTypeRateLimit, "rate limited", true)
	case statusCode >= 500 || strings.Contains(lower, "overloaded"):
		return classified(ErrorTypeEndpoint, "server error", true)
	}

	return classified(ErrorTypeUnknown, "llm error", true)
}

// IsRetryable returns true if the error is a retryable *Error.
func IsRetryable(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}
