// Package domain provides the canonical data model and error types for
// the orchestration core.
package domain

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrorType represents the category of a provider error. The resilient
// caller keys its retry and fallback behavior off this type.
type ErrorType string

const (
	// ErrorTypeBadRequest indicates a malformed or invalid request.
	// Terminal: caused by the caller's own input, never retried.
	ErrorTypeBadRequest ErrorType = "bad_request"

	// ErrorTypeAuthentication indicates an authentication failure.
	// Non-retryable for the same provider, eligible for fallback.
	ErrorTypeAuthentication ErrorType = "authentication"

	// ErrorTypeRateLimit indicates the provider rate-limited the call.
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeServer indicates an upstream 5xx failure.
	ErrorTypeServer ErrorType = "server"

	// ErrorTypeContextLength indicates the context window was exceeded.
	// Terminal for the caller layer: prevented upstream by compaction.
	ErrorTypeContextLength ErrorType = "context_length"

	// ErrorTypeTLS indicates a TLS/certificate failure reaching the provider.
	ErrorTypeTLS ErrorType = "tls"

	// ErrorTypeTimeout indicates the call exceeded its deadline.
	ErrorTypeTimeout ErrorType = "timeout"

	// ErrorTypeUnknown is the catch-all; treated as retryable via fallback.
	ErrorTypeUnknown ErrorType = "unknown"
)

// APIError is the canonical provider error. Wire clients translate
// backend-specific error bodies into this shape.
type APIError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"`
	Provider   string    `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s: %s: %s", e.Provider, e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Terminal reports whether the error must propagate immediately with no
// retry and no fallback.
func (e *APIError) Terminal() bool {
	return e.Type == ErrorTypeBadRequest || e.Type == ErrorTypeContextLength
}

// NewAPIError creates a canonical error of the given type.
func NewAPIError(errType ErrorType, message string) *APIError {
	return &APIError{Type: errType, Message: message}
}

// WithStatusCode sets the upstream HTTP status code.
func (e *APIError) WithStatusCode(code int) *APIError {
	e.StatusCode = code
	return e
}

// WithProvider tags the error with the provider it originated from.
func (e *APIError) WithProvider(name string) *APIError {
	e.Provider = name
	return e
}

// Convenience constructors.

func ErrBadRequest(message string) *APIError {
	return NewAPIError(ErrorTypeBadRequest, message).WithStatusCode(http.StatusBadRequest)
}

func ErrAuthentication(message string) *APIError {
	return NewAPIError(ErrorTypeAuthentication, message).WithStatusCode(http.StatusUnauthorized)
}

func ErrRateLimit(message string) *APIError {
	return NewAPIError(ErrorTypeRateLimit, message).WithStatusCode(http.StatusTooManyRequests)
}

func ErrServer(message string) *APIError {
	return NewAPIError(ErrorTypeServer, message).WithStatusCode(http.StatusInternalServerError)
}

func ErrContextLength(message string) *APIError {
	return NewAPIError(ErrorTypeContextLength, message).WithStatusCode(http.StatusBadRequest)
}

func ErrTimeout(message string) *APIError {
	return NewAPIError(ErrorTypeTimeout, message).WithStatusCode(http.StatusRequestTimeout)
}

// ClassifyError converts any error into a canonical *APIError. Errors
// that are already canonical pass through unchanged; everything else is
// classified from the error chain and message content.
func ClassifyError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout(err.Error())
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout(err.Error())
	}
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return NewAPIError(ErrorTypeTLS, err.Error())
	}

	return classifyByMessage(err.Error())
}

// ClassifyStatusCode maps an upstream HTTP status to an error type,
// falling back to message sniffing where the status is ambiguous.
func ClassifyStatusCode(status int, message string) *APIError {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrRateLimit(message)
	case status >= 500:
		return ErrServer(message).WithStatusCode(status)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrAuthentication(message).WithStatusCode(status)
	case status == http.StatusBadRequest:
		// 400 can hide a context overflow, which routes differently.
		if isContextLengthMessage(message) {
			return ErrContextLength(message)
		}
		return ErrBadRequest(message)
	case status == http.StatusRequestTimeout:
		return ErrTimeout(message)
	default:
		return NewAPIError(ErrorTypeUnknown, message).WithStatusCode(status)
	}
}

func classifyByMessage(message string) *APIError {
	lower := strings.ToLower(message)

	switch {
	case strings.Contains(lower, "rate limit"):
		return ErrRateLimit(message)
	case isContextLengthMessage(message):
		return ErrContextLength(message)
	case strings.Contains(lower, "internal server error") ||
		strings.Contains(lower, "503"):
		return ErrServer(message)
	case strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "invalid api key") ||
		strings.Contains(lower, "authentication"):
		return ErrAuthentication(message)
	case strings.Contains(lower, "bad request") ||
		strings.Contains(lower, "invalid request"):
		return ErrBadRequest(message)
	case strings.Contains(lower, "certificate") ||
		strings.Contains(lower, "self-signed"):
		return NewAPIError(ErrorTypeTLS, message)
	case strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "deadline exceeded"):
		return ErrTimeout(message)
	}

	return NewAPIError(ErrorTypeUnknown, message)
}

func isContextLengthMessage(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "context length") ||
		strings.Contains(lower, "context window") ||
		strings.Contains(lower, "too many tokens") ||
		strings.Contains(lower, "too long")
}
