package types

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ProviderError is a failed call to the proxy endpoint. StatusCode is
// the HTTP status when one was received; network-level failures are
// reported as 503 so the retry policy treats them as transient.
type ProviderError struct {
	StatusCode int    // HTTP status, 0 when the request never left the client
	Code       string // machine code from the error body, when present
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		if e.Err != nil {
			return fmt.Sprintf("proxy: [%d] %s: %v", e.StatusCode, e.Message, e.Err)
		}
		return fmt.Sprintf("proxy: [%d] %s", e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("proxy: %s: %v", e.Message, e.Err)
	}
	return "proxy: " + e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether the failure class is worth retrying:
// rate limits and server-side errors, including the synthetic 503
// used for network failures.
func (e *ProviderError) IsTransient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsRateLimit reports whether the proxy rejected the call with 429.
func (e *ProviderError) IsRateLimit() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// NewRequestError wraps a client-side failure that never reached the
// proxy, such as a marshal error. Never retried.
func NewRequestError(message string, err error) *ProviderError {
	return &ProviderError{Message: message, Err: err}
}

// NewNetworkError wraps a transport failure as a transient 503.
func NewNetworkError(message string, err error) *ProviderError {
	return &ProviderError{
		StatusCode: http.StatusServiceUnavailable,
		Message:    message,
		Err:        err,
	}
}

// NewStatusError wraps a non-2xx response.
func NewStatusError(status int, code, message string) *ProviderError {
	return &ProviderError{StatusCode: status, Code: code, Message: message}
}

// NewMalformedStreamError marks a stream that violated the chunk
// protocol, such as a finish reason before any content chunk.
func NewMalformedStreamError(message string) *ProviderError {
	return &ProviderError{Code: "malformed_stream", Message: message}
}

// IsMalformedStream reports whether err is a stream-protocol violation.
func IsMalformedStream(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Code == "malformed_stream"
}

// IsTransient reports whether err should be retried. Context
// cancellation is never transient regardless of how it was wrapped.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.IsTransient()
	}
	return false
}
