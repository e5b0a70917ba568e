package errors

import (
	"fmt"
	"net/http"
)

// Code represents an error code with HTTP status and message
type Code struct {
	Code    int    // Business error code
	Status  int    // HTTP status code
	Message string // Error message
}

// Error codes for different modules
const (
	// Success
	Success = 0

	// Common errors (1000-1999)
	ErrInternalServer  = 1000
	ErrInvalidParams   = 1001
	ErrNotFound        = 1002
	ErrTooManyRequests = 1003
	ErrBadRequest      = 1004
	ErrServiceUnavail  = 1005

	// Chat errors (2000-2999)
	ErrChatEmptySubmission    = 2000
	ErrChatNoModelConfigured  = 2001
	ErrChatSessionNotFound    = 2002
	ErrChatStorageFailed      = 2003
	ErrChatToolFailed         = 2004
	ErrChatGuardrailFailed    = 2005
	ErrChatAttachmentRejected = 2006
	ErrChatTurnInProgress     = 2007

	// Proxy errors (3000-3999)
	ErrProxyRequestFailed   = 3000
	ErrProxyRateLimited     = 3001
	ErrProxyServerError     = 3002
	ErrProxyUnavailable     = 3003
	ErrProxyAuthFailed      = 3004
	ErrProxyMalformedStream = 3005
	ErrProxyModelNotFound   = 3006

	// Export/notification errors (4000-4999)
	ErrBackupFailed = 4000
	ErrNotifyFailed = 4001
)

// codeMap maps error codes to their details
var codeMap = map[int]Code{
	Success: {Success, http.StatusOK, "Success"},

	// Common errors
	ErrInternalServer:  {ErrInternalServer, http.StatusInternalServerError, "Internal server error"},
	ErrInvalidParams:   {ErrInvalidParams, http.StatusBadRequest, "Invalid parameters"},
	ErrNotFound:        {ErrNotFound, http.StatusNotFound, "Resource not found"},
	ErrTooManyRequests: {ErrTooManyRequests, http.StatusTooManyRequests, "Too many requests"},
	ErrBadRequest:      {ErrBadRequest, http.StatusBadRequest, "Bad request"},
	ErrServiceUnavail:  {ErrServiceUnavail, http.StatusServiceUnavailable, "Service unavailable"},

	// Chat errors
	ErrChatEmptySubmission:    {ErrChatEmptySubmission, http.StatusBadRequest, "Submission has no text and no attachments"},
	ErrChatNoModelConfigured:  {ErrChatNoModelConfigured, http.StatusBadRequest, "No model configured"},
	ErrChatSessionNotFound:    {ErrChatSessionNotFound, http.StatusNotFound, "Session not found"},
	ErrChatStorageFailed:      {ErrChatStorageFailed, http.StatusInternalServerError, "Session storage operation failed"},
	ErrChatToolFailed:         {ErrChatToolFailed, http.StatusInternalServerError, "Tool execution failed"},
	ErrChatGuardrailFailed:    {ErrChatGuardrailFailed, http.StatusInternalServerError, "Guardrail evaluation failed"},
	ErrChatAttachmentRejected: {ErrChatAttachmentRejected, http.StatusBadRequest, "Unsupported attachment type"},
	ErrChatTurnInProgress:     {ErrChatTurnInProgress, http.StatusConflict, "Another turn is already running"},

	// Proxy errors
	ErrProxyRequestFailed:   {ErrProxyRequestFailed, http.StatusBadGateway, "Proxy request failed"},
	ErrProxyRateLimited:     {ErrProxyRateLimited, http.StatusTooManyRequests, "Proxy rate limit exceeded"},
	ErrProxyServerError:     {ErrProxyServerError, http.StatusBadGateway, "Proxy server error"},
	ErrProxyUnavailable:     {ErrProxyUnavailable, http.StatusServiceUnavailable, "Proxy unavailable"},
	ErrProxyAuthFailed:      {ErrProxyAuthFailed, http.StatusUnauthorized, "Proxy authentication failed"},
	ErrProxyMalformedStream: {ErrProxyMalformedStream, http.StatusBadGateway, "Proxy returned a malformed stream"},
	ErrProxyModelNotFound:   {ErrProxyModelNotFound, http.StatusNotFound, "Model not found at proxy"},

	// Export/notification errors
	ErrBackupFailed: {ErrBackupFailed, http.StatusInternalServerError, "Session export failed"},
	ErrNotifyFailed: {ErrNotifyFailed, http.StatusInternalServerError, "Notification delivery failed"},
}

// GetCode returns the Code for a given error code
func GetCode(code int) Code {
	if c, ok := codeMap[code]; ok {
		return c
	}
	return codeMap[ErrInternalServer]
}

// GetHTTPStatus returns HTTP status for a given error code
func GetHTTPStatus(code int) int {
	return GetCode(code).Status
}

// GetMessage returns the message for a given error code
func GetMessage(code int) string {
	return GetCode(code).Message
}

// IsSuccess checks if the code represents success
func IsSuccess(code int) bool {
	return code == Success
}

// IsClientError checks if the code represents a client error (4xx)
func IsClientError(code int) bool {
	status := GetHTTPStatus(code)
	return status >= 400 && status < 500
}

// IsServerError checks if the code represents a server error (5xx)
func IsServerError(code int) bool {
	status := GetHTTPStatus(code)
	return status >= 500
}

// FormatError formats an error message with code
func FormatError(code int, details ...string) string {
	msg := GetMessage(code)
	if len(details) > 0 && details[0] != "" {
		return fmt.Sprintf("%s: %s", msg, details[0])
	}
	return msg
}
