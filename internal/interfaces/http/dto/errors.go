package dto

import (
	"net/http"
	"strings"
)

// Error code constants
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeInvalidInput is used for invalid input data
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	// ErrCodeNotFound is used when a resource is not found
	ErrCodeNotFound = "ERR_NOT_FOUND"
)

// Sync error codes
const (
	// ErrCodeSyncRunning is used when a run for the same provider and
	// locale is already in flight
	ErrCodeSyncRunning = "ERR_SYNC_RUNNING"
	// ErrCodeUpstream is used when the supplier or rate source failed
	ErrCodeUpstream = "ERR_UPSTREAM"
	// ErrCodeUpstreamTimeout is used when a run exceeded its deadline
	ErrCodeUpstreamTimeout = "ERR_UPSTREAM_TIMEOUT"
	// ErrCodeSyncRejected is used when the fetched data cannot be
	// reconciled (for example a category cycle in full mode)
	ErrCodeSyncRejected = "ERR_SYNC_REJECTED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:     http.StatusInternalServerError,
	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeInvalidInput: http.StatusBadRequest,
	ErrCodeNotFound:     http.StatusNotFound,

	ErrCodeSyncRunning:     http.StatusConflict,
	ErrCodeUpstream:        http.StatusBadGateway,
	ErrCodeUpstreamTimeout: http.StatusGatewayTimeout,
	ErrCodeSyncRejected:    http.StatusUnprocessableEntity,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Returns 500 Internal Server Error if the error code is not found.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps domain error codes to API error codes
var DomainErrorCodeMapping = map[string]string{
	"NOT_FOUND":     ErrCodeNotFound,
	"INVALID_INPUT": ErrCodeInvalidInput,
	"BAD_REQUEST":   ErrCodeBadRequest,
}

// NormalizeErrorCode converts a domain error code to the API format.
// Validation codes (INVALID_*) collapse to ErrCodeInvalidInput; other
// unknown codes are returned as-is.
func NormalizeErrorCode(code string) string {
	if apiCode, ok := DomainErrorCodeMapping[code]; ok {
		return apiCode
	}
	if strings.HasPrefix(code, "INVALID_") {
		return ErrCodeInvalidInput
	}
	return code
}
