package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. Runtime data conditions (missing channels, gaps,
// degenerate series) are never errors; they surface as verdicts.
const (
	// Configuration (fatal at startup)
	ErrCodeConfigInvalidThresholds ErrorCode = "config_invalid_thresholds"
	ErrCodeConfigInvalidBounds     ErrorCode = "config_invalid_bounds"
	ErrCodeConfigInvalidWindow     ErrorCode = "config_invalid_window"
	ErrCodeConfigInvalidSelection  ErrorCode = "config_invalid_sensitivity"
	ErrCodeConfigUnknownDiagnostic ErrorCode = "config_unknown_diagnostic"
	ErrCodeConfigMissingChannel    ErrorCode = "config_missing_channel"
	ErrCodeConfigInvalidSource     ErrorCode = "config_invalid_source"

	// Internal/Upstream
	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamCommand    ErrorCode = "upstream_command_unavailable"
	ErrCodeUpstreamMetrics    ErrorCode = "upstream_metrics_unavailable"
	ErrCodeUpstreamIngest     ErrorCode = "upstream_ingest_unavailable"
	ErrCodeIngestMalformed    ErrorCode = "ingest_malformed_record"

	// API
	ErrCodeNotFoundEquipment ErrorCode = "not_found_equipment"
	ErrCodeValidationLimit   ErrorCode = "validation_invalid_limit"
	ErrCodeValidationQuery   ErrorCode = "validation_invalid_query"
)

// IsConfig reports whether the code belongs to the configuration class.
func (c ErrorCode) IsConfig() bool {
	return strings.HasPrefix(string(c), "config_")
}

// HTTPStatus maps an ErrorCode to the status the status API answers with.
// Returns 500 for unrecognized codes.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"), strings.HasPrefix(s, "ingest_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the standard application error type. It carries a typed code so
// callers can branch on error class without string matching.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{Code: e.Code, Message: e.Message, Err: e.Err, Details: merged}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// CodeOf extracts the ErrorCode from an error chain, or "" if none is present.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
