package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation            ErrorType = "validation"
	ErrorTypeNetwork               ErrorType = "network"
	ErrorTypeProcessing            ErrorType = "processing"
	ErrorTypeTimeout               ErrorType = "timeout"
	ErrorTypeNotFound              ErrorType = "not_found"
	ErrorTypeInternal              ErrorType = "internal"
	ErrorTypeQualityRejected       ErrorType = "quality_rejected"
	ErrorTypePreprocessFailure     ErrorType = "preprocess_failure"
	ErrorTypeRecognizerUnavailable ErrorType = "recognizer_unavailable"
	ErrorTypeRecognizerTimeout     ErrorType = "recognizer_timeout"
	ErrorTypeNoValueFound          ErrorType = "no_value_found"
	ErrorTypeInvalidFilterPattern  ErrorType = "invalid_filter_pattern"
	ErrorTypeAlreadyProcessing     ErrorType = "already_processing"
	ErrorTypeCancelled             ErrorType = "cancelled"
)

// StatusClientClosedRequest is reported for captures cancelled before completion.
const StatusClientClosedRequest = 499

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType         `json:"type"`
	Message    string            `json:"message"`
	Details    string            `json:"details,omitempty"`
	StatusCode int               `json:"status_code"`
	Context    map[string]string `json:"context,omitempty"`
	Cause      error             `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext attaches a key/value pair the caller can show to the user.
func (e *AppError) WithContext(key, value string) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

func newError(t ErrorType, status int, message string, cause error) *AppError {
	return &AppError{
		Type:       t,
		Message:    message,
		StatusCode: status,
		Cause:      cause,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *AppError {
	return newError(ErrorTypeValidation, http.StatusBadRequest, message, cause)
}

// NewNetworkError creates a new network error
func NewNetworkError(message string, cause error) *AppError {
	return newError(ErrorTypeNetwork, http.StatusBadGateway, message, cause)
}

// NewProcessingError creates a new processing error
func NewProcessingError(message string, cause error) *AppError {
	return newError(ErrorTypeProcessing, http.StatusUnprocessableEntity, message, cause)
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(message string, cause error) *AppError {
	return newError(ErrorTypeTimeout, http.StatusGatewayTimeout, message, cause)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *AppError {
	return newError(ErrorTypeInternal, http.StatusInternalServerError, message, cause)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, cause error) *AppError {
	return newError(ErrorTypeNotFound, http.StatusNotFound, message, cause)
}

// NewQualityRejectedError reports a frame that failed the quality gate.
// reason is one of "too blurry", "too dark" or "excessive glare".
func NewQualityRejectedError(reason string) *AppError {
	err := newError(ErrorTypeQualityRejected, http.StatusUnprocessableEntity, reason, nil)
	err.Details = "retake the photo with steadier framing, more light or a different angle"
	return err.WithContext("reason", reason)
}

// NewPreprocessError reports a malformed or unreadable source image.
func NewPreprocessError(message string, cause error) *AppError {
	return newError(ErrorTypePreprocessFailure, http.StatusBadRequest, message, cause)
}

// NewRecognizerUnavailableError reports a recognizer that could not serve the attempt.
func NewRecognizerUnavailableError(message string, cause error) *AppError {
	return newError(ErrorTypeRecognizerUnavailable, http.StatusServiceUnavailable, message, cause)
}

// NewRecognizerTimeoutError reports a recognizer call that exceeded its deadline.
func NewRecognizerTimeoutError(message string, cause error) *AppError {
	return newError(ErrorTypeRecognizerTimeout, http.StatusGatewayTimeout, message, cause)
}

// NewNoValueFoundError reports that the labeled reading was absent from both
// the raw and the filtered recognizer text. Both are attached so the user can
// judge whether to retry or enter the value by hand.
func NewNoValueFoundError(label, rawText, filteredText string) *AppError {
	err := newError(ErrorTypeNoValueFound, http.StatusUnprocessableEntity,
		fmt.Sprintf("could not find %s value in recognized text", label), nil)
	return err.WithContext("raw_text", rawText).WithContext("filtered_text", filteredText)
}

// NewInvalidFilterPatternError reports a filter pattern that does not compile.
func NewInvalidFilterPatternError(pattern string, cause error) *AppError {
	err := newError(ErrorTypeInvalidFilterPattern, http.StatusBadRequest, "invalid filter pattern", cause)
	return err.WithContext("pattern", pattern)
}

// NewAlreadyProcessingError rejects a capture while another one is in flight.
func NewAlreadyProcessingError(jobID string) *AppError {
	err := newError(ErrorTypeAlreadyProcessing, http.StatusConflict, "a capture is already processing", nil)
	return err.WithContext("job_id", jobID)
}

// NewCancelledError reports a capture abandoned before it completed.
func NewCancelledError(message string, cause error) *AppError {
	return newError(ErrorTypeCancelled, StatusClientClosedRequest, message, cause)
}

// IsType checks if the error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// GetStatusCode extracts the HTTP status code from an error
func GetStatusCode(err error) int {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// AsAppError returns the first AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	ok := stderrors.As(err, &appErr)
	return appErr, ok
}
