package types

import (
	"fmt"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// Code prefixes carry semantics: "config_" and "input_" errors are fatal
// contract violations that must never be retried; "internal_" and
// "upstream_" errors are transient and eligible for the queue's bounded
// retry.
const (
	// Configuration violations (fatal, raised immediately)
	ErrCodeConfigUnknownAggregation ErrorCode = "config_unknown_aggregation"
	ErrCodeConfigUnknownOperator    ErrorCode = "config_unknown_operator"
	ErrCodeConfigUnknownWindowType  ErrorCode = "config_unknown_window_type"
	ErrCodeConfigWindowSize         ErrorCode = "config_window_size_not_positive"
	ErrCodeConfigMissingTimezone    ErrorCode = "config_missing_region_timezone"
	ErrCodeConfigThresholdOrder     ErrorCode = "config_threshold_order_invalid"

	// Input contract violations (fatal)
	ErrCodeInputEmptySeries           ErrorCode = "input_empty_series"
	ErrCodeInputMixedSeries           ErrorCode = "input_mixed_series"
	ErrCodeInputMissingPredictionRun  ErrorCode = "input_missing_prediction_run"
	ErrCodeInputUnexpectedRunID       ErrorCode = "input_unexpected_prediction_run"
	ErrCodeInputWeatherTypeMismatch   ErrorCode = "input_weather_type_mismatch"
	ErrCodeInputUnknownTimezone       ErrorCode = "input_unknown_timezone"
	ErrCodeInputInvalidTimeRange      ErrorCode = "input_invalid_time_range"
	ErrCodeInputMalformedTask         ErrorCode = "input_malformed_task"

	// Not Found
	ErrCodeNotFoundProduct ErrorCode = "not_found_product"
	ErrCodeNotFoundPolicy  ErrorCode = "not_found_policy"
	ErrCodeNotFoundClaim   ErrorCode = "not_found_claim"
	ErrCodeNotFoundEvent   ErrorCode = "not_found_risk_event"

	// Internal/Upstream (transient)
	ErrCodeInternalDB          ErrorCode = "internal_database_error"
	ErrCodeInternalLock        ErrorCode = "internal_lock_error"
	ErrCodeInternalUnexpected  ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamWeather     ErrorCode = "upstream_weather_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
)

// Fatal reports whether the code represents a configuration or input
// contract violation. Fatal errors are surfaced immediately and must not
// be requeued by workers.
func (c ErrorCode) Fatal() bool {
	s := string(c)
	return strings.HasPrefix(s, "config_") || strings.HasPrefix(s, "input_") ||
		strings.HasPrefix(s, "not_found_")
}

// AppError is the standard application error type used throughout the
// calculation core. All domain errors should be expressed as AppError to
// enable consistent formatting, retry classification, and error chain
// support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Fatal reports whether this error must not be retried.
func (e *AppError) Fatal() bool {
	return e.Code.Fatal()
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
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and
// optional underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError carrying structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}
