// Package errors provides standardized error handling for BPMN workflow integration.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeValidationFailed  ErrorCode = "VALIDATION_FAILED"
	ErrCodeInputParsing      ErrorCode = "INPUT_PARSING_FAILED"
	ErrCodeMalformedFeedback ErrorCode = "MALFORMED_FEEDBACK"

	ErrCodeDataUnavailable          ErrorCode = "DATA_UNAVAILABLE"
	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeSearchQueryFailed        ErrorCode = "SEARCH_QUERY_FAILED"
	ErrCodeExternalService          ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeTimeout                  ErrorCode = "TIMEOUT"

	ErrCodeAdaptationFailed ErrorCode = "ADAPTATION_FAILED"
	ErrCodeProfileNotFound  ErrorCode = "PROFILE_NOT_FOUND"
	ErrCodeResourceNotFound ErrorCode = "RESOURCE_NOT_FOUND"
	ErrCodeBusinessRule     ErrorCode = "BUSINESS_RULE_VIOLATION"
	ErrCodeAuthentication   ErrorCode = "AUTHENTICATION_ERROR"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Matching Error Taxonomy
// ==========================

// ValidationError reports malformed or missing match criteria.
type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// DataUnavailableError means a catalog or feedback collaborator could not be
// reached. Callers may retry.
type DataUnavailableError struct {
	Source string
	Err    error
}

func (e *DataUnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Source, e.Err)
}

func (e *DataUnavailableError) Unwrap() error { return e.Err }

func NewDataUnavailableError(source string, err error) *DataUnavailableError {
	return &DataUnavailableError{Source: source, Err: err}
}

// AdaptationError marks a weight adaptation cycle that must be skipped.
type AdaptationError struct {
	Reason string
	Err    error
}

func (e *AdaptationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("adaptation skipped: %s: %v", e.Reason, e.Err)
	}
	return "adaptation skipped: " + e.Reason
}

func (e *AdaptationError) Unwrap() error { return e.Err }

func NewAdaptationError(reason string, err error) *AdaptationError {
	return &AdaptationError{Reason: reason, Err: err}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return stderrors.As(err, &v)
}

func IsDataUnavailable(err error) bool {
	var d *DataUnavailableError
	return stderrors.As(err, &d)
}

func IsAdaptation(err error) bool {
	var a *AdaptationError
	return stderrors.As(err, &a)
}

// ==========================
// 3. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}

	for k, v := range e.ErrorVariables {
		vars[k] = v
	}

	return vars
}

// ==========================
// 4. Error Constructors
// ==========================

func newStandard(code ErrorCode, message, details string, retryable bool) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

func NewInputParsingError(err error) *StandardError {
	return newStandard(ErrCodeInputParsing, "Failed to parse job variables", err.Error(), false)
}

func NewMalformedFeedbackError(details string) *StandardError {
	return newStandard(ErrCodeMalformedFeedback, "Feedback record is malformed", details, false)
}

func NewProfileNotFoundError(version int64) *StandardError {
	return newStandard(ErrCodeProfileNotFound, "Weight profile version not found", fmt.Sprintf("version: %d", version), false)
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return newStandard(ErrCodeDatabaseConnectionFailed, "Database connection error", err.Error(), true)
}

// NewQueryExecutionFailedError creates a retryable query execution error.
func NewQueryExecutionFailedError(queryType string, err error) *StandardError {
	return newStandard(ErrCodeQueryExecutionFailed, "Database query execution error",
		fmt.Sprintf("queryType: %s, error: %s", queryType, err.Error()), true)
}

func NewSearchQueryFailedError(index string, err error) *StandardError {
	return newStandard(ErrCodeSearchQueryFailed, "Search query failed",
		fmt.Sprintf("index: %s, error: %s", index, err.Error()), true)
}

func NewBusinessRuleError(message, details string) *StandardError {
	return newStandard(ErrCodeBusinessRule, message, details, false)
}

func NewExternalServiceError(service string, err error) *StandardError {
	return newStandard(ErrCodeExternalService, fmt.Sprintf("External service %s failed", service), err.Error(), true)
}

func NewTimeoutError(service string, err error) *StandardError {
	return newStandard(ErrCodeTimeout, fmt.Sprintf("Timeout calling %s", service), err.Error(), true)
}

func NewResourceNotFoundError(service, details string) *StandardError {
	return newStandard(ErrCodeResourceNotFound, fmt.Sprintf("Resource not found in %s", service), details, false)
}

func NewAuthenticationError(details string) *StandardError {
	return newStandard(ErrCodeAuthentication, "Authentication failed", details, false)
}

// ToStandardError maps any error, including the matching taxonomy, onto a
// StandardError.
func ToStandardError(err error) *StandardError {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}

	var v *ValidationError
	if stderrors.As(err, &v) {
		e := newStandard(ErrCodeValidationFailed, "Match criteria validation failed", v.Error(), false)
		e.Metadata = map[string]interface{}{"field": v.Field, "reason": v.Reason}
		return e
	}

	var d *DataUnavailableError
	if stderrors.As(err, &d) {
		e := newStandard(ErrCodeDataUnavailable, fmt.Sprintf("%s is unavailable", d.Source), d.Error(), true)
		e.Metadata = map[string]interface{}{"source": d.Source}
		return e
	}

	var a *AdaptationError
	if stderrors.As(err, &a) {
		return newStandard(ErrCodeAdaptationFailed, "Weight adaptation skipped", a.Error(), false)
	}

	return newStandard(ErrCodeInternal, "Unexpected error", err.Error(), false)
}

// ==========================
// 5. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to the BPMN error codes caught
// by boundary events in the matching process.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeValidationFailed:         "MATCH_CRITERIA_INVALID",
	ErrCodeInputParsing:             "MATCH_CRITERIA_INVALID",
	ErrCodeMalformedFeedback:        "FEEDBACK_INVALID",
	ErrCodeDataUnavailable:          "MATCH_DATA_UNAVAILABLE",
	ErrCodeDatabaseConnectionFailed: "MATCH_DATA_UNAVAILABLE",
	ErrCodeQueryExecutionFailed:     "MATCH_DATA_UNAVAILABLE",
	ErrCodeSearchQueryFailed:        "MATCH_DATA_UNAVAILABLE",
	ErrCodeAdaptationFailed:         "ADAPTATION_SKIPPED",
	ErrCodeProfileNotFound:          "PROFILE_NOT_FOUND",
}

// GetRetryCount returns the recommended retry count for an error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDataUnavailable,
		ErrCodeDatabaseConnectionFailed,
		ErrCodeQueryExecutionFailed,
		ErrCodeSearchQueryFailed,
		ErrCodeExternalService:
		return 3

	case ErrCodeTimeout:
		return 2

	default:
		return 0 // Business errors: no retry
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	if field, ok := stdErr.Metadata["field"]; ok {
		vars["errorField"] = field
	}

	return &BPMNError{
		Code:           bpmnCode,
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

// HTTPStatus maps an error onto the status used by the admin listener.
func HTTPStatus(err error) int {
	switch ToStandardError(err).Code {
	case ErrCodeValidationFailed, ErrCodeInputParsing, ErrCodeMalformedFeedback:
		return http.StatusBadRequest
	case ErrCodeProfileNotFound, ErrCodeResourceNotFound:
		return http.StatusNotFound
	case ErrCodeAuthentication:
		return http.StatusUnauthorized
	case ErrCodeAdaptationFailed:
		return http.StatusConflict
	case ErrCodeDataUnavailable, ErrCodeDatabaseConnectionFailed, ErrCodeQueryExecutionFailed,
		ErrCodeSearchQueryFailed, ErrCodeExternalService, ErrCodeTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ==========================
// 6. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "PARSING") || strings.Contains(codeStr, "MALFORMED"):
		return "VALIDATION"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "QUERY") || strings.Contains(codeStr, "DATA_UNAVAILABLE"):
		return "DATA"
	case strings.Contains(codeStr, "ADAPTATION") || strings.Contains(codeStr, "PROFILE"):
		return "WEIGHTS"
	case strings.Contains(codeStr, "EXTERNAL") || strings.Contains(codeStr, "TIMEOUT"):
		return "INTEGRATION"
	default:
		return "OTHER"
	}
}
