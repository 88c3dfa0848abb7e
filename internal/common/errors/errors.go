// Package errors provides the structured error taxonomy shared by the API and
// the Zeebe workers, plus its translation to HTTP statuses and BPMN errors.
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

// Wizard / request errors
const (
	ErrCodeUnknownLoanType      ErrorCode = "UNKNOWN_LOAN_TYPE"
	ErrCodeStepValidationFailed ErrorCode = "STEP_VALIDATION_FAILED"
	ErrCodeInvalidRequest       ErrorCode = "INVALID_REQUEST"
	ErrCodeNotOnReviewStep      ErrorCode = "NOT_ON_REVIEW_STEP"
	ErrCodeSubmissionInProgress ErrorCode = "SUBMISSION_IN_PROGRESS"
	ErrCodeAlreadySubmitted     ErrorCode = "ALREADY_SUBMITTED"
	ErrCodeSubmissionAborted    ErrorCode = "SUBMISSION_ABORTED"
	ErrCodeSessionNotFound      ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeApplicationNotFound  ErrorCode = "APPLICATION_NOT_FOUND"
)

// Collaborator / infrastructure errors
const (
	ErrCodeSubmissionFailed   ErrorCode = "SUBMISSION_FAILED"
	ErrCodeTokenRefreshFailed ErrorCode = "TOKEN_REFRESH_FAILED"
	ErrCodeSessionStoreFailed ErrorCode = "SESSION_STORE_FAILED"

	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeDatabaseInsertFailed     ErrorCode = "DATABASE_INSERT_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeQueryTimeout             ErrorCode = "QUERY_TIMEOUT"

	ErrCodeIndexingFailed ErrorCode = "INDEXING_FAILED"

	ErrCodeScoringFailed          ErrorCode = "SCORING_FAILED"
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeProcessStartFailed     ErrorCode = "PROCESS_START_FAILED"

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

// WithMetadata attaches a key to the error and returns it.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. BPMN Error Integration
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
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

// NewUnknownLoanTypeError creates a non-retryable error for an unregistered loan type.
func NewUnknownLoanTypeError(loanType string) *StandardError {
	return newError(ErrCodeUnknownLoanType,
		"Unknown loan type. Choose one from /loan-types.",
		fmt.Sprintf("loanType: %s", loanType), false)
}

// NewStepValidationError carries per-field messages in Metadata["errors"].
func NewStepValidationError(step string, fieldErrors map[string]string) *StandardError {
	err := newError(ErrCodeStepValidationFailed,
		"Please correct the highlighted fields.",
		fmt.Sprintf("step: %s", step), false)
	return err.WithMetadata("errors", fieldErrors)
}

func NewInvalidRequestError(details string) *StandardError {
	return newError(ErrCodeInvalidRequest, "Invalid request", details, false)
}

func NewNotOnReviewStepError(current, total int) *StandardError {
	return newError(ErrCodeNotOnReviewStep,
		"Submission is only possible from the review step",
		fmt.Sprintf("currentStep: %d, totalSteps: %d", current, total), false)
}

func NewSubmissionInProgressError() *StandardError {
	return newError(ErrCodeSubmissionInProgress, "A submission is already in progress", "", false)
}

func NewSubmissionAbortedError() *StandardError {
	return newError(ErrCodeSubmissionAborted, "The session was reset while the submission was in flight", "", false)
}

func NewAlreadySubmittedError(trackingID string) *StandardError {
	return newError(ErrCodeAlreadySubmitted, "This application has already been submitted",
		fmt.Sprintf("trackingId: %s", trackingID), false)
}

func NewSessionNotFoundError(id string) *StandardError {
	return newError(ErrCodeSessionNotFound, "Wizard session not found or expired",
		fmt.Sprintf("sessionId: %s", id), false)
}

func NewApplicationNotFoundError(id string) *StandardError {
	return newError(ErrCodeApplicationNotFound, "Loan application not found",
		fmt.Sprintf("applicationId: %s", id), false)
}

// NewSubmissionFailedError keeps the banner text shown to the user as Message.
func NewSubmissionFailedError(message string, err error) *StandardError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return newError(ErrCodeSubmissionFailed, message, details, true)
}

func NewTokenRefreshFailedError(err error) *StandardError {
	return newError(ErrCodeTokenRefreshFailed, "Session expired. Please log in again.", err.Error(), false)
}

func NewSessionStoreFailedError(err error) *StandardError {
	return newError(ErrCodeSessionStoreFailed, "Session storage error", err.Error(), true)
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseConnectionFailed, "Database connection error", err.Error(), true)
}

// NewDatabaseInsertFailedError creates a retryable insert error.
func NewDatabaseInsertFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseInsertFailed, "Failed to persist record", err.Error(), true)
}

// NewQueryExecutionFailedError creates a retryable query execution error.
func NewQueryExecutionFailedError(queryType string, err error) *StandardError {
	return newError(ErrCodeQueryExecutionFailed, "Database query execution error",
		fmt.Sprintf("queryType: %s, error: %s", queryType, err.Error()), true)
}

// NewQueryTimeoutError creates a retryable query timeout error.
func NewQueryTimeoutError(queryType string) *StandardError {
	return newError(ErrCodeQueryTimeout, "Database query timeout",
		fmt.Sprintf("queryType: %s", queryType), true)
}

func NewIndexingFailedError(index string, err error) *StandardError {
	return newError(ErrCodeIndexingFailed, "Failed to index application",
		fmt.Sprintf("index: %s, error: %s", index, err.Error()), true)
}

func NewScoringFailedError(details string) *StandardError {
	return newError(ErrCodeScoringFailed, "Application could not be scored", details, false)
}

func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return newError(ErrCodeNotificationSendFailed, "Failed to send notification",
		fmt.Sprintf("channel: %s, error: %s", channel, err.Error()), true)
}

func NewProcessStartFailedError(processID string, err error) *StandardError {
	return newError(ErrCodeProcessStartFailed, "Failed to start appraisal process",
		fmt.Sprintf("processId: %s, error: %s", processID, err.Error()), true)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err.Error(), false)
}

// ==========================
// 4. Error Conversion
// ==========================

// GetRetryCount returns the recommended worker retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseConnectionFailed,
		ErrCodeDatabaseInsertFailed,
		ErrCodeQueryExecutionFailed,
		ErrCodeIndexingFailed,
		ErrCodeNotificationSendFailed,
		ErrCodeProcessStartFailed,
		ErrCodeSessionStoreFailed:
		return 3

	case ErrCodeQueryTimeout,
		ErrCodeSubmissionFailed:
		return 2

	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
// BPMN codes are identical to the internal codes.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      string(stdErr.Code),
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// HTTPStatus maps a code to the status the API answers with.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeUnknownLoanType, ErrCodeSessionNotFound, ErrCodeApplicationNotFound:
		return http.StatusNotFound
	case ErrCodeStepValidationFailed:
		return http.StatusUnprocessableEntity
	case ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case ErrCodeNotOnReviewStep, ErrCodeSubmissionInProgress, ErrCodeAlreadySubmitted, ErrCodeSubmissionAborted:
		return http.StatusConflict
	case ErrCodeTokenRefreshFailed:
		return http.StatusUnauthorized
	case ErrCodeSubmissionFailed:
		return http.StatusBadGateway
	case ErrCodeQueryTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeSessionStoreFailed, ErrCodeDatabaseConnectionFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// AsStandardError unwraps err to a *StandardError, wrapping foreign errors as INTERNAL_ERROR.
func AsStandardError(err error) *StandardError {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return NewInternalError(err)
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "TOKEN"):
		return "AUTH"
	case strings.Contains(codeStr, "SESSION"):
		return "SESSION"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "QUERY"):
		return "DATABASE"
	case strings.Contains(codeStr, "INDEX"):
		return "SEARCH"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "SUBMISSION") || strings.Contains(codeStr, "PROCESS"):
		return "SUBMISSION"
	case strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "INVALID") ||
		strings.Contains(codeStr, "UNKNOWN") || strings.Contains(codeStr, "STEP"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
