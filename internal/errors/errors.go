package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Generation service
	ErrCodeGenerationFailed ErrorCode = "GENERATION_FAILED"
	ErrCodeSafetyBlocked    ErrorCode = "SAFETY_BLOCKED"
	ErrCodeEmptyResponse    ErrorCode = "EMPTY_RESPONSE"
	ErrCodeMalformedOutput  ErrorCode = "MALFORMED_OUTPUT"

	// Orchestration
	ErrCodePrecondition      ErrorCode = "PRECONDITION"
	ErrCodeEvaluationTimeout ErrorCode = "EVALUATION_TIMEOUT"

	// Admission
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Validation
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED"

	// Storage
	ErrCodeNotFound    ErrorCode = "NOT_FOUND"
	ErrCodeLockTimeout ErrorCode = "LOCK_TIMEOUT"
	ErrCodeStorage     ErrorCode = "STORAGE_ERROR"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// AppError is a structured error that can be returned to clients
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

// GenerationFailed covers transport-level failures reaching the generation
// service, including exhausted retry budgets. Retryable per client policy.
func GenerationFailed(message string, cause error) *AppError {
	return Wrap(ErrCodeGenerationFailed, message, cause)
}

// GenerationRejected is a non-retryable 4xx from the generation service,
// carrying status code and raw body for diagnostics.
func GenerationRejected(status int, body string) *AppError {
	return New(ErrCodeGenerationFailed, fmt.Sprintf("generation request rejected with status %d", status)).
		WithDetails(map[string]any{"status": status, "body": body})
}

func SafetyBlocked(finishReason string) *AppError {
	return New(ErrCodeSafetyBlocked, fmt.Sprintf("response blocked by safety filter: %s", finishReason))
}

func EmptyResponse(what string) *AppError {
	return New(ErrCodeEmptyResponse, fmt.Sprintf("generation service returned empty %s", what))
}

func MalformedOutput(cause error) *AppError {
	return Wrap(ErrCodeMalformedOutput, "structured output is not valid JSON", cause)
}

// Precondition signals caller misuse (double start, chat before start,
// empty transcript). Never retryable.
func Precondition(message string) *AppError {
	return New(ErrCodePrecondition, message)
}

func EvaluationTimeout(message string) *AppError {
	return New(ErrCodeEvaluationTimeout, message)
}

func RateLimitExceeded(scope string) *AppError {
	return New(ErrCodeRateLimitExceeded, "Rate limit exceeded").
		WithDetails(map[string]string{"scope": scope})
}

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func InvalidInput(field string, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func MissingRequired(field string) *AppError {
	return New(ErrCodeMissingRequired, fmt.Sprintf("%s is required", field))
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func LockTimeout(path string) *AppError {
	return New(ErrCodeLockTimeout, fmt.Sprintf("could not acquire lock for %s", path))
}

func Storage(cause error) *AppError {
	return Wrap(ErrCodeStorage, "Storage error", cause)
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsRetryable reports whether the evaluation retry loop may retry after err.
// Transport failures, timeouts, and malformed or blocked generations all
// qualify: each can yield a usable result on another attempt. Unexpected
// kinds (preconditions, internal misconfiguration) abort.
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case ErrCodeGenerationFailed, ErrCodeEvaluationTimeout, ErrCodeSafetyBlocked,
		ErrCodeEmptyResponse, ErrCodeMalformedOutput:
		return true
	default:
		return false
	}
}
