package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError(t *testing.T) {
	t.Run("Error returns formatted string", func(t *testing.T) {
		err := New(ErrCodeNotFound, "Session not found")
		assert.Equal(t, "NOT_FOUND: Session not found", err.Error())
	})

	t.Run("Error with cause includes cause", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Wrap(ErrCodeGenerationFailed, "generation call failed", cause)
		assert.Contains(t, err.Error(), "GENERATION_FAILED")
		assert.Contains(t, err.Error(), "generation call failed")
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("WithCause adds cause to error", func(t *testing.T) {
		cause := errors.New("original error")
		err := New(ErrCodeInternal, "Something went wrong").WithCause(cause)
		assert.Equal(t, cause, err.Unwrap())
	})

	t.Run("errors.Is sees through wrapping", func(t *testing.T) {
		cause := errors.New("deadline exceeded")
		err := fmt.Errorf("outer: %w", GenerationFailed("call failed", cause))
		assert.True(t, errors.Is(err, cause))
	})
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name         string
		constructor  func() *AppError
		expectedCode ErrorCode
	}{
		{"GenerationFailed", func() *AppError { return GenerationFailed("test", nil) }, ErrCodeGenerationFailed},
		{"GenerationRejected", func() *AppError { return GenerationRejected(400, "bad request") }, ErrCodeGenerationFailed},
		{"SafetyBlocked", func() *AppError { return SafetyBlocked("SAFETY") }, ErrCodeSafetyBlocked},
		{"EmptyResponse", func() *AppError { return EmptyResponse("candidates") }, ErrCodeEmptyResponse},
		{"MalformedOutput", func() *AppError { return MalformedOutput(nil) }, ErrCodeMalformedOutput},
		{"Precondition", func() *AppError { return Precondition("test") }, ErrCodePrecondition},
		{"EvaluationTimeout", func() *AppError { return EvaluationTimeout("test") }, ErrCodeEvaluationTimeout},
		{"RateLimitExceeded", func() *AppError { return RateLimitExceeded("session") }, ErrCodeRateLimitExceeded},
		{"ValidationError", func() *AppError { return ValidationError("test") }, ErrCodeValidation},
		{"InvalidInput", func() *AppError { return InvalidInput("email", "invalid") }, ErrCodeInvalidInput},
		{"MissingRequired", func() *AppError { return MissingRequired("jobDescription") }, ErrCodeMissingRequired},
		{"NotFound", func() *AppError { return NotFound("Session") }, ErrCodeNotFound},
		{"LockTimeout", func() *AppError { return LockTimeout("/tmp/x.json") }, ErrCodeLockTimeout},
		{"Internal", func() *AppError { return Internal("test") }, ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.constructor()
			assert.Equal(t, tt.expectedCode, err.Code)
		})
	}
}

func TestGetCode(t *testing.T) {
	t.Run("returns code for AppError", func(t *testing.T) {
		assert.Equal(t, ErrCodePrecondition, GetCode(Precondition("double start")))
	})

	t.Run("returns internal for unknown errors", func(t *testing.T) {
		assert.Equal(t, ErrCodeInternal, GetCode(errors.New("boom")))
	})

	t.Run("unwraps nested AppError", func(t *testing.T) {
		err := fmt.Errorf("context: %w", SafetyBlocked("BLOCKED"))
		assert.Equal(t, ErrCodeSafetyBlocked, GetCode(err))
	})
}

func TestIsRetryable(t *testing.T) {
	t.Run("transport and timeout are retryable", func(t *testing.T) {
		assert.True(t, IsRetryable(GenerationFailed("x", nil)))
		assert.True(t, IsRetryable(EvaluationTimeout("x")))
		assert.True(t, IsRetryable(MalformedOutput(nil)))
		assert.True(t, IsRetryable(EmptyResponse("text")))
	})

	t.Run("precondition and unknown errors are not", func(t *testing.T) {
		assert.False(t, IsRetryable(Precondition("x")))
		assert.False(t, IsRetryable(errors.New("boom")))
	})
}
