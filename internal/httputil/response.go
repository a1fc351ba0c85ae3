package httputil

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/voiverse/interview-server/internal/errors"
)

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string              `json:"error"`
	Code    apperrors.ErrorCode `json:"code"`
	Details any                 `json:"details,omitempty"`
}

// WriteError writes an AppError as an HTTP response with appropriate status code
func WriteError(w http.ResponseWriter, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		appErr = apperrors.Internal("An unexpected error occurred")
	}

	WriteJSON(w, StatusFromCode(appErr.Code), ErrorResponse{
		Error:   appErr.Message,
		Code:    appErr.Code,
		Details: appErr.Details,
	})
}

// StatusFromCode maps ErrorCode to HTTP status code
func StatusFromCode(code apperrors.ErrorCode) int {
	switch code {
	// 400 Bad Request
	case apperrors.ErrCodeValidation,
		apperrors.ErrCodeInvalidInput,
		apperrors.ErrCodeMissingRequired:
		return http.StatusBadRequest

	// 404 Not Found
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound

	// 409 Conflict
	case apperrors.ErrCodePrecondition:
		return http.StatusConflict

	// 429 Too Many Requests
	case apperrors.ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests

	// 502 Bad Gateway
	case apperrors.ErrCodeGenerationFailed,
		apperrors.ErrCodeSafetyBlocked,
		apperrors.ErrCodeEmptyResponse,
		apperrors.ErrCodeMalformedOutput:
		return http.StatusBadGateway

	// 503 Service Unavailable
	case apperrors.ErrCodeLockTimeout,
		apperrors.ErrCodeEvaluationTimeout:
		return http.StatusServiceUnavailable

	// 500 Internal Server Error
	case apperrors.ErrCodeInternal,
		apperrors.ErrCodeStorage:
		return http.StatusInternalServerError

	default:
		return http.StatusInternalServerError
	}
}
