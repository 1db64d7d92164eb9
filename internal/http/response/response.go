package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nexlify/user-accounts/internal/domain"
	"github.com/nexlify/user-accounts/pkg/auth"
	"github.com/nexlify/user-accounts/pkg/logger"
)

const (
	StatusSuccess = "success"
	StatusFail    = "fail"
	StatusError   = "error"
)

// Error codes returned alongside failure responses.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeMissingCredentials = "MISSING_CREDENTIALS"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeExpiredToken       = "EXPIRED_TOKEN"
	CodeNotFound           = "NOT_FOUND"
	CodeEmailExists        = "EMAIL_EXISTS"
	CodeInvalidResetCode   = "INVALID_RESET_CODE"
	CodePasswordMismatch   = "PASSWORD_MISMATCH"
	CodeDispatchFailed     = "DISPATCH_FAILED"
	CodeInvalidInput       = "INVALID_INPUT"
	CodeRateLimit          = "RATE_LIMIT_EXCEEDED"
	CodeInternalError      = "INTERNAL_ERROR"
)

type errorBody struct {
	Status  string              `json:"status"`
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Errors  []domain.FieldError `json:"errors,omitempty"`
	Details string              `json:"details,omitempty"`
}

type successBody struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Total   *int        `json:"total,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func JSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

// Success writes the {status, message, data} envelope.
func Success(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	JSON(w, statusCode, successBody{Status: StatusSuccess, Message: message, Data: data})
}

// SuccessList writes a list envelope including the record count.
func SuccessList(w http.ResponseWriter, message string, total int, data interface{}) {
	JSON(w, http.StatusOK, successBody{Status: StatusSuccess, Message: message, Total: &total, Data: data})
}

// BadRequest reports a malformed request body.
func BadRequest(w http.ResponseWriter, message string) {
	JSON(w, http.StatusBadRequest, errorBody{Status: StatusFail, Code: CodeInvalidInput, Message: message})
}

// RateLimited reports that the caller exceeded a request budget.
func RateLimited(w http.ResponseWriter) {
	JSON(w, http.StatusTooManyRequests, errorBody{
		Status:  StatusFail,
		Code:    CodeRateLimit,
		Message: "too many requests, please try again later",
	})
}

// Error maps a domain error to a stable status code and safe message.
// Unclassified errors are logged in full and reported generically; details are
// included only when dev is set.
func Error(w http.ResponseWriter, r *http.Request, err error, dev bool) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		JSON(w, http.StatusBadRequest, errorBody{
			Status:  StatusFail,
			Code:    CodeValidation,
			Message: "validation failed",
			Errors:  verr.Fields,
		})
		return
	}

	status, code, message := classify(err)
	body := errorBody{Status: StatusFail, Code: code, Message: message}

	if status >= http.StatusInternalServerError {
		body.Status = StatusError
		logger.ErrorContext(r.Context(), "request failed", "error", err, "path", r.URL.Path)
		if dev {
			body.Details = err.Error()
		}
	}

	JSON(w, status, body)
}

func classify(err error) (status int, code, message string) {
	switch {
	case errors.Is(err, domain.ErrMissingCredentials):
		return http.StatusBadRequest, CodeMissingCredentials, domain.ErrMissingCredentials.Error()
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, CodeInvalidCredentials, domain.ErrInvalidCredentials.Error()
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, CodeUnauthorized, domain.ErrUnauthorized.Error()
	case errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, CodeExpiredToken, "your token has expired, please login again"
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, CodeInvalidToken, "invalid token, please login again"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, CodeNotFound, domain.ErrNotFound.Error()
	case errors.Is(err, domain.ErrDuplicateEmail):
		return http.StatusBadRequest, CodeEmailExists, domain.ErrDuplicateEmail.Error()
	case errors.Is(err, domain.ErrInvalidOrExpiredCode):
		return http.StatusBadRequest, CodeInvalidResetCode, domain.ErrInvalidOrExpiredCode.Error()
	case errors.Is(err, domain.ErrPasswordMismatch):
		return http.StatusBadRequest, CodePasswordMismatch, domain.ErrPasswordMismatch.Error()
	case errors.Is(err, domain.ErrDispatchFailed):
		return http.StatusInternalServerError, CodeDispatchFailed, domain.ErrDispatchFailed.Error()
	default:
		return http.StatusInternalServerError, CodeInternalError, "something went wrong"
	}
}
