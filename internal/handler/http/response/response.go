package response

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cmlabs-hris/timecard-backend-go/internal/pkg/i18n"
)

type Response struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	Data    interface{}  `json:"data"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

type ErrorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		fallback := Response{
			Success: false,
			Error: &ErrorDetail{
				Code:    "ENCODING_ERROR",
				Message: "Failed to encode response",
			},
		}
		_ = json.NewEncoder(w).Encode(fallback)
	}
}

// Success responses
func Success(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    data,
	})
}

func SuccessWithMessage(w http.ResponseWriter, message string, data interface{}) {
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func Created(w http.ResponseWriter, message string, data interface{}) {
	writeJSON(w, http.StatusCreated, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Error writes an error envelope whose message is the localized text for code.
func Error(ctx context.Context, w http.ResponseWriter, statusCode int, code string, details map[string]string) {
	writeJSON(w, statusCode, Response{
		Success: false,
		Error: &ErrorDetail{
			Code:    code,
			Message: i18n.T(ctx, code),
			Details: details,
		},
	})
}

// Error responses
func BadRequest(ctx context.Context, w http.ResponseWriter, details map[string]string) {
	Error(ctx, w, http.StatusBadRequest, CodeBadRequest, details)
}

func ValidationError(ctx context.Context, w http.ResponseWriter, details map[string]string) {
	Error(ctx, w, http.StatusUnprocessableEntity, CodeValidation, details)
}

func Unauthorized(ctx context.Context, w http.ResponseWriter) {
	Error(ctx, w, http.StatusUnauthorized, CodeInvalidToken, nil)
}

func Forbidden(ctx context.Context, w http.ResponseWriter, code string) {
	Error(ctx, w, http.StatusForbidden, code, nil)
}

func NotFound(ctx context.Context, w http.ResponseWriter, code string) {
	Error(ctx, w, http.StatusNotFound, code, nil)
}

func Conflict(ctx context.Context, w http.ResponseWriter, code string) {
	Error(ctx, w, http.StatusConflict, code, nil)
}

func InternalServerError(ctx context.Context, w http.ResponseWriter) {
	Error(ctx, w, http.StatusInternalServerError, CodeInternal, nil)
}
