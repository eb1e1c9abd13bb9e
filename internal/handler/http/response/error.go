package response

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cmlabs-hris/timecard-backend-go/internal/domain/attendance"
	"github.com/cmlabs-hris/timecard-backend-go/internal/domain/auth"
	"github.com/cmlabs-hris/timecard-backend-go/internal/domain/user"
	"github.com/cmlabs-hris/timecard-backend-go/internal/pkg/validator"
)

// Error codes. Each one is also the i18n message ID of its text.
const (
	CodeAlreadyClockedIn        = "ALREADY_CLOCKED_IN"
	CodeNotClockedIn            = "NOT_CLOCKED_IN"
	CodeAlreadyClockedOut       = "ALREADY_CLOCKED_OUT"
	CodeNotClockedOut           = "NOT_CLOCKED_OUT"
	CodeAlreadyOnBreak          = "ALREADY_ON_BREAK"
	CodeNoBreakInProgress       = "NO_BREAK_IN_PROGRESS"
	CodeBreakInProgress         = "BREAK_IN_PROGRESS"
	CodeCancelWindowClosed      = "CANCEL_WINDOW_CLOSED"
	CodeAttendanceNotFound      = "ATTENDANCE_NOT_FOUND"
	CodeConcurrentUpdate        = "CONCURRENT_UPDATE"
	CodeValidation              = "VALIDATION_ERROR"
	CodeBadRequest              = "BAD_REQUEST"
	CodeInvalidToken            = "INVALID_TOKEN"
	CodeEmployeeIDRequired      = "EMPLOYEE_ID_REQUIRED"
	CodeManagerAccessRequired   = "MANAGER_ACCESS_REQUIRED"
	CodeInsufficientPermissions = "INSUFFICIENT_PERMISSIONS"
	CodeInternal                = "INTERNAL_ERROR"
)

// HandleError maps domain errors to HTTP responses
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	// Check if it's a validation error
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		ValidationError(ctx, w, validationErrs.ToMap())
		return
	}

	switch {
	// Attendance state machine
	case errors.Is(err, attendance.ErrAlreadyClockedIn):
		Conflict(ctx, w, CodeAlreadyClockedIn)
	case errors.Is(err, attendance.ErrNotClockedIn):
		Conflict(ctx, w, CodeNotClockedIn)
	case errors.Is(err, attendance.ErrAlreadyClockedOut):
		Conflict(ctx, w, CodeAlreadyClockedOut)
	case errors.Is(err, attendance.ErrNotClockedOut):
		Conflict(ctx, w, CodeNotClockedOut)
	case errors.Is(err, attendance.ErrAlreadyOnBreak):
		Conflict(ctx, w, CodeAlreadyOnBreak)
	case errors.Is(err, attendance.ErrNoBreakInProgress):
		Conflict(ctx, w, CodeNoBreakInProgress)
	case errors.Is(err, attendance.ErrBreakInProgress):
		Conflict(ctx, w, CodeBreakInProgress)
	case errors.Is(err, attendance.ErrCancelWindowClosed):
		Conflict(ctx, w, CodeCancelWindowClosed)
	case errors.Is(err, attendance.ErrVersionConflict), errors.Is(err, attendance.ErrRecordExists):
		Conflict(ctx, w, CodeConcurrentUpdate)
	case errors.Is(err, attendance.ErrAttendanceNotFound):
		NotFound(ctx, w, CodeAttendanceNotFound)

	// Identity
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenExpired):
		Unauthorized(ctx, w)
	case errors.Is(err, user.ErrEmployeeIDRequired):
		Forbidden(ctx, w, CodeEmployeeIDRequired)
	case errors.Is(err, user.ErrManagerAccessRequired):
		Forbidden(ctx, w, CodeManagerAccessRequired)
	case errors.Is(err, user.ErrInsufficientPermissions), errors.Is(err, user.ErrInvalidRole):
		Forbidden(ctx, w, CodeInsufficientPermissions)

	// Default
	default:
		slog.ErrorContext(ctx, "Unhandled error", "error", err, "path", r.URL.Path)
		InternalServerError(ctx, w)
	}
}
