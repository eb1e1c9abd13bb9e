package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cmlabs-hris/timecard-backend-go/internal/domain/attendance"
	"github.com/cmlabs-hris/timecard-backend-go/internal/domain/user"
	"github.com/cmlabs-hris/timecard-backend-go/internal/handler/http/response"
	"github.com/cmlabs-hris/timecard-backend-go/internal/pkg/i18n"
	"github.com/cmlabs-hris/timecard-backend-go/internal/pkg/jwt"
	"github.com/cmlabs-hris/timecard-backend-go/internal/pkg/sse"
	"github.com/cmlabs-hris/timecard-backend-go/internal/pkg/validator"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
)

const (
	maxRequestBody    = 1 << 20
	keepaliveInterval = 30 * time.Second
)

type AttendanceHandler interface {
	ClockIn(w http.ResponseWriter, r *http.Request)
	ClockOut(w http.ResponseWriter, r *http.Request)
	CancelClockOut(w http.ResponseWriter, r *http.Request)
	StartBreak(w http.ResponseWriter, r *http.Request)
	EndBreak(w http.ResponseWriter, r *http.Request)
	GetToday(w http.ResponseWriter, r *http.Request)
	GetHistory(w http.ResponseWriter, r *http.Request)
	GetMonthlySummary(w http.ResponseWriter, r *http.Request)
	GetStatus(w http.ResponseWriter, r *http.Request)
	MarkHalfDayLeave(w http.ResponseWriter, r *http.Request)

	// SSE
	GetEventsToken(w http.ResponseWriter, r *http.Request)
	Stream(w http.ResponseWriter, r *http.Request)
}

type SSETokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

type attendanceHandlerImpl struct {
	attendanceService attendance.AttendanceService
	jwtService        jwt.Service
	hub               *sse.Hub
}

func NewAttendanceHandler(attendanceService attendance.AttendanceService, jwtService jwt.Service, hub *sse.Hub) AttendanceHandler {
	return &attendanceHandlerImpl{
		attendanceService: attendanceService,
		jwtService:        jwtService,
		hub:               hub,
	}
}

// getEmployeeIDFromContext reads the employee the caller acts as from the verified token.
func getEmployeeIDFromContext(r *http.Request) (string, error) {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil {
		return "", user.ErrEmployeeIDRequired
	}
	employeeID, ok := claims["employee_id"].(string)
	if !ok || validator.IsEmpty(employeeID) {
		return "", user.ErrEmployeeIDRequired
	}
	return employeeID, nil
}

// decodeBody decodes an optional JSON body. An empty body leaves dst untouched.
func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// ClockIn implements AttendanceHandler.
func (h *attendanceHandlerImpl) ClockIn(w http.ResponseWriter, r *http.Request) {
	employeeID, err := getEmployeeIDFromContext(r)
	if err != nil {
		response.HandleError(w, r, err)
		return
	}

	var req attendance.ClockInRequest
	if err := decodeBody(r, &req); err != nil {
		slog.Debug("Failed to decode clock in request", "error", err)
		response.BadRequest(r.Context(), w, nil)
		return
	}
	req.EmployeeID = employeeID

	if err := req.Validate(); err != nil {
		response.HandleError(w, r, err)
		return
	}

	result, err := h.attendanceService.ClockIn(r.Context(), req)
	if err != nil {
		response.HandleError(w, r, err)
		return
	}

	response.Created(w, i18n.T(r.Context(), "CLOCKED_IN"), result)
}

// ClockOut implements AttendanceHandler.
func (h *attendanceHandlerImpl) ClockOut(w http.ResponseWriter, r *http.Request) {
	employeeID, err := getEmployeeIDFromContext(r)
	if err != nil {
		response.HandleError(w, r, err)
		return
	}

	var req attendance.ClockOutRequest
	if err := decodeBody(r, &req); err != nil {
		slog.Debug("Failed to decode clock out request", "error", err)
		response.BadRequest(r.Context(), w, nil)
		return
	}
	req.EmployeeID = employeeID

	if err := req.Validate(); err != nil {
		response.HandleError(w, r, err)
		return
	}

	result, err := h.attendanceService.ClockOut(r.Context(), req)
	if err != nil {
		response.HandleError(w, r, err)
		return
	}

	response.SuccessWithMessage(w, i18n.T(r.Context(), "CLOCKED_OUT", map[string]any{"WorkedTime": result.WorkedTime}), result)
}

// CancelClockOut implements AttendanceHandler.
func (h *attendanceHandlerImpl) CancelClockOut(w http.ResponseWriter, r *http.Request) {
	employeeID, err := getEmployeeIDFromContext(r)
	if err != nil {
		response.HandleError(w, r, err)
		return
	}

	req := attendance.CancelClockOutRequest{EmployeeID: employeeID}
	if err := req.Validate(); err != nil {
		response.HandleError(w, r, err)
		return
	}

	result, err := h.attendanceService.CancelClockOut(r.Context(), req)
	if err != nil {
		response.HandleError(w, r, err)
		return
	}

	response.SuccessWithMessage(w, i18n.T(r.Context(), "CLOCK_OUT_CANCELLED"), result)
}

// StartBreak implements AttendanceHandler.
func (h *attendanceHandlerImpl) StartBreak(w http.ResponseWriter, r *http.Request) {
	h.handleBreak(w, r, h.attendanceService.StartBreak, "BREAK_STARTED")
}

// EndBreak implements AttendanceHandler.
func (h *attendanceHandlerImpl) EndBreak(w http.ResponseWriter, r *http.Request) {
	h.handleBreak(w, r, h.attendanceService.EndBreak, "BREAK_ENDED")
}

type breakFunc func(ctx context.Context, req attendance.BreakRequest) (attendance.AttendanceResponse, error)

func (h *attendanceHandlerImpl) handleBreak(w http.ResponseWriter, r *http.Request, fn breakFunc, messageID string) {
	employeeID, err := getEmployeeIDFromContext(r)
	if err != nil {
		response.HandleError(w, r, err)
		return
	}

	var req attendance.BreakRequest
	if err := decodeBody(r, &req); err != nil {
		slog.Debug("Failed to decode break request", "error", err)
		response.BadRequest(r.Context(), w, nil)
		return
	}
	req.EmployeeID = employeeID

	if err := req.Validate(); err != nil {
		response.HandleError(w, r, err)
		return
	}

	result, err := fn(r.Context(), req)
	if err != nil {
		response.HandleError(w, r, err)
		return
	}

	response.SuccessWithMessage(w, i18n.T(r.Context(), messageID), result)
}

// GetToday implements AttendanceHandler.
func (h *attendanceHandlerImpl) GetToday(w http.ResponseWriter, r *http.Request) {
	employeeID, err := getEmployeeIDFromContext(r)
	if err != nil {
		response.HandleError(w, r, err)
		return
	}

	result, err := h.attendanceService.GetToday(r.Context(), employeeID)
	if err != nil {
		response.HandleError(w, r, err)
		return
	}

	if result == nil {
		response.SuccessWithMessage(w, i18n.T(r.Context(), "NO_ATTENDANCE_TODAY"), nil)
		return
	}
	response.Success(w, result)
}

// GetHistory implements AttendanceHandler.
func (h *attendanceHandlerImpl) GetHistory(w http.ResponseWriter, r *http.Request) {
	employeeID, err := getEmployeeIDFromContext(r)
	if err != nil {
		response.HandleError(w, r, err)
		return
	}

	filter := attendance.HistoryFilter{EmployeeID: employeeID}
	if filter.Year, filter.Month, err = parseYearMonth(r); err != nil {
		response.HandleError(w, r, err)
		return
	}

	result, err := h.attendanceService.GetHistory(r.Context(), filter)
	if err != nil {
		response.HandleError(w, r, err)
		return
	}

	response.Success(w, result)
}

// GetMonthlySummary implements AttendanceHandler.
func (h *attendanceHandlerImpl) GetMonthlySummary(w http.ResponseWriter, r *http.Request) {
	employeeID, err := getEmployeeIDFromContext(r)
	if err != nil {
		response.HandleError(w, r, err)
		return
	}

	year, month, err := parseYearMonth(r)
	if err != nil {
		response.HandleError(w, r, err)
		return
	}

	filter := attendance.SummaryFilter{EmployeeID: employeeID}
	if year != nil {
		filter.Year = *year
	}
	if month != nil {
		filter.Month = *month
	}

	result, err := h.attendanceService.GetMonthlySummary(r.Context(), filter)
	if err != nil {
		response.HandleError(w, r, err)
		return
	}

	response.Success(w, result)
}

// GetStatus implements AttendanceHandler.
func (h *attendanceHandlerImpl) GetStatus(w http.ResponseWriter, r *http.Request) {
	employeeID, err := getEmployeeIDFromContext(r)
	if err != nil {
		response.HandleError(w, r, err)
		return
	}

	result, err := h.attendanceService.GetStatus(r.Context(), employeeID)
	if err != nil {
		response.HandleError(w, r, err)
		return
	}

	response.Success(w, result)
}

// MarkHalfDayLeave implements AttendanceHandler. Managers only.
func (h *attendanceHandlerImpl) MarkHalfDayLeave(w http.ResponseWriter, r *http.Request) {
	req := attendance.HalfDayLeaveRequest{
		EmployeeID: chi.URLParam(r, "employeeID"),
		Date:       r.URL.Query().Get("date"),
	}

	if err := req.Validate(); err != nil {
		response.HandleError(w, r, err)
		return
	}

	result, err := h.attendanceService.MarkHalfDayLeave(r.Context(), req)
	if err != nil {
		response.HandleError(w, r, err)
		return
	}

	response.SuccessWithMessage(w, i18n.T(r.Context(), "HALF_DAY_LEAVE_RECORDED", map[string]any{"Date": result.Date}), result)
}

// GetEventsToken generates a short-lived token for SSE connections
func (h *attendanceHandlerImpl) GetEventsToken(w http.ResponseWriter, r *http.Request) {
	employeeID, err := getEmployeeIDFromContext(r)
	if err != nil {
		response.HandleError(w, r, err)
		return
	}

	token, expiresIn, err := h.jwtService.GenerateSSEToken(employeeID)
	if err != nil {
		response.HandleError(w, r, fmt.Errorf("failed to generate SSE token: %w", err))
		return
	}

	response.Success(w, SSETokenResponse{
		Token:     token,
		ExpiresIn: expiresIn,
	})
}

// Stream handles SSE connection for live attendance updates
func (h *attendanceHandlerImpl) Stream(w http.ResponseWriter, r *http.Request) {
	// EventSource cannot send headers, so the token comes in the query string
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		response.Unauthorized(r.Context(), w)
		return
	}

	employeeID, err := h.jwtService.ValidateSSEToken(tokenStr)
	if err != nil {
		slog.Debug("Rejected SSE token", "error", err)
		response.Unauthorized(r.Context(), w)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		response.InternalServerError(r.Context(), w)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	events, cleanup := h.hub.Subscribe(employeeID)
	defer func() {
		cleanup()
		slog.Info("SSE client disconnected", "employee_id", employeeID, "total_streams", h.hub.TotalSubscribers())
	}()
	slog.Info("SSE client connected",
		"employee_id", employeeID,
		"employee_streams", h.hub.SubscriberCount(employeeID),
		"total_streams", h.hub.TotalSubscribers(),
	)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"employee_id\":%q}\n\n", employeeID)
	flusher.Flush()

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(event.Data)
			if err != nil {
				slog.Error("Failed to encode SSE event", "event", event.Event, "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Event, data)
			flusher.Flush()

		case <-keepalive.C:
			fmt.Fprintf(w, "event: ping\ndata: {\"timestamp\":%d}\n\n", time.Now().Unix())
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func parseYearMonth(r *http.Request) (year *int, month *int, err error) {
	var errs validator.ValidationErrors

	year, err = validator.ParseOptionalInt("year", r.URL.Query().Get("year"))
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		errs = append(errs, verrs...)
	}
	month, err = validator.ParseOptionalInt("month", r.URL.Query().Get("month"))
	if errors.As(err, &verrs) {
		errs = append(errs, verrs...)
	}

	if len(errs) > 0 {
		return nil, nil, errs
	}
	return year, month, nil
}
