package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cmlabs-hris/timecard-backend-go/internal/domain/attendance"
	"github.com/cmlabs-hris/timecard-backend-go/internal/pkg/sse"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// maxWriteAttempts bounds the re-read/re-validate loop when a concurrent writer wins.
const maxWriteAttempts = 3

// EventPublisher receives a notification after each committed change.
type EventPublisher interface {
	Publish(employeeID string, event sse.Event)
}

type AttendanceServiceImpl struct {
	attendance.AttendanceRepository
	policy attendance.Policy
	events EventPublisher
	now    func() time.Time
}

// ClockIn implements attendance.AttendanceService.
func (s *AttendanceServiceImpl) ClockIn(ctx context.Context, req attendance.ClockInRequest) (attendance.AttendanceResponse, error) {
	if err := req.Validate(); err != nil {
		return attendance.AttendanceResponse{}, err
	}

	declared := s.policy.DefaultBreakMinutes
	if req.BreakMinutes != nil {
		declared = *req.BreakMinutes
	}

	for attempt := 1; ; attempt++ {
		now := s.now()
		today := s.policy.Today(now)

		existing, err := s.AttendanceRepository.GetByEmployeeAndDate(ctx, req.EmployeeID, today)
		if err != nil {
			return attendance.AttendanceResponse{}, fmt.Errorf("failed to get today's attendance: %w", err)
		}

		var saved attendance.Attendance
		if existing != nil {
			// a leave marker may exist before the employee arrives
			if err := existing.ClockInAt(now, declared, req.Notes); err != nil {
				return attendance.AttendanceResponse{}, err
			}
			existing.Status = s.policy.Classify(*existing, now)
			saved, err = s.AttendanceRepository.Update(ctx, *existing)
		} else {
			id, idErr := uuid.NewV7()
			if idErr != nil {
				return attendance.AttendanceResponse{}, fmt.Errorf("failed to generate attendance id: %w", idErr)
			}
			record := attendance.NewAttendance(id.String(), req.EmployeeID, today, now, declared, req.Notes)
			record.Status = s.policy.Classify(record, now)
			saved, err = s.AttendanceRepository.Create(ctx, record)
		}

		if errors.Is(err, attendance.ErrRecordExists) || errors.Is(err, attendance.ErrVersionConflict) {
			if attempt < maxWriteAttempts {
				slog.Debug("Clock-in lost a concurrent write, re-reading",
					"employee_id", req.EmployeeID, "attempt", attempt)
				continue
			}
			if errors.Is(err, attendance.ErrRecordExists) {
				return attendance.AttendanceResponse{}, attendance.ErrAlreadyClockedIn
			}
			return attendance.AttendanceResponse{}, err
		}
		if err != nil {
			return attendance.AttendanceResponse{}, fmt.Errorf("failed to save attendance: %w", err)
		}

		slog.Info("Employee clocked in", "employee_id", saved.EmployeeID, "date", saved.Date.Format("2006-01-02"), "status", saved.Status)
		return s.publish(saved, now), nil
	}
}

// ClockOut implements attendance.AttendanceService.
func (s *AttendanceServiceImpl) ClockOut(ctx context.Context, req attendance.ClockOutRequest) (attendance.AttendanceResponse, error) {
	if err := req.Validate(); err != nil {
		return attendance.AttendanceResponse{}, err
	}

	saved, now, err := s.mutateToday(ctx, req.EmployeeID, missingErr(attendance.ErrNotClockedIn),
		func(a *attendance.Attendance, now time.Time) error {
			return a.ClockOutAt(now, req.BreakMinutes, req.Notes)
		})
	if err != nil {
		return attendance.AttendanceResponse{}, err
	}

	slog.Info("Employee clocked out", "employee_id", saved.EmployeeID, "worked_minutes", saved.WorkedMinutes(), "status", saved.Status)
	return s.publish(saved, now), nil
}

// CancelClockOut implements attendance.AttendanceService.
func (s *AttendanceServiceImpl) CancelClockOut(ctx context.Context, req attendance.CancelClockOutRequest) (attendance.AttendanceResponse, error) {
	if err := req.Validate(); err != nil {
		return attendance.AttendanceResponse{}, err
	}

	// after midnight the record being corrected is yesterday's, which is no longer editable
	onMissing := func(ctx context.Context, now time.Time) error {
		yesterday := s.policy.Today(now).AddDate(0, 0, -1)
		previous, err := s.AttendanceRepository.GetByEmployeeAndDate(ctx, req.EmployeeID, yesterday)
		if err != nil {
			return fmt.Errorf("failed to get previous attendance: %w", err)
		}
		if previous != nil && previous.IsClockedOut() {
			return attendance.ErrCancelWindowClosed
		}
		return attendance.ErrNotClockedOut
	}

	saved, now, err := s.mutateToday(ctx, req.EmployeeID, onMissing,
		func(a *attendance.Attendance, now time.Time) error {
			return a.CancelClockOut(now, s.policy.Today(now), s.policy.CancelWindow)
		})
	if err != nil {
		return attendance.AttendanceResponse{}, err
	}

	slog.Info("Employee clock-out cancelled", "employee_id", saved.EmployeeID)
	return s.publish(saved, now), nil
}

// StartBreak implements attendance.AttendanceService.
func (s *AttendanceServiceImpl) StartBreak(ctx context.Context, req attendance.BreakRequest) (attendance.AttendanceResponse, error) {
	if err := req.Validate(); err != nil {
		return attendance.AttendanceResponse{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return attendance.AttendanceResponse{}, fmt.Errorf("failed to generate break id: %w", err)
	}

	saved, now, err := s.mutateToday(ctx, req.EmployeeID, missingErr(attendance.ErrNotClockedIn),
		func(a *attendance.Attendance, now time.Time) error {
			return a.StartBreakAt(now, id.String(), req.Notes)
		})
	if err != nil {
		return attendance.AttendanceResponse{}, err
	}

	return s.publish(saved, now), nil
}

// EndBreak implements attendance.AttendanceService.
func (s *AttendanceServiceImpl) EndBreak(ctx context.Context, req attendance.BreakRequest) (attendance.AttendanceResponse, error) {
	if err := req.Validate(); err != nil {
		return attendance.AttendanceResponse{}, err
	}

	saved, now, err := s.mutateToday(ctx, req.EmployeeID, missingErr(attendance.ErrNoBreakInProgress),
		func(a *attendance.Attendance, now time.Time) error {
			return a.EndBreakAt(now, req.Notes)
		})
	if err != nil {
		return attendance.AttendanceResponse{}, err
	}

	return s.publish(saved, now), nil
}

// GetToday implements attendance.AttendanceService. A leave marker without a clock-in
// is not an attendance yet, so it reads as none.
func (s *AttendanceServiceImpl) GetToday(ctx context.Context, employeeID string) (*attendance.AttendanceResponse, error) {
	now := s.now()
	record, err := s.AttendanceRepository.GetByEmployeeAndDate(ctx, employeeID, s.policy.Today(now))
	if err != nil {
		return nil, fmt.Errorf("failed to get today's attendance: %w", err)
	}
	if record == nil || record.ClockIn == nil {
		return nil, nil
	}

	resp := s.toResponse(*record, now)
	return &resp, nil
}

// GetHistory implements attendance.AttendanceService.
func (s *AttendanceServiceImpl) GetHistory(ctx context.Context, filter attendance.HistoryFilter) ([]attendance.AttendanceResponse, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	records, err := s.AttendanceRepository.ListByEmployee(ctx, filter.EmployeeID, attendance.RecordFilter{
		Year:  filter.Year,
		Month: filter.Month,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance history: %w", err)
	}

	now := s.now()
	responses := make([]attendance.AttendanceResponse, 0, len(records))
	for _, record := range records {
		responses = append(responses, s.toResponse(record, now))
	}
	return responses, nil
}

// GetMonthlySummary implements attendance.AttendanceService.
func (s *AttendanceServiceImpl) GetMonthlySummary(ctx context.Context, filter attendance.SummaryFilter) (attendance.MonthlySummaryResponse, error) {
	if err := filter.Validate(); err != nil {
		return attendance.MonthlySummaryResponse{}, err
	}

	records, err := s.AttendanceRepository.ListByEmployee(ctx, filter.EmployeeID, attendance.RecordFilter{
		Year:  &filter.Year,
		Month: &filter.Month,
	})
	if err != nil {
		return attendance.MonthlySummaryResponse{}, fmt.Errorf("failed to list monthly attendance: %w", err)
	}

	now := s.now()
	summary := attendance.MonthlySummaryResponse{
		Year:         filter.Year,
		Month:        filter.Month,
		StatusCounts: make(map[string]int, len(attendance.StatusValues)),
		Records:      make([]attendance.AttendanceResponse, 0, len(records)),
	}
	for _, status := range attendance.StatusValues {
		summary.StatusCounts[status] = 0
	}

	for _, record := range records {
		resp := s.toResponse(record, now)
		summary.Records = append(summary.Records, resp)
		summary.StatusCounts[resp.Status]++

		if record.ClockIn == nil {
			continue
		}
		summary.TotalWorkDays++
		summary.TotalWorkedMinutes += resp.WorkedMinutes
		summary.TotalOvertimeMinutes += resp.OvertimeMinutes
	}

	summary.TotalWorkHours = minutesToHours(summary.TotalWorkedMinutes)
	summary.TotalOvertimeHours = minutesToHours(summary.TotalOvertimeMinutes)
	if summary.TotalWorkDays > 0 {
		summary.AverageDailyHours = decimal.NewFromInt(int64(summary.TotalWorkedMinutes)).
			Div(decimal.NewFromInt(60)).
			Div(decimal.NewFromInt(int64(summary.TotalWorkDays))).
			Round(2).
			InexactFloat64()
	}

	return summary, nil
}

// GetStatus implements attendance.AttendanceService.
func (s *AttendanceServiceImpl) GetStatus(ctx context.Context, employeeID string) (attendance.AttendanceStatusResponse, error) {
	now := s.now()
	today := s.policy.Today(now)

	record, err := s.AttendanceRepository.GetByEmployeeAndDate(ctx, employeeID, today)
	if err != nil {
		return attendance.AttendanceStatusResponse{}, fmt.Errorf("failed to get today's attendance: %w", err)
	}

	status := attendance.AttendanceStatusResponse{
		State:         string(attendance.StateNotClockedIn),
		CanClockIn:    true,
		ScheduleStart: s.policy.ScheduledStart(today).UTC().Format(time.RFC3339),
		ScheduleEnd:   s.policy.ScheduledEnd(today).UTC().Format(time.RFC3339),
	}
	if record == nil {
		return status, nil
	}

	state := record.State()
	status.State = string(state)
	status.HasCheckedIn = record.IsClockedIn()
	status.CanClockIn = !record.IsClockedIn()
	status.CanClockOut = state == attendance.StateWorking
	status.CanStartBreak = state == attendance.StateWorking
	status.CanEndBreak = state == attendance.StateOnBreak

	reopened := *record
	status.CanCancelClockOut = reopened.CancelClockOut(now, today, s.policy.CancelWindow) == nil

	resp := s.toResponse(*record, now)
	status.TodayAttendance = &resp
	return status, nil
}

// MarkHalfDayLeave implements attendance.AttendanceService.
func (s *AttendanceServiceImpl) MarkHalfDayLeave(ctx context.Context, req attendance.HalfDayLeaveRequest) (attendance.AttendanceResponse, error) {
	if err := req.Validate(); err != nil {
		return attendance.AttendanceResponse{}, err
	}
	date, _ := time.Parse("2006-01-02", req.Date)

	for attempt := 1; ; attempt++ {
		now := s.now()

		existing, err := s.AttendanceRepository.GetByEmployeeAndDate(ctx, req.EmployeeID, date)
		if err != nil {
			return attendance.AttendanceResponse{}, fmt.Errorf("failed to get attendance: %w", err)
		}

		var saved attendance.Attendance
		if existing != nil {
			existing.HalfDayLeave = true
			existing.Status = s.policy.Classify(*existing, now)
			saved, err = s.AttendanceRepository.Update(ctx, *existing)
		} else {
			id, idErr := uuid.NewV7()
			if idErr != nil {
				return attendance.AttendanceResponse{}, fmt.Errorf("failed to generate attendance id: %w", idErr)
			}
			record := attendance.Attendance{
				ID:           id.String(),
				EmployeeID:   req.EmployeeID,
				Date:         date,
				Breaks:       []attendance.BreakInterval{},
				HalfDayLeave: true,
			}
			record.Status = s.policy.Classify(record, now)
			saved, err = s.AttendanceRepository.Create(ctx, record)
		}

		if (errors.Is(err, attendance.ErrRecordExists) || errors.Is(err, attendance.ErrVersionConflict)) && attempt < maxWriteAttempts {
			continue
		}
		if err != nil {
			// a create that keeps colliding is the same lost race as a stale update
			if errors.Is(err, attendance.ErrRecordExists) || errors.Is(err, attendance.ErrVersionConflict) {
				return attendance.AttendanceResponse{}, attendance.ErrVersionConflict
			}
			return attendance.AttendanceResponse{}, fmt.Errorf("failed to save half-day leave: %w", err)
		}

		slog.Info("Half-day leave recorded", "employee_id", saved.EmployeeID, "date", req.Date)
		return s.publish(saved, now), nil
	}
}

// mutateToday applies fn to the employee's record for today and writes it back. A lost
// version race re-reads the record and re-validates the transition against the fresh state.
func (s *AttendanceServiceImpl) mutateToday(
	ctx context.Context,
	employeeID string,
	onMissing func(ctx context.Context, now time.Time) error,
	fn func(a *attendance.Attendance, now time.Time) error,
) (attendance.Attendance, time.Time, error) {
	for attempt := 1; ; attempt++ {
		now := s.now()

		record, err := s.AttendanceRepository.GetByEmployeeAndDate(ctx, employeeID, s.policy.Today(now))
		if err != nil {
			return attendance.Attendance{}, now, fmt.Errorf("failed to get today's attendance: %w", err)
		}
		if record == nil {
			return attendance.Attendance{}, now, onMissing(ctx, now)
		}

		if err := fn(record, now); err != nil {
			return attendance.Attendance{}, now, err
		}
		record.Status = s.policy.Classify(*record, now)

		saved, err := s.AttendanceRepository.Update(ctx, *record)
		if errors.Is(err, attendance.ErrVersionConflict) {
			if attempt < maxWriteAttempts {
				slog.Debug("Attendance update lost a concurrent write, re-reading",
					"employee_id", employeeID, "attempt", attempt)
				continue
			}
			return attendance.Attendance{}, now, err
		}
		if err != nil {
			return attendance.Attendance{}, now, fmt.Errorf("failed to update attendance: %w", err)
		}
		return saved, now, nil
	}
}

func missingErr(err error) func(context.Context, time.Time) error {
	return func(context.Context, time.Time) error { return err }
}

func (s *AttendanceServiceImpl) publish(a attendance.Attendance, now time.Time) attendance.AttendanceResponse {
	resp := s.toResponse(a, now)
	if s.events != nil {
		s.events.Publish(a.EmployeeID, sse.Event{Event: sse.EventAttendanceUpdated, Data: resp})
	}
	return resp
}

func (s *AttendanceServiceImpl) toResponse(a attendance.Attendance, now time.Time) attendance.AttendanceResponse {
	breaks := make([]attendance.BreakIntervalResponse, 0, len(a.Breaks))
	for _, b := range a.Breaks {
		breaks = append(breaks, attendance.BreakIntervalResponse{
			ID:      b.ID,
			Start:   b.Start.UTC().Format(time.RFC3339),
			End:     formatTimePtr(b.End),
			Minutes: b.Minutes(),
			Notes:   b.Notes,
		})
	}

	worked := a.WorkedMinutes()
	state := a.State()

	return attendance.AttendanceResponse{
		ID:                   a.ID,
		EmployeeID:           a.EmployeeID,
		Date:                 a.Date.Format("2006-01-02"),
		ClockIn:              formatTimePtr(a.ClockIn),
		ClockOut:             formatTimePtr(a.ClockOut),
		Breaks:               breaks,
		TotalBreakMinutes:    a.TotalBreakMinutes(),
		DeclaredBreakMinutes: a.DeclaredBreakMinutes,
		ClockOutBreakMinutes: a.ClockOutBreakMinutes,
		WorkedMinutes:        worked,
		WorkedTime:           attendance.FormatMinutes(worked),
		OvertimeMinutes:      a.OvertimeMinutes(s.policy.RegularWorkMinutes),
		Status:               string(s.policy.Classify(a, now)),
		State:                string(state),
		HalfDayLeave:         a.HalfDayLeave,
		IsClockedIn:          a.IsClockedIn(),
		IsClockedOut:         a.IsClockedOut(),
		IsWorking:            a.IsWorking(),
		IsOnBreak:            state == attendance.StateOnBreak,
		Notes:                a.Notes,
		ClockOutNotes:        a.ClockOutNotes,
		CreatedAt:            a.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:            a.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// formatTimePtr renders an optional instant as RFC3339 UTC.
func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := t.UTC().Format(time.RFC3339)
	return &formatted
}

func minutesToHours(minutes int) float64 {
	return decimal.NewFromInt(int64(minutes)).Div(decimal.NewFromInt(60)).Round(2).InexactFloat64()
}

// NewAttendanceService wires the ledger. A nil now uses the wall clock; a nil events publisher
// disables change notifications.
func NewAttendanceService(
	attendanceRepo attendance.AttendanceRepository,
	policy attendance.Policy,
	events EventPublisher,
	now func() time.Time,
) attendance.AttendanceService {
	if now == nil {
		now = time.Now
	}
	return &AttendanceServiceImpl{
		AttendanceRepository: attendanceRepo,
		policy:               policy,
		events:               events,
		now:                  now,
	}
}
