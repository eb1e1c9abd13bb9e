package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cmlabs-hris/timecard-backend-go/internal/domain/attendance"
	"github.com/google/uuid"
)

// knownEmployeeWindow is how far back a clock-in makes an employee count as active.
const knownEmployeeWindow = 30 * 24 * time.Hour

type AttendanceJobs struct {
	attendanceRepo attendance.AttendanceRepository
	policy         attendance.Policy
	interval       time.Duration
	now            func() time.Time
}

func NewAttendanceJobs(
	attendanceRepo attendance.AttendanceRepository,
	policy attendance.Policy,
	interval time.Duration,
	now func() time.Time,
) *AttendanceJobs {
	if now == nil {
		now = time.Now
	}
	return &AttendanceJobs{
		attendanceRepo: attendanceRepo,
		policy:         policy,
		interval:       interval,
		now:            now,
	}
}

func (j *AttendanceJobs) RegisterJobs(scheduler *Scheduler) {
	scheduler.AddJob("close_stale_attendances", j.interval, j.CloseStaleAttendances)
	scheduler.AddJob("mark_absent_employees", j.interval, j.MarkAbsentEmployees)
}

// CloseStaleAttendances clocks out every record from a previous day that was never closed,
// at that day's scheduled end. An open break is ended first.
func (j *AttendanceJobs) CloseStaleAttendances(ctx context.Context) error {
	now := j.now()
	today := j.policy.Today(now)

	stale, err := j.attendanceRepo.ListOpenBefore(ctx, today)
	if err != nil {
		return fmt.Errorf("failed to get stale sessions: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}

	slog.Info("Cron: Closing stale attendances", "count", len(stale))

	closed := 0
	for _, att := range stale {
		if err := att.AutoCloseAt(j.policy.ScheduledEnd(att.Date)); err != nil {
			slog.Error("Cron: Failed to close attendance", "attendance_id", att.ID, "error", err)
			continue
		}
		att.Status = j.policy.Classify(att, now)

		if _, err := j.attendanceRepo.Update(ctx, att); err != nil {
			// the employee or another run got there first; the next run sees the fresh record
			if errors.Is(err, attendance.ErrVersionConflict) {
				slog.Warn("Cron: Attendance changed while closing, skipped", "attendance_id", att.ID)
				continue
			}
			slog.Error("Cron: Failed to close attendance", "attendance_id", att.ID, "error", err)
			continue
		}

		closed++
		slog.Info("Cron: Auto clock-out",
			"attendance_id", att.ID,
			"employee_id", att.EmployeeID,
			"date", att.Date.Format("2006-01-02"),
			"clock_out", att.ClockOut.Format(time.RFC3339),
		)
	}

	slog.Info("Cron: Closed stale attendances", "closed", closed, "found", len(stale))
	return nil
}

// MarkAbsentEmployees writes an absent record for yesterday for every employee who clocked in
// within knownEmployeeWindow and has no record on that date. Running it again for the same day
// inserts nothing.
func (j *AttendanceJobs) MarkAbsentEmployees(ctx context.Context) error {
	yesterday := j.policy.Today(j.now()).AddDate(0, 0, -1)
	if !j.policy.IsWorkday(yesterday) {
		return nil
	}

	slog.Info("Cron: Starting mark absent employees job", "date", yesterday.Format("2006-01-02"))

	employeeIDs, err := j.attendanceRepo.ListEmployeesSince(ctx, yesterday.Add(-knownEmployeeWindow))
	if err != nil {
		return fmt.Errorf("failed to list employees: %w", err)
	}
	if len(employeeIDs) == 0 {
		slog.Info("Cron: No employees to check")
		return nil
	}

	absences := make([]attendance.Attendance, 0, len(employeeIDs))
	for _, employeeID := range employeeIDs {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate attendance id: %w", err)
		}
		absences = append(absences, attendance.Attendance{
			ID:         id.String(),
			EmployeeID: employeeID,
			Date:       yesterday,
			Breaks:     []attendance.BreakInterval{},
			Status:     attendance.StatusAbsent,
		})
	}

	inserted, err := j.attendanceRepo.CreateAbsences(ctx, absences)
	if err != nil {
		return fmt.Errorf("failed to bulk create absences: %w", err)
	}

	slog.Info("Cron: Marked absent employees", "count", inserted, "checked", len(employeeIDs))
	return nil
}
