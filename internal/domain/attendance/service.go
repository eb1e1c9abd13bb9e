package attendance

import (
	"context"
)

// AttendanceService defines the ledger operations. Every call names the employee explicitly.
type AttendanceService interface {
	// ClockIn opens today's record
	ClockIn(ctx context.Context, req ClockInRequest) (AttendanceResponse, error)

	// ClockOut closes today's record; rejected while a break is open
	ClockOut(ctx context.Context, req ClockOutRequest) (AttendanceResponse, error)

	// CancelClockOut reopens today's record after a mistaken clock-out
	CancelClockOut(ctx context.Context, req CancelClockOutRequest) (AttendanceResponse, error)

	StartBreak(ctx context.Context, req BreakRequest) (AttendanceResponse, error)
	EndBreak(ctx context.Context, req BreakRequest) (AttendanceResponse, error)

	// GetToday returns nil when the employee has no record today
	GetToday(ctx context.Context, employeeID string) (*AttendanceResponse, error)

	// GetHistory returns records newest first
	GetHistory(ctx context.Context, filter HistoryFilter) ([]AttendanceResponse, error)

	GetMonthlySummary(ctx context.Context, filter SummaryFilter) (MonthlySummaryResponse, error)

	// GetStatus reports the current state and which transitions are allowed
	GetStatus(ctx context.Context, employeeID string) (AttendanceStatusResponse, error)

	// MarkHalfDayLeave records an approved half-day leave on the employee's date
	MarkHalfDayLeave(ctx context.Context, req HalfDayLeaveRequest) (AttendanceResponse, error)
}
