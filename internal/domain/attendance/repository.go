package attendance

import (
	"context"
	"time"
)

// RecordFilter narrows an employee's history. Month without Year matches that month in any year.
type RecordFilter struct {
	Year  *int
	Month *int
}

// AttendanceRepository defines data access methods for attendance records.
// Writes are guarded by the (employee_id, date) unique key and the record version.
type AttendanceRepository interface {
	// Create inserts a new record. Returns ErrRecordExists if one exists for the employee and date.
	Create(ctx context.Context, attendance Attendance) (Attendance, error)

	// GetByEmployeeAndDate returns nil, nil when the employee has no record on date.
	GetByEmployeeAndDate(ctx context.Context, employeeID string, date time.Time) (*Attendance, error)

	// Update writes the record if the stored version still equals attendance.Version and returns
	// it with the incremented version. Returns ErrVersionConflict otherwise.
	Update(ctx context.Context, attendance Attendance) (Attendance, error)

	// ListByEmployee returns matching records ordered by date descending.
	ListByEmployee(ctx context.Context, employeeID string, filter RecordFilter) ([]Attendance, error)

	// ListEmployeesSince returns the distinct employees who clocked in on or after since.
	// Absence and leave markers do not count.
	ListEmployeesSince(ctx context.Context, since time.Time) ([]string, error)

	// ListOpenBefore returns records dated before date that were clocked in but never
	// clocked out, oldest first.
	ListOpenBefore(ctx context.Context, date time.Time) ([]Attendance, error)

	// CreateAbsences inserts records, skipping any (employee, date) that already exists.
	// Returns the number inserted.
	CreateAbsences(ctx context.Context, records []Attendance) (int, error)
}
