package attendance

import (
	"github.com/cmlabs-hris/timecard-backend-go/internal/pkg/validator"
)

// ========================================
// ATTENDANCE DTOs
// ========================================

const (
	maxBreakMinutes = 24 * 60
	maxNotesLength  = 500
)

type ClockInRequest struct {
	EmployeeID   string  `json:"-"`
	BreakMinutes *int    `json:"break_minutes,omitempty"`
	Notes        *string `json:"notes,omitempty"`
}

func (r *ClockInRequest) Validate() error {
	var errs validator.ValidationErrors

	if validator.IsEmpty(r.EmployeeID) {
		errs = append(errs, validator.ValidationError{
			Field:   "employee_id",
			Message: "employee_id is required",
		})
	}
	errs = validateBreakMinutes(errs, r.BreakMinutes)
	errs = validateNotes(errs, r.Notes)

	if len(errs) > 0 {
		return errs
	}

	return nil
}

type ClockOutRequest struct {
	EmployeeID   string  `json:"-"`
	BreakMinutes *int    `json:"break_minutes,omitempty"`
	Notes        *string `json:"notes,omitempty"`
}

func (r *ClockOutRequest) Validate() error {
	var errs validator.ValidationErrors

	if validator.IsEmpty(r.EmployeeID) {
		errs = append(errs, validator.ValidationError{
			Field:   "employee_id",
			Message: "employee_id is required",
		})
	}
	errs = validateBreakMinutes(errs, r.BreakMinutes)
	errs = validateNotes(errs, r.Notes)

	if len(errs) > 0 {
		return errs
	}

	return nil
}

type CancelClockOutRequest struct {
	EmployeeID string `json:"-"`
}

func (r *CancelClockOutRequest) Validate() error {
	if validator.IsEmpty(r.EmployeeID) {
		return validator.ValidationErrors{{
			Field:   "employee_id",
			Message: "employee_id is required",
		}}
	}
	return nil
}

type BreakRequest struct {
	EmployeeID string  `json:"-"`
	Notes      *string `json:"notes,omitempty"`
}

func (r *BreakRequest) Validate() error {
	var errs validator.ValidationErrors

	if validator.IsEmpty(r.EmployeeID) {
		errs = append(errs, validator.ValidationError{
			Field:   "employee_id",
			Message: "employee_id is required",
		})
	}
	errs = validateNotes(errs, r.Notes)

	if len(errs) > 0 {
		return errs
	}

	return nil
}

type HistoryFilter struct {
	EmployeeID string `json:"-"`
	Year       *int   `json:"year,omitempty"`
	Month      *int   `json:"month,omitempty"`
}

func (f *HistoryFilter) Validate() error {
	var errs validator.ValidationErrors

	if f.Year != nil && (*f.Year < 1970 || *f.Year > 9999) {
		errs = append(errs, validator.ValidationError{
			Field:   "year",
			Message: "year must be between 1970 and 9999",
		})
	}

	if f.Month != nil {
		if *f.Month < 1 || *f.Month > 12 {
			errs = append(errs, validator.ValidationError{
				Field:   "month",
				Message: "month must be between 1 and 12",
			})
		} else if f.Year == nil {
			errs = append(errs, validator.ValidationError{
				Field:   "month",
				Message: "month requires year",
			})
		}
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}

type SummaryFilter struct {
	EmployeeID string `json:"-"`
	Year       int    `json:"year"`
	Month      int    `json:"month"`
}

func (f *SummaryFilter) Validate() error {
	var errs validator.ValidationErrors

	if f.Year < 1970 || f.Year > 9999 {
		errs = append(errs, validator.ValidationError{
			Field:   "year",
			Message: "year is required and must be between 1970 and 9999",
		})
	}
	if f.Month < 1 || f.Month > 12 {
		errs = append(errs, validator.ValidationError{
			Field:   "month",
			Message: "month is required and must be between 1 and 12",
		})
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}

// HalfDayLeaveRequest is issued by a manager once a half-day leave is approved.
type HalfDayLeaveRequest struct {
	EmployeeID string `json:"-"`
	Date       string `json:"date"` // YYYY-MM-DD
}

func (r *HalfDayLeaveRequest) Validate() error {
	var errs validator.ValidationErrors

	if validator.IsEmpty(r.EmployeeID) {
		errs = append(errs, validator.ValidationError{
			Field:   "employee_id",
			Message: "employee_id is required",
		})
	}
	if _, valid := validator.IsValidDate(r.Date); !valid {
		errs = append(errs, validator.ValidationError{
			Field:   "date",
			Message: "date must be in YYYY-MM-DD format",
		})
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}

func validateBreakMinutes(errs validator.ValidationErrors, minutes *int) validator.ValidationErrors {
	if minutes != nil && (*minutes < 0 || *minutes > maxBreakMinutes) {
		errs = append(errs, validator.ValidationError{
			Field:   "break_minutes",
			Message: "break_minutes must be between 0 and 1440",
		})
	}
	return errs
}

func validateNotes(errs validator.ValidationErrors, notes *string) validator.ValidationErrors {
	if notes != nil && len(*notes) > maxNotesLength {
		errs = append(errs, validator.ValidationError{
			Field:   "notes",
			Message: "notes must not exceed 500 characters",
		})
	}
	return errs
}

// ========================================
// RESPONSES
// ========================================

type BreakIntervalResponse struct {
	ID      string  `json:"id"`
	Start   string  `json:"start"`
	End     *string `json:"end"`
	Minutes int     `json:"minutes"`
	Notes   *string `json:"notes,omitempty"`
}

type AttendanceResponse struct {
	ID                   string                  `json:"id"`
	EmployeeID           string                  `json:"employee_id"`
	Date                 string                  `json:"date"`
	ClockIn              *string                 `json:"clock_in"`
	ClockOut             *string                 `json:"clock_out"`
	Breaks               []BreakIntervalResponse `json:"breaks"`
	TotalBreakMinutes    int                     `json:"total_break_minutes"`
	DeclaredBreakMinutes int                     `json:"declared_break_minutes"`
	ClockOutBreakMinutes *int                    `json:"clock_out_break_minutes,omitempty"`
	WorkedMinutes        int                     `json:"worked_minutes"`
	WorkedTime           string                  `json:"worked_time"` // H:MM
	OvertimeMinutes      int                     `json:"overtime_minutes"`
	Status               string                  `json:"status"`
	State                string                  `json:"state"`
	HalfDayLeave         bool                    `json:"half_day_leave"`
	IsClockedIn          bool                    `json:"is_clocked_in"`
	IsClockedOut         bool                    `json:"is_clocked_out"`
	IsWorking            bool                    `json:"is_working"`
	IsOnBreak            bool                    `json:"is_on_break"`
	Notes                *string                 `json:"notes,omitempty"`
	ClockOutNotes        *string                 `json:"clock_out_notes,omitempty"`
	CreatedAt            string                  `json:"created_at"`
	UpdatedAt            string                  `json:"updated_at"`
}

type MonthlySummaryResponse struct {
	Year                 int                  `json:"year"`
	Month                int                  `json:"month"`
	TotalWorkDays        int                  `json:"total_work_days"`
	TotalWorkedMinutes   int                  `json:"total_worked_minutes"`
	TotalWorkHours       float64              `json:"total_work_hours"`
	TotalOvertimeMinutes int                  `json:"total_overtime_minutes"`
	TotalOvertimeHours   float64              `json:"total_overtime_hours"`
	AverageDailyHours    float64              `json:"average_daily_hours"`
	StatusCounts         map[string]int       `json:"status_counts"`
	Records              []AttendanceResponse `json:"records"`
}

// ========================================
// ATTENDANCE STATUS DTOs
// ========================================

type AttendanceStatusResponse struct {
	State             string              `json:"state"`
	HasCheckedIn      bool                `json:"has_checked_in"`
	CanClockIn        bool                `json:"can_clock_in"`
	CanClockOut       bool                `json:"can_clock_out"`
	CanStartBreak     bool                `json:"can_start_break"`
	CanEndBreak       bool                `json:"can_end_break"`
	CanCancelClockOut bool                `json:"can_cancel_clock_out"`
	TodayAttendance   *AttendanceResponse `json:"today_attendance,omitempty"`
	ScheduleStart     string              `json:"schedule_start"`
	ScheduleEnd       string              `json:"schedule_end"`
}
