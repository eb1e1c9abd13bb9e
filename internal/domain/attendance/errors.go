package attendance

import "errors"

// Attendance domain errors
var (
	// State machine violations, returned to the caller as user-correctable conditions
	ErrAlreadyClockedIn   = errors.New("you have already clocked in today")
	ErrNotClockedIn       = errors.New("you have not clocked in yet")
	ErrAlreadyClockedOut  = errors.New("you have already clocked out")
	ErrNotClockedOut      = errors.New("you have not clocked out yet")
	ErrAlreadyOnBreak     = errors.New("a break is already in progress")
	ErrNoBreakInProgress  = errors.New("no break is in progress")
	ErrBreakInProgress    = errors.New("end the current break before clocking out")
	ErrCancelWindowClosed = errors.New("clock-out can no longer be cancelled")

	// Storage errors
	ErrAttendanceNotFound = errors.New("attendance record not found")
	ErrRecordExists       = errors.New("attendance record already exists for this employee and date")
	ErrVersionConflict    = errors.New("attendance record was modified concurrently")
)
