package attendance

import "time"

// NewAttendance opens the record for date with clockIn = now.
func NewAttendance(id, employeeID string, date, now time.Time, declaredBreakMinutes int, notes *string) Attendance {
	clockIn := now.UTC()
	return Attendance{
		ID:                   id,
		EmployeeID:           employeeID,
		Date:                 date,
		ClockIn:              &clockIn,
		Breaks:               []BreakInterval{},
		DeclaredBreakMinutes: declaredBreakMinutes,
		Notes:                notes,
		CreatedAt:            now.UTC(),
		UpdatedAt:            now.UTC(),
	}
}

// ClockInAt fills clockIn on a record that exists without one (an absence or leave marker).
func (a *Attendance) ClockInAt(now time.Time, declaredBreakMinutes int, notes *string) error {
	if a.ClockIn != nil {
		return ErrAlreadyClockedIn
	}
	clockIn := now.UTC()
	a.ClockIn = &clockIn
	a.DeclaredBreakMinutes = declaredBreakMinutes
	if notes != nil {
		a.Notes = notes
	}
	return nil
}

// ClockOutAt closes the working day. An open break must be ended first. Values given at clock-out
// are kept apart from the clock-in ones so a cancelled clock-out leaves no trace.
func (a *Attendance) ClockOutAt(now time.Time, declaredBreakMinutes *int, notes *string) error {
	if a.ClockIn == nil {
		return ErrNotClockedIn
	}
	if a.ClockOut != nil {
		return ErrAlreadyClockedOut
	}
	if a.OpenBreak() >= 0 {
		return ErrBreakInProgress
	}

	// never before clock-in or the end of the last break
	clockOut := latest(now.UTC(), *a.ClockIn)
	if n := len(a.Breaks); n > 0 && a.Breaks[n-1].End != nil {
		clockOut = latest(clockOut, *a.Breaks[n-1].End)
	}
	a.ClockOut = &clockOut
	if declaredBreakMinutes != nil && len(a.Breaks) == 0 {
		minutes := *declaredBreakMinutes
		a.ClockOutBreakMinutes = &minutes
	}
	a.ClockOutNotes = notes
	return nil
}

// CancelClockOut reopens the day. Only today's record may be reopened, and only within window
// of the clock-out when window is positive.
func (a *Attendance) CancelClockOut(now time.Time, today time.Time, window time.Duration) error {
	if a.ClockOut == nil {
		return ErrNotClockedOut
	}
	if !a.Date.Equal(today) {
		return ErrCancelWindowClosed
	}
	if window > 0 && now.Sub(*a.ClockOut) > window {
		return ErrCancelWindowClosed
	}
	a.ClockOut = nil
	a.ClockOutBreakMinutes = nil
	a.ClockOutNotes = nil
	return nil
}

func (a *Attendance) StartBreakAt(now time.Time, id string, notes *string) error {
	if a.ClockIn == nil {
		return ErrNotClockedIn
	}
	if a.ClockOut != nil {
		return ErrAlreadyClockedOut
	}
	if a.OpenBreak() >= 0 {
		return ErrAlreadyOnBreak
	}

	// breaks never start before clock-in or overlap the previous one
	start := latest(now.UTC(), *a.ClockIn)
	if n := len(a.Breaks); n > 0 && a.Breaks[n-1].End != nil {
		start = latest(start, *a.Breaks[n-1].End)
	}
	a.Breaks = append(a.Breaks, BreakInterval{ID: id, Start: start, Notes: notes})
	return nil
}

func (a *Attendance) EndBreakAt(now time.Time, notes *string) error {
	i := a.OpenBreak()
	if i < 0 {
		return ErrNoBreakInProgress
	}
	end := latest(now.UTC(), a.Breaks[i].Start)
	a.Breaks[i].End = &end
	if notes != nil {
		a.Breaks[i].Notes = notes
	}
	return nil
}

// AutoCloseAt closes a record left open past its day, ending any open break first.
func (a *Attendance) AutoCloseAt(at time.Time) error {
	if a.OpenBreak() >= 0 {
		if err := a.EndBreakAt(at, nil); err != nil {
			return err
		}
	}
	return a.ClockOutAt(at, nil, nil)
}

func latest(a, b time.Time) time.Time {
	if a.Before(b) {
		return b
	}
	return a
}
