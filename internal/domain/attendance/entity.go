package attendance

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusPresent    Status = "present"
	StatusLate       Status = "late"
	StatusEarlyLeave Status = "early_leave"
	StatusAbsent     Status = "absent"
	StatusHalfDay    Status = "half_day"
)

var StatusValues = []string{
	string(StatusPresent),
	string(StatusLate),
	string(StatusEarlyLeave),
	string(StatusAbsent),
	string(StatusHalfDay),
}

// State is the position of a daily record in the clock-in/break/clock-out cycle.
type State string

const (
	StateNotClockedIn State = "not_clocked_in"
	StateWorking      State = "working"
	StateOnBreak      State = "on_break"
	StateClockedOut   State = "clocked_out"
)

type BreakInterval struct {
	ID    string
	Start time.Time
	End   *time.Time
	Notes *string
}

func (b BreakInterval) IsOpen() bool {
	return b.End == nil
}

// Minutes returns the closed interval length rounded to whole minutes; open intervals count as zero.
func (b BreakInterval) Minutes() int {
	if b.End == nil {
		return 0
	}
	return int(b.End.Sub(b.Start).Round(time.Minute) / time.Minute)
}

// Attendance is one employee's record for one calendar date.
type Attendance struct {
	ID                   string
	EmployeeID           string
	Date                 time.Time // calendar date at 00:00 UTC
	ClockIn              *time.Time
	ClockOut             *time.Time
	Breaks               []BreakInterval
	DeclaredBreakMinutes int
	Notes                *string
	ClockOutBreakMinutes *int    // break minutes declared at clock-out, cleared when it is cancelled
	ClockOutNotes        *string // notes given at clock-out, cleared when it is cancelled
	HalfDayLeave         bool
	Status               Status
	Version              int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (a Attendance) IsClockedIn() bool {
	return a.ClockIn != nil
}

func (a Attendance) IsClockedOut() bool {
	return a.ClockOut != nil
}

func (a Attendance) IsWorking() bool {
	return a.IsClockedIn() && !a.IsClockedOut()
}

// OpenBreak returns the index of the in-progress break, or -1.
func (a Attendance) OpenBreak() int {
	for i := len(a.Breaks) - 1; i >= 0; i-- {
		if a.Breaks[i].IsOpen() {
			return i
		}
	}
	return -1
}

func (a Attendance) State() State {
	switch {
	case a.ClockIn == nil:
		return StateNotClockedIn
	case a.ClockOut != nil:
		return StateClockedOut
	case a.OpenBreak() >= 0:
		return StateOnBreak
	default:
		return StateWorking
	}
}

// TotalBreakMinutes sums closed break intervals. It is always recomputed from Breaks.
func (a Attendance) TotalBreakMinutes() int {
	total := 0
	for _, b := range a.Breaks {
		total += b.Minutes()
	}
	return total
}

// BreakDeductionMinutes is the break time subtracted from the clock span: tracked breaks when any
// were recorded, otherwise the minutes declared at clock-out, otherwise those declared at clock-in.
func (a Attendance) BreakDeductionMinutes() int {
	if len(a.Breaks) > 0 {
		return a.TotalBreakMinutes()
	}
	if a.ClockOutBreakMinutes != nil {
		return *a.ClockOutBreakMinutes
	}
	return a.DeclaredBreakMinutes
}

// WorkedMinutes is the clock span minus break deduction, floored at zero. Zero until clock-out.
func (a Attendance) WorkedMinutes() int {
	if a.ClockIn == nil || a.ClockOut == nil {
		return 0
	}
	span := int(a.ClockOut.Sub(*a.ClockIn) / time.Minute)
	return max(0, span-a.BreakDeductionMinutes())
}

func (a Attendance) OvertimeMinutes(regularWorkMinutes int) int {
	return max(0, a.WorkedMinutes()-regularWorkMinutes)
}

// FormatMinutes renders a minute count as H:MM.
func FormatMinutes(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	return fmt.Sprintf("%d:%02d", minutes/60, minutes%60)
}

// DateKey truncates t to its calendar date in loc and returns that date at 00:00 UTC.
func DateKey(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}
