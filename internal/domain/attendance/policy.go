package attendance

import (
	"fmt"
	"slices"
	"time"
)

// ClockTime is a wall-clock time of day.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime parses "HH:MM".
func ParseClockTime(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return ClockTime{}, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	return ClockTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// On returns the instant this clock time occurs on date in loc.
func (c ClockTime) On(date time.Time, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), c.Hour, c.Minute, 0, 0, loc)
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Policy holds the thresholds used to classify a day and bound corrections.
type Policy struct {
	Location            *time.Location
	WorkStart           ClockTime
	WorkEnd             ClockTime
	GracePeriod         time.Duration
	RegularWorkMinutes  int
	HalfDayFraction     float64 // 0 disables the time-derived half_day rule
	DefaultBreakMinutes int
	CancelWindow        time.Duration // 0 means until the end of the calendar day
	Workdays            []time.Weekday
}

func DefaultPolicy() Policy {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		loc = time.UTC
	}
	return Policy{
		Location:            loc,
		WorkStart:           ClockTime{Hour: 9},
		WorkEnd:             ClockTime{Hour: 18},
		RegularWorkMinutes:  480,
		HalfDayFraction:     0.5,
		DefaultBreakMinutes: 60,
		Workdays: []time.Weekday{
			time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
		},
	}
}

func (p Policy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// Today returns the calendar date key for now in the ledger's zone.
func (p Policy) Today(now time.Time) time.Time {
	return DateKey(now, p.location())
}

func (p Policy) IsWorkday(date time.Time) bool {
	return slices.Contains(p.Workdays, date.Weekday())
}

// ScheduledStart is the instant the standard shift begins on date.
func (p Policy) ScheduledStart(date time.Time) time.Time {
	return p.WorkStart.On(date, p.location())
}

// ScheduledEnd is the instant the standard shift ends on date.
func (p Policy) ScheduledEnd(date time.Time) time.Time {
	return p.WorkEnd.On(date, p.location())
}

// Classify derives the status of a record as of now. The first matching rule wins.
func (p Policy) Classify(a Attendance, now time.Time) Status {
	elapsed := a.Date.Before(p.Today(now))

	if a.ClockIn == nil && elapsed {
		return StatusAbsent
	}
	if a.HalfDayLeave {
		return StatusHalfDay
	}
	if a.ClockIn != nil && a.ClockIn.After(p.ScheduledStart(a.Date).Add(p.GracePeriod)) {
		return StatusLate
	}
	if a.ClockOut != nil && a.ClockOut.Before(p.ScheduledEnd(a.Date)) {
		return StatusEarlyLeave
	}
	if a.ClockOut != nil && p.HalfDayFraction > 0 &&
		float64(a.WorkedMinutes()) < p.HalfDayFraction*float64(p.RegularWorkMinutes) {
		return StatusHalfDay
	}
	return StatusPresent
}
