// Package memory keeps attendance records in process memory. It backs local development
// (STORE_TYPE=memory) and the service and handler tests.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/cmlabs-hris/timecard-backend-go/internal/domain/attendance"
)

type recordKey struct {
	employeeID string
	date       string
}

type attendanceRepository struct {
	mu     sync.RWMutex
	byID   map[string]attendance.Attendance
	byDate map[recordKey]string
	now    func() time.Time
}

func NewAttendanceRepository() attendance.AttendanceRepository {
	return &attendanceRepository{
		byID:   make(map[string]attendance.Attendance),
		byDate: make(map[recordKey]string),
		now:    time.Now,
	}
}

func keyOf(employeeID string, date time.Time) recordKey {
	return recordKey{employeeID: employeeID, date: date.Format("2006-01-02")}
}

// clone copies the break slice and pointer fields so callers never share state with the store.
func clone(a attendance.Attendance) attendance.Attendance {
	out := a
	out.ClockIn = copyTime(a.ClockIn)
	out.ClockOut = copyTime(a.ClockOut)
	if a.ClockOutBreakMinutes != nil {
		minutes := *a.ClockOutBreakMinutes
		out.ClockOutBreakMinutes = &minutes
	}
	out.Breaks = make([]attendance.BreakInterval, len(a.Breaks))
	for i, b := range a.Breaks {
		b.End = copyTime(b.End)
		out.Breaks[i] = b
	}
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Create implements attendance.AttendanceRepository.
func (r *attendanceRepository) Create(ctx context.Context, newAttendance attendance.Attendance) (attendance.Attendance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := keyOf(newAttendance.EmployeeID, newAttendance.Date)
	if _, exists := r.byDate[key]; exists {
		return attendance.Attendance{}, attendance.ErrRecordExists
	}

	now := r.now().UTC()
	newAttendance.Version = 1
	newAttendance.CreatedAt = now
	newAttendance.UpdatedAt = now
	r.byID[newAttendance.ID] = clone(newAttendance)
	r.byDate[key] = newAttendance.ID

	return clone(newAttendance), nil
}

// GetByEmployeeAndDate implements attendance.AttendanceRepository.
func (r *attendanceRepository) GetByEmployeeAndDate(ctx context.Context, employeeID string, date time.Time) (*attendance.Attendance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byDate[keyOf(employeeID, date)]
	if !ok {
		return nil, nil
	}
	att := clone(r.byID[id])
	return &att, nil
}

// Update implements attendance.AttendanceRepository.
func (r *attendanceRepository) Update(ctx context.Context, att attendance.Attendance) (attendance.Attendance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[att.ID]
	if !ok {
		return attendance.Attendance{}, attendance.ErrAttendanceNotFound
	}
	if stored.Version != att.Version {
		return attendance.Attendance{}, attendance.ErrVersionConflict
	}

	att.Version++
	att.CreatedAt = stored.CreatedAt
	att.UpdatedAt = r.now().UTC()
	r.byID[att.ID] = clone(att)

	return clone(att), nil
}

// ListByEmployee implements attendance.AttendanceRepository.
func (r *attendanceRepository) ListByEmployee(ctx context.Context, employeeID string, filter attendance.RecordFilter) ([]attendance.Attendance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	attendances := make([]attendance.Attendance, 0)
	for _, att := range r.byID {
		if att.EmployeeID != employeeID {
			continue
		}
		if filter.Year != nil && att.Date.Year() != *filter.Year {
			continue
		}
		if filter.Month != nil && int(att.Date.Month()) != *filter.Month {
			continue
		}
		attendances = append(attendances, clone(att))
	}

	slices.SortFunc(attendances, func(a, b attendance.Attendance) int {
		return b.Date.Compare(a.Date)
	})
	return attendances, nil
}

// ListEmployeesSince implements attendance.AttendanceRepository.
func (r *attendanceRepository) ListEmployeesSince(ctx context.Context, since time.Time) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	employeeIDs := make([]string, 0)
	for _, att := range r.byID {
		if att.ClockIn == nil || att.Date.Before(since) {
			continue
		}
		if _, ok := seen[att.EmployeeID]; ok {
			continue
		}
		seen[att.EmployeeID] = struct{}{}
		employeeIDs = append(employeeIDs, att.EmployeeID)
	}
	slices.Sort(employeeIDs)
	return employeeIDs, nil
}

// ListOpenBefore implements attendance.AttendanceRepository.
func (r *attendanceRepository) ListOpenBefore(ctx context.Context, date time.Time) ([]attendance.Attendance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	open := make([]attendance.Attendance, 0)
	for _, att := range r.byID {
		if att.ClockIn != nil && att.ClockOut == nil && att.Date.Before(date) {
			open = append(open, clone(att))
		}
	}
	slices.SortFunc(open, func(a, b attendance.Attendance) int {
		return a.Date.Compare(b.Date)
	})
	return open, nil
}

// CreateAbsences implements attendance.AttendanceRepository.
func (r *attendanceRepository) CreateAbsences(ctx context.Context, records []attendance.Attendance) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	inserted := 0
	for _, rec := range records {
		key := keyOf(rec.EmployeeID, rec.Date)
		if _, exists := r.byDate[key]; exists {
			continue
		}
		rec.Version = 1
		rec.CreatedAt = now
		rec.UpdatedAt = now
		r.byID[rec.ID] = clone(rec)
		r.byDate[key] = rec.ID
		inserted++
	}
	return inserted, nil
}
