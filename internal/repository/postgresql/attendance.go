package postgresql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cmlabs-hris/timecard-backend-go/internal/domain/attendance"
	"github.com/cmlabs-hris/timecard-backend-go/internal/pkg/database"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

const attendanceColumns = `
	id, employee_id, date, clock_in, clock_out, declared_break_minutes, notes,
	clock_out_break_minutes, clock_out_notes, half_day_leave, status, version, created_at, updated_at`

type attendanceRepository struct {
	db *database.DB
}

func NewAttendanceRepository(db *database.DB) attendance.AttendanceRepository {
	return &attendanceRepository{db: db}
}

func scanAttendance(row pgx.Row) (attendance.Attendance, error) {
	var att attendance.Attendance
	var status string
	err := row.Scan(
		&att.ID, &att.EmployeeID, &att.Date, &att.ClockIn, &att.ClockOut, &att.DeclaredBreakMinutes, &att.Notes,
		&att.ClockOutBreakMinutes, &att.ClockOutNotes, &att.HalfDayLeave, &status, &att.Version, &att.CreatedAt, &att.UpdatedAt,
	)
	att.Status = attendance.Status(status)
	att.Breaks = []attendance.BreakInterval{}
	return att, err
}

// Create implements attendance.AttendanceRepository.
func (r *attendanceRepository) Create(ctx context.Context, newAttendance attendance.Attendance) (attendance.Attendance, error) {
	err := WithTransaction(ctx, r.db, func(ctx context.Context, tx pgx.Tx) error {
		query := `
			INSERT INTO attendance_records (
				id, employee_id, date, clock_in, clock_out, declared_break_minutes, notes,
				clock_out_break_minutes, clock_out_notes, half_day_leave, status, version
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1)
			RETURNING version, created_at, updated_at
		`
		err := tx.QueryRow(ctx, query,
			newAttendance.ID,
			newAttendance.EmployeeID,
			newAttendance.Date,
			newAttendance.ClockIn,
			newAttendance.ClockOut,
			newAttendance.DeclaredBreakMinutes,
			newAttendance.Notes,
			newAttendance.ClockOutBreakMinutes,
			newAttendance.ClockOutNotes,
			newAttendance.HalfDayLeave,
			string(newAttendance.Status),
		).Scan(&newAttendance.Version, &newAttendance.CreatedAt, &newAttendance.UpdatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return attendance.ErrRecordExists
			}
			return fmt.Errorf("failed to create attendance: %w", err)
		}

		return insertBreaks(ctx, tx, newAttendance.ID, newAttendance.Breaks)
	})
	if err != nil {
		return attendance.Attendance{}, err
	}

	if newAttendance.Breaks == nil {
		newAttendance.Breaks = []attendance.BreakInterval{}
	}
	return newAttendance, nil
}

// GetByEmployeeAndDate implements attendance.AttendanceRepository.
func (r *attendanceRepository) GetByEmployeeAndDate(ctx context.Context, employeeID string, date time.Time) (*attendance.Attendance, error) {
	q := GetQuerier(ctx, r.db)

	query := `SELECT ` + attendanceColumns + ` FROM attendance_records WHERE employee_id = $1 AND date = $2`

	att, err := scanAttendance(q.QueryRow(ctx, query, employeeID, date))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get attendance by employee and date: %w", err)
	}

	if err := r.loadBreaks(ctx, []*attendance.Attendance{&att}); err != nil {
		return nil, err
	}
	return &att, nil
}

// Update implements attendance.AttendanceRepository.
func (r *attendanceRepository) Update(ctx context.Context, att attendance.Attendance) (attendance.Attendance, error) {
	err := WithTransaction(ctx, r.db, func(ctx context.Context, tx pgx.Tx) error {
		query := `
			UPDATE attendance_records SET
				clock_in = $3,
				clock_out = $4,
				declared_break_minutes = $5,
				notes = $6,
				clock_out_break_minutes = $7,
				clock_out_notes = $8,
				half_day_leave = $9,
				status = $10,
				version = version + 1,
				updated_at = NOW()
			WHERE id = $1 AND version = $2
			RETURNING version, created_at, updated_at
		`
		err := tx.QueryRow(ctx, query,
			att.ID,
			att.Version,
			att.ClockIn,
			att.ClockOut,
			att.DeclaredBreakMinutes,
			att.Notes,
			att.ClockOutBreakMinutes,
			att.ClockOutNotes,
			att.HalfDayLeave,
			string(att.Status),
		).Scan(&att.Version, &att.CreatedAt, &att.UpdatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM attendance_records WHERE id = $1)`, att.ID).Scan(&exists); err != nil {
				return fmt.Errorf("failed to check attendance existence: %w", err)
			}
			if !exists {
				return attendance.ErrAttendanceNotFound
			}
			return attendance.ErrVersionConflict
		}
		if err != nil {
			return fmt.Errorf("failed to update attendance: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM attendance_breaks WHERE attendance_id = $1`, att.ID); err != nil {
			return fmt.Errorf("failed to clear attendance breaks: %w", err)
		}
		return insertBreaks(ctx, tx, att.ID, att.Breaks)
	})
	if err != nil {
		return attendance.Attendance{}, err
	}

	return att, nil
}

// ListByEmployee implements attendance.AttendanceRepository.
func (r *attendanceRepository) ListByEmployee(ctx context.Context, employeeID string, filter attendance.RecordFilter) ([]attendance.Attendance, error) {
	whereClauses := []string{"employee_id = $1"}
	args := []interface{}{employeeID}
	argIdx := 2

	if filter.Year != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("EXTRACT(YEAR FROM date) = $%d", argIdx))
		args = append(args, *filter.Year)
		argIdx++
	}
	if filter.Month != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("EXTRACT(MONTH FROM date) = $%d", argIdx))
		args = append(args, *filter.Month)
		argIdx++
	}

	query := fmt.Sprintf(`SELECT %s FROM attendance_records WHERE %s ORDER BY date DESC`,
		attendanceColumns, strings.Join(whereClauses, " AND "))

	return r.queryAttendances(ctx, query, args...)
}

// ListEmployeesSince implements attendance.AttendanceRepository.
func (r *attendanceRepository) ListEmployeesSince(ctx context.Context, since time.Time) ([]string, error) {
	q := GetQuerier(ctx, r.db)

	rows, err := q.Query(ctx, `
		SELECT DISTINCT employee_id
		FROM attendance_records
		WHERE date >= $1 AND clock_in IS NOT NULL
		ORDER BY employee_id
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}

	employeeIDs, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan employee ids: %w", err)
	}
	return employeeIDs, nil
}

// ListOpenBefore implements attendance.AttendanceRepository.
func (r *attendanceRepository) ListOpenBefore(ctx context.Context, date time.Time) ([]attendance.Attendance, error) {
	query := `SELECT ` + attendanceColumns + `
		FROM attendance_records
		WHERE date < $1 AND clock_in IS NOT NULL AND clock_out IS NULL
		ORDER BY date, employee_id`

	return r.queryAttendances(ctx, query, date)
}

// CreateAbsences implements attendance.AttendanceRepository.
func (r *attendanceRepository) CreateAbsences(ctx context.Context, records []attendance.Attendance) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	q := GetQuerier(ctx, r.db)

	valueStrings := make([]string, 0, len(records))
	valueArgs := make([]interface{}, 0, len(records)*5)

	for i, rec := range records {
		base := i * 5
		valueStrings = append(valueStrings, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, 1)",
			base+1, base+2, base+3, base+4, base+5,
		))
		valueArgs = append(valueArgs,
			rec.ID,
			rec.EmployeeID,
			rec.Date,
			rec.HalfDayLeave,
			string(rec.Status),
		)
	}

	query := fmt.Sprintf(`
		INSERT INTO attendance_records (id, employee_id, date, half_day_leave, status, version)
		VALUES %s
		ON CONFLICT (employee_id, date) DO NOTHING
	`, strings.Join(valueStrings, ", "))

	tag, err := q.Exec(ctx, query, valueArgs...)
	if err != nil {
		return 0, fmt.Errorf("failed to bulk create absences: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

// queryAttendances runs a SELECT of attendanceColumns and loads the breaks of every row.
func (r *attendanceRepository) queryAttendances(ctx context.Context, query string, args ...interface{}) ([]attendance.Attendance, error) {
	q := GetQuerier(ctx, r.db)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance: %w", err)
	}
	defer rows.Close()

	attendances := make([]attendance.Attendance, 0)
	for rows.Next() {
		att, err := scanAttendance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attendance: %w", err)
		}
		attendances = append(attendances, att)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attendance rows: %w", err)
	}

	ptrs := make([]*attendance.Attendance, len(attendances))
	for i := range attendances {
		ptrs[i] = &attendances[i]
	}
	if err := r.loadBreaks(ctx, ptrs); err != nil {
		return nil, err
	}

	return attendances, nil
}

// loadBreaks fills Breaks on each record with a single query.
func (r *attendanceRepository) loadBreaks(ctx context.Context, records []*attendance.Attendance) error {
	if len(records) == 0 {
		return nil
	}

	q := GetQuerier(ctx, r.db)

	ids := make([]string, len(records))
	byID := make(map[string]*attendance.Attendance, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
		byID[rec.ID] = rec
	}

	rows, err := q.Query(ctx, `
		SELECT attendance_id, id, start_at, end_at, notes
		FROM attendance_breaks
		WHERE attendance_id = ANY($1::uuid[])
		ORDER BY attendance_id, position
	`, ids)
	if err != nil {
		return fmt.Errorf("failed to load attendance breaks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var attendanceID string
		var b attendance.BreakInterval
		if err := rows.Scan(&attendanceID, &b.ID, &b.Start, &b.End, &b.Notes); err != nil {
			return fmt.Errorf("failed to scan attendance break: %w", err)
		}
		if rec, ok := byID[attendanceID]; ok {
			rec.Breaks = append(rec.Breaks, b)
		}
	}
	return rows.Err()
}

func insertBreaks(ctx context.Context, tx pgx.Tx, attendanceID string, breaks []attendance.BreakInterval) error {
	if len(breaks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i, b := range breaks {
		batch.Queue(`
			INSERT INTO attendance_breaks (id, attendance_id, position, start_at, end_at, notes)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, b.ID, attendanceID, i, b.Start, b.End, b.Notes)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert attendance breaks: %w", err)
	}
	return nil
}
