package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cmlabs-hris/timecard-backend-go/internal/domain/attendance"
	"github.com/cmlabs-hris/timecard-backend-go/internal/pkg/database"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	attendanceCollection = "attendance_records"
	dateLayout           = "2006-01-02"
)

type breakDocument struct {
	ID    string     `bson:"id"`
	Start time.Time  `bson:"start"`
	End   *time.Time `bson:"end,omitempty"`
	Notes *string    `bson:"notes,omitempty"`
}

type attendanceDocument struct {
	ID                   string          `bson:"_id"`
	EmployeeID           string          `bson:"employee_id"`
	Date                 string          `bson:"date"` // YYYY-MM-DD
	Year                 int             `bson:"year"`
	Month                int             `bson:"month"`
	ClockIn              *time.Time      `bson:"clock_in,omitempty"`
	ClockOut             *time.Time      `bson:"clock_out,omitempty"`
	Breaks               []breakDocument `bson:"breaks"`
	DeclaredBreakMinutes int             `bson:"declared_break_minutes"`
	Notes                *string         `bson:"notes,omitempty"`
	ClockOutBreakMinutes *int            `bson:"clock_out_break_minutes,omitempty"`
	ClockOutNotes        *string         `bson:"clock_out_notes,omitempty"`
	HalfDayLeave         bool            `bson:"half_day_leave"`
	Status               string          `bson:"status"`
	Version              int             `bson:"version"`
	CreatedAt            time.Time       `bson:"created_at"`
	UpdatedAt            time.Time       `bson:"updated_at"`
}

func toDocument(a attendance.Attendance) attendanceDocument {
	breaks := make([]breakDocument, 0, len(a.Breaks))
	for _, b := range a.Breaks {
		breaks = append(breaks, breakDocument{ID: b.ID, Start: b.Start, End: b.End, Notes: b.Notes})
	}
	return attendanceDocument{
		ID:                   a.ID,
		EmployeeID:           a.EmployeeID,
		Date:                 a.Date.Format(dateLayout),
		Year:                 a.Date.Year(),
		Month:                int(a.Date.Month()),
		ClockIn:              a.ClockIn,
		ClockOut:             a.ClockOut,
		Breaks:               breaks,
		DeclaredBreakMinutes: a.DeclaredBreakMinutes,
		Notes:                a.Notes,
		ClockOutBreakMinutes: a.ClockOutBreakMinutes,
		ClockOutNotes:        a.ClockOutNotes,
		HalfDayLeave:         a.HalfDayLeave,
		Status:               string(a.Status),
		Version:              a.Version,
		CreatedAt:            a.CreatedAt,
		UpdatedAt:            a.UpdatedAt,
	}
}

func (d attendanceDocument) toEntity() (attendance.Attendance, error) {
	date, err := time.Parse(dateLayout, d.Date)
	if err != nil {
		return attendance.Attendance{}, fmt.Errorf("parse stored date %q: %w", d.Date, err)
	}
	breaks := make([]attendance.BreakInterval, 0, len(d.Breaks))
	for _, b := range d.Breaks {
		breaks = append(breaks, attendance.BreakInterval{ID: b.ID, Start: b.Start, End: b.End, Notes: b.Notes})
	}
	return attendance.Attendance{
		ID:                   d.ID,
		EmployeeID:           d.EmployeeID,
		Date:                 date,
		ClockIn:              d.ClockIn,
		ClockOut:             d.ClockOut,
		Breaks:               breaks,
		DeclaredBreakMinutes: d.DeclaredBreakMinutes,
		Notes:                d.Notes,
		ClockOutBreakMinutes: d.ClockOutBreakMinutes,
		ClockOutNotes:        d.ClockOutNotes,
		HalfDayLeave:         d.HalfDayLeave,
		Status:               attendance.Status(d.Status),
		Version:              d.Version,
		CreatedAt:            d.CreatedAt,
		UpdatedAt:            d.UpdatedAt,
	}, nil
}

type attendanceRepository struct {
	records *mongo.Collection
	now     func() time.Time
}

// NewAttendanceRepository ensures the unique (employee_id, date) index exists.
func NewAttendanceRepository(ctx context.Context, db *database.MongoDB) (attendance.AttendanceRepository, error) {
	records := db.Collection(attendanceCollection)

	if _, err := records.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "employee_id", Value: 1}, {Key: "date", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "date", Value: 1}}},
		{Keys: bson.D{{Key: "employee_id", Value: 1}, {Key: "year", Value: 1}, {Key: "month", Value: 1}}},
	}); err != nil {
		return nil, fmt.Errorf("create attendance indexes: %w", err)
	}

	return &attendanceRepository{records: records, now: time.Now}, nil
}

// Create implements attendance.AttendanceRepository.
func (r *attendanceRepository) Create(ctx context.Context, newAttendance attendance.Attendance) (attendance.Attendance, error) {
	now := r.now().UTC()
	newAttendance.Version = 1
	newAttendance.CreatedAt = now
	newAttendance.UpdatedAt = now

	if _, err := r.records.InsertOne(ctx, toDocument(newAttendance)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return attendance.Attendance{}, attendance.ErrRecordExists
		}
		return attendance.Attendance{}, fmt.Errorf("insert attendance: %w", err)
	}

	if newAttendance.Breaks == nil {
		newAttendance.Breaks = []attendance.BreakInterval{}
	}
	return newAttendance, nil
}

// GetByEmployeeAndDate implements attendance.AttendanceRepository.
func (r *attendanceRepository) GetByEmployeeAndDate(ctx context.Context, employeeID string, date time.Time) (*attendance.Attendance, error) {
	var doc attendanceDocument
	err := r.records.FindOne(ctx, bson.M{
		"employee_id": employeeID,
		"date":        date.Format(dateLayout),
	}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find attendance: %w", err)
	}

	att, err := doc.toEntity()
	if err != nil {
		return nil, err
	}
	return &att, nil
}

// Update implements attendance.AttendanceRepository.
func (r *attendanceRepository) Update(ctx context.Context, att attendance.Attendance) (attendance.Attendance, error) {
	expected := att.Version
	att.Version++
	att.UpdatedAt = r.now().UTC()

	doc := toDocument(att)
	res, err := r.records.UpdateOne(ctx,
		bson.M{"_id": att.ID, "version": expected},
		bson.M{"$set": bson.M{
			"clock_in":                doc.ClockIn,
			"clock_out":               doc.ClockOut,
			"breaks":                  doc.Breaks,
			"declared_break_minutes":  doc.DeclaredBreakMinutes,
			"notes":                   doc.Notes,
			"clock_out_break_minutes": doc.ClockOutBreakMinutes,
			"clock_out_notes":         doc.ClockOutNotes,
			"half_day_leave":          doc.HalfDayLeave,
			"status":                  doc.Status,
			"version":                 doc.Version,
			"updated_at":              doc.UpdatedAt,
		}},
	)
	if err != nil {
		return attendance.Attendance{}, fmt.Errorf("update attendance: %w", err)
	}

	if res.MatchedCount == 0 {
		count, err := r.records.CountDocuments(ctx, bson.M{"_id": att.ID})
		if err != nil {
			return attendance.Attendance{}, fmt.Errorf("count attendance: %w", err)
		}
		if count == 0 {
			return attendance.Attendance{}, attendance.ErrAttendanceNotFound
		}
		return attendance.Attendance{}, attendance.ErrVersionConflict
	}

	return att, nil
}

// ListByEmployee implements attendance.AttendanceRepository.
func (r *attendanceRepository) ListByEmployee(ctx context.Context, employeeID string, filter attendance.RecordFilter) ([]attendance.Attendance, error) {
	query := bson.M{"employee_id": employeeID}
	if filter.Year != nil {
		query["year"] = *filter.Year
	}
	if filter.Month != nil {
		query["month"] = *filter.Month
	}

	return r.find(ctx, query, options.Find().SetSort(bson.D{{Key: "date", Value: -1}}))
}

// ListEmployeesSince implements attendance.AttendanceRepository.
func (r *attendanceRepository) ListEmployeesSince(ctx context.Context, since time.Time) ([]string, error) {
	var employeeIDs []string
	err := r.records.Distinct(ctx, "employee_id", bson.M{
		"date":     bson.M{"$gte": since.Format(dateLayout)},
		"clock_in": bson.M{"$ne": nil},
	}).Decode(&employeeIDs)
	if err != nil {
		return nil, fmt.Errorf("distinct employees: %w", err)
	}
	if employeeIDs == nil {
		employeeIDs = []string{}
	}
	return employeeIDs, nil
}

// ListOpenBefore implements attendance.AttendanceRepository.
func (r *attendanceRepository) ListOpenBefore(ctx context.Context, date time.Time) ([]attendance.Attendance, error) {
	query := bson.M{
		"date":      bson.M{"$lt": date.Format(dateLayout)},
		"clock_in":  bson.M{"$ne": nil},
		"clock_out": nil,
	}
	return r.find(ctx, query, options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "employee_id", Value: 1}}))
}

func (r *attendanceRepository) find(ctx context.Context, query bson.M, opts ...options.Lister[options.FindOptions]) ([]attendance.Attendance, error) {
	cursor, err := r.records.Find(ctx, query, opts...)
	if err != nil {
		return nil, fmt.Errorf("find attendance: %w", err)
	}

	var docs []attendanceDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode attendance: %w", err)
	}

	attendances := make([]attendance.Attendance, 0, len(docs))
	for _, doc := range docs {
		att, err := doc.toEntity()
		if err != nil {
			return nil, err
		}
		attendances = append(attendances, att)
	}
	return attendances, nil
}

// CreateAbsences implements attendance.AttendanceRepository.
func (r *attendanceRepository) CreateAbsences(ctx context.Context, records []attendance.Attendance) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	now := r.now().UTC()
	models := make([]mongo.WriteModel, 0, len(records))
	for _, rec := range records {
		rec.Version = 1
		rec.CreatedAt = now
		rec.UpdatedAt = now
		doc := toDocument(rec)

		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"employee_id": doc.EmployeeID, "date": doc.Date}).
			SetUpdate(bson.M{"$setOnInsert": doc}).
			SetUpsert(true))
	}

	res, err := r.records.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, fmt.Errorf("bulk create absences: %w", err)
	}
	return int(res.UpsertedCount), nil
}
