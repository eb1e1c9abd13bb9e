package attendance

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cmlabs-hris/timecard-backend-go/internal/domain/attendance"
	"github.com/cmlabs-hris/timecard-backend-go/internal/pkg/sse"
	"github.com/cmlabs-hris/timecard-backend-go/internal/pkg/validator"
	"github.com/cmlabs-hris/timecard-backend-go/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jst = time.FixedZone("JST", 9*60*60)

const testEmployeeID = "0190a3c2-1111-7abc-8def-000000000001"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []sse.Event
}

func (p *recordingPublisher) Publish(employeeID string, event sse.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	event.EmployeeID = employeeID
	p.events = append(p.events, event)
}

func (p *recordingPublisher) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

// conflictingRepository fails the first n updates with a version conflict.
type conflictingRepository struct {
	attendance.AttendanceRepository
	mu        sync.Mutex
	conflicts int
}

func (r *conflictingRepository) Update(ctx context.Context, a attendance.Attendance) (attendance.Attendance, error) {
	r.mu.Lock()
	if r.conflicts > 0 {
		r.conflicts--
		r.mu.Unlock()
		return attendance.Attendance{}, attendance.ErrVersionConflict
	}
	r.mu.Unlock()
	return r.AttendanceRepository.Update(ctx, a)
}

func testPolicy() attendance.Policy {
	policy := attendance.DefaultPolicy()
	policy.Location = jst
	return policy
}

// at returns a JST instant in March 2024. March 11 is a Monday.
func at(day, hour, minute int) time.Time {
	return time.Date(2024, time.March, day, hour, minute, 0, 0, jst)
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func newTestService(repo attendance.AttendanceRepository) (attendance.AttendanceService, *fakeClock, *recordingPublisher) {
	clock := &fakeClock{now: at(11, 9, 0)}
	publisher := &recordingPublisher{}
	svc := NewAttendanceService(repo, testPolicy(), publisher, clock.Now)
	return svc, clock, publisher
}

// ===== CLOCK-IN / CLOCK-OUT =====

func TestAttendanceService_LateClockInScenario(t *testing.T) {
	ctx := context.Background()
	svc, clock, _ := newTestService(memory.NewAttendanceRepository())

	clock.Set(at(11, 9, 15))
	resp, err := svc.ClockIn(ctx, attendance.ClockInRequest{EmployeeID: testEmployeeID})
	require.NoError(t, err)
	assert.Equal(t, string(attendance.StatusLate), resp.Status)
	assert.Equal(t, string(attendance.StateWorking), resp.State)
	assert.Equal(t, "2024-03-11", resp.Date)
	assert.Equal(t, 60, resp.DeclaredBreakMinutes)

	clock.Set(at(11, 18, 0))
	resp, err = svc.ClockOut(ctx, attendance.ClockOutRequest{EmployeeID: testEmployeeID, BreakMinutes: intPtr(60)})
	require.NoError(t, err)
	assert.Equal(t, 465, resp.WorkedMinutes)
	assert.Equal(t, "7:45", resp.WorkedTime)
	assert.Equal(t, 0, resp.OvertimeMinutes)
	assert.Equal(t, string(attendance.StatusLate), resp.Status)
	assert.Equal(t, string(attendance.StateClockedOut), resp.State)
	require.NotNil(t, resp.ClockOut)
	assert.Equal(t, "2024-03-11T09:00:00Z", *resp.ClockOut)
}

func TestAttendanceService_ClockIn_Twice(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(memory.NewAttendanceRepository())

	_, err := svc.ClockIn(ctx, attendance.ClockInRequest{EmployeeID: testEmployeeID})
	require.NoError(t, err)

	_, err = svc.ClockIn(ctx, attendance.ClockInRequest{EmployeeID: testEmployeeID})
	assert.ErrorIs(t, err, attendance.ErrAlreadyClockedIn)
}

func TestAttendanceService_ClockIn_NextDayOpensNewRecord(t *testing.T) {
	ctx := context.Background()
	svc, clock, _ := newTestService(memory.NewAttendanceRepository())

	_, err := svc.ClockIn(ctx, attendance.ClockInRequest{EmployeeID: testEmployeeID})
	require.NoError(t, err)

	clock.Set(at(12, 8, 55))
	resp, err := svc.ClockIn(ctx, attendance.ClockInRequest{EmployeeID: testEmployeeID})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-12", resp.Date)
	assert.Equal(t, string(attendance.StatusPresent), resp.Status)
}

func TestAttendanceService_ClockIn_ConcurrentExactlyOneSucceeds(t *testing.T) {
	ctx := context.Background()
	svc, _, publisher := newTestService(memory.NewAttendanceRepository())

	const callers = 20
	var successes, alreadyClockedIn atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ClockIn(ctx, attendance.ClockInRequest{EmployeeID: testEmployeeID})
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, attendance.ErrAlreadyClockedIn):
				alreadyClockedIn.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(callers-1), alreadyClockedIn.Load())
	assert.Equal(t, 1, publisher.Count())

	history, err := svc.GetHistory(ctx, attendance.HistoryFilter{EmployeeID: testEmployeeID})
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestAttendanceService_ClockOut_WithoutClockIn(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(memory.NewAttendanceRepository())

	_, err := svc.ClockOut(ctx, attendance.ClockOutRequest{EmployeeID: testEmployeeID})
	assert.ErrorIs(t, err, attendance.ErrNotClockedIn)
}

func TestAttendanceService_ClockOut_Twice(t *testing.T) {
	ctx := context.Background()
	svc, clock, _ := newTestService(memory.NewAttendanceRepository())

	_, err := svc.ClockIn(ctx, attendance.ClockInRequest{EmployeeID: testEmployeeID})
	require.NoError(t, err)
	clock.Set(at(11, 18, 0))
	_, err = svc.ClockOut(ctx, attendance.ClockOutRequest{EmployeeID: testEmployeeID})
	require.NoError(t, err)

	_, err = svc.ClockOut(ctx, attendance.ClockOutRequest{EmployeeID: testEmployeeID})
	assert.ErrorIs(t, err, attendance.ErrAlreadyClockedOut)
}

func TestAttendanceService_WorkedMinutesFloorAtZero(t *testing.T) {
	ctx := context.Background()
	svc, clock, _ := newTestService(memory.NewAttendanceRepository())

	_, err := svc.ClockIn(ctx, attendance.ClockInRequest{EmployeeID: testEmployeeID, BreakMinutes: intPtr(60)})
	require.NoError(t, err)

	clock.Set(at(11, 9, 30))
	resp, err := svc.ClockOut(ctx, attendance.ClockOutRequest{EmployeeID: testEmployeeID})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.WorkedMinutes)
	assert.Equal(t, "0:00", resp.WorkedTime)
	assert.Equal(t, string(attendance.StatusEarlyLeave), resp.Status)
}

func TestAttendanceService_OvertimeAndHalfDay(t *testing.T) {
	ctx := context.Background()

	t.Run("overtime beyond regular minutes", func(t *testing.T) {
		svc, clock, _ := newTestService(memory.NewAttendanceRepository())
		_, err := svc.ClockIn(ctx, attendance.ClockInRequest{EmployeeID: testEmployeeID})
		require.NoError(t, err)

		clock.Set(at(11, 20, 0))
		resp, err := svc.ClockOut(ctx, attendance.ClockOutRequest{EmployeeID: testEmployeeID})
		require.NoError(t, err)
		assert.Equal(t, 600, resp.WorkedMinutes)
		assert.Equal(t, 120, resp.OvertimeMinutes)
		assert.Equal(t, string(attendance.StatusPresent), resp.Status)
	})

	t.Run("approved half-day leave wins over early leave", func(t *testing.T) {
		svc, clock, _ := newTestService(memory.NewAttendanceRepository())
		clock.Set(at(11, 8, 0))
		_, err := svc.MarkHalfDayLeave(ctx, attendance.HalfDayLeaveRequest{EmployeeID: testEmployeeID, Date: "2024-03-11"})
		require.NoError(t, err)

		clock.Set(at(11, 9, 0))
		_, err = svc.ClockIn(ctx, attendance.ClockInRequest{EmployeeID: testEmployeeID, BreakMinutes: intPtr(0)})
		require.NoError(t, err)

		clock.Set(at(11, 13, 0))
		resp, err := svc.ClockOut(ctx, attendance.ClockOutRequest{EmployeeID: testEmployeeID})
		require.NoError(t, err)
		assert.True(t, resp.HalfDayLeave)
		assert.Equal(t, string(attendance.StatusHalfDay), resp.Status)
		assert.Equal(t, 240, resp.WorkedMinutes)
	})
}

// ===== BREAKS =====

func TestAttendanceService_BreakAccounting(t *testing.T) {
	ctx := context.Background()
	svc, clock, publisher := newTestService(memory.NewAttendanceRepository())

	_, err := svc.ClockIn(ctx, attendance.ClockInRequest{EmployeeID: testEmployeeID})
	require.NoError(t, err)

	clock.Set(at(11, 12, 0))
	resp, err := svc.StartBreak(ctx, attendance.BreakRequest{EmployeeID: testEmployeeID})
	require.NoError(t, err)
	assert.True(t, resp.IsOnBreak)
	assert.Equal(t, 0, resp.TotalBreakMinutes)

	_, err = svc.StartBreak(ctx, attendance.BreakRequest{EmployeeID: testEmployeeID})
	assert.ErrorIs(t, err, attendance.ErrAlreadyOnBreak)

	clock.Set(at(11, 12, 45))
	notes := "lunch"
	resp, err = svc.EndBreak(ctx, attendance.BreakRequest{EmployeeID: testEmployeeID, Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, 45, resp.TotalBreakMinutes)
	require.Len(t, resp.Breaks, 1)
	assert.Equal(t, 45, resp.Breaks[0].Minutes)
	require.NotNil(t, resp.Breaks[0].Notes)
	assert.Equal(t, "lunch", *resp.Breaks[0].Notes)

	_, err = svc.EndBreak(ctx, attendance.BreakRequest{EmployeeID: testEmployeeID})
	assert.ErrorIs(t, err, attendance.ErrNoBreakInProgress)

	clock.Set(at(11, 15, 0))
	_, err = svc.StartBreak(ctx, attendance.BreakRequest{EmployeeID: testEmployeeID})
	require.NoError(t, err)
	clock.Set(at(11, 15, 10))
	resp, err = svc.EndBreak(ctx, attendance.BreakRequest{EmployeeID: testEmployeeID})
	require.NoError(t, err)
	assert.Equal(t, 55, resp.TotalBreakMinutes)

	// tracked breaks replace the declared break
	clock.Set(at(11, 18, 0))
	resp, err = svc.ClockOut(ctx, attendance.ClockOutRequest{EmployeeID: testEmployeeID, BreakMinutes: intPtr(60)})
	require.NoError(t, err)
	assert.Equal(t, 540-55, resp.WorkedMinutes)

	assert.Equal(t, 6, publisher.Count())
}

func TestAttendanceService_ClockOutWhileOnBreak(t *testing.T) {
	ctx := context.Background()
	svc, clock, _ := newTestService(memory.NewAttendanceRepository())

	_, err := svc.ClockIn(ctx, attendance.ClockInRequest{EmployeeID: testEmployeeID})
	require.NoError(t, err)
	clock.Set(at(11, 12, 0))
	_, err = svc.StartBreak(ctx, attendance.BreakRequest{EmployeeID: testEmployeeID})
	require.NoError(t, err)

	clock.Set(at(11, 18, 0))
	_, err = svc.ClockOut(ctx, attendance.ClockOutRequest{EmployeeID: testEmployeeID})
	assert.ErrorIs(t, err, attendance.ErrBreakInProgress)

	_, err = svc.EndBreak(ctx, attendance.BreakRequest{EmployeeID: testEmployeeID})
	require.NoError(t, err)

	resp, err := svc.ClockOut(ctx, attendance.ClockOutRequest{EmployeeID: testEmployeeID})
	require.NoError(t, err)
	assert.Equal(t, 360, resp.TotalBreakMinutes)
	assert.Equal(t, 180, resp.WorkedMinutes)
}

func TestAttendanceService_StartBreak_Preconditions(t *testing.T) {
	ctx := context.Background()
	svc, clock, _ := newTestService(memory.NewAttendanceRepository())

	_, err := svc.StartBreak(ctx, attendance.BreakRequest{EmployeeID: testEmployeeID})
	assert.ErrorIs(t, err, attendance.ErrNotClockedIn)

	_, err = svc.EndBreak(ctx, attendance.BreakRequest{EmployeeID: testEmployeeID})
	assert.ErrorIs(t, err, attendance.ErrNoBreakInProgress)

	_, err = svc.ClockIn(ctx, attendance.ClockInRequest{EmployeeID: testEmployeeID})
	require.NoError(t, err)
	clock.Set(at(11, 18, 0))
	_, err = svc.ClockOut(ctx, attendance.ClockOutRequest{EmployeeID: testEmployeeID})
	require.NoError(t, err)

	_, err = svc.StartBreak(ctx, attendance.BreakRequest{EmployeeID: testEmployeeID})
	assert.ErrorIs(t, err, attendance.ErrAlreadyClockedOut)
}

func TestAttendanceService_StartBreak_ConcurrentExactlyOneSucceeds(t *testing.T) {
	ctx := context.Background()
	svc, clock, _ := newTestService(memory.NewAttendanceRepository())

	_, err := svc.ClockIn(ctx, attendance.ClockInRequest{EmployeeID: testEmployeeID})
	require.NoError(t, err)
	clock.Set(at(11, 12, 0))

	const callers = 10
	var successes, alreadyOnBreak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.StartBreak(ctx, attendance.BreakRequest{EmployeeID: testEmployeeID})
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, attendance.ErrAlreadyOnBreak):
				alreadyOnBreak.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(callers-1), alreadyOnBreak.Load())

	today, err := svc.GetToday(ctx, testEmployeeID)
	require.NoError(t, err)
	require.NotNil(t, today)
	assert.Len(t, today.Breaks, 1)
}

// ===== CANCEL CLOCK-OUT =====

func TestAttendanceService_CancelClockOut_RoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, clock, _ := newTestService(memory.NewAttendanceRepository())

	_, err := svc.ClockIn(ctx, attendance.ClockInRequest{EmployeeID: testEmployeeID})
	require.NoError(t, err)
	clock.Set(at(11, 12, 0))
	_, err = svc.StartBreak(ctx, attendance.BreakRequest{EmployeeID: testEmployeeID})
	require.NoError(t, err)
	clock.Set(at(11, 13, 0))
	before, err := svc.EndBreak(ctx, attendance.BreakRequest{EmployeeID: testEmployeeID})
	require.NoError(t, err)

	clock.Set(at(11, 17, 0))
	_, err = svc.ClockOut(ctx, attendance.ClockOutRequest{EmployeeID: testEmployeeID})
	require.NoError(t, err)

	after, err := svc.CancelClockOut(ctx, attendance.CancelClockOutRequest{EmployeeID: testEmployeeID})
	require.NoError(t, err)

	assert.Nil(t, after.ClockOut)
	assert.Equal(t, before.ClockIn, after.ClockIn)
	assert.Equal(t, before.Breaks, after.Breaks)
	assert.Equal(t, before.TotalBreakMinutes, after.TotalBreakMinutes)
	assert.Equal(t, string(attendance.StateWorking), after.State)
	assert.Equal(t, before.Status, after.Status)
}

func TestAttendanceService_CancelClockOut_DiscardsClockOutValues(t *testing.T) {
	ctx := context.Background()
	svc, clock, _ := newTestService(memory.NewAttendanceRepository())

	_, err := svc.ClockIn(ctx, attendance.ClockInRequest{EmployeeID: testEmployeeID, BreakMinutes: intPtr(60), Notes: strPtr("in")})
	require.NoError(t, err)

	clock.Set(at(11, 18, 0))
	out, err := svc.ClockOut(ctx, attendance.ClockOutRequest{EmployeeID: testEmployeeID, BreakMinutes: intPtr(0), Notes: strPtr("oops")})
	require.NoError(t, err)
	assert.Equal(t, 540, out.WorkedMinutes)
	assert.Equal(t, 60, out.DeclaredBreakMinutes)
	require.NotNil(t, out.ClockOutBreakMinutes)
	assert.Equal(t, 0, *out.ClockOutBreakMinutes)
	require.NotNil(t, out.ClockOutNotes)
	assert.Equal(t, "oops", *out.ClockOutNotes)

	reopened, err := svc.CancelClockOut(ctx, attendance.CancelClockOutRequest{EmployeeID: testEmployeeID})
	require.NoError(t, err)
	assert.Equal(t, 60, reopened.DeclaredBreakMinutes)
	assert.Nil(t, reopened.ClockOutBreakMinutes)
	assert.Nil(t, reopened.ClockOutNotes)
	require.NotNil(t, reopened.Notes)
	assert.Equal(t, "in", *reopened.Notes)

	// the clock-in break applies again when the second clock-out declares none
	clock.Set(at(11, 18, 5))
	out, err = svc.ClockOut(ctx, attendance.ClockOutRequest{EmployeeID: testEmployeeID})
	require.NoError(t, err)
	assert.Equal(t, 485, out.WorkedMinutes)
	assert.Nil(t, out.ClockOutNotes)
	require.NotNil(t, out.Notes)
	assert.Equal(t, "in", *out.Notes)
}

func TestAttendanceService_CancelClockOut_Preconditions(t *testing.T) {
	ctx := context.Background()
	svc, clock, _ := newTestService(memory.NewAttendanceRepository())

	_, err := svc.CancelClockOut(ctx, attendance.CancelClockOutRequest{EmployeeID: testEmployeeID})
	assert.ErrorIs(t, err, attendance.ErrNotClockedOut)

	_, err = svc.ClockIn(ctx, attendance.ClockInRequest{EmployeeID: testEmployeeID})
	require.NoError(t, err)
	_, err = svc.CancelClockOut(ctx, attendance.CancelClockOutRequest{EmployeeID: testEmployeeID})
	assert.ErrorIs(t, err, attendance.ErrNotClockedOut)

	clock.Set(at(11, 18, 0))
	_, err = svc.ClockOut(ctx, attendance.ClockOutRequest{EmployeeID: testEmployeeID})
	require.NoError(t, err)

	// the next morning yesterday's clock-out can no longer be reverted
	clock.Set(at(12, 9, 0))
	_, err = svc.CancelClockOut(ctx, attendance.CancelClockOutRequest{EmployeeID: testEmployeeID})
	assert.ErrorIs(t, err, attendance.ErrCancelWindowClosed)
}

func TestAttendanceService_CancelClockOut_Window(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: at(11, 9, 0)}
	policy := testPolicy()
	policy.CancelWindow = 30 * time.Minute
	svc := NewAttendanceService(memory.NewAttendanceRepository(), policy, nil, clock.Now)

	_, err := svc.ClockIn(ctx, attendance.ClockInRequest{EmployeeID: testEmployeeID})
	require.NoError(t, err)
	clock.Set(at(11, 18, 0))
	_, err = svc.ClockOut(ctx, attendance.ClockOutRequest{EmployeeID: testEmployeeID})
	require.NoError(t, err)

	clock.Set(at(11, 18, 31))
	_, err = svc.CancelClockOut(ctx, attendance.CancelClockOutRequest{EmployeeID: testEmployeeID})
	assert.ErrorIs(t, err, attendance.ErrCancelWindowClosed)

	status, err := svc.GetStatus(ctx, testEmployeeID)
	require.NoError(t, err)
	assert.False(t, status.CanCancelClockOut)
}

// ===== CONCURRENCY RETRY =====

func TestAttendanceService_RetriesOnVersionConflict(t *testing.T) {
	ctx := context.Background()
	repo := &conflictingRepository{AttendanceRepository: memory.NewAttendanceRepository()}
	svc, clock, _ := newTestService(repo)

	_, err := svc.ClockIn(ctx, attendance.ClockInRequest{EmployeeID: testEmployeeID})
	require.NoError(t, err)

	repo.conflicts = maxWriteAttempts - 1
	clock.Set(at(11, 12, 0))
	resp, err := svc.StartBreak(ctx, attendance.BreakRequest{EmployeeID: testEmployeeID})
	require.NoError(t, err)
	assert.True(t, resp.IsOnBreak)

	repo.conflicts = maxWriteAttempts
	clock.Set(at(11, 12, 30))
	_, err = svc.EndBreak(ctx, attendance.BreakRequest{EmployeeID: testEmployeeID})
	assert.ErrorIs(t, err, attendance.ErrVersionConflict)

	today, err := svc.GetToday(ctx, testEmployeeID)
	require.NoError(t, err)
	require.NotNil(t, today)
	assert.True(t, today.IsOnBreak)
}

// ===== QUERIES =====

func seedMarch(t *testing.T, ctx context.Context, svc attendance.AttendanceService, clock *fakeClock, repo attendance.AttendanceRepository) {
	t.Helper()

	clock.Set(at(11, 9, 0))
	_, err := svc.ClockIn(ctx, attendance.ClockInRequest{EmployeeID: testEmployeeID})
	require.NoError(t, err)
	clock.Set(at(11, 18, 0))
	_, err = svc.ClockOut(ctx, attendance.ClockOutRequest{EmployeeID: testEmployeeID})
	require.NoError(t, err)

	clock.Set(at(12, 9, 15))
	_, err = svc.ClockIn(ctx, attendance.ClockInRequest{EmployeeID: testEmployeeID})
	require.NoError(t, err)
	clock.Set(at(12, 19, 0))
	_, err = svc.ClockOut(ctx, attendance.ClockOutRequest{EmployeeID: testEmployeeID})
	require.NoError(t, err)

	inserted, err := repo.CreateAbsences(ctx, []attendance.Attendance{{
		ID:         "0190a3c2-2222-7abc-8def-000000000013",
		EmployeeID: testEmployeeID,
		Date:       time.Date(2024, time.March, 13, 0, 0, 0, 0, time.UTC),
		Breaks:     []attendance.BreakInterval{},
		Status:     attendance.StatusAbsent,
	}})
	require.NoError(t, err)
	require.Equal(t, 1, inserted)

	clock.Set(time.Date(2024, time.April, 1, 9, 0, 0, 0, jst))
	_, err = svc.ClockIn(ctx, attendance.ClockInRequest{EmployeeID: testEmployeeID})
	require.NoError(t, err)
}

func TestAttendanceService_GetHistory(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewAttendanceRepository()
	svc, clock, _ := newTestService(repo)
	seedMarch(t, ctx, svc, clock, repo)

	all, err := svc.GetHistory(ctx, attendance.HistoryFilter{EmployeeID: testEmployeeID})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "2024-04-01", all[0].Date)

	year, month := 2024, 3
	march, err := svc.GetHistory(ctx, attendance.HistoryFilter{EmployeeID: testEmployeeID, Year: &year, Month: &month})
	require.NoError(t, err)
	require.Len(t, march, 3)
	assert.Equal(t, "2024-03-13", march[0].Date)
	assert.Equal(t, "2024-03-12", march[1].Date)
	assert.Equal(t, "2024-03-11", march[2].Date)
	assert.Equal(t, string(attendance.StatusAbsent), march[0].Status)

	other, err := svc.GetHistory(ctx, attendance.HistoryFilter{EmployeeID: "someone-else"})
	require.NoError(t, err)
	assert.Empty(t, other)

	_, err = svc.GetHistory(ctx, attendance.HistoryFilter{EmployeeID: testEmployeeID, Month: &month})
	var validationErrs validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrs)
	assert.Contains(t, validationErrs.ToMap(), "month")
}

func TestAttendanceService_GetMonthlySummary(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewAttendanceRepository()
	svc, clock, _ := newTestService(repo)
	seedMarch(t, ctx, svc, clock, repo)

	summary, err := svc.GetMonthlySummary(ctx, attendance.SummaryFilter{EmployeeID: testEmployeeID, Year: 2024, Month: 3})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.TotalWorkDays)
	assert.Equal(t, 480+525, summary.TotalWorkedMinutes)
	assert.Equal(t, 16.75, summary.TotalWorkHours)
	assert.Equal(t, 45, summary.TotalOvertimeMinutes)
	assert.Equal(t, 0.75, summary.TotalOvertimeHours)
	assert.Equal(t, 8.38, summary.AverageDailyHours)
	assert.Equal(t, 1, summary.StatusCounts[string(attendance.StatusPresent)])
	assert.Equal(t, 1, summary.StatusCounts[string(attendance.StatusLate)])
	assert.Equal(t, 1, summary.StatusCounts[string(attendance.StatusAbsent)])
	assert.Equal(t, 0, summary.StatusCounts[string(attendance.StatusHalfDay)])
	assert.Len(t, summary.Records, 3)

	empty, err := svc.GetMonthlySummary(ctx, attendance.SummaryFilter{EmployeeID: testEmployeeID, Year: 2024, Month: 5})
	require.NoError(t, err)
	assert.Equal(t, 0, empty.TotalWorkDays)
	assert.Equal(t, 0.0, empty.AverageDailyHours)

	_, err = svc.GetMonthlySummary(ctx, attendance.SummaryFilter{EmployeeID: testEmployeeID, Year: 2024})
	var validationErrs validator.ValidationErrors
	assert.ErrorAs(t, err, &validationErrs)
}

func TestAttendanceService_GetToday(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(memory.NewAttendanceRepository())

	today, err := svc.GetToday(ctx, testEmployeeID)
	require.NoError(t, err)
	assert.Nil(t, today)

	_, err = svc.ClockIn(ctx, attendance.ClockInRequest{EmployeeID: testEmployeeID})
	require.NoError(t, err)

	today, err = svc.GetToday(ctx, testEmployeeID)
	require.NoError(t, err)
	require.NotNil(t, today)
	assert.True(t, today.IsWorking)
	assert.Equal(t, 0, today.WorkedMinutes)
}

func TestAttendanceService_GetToday_LeaveMarkerReadsAsNone(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(memory.NewAttendanceRepository())

	_, err := svc.MarkHalfDayLeave(ctx, attendance.HalfDayLeaveRequest{EmployeeID: testEmployeeID, Date: "2024-03-11"})
	require.NoError(t, err)

	today, err := svc.GetToday(ctx, testEmployeeID)
	require.NoError(t, err)
	assert.Nil(t, today)

	_, err = svc.ClockIn(ctx, attendance.ClockInRequest{EmployeeID: testEmployeeID})
	require.NoError(t, err)

	today, err = svc.GetToday(ctx, testEmployeeID)
	require.NoError(t, err)
	require.NotNil(t, today)
	assert.True(t, today.HalfDayLeave)
	assert.True(t, today.IsClockedIn)
}

func TestAttendanceService_GetStatus(t *testing.T) {
	ctx := context.Background()
	svc, clock, _ := newTestService(memory.NewAttendanceRepository())

	status, err := svc.GetStatus(ctx, testEmployeeID)
	require.NoError(t, err)
	assert.Equal(t, string(attendance.StateNotClockedIn), status.State)
	assert.True(t, status.CanClockIn)
	assert.False(t, status.CanClockOut)
	assert.Nil(t, status.TodayAttendance)
	assert.Equal(t, "2024-03-11T00:00:00Z", status.ScheduleStart)
	assert.Equal(t, "2024-03-11T09:00:00Z", status.ScheduleEnd)

	_, err = svc.ClockIn(ctx, attendance.ClockInRequest{EmployeeID: testEmployeeID})
	require.NoError(t, err)
	status, err = svc.GetStatus(ctx, testEmployeeID)
	require.NoError(t, err)
	assert.Equal(t, string(attendance.StateWorking), status.State)
	assert.True(t, status.HasCheckedIn)
	assert.False(t, status.CanClockIn)
	assert.True(t, status.CanClockOut)
	assert.True(t, status.CanStartBreak)
	assert.False(t, status.CanEndBreak)

	clock.Set(at(11, 12, 0))
	_, err = svc.StartBreak(ctx, attendance.BreakRequest{EmployeeID: testEmployeeID})
	require.NoError(t, err)
	status, err = svc.GetStatus(ctx, testEmployeeID)
	require.NoError(t, err)
	assert.Equal(t, string(attendance.StateOnBreak), status.State)
	assert.False(t, status.CanClockOut)
	assert.True(t, status.CanEndBreak)

	_, err = svc.EndBreak(ctx, attendance.BreakRequest{EmployeeID: testEmployeeID})
	require.NoError(t, err)
	clock.Set(at(11, 18, 0))
	_, err = svc.ClockOut(ctx, attendance.ClockOutRequest{EmployeeID: testEmployeeID})
	require.NoError(t, err)
	status, err = svc.GetStatus(ctx, testEmployeeID)
	require.NoError(t, err)
	assert.Equal(t, string(attendance.StateClockedOut), status.State)
	assert.True(t, status.CanCancelClockOut)
	require.NotNil(t, status.TodayAttendance)
	assert.True(t, status.TodayAttendance.IsClockedOut)
}

func TestAttendanceService_MarkHalfDayLeave_Validation(t *testing.T) {
	ctx := context.Background()
	svc, _, publisher := newTestService(memory.NewAttendanceRepository())

	_, err := svc.MarkHalfDayLeave(ctx, attendance.HalfDayLeaveRequest{EmployeeID: testEmployeeID, Date: "11/03/2024"})
	var validationErrs validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrs)
	assert.Contains(t, validationErrs.ToMap(), "date")
	assert.Equal(t, 0, publisher.Count())

	resp, err := svc.MarkHalfDayLeave(ctx, attendance.HalfDayLeaveRequest{EmployeeID: testEmployeeID, Date: "2024-03-11"})
	require.NoError(t, err)
	assert.True(t, resp.HalfDayLeave)
	assert.False(t, resp.IsClockedIn)
	assert.Equal(t, string(attendance.StatusHalfDay), resp.Status)
	assert.Equal(t, 1, publisher.Count())
}

func TestAttendanceService_MarkHalfDayLeave_ExistingClockIn(t *testing.T) {
	ctx := context.Background()
	svc, clock, _ := newTestService(memory.NewAttendanceRepository())

	clock.Set(at(11, 9, 30))
	in, err := svc.ClockIn(ctx, attendance.ClockInRequest{EmployeeID: testEmployeeID})
	require.NoError(t, err)
	require.Equal(t, string(attendance.StatusLate), in.Status)

	resp, err := svc.MarkHalfDayLeave(ctx, attendance.HalfDayLeaveRequest{EmployeeID: testEmployeeID, Date: "2024-03-11"})
	require.NoError(t, err)
	assert.Equal(t, in.ID, resp.ID)
	assert.Equal(t, in.ClockIn, resp.ClockIn)
	assert.True(t, resp.HalfDayLeave)
	assert.True(t, resp.IsWorking)
	assert.Equal(t, string(attendance.StatusHalfDay), resp.Status)
}

func TestAttendanceService_MarkHalfDayLeave_PastDateWithoutClockIn(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(memory.NewAttendanceRepository())

	// the previous Friday, marked on Monday
	resp, err := svc.MarkHalfDayLeave(ctx, attendance.HalfDayLeaveRequest{EmployeeID: testEmployeeID, Date: "2024-03-08"})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-08", resp.Date)
	assert.True(t, resp.HalfDayLeave)
	assert.Nil(t, resp.ClockIn)
	assert.Equal(t, string(attendance.StatusAbsent), resp.Status)
}

// collidingRepository never sees a record on read but always loses the insert.
type collidingRepository struct {
	attendance.AttendanceRepository
}

func (collidingRepository) GetByEmployeeAndDate(context.Context, string, time.Time) (*attendance.Attendance, error) {
	return nil, nil
}

func (collidingRepository) Create(context.Context, attendance.Attendance) (attendance.Attendance, error) {
	return attendance.Attendance{}, attendance.ErrRecordExists
}

func TestAttendanceService_MarkHalfDayLeave_PersistentCollision(t *testing.T) {
	ctx := context.Background()
	svc, _, publisher := newTestService(collidingRepository{AttendanceRepository: memory.NewAttendanceRepository()})

	_, err := svc.MarkHalfDayLeave(ctx, attendance.HalfDayLeaveRequest{EmployeeID: testEmployeeID, Date: "2024-03-11"})
	assert.ErrorIs(t, err, attendance.ErrVersionConflict)
	assert.NotErrorIs(t, err, attendance.ErrRecordExists)
	assert.NotErrorIs(t, err, attendance.ErrAlreadyClockedIn)
	assert.Equal(t, 0, publisher.Count())
}

func TestAttendanceService_RejectsInvalidRequests(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(memory.NewAttendanceRepository())

	_, err := svc.ClockIn(ctx, attendance.ClockInRequest{})
	var validationErrs validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrs)
	assert.Contains(t, validationErrs.ToMap(), "employee_id")

	_, err = svc.ClockIn(ctx, attendance.ClockInRequest{EmployeeID: testEmployeeID, BreakMinutes: intPtr(-5)})
	require.ErrorAs(t, err, &validationErrs)
	assert.Contains(t, validationErrs.ToMap(), "break_minutes")
}
