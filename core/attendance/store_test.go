package attendance_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akcent-academy/crm/core"
	"github.com/akcent-academy/crm/core/attendance"
	inmemdb "github.com/akcent-academy/crm/storage/database/inmem"
	testutil "github.com/akcent-academy/crm/tests"
)

func newStore(db *inmemdb.DB, repo attendance.Repository) (*attendance.RecordStore, *testutil.Logger) {
	logger := &testutil.Logger{}
	if repo == nil {
		repo = inmemdb.NewRecordRepository(db)
	}
	clk := testutil.NewClock(2025, time.February, 3, 12, 0)
	return attendance.NewRecordStore(repo, inmemdb.NewRosterRepository(db), clk, logger), logger
}

func statusPtr(s attendance.Status) *attendance.Status { return &s }

func TestRecordStore_GetOrCreate(t *testing.T) {
	ctx := context.Background()
	db := inmemdb.Open()
	testutil.AddGroup(db, "T1", "g1", testutil.Slots("monday 09:00-10:30"), "aida", "bolat")
	store, logger := newStore(db, nil)
	key := attendance.NewRecordKey("T1", 2025, 2)

	fresh, err := store.GetOrCreate(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 28, fresh.DaysInMonth)
	assert.False(t, fresh.RecordExists)
	assert.True(t, fresh.WithActivityPeriods)
	require.Len(t, fresh.Students, 2)
	for _, s := range fresh.Students {
		assert.Empty(t, s.Attendance)
		assert.Len(t, s.AvailableDays, 28)
		assert.Equal(t, "Group g1", s.GroupName)
	}
	assert.True(t, logger.Contains("created monthly record T1|2025|2"))

	again, err := store.GetOrCreate(ctx, key)
	require.NoError(t, err)
	assert.True(t, again.RecordExists)
	assert.Equal(t, fresh.Students, again.Students)
	assert.Equal(t, fresh.Metadata.CreatedAt, again.Metadata.CreatedAt)
	assert.Equal(t, 2, again.Metadata.TotalStudents)
}

func TestRecordStore_GetOrCreate_keepsHistory(t *testing.T) {
	ctx := context.Background()
	db := inmemdb.Open()
	testutil.AddGroup(db, "T1", "g1", testutil.Slots("monday 09:00-10:30"), "aida", "bolat")
	store, _ := newStore(db, nil)
	key := attendance.NewRecordKey("T1", 2025, 2)

	_, err := store.GetOrCreate(ctx, key)
	require.NoError(t, err)
	_, err = store.SetAttendance(ctx, key, "bolat", 3, statusPtr(attendance.StatusAbsent))
	require.NoError(t, err)

	db.DeactivateStudent("bolat")
	testutil.AddGroup(db, "T1", "g2", testutil.Slots("friday 18:00-19:00"), "dana")

	rec, err := store.GetOrCreate(ctx, key)
	require.NoError(t, err)
	require.Len(t, rec.Students, 3)
	assert.Equal(t, 3, rec.Metadata.TotalStudents)
	assert.Equal(t, 2, rec.Metadata.ActiveStudents)

	bolat, ok := rec.Student("bolat")
	require.True(t, ok)
	mark, ok := bolat.Mark(3)
	assert.True(t, ok)
	assert.Equal(t, attendance.StatusAbsent, mark)

	// the merge was persisted
	persisted, err := inmemdb.NewRecordRepository(db).GetRecord(ctx, key)
	require.NoError(t, err)
	assert.Len(t, persisted.Students, 3)
	assert.Equal(t, 2, persisted.Metadata.ActiveStudents)
}

// racingRepo lets another writer create the record right before our conditional create.
type racingRepo struct {
	attendance.Repository
	once  sync.Once
	other attendance.MonthlyRecord
}

func (r *racingRepo) CreateRecord(ctx context.Context, rec attendance.MonthlyRecord) (bool, error) {
	r.once.Do(func() { _, _ = r.Repository.CreateRecord(ctx, r.other) })
	return r.Repository.CreateRecord(ctx, rec)
}

func TestRecordStore_GetOrCreate_lostRace(t *testing.T) {
	ctx := context.Background()
	db := inmemdb.Open()
	testutil.AddGroup(db, "T1", "g1", testutil.Slots("monday 09:00-10:30"), "aida", "bolat")
	key := attendance.NewRecordKey("T1", 2025, 2)

	other := attendance.NewRecord(key, []attendance.RosterStudent{{ID: "aida", FullName: "Aida", GroupID: "g1"}}, time.Date(2025, 2, 1, 8, 0, 0, 0, testutil.Zone))
	other.Students[0].Attendance["1"] = attendance.StatusLate
	repo := &racingRepo{Repository: inmemdb.NewRecordRepository(db), other: other}
	store, _ := newStore(db, repo)

	for _, op := range []func(context.Context, attendance.RecordKey) (attendance.MonthlyRecord, error){store.GetOrCreate, store.Ensure} {
		rec, err := op(ctx, key)
		require.NoError(t, err)
		assert.True(t, rec.RecordExists)
		assert.Equal(t, other.Metadata.CreatedAt, rec.Metadata.CreatedAt)
		aida, ok := rec.Student("aida")
		require.True(t, ok)
		assert.Equal(t, attendance.StatusLate, aida.Attendance["1"])
	}
}

func TestRecordStore_Ensure_doesNotReconcile(t *testing.T) {
	ctx := context.Background()
	db := inmemdb.Open()
	testutil.AddGroup(db, "T1", "g1", testutil.Slots("monday 09:00-10:30"), "aida")
	store, _ := newStore(db, nil)
	key := attendance.NewRecordKey("T1", 2025, 2)

	rec, err := store.Ensure(ctx, key)
	require.NoError(t, err)
	assert.False(t, rec.RecordExists)
	assert.Len(t, rec.Students, 1)

	testutil.AddGroup(db, "T1", "g2", testutil.Slots("monday 11:00-12:00"), "dana")
	rec, err = store.Ensure(ctx, key)
	require.NoError(t, err)
	assert.True(t, rec.RecordExists)
	assert.Len(t, rec.Students, 1)
	assert.Len(t, rec.Students[0].AvailableDays, 28)
}

func TestRecordStore_SetAttendance(t *testing.T) {
	ctx := context.Background()
	db := inmemdb.Open()
	testutil.AddGroup(db, "T1", "g1", testutil.Slots("monday 09:00-10:30"), "aida")
	store, _ := newStore(db, nil)
	key := attendance.NewRecordKey("T1", 2025, 2)

	_, err := store.SetAttendance(ctx, key, "aida", 3, statusPtr(attendance.StatusPresent))
	assert.Equal(t, attendance.ErrRecordNotFound, err, "never creates the record")

	_, err = store.GetOrCreate(ctx, key)
	require.NoError(t, err)

	entry, err := store.SetAttendance(ctx, key, "aida", 3, statusPtr(attendance.StatusLate))
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusLate, entry.Attendance["3"])

	entry, err = store.SetAttendance(ctx, key, "aida", 3, nil)
	require.NoError(t, err)
	_, marked := entry.Attendance["3"]
	assert.False(t, marked)

	rec, err := store.Ensure(ctx, key)
	require.NoError(t, err)
	_, marked = rec.Students[0].Attendance["3"]
	assert.False(t, marked, "null removes the day key")

	_, err = store.SetAttendance(ctx, key, "ghost", 3, nil)
	assert.Equal(t, attendance.ErrStudentNotFound, err)

	for _, day := range []int{0, 29, 31} {
		_, err = store.SetAttendance(ctx, key, "aida", day, statusPtr(attendance.StatusPresent))
		var vErr *core.ValidationError
		assert.True(t, errors.As(err, &vErr), "day %d: %v", day, err)
	}

	_, err = store.SetAttendance(ctx, key, "aida", 3, statusPtr("sick"))
	var vErr *core.ValidationError
	assert.True(t, errors.As(err, &vErr))
}

func TestRecordStore_concurrentWrites(t *testing.T) {
	ctx := context.Background()
	db := inmemdb.Open()
	students := []string{"s1", "s2", "s3", "s4", "s5", "s6", "s7", "s8"}
	testutil.AddGroup(db, "T1", "g1", testutil.Slots("monday 09:00-10:30"), students...)
	store, _ := newStore(db, nil)
	key := attendance.NewRecordKey("T1", 2025, 2)

	_, err := store.GetOrCreate(ctx, key)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, id := range students {
		for day := 1; day <= 5; day++ {
			wg.Add(2)
			go func(id string, day int) {
				defer wg.Done()
				_, err := store.SetAttendance(ctx, key, id, day, statusPtr(attendance.StatusExcused))
				assert.NoError(t, err)
			}(id, day)
			go func() {
				defer wg.Done()
				_, err := store.GetOrCreate(ctx, key)
				assert.NoError(t, err)
			}()
		}
	}
	wg.Wait()

	rec, err := store.Ensure(ctx, key)
	require.NoError(t, err)
	require.Len(t, rec.Students, len(students))
	for _, s := range rec.Students {
		assert.Len(t, s.Attendance, 5, s.StudentID)
	}
}
