package attendance_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akcent-academy/crm/core/attendance"
	notifysvc "github.com/akcent-academy/crm/services/notify"
	inmemdb "github.com/akcent-academy/crm/storage/database/inmem"
	testutil "github.com/akcent-academy/crm/tests"
)

// 2025-05-05 is a Monday.
func monday(hour, min int) time.Time {
	return time.Date(2025, time.May, 5, hour, min, 0, 0, testutil.Zone)
}

func newAutoMarker(db *inmemdb.DB, repo attendance.Repository, groups attendance.GroupDirectory) (*attendance.AutoMarker, *attendance.RecordStore, *testutil.Logger, *notifysvc.ConsoleServiceMock) {
	logger := &testutil.Logger{}
	if repo == nil {
		repo = inmemdb.NewRecordRepository(db)
	}
	if groups == nil {
		groups = inmemdb.NewGroupRepository(db)
	}
	clk := testutil.NewClock(2025, time.May, 5, 22, 0)
	store := attendance.NewRecordStore(repo, inmemdb.NewRosterRepository(db), clk, logger)
	notifier := notifysvc.NewConsoleServiceMock()
	m := attendance.NewAutoMarker(store, groups, clk, logger, time.Sunday, notifier, "+7 701 000 00 00")
	return m, store, logger, notifier
}

func TestAutoMarker_scenario(t *testing.T) {
	ctx := context.Background()
	db := inmemdb.Open()
	testutil.AddGroup(db, "T", "G", testutil.Slots("monday 09:00-10:30"), "s1", "s2")
	testutil.AddGroup(db, "T", "evening", testutil.Slots("monday 21:00-22:30"), "s3")
	m, store, logger, notifier := newAutoMarker(db, nil, nil)
	key := attendance.NewRecordKey("T", 2025, 5)

	_, err := store.GetOrCreate(ctx, key)
	require.NoError(t, err)
	_, err = store.SetAttendance(ctx, key, "s1", 5, statusPtr(attendance.StatusLate))
	require.NoError(t, err)

	sum := m.Run(ctx)
	assert.False(t, sum.Skipped)
	assert.NoError(t, sum.Err)
	assert.Equal(t, 1, sum.Groups)
	assert.Equal(t, 1, sum.Teachers)
	assert.Equal(t, 1, sum.Marked)
	assert.NotEmpty(t, sum.RunID)

	rec, err := store.Ensure(ctx, key)
	require.NoError(t, err)
	for id, want := range map[string]string{"s1": "late", "s2": "present", "s3": ""} {
		s, ok := rec.Student(id)
		require.True(t, ok, id)
		assert.Equal(t, want, string(s.Attendance["5"]), id)
	}
	assert.True(t, logger.Contains("teacher T: auto-marked 1 students"))

	sent := notifier.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "77010000000", sent[0].Number)
	assert.Contains(t, sent[0].Text, "1 marked present")

	// a second run has nothing left to do
	sum = m.Run(ctx)
	assert.Equal(t, 0, sum.Marked)
	assert.True(t, logger.Contains("teacher T: no changes needed"))
}

func TestAutoMarker_createsMissingRecord(t *testing.T) {
	ctx := context.Background()
	db := inmemdb.Open()
	testutil.AddGroup(db, "T1", "g1", testutil.Slots("monday,thursday 09:00-10:30"), "aida", "bolat")
	testutil.AddGroup(db, "T1", "g2", testutil.Slots("tuesday 09:00-10:30"), "dana")
	m, store, _, _ := newAutoMarker(db, nil, nil)

	sum := m.RunAt(ctx, monday(22, 0))
	assert.Equal(t, 2, sum.Marked)

	rec, err := store.Ensure(ctx, attendance.NewRecordKey("T1", 2025, 5))
	require.NoError(t, err)
	assert.True(t, rec.RecordExists)
	dana, _ := rec.Student("dana")
	assert.Empty(t, dana.Attendance)
}

func TestAutoMarker_restDay(t *testing.T) {
	ctx := context.Background()
	db := inmemdb.Open()
	testutil.AddGroup(db, "T1", "g1", testutil.Slots("sunday 09:00-10:30"), "aida")
	m, _, _, notifier := newAutoMarker(db, nil, nil)

	sum := m.RunAt(ctx, time.Date(2025, time.May, 4, 22, 0, 0, 0, testutil.Zone))
	assert.True(t, sum.Skipped)

	_, err := inmemdb.NewRecordRepository(db).GetRecord(ctx, attendance.NewRecordKey("T1", 2025, 5))
	assert.Equal(t, attendance.ErrRecordNotFound, err, "no writes on the rest day")
	assert.Empty(t, notifier.SentMessages())
}

func TestAutoMarker_beforeLessonEnd(t *testing.T) {
	ctx := context.Background()
	db := inmemdb.Open()
	testutil.AddGroup(db, "T1", "g1", testutil.Slots("monday 13:00-14:00"), "aida")
	m, _, _, _ := newAutoMarker(db, nil, nil)

	sum := m.RunAt(ctx, time.Date(2025, time.May, 5, 13, 59, 59, 0, testutil.Zone))
	assert.Equal(t, 0, sum.Groups)
	sum = m.RunAt(ctx, monday(14, 0))
	assert.Equal(t, 1, sum.Marked)
}

// failingRepo fails every write of one teacher's records.
type failingRepo struct {
	attendance.Repository
	teacherID string
	panics    bool
}

func (r failingRepo) FillUnsetMarks(ctx context.Context, key attendance.RecordKey, groupIDs []string, day int, status attendance.Status, updatedAt int64) (int, error) {
	if key.TeacherID == r.teacherID {
		if r.panics {
			panic("boom")
		}
		return 0, errors.New("store unavailable")
	}
	return r.Repository.FillUnsetMarks(ctx, key, groupIDs, day, status, updatedAt)
}

func TestAutoMarker_teacherFailure(t *testing.T) {
	for _, panics := range []bool{false, true} {
		ctx := context.Background()
		db := inmemdb.Open()
		testutil.AddGroup(db, "A", "ga", testutil.Slots("monday 09:00-10:30"), "aida")
		testutil.AddGroup(db, "B", "gb", testutil.Slots("monday 09:00-10:30"), "bolat")
		repo := failingRepo{Repository: inmemdb.NewRecordRepository(db), teacherID: "A", panics: panics}
		m, _, logger, notifier := newAutoMarker(db, repo, nil)

		sum := m.RunAt(ctx, monday(22, 0))
		assert.Equal(t, 2, sum.Teachers)
		assert.Equal(t, 1, sum.Marked, "teacher B is still processed")
		require.Len(t, sum.Failed, 1)
		assert.Equal(t, "A", sum.Failed[0].TeacherID)
		assert.True(t, logger.Contains("teacher A"))
		require.Len(t, notifier.SentMessages(), 1)
		assert.Contains(t, notifier.SentMessages()[0].Text, "1 failed (A)")
	}
}

type brokenDirectory struct{}

func (brokenDirectory) ListGroups(context.Context) ([]attendance.Group, error) {
	return nil, errors.New("directory down")
}

func TestAutoMarker_groupsUnavailable(t *testing.T) {
	m, _, logger, _ := newAutoMarker(inmemdb.Open(), nil, brokenDirectory{})
	sum := m.RunAt(context.Background(), monday(22, 0))
	assert.Error(t, sum.Err)
	assert.True(t, logger.Contains("directory down"))
}

func TestAutoMarker_groupWithoutTeacher(t *testing.T) {
	db := inmemdb.Open()
	db.PutGroup(attendance.Group{ID: "orphan", Schedule: testutil.Slots("monday 09:00-10:00")})
	m, _, _, _ := newAutoMarker(db, nil, nil)
	sum := m.RunAt(context.Background(), monday(22, 0))
	assert.Equal(t, 0, sum.Groups)
	assert.Empty(t, sum.Failed)
}
