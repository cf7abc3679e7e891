package sqlxrepos

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akcent-academy/crm/core/attendance"
	"github.com/akcent-academy/crm/core/schedule"
	"github.com/akcent-academy/crm/storage/database"
	testutil "github.com/akcent-academy/crm/tests"
)

// openTestDB connects to TEST_DATABASE_URL, migrates it and empties every table.
func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sqlx.Connect("postgres", url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(db.DB))
	_, err = db.Exec("TRUNCATE attendance_marks, record_students, monthly_records, students, groups")
	require.NoError(t, err)
	return db
}

func strp(s string) *string { return &s }

func TestGroupRepository(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	require.NoError(t, PutGroup(ctx, db, "g1", "T1", "A1", []byte(`[{"days":["Monday"],"startTime":"09:00","endTime":"10:30"}]`), nil, nil, nil))
	require.NoError(t, PutGroup(ctx, db, "g2", "T1", "", nil, []byte(`["tuesday"]`), strp("18:00"), strp("19:00")))
	require.NoError(t, PutGroup(ctx, db, "g3", "T2", "broken", []byte(`{"oops":true}`), nil, nil, nil))
	require.NoError(t, PutGroup(ctx, db, "g4", "T2", "mixed", []byte(`[{"days":"monday","endTime":"10:00"},{"days":["monday"],"startTime":{"h":9},"endTime":1000},{"days":["monday"],"endTime":"10:30"}]`), nil, nil, nil))

	groups, err := NewGroupRepository(db).ListGroups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 4)

	assert.Equal(t, schedule.KindSlotList, groups[0].Schedule.Kind)
	assert.Equal(t, schedule.KindSingleSlot, groups[1].Schedule.Kind)
	assert.Equal(t, "g2", groups[1].Name)
	assert.Equal(t, schedule.KindNone, groups[2].Schedule.Kind)

	// the malformed slots of g4 must not hide its valid one
	mondayNight := time.Date(2025, 5, 5, 22, 0, 0, 0, testutil.Zone)
	assert.Equal(t, schedule.KindSlotList, groups[3].Schedule.Kind)
	assert.Len(t, groups[3].Schedule.Slots, 2)
	assert.True(t, schedule.EndedToday(groups[3].Schedule, time.Monday, mondayNight))
}

func TestRecordRepository(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	require.NoError(t, PutGroup(ctx, db, "g1", "T1", "A1", nil, []byte(`["monday"]`), nil, strp("10:30")))
	require.NoError(t, PutStudent(ctx, db, "aida", "Aida", "T1", "g1", true))
	require.NoError(t, PutStudent(ctx, db, "bolat", "Bolat", "T1", "", true))
	require.NoError(t, PutStudent(ctx, db, "ghost", "Ghost", "T1", "g1", false))

	roster := NewRosterRepository(db)
	active, err := roster.ActiveStudents(ctx, "T1")
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "A1", active[0].GroupInfo.Name)
	assert.Nil(t, active[1].GroupInfo)

	repo := NewRecordRepository(db)
	key := attendance.NewRecordKey("T1", 2025, 2)
	now := time.Date(2025, 2, 3, 12, 0, 0, 0, testutil.Zone)

	_, err = repo.GetRecord(ctx, key)
	assert.Equal(t, attendance.ErrRecordNotFound, err)

	rec := attendance.NewRecord(key, active, now)
	created, err := repo.CreateRecord(ctx, rec)
	require.NoError(t, err)
	assert.True(t, created)
	created, err = repo.CreateRecord(ctx, rec)
	require.NoError(t, err)
	assert.False(t, created, "conditional create never overwrites")

	late := attendance.StatusLate
	entry, err := repo.SetMark(ctx, key, "aida", 3, &late, 1)
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusLate, entry.Attendance["3"])
	assert.Equal(t, "A1", entry.GroupInfo.Name)

	_, err = repo.SetMark(ctx, key, "nobody", 3, &late, 1)
	assert.Equal(t, attendance.ErrStudentNotFound, err)
	_, err = repo.SetMark(ctx, attendance.NewRecordKey("T1", 2025, 3), "aida", 3, &late, 1)
	assert.Equal(t, attendance.ErrRecordNotFound, err)

	n, err := repo.FillUnsetMarks(ctx, key, []string{"g1", ""}, 3, attendance.StatusPresent, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only bolat was unset")

	merged, _ := attendance.Reconcile(rec, []attendance.RosterStudent{{ID: "aida", FullName: "Aida K.", GroupID: "g1"}}, now)
	require.NoError(t, repo.MergeStudents(ctx, key, merged.Students[:1], 3))

	got, err := repo.GetRecord(ctx, key)
	require.NoError(t, err)
	require.Len(t, got.Students, 2)
	assert.Equal(t, "Aida K.", got.Students[0].StudentName)
	assert.Equal(t, attendance.StatusLate, got.Students[0].Attendance["3"])
	assert.Equal(t, attendance.StatusPresent, got.Students[1].Attendance["3"])
	assert.Equal(t, 2, got.Metadata.TotalStudents)
	assert.Equal(t, 1, got.Metadata.ActiveStudents)
	assert.Equal(t, int64(3), got.Metadata.UpdatedAt)
	assert.Equal(t, rec.Metadata.CreatedAt, got.Metadata.CreatedAt)
	assert.Nil(t, got.Students[0].ActivityPeriod.EndDate)

	entry, err = repo.SetMark(ctx, key, "aida", 3, nil, 4)
	require.NoError(t, err)
	_, marked := entry.Attendance["3"]
	assert.False(t, marked)
}
