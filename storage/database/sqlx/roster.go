package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/akcent-academy/crm/core/attendance"
	"github.com/akcent-academy/crm/core/schedule"
)

type rosterRepository struct {
	db *sqlx.DB
}

func NewRosterRepository(db *sqlx.DB) attendance.RosterProvider {
	return &rosterRepository{db: db}
}

type rosterRow struct {
	ID        string      `db:"id"`
	FullName  string      `db:"full_name"`
	TeacherID string      `db:"teacher_id"`
	GroupID   null.String `db:"group_id"`
	GroupName null.String `db:"group_name"`
}

func (repo *rosterRepository) ActiveStudents(ctx context.Context, teacherID string) ([]attendance.RosterStudent, error) {
	var rows []rosterRow
	q := `SELECT s.id, s.full_name, s.teacher_id, s.group_id, g.name AS group_name
		FROM students s LEFT JOIN groups g ON g.id = s.group_id
		WHERE s.teacher_id = $1 AND s.is_active
		ORDER BY s.id`
	if err := repo.db.SelectContext(ctx, &rows, q, teacherID); err != nil {
		return nil, errors.Wrap(err, "selecting active students")
	}

	roster := make([]attendance.RosterStudent, 0, len(rows))
	for _, r := range rows {
		st := attendance.RosterStudent{ID: r.ID, FullName: r.FullName, GroupID: r.GroupID.String}
		if r.GroupName.Valid {
			st.GroupInfo = &attendance.GroupInfo{ID: r.GroupID.String, Name: r.GroupName.String, TeacherID: r.TeacherID}
		}
		roster = append(roster, st)
	}
	return roster, nil
}

type groupRepository struct {
	db *sqlx.DB
}

func NewGroupRepository(db *sqlx.DB) attendance.GroupDirectory {
	return &groupRepository{db: db}
}

type groupRow struct {
	ID        string      `db:"id"`
	TeacherID string      `db:"teacher_id"`
	Name      string      `db:"name"`
	Schedule  null.JSON   `db:"schedule"`
	Days      null.JSON   `db:"days"`
	StartTime null.String `db:"start_time"`
	EndTime   null.String `db:"end_time"`
}

func (repo *groupRepository) ListGroups(ctx context.Context) ([]attendance.Group, error) {
	var rows []groupRow
	if err := repo.db.SelectContext(ctx, &rows, "SELECT * FROM groups ORDER BY id"); err != nil {
		return nil, errors.Wrap(err, "selecting groups")
	}

	groups := make([]attendance.Group, 0, len(rows))
	for _, r := range rows {
		name := r.Name
		if name == "" {
			name = r.ID
		}
		groups = append(groups, attendance.Group{
			ID:        r.ID,
			TeacherID: r.TeacherID,
			Name:      name,
			Schedule:  schedule.Parse(r.rawSchedule()),
		})
	}
	return groups, nil
}

// rawSchedule decodes both schedule shapes. Undecodable columns count as absent.
func (r groupRow) rawSchedule() schedule.RawGroupSchedule {
	var raw schedule.RawGroupSchedule
	if r.Schedule.Valid {
		raw.Schedule, _ = schedule.ParseSlotListJSON(r.Schedule.JSON)
	}
	if r.Days.Valid {
		raw.Days, _ = schedule.ParseDaysJSON(r.Days.JSON)
	}
	raw.StartTime = r.StartTime.Ptr()
	raw.EndTime = r.EndTime.Ptr()
	return raw
}

// Seeding helpers.

// PutGroup inserts or replaces a group. schedule and days are raw JSON, nil for NULL.
func PutGroup(ctx context.Context, db *sqlx.DB, id, teacherID, name string, sched, days []byte, start, end *string) error {
	q := `INSERT INTO groups (id, teacher_id, name, schedule, days, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET teacher_id = EXCLUDED.teacher_id, name = EXCLUDED.name,
		schedule = EXCLUDED.schedule, days = EXCLUDED.days, start_time = EXCLUDED.start_time, end_time = EXCLUDED.end_time`
	_, err := db.ExecContext(ctx, q, id, teacherID, name, nullJSON(sched), nullJSON(days), null.StringFromPtr(start), null.StringFromPtr(end))
	return errors.Wrap(err, "upserting group")
}

// PutStudent inserts or replaces a student.
func PutStudent(ctx context.Context, db *sqlx.DB, id, fullName, teacherID, groupID string, active bool) error {
	q := `INSERT INTO students (id, full_name, teacher_id, group_id, is_active) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET full_name = EXCLUDED.full_name, teacher_id = EXCLUDED.teacher_id,
		group_id = EXCLUDED.group_id, is_active = EXCLUDED.is_active`
	_, err := db.ExecContext(ctx, q, id, fullName, teacherID, null.NewString(groupID, groupID != ""), active)
	return errors.Wrap(err, "upserting student")
}

func nullJSON(b []byte) null.JSON {
	if b == nil {
		return null.JSON{}
	}
	return null.JSONFrom(b)
}
