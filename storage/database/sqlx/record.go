package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/akcent-academy/crm/core/attendance"
)

const keyClause = "teacher_id = $1 AND year = $2 AND month = $3"

type (
	recordRow struct {
		TeacherID      string `db:"teacher_id"`
		Year           int    `db:"year"`
		Month          int    `db:"month"`
		TotalStudents  int    `db:"total_students"`
		ActiveStudents int    `db:"active_students"`
		SchemaVersion  int    `db:"schema_version"`
		CreatedAt      int64  `db:"created_at"`
		UpdatedAt      int64  `db:"updated_at"`
	}

	studentRow struct {
		TeacherID   string      `db:"teacher_id"`
		Year        int         `db:"year"`
		Month       int         `db:"month"`
		StudentID   string      `db:"student_id"`
		StudentName string      `db:"student_name"`
		GroupID     string      `db:"group_id"`
		GroupName   string      `db:"group_name"`
		GroupInfo   null.JSON   `db:"group_info"`
		StartDate   string      `db:"start_date"`
		StartYear   int         `db:"start_year"`
		StartMonth  int         `db:"start_month"`
		StartDay    int         `db:"start_day"`
		EndDate     null.String `db:"end_date"`
		EndYear     null.Int    `db:"end_year"`
		EndMonth    null.Int    `db:"end_month"`
		EndDay      null.Int    `db:"end_day"`
	}

	markRow struct {
		TeacherID string `db:"teacher_id"`
		Year      int    `db:"year"`
		Month     int    `db:"month"`
		StudentID string `db:"student_id"`
		Day       int    `db:"day"`
		Status    string `db:"status"`
	}
)

const (
	studentColumns = `teacher_id, year, month, student_id, student_name, group_id, group_name, group_info,
		start_date, start_year, start_month, start_day, end_date, end_year, end_month, end_day`

	insertRecordQuery = `INSERT INTO monthly_records
		(teacher_id, year, month, total_students, active_students, schema_version, created_at, updated_at)
		VALUES (:teacher_id, :year, :month, :total_students, :active_students, :schema_version, :created_at, :updated_at)
		ON CONFLICT DO NOTHING`

	insertStudentQuery = `INSERT INTO record_students (` + studentColumns + `)
		VALUES (:teacher_id, :year, :month, :student_id, :student_name, :group_id, :group_name, :group_info,
		:start_date, :start_year, :start_month, :start_day, :end_date, :end_year, :end_month, :end_day)`

	// only the live fields of an existing entry are refreshed
	upsertStudentQuery = insertStudentQuery + `
		ON CONFLICT (teacher_id, year, month, student_id) DO UPDATE SET
		student_name = EXCLUDED.student_name,
		group_id = EXCLUDED.group_id,
		group_name = EXCLUDED.group_name,
		group_info = EXCLUDED.group_info`

	insertMarkQuery = `INSERT INTO attendance_marks (teacher_id, year, month, student_id, day, status)
		VALUES (:teacher_id, :year, :month, :student_id, :day, :status)`
)

type recordRepository struct {
	db *sqlx.DB
}

func NewRecordRepository(db *sqlx.DB) attendance.Repository {
	return &recordRepository{db: db}
}

func keyArgs(key attendance.RecordKey) []interface{} {
	return []interface{}{key.TeacherID, key.Year, key.Month}
}

func (repo *recordRepository) GetRecord(ctx context.Context, key attendance.RecordKey) (attendance.MonthlyRecord, error) {
	tx, err := repo.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return attendance.MonthlyRecord{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	var rec recordRow
	if err = tx.GetContext(ctx, &rec, "SELECT * FROM monthly_records WHERE "+keyClause, keyArgs(key)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return attendance.MonthlyRecord{}, attendance.ErrRecordNotFound
		}
		return attendance.MonthlyRecord{}, errors.Wrap(err, "selecting record")
	}

	var students []studentRow
	q := "SELECT " + studentColumns + " FROM record_students WHERE " + keyClause + " ORDER BY seq"
	if err = tx.SelectContext(ctx, &students, q, keyArgs(key)...); err != nil {
		return attendance.MonthlyRecord{}, errors.Wrap(err, "selecting students")
	}

	var marks []markRow
	if err = tx.SelectContext(ctx, &marks, "SELECT * FROM attendance_marks WHERE "+keyClause, keyArgs(key)...); err != nil {
		return attendance.MonthlyRecord{}, errors.Wrap(err, "selecting marks")
	}

	return toRecord(rec, students, marks)
}

func (repo *recordRepository) CreateRecord(ctx context.Context, rec attendance.MonthlyRecord) (bool, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.NamedExecContext(ctx, insertRecordQuery, fromRecord(rec))
	if err != nil {
		return false, errors.Wrap(err, "inserting record")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "inserting record")
	}
	if n == 0 {
		return false, nil // already exists
	}

	key := rec.Key()
	for _, s := range rec.Students {
		row, err := fromEntry(key, s)
		if err != nil {
			return false, err
		}
		if _, err = tx.NamedExecContext(ctx, insertStudentQuery, row); err != nil {
			return false, errors.Wrapf(err, "inserting student %s", s.StudentID)
		}
		for day, st := range s.Attendance {
			mark := markRow{TeacherID: key.TeacherID, Year: key.Year, Month: key.Month, StudentID: s.StudentID, Status: string(st)}
			if mark.Day, err = strconv.Atoi(day); err != nil {
				continue
			}
			if _, err = tx.NamedExecContext(ctx, insertMarkQuery, mark); err != nil {
				return false, errors.Wrapf(err, "inserting mark of %s", s.StudentID)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return false, errors.Wrap(err, "committing record")
	}
	return true, nil
}

func (repo *recordRepository) MergeStudents(ctx context.Context, key attendance.RecordKey, active []attendance.StudentEntry, updatedAt int64) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if err = touchRecord(ctx, tx, key, updatedAt); err != nil {
		return err
	}

	for _, s := range active {
		row, err := fromEntry(key, s)
		if err != nil {
			return err
		}
		if _, err = tx.NamedExecContext(ctx, upsertStudentQuery, row); err != nil {
			return errors.Wrapf(err, "upserting student %s", s.StudentID)
		}
	}

	q := `UPDATE monthly_records SET
		total_students = (SELECT count(*) FROM record_students WHERE ` + keyClause + `),
		active_students = $4
		WHERE ` + keyClause
	if _, err = tx.ExecContext(ctx, q, key.TeacherID, key.Year, key.Month, len(active)); err != nil {
		return errors.Wrap(err, "updating counts")
	}

	return errors.Wrap(tx.Commit(), "committing merge")
}

func (repo *recordRepository) SetMark(ctx context.Context, key attendance.RecordKey, studentID string, day int, status *attendance.Status, updatedAt int64) (attendance.StudentEntry, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return attendance.StudentEntry{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err = tx.GetContext(ctx, &exists, "SELECT EXISTS (SELECT 1 FROM monthly_records WHERE "+keyClause+")", keyArgs(key)...); err != nil {
		return attendance.StudentEntry{}, errors.Wrap(err, "checking record")
	}
	if !exists {
		return attendance.StudentEntry{}, attendance.ErrRecordNotFound
	}

	var student studentRow
	q := "SELECT " + studentColumns + " FROM record_students WHERE " + keyClause + " AND student_id = $4"
	if err = tx.GetContext(ctx, &student, q, key.TeacherID, key.Year, key.Month, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return attendance.StudentEntry{}, attendance.ErrStudentNotFound
		}
		return attendance.StudentEntry{}, errors.Wrap(err, "selecting student")
	}

	if status == nil {
		q = "DELETE FROM attendance_marks WHERE " + keyClause + " AND student_id = $4 AND day = $5"
		if _, err = tx.ExecContext(ctx, q, key.TeacherID, key.Year, key.Month, studentID, day); err != nil {
			return attendance.StudentEntry{}, errors.Wrap(err, "deleting mark")
		}
	} else {
		mark := markRow{TeacherID: key.TeacherID, Year: key.Year, Month: key.Month, StudentID: studentID, Day: day, Status: string(*status)}
		q = insertMarkQuery + " ON CONFLICT (teacher_id, year, month, student_id, day) DO UPDATE SET status = EXCLUDED.status"
		if _, err = tx.NamedExecContext(ctx, q, mark); err != nil {
			return attendance.StudentEntry{}, errors.Wrap(err, "upserting mark")
		}
	}

	if err = touchRecord(ctx, tx, key, updatedAt); err != nil {
		return attendance.StudentEntry{}, err
	}

	var marks []markRow
	q = "SELECT * FROM attendance_marks WHERE " + keyClause + " AND student_id = $4"
	if err = tx.SelectContext(ctx, &marks, q, key.TeacherID, key.Year, key.Month, studentID); err != nil {
		return attendance.StudentEntry{}, errors.Wrap(err, "selecting marks")
	}

	entry, err := toEntry(student, marks)
	if err != nil {
		return attendance.StudentEntry{}, err
	}
	return entry, errors.Wrap(tx.Commit(), "committing mark")
}

func (repo *recordRepository) FillUnsetMarks(ctx context.Context, key attendance.RecordKey, groupIDs []string, day int, status attendance.Status, updatedAt int64) (int, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err = tx.GetContext(ctx, &exists, "SELECT EXISTS (SELECT 1 FROM monthly_records WHERE "+keyClause+")", keyArgs(key)...); err != nil {
		return 0, errors.Wrap(err, "checking record")
	}
	if !exists {
		return 0, attendance.ErrRecordNotFound
	}

	// explicit marks win: existing cells are left alone
	q := `INSERT INTO attendance_marks (teacher_id, year, month, student_id, day, status)
		SELECT teacher_id, year, month, student_id, $4::integer, $5::text FROM record_students
		WHERE ` + keyClause + ` AND group_id = ANY($6)
		ON CONFLICT (teacher_id, year, month, student_id, day) DO NOTHING`
	res, err := tx.ExecContext(ctx, q, key.TeacherID, key.Year, key.Month, day, string(status), pq.Array(groupIDs))
	if err != nil {
		return 0, errors.Wrap(err, "filling marks")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "filling marks")
	}

	if n > 0 {
		if err = touchRecord(ctx, tx, key, updatedAt); err != nil {
			return 0, err
		}
	}
	return int(n), errors.Wrap(tx.Commit(), "committing marks")
}

// touchRecord bumps updated_at, or fails with ErrRecordNotFound.
func touchRecord(ctx context.Context, tx *sqlx.Tx, key attendance.RecordKey, updatedAt int64) error {
	res, err := tx.ExecContext(ctx, "UPDATE monthly_records SET updated_at = $4 WHERE "+keyClause, key.TeacherID, key.Year, key.Month, updatedAt)
	if err != nil {
		return errors.Wrap(err, "touching record")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "touching record")
	}
	if n == 0 {
		return attendance.ErrRecordNotFound
	}
	return nil
}

func fromRecord(rec attendance.MonthlyRecord) recordRow {
	return recordRow{
		TeacherID:      rec.TeacherID,
		Year:           rec.Year,
		Month:          rec.Month,
		TotalStudents:  rec.Metadata.TotalStudents,
		ActiveStudents: rec.Metadata.ActiveStudents,
		SchemaVersion:  rec.Metadata.SchemaVersion,
		CreatedAt:      rec.Metadata.CreatedAt,
		UpdatedAt:      rec.Metadata.UpdatedAt,
	}
}

func fromEntry(key attendance.RecordKey, e attendance.StudentEntry) (studentRow, error) {
	row := studentRow{
		TeacherID:   key.TeacherID,
		Year:        key.Year,
		Month:       key.Month,
		StudentID:   e.StudentID,
		StudentName: e.StudentName,
		GroupID:     e.GroupID,
		GroupName:   e.GroupName,
		StartDate:   e.ActivityPeriod.StartDate,
		StartYear:   e.ActivityPeriod.StartYear,
		StartMonth:  e.ActivityPeriod.StartMonth,
		StartDay:    e.ActivityPeriod.StartDay,
		EndDate:     null.StringFromPtr(e.ActivityPeriod.EndDate),
		EndYear:     null.IntFromPtr(e.ActivityPeriod.EndYear),
		EndMonth:    null.IntFromPtr(e.ActivityPeriod.EndMonth),
		EndDay:      null.IntFromPtr(e.ActivityPeriod.EndDay),
	}
	if e.GroupInfo != nil {
		b, err := json.Marshal(e.GroupInfo)
		if err != nil {
			return studentRow{}, errors.Wrapf(err, "encoding group of %s", e.StudentID)
		}
		row.GroupInfo = null.JSONFrom(b)
	}
	return row, nil
}

func toEntry(row studentRow, marks []markRow) (attendance.StudentEntry, error) {
	e := attendance.StudentEntry{
		StudentID:   row.StudentID,
		StudentName: row.StudentName,
		GroupID:     row.GroupID,
		GroupName:   row.GroupName,
		Attendance:  make(map[string]attendance.Status, len(marks)),
		ActivityPeriod: attendance.ActivityPeriod{
			StartDate:  row.StartDate,
			StartYear:  row.StartYear,
			StartMonth: row.StartMonth,
			StartDay:   row.StartDay,
			EndDate:    row.EndDate.Ptr(),
			EndYear:    row.EndYear.Ptr(),
			EndMonth:   row.EndMonth.Ptr(),
			EndDay:     row.EndDay.Ptr(),
		},
	}
	if row.GroupInfo.Valid {
		e.GroupInfo = new(attendance.GroupInfo)
		if err := row.GroupInfo.Unmarshal(e.GroupInfo); err != nil {
			return attendance.StudentEntry{}, errors.Wrapf(err, "decoding group of %s", row.StudentID)
		}
	}
	for _, m := range marks {
		e.Attendance[attendance.DayKey(m.Day)] = attendance.Status(m.Status)
	}
	return e, nil
}

func toRecord(rec recordRow, students []studentRow, marks []markRow) (attendance.MonthlyRecord, error) {
	byStudent := make(map[string][]markRow)
	for _, m := range marks {
		byStudent[m.StudentID] = append(byStudent[m.StudentID], m)
	}

	entries := make([]attendance.StudentEntry, 0, len(students))
	for _, s := range students {
		e, err := toEntry(s, byStudent[s.StudentID])
		if err != nil {
			return attendance.MonthlyRecord{}, err
		}
		entries = append(entries, e)
	}

	return attendance.MonthlyRecord{
		TeacherID: rec.TeacherID,
		Year:      rec.Year,
		Month:     rec.Month,
		Students:  entries,
		Metadata: attendance.Metadata{
			TotalStudents:  rec.TotalStudents,
			ActiveStudents: rec.ActiveStudents,
			CreatedAt:      rec.CreatedAt,
			UpdatedAt:      rec.UpdatedAt,
			SchemaVersion:  rec.SchemaVersion,
		},
		RecordExists: true,
	}, nil
}
