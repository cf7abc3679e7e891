package inmemdb

import (
	"context"

	"github.com/akcent-academy/crm/core/attendance"
)

type recordRepository struct {
	db *recordTable
}

func NewRecordRepository(db *DB) attendance.Repository {
	return &recordRepository{db: db.record}
}

func (repo *recordRepository) GetRecord(_ context.Context, key attendance.RecordKey) (attendance.MonthlyRecord, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	rec, ok := repo.db.t[key]
	if !ok {
		return attendance.MonthlyRecord{}, attendance.ErrRecordNotFound
	}
	return copyRecord(*rec), nil
}

func (repo *recordRepository) CreateRecord(_ context.Context, rec attendance.MonthlyRecord) (bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	key := rec.Key()
	if _, exists := repo.db.t[key]; exists {
		return false, nil
	}
	stored := copyRecord(rec)
	stored.RecordExists = true
	repo.db.t[key] = &stored
	return true, nil
}

func (repo *recordRepository) MergeStudents(_ context.Context, key attendance.RecordKey, active []attendance.StudentEntry, updatedAt int64) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	rec, ok := repo.db.t[key]
	if !ok {
		return attendance.ErrRecordNotFound
	}
	for _, a := range active {
		if s := findStudent(rec, a.StudentID); s != nil {
			s.StudentName = a.StudentName
			s.GroupID = a.GroupID
			s.GroupName = a.GroupName
			s.GroupInfo = copyGroupInfo(a.GroupInfo)
			continue
		}
		rec.Students = append(rec.Students, copyEntry(a))
	}
	rec.Metadata.TotalStudents = len(rec.Students)
	rec.Metadata.ActiveStudents = len(active)
	rec.Metadata.UpdatedAt = updatedAt
	return nil
}

func (repo *recordRepository) SetMark(_ context.Context, key attendance.RecordKey, studentID string, day int, status *attendance.Status, updatedAt int64) (attendance.StudentEntry, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	rec, ok := repo.db.t[key]
	if !ok {
		return attendance.StudentEntry{}, attendance.ErrRecordNotFound
	}
	s := findStudent(rec, studentID)
	if s == nil {
		return attendance.StudentEntry{}, attendance.ErrStudentNotFound
	}

	if s.Attendance == nil {
		s.Attendance = make(map[string]attendance.Status)
	}
	if status == nil {
		delete(s.Attendance, attendance.DayKey(day))
	} else {
		s.Attendance[attendance.DayKey(day)] = *status
	}
	rec.Metadata.UpdatedAt = updatedAt
	return copyEntry(*s), nil
}

func (repo *recordRepository) FillUnsetMarks(_ context.Context, key attendance.RecordKey, groupIDs []string, day int, status attendance.Status, updatedAt int64) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	rec, ok := repo.db.t[key]
	if !ok {
		return 0, attendance.ErrRecordNotFound
	}

	groups := make(map[string]bool, len(groupIDs))
	for _, id := range groupIDs {
		groups[id] = true
	}
	dk := attendance.DayKey(day)

	var n int
	for i := range rec.Students {
		s := &rec.Students[i]
		if !groups[s.GroupID] {
			continue
		}
		if _, set := s.Attendance[dk]; set {
			continue
		}
		if s.Attendance == nil {
			s.Attendance = make(map[string]attendance.Status)
		}
		s.Attendance[dk] = status
		n++
	}
	if n > 0 {
		rec.Metadata.UpdatedAt = updatedAt
	}
	return n, nil
}

func findStudent(rec *attendance.MonthlyRecord, id string) *attendance.StudentEntry {
	for i := range rec.Students {
		if rec.Students[i].StudentID == id {
			return &rec.Students[i]
		}
	}
	return nil
}

func copyRecord(rec attendance.MonthlyRecord) attendance.MonthlyRecord {
	students := make([]attendance.StudentEntry, 0, len(rec.Students))
	for _, s := range rec.Students {
		students = append(students, copyEntry(s))
	}
	rec.Students = students
	return rec
}

func copyEntry(e attendance.StudentEntry) attendance.StudentEntry {
	att := make(map[string]attendance.Status, len(e.Attendance))
	for k, v := range e.Attendance {
		att[k] = v
	}
	e.Attendance = att
	e.GroupInfo = copyGroupInfo(e.GroupInfo)
	e.AvailableDays = nil // derived on read
	return e
}

func copyGroupInfo(info *attendance.GroupInfo) *attendance.GroupInfo {
	if info == nil {
		return nil
	}
	cp := *info
	return &cp
}
