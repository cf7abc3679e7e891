package attendance

import (
	"time"

	"github.com/akcent-academy/crm/core/clock"
)

// NewEntry builds the entry of a student joining a record at now.
func NewEntry(st RosterStudent, now time.Time, daysInMonth int) StudentEntry {
	return StudentEntry{
		StudentID:      st.ID,
		StudentName:    st.FullName,
		GroupID:        st.GroupID,
		GroupName:      groupName(st.GroupInfo),
		GroupInfo:      st.GroupInfo,
		Attendance:     map[string]Status{},
		ActivityPeriod: NewActivityPeriod(now),
		AvailableDays:  AvailableDays(daysInMonth),
	}
}

// NewRecord synthesizes a fresh record holding one empty entry per roster student.
func NewRecord(key RecordKey, roster []RosterStudent, now time.Time) MonthlyRecord {
	days := key.DaysInMonth()
	students := make([]StudentEntry, 0, len(roster))
	seen := make(map[string]bool, len(roster))
	for _, st := range roster {
		if seen[st.ID] {
			continue
		}
		seen[st.ID] = true
		students = append(students, NewEntry(st, now, days))
	}
	ts := clock.Millis(now)
	return MonthlyRecord{
		TeacherID:   key.TeacherID,
		Year:        key.Year,
		Month:       key.Month,
		Students:    students,
		DaysInMonth: days,
		Metadata: Metadata{
			TotalStudents:  len(students),
			ActiveStudents: len(students),
			CreatedAt:      ts,
			UpdatedAt:      ts,
			SchemaVersion:  SchemaVersion,
		},
		WithActivityPeriods: true,
	}
}

// Reconcile merges the live roster into a persisted record.
// Every persisted entry survives; entries of active students keep their attendance and
// activity period and get their name and group refreshed; new students are appended.
// It returns the merged record and the active entries to persist.
func Reconcile(persisted MonthlyRecord, roster []RosterStudent, now time.Time) (MonthlyRecord, []StudentEntry) {
	days := persisted.Key().DaysInMonth()

	students := make([]StudentEntry, 0, len(persisted.Students)+len(roster))
	index := make(map[string]int, len(persisted.Students))
	for _, s := range persisted.Students {
		if _, dup := index[s.StudentID]; dup {
			continue
		}
		s.Attendance = copyAttendance(s.Attendance)
		s.AvailableDays = AvailableDays(days)
		index[s.StudentID] = len(students)
		students = append(students, s)
	}

	active := make([]StudentEntry, 0, len(roster))
	seen := make(map[string]bool, len(roster))
	for _, st := range roster {
		if seen[st.ID] {
			continue
		}
		seen[st.ID] = true

		fresh := NewEntry(st, now, days)
		active = append(active, fresh)
		if i, ok := index[st.ID]; ok {
			students[i] = refresh(students[i], fresh)
			continue
		}
		index[st.ID] = len(students)
		students = append(students, fresh)
	}

	rec := persisted
	rec.Students = students
	rec.DaysInMonth = days
	rec.Metadata.TotalStudents = len(students)
	rec.Metadata.ActiveStudents = len(active)
	rec.Metadata.UpdatedAt = clock.Millis(now)
	if rec.Metadata.CreatedAt == 0 {
		rec.Metadata.CreatedAt = rec.Metadata.UpdatedAt
	}
	if rec.Metadata.SchemaVersion == 0 {
		rec.Metadata.SchemaVersion = SchemaVersion
	}
	rec.RecordExists = true
	rec.WithActivityPeriods = true
	return rec, active
}

// refresh copies the live fields of fresh onto an existing entry.
func refresh(existing, fresh StudentEntry) StudentEntry {
	existing.StudentName = fresh.StudentName
	existing.GroupID = fresh.GroupID
	existing.GroupName = fresh.GroupName
	existing.GroupInfo = fresh.GroupInfo
	existing.AvailableDays = fresh.AvailableDays
	if existing.ActivityPeriod.StartDate == "" {
		existing.ActivityPeriod = fresh.ActivityPeriod
	}
	return existing
}

func copyAttendance(src map[string]Status) map[string]Status {
	dst := make(map[string]Status, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// withDerivedFields fills the fields that are never persisted.
func withDerivedFields(rec MonthlyRecord, exists bool) MonthlyRecord {
	days := rec.Key().DaysInMonth()
	rec.DaysInMonth = days
	rec.RecordExists = exists
	rec.WithActivityPeriods = true
	if rec.Students == nil {
		rec.Students = []StudentEntry{}
	}
	for i := range rec.Students {
		rec.Students[i].AvailableDays = AvailableDays(days)
		if rec.Students[i].Attendance == nil {
			rec.Students[i].Attendance = map[string]Status{}
		}
	}
	return rec
}
