package inmemdb

import (
	"context"
	"sort"

	"github.com/akcent-academy/crm/core/attendance"
)

// Student is a row of the students table.
type Student struct {
	ID        string
	FullName  string
	TeacherID string
	GroupID   string
	GroupName string
	IsActive  bool
}

type rosterRepository struct {
	db *studentTable
}

func NewRosterRepository(db *DB) attendance.RosterProvider {
	return &rosterRepository{db: db.student}
}

func (repo *rosterRepository) ActiveStudents(_ context.Context, teacherID string) ([]attendance.RosterStudent, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	students := make([]Student, 0)
	for _, st := range repo.db.t {
		if st.IsActive && st.TeacherID == teacherID {
			students = append(students, *st)
		}
	}
	sort.Slice(students, func(i, j int) bool { return students[i].ID < students[j].ID })

	roster := make([]attendance.RosterStudent, 0, len(students))
	for _, st := range students {
		rs := attendance.RosterStudent{ID: st.ID, FullName: st.FullName, GroupID: st.GroupID}
		if st.GroupID != "" {
			rs.GroupInfo = &attendance.GroupInfo{ID: st.GroupID, Name: st.GroupName, TeacherID: st.TeacherID}
		}
		roster = append(roster, rs)
	}
	return roster, nil
}

// PutStudent inserts or replaces a student.
func (db *DB) PutStudent(st Student) {
	db.student.mutex.Lock()
	defer db.student.mutex.Unlock()
	db.student.t[st.ID] = &st
}

// DeactivateStudent takes a student off the roster, keeping the row.
func (db *DB) DeactivateStudent(id string) {
	db.student.mutex.Lock()
	defer db.student.mutex.Unlock()
	if st, ok := db.student.t[id]; ok {
		st.IsActive = false
	}
}

type groupRepository struct {
	db *groupTable
}

func NewGroupRepository(db *DB) attendance.GroupDirectory {
	return &groupRepository{db: db.group}
}

func (repo *groupRepository) ListGroups(context.Context) ([]attendance.Group, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	groups := make([]attendance.Group, 0, len(repo.db.t))
	for _, g := range repo.db.t {
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	return groups, nil
}

// PutGroup inserts or replaces a group.
func (db *DB) PutGroup(g attendance.Group) {
	db.group.mutex.Lock()
	defer db.group.mutex.Unlock()
	db.group.t[g.ID] = &g
}
