package inmemdb

import (
	"sync"

	"github.com/akcent-academy/crm/core/attendance"
)

type (
	DB struct {
		record  *recordTable
		student *studentTable
		group   *groupTable
	}

	recordTable struct {
		t     map[attendance.RecordKey]*attendance.MonthlyRecord
		mutex sync.RWMutex
	}

	studentTable struct {
		t     map[string]*Student
		mutex sync.RWMutex
	}

	groupTable struct {
		t     map[string]*attendance.Group
		mutex sync.RWMutex
	}
)

func Open() *DB {
	return &DB{
		record:  &recordTable{t: make(map[attendance.RecordKey]*attendance.MonthlyRecord)},
		student: &studentTable{t: make(map[string]*Student)},
		group:   &groupTable{t: make(map[string]*attendance.Group)},
	}
}
