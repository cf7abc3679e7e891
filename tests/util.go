package testutil

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/akcent-academy/crm/core"
	"github.com/akcent-academy/crm/core/attendance"
	"github.com/akcent-academy/crm/core/clock"
	"github.com/akcent-academy/crm/core/schedule"
	inmemdb "github.com/akcent-academy/crm/storage/database/inmem"
)

// Zone is a fixed stand-in for the school's timezone, so tests don't depend on tzdata updates.
var Zone = time.FixedZone("ALMT", 5*60*60)

// NewClock returns a clock frozen at the given civil time in Zone.
func NewClock(year int, month time.Month, day, hour, min int) *clock.Clock {
	clk := clock.New(Zone)
	now := time.Date(year, month, day, hour, min, 0, 0, Zone)
	clk.NowFunc = func() time.Time { return now }
	return clk
}

// Logger records every line it is given.
type Logger struct {
	mu    sync.Mutex
	Lines []string
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	line := level + " " + msg
	for _, arg := range args {
		line += fmt.Sprintf(" %v", arg)
	}
	l.Lines = append(l.Lines, line)
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("DEBUG", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("INFO", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("WARN", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("ERROR", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) { l.log("FATAL", msg, args) }

// Contains reports whether a logged line contains s.
func (l *Logger) Contains(s string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.Lines {
		if strings.Contains(line, s) {
			return true
		}
	}
	return false
}

func strp(s string) *string { return &s }

// Slots builds a slot-list schedule from "day,day start-end" specs, e.g. "monday,wednesday 09:00-10:30".
func Slots(specs ...string) schedule.Schedule {
	raw := schedule.RawGroupSchedule{Schedule: []schedule.RawSlot{}}
	for _, spec := range specs {
		parts := strings.SplitN(spec, " ", 2)
		times := strings.SplitN(parts[1], "-", 2)
		raw.Schedule = append(raw.Schedule, schedule.RawSlot{
			Days:      schedule.Tokens(strings.Split(parts[0], ",")),
			StartTime: strp(times[0]),
			EndTime:   strp(times[1]),
		})
	}
	return schedule.Parse(raw)
}

// AddGroup stores a group and its active students. Student ids are the given names.
func AddGroup(db *inmemdb.DB, teacherID, groupID string, sched schedule.Schedule, students ...string) {
	db.PutGroup(attendance.Group{ID: groupID, TeacherID: teacherID, Name: "Group " + groupID, Schedule: sched})
	for _, name := range students {
		db.PutStudent(inmemdb.Student{
			ID:        name,
			FullName:  strings.Title(name),
			TeacherID: teacherID,
			GroupID:   groupID,
			GroupName: "Group " + groupID,
			IsActive:  true,
		})
	}
}
