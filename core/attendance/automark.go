package attendance

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/akcent-academy/crm/core"
	"github.com/akcent-academy/crm/core/clock"
	"github.com/akcent-academy/crm/core/schedule"
)

type (
	// TeacherFailure is a teacher the job could not process.
	TeacherFailure struct {
		TeacherID string
		Err       error
	}

	// RunSummary describes one auto-mark run.
	RunSummary struct {
		RunID    string
		Date     clock.Date
		Skipped  bool
		Groups   int
		Teachers int
		Marked   int
		Failed   []TeacherFailure
		Err      error // run-level failure, e.g. groups could not be listed
	}
)

func (s RunSummary) String() string {
	date := fmt.Sprintf("%d-%02d-%02d", s.Date.Year, s.Date.Month, s.Date.Day)
	switch {
	case s.Skipped:
		return fmt.Sprintf("automark %s: skipped rest day", date)
	case s.Err != nil:
		return fmt.Sprintf("automark %s: failed: %v", date, s.Err)
	}
	msg := fmt.Sprintf("automark %s: %d groups, %d teachers, %d marked present", date, s.Groups, s.Teachers, s.Marked)
	if len(s.Failed) > 0 {
		ids := make([]string, 0, len(s.Failed))
		for _, f := range s.Failed {
			ids = append(ids, f.TeacherID)
		}
		msg += fmt.Sprintf(", %d failed (%s)", len(s.Failed), strings.Join(ids, ", "))
	}
	return msg
}

// AutoMarker marks the students of every lesson that ended today as present,
// unless they already have a mark for today.
type AutoMarker struct {
	store       *RecordStore
	groups      GroupDirectory
	clock       *clock.Clock
	logger      core.Logger
	notifier    core.Notifier
	restDay     time.Weekday
	adminNumber string
}

// NewAutoMarker returns a job that skips restDay. notifier may be nil; when set, a run summary
// is sent to adminNumber.
func NewAutoMarker(store *RecordStore, groups GroupDirectory, clk *clock.Clock, logger core.Logger, restDay time.Weekday, notifier core.Notifier, adminNumber string) *AutoMarker {
	return &AutoMarker{
		store:       store,
		groups:      groups,
		clock:       clk,
		logger:      logger,
		notifier:    notifier,
		restDay:     restDay,
		adminNumber: adminNumber,
	}
}

// Run processes the current day.
func (m *AutoMarker) Run(ctx context.Context) RunSummary {
	return m.RunAt(ctx, m.clock.Now())
}

// RunAt processes the day of now as if it were now. It never panics and never fails:
// problems are logged and reported in the summary.
func (m *AutoMarker) RunAt(ctx context.Context, now time.Time) (sum RunSummary) {
	now = m.clock.ToZoned(now)
	sum = RunSummary{RunID: uuid.New().String(), Date: clock.DateOf(now)}
	defer func() {
		if r := recover(); r != nil {
			sum.Err = errors.Errorf("panic: %v", r)
			m.logger.Error(fmt.Sprintf("automark %s", sum.RunID), sum.Err)
		}
		m.report(sum)
	}()

	date := sum.Date
	m.logger.Info(fmt.Sprintf("automark %s @%s %d-%02d-%02d (%s)", sum.RunID, now.Format("15:04"), date.Year, date.Month, date.Day, schedule.WeekdayName(date.Weekday)))
	if date.Weekday == m.restDay {
		m.logger.Info(fmt.Sprintf("automark %s: skip %s", sum.RunID, schedule.WeekdayName(date.Weekday)))
		sum.Skipped = true
		return sum
	}

	groups, err := m.groups.ListGroups(ctx)
	if err != nil {
		sum.Err = errors.Wrap(err, "listing groups")
		m.logger.Error(fmt.Sprintf("automark %s", sum.RunID), sum.Err)
		return sum
	}

	byTeacher := m.endedGroupsByTeacher(groups, date.Weekday, now)
	if len(byTeacher) == 0 {
		m.logger.Info(fmt.Sprintf("automark %s: no groups had classes today", sum.RunID))
		return sum
	}

	teachers := make([]string, 0, len(byTeacher))
	for t, ids := range byTeacher {
		teachers = append(teachers, t)
		sum.Groups += len(ids)
	}
	sort.Strings(teachers)
	sum.Teachers = len(teachers)

	for _, teacherID := range teachers {
		key := NewRecordKey(teacherID, date.Year, int(date.Month))
		n, err := m.markTeacher(ctx, key, byTeacher[teacherID], date.Day)
		if err != nil {
			m.logger.Error(fmt.Sprintf("automark %s: teacher %s", sum.RunID, teacherID), err)
			sum.Failed = append(sum.Failed, TeacherFailure{TeacherID: teacherID, Err: err})
			continue
		}
		sum.Marked += n
		if n > 0 {
			m.logger.Info(fmt.Sprintf("automark %s: teacher %s: auto-marked %d students", sum.RunID, teacherID, n))
		} else {
			m.logger.Info(fmt.Sprintf("automark %s: teacher %s: no changes needed", sum.RunID, teacherID))
		}
	}
	return sum
}

// endedGroupsByTeacher returns the ids of the groups that had a lesson end by now, per teacher.
func (m *AutoMarker) endedGroupsByTeacher(groups []Group, today time.Weekday, now time.Time) map[string][]string {
	byTeacher := make(map[string][]string)
	seen := make(map[string]bool)
	for _, g := range groups {
		if g.TeacherID == "" {
			m.logger.Debug(fmt.Sprintf("automark: skip group %s: no teacher", g.ID))
			continue
		}
		if seen[g.ID] || !schedule.EndedToday(g.Schedule, today, now) {
			continue
		}
		seen[g.ID] = true
		byTeacher[g.TeacherID] = append(byTeacher[g.TeacherID], g.ID)
	}
	return byTeacher
}

// markTeacher fills one teacher's record; a panic is turned into that teacher's failure.
func (m *AutoMarker) markTeacher(ctx context.Context, key RecordKey, groupIDs []string, day int) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
	}()

	if _, err = m.store.Ensure(ctx, key); err != nil {
		return 0, err
	}
	return m.store.FillUnset(ctx, key, groupIDs, day)
}

func (m *AutoMarker) report(sum RunSummary) {
	m.logger.Info(sum.String())
	if m.notifier == nil || m.adminNumber == "" || sum.Skipped {
		return
	}
	m.notifier.Notify(&core.Message{Number: m.adminNumber, Text: sum.String()})
}
