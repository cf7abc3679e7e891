// Package attendance keeps the monthly attendance records of teachers in sync with
// their live rosters, and marks lessons that ended without an explicit mark.
package attendance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/akcent-academy/crm/core"
	"github.com/akcent-academy/crm/core/clock"
	"github.com/akcent-academy/crm/core/schedule"
)

// SchemaVersion is the version stamped on every new record.
const SchemaVersion = 1

var (
	ErrRecordNotFound  = errors.New("monthly attendance record not found")
	ErrStudentNotFound = errors.New("student not found in this attendance record")
)

// Status is an explicit attendance mark. An unset cell has no Status at all.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusLate    Status = "late"
	StatusExcused Status = "excused"
)

// Statuses lists every valid mark.
var Statuses = []Status{StatusPresent, StatusAbsent, StatusLate, StatusExcused}

func (s Status) IsValid() bool {
	for _, st := range Statuses {
		if s == st {
			return true
		}
	}
	return false
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.IsValid() {
		return "", errors.Errorf("invalid attendance status %q", s)
	}
	return st, nil
}

// OptionalStatus tells a missing "status" field apart from an explicit null.
type OptionalStatus struct {
	Set   bool
	Value *Status
}

// NewOptionalStatus returns a set status; a nil st means "clear the mark".
func NewOptionalStatus(st *Status) OptionalStatus {
	return OptionalStatus{Set: true, Value: st}
}

func (o *OptionalStatus) UnmarshalJSON(data []byte) error {
	o.Set = true
	o.Value = nil
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// keep the raw token so that validation reports it as an invalid status
		s = string(data)
	}
	st := Status(s)
	o.Value = &st
	return nil
}

func (o OptionalStatus) MarshalJSON() ([]byte, error) {
	if o.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(string(*o.Value))
}

// RecordKey identifies a monthly record.
type RecordKey struct {
	TeacherID string
	Year      int
	Month     int
}

func NewRecordKey(teacherID string, year, month int) RecordKey {
	return RecordKey{TeacherID: teacherID, Year: year, Month: month}
}

// String renders the record id. The month is never zero-padded.
func (k RecordKey) String() string {
	return fmt.Sprintf("%s|%d|%d", k.TeacherID, k.Year, k.Month)
}

func (k RecordKey) DaysInMonth() int {
	return clock.DaysIn(k.Year, time.Month(k.Month))
}

// Validate checks that the key can address a record.
func (k RecordKey) Validate() error {
	var flds []core.FieldError
	if core.CleanString(k.TeacherID) == "" {
		flds = append(flds, core.FieldError{Field: "teacherId", Error: "this field is required"})
	}
	if k.Year < 1 {
		flds = append(flds, core.FieldError{Field: "year", Error: "year must be a positive number"})
	}
	if k.Month < 1 || k.Month > 12 {
		flds = append(flds, core.FieldError{Field: "month", Error: "month must be between 1 and 12"})
	}
	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

type (
	// GroupInfo is a denormalized snapshot of a group.
	GroupInfo struct {
		ID        string `json:"id,omitempty"`
		Name      string `json:"name"`
		TeacherID string `json:"teacherId,omitempty"`
	}

	// ActivityPeriod records when a student first appeared in a record.
	// The end fields are reserved and never populated.
	ActivityPeriod struct {
		StartDate  string  `json:"startDate"`
		StartYear  int     `json:"startYear"`
		StartMonth int     `json:"startMonth"`
		StartDay   int     `json:"startDay"`
		EndDate    *string `json:"endDate"`
		EndYear    *int    `json:"endYear"`
		EndMonth   *int    `json:"endMonth"`
		EndDay     *int    `json:"endDay"`
	}

	// StudentEntry is one student of a monthly record. Entries are never removed.
	StudentEntry struct {
		StudentID      string            `json:"studentId"`
		StudentName    string            `json:"studentName"`
		GroupID        string            `json:"groupId"`
		GroupName      string            `json:"groupName"`
		GroupInfo      *GroupInfo        `json:"groupInfo"`
		Attendance     map[string]Status `json:"attendance"`
		ActivityPeriod ActivityPeriod    `json:"activityPeriod"`
		AvailableDays  []int             `json:"availableDays"`
	}

	Metadata struct {
		TotalStudents  int   `json:"totalStudents"`
		ActiveStudents int   `json:"activeStudents"`
		CreatedAt      int64 `json:"createdAt"`
		UpdatedAt      int64 `json:"updatedAt"`
		SchemaVersion  int   `json:"schemaVersion"`
	}

	// MonthlyRecord is the attendance ledger of one teacher for one calendar month.
	MonthlyRecord struct {
		TeacherID           string         `json:"teacherId"`
		Year                int            `json:"year"`
		Month               int            `json:"month"`
		Students            []StudentEntry `json:"students"`
		DaysInMonth         int            `json:"daysInMonth"`
		Metadata            Metadata       `json:"metadata"`
		RecordExists        bool           `json:"recordExists"`
		WithActivityPeriods bool           `json:"withActivityPeriods"`
	}

	// RosterStudent is a currently active student of a teacher.
	RosterStudent struct {
		ID        string
		FullName  string
		GroupID   string
		GroupInfo *GroupInfo
	}

	// Group is a teacher's class with its normalized weekly schedule.
	Group struct {
		ID        string
		TeacherID string
		Name      string
		Schedule  schedule.Schedule
	}
)

// NewActivityPeriod starts a period at now.
func NewActivityPeriod(now time.Time) ActivityPeriod {
	return ActivityPeriod{
		StartDate:  now.Format(time.RFC3339),
		StartYear:  now.Year(),
		StartMonth: int(now.Month()),
		StartDay:   now.Day(),
	}
}

// Mark returns the status of the given day, if set.
func (e StudentEntry) Mark(day int) (Status, bool) {
	st, ok := e.Attendance[DayKey(day)]
	return st, ok
}

func (r MonthlyRecord) Key() RecordKey {
	return NewRecordKey(r.TeacherID, r.Year, r.Month)
}

// Student finds an entry by student id.
func (r MonthlyRecord) Student(id string) (StudentEntry, bool) {
	for _, s := range r.Students {
		if s.StudentID == id {
			return s, true
		}
	}
	return StudentEntry{}, false
}

// DayKey is the attendance map key of a day of month.
func DayKey(day int) string {
	return strconv.Itoa(day)
}

// AvailableDays returns [1..n].
func AvailableDays(n int) []int {
	days := make([]int, n)
	for i := range days {
		days[i] = i + 1
	}
	return days
}

// groupName picks the display name of a student's group.
func groupName(info *GroupInfo) string {
	if info == nil {
		return ""
	}
	return info.Name
}

type (
	// RosterProvider returns the live roster of a teacher.
	RosterProvider interface {
		ActiveStudents(ctx context.Context, teacherID string) ([]RosterStudent, error)
	}

	// GroupDirectory lists every group along with its schedule.
	GroupDirectory interface {
		ListGroups(ctx context.Context) ([]Group, error)
	}

	// Repository persists monthly records. Every write touches only the fields it names,
	// so concurrent writers of other students or days are never clobbered.
	Repository interface {
		// GetRecord returns ErrRecordNotFound when the record does not exist.
		GetRecord(ctx context.Context, key RecordKey) (MonthlyRecord, error)
		// CreateRecord stores rec only if no record exists for its key yet; it reports whether it did.
		CreateRecord(ctx context.Context, rec MonthlyRecord) (bool, error)
		// MergeStudents upserts active entries by student id. Existing entries only get their
		// name and group fields refreshed; new ones are appended as given.
		// Counts are set to the entry count and len(active).
		MergeStudents(ctx context.Context, key RecordKey, active []StudentEntry, updatedAt int64) error
		// SetMark sets one (student, day) cell; a nil status clears it.
		SetMark(ctx context.Context, key RecordKey, studentID string, day int, status *Status, updatedAt int64) (StudentEntry, error)
		// FillUnsetMarks sets status on the unset day cells of the students of groupIDs,
		// and returns how many cells it set.
		FillUnsetMarks(ctx context.Context, key RecordKey, groupIDs []string, day int, status Status, updatedAt int64) (int, error)
	}
)
