package attendance

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/akcent-academy/crm/core"
	"github.com/akcent-academy/crm/core/clock"
)

// RecordStore owns the lifecycle of monthly records: lazy creation, reconciliation
// against the roster and narrow point updates.
type RecordStore struct {
	repo   Repository
	roster RosterProvider
	clock  *clock.Clock
	logger core.Logger
}

func NewRecordStore(repo Repository, roster RosterProvider, clk *clock.Clock, logger core.Logger) *RecordStore {
	return &RecordStore{repo: repo, roster: roster, clock: clk, logger: logger}
}

// GetOrCreate returns the record of key, creating it from the roster when absent and
// reconciling it with the roster otherwise.
func (s *RecordStore) GetOrCreate(ctx context.Context, key RecordKey) (MonthlyRecord, error) {
	if err := key.Validate(); err != nil {
		return MonthlyRecord{}, err
	}

	rec, err := s.repo.GetRecord(ctx, key)
	switch {
	case errors.Cause(err) == ErrRecordNotFound:
		fresh, created, err := s.create(ctx, key)
		if err != nil {
			return MonthlyRecord{}, err
		}
		if created {
			return fresh, nil
		}
		// somebody else created it first: theirs wins
		if rec, err = s.repo.GetRecord(ctx, key); err != nil {
			return MonthlyRecord{}, errors.Wrapf(err, "reading record %s", key)
		}
	case err != nil:
		return MonthlyRecord{}, errors.Wrapf(err, "reading record %s", key)
	}

	return s.reconcile(ctx, rec)
}

// Ensure returns the record of key, creating it when absent. An existing record is
// returned as persisted, without reconciliation.
func (s *RecordStore) Ensure(ctx context.Context, key RecordKey) (MonthlyRecord, error) {
	if err := key.Validate(); err != nil {
		return MonthlyRecord{}, err
	}

	rec, err := s.repo.GetRecord(ctx, key)
	if err == nil {
		return withDerivedFields(rec, true), nil
	}
	if errors.Cause(err) != ErrRecordNotFound {
		return MonthlyRecord{}, errors.Wrapf(err, "reading record %s", key)
	}

	fresh, created, err := s.create(ctx, key)
	if err != nil || created {
		return fresh, err
	}
	if rec, err = s.repo.GetRecord(ctx, key); err != nil {
		return MonthlyRecord{}, errors.Wrapf(err, "reading record %s", key)
	}
	return withDerivedFields(rec, true), nil
}

// SetAttendance sets or clears (nil status) the mark of one student on one day.
func (s *RecordStore) SetAttendance(ctx context.Context, key RecordKey, studentID string, day int, status *Status) (StudentEntry, error) {
	if err := key.Validate(); err != nil {
		return StudentEntry{}, err
	}
	if n := key.DaysInMonth(); day < 1 || day > n {
		return StudentEntry{}, core.NewValidationError(
			errors.Errorf("date must be between 1 and %d", n),
			core.FieldError{Field: "date", Error: fmt.Sprintf("date must be between 1 and %d", n)},
		)
	}
	if status != nil && !status.IsValid() {
		return StudentEntry{}, core.NewValidationError(errors.Errorf("invalid status %q", *status))
	}

	entry, err := s.repo.SetMark(ctx, key, studentID, day, status, s.clock.Timestamp())
	if err != nil {
		if c := errors.Cause(err); c == ErrRecordNotFound || c == ErrStudentNotFound {
			return StudentEntry{}, c
		}
		return StudentEntry{}, errors.Wrapf(err, "setting mark %s/%s/%d", key, studentID, day)
	}

	mark := "removed"
	if status != nil {
		mark = string(*status)
	}
	s.logger.Info(fmt.Sprintf("attendance updated: %s | %d-%d-%d => %s", studentID, key.Year, key.Month, day, mark))
	return withEntryDerivedFields(entry, key), nil
}

// FillUnset marks every unset cell of day as present for the students of groupIDs.
func (s *RecordStore) FillUnset(ctx context.Context, key RecordKey, groupIDs []string, day int) (int, error) {
	if len(groupIDs) == 0 {
		return 0, nil
	}
	n, err := s.repo.FillUnsetMarks(ctx, key, groupIDs, day, StatusPresent, s.clock.Timestamp())
	if err != nil {
		return 0, errors.Wrapf(err, "filling marks of %s on day %d", key, day)
	}
	return n, nil
}

func (s *RecordStore) create(ctx context.Context, key RecordKey) (MonthlyRecord, bool, error) {
	roster, err := s.roster.ActiveStudents(ctx, key.TeacherID)
	if err != nil {
		return MonthlyRecord{}, false, errors.Wrapf(err, "fetching roster of teacher %s", key.TeacherID)
	}

	rec := NewRecord(key, roster, s.clock.Now())
	created, err := s.repo.CreateRecord(ctx, rec)
	if err != nil {
		return MonthlyRecord{}, false, errors.Wrapf(err, "creating record %s", key)
	}
	if created {
		s.logger.Info(fmt.Sprintf("created monthly record %s with %d students", key, len(rec.Students)))
	}
	return rec, created, nil
}

func (s *RecordStore) reconcile(ctx context.Context, persisted MonthlyRecord) (MonthlyRecord, error) {
	key := persisted.Key()
	roster, err := s.roster.ActiveStudents(ctx, key.TeacherID)
	if err != nil {
		return MonthlyRecord{}, errors.Wrapf(err, "fetching roster of teacher %s", key.TeacherID)
	}

	rec, active := Reconcile(persisted, roster, s.clock.Now())
	if err := s.repo.MergeStudents(ctx, key, active, rec.Metadata.UpdatedAt); err != nil {
		return MonthlyRecord{}, errors.Wrapf(err, "merging roster into %s", key)
	}
	if persisted.Metadata.ActiveStudents != rec.Metadata.ActiveStudents || persisted.Metadata.TotalStudents != rec.Metadata.TotalStudents {
		s.logger.Info(fmt.Sprintf("updated monthly record %s with %d total students (%d active)", key, rec.Metadata.TotalStudents, rec.Metadata.ActiveStudents))
	}
	return rec, nil
}

func withEntryDerivedFields(e StudentEntry, key RecordKey) StudentEntry {
	e.AvailableDays = AvailableDays(key.DaysInMonth())
	if e.Attendance == nil {
		e.Attendance = map[string]Status{}
	}
	return e
}
