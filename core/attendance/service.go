package attendance

import (
	"context"
	"fmt"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/akcent-academy/crm/core"
)

const (
	notMarked    = "not marked"
	unknownGroup = "Unknown group"
)

type (
	MonthlyRecordRequest struct {
		TeacherID string `json:"teacherId" validate:"required,notblank"`
		Year      int    `json:"year" validate:"required,min=1"`
		Month     int    `json:"month" validate:"required,min=1,max=12"`
	}

	UpdateAttendanceRequest struct {
		TeacherID string         `json:"teacherId" validate:"required,notblank"`
		Year      int            `json:"year" validate:"required,min=1"`
		Month     int            `json:"month" validate:"required,min=1,max=12"`
		StudentID string         `json:"studentId" validate:"required,notblank"`
		Date      int            `json:"date" validate:"required,min=1,max=31"`
		Status    OptionalStatus `json:"status" validate:"required,attendance_status"`
	}

	UpdatedCell struct {
		StudentID   string `json:"studentId"`
		StudentName string `json:"studentName"`
		Date        int    `json:"date"`
		Status      string `json:"status"`
		GroupName   string `json:"groupName"`
	}

	// UpdateResult echoes the updated cell.
	UpdateResult struct {
		Success        bool           `json:"success"`
		Message        string         `json:"message"`
		Updated        UpdatedCell    `json:"updated"`
		ActivityPeriod ActivityPeriod `json:"activityPeriod"`
	}
)

func (r MonthlyRecordRequest) Key() RecordKey {
	return NewRecordKey(core.CleanString(r.TeacherID), r.Year, r.Month)
}

func (r UpdateAttendanceRequest) Key() RecordKey {
	return NewRecordKey(core.CleanString(r.TeacherID), r.Year, r.Month)
}

// Service exposes the request-driven attendance operations.
type Service struct {
	store      *RecordStore
	validate   *validator.Validate
	translator ut.Translator
}

func NewService(store *RecordStore, validate *validator.Validate, translator ut.Translator) *Service {
	return &Service{store: store, validate: validate, translator: translator}
}

// MonthlyRecord fetches the record of a teacher's month, creating or reconciling it.
func (svc *Service) MonthlyRecord(ctx context.Context, req MonthlyRecordRequest) (MonthlyRecord, error) {
	if err := svc.validate.Struct(req); err != nil {
		return MonthlyRecord{}, core.TranslateValidationErrors(err, svc.translator)
	}
	return svc.store.GetOrCreate(ctx, req.Key())
}

// UpdateAttendance sets or clears one attendance cell. It never creates a record.
func (svc *Service) UpdateAttendance(ctx context.Context, req UpdateAttendanceRequest) (UpdateResult, error) {
	if err := svc.validate.Struct(req); err != nil {
		return UpdateResult{}, core.TranslateValidationErrors(err, svc.translator)
	}

	studentID := core.CleanString(req.StudentID)
	entry, err := svc.store.SetAttendance(ctx, req.Key(), studentID, req.Date, req.Status.Value)
	if err != nil {
		return UpdateResult{}, err
	}

	status := notMarked
	if req.Status.Value != nil {
		status = string(*req.Status.Value)
	}
	grp := entry.GroupName
	if grp == "" {
		grp = unknownGroup
	}
	return UpdateResult{
		Success: true,
		Message: fmt.Sprintf("Attendance updated for %s", entry.StudentName),
		Updated: UpdatedCell{
			StudentID:   studentID,
			StudentName: entry.StudentName,
			Date:        req.Date,
			Status:      status,
			GroupName:   grp,
		},
		ActivityPeriod: entry.ActivityPeriod,
	}, nil
}
