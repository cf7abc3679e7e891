package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/akcent-academy/crm/core"
	"github.com/akcent-academy/crm/core/attendance"
)

var (
	errMissingRecordParams = errors.New("teacherId, year, and month are required")
	errInvalidYearMonth    = errors.New("Invalid year or month format")
	errMissingUpdateFields = errors.New("Required fields: teacherId, year, month, studentId, date")
	errMissingStatus       = errors.New("Field 'status' is required (can be null)")
	errInvalidNumbers      = errors.New("year, month, and date must be valid numbers")
	errInvalidStatus       = errors.New("status must be one of: present, absent, late, excused, null")
)

type attendanceHandler struct {
	svc    *attendance.Service
	access core.AccessChecker
}

func registerAttendanceAPI(grp *echo.Group, svc *attendance.Service, access core.AccessChecker) {
	h := attendanceHandler{svc: svc, access: access}
	grp.GET("/monthly-attendance", h.monthlyRecord)
	grp.POST("/update-attendance", h.updateAttendance)
}

// authorize runs the access policy. It is called once the input is known to be well formed.
func (h attendanceHandler) authorize(ctx echo.Context) error {
	ok, err := h.access.Verify(ctx.Request())
	if err != nil {
		return errors.Wrap(err, "verifying access")
	}
	if !ok {
		return core.ErrForbidden
	}
	return nil
}

func (h attendanceHandler) monthlyRecord(ctx echo.Context) error {
	teacherID := core.CleanString(ctx.QueryParam("teacherId"))
	yearStr, monthStr := ctx.QueryParam("year"), ctx.QueryParam("month")
	if teacherID == "" || yearStr == "" || monthStr == "" {
		return core.NewValidationError(errMissingRecordParams)
	}

	year, okYear := parseNumber(yearStr)
	month, okMonth := parseNumber(monthStr)
	if !okYear || !okMonth || month < 1 || month > 12 {
		return core.NewValidationError(errInvalidYearMonth)
	}

	if err := h.authorize(ctx); err != nil {
		return err
	}

	rec, err := h.svc.MonthlyRecord(ctx.Request().Context(), attendance.MonthlyRecordRequest{
		TeacherID: teacherID,
		Year:      year,
		Month:     month,
	})
	if err != nil {
		return errors.Wrap(err, "getting monthly record")
	}
	return ctx.JSON(http.StatusOK, rec)
}

type updateAttendancePayload struct {
	TeacherID string                    `json:"teacherId"`
	Year      FlexInt                   `json:"year"`
	Month     FlexInt                   `json:"month"`
	StudentID string                    `json:"studentId"`
	Date      FlexInt                   `json:"date"`
	Status    attendance.OptionalStatus `json:"status"`
}

func (h attendanceHandler) updateAttendance(ctx echo.Context) error {
	var p updateAttendancePayload
	if err := ctx.Bind(&p); err != nil {
		return errors.Wrap(err, "binding payload")
	}

	if core.CleanString(p.TeacherID) == "" || core.CleanString(p.StudentID) == "" || !p.Year.Set || !p.Month.Set || !p.Date.Set {
		return core.NewValidationError(errMissingUpdateFields)
	}
	if !p.Status.Set {
		return core.NewValidationError(errMissingStatus)
	}
	if !p.Year.Valid || !p.Month.Valid || !p.Date.Valid {
		return core.NewValidationError(errInvalidNumbers)
	}
	if p.Status.Value != nil {
		if _, err := attendance.ParseStatus(string(*p.Status.Value)); err != nil {
			return core.NewValidationError(errInvalidStatus)
		}
	}

	if err := h.authorize(ctx); err != nil {
		return err
	}

	res, err := h.svc.UpdateAttendance(ctx.Request().Context(), attendance.UpdateAttendanceRequest{
		TeacherID: p.TeacherID,
		Year:      p.Year.Value,
		Month:     p.Month.Value,
		StudentID: p.StudentID,
		Date:      p.Date.Value,
		Status:    p.Status,
	})
	if err != nil {
		return errors.Wrap(err, "updating attendance")
	}
	return ctx.JSON(http.StatusOK, res)
}
