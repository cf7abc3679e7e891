package attendance

import (
	"reflect"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/akcent-academy/crm/core"
)

var (
	statusTag  = "attendance_status"
	statusText = "{0} must be one of: present, absent, late, excused, null"

	nullStatus = "null"
)

// InitValidators registers the attendance validation tags.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	// an unset OptionalStatus reads as nil so that "required" rejects it
	validate.RegisterCustomTypeFunc(func(v reflect.Value) interface{} {
		os, ok := v.Interface().(OptionalStatus)
		if !ok || !os.Set {
			return nil
		}
		if os.Value == nil {
			return nullStatus
		}
		return string(*os.Value)
	}, OptionalStatus{})

	_ = validate.RegisterValidation(statusTag, statusValidation)
	core.RegisterCustomTranslation(validate, translator, statusTag, statusText)
}

func statusValidation(fl validator.FieldLevel) bool {
	s, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	return s == nullStatus || Status(s).IsValid()
}
