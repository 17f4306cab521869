package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/clinic-workflow-api/internal/models"
	appErrors "github.com/noah-isme/clinic-workflow-api/pkg/errors"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// NewValidator returns a validator with the clinic specific tags registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	registerClinicValidations(v)
	return v
}

func registerClinicValidations(v *validator.Validate) {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("calendardate", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(dateLayout, fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("clocktime", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(timeLayout, fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("locationtype", func(fl validator.FieldLevel) bool {
		switch models.LocationType(fl.Field().String()) {
		case models.LocationBranch, models.LocationHome:
			return true
		default:
			return false
		}
	})
	_ = v.RegisterValidation("appointmentstatus", func(fl validator.FieldLevel) bool {
		_, ok := models.ParseAppointmentStatus(fl.Field().String())
		return ok
	})
}

// validationError turns validator failures into a single readable message.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, describeFieldError(fe))
	}
	return appErrors.Clone(appErrors.ErrValidation, strings.Join(messages, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "calendardate":
		return field + " must be a calendar date (YYYY-MM-DD)"
	case "clocktime":
		return field + " must be a time of day (HH:MM)"
	case "locationtype":
		return field + " must be one of branch, home"
	case "appointmentstatus":
		return field + " must be one of pending, confirmed, completed, cancelled"
	case "email":
		return field + " must be a valid email"
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
