package application

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/example/resource-scheduler/internal/scheduler"
)

var inputValidator = newInputValidator()

func newInputValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their json names so callers see the keys they sent.
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// validateInput runs the struct tag rules and converts failures into a ValidationError.
func validateInput(input any) *ValidationError {
	vErr := &ValidationError{}
	err := inputValidator.Struct(input)
	if err == nil {
		return vErr
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		vErr.add("input", err.Error())
		return vErr
	}
	for _, fieldErr := range fieldErrs {
		vErr.add(fieldErr.Field(), validationMessage(fieldErr))
	}
	return vErr
}

func validationMessage(fieldErr validator.FieldError) string {
	field := fieldErr.Field()
	switch fieldErr.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fieldErr.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fieldErr.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fieldErr.Param())
	case "hexcolor":
		return field + " must be a hex color"
	case "datetime":
		return fmt.Sprintf("%s must use the format %s", field, fieldErr.Param())
	default:
		return field + " is invalid"
	}
}

// parseDateField parses a YYYY-MM-DD value. A field already rejected by the
// struct tags is left alone.
func parseDateField(vErr *ValidationError, field, value string) scheduler.Date {
	if vErr.failed(field) {
		return scheduler.Date{}
	}
	value = strings.TrimSpace(value)
	if value == "" {
		vErr.add(field, field+" is required")
		return scheduler.Date{}
	}
	date, err := scheduler.ParseDate(value)
	if err != nil {
		vErr.add(field, field+" must be a valid date (YYYY-MM-DD)")
		return scheduler.Date{}
	}
	return date
}

func parseTimeField(vErr *ValidationError, field, value string) (scheduler.TimeOfDay, bool) {
	if vErr.failed(field) {
		return 0, false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		vErr.add(field, field+" is required")
		return 0, false
	}
	t, err := scheduler.ParseTimeOfDay(value)
	if err != nil {
		vErr.add(field, field+" must be a time of day (HH:MM or HH:MM:SS)")
		return 0, false
	}
	return t, true
}

// uniqueSorted trims, de-duplicates and sorts identifiers, dropping blanks.
func uniqueSorted(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	if len(out) == 0 {
		return nil
	}
	slices.Sort(out)
	return out
}
