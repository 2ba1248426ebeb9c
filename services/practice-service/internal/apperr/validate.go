package apperr

import (
	"errors"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// NewValidator reports field names by their json tag.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// FromValidation turns the first failed rule of a validator error into a
// translatable validation error.
func FromValidation(err error) *Error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return ErrValidation.Wrap(err)
	}
	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required", "required_if":
		return Validation("%s is required", field)
	case "oneof":
		return Validation("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "max":
		if n, convErr := strconv.Atoi(fe.Param()); convErr == nil && fe.Kind() == reflect.String {
			return Validation("%s must be at most %d characters", field, n)
		}
	}
	return Validation("%s is invalid", field)
}
