package embedcheckout

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.Split(field.Tag.Get("json"), ",")[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

func (c fetcherConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return normalizeValidationError(err)
	}
	return nil
}

func normalizeValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}
	first := validationErrs[0]
	switch first.Tag() {
	case "required":
		return fmt.Errorf("%s is required", first.Field())
	case "http_url":
		return fmt.Errorf("%s must be an absolute http(s) URL", first.Field())
	default:
		return fmt.Errorf("%s failed validation: %s", first.Field(), first.Tag())
	}
}
