package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		_, err := ParseDuration(fl.Field().String())
		return err == nil
	})
	v.RegisterValidation("bytesize", func(fl validator.FieldLevel) bool {
		_, err := ParseByteSize(fl.Field().String())
		return err == nil
	})

	// Report fields by their YAML names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// fieldError renders a validation failure as "<dotted.key> <problem>".
func fieldError(fe validator.FieldError) error {
	key := fe.Namespace()
	if _, rest, ok := strings.Cut(key, "."); ok {
		key = rest
	}

	switch fe.Tag() {
	case "oneof":
		return fmt.Errorf("%s %q is not one of %s", key, fe.Value(), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "required", "required_unless":
		return fmt.Errorf("%s is required", key)
	case "min":
		return fmt.Errorf("%s must be at least %s", key, fe.Param())
	case "max":
		return fmt.Errorf("%s must be at most %s", key, fe.Param())
	case "duration":
		return fmt.Errorf("%s: invalid duration %q", key, fe.Value())
	case "bytesize":
		return fmt.Errorf("%s: invalid size %q", key, fe.Value())
	default:
		return fmt.Errorf("%s failed %s validation", key, fe.Tag())
	}
}
