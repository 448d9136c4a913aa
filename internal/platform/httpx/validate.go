package httpx

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// NewValidator returns a validator that reports fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
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

// DecodeValid decodes the JSON body into target and validates it.
func DecodeValid(r *http.Request, v *validator.Validate, target any) error {
	if err := DecodeJSON(r, target); err != nil {
		return err
	}
	return ValidationMessage(v.Struct(target))
}

// ValidationMessage turns validator output into a client-facing Error.
func ValidationMessage(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return Validation("Invalid request")
	}
	var missing, invalid []string
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			missing = append(missing, fe.Field())
			continue
		}
		invalid = append(invalid, fe.Field())
	}
	if len(missing) > 0 {
		return Validation("Missing required fields: " + strings.Join(missing, ", "))
	}
	return Validation("Invalid value for: " + strings.Join(invalid, ", "))
}
