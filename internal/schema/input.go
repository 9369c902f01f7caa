package schema

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/raine/review-moderator/internal/media"
)

// FieldError reports the first input field that violates its constraint.
type FieldError struct {
	// Field is the JSON path of the field, e.g. productImages[1].
	Field string
	// Constraint is the validation tag that failed, e.g. required or imageuri.
	Constraint string
	Param      string
}

func (e *FieldError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("field %s violates %s=%s", e.Field, e.Constraint, e.Param)
	}
	return fmt.Sprintf("field %s violates %s", e.Field, e.Constraint)
}

// Validator checks request records using `validate` struct tags.
//
// Besides the standard validator tags it understands:
//   - imageuri: a data:<mime>;base64,<payload> string
//   - notblank: a string with at least one non-space character
type Validator struct {
	v *validator.Validate
}

// NewValidator creates a Validator with the custom tags registered.
func NewValidator() *Validator {
	v := validator.New()

	// Report JSON names so paths match what callers sent.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	// Both registrations only fail on an empty tag name.
	_ = v.RegisterValidation("imageuri", func(fl validator.FieldLevel) bool {
		_, err := media.Parse(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})

	return &Validator{v: v}
}

// Struct validates s and returns a *FieldError for the first violation.
func (v *Validator) Struct(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}

	fe := verrs[0]
	return &FieldError{
		Field:      trimRoot(fe.Namespace()),
		Constraint: fe.Tag(),
		Param:      fe.Param(),
	}
}

// trimRoot drops the leading struct type name from a validator namespace.
func trimRoot(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}
