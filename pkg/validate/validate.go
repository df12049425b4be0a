// Package validate wires go-playground/validator as the echo request
// validator.
package validate

import (
	"github.com/go-playground/validator/v10"

	"taskhub/internal/apperr"
)

// Validator implements echo.Validator.
type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	return &Validator{v: validator.New(validator.WithRequiredStructEnabled())}
}

// Validate runs struct tags and converts failures into the 400 taxonomy
// error so handlers can pass them straight to the response envelope.
func (v *Validator) Validate(i interface{}) error {
	if err := v.v.Struct(i); err != nil {
		if _, ok := err.(*validator.InvalidValidationError); ok {
			return err
		}
		return apperr.Validation(firstFieldMessage(err))
	}
	return nil
}

func firstFieldMessage(err error) string {
	errs, ok := err.(validator.ValidationErrors)
	if !ok || len(errs) == 0 {
		return "Invalid request"
	}
	fe := errs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email address"
	case "min":
		return fe.Field() + " is too short"
	case "max":
		return fe.Field() + " is too long"
	default:
		return fe.Field() + " is invalid"
	}
}
