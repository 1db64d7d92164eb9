package domain

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every signup rule and reports all violations.
func (r *SignupRequest) Validate() error {
	return runValidation(r)
}

// Validate checks the provided update fields only.
func (r *UpdateUserRequest) Validate() error {
	return runValidation(r)
}

func runValidation(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	out := &ValidationError{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   jsonField(fe.Field()),
			Message: fieldMessage(fe),
		})
	}
	return out
}

func jsonField(structField string) string {
	if structField == "" {
		return structField
	}
	return string(structField[0]|0x20) + structField[1:]
}

func fieldMessage(fe validator.FieldError) string {
	field := jsonField(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "alpha":
		return fmt.Sprintf("%s must only contain characters between A-Z", field)
	case "min":
		if field == "password" {
			return "enter password with 8 or more characters"
		}
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "email":
		return "please enter a valid email"
	case "e164":
		return "please enter a valid phone number"
	case "eqfield":
		return "password and passwordConfirm are not equal"
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
