package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Operational errors. Each carries a stable status code and safe message at
// the HTTP boundary; anything else is treated as an internal error.
var (
	ErrNotFound             = errors.New("not found")
	ErrMissingCredentials   = errors.New("please provide email and password")
	ErrInvalidCredentials   = errors.New("email or password is incorrect")
	ErrUnauthorized         = errors.New("you are not logged in, please login to get access")
	ErrDuplicateEmail       = errors.New("email is already registered")
	ErrInvalidOrExpiredCode = errors.New("reset code is invalid or has expired")
	ErrPasswordMismatch     = errors.New("password and passwordConfirm are not equal")
	ErrDispatchFailed       = errors.New("failed to send reset code")
)

// FieldError describes a single violated validation rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError aggregates every violated rule, not just the first.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(msgs, "; "))
}

// Has reports whether any violation concerns the given field.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}
