package domain

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrUnauthorized       = errors.New("authentication credentials were not provided or are invalid")
	ErrForbidden          = errors.New("you do not have permission to perform this action")
	ErrUserNotFound       = errors.New("user not found")
	ErrCustomerNotFound   = errors.New("customer not found")
	ErrBlobNotFound       = errors.New("blob not found")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("unable to log in with provided credentials")
	ErrInactiveUser       = errors.New("user account is disabled")
	ErrUpstreamAuth       = errors.New("identity provider rejected the login")
	ErrUnsupportedMedia   = errors.New("unsupported media type")
	ErrPayloadTooLarge    = errors.New("payload too large")
)

// ValidationError carries field-level messages for a rejected request body.
type ValidationError struct {
	Detail string
	Fields map[string][]string
}

// NewValidationError returns an empty ValidationError ready for Add calls.
func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string][]string)}
}

// Add records a message against field.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

// HasErrors reports whether any field message or detail was recorded.
func (e *ValidationError) HasErrors() bool {
	return e.Detail != "" || len(e.Fields) > 0
}

// OrNil returns e when it has errors and nil otherwise, so callers can return
// it directly as an error value.
func (e *ValidationError) OrNil() error {
	if e == nil || !e.HasErrors() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+strings.Join(e.Fields[name], ", "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// FieldError is a shorthand for a ValidationError with a single field message.
func FieldError(field, msg string) *ValidationError {
	ve := NewValidationError()
	ve.Add(field, msg)
	return ve
}
