package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnauthenticated is the single externally visible outcome for every
// credential or token failure. The specific causes below all wrap it.
var ErrUnauthenticated = errors.New("unauthenticated")

var (
	ErrInvalidCredentials = fmt.Errorf("%w: incorrect username or password", ErrUnauthenticated)
	ErrInvalidToken       = fmt.Errorf("%w: invalid token", ErrUnauthenticated)
	ErrExpiredToken       = fmt.Errorf("%w: token expired", ErrUnauthenticated)
)

var (
	ErrForbidden       = errors.New("access forbidden")
	ErrUserExists      = errors.New("user already exists")
	ErrUserNotFound    = errors.New("user not found")
	ErrUnknownRole     = errors.New("unknown role")
	ErrTooManyAttempts = errors.New("too many failed login attempts")
	ErrStorage         = errors.New("storage failure")
)

// StorageError wraps an underlying persistence failure. It matches ErrStorage
// with errors.Is while keeping the cause reachable for logging.
type StorageError struct {
	Op  string
	Err error
}

func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// FieldError is a single client-fixable problem with one input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is the full list of field problems found in one input.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, fe := range v {
		msgs = append(msgs, fe.Field+": "+fe.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// ByField groups messages by field name, preserving order within a field.
func (v ValidationErrors) ByField() map[string][]string {
	out := make(map[string][]string, len(v))
	for _, fe := range v {
		out[fe.Field] = append(out[fe.Field], fe.Message)
	}
	return out
}

// NewFieldError is shorthand for a single-field ValidationErrors.
func NewFieldError(field, message string) ValidationErrors {
	return ValidationErrors{{Field: field, Message: message}}
}
