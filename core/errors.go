package core

import "github.com/pkg/errors"

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// ConflictError marks a request that is well-formed but clashes with the
// current state of the system (uniqueness violations, wrong-state transitions).
// Handlers map it to a 400 with a safe user-facing message.
type ConflictError struct {
	Err error
}

func NewConflictError(err error) error {
	return &ConflictError{Err: err}
}

func (err ConflictError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

func IsConflict(err error) bool {
	_, ok := errors.Cause(err).(*ConflictError)
	return ok
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
