package post

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by this package that is not a storage
// failure wraps one of these; test with errors.Is.
var (
	ErrValidation     = errors.New("validation error")
	ErrNotFound       = errors.New("not found")
	ErrConsistency    = errors.New("consistency error")
	ErrMediaNotFound  = errors.New("media not found")
	ErrMediaExists    = errors.New("media already exists")
	ErrInvalidDataURL = errors.New("invalid data url")
)

// Error carries a user-facing message for one of the error kinds.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// ManagerError wraps any failure of a composite manager operation.
type ManagerError struct {
	Op  string
	Err error
}

func (e *ManagerError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ManagerError) Unwrap() error { return e.Err }
