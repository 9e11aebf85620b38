package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is wrapped by an Error when the requested object or file
	// does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrUnknownBackend is returned by the factory for an unrecognized
	// backend type.
	ErrUnknownBackend = errors.New("unknown storage backend")

	// ErrInvalidKey is wrapped when a filename would resolve outside the
	// backend root.
	ErrInvalidKey = errors.New("key escapes storage root")
)

// Error is returned by every backend operation that fails. Op names the
// operation ("get json", "save bytes", ...) and Key the full object key or
// file path involved.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err for op on key.
func NewError(op, key string, err error) error {
	return &Error{Op: op, Key: key, Err: err}
}

// NotFound returns an Error for op on a key that does not exist.
func NotFound(op, key string) error {
	return &Error{Op: op, Key: key, Err: ErrNotFound}
}

// IsNotFound reports whether err indicates a missing object or file.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
