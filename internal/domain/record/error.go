package record

import (
	"errors"
	"fmt"
)

var (
	ErrPublish            = errors.New("publish records")
	ErrUnknownStorageType = errors.New("unknown storage type")
)

// ValidationError reports a missing required field. Field holds the readable name.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid record: %s is required", e.Field)
}

// ConnectionError reports a backend that could not be reached at initialization.
type ConnectionError struct {
	Backend string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to %s: %v", e.Backend, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// PersistenceError wraps a backend failure during save with the path or identifier
// of what was being written.
type PersistenceError struct {
	Path    string
	Message string
	Err     error
}

func (e *PersistenceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("could not persist %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("could not persist %s with message %q: %v", e.Path, e.Message, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsValidationError reports whether err is, or wraps, a *ValidationError.
func IsValidationError(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}
