// Package apperr defines the error kinds shared across layers.
package apperr

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("not found")

// StorageError reports a failure of the backing store. It aborts the current action.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ProviderError reports a failed completion call. Sessions recover from it.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("completion provider: %v", e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// TrainingProcessError reports a training process that could not start or exited non-zero.
// ExitCode is -1 when the process never produced one.
type TrainingProcessError struct {
	JobID    string
	ExitCode int
	LogPath  string
	Err      error
}

func (e *TrainingProcessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("training job %s failed (exit code %d, log %s): %v", e.JobID, e.ExitCode, e.LogPath, e.Err)
	}
	return fmt.Sprintf("training job %s failed (exit code %d, log %s)", e.JobID, e.ExitCode, e.LogPath)
}

func (e *TrainingProcessError) Unwrap() error { return e.Err }

// ValidationError reports bad user input. Message is safe to show to the user.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Storage wraps err as a StorageError, passing nil and ErrNotFound through untouched.
func Storage(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// Invalid builds a ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsStorage reports whether err is or wraps a StorageError.
func IsStorage(err error) bool {
	var s *StorageError
	return errors.As(err, &s)
}
