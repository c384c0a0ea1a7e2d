package storage

import (
	"errors"
	"fmt"

	"github.com/valter-silva-au/taskdeck/pkg/models"
)

// ValidationError reports a field that failed validation before any write
// happened. Field names the offending input field.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports a task id that does not exist in any status
// directory.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("task %s not found", e.ID)
}

// StatusMismatchError reports a task that was not found in any of the
// expected source statuses of a transition. A transition race between two
// processes surfaces as this error for the loser: detectable and retryable,
// never silent corruption.
type StatusMismatchError struct {
	ID       string
	Expected []models.Status
	Actual   models.Status // zero when the task does not exist at all
}

func (e *StatusMismatchError) Error() string {
	if e.Actual == "" {
		return fmt.Sprintf("task %s not found in expected status %v", e.ID, e.Expected)
	}
	return fmt.Sprintf("task %s is %s, expected one of %v", e.ID, e.Actual, e.Expected)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsStatusMismatch reports whether err is a StatusMismatchError.
func IsStatusMismatch(err error) bool {
	var sm *StatusMismatchError
	return errors.As(err, &sm)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
