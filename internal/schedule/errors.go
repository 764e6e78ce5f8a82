package schedule

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by every scheduling component.
var (
	// ErrInvalidGraph indicates a cycle, a dangling reference or a self
	// dependency. It blocks CPM and optimization and is never auto-repaired.
	ErrInvalidGraph = errors.New("invalid dependency graph")
	// ErrInfeasibleOrTimedOut indicates the optimizer found no solution
	// within its budget. Callers receive a CPM fallback instead.
	ErrInfeasibleOrTimedOut = errors.New("no feasible schedule within budget")
	// ErrValidation indicates malformed input such as an empty task list.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates a referenced baseline version or task is absent.
	ErrNotFound = errors.New("not found")
)

// ValidationCategory classifies a validation error for programmatic handling.
type ValidationCategory string

const (
	// ValCatEmpty indicates an operation received no tasks.
	ValCatEmpty ValidationCategory = "empty"
	// ValCatMissingField indicates a required field is empty.
	ValCatMissingField ValidationCategory = "missing_field"
	// ValCatDuplicateID indicates two or more tasks share the same ID.
	ValCatDuplicateID ValidationCategory = "duplicate_id"
	// ValCatDateOrder indicates an end date earlier than its start date.
	ValCatDateOrder ValidationCategory = "date_order"
	// ValCatBoundsViolation indicates a numeric field is out of valid range.
	ValCatBoundsViolation ValidationCategory = "bounds_violation"
	// ValCatUnknownField indicates a field name that is not tracked.
	ValCatUnknownField ValidationCategory = "unknown_field"
)

// ValidationError records a malformed-input problem with task context.
type ValidationError struct {
	Category ValidationCategory
	TaskID   string
	Field    string
	Reason   string
}

// Error returns a human-readable string including task and field context.
func (e *ValidationError) Error() string {
	msg := e.Reason
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.TaskID != "" {
		msg = "task " + e.TaskID + ": " + msg
	}
	return fmt.Sprintf("%s: %s", ErrValidation, msg)
}

// Unwrap returns ErrValidation so callers can use errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NotFoundError names the kind and key of a missing entity.
type NotFoundError struct {
	Kind string // "task", "baseline", "project"
	Key  string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return e.Kind + " " + e.Key + ": " + ErrNotFound.Error()
}

// Unwrap returns ErrNotFound so callers can use errors.Is.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}
