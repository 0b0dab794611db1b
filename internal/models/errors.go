package models

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed or semantically invalid input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// StateError reports an operation that the order's current status forbids.
type StateError struct {
	OrderID int64
	Status  Status
	Action  string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("order %d is %s: cannot %s", e.OrderID, e.Status, e.Action)
}

// AuthorizationError reports a caller that does not own the resource.
type AuthorizationError struct {
	Resource string
	ID       int64
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("not allowed to access %s %d", e.Resource, e.ID)
}

// NotFoundError reports a referenced entity that does not exist.
type NotFoundError struct {
	Resource string
	ID       int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

// PersistenceError hides store failures from callers. The cause stays
// reachable through Unwrap for logging.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return "could not persist order data"
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Cause returns the operation and underlying error for log fields.
func (e *PersistenceError) Cause() string {
	if e.Err == nil {
		return e.Op
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Persistence wraps err unless it already belongs to the taxonomy.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsDomainError(err) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// IsDomainError reports whether err is one of the typed order errors.
func IsDomainError(err error) bool {
	var (
		ve *ValidationError
		se *StateError
		ae *AuthorizationError
		ne *NotFoundError
		pe *PersistenceError
	)
	return errors.As(err, &ve) || errors.As(err, &se) || errors.As(err, &ae) ||
		errors.As(err, &ne) || errors.As(err, &pe)
}
