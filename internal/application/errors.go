package application

import (
	"errors"
	"fmt"
	"strings"

	"github.com/example/resource-scheduler/internal/persistence"
)

var (
	// ErrUnauthorized is returned when the acting principal lacks permission for an operation.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrAlreadyExists is returned when a unique resource is created twice.
	ErrAlreadyExists = errors.New("application: already exists")
	// ErrAlreadyCancelled is returned when cancelling a booking that is no longer active.
	ErrAlreadyCancelled = errors.New("application: booking already cancelled")
	// ErrReferenced is returned when a hard delete would orphan dependent rows.
	ErrReferenced = errors.New("application: resource is still referenced")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error. The first message per field wins.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	if _, exists := v.FieldErrors[field]; exists {
		return
	}
	v.FieldErrors[field] = message
}

func (v *ValidationError) failed(field string) bool {
	_, ok := v.FieldErrors[field]
	return ok
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

// HardConflictError reports active bookings occupying the requested environment and time.
// It can never be overridden.
type HardConflictError struct {
	Bookings []persistence.Booking
}

// Error implements the error interface.
func (e *HardConflictError) Error() string {
	if e == nil {
		return ""
	}
	if len(e.Bookings) == 0 {
		return "booking conflicts with an existing booking"
	}
	ids := make([]string, 0, len(e.Bookings))
	for _, booking := range e.Bookings {
		ids = append(ids, booking.ID)
	}
	return fmt.Sprintf("booking conflicts with %s", strings.Join(ids, ", "))
}

// SoftConflictWarning is returned instead of creating a booking when participants are
// double booked and the caller has not acknowledged it. Overridable tells the caller
// whether resubmitting with the acknowledgement would succeed.
type SoftConflictWarning struct {
	Bookings      []persistence.Booking
	AffectedUsers []string
	Overridable   bool
}

// Error implements the error interface.
func (w *SoftConflictWarning) Error() string {
	if w == nil {
		return ""
	}
	return fmt.Sprintf("participants already booked: %s", strings.Join(w.AffectedUsers, ", "))
}
