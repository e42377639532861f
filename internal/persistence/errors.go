package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("persistence: duplicate record")
	// ErrConstraintViolation is returned when a CHECK constraint rejects a row.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrForeignKeyViolation is returned when a referenced row is missing or still referenced.
	ErrForeignKeyViolation = errors.New("persistence: foreign key violation")
	// ErrBookingOverlap is returned when an active booking would overlap another on the same environment.
	ErrBookingOverlap = errors.New("persistence: booking overlaps an active booking")
	// ErrHierarchyDepth is returned when an audience would be nested more than two levels deep.
	ErrHierarchyDepth = errors.New("persistence: audience hierarchy too deep")
	// ErrStaleState is returned when a conditional update matched no row in the expected state.
	ErrStaleState = errors.New("persistence: record is no longer in the expected state")
)
