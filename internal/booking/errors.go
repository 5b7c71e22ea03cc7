package booking

import (
	"errors"
	"fmt"

	"arcade-rental-backend/internal/schedule"
	"arcade-rental-backend/internal/store"
)

var (
	// ErrNotFound aliases the store sentinel so callers need only this package.
	ErrNotFound = store.ErrNotFound
	// ErrSequenceExhausted is returned when no reservation number could be allocated.
	ErrSequenceExhausted = errors.New("reservation number allocation exhausted")
	// ErrNotOwner is returned when a user acts on someone else's reservation.
	ErrNotOwner = errors.New("reservation belongs to another user")
)

// ValidationError reports a malformed or policy-violating request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Conflict reasons.
const (
	ReasonDeviceConflict   = "device_conflict"
	ReasonCapacity         = "capacity_exhausted"
	ReasonUserOverlap      = "user_overlap"
	ReasonUserLimit        = "active_limit_reached"
	ReasonMaintenance      = "device_maintenance"
	ReasonDeviceInUse      = "device_in_use"
	ReasonConcurrentInsert = "concurrent_booking"
)

// ConflictError reports that a request collides with existing bookings.
type ConflictError struct {
	Reason    string
	Intervals []schedule.Interval
	Remaining *int
}

func (e *ConflictError) Error() string {
	switch {
	case len(e.Intervals) > 0:
		return fmt.Sprintf("%s: overlaps %v", e.Reason, e.Intervals)
	case e.Remaining != nil:
		return fmt.Sprintf("%s: %d units remaining", e.Reason, *e.Remaining)
	}
	return e.Reason
}
