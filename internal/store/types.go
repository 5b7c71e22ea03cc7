package store

import (
	"errors"
	"fmt"
	"strings"

	"arcade-rental-backend/internal/lifecycle"
)

var (
	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrStaleStatus is returned when a conditional update finds the row in a
	// status other than the expected ones.
	ErrStaleStatus = errors.New("reservation status changed concurrently")
	// ErrDuplicateNumber means the reservation number collided with an existing row.
	ErrDuplicateNumber = errors.New("duplicate reservation number")
	// ErrSlotTaken means a storage backstop rejected an overlapping device booking.
	ErrSlotTaken = errors.New("device interval already booked")
)

// LockKey is the booking serialization key for one device type and business date.
func LockKey(deviceTypeID int64, date string) string {
	return fmt.Sprintf("booking:%d:%s", deviceTypeID, date)
}

// StatusChange is a conditional reservation update: it only applies while the
// row is in one of From.
type StatusChange struct {
	ID     string
	From   []lifecycle.Status
	To     lifecycle.Status
	Fields map[string]any
}

// classifyInsertError maps unique and exclusion violations onto sentinel errors.
// Drivers disagree on error types, so the message text is inspected.
func classifyInsertError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	violation := strings.Contains(msg, "unique") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "exclusion constraint") ||
		strings.Contains(msg, "23505") ||
		strings.Contains(msg, "23p01")
	if !violation {
		return err
	}
	if strings.Contains(msg, "reservation_number") {
		return fmt.Errorf("%w: %v", ErrDuplicateNumber, err)
	}
	return fmt.Errorf("%w: %v", ErrSlotTaken, err)
}
