// Package events fans reservation lifecycle transitions out to downstream
// consumers (schedule generation, cleanup) without blocking the request path.
package events

import (
	"time"

	"github.com/google/uuid"

	"arcade-rental-backend/internal/lifecycle"
	"arcade-rental-backend/internal/model"
)

// LifecycleEvent records one reservation status change.
type LifecycleEvent struct {
	ID                string            `json:"id"`
	ReservationID     string            `json:"reservation_id"`
	ReservationNumber string            `json:"reservation_number"`
	DeviceTypeID      int64             `json:"device_type_id"`
	DeviceID          *int64            `json:"device_id,omitempty"`
	Date              string            `json:"date"`
	From              lifecycle.Status  `json:"from,omitempty"`
	To                lifecycle.Status  `json:"to"`
	Trigger           lifecycle.Trigger `json:"trigger"`
	OccurredAt        time.Time         `json:"occurred_at"`
}

// NewLifecycleEvent builds an event for r having moved from → r.Status.
func NewLifecycleEvent(r model.Reservation, from lifecycle.Status, by lifecycle.Trigger, at time.Time) LifecycleEvent {
	return LifecycleEvent{
		ID:                uuid.NewString(),
		ReservationID:     r.ID,
		ReservationNumber: r.ReservationNumber,
		DeviceTypeID:      r.DeviceTypeID,
		DeviceID:          r.DeviceID,
		Date:              r.Date,
		From:              from,
		To:                r.Status,
		Trigger:           by,
		OccurredAt:        at.UTC(),
	}
}

// Dispatcher accepts events for asynchronous delivery.
type Dispatcher interface {
	Dispatch(ev LifecycleEvent)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Dispatch(LifecycleEvent) {}
