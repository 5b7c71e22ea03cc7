package booking

import (
	"context"
	"errors"
	"time"

	"arcade-rental-backend/internal/events"
	"arcade-rental-backend/internal/lifecycle"
	"arcade-rental-backend/internal/model"
	"arcade-rental-backend/internal/schedule"
	"arcade-rental-backend/internal/store"
)

// ApproveInput carries the operator and an optional unit assignment.
type ApproveInput struct {
	OperatorID string
	DeviceID   *int64
}

// Approve moves a pending reservation to approved.
func (s *Service) Approve(ctx context.Context, id string, in ApproveInput) (model.Reservation, error) {
	now := s.clock.Now()
	fields := map[string]any{
		"approved_at": now.UTC(),
		"approved_by": in.OperatorID,
	}
	return s.transition(ctx, id, lifecycle.StatusApproved, lifecycle.TriggerOperator, in.DeviceID, fields, now)
}

// Reject moves a pending reservation to rejected. A reason is required.
func (s *Service) Reject(ctx context.Context, id, operatorID, reason string) (model.Reservation, error) {
	if reason == "" {
		return model.Reservation{}, invalid("reason", "is required")
	}
	fields := map[string]any{
		"rejection_reason": reason,
		"approved_by":      operatorID,
	}
	return s.transition(ctx, id, lifecycle.StatusRejected, lifecycle.TriggerOperator, nil, fields, s.clock.Now())
}

// Cancel withdraws a pending or approved reservation. Users may only cancel their own.
func (s *Service) Cancel(ctx context.Context, id string, by lifecycle.Trigger, actorID, reason string) (model.Reservation, error) {
	if by == lifecycle.TriggerUser {
		r, err := s.store.Reservation(ctx, id)
		if err != nil {
			return model.Reservation{}, err
		}
		if r.UserID != actorID {
			return model.Reservation{}, ErrNotOwner
		}
	}
	fields := map[string]any{"cancel_reason": reason}
	return s.transition(ctx, id, lifecycle.StatusCancelled, by, nil, fields, s.clock.Now())
}

// CheckIn records the customer's arrival. The reservation must end up with a
// unit; one may be assigned here.
func (s *Service) CheckIn(ctx context.Context, id string, deviceID *int64) (model.Reservation, error) {
	now := s.clock.Now()
	if deviceID == nil {
		r, err := s.store.Reservation(ctx, id)
		if err != nil {
			return model.Reservation{}, err
		}
		if r.DeviceID == nil {
			return model.Reservation{}, invalid("device_id", "check-in requires an assigned device")
		}
	}
	fields := map[string]any{"check_in_at": now.UTC()}
	return s.transition(ctx, id, lifecycle.StatusCheckedIn, lifecycle.TriggerOperator, deviceID, fields, now)
}

// transition validates and applies one status change, assigning deviceID under
// the booking lock when given.
func (s *Service) transition(ctx context.Context, id string, to lifecycle.Status, by lifecycle.Trigger, deviceID *int64, fields map[string]any, now time.Time) (model.Reservation, error) {
	current, err := s.store.Reservation(ctx, id)
	if err != nil {
		return model.Reservation{}, err
	}
	if err := lifecycle.Check(current.Status, to, by); err != nil {
		return model.Reservation{}, err
	}

	ch := store.StatusChange{
		ID:     id,
		From:   lifecycle.Sources(to, by),
		To:     to,
		Fields: fields,
	}

	var updated model.Reservation
	if deviceID == nil || (current.DeviceID != nil && *current.DeviceID == *deviceID) {
		updated, err = s.store.ApplyStatusChange(ctx, ch)
	} else {
		updated, err = s.assignAndApply(ctx, current, *deviceID, ch)
	}
	if err != nil {
		return model.Reservation{}, err
	}

	s.events.Dispatch(events.NewLifecycleEvent(updated, current.Status, by, now))
	return updated, nil
}

// assignAndApply re-validates the device against the day's bookings and
// applies the change in the same serialized transaction.
func (s *Service) assignAndApply(ctx context.Context, r model.Reservation, deviceID int64, ch store.StatusChange) (model.Reservation, error) {
	key := store.LockKey(r.DeviceTypeID, r.Date)
	unlock := s.locks.Lock(key)
	defer unlock()

	var out model.Reservation
	err := s.store.Book(ctx, key, func(tx store.BookingTx) error {
		dev, err := tx.Device(deviceID)
		if err != nil {
			return err
		}
		if dev.DeviceTypeID != r.DeviceTypeID {
			return invalid("device_id", "device %d is not of type %d", dev.ID, r.DeviceTypeID)
		}
		if dev.Status == lifecycle.DeviceMaintenance {
			return &ConflictError{Reason: ReasonMaintenance}
		}

		rows, err := tx.BlockingForType(r.DeviceTypeID, r.Date)
		if err != nil {
			return err
		}
		others := schedule.Without(schedule.FromReservations(rows), r.ID)
		iv := schedule.Interval{Start: r.StartHour, End: r.EndHour}
		if c := schedule.CheckConflict(schedule.OnDevice(others, deviceID), iv); c != nil {
			return &ConflictError{Reason: ReasonDeviceConflict, Intervals: c.Intervals}
		}

		ch.Fields["device_id"] = deviceID
		out, err = tx.ApplyStatusChange(ch)
		if err != nil {
			if errors.Is(err, store.ErrSlotTaken) {
				return &ConflictError{Reason: ReasonConcurrentInsert}
			}
			return err
		}
		return nil
	})
	return out, err
}

// SetDeviceStatus is the operator's manual maintenance toggle.
func (s *Service) SetDeviceStatus(ctx context.Context, id int64, status lifecycle.DeviceStatus) (model.Device, error) {
	status, err := lifecycle.ParseDeviceStatus(string(status))
	if err != nil {
		return model.Device{}, invalid("status", "%v", err)
	}
	dev, err := s.store.Device(ctx, id)
	if err != nil {
		return model.Device{}, err
	}
	if status == lifecycle.DeviceMaintenance && dev.Status == lifecycle.DeviceInUse {
		return model.Device{}, &ConflictError{Reason: ReasonDeviceInUse}
	}
	return s.store.SetDeviceStatus(ctx, id, status)
}
