// Package booking admits reservations and drives operator and user transitions.
// Admission runs the conflict and capacity checks and the insert under one
// serialization key per device type and business date.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"arcade-rental-backend/internal/events"
	"arcade-rental-backend/internal/kst"
	"arcade-rental-backend/internal/lifecycle"
	"arcade-rental-backend/internal/model"
	"arcade-rental-backend/internal/parse"
	"arcade-rental-backend/internal/resnum"
	"arcade-rental-backend/internal/schedule"
	"arcade-rental-backend/internal/store"
)

// Service implements reservation admission and availability.
type Service struct {
	store  store.Store
	clock  kst.Clock
	policy Policy
	events events.Dispatcher
	locks  *keyedMutex
}

// NewService creates a booking service. A nil dispatcher discards events.
func NewService(s store.Store, clock kst.Clock, policy Policy, dispatcher events.Dispatcher) *Service {
	if clock == nil {
		clock = kst.RealClock{}
	}
	if dispatcher == nil {
		dispatcher = events.Discard{}
	}
	if policy.NumberRetries <= 0 {
		policy.NumberRetries = 1
	}
	return &Service{
		store:  s,
		clock:  clock,
		policy: policy,
		events: dispatcher,
		locks:  newKeyedMutex(),
	}
}

// Request is a booking request. Exactly one of DeviceTypeID (pool) or DeviceID
// (specific unit) is required; when both are set they must agree.
type Request struct {
	UserID       string
	Date         string
	DeviceTypeID int64
	DeviceID     *int64
	StartHour    int
	EndHour      int
	CreditType   model.CreditType
	PlayerCount  int
}

// validate checks everything that needs no stored data.
func (s *Service) validate(req Request, now time.Time) (time.Time, error) {
	if req.UserID == "" {
		return time.Time{}, invalid("user_id", "is required")
	}
	date, err := kst.ParseDate(req.Date)
	if err != nil {
		return time.Time{}, invalid("date", "must be YYYY-MM-DD")
	}
	if req.DeviceTypeID == 0 && req.DeviceID == nil {
		return time.Time{}, invalid("device_type_id", "device_type_id or device_id is required")
	}
	iv := schedule.Interval{Start: req.StartHour, End: req.EndHour}
	if req.StartHour < 0 || req.StartHour > kst.MaxExtendedHour {
		return time.Time{}, invalid("start_hour", "must be within 0-%d", kst.MaxExtendedHour)
	}
	if !iv.Valid() {
		return time.Time{}, invalid("end_hour", "must be after start_hour and at most %d", kst.MaxExtendedHour)
	}
	if h := iv.Hours(); h < s.policy.MinHours || h > s.policy.MaxHours {
		return time.Time{}, invalid("end_hour", "duration must be %d-%d hours", s.policy.MinHours, s.policy.MaxHours)
	}
	if req.PlayerCount < 1 || req.PlayerCount > s.policy.MaxPlayers {
		return time.Time{}, invalid("player_count", "must be 1-%d", s.policy.MaxPlayers)
	}
	if !knownCredit(req.CreditType) {
		return time.Time{}, invalid("credit_type", "unknown credit type %q", req.CreditType)
	}

	startsAt, err := kst.ResolveDateTime(date, req.StartHour)
	if err != nil {
		return time.Time{}, invalid("start_hour", "%v", err)
	}
	if startsAt.Before(now.Add(s.policy.MinLeadTime)) {
		return time.Time{}, invalid("start_hour", "must start at least %s from now", s.policy.MinLeadTime)
	}
	if date.After(kst.Today(now).AddDate(0, 0, s.policy.MaxAdvanceDays)) {
		return time.Time{}, invalid("date", "must be within %d days", s.policy.MaxAdvanceDays)
	}
	return date, nil
}

func knownCredit(t model.CreditType) bool {
	for _, c := range model.CreditTypes {
		if c == t {
			return true
		}
	}
	return false
}

// resolveTarget loads the device type and, for unit bookings, the device.
func (s *Service) resolveTarget(ctx context.Context, typeID int64, deviceID *int64) (model.DeviceType, *model.Device, error) {
	var dev *model.Device
	if deviceID != nil {
		d, err := s.store.Device(ctx, *deviceID)
		if err != nil {
			return model.DeviceType{}, nil, err
		}
		if typeID != 0 && typeID != d.DeviceTypeID {
			return model.DeviceType{}, nil, invalid("device_id", "device %d is not of type %d", d.ID, typeID)
		}
		typeID = d.DeviceTypeID
		dev = &d
	}
	dt, err := s.store.DeviceType(ctx, typeID)
	if err != nil {
		return model.DeviceType{}, nil, err
	}
	return dt, dev, nil
}

func (s *Service) isYouth(ctx context.Context, userID string, now time.Time) (bool, error) {
	if userID == "" {
		return false, nil
	}
	u, err := s.store.User(ctx, userID)
	if err != nil {
		return false, err
	}
	if u == nil {
		return false, nil
	}
	return schedule.IsYouth(u.BirthDate, now), nil
}

// quote applies the slot's credit rules and returns the total price.
func quote(dt model.DeviceType, iv schedule.Interval, req Request, youth bool) (int, error) {
	if youth {
		for _, d := range dt.TimeSlots {
			if d.IsYouthTime && kst.Overlaps(d.StartHour, d.EndHour, iv.Start, iv.End) {
				return 0, invalid("start_hour", "slot %02d-%02d is not offered to this user", d.StartHour, d.EndHour)
			}
		}
	}
	def, ok := schedule.MatchDefinition(dt.TimeSlots, iv)
	if !ok {
		if req.PlayerCount > 1 {
			return 0, invalid("player_count", "2P play is only offered on configured slots")
		}
		return 0, nil
	}
	if req.PlayerCount > 1 && !def.Enable2P {
		return 0, invalid("player_count", "slot does not allow 2P play")
	}
	opt, ok := def.Option(req.CreditType)
	if !ok {
		return 0, invalid("credit_type", "slot does not offer %s", req.CreditType)
	}
	total := opt.Prices[iv.Hours()]
	if req.PlayerCount > 1 {
		total += def.Price2PExtra
	}
	return total, nil
}

// CreateReservation admits a pending reservation or explains why it cannot.
func (s *Service) CreateReservation(ctx context.Context, req Request) (model.Reservation, error) {
	now := s.clock.Now()
	date, err := s.validate(req, now)
	if err != nil {
		return model.Reservation{}, err
	}

	dt, dev, err := s.resolveTarget(ctx, req.DeviceTypeID, req.DeviceID)
	if err != nil {
		return model.Reservation{}, err
	}
	if dev != nil && dev.Status == lifecycle.DeviceMaintenance {
		return model.Reservation{}, &ConflictError{Reason: ReasonMaintenance}
	}
	youth, err := s.isYouth(ctx, req.UserID, now)
	if err != nil {
		return model.Reservation{}, err
	}
	iv := schedule.Interval{Start: req.StartHour, End: req.EndHour}
	total, err := quote(dt, iv, req, youth)
	if err != nil {
		return model.Reservation{}, err
	}

	r, err := s.newReservation(req, dt, dev, date, total)
	if err != nil {
		return model.Reservation{}, err
	}

	key := store.LockKey(dt.ID, req.Date)
	for attempt := 1; attempt <= s.policy.NumberRetries; attempt++ {
		err = s.admit(ctx, key, dt, &r, now)
		if !errors.Is(err, store.ErrDuplicateNumber) {
			break
		}
		log.Printf("reservation number collision on %s (attempt %d/%d)", req.Date, attempt, s.policy.NumberRetries)
	}
	if errors.Is(err, store.ErrDuplicateNumber) {
		return model.Reservation{}, fmt.Errorf("%w: %v", ErrSequenceExhausted, err)
	}
	if err != nil {
		return model.Reservation{}, err
	}

	s.events.Dispatch(events.NewLifecycleEvent(r, "", lifecycle.TriggerUser, now))
	return r, nil
}

func (s *Service) newReservation(req Request, dt model.DeviceType, dev *model.Device, date time.Time, total int) (model.Reservation, error) {
	startsAt, err := kst.ResolveDateTime(date, req.StartHour)
	if err != nil {
		return model.Reservation{}, invalid("start_hour", "%v", err)
	}
	endsAt, err := kst.ResolveDateTime(date, req.EndHour)
	if err != nil {
		return model.Reservation{}, invalid("end_hour", "%v", err)
	}
	startText, err := parse.FormatClock(req.StartHour)
	if err != nil {
		return model.Reservation{}, invalid("start_hour", "%v", err)
	}
	endText, err := parse.FormatClock(req.EndHour)
	if err != nil {
		return model.Reservation{}, invalid("end_hour", "%v", err)
	}

	r := model.Reservation{
		UserID:       req.UserID,
		DeviceTypeID: dt.ID,
		Date:         req.Date,
		StartHour:    req.StartHour,
		EndHour:      req.EndHour,
		StartTime:    startText,
		EndTime:      endText,
		StartsAt:     startsAt.UTC(),
		EndsAt:       endsAt.UTC(),
		Status:       lifecycle.StatusPending,
		CreditType:   req.CreditType,
		PlayerCount:  req.PlayerCount,
		TotalAmount:  total,
	}
	if dev != nil {
		id := dev.ID
		r.DeviceID = &id
	}
	return r, nil
}

// admit runs one serialized check-and-insert attempt.
func (s *Service) admit(ctx context.Context, key string, dt model.DeviceType, r *model.Reservation, now time.Time) error {
	unlock := s.locks.Lock(key)
	defer unlock()

	return s.store.Book(ctx, key, func(tx store.BookingTx) error {
		iv := schedule.Interval{Start: r.StartHour, End: r.EndHour}

		active, err := tx.CountActiveForUser(r.UserID, now)
		if err != nil {
			return err
		}
		if int(active) >= s.policy.MaxActivePerUser {
			return &ConflictError{Reason: ReasonUserLimit}
		}

		mine, err := tx.BlockingForUser(r.UserID, r.Date)
		if err != nil {
			return err
		}
		if c := schedule.CheckConflict(schedule.FromReservations(mine), iv); c != nil {
			return &ConflictError{Reason: ReasonUserOverlap, Intervals: c.Intervals}
		}

		rows, err := tx.BlockingForType(dt.ID, r.Date)
		if err != nil {
			return err
		}
		occ := schedule.FromReservations(rows)
		if r.DeviceID != nil {
			if c := schedule.CheckConflict(schedule.OnDevice(occ, *r.DeviceID), iv); c != nil {
				return &ConflictError{Reason: ReasonDeviceConflict, Intervals: c.Intervals}
			}
		}
		units := dt.RentalUnits()
		if schedule.PeakUnits(occ, iv) >= units {
			remaining := schedule.Remaining(units, occ, iv)
			return &ConflictError{Reason: ReasonCapacity, Remaining: &remaining}
		}

		seq, err := tx.NextSequence(r.Date, now)
		if err != nil {
			return err
		}
		date, err := kst.ParseDate(r.Date)
		if err != nil {
			return err
		}
		number, err := resnum.Format(date, seq)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSequenceExhausted, err)
		}

		r.ID = uuid.NewString()
		r.ReservationNumber = number
		if err := tx.Insert(r); err != nil {
			if errors.Is(err, store.ErrSlotTaken) {
				return &ConflictError{Reason: ReasonConcurrentInsert}
			}
			return err
		}
		return nil
	})
}

// SlotQuery selects availability for a device type pool or one device.
type SlotQuery struct {
	Date         string
	DeviceTypeID int64
	DeviceID     *int64
	UserID       string
}

// AvailableSlots returns one view per configured slot, with remaining capacity
// and a credit-type breakdown of the overlapping bookings.
func (s *Service) AvailableSlots(ctx context.Context, q SlotQuery) ([]schedule.SlotView, error) {
	if _, err := kst.ParseDate(q.Date); err != nil {
		return nil, invalid("date", "must be YYYY-MM-DD")
	}
	if q.DeviceTypeID == 0 && q.DeviceID == nil {
		return nil, invalid("device_type_id", "device_type_id or device_id is required")
	}

	dt, dev, err := s.resolveTarget(ctx, q.DeviceTypeID, q.DeviceID)
	if err != nil {
		return nil, err
	}
	youth, err := s.isYouth(ctx, q.UserID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	rows, err := s.store.BlockingReservations(ctx, dt.ID, q.Date)
	if err != nil {
		return nil, err
	}
	occ := schedule.FromReservations(rows)
	views := schedule.Allocate(dt.TimeSlots, occ, dt.RentalUnits(), youth)

	if dev != nil {
		own := schedule.OnDevice(occ, dev.ID)
		for i := range views {
			iv := schedule.Interval{Start: views[i].Definition.StartHour, End: views[i].Definition.EndHour}
			switch {
			case dev.Status == lifecycle.DeviceMaintenance, schedule.CheckConflict(own, iv) != nil:
				views[i].Remaining = 0
			case views[i].Remaining > 1:
				views[i].Remaining = 1
			}
		}
	}
	return views, nil
}

// Get loads a reservation by ID.
func (s *Service) Get(ctx context.Context, id string) (model.Reservation, error) {
	return s.store.Reservation(ctx, id)
}
