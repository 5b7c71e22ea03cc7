// Package schedule holds the pure interval algorithms used for booking admission
// and availability: per-device conflict detection and per-type capacity counting.
// Every interval uses the extended-hour numbering of a single business date.
package schedule

import (
	"arcade-rental-backend/internal/kst"
	"arcade-rental-backend/internal/model"
)

// Interval is a half-open [Start, End) span of extended hours.
type Interval struct {
	Start int `json:"start_hour"`
	End   int `json:"end_hour"`
}

// Valid reports whether the interval is non-empty and within the operating day.
func (i Interval) Valid() bool {
	return i.Start >= 0 && i.End <= kst.MaxExtendedHour && i.Start < i.End
}

// Hours is the interval's length.
func (i Interval) Hours() int { return i.End - i.Start }

// Occupant is a blocking reservation reduced to what the algorithms need.
// DeviceID is nil for pool reservations without an assigned unit.
type Occupant struct {
	ReservationID string
	UserID        string
	DeviceID      *int64
	Interval      Interval
	CreditType    model.CreditType
}

// FromReservations keeps the blocking reservations and converts them to occupants.
func FromReservations(rows []model.Reservation) []Occupant {
	out := make([]Occupant, 0, len(rows))
	for _, r := range rows {
		if !r.Status.IsBlocking() {
			continue
		}
		out = append(out, Occupant{
			ReservationID: r.ID,
			UserID:        r.UserID,
			DeviceID:      r.DeviceID,
			Interval:      Interval{Start: r.StartHour, End: r.EndHour},
			CreditType:    r.CreditType,
		})
	}
	return out
}

// Conflict describes the existing intervals a candidate collides with.
type Conflict struct {
	Intervals      []Interval
	ReservationIDs []string
}

// CheckConflict tests a candidate interval against one device's occupants and
// returns nil when it can be admitted.
func CheckConflict(existing []Occupant, candidate Interval) *Conflict {
	var c *Conflict
	for _, o := range existing {
		if !kst.Overlaps(o.Interval.Start, o.Interval.End, candidate.Start, candidate.End) {
			continue
		}
		if c == nil {
			c = &Conflict{}
		}
		c.Intervals = append(c.Intervals, o.Interval)
		c.ReservationIDs = append(c.ReservationIDs, o.ReservationID)
	}
	return c
}

// OnDevice filters occupants assigned to the given device.
func OnDevice(occ []Occupant, deviceID int64) []Occupant {
	var out []Occupant
	for _, o := range occ {
		if o.DeviceID != nil && *o.DeviceID == deviceID {
			out = append(out, o)
		}
	}
	return out
}

// Without drops the occupant with the given reservation ID.
func Without(occ []Occupant, reservationID string) []Occupant {
	out := make([]Occupant, 0, len(occ))
	for _, o := range occ {
		if o.ReservationID != reservationID {
			out = append(out, o)
		}
	}
	return out
}
