package schedule

import (
	"time"

	"arcade-rental-backend/internal/kst"
	"arcade-rental-backend/internal/model"
)

// YouthAgeLimit is the age below which a requester is treated as a minor.
const YouthAgeLimit = 16

// OccupiedUnits counts the units consumed by occupants overlapping iv: each
// distinct assigned device once, plus one per overlapping unassigned reservation.
func OccupiedUnits(occ []Occupant, iv Interval) int {
	devices := make(map[int64]struct{})
	unassigned := 0
	for _, o := range occ {
		if !kst.Overlaps(o.Interval.Start, o.Interval.End, iv.Start, iv.End) {
			continue
		}
		if o.DeviceID == nil {
			unassigned++
			continue
		}
		devices[*o.DeviceID] = struct{}{}
	}
	return len(devices) + unassigned
}

// PeakUnits is the largest OccupiedUnits over every single hour of iv.
func PeakUnits(occ []Occupant, iv Interval) int {
	peak := 0
	for h := iv.Start; h < iv.End; h++ {
		if n := OccupiedUnits(occ, Interval{Start: h, End: h + 1}); n > peak {
			peak = n
		}
	}
	return peak
}

// Remaining is the bookable headroom for iv, never negative.
func Remaining(units int, occ []Occupant, iv Interval) int {
	if r := units - OccupiedUnits(occ, iv); r > 0 {
		return r
	}
	return 0
}

// CreditBreakdown counts overlapping reservations per credit type.
func CreditBreakdown(occ []Occupant, iv Interval) map[model.CreditType]int {
	out := make(map[model.CreditType]int)
	for _, o := range occ {
		if kst.Overlaps(o.Interval.Start, o.Interval.End, iv.Start, iv.End) {
			out[o.CreditType]++
		}
	}
	return out
}

// IsYouth classifies a requester by birth date. Unknown birth dates are adults.
func IsYouth(birth *time.Time, now time.Time) bool {
	if birth == nil {
		return false
	}
	return kst.AgeOn(*birth, now) < YouthAgeLimit
}

// SlotView is the availability of one configured slot.
type SlotView struct {
	Definition      model.TimeSlotDefinition
	Remaining       int
	CreditBreakdown map[model.CreditType]int
}

// Allocate computes one SlotView per definition. Youth-time definitions are
// left out when the requester is a minor.
func Allocate(defs []model.TimeSlotDefinition, occ []Occupant, units int, youth bool) []SlotView {
	views := make([]SlotView, 0, len(defs))
	for _, d := range defs {
		if youth && d.IsYouthTime {
			continue
		}
		iv := Interval{Start: d.StartHour, End: d.EndHour}
		views = append(views, SlotView{
			Definition:      d,
			Remaining:       Remaining(units, occ, iv),
			CreditBreakdown: CreditBreakdown(occ, iv),
		})
	}
	return views
}

// MatchDefinition returns the definition whose bounds equal iv, if any.
func MatchDefinition(defs []model.TimeSlotDefinition, iv Interval) (model.TimeSlotDefinition, bool) {
	for _, d := range defs {
		if d.StartHour == iv.Start && d.EndHour == iv.End {
			return d, true
		}
	}
	return model.TimeSlotDefinition{}, false
}
