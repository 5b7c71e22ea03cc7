package kst

import (
	"fmt"
	"time"
)

// Location is the venue's fixed UTC+9 zone. It never observes DST, so a fixed
// zone avoids depending on the host's tzdata.
var Location = time.FixedZone("KST", 9*60*60)

const (
	// MaxExtendedHour is the last addressable hour of a business date (05:00 next day).
	MaxExtendedHour = 29
	// NextDayOffset is added to next-morning hours to keep them on the same business date.
	NextDayOffset = 24
	// LastNextDayHour is the latest clock hour that still belongs to the previous business date.
	LastNextDayHour = 5

	dateLayout = "2006-01-02"
)

// Clock abstracts the wall clock so time-triggered logic can be tested.
type Clock interface {
	Now() time.Time
}

// RealClock returns the system time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// ToExtended maps a 0-23 clock hour to the extended 0-29 numbering.
func ToExtended(hour int, isNextDay bool) (int, error) {
	if hour < 0 || hour > 23 {
		return 0, fmt.Errorf("hour %d out of range 0-23", hour)
	}
	if !isNextDay {
		return hour, nil
	}
	if hour > LastNextDayHour {
		return 0, fmt.Errorf("next-day hour %d is past the %02d:00 close", hour, LastNextDayHour)
	}
	return hour + NextDayOffset, nil
}

// FromExtended is the inverse of ToExtended.
func FromExtended(ext int) (hour int, isNextDay bool, err error) {
	if ext < 0 || ext > MaxExtendedHour {
		return 0, false, fmt.Errorf("extended hour %d out of range 0-%d", ext, MaxExtendedHour)
	}
	if ext >= NextDayOffset {
		return ext - NextDayOffset, true, nil
	}
	return ext, false, nil
}

// ResolveDateTime turns a business date plus extended hour into an absolute instant.
func ResolveDateTime(businessDate time.Time, ext int) (time.Time, error) {
	hour, nextDay, err := FromExtended(ext)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := businessDate.In(Location).Date()
	if nextDay {
		d++
	}
	return time.Date(y, m, d, hour, 0, 0, 0, Location), nil
}

// Overlaps reports whether [s1,e1) and [s2,e2) intersect. Both intervals must use
// the extended numbering of the same business date.
func Overlaps(s1, e1, s2, e2 int) bool {
	return s1 < e2 && s2 < e1
}

// ParseDate parses a YYYY-MM-DD business date at KST midnight.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, s, Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid business date %q: %w", s, err)
	}
	return t, nil
}

// Today returns the KST calendar date containing now, at midnight.
func Today(now time.Time) time.Time {
	y, m, d := now.In(Location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, Location)
}

// AgeOn returns full years elapsed between birth and now, counted on the KST calendar.
func AgeOn(birth, now time.Time) int {
	b := birth.In(Location)
	n := now.In(Location)
	age := n.Year() - b.Year()
	if n.Month() < b.Month() || (n.Month() == b.Month() && n.Day() < b.Day()) {
		age--
	}
	return age
}
