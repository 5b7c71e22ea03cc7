package booking

import (
	"time"

	"arcade-rental-backend/config"
)

// Policy holds the admission rules applied to new reservations.
type Policy struct {
	MinHours         int
	MaxHours         int
	MaxPlayers       int
	MaxActivePerUser int
	MaxAdvanceDays   int
	MinLeadTime      time.Duration
	NumberRetries    int
}

// DefaultPolicy mirrors the venue's standing rules.
func DefaultPolicy() Policy {
	return Policy{
		MinHours:         1,
		MaxHours:         4,
		MaxPlayers:       2,
		MaxActivePerUser: 3,
		MaxAdvanceDays:   21,
		MinLeadTime:      24 * time.Hour,
		NumberRetries:    3,
	}
}

// PolicyFromConfig converts the loaded booking section.
func PolicyFromConfig(c config.BookingConfig) Policy {
	return Policy{
		MinHours:         c.MinHours,
		MaxHours:         c.MaxHours,
		MaxPlayers:       c.MaxPlayers,
		MaxActivePerUser: c.MaxActivePerUser,
		MaxAdvanceDays:   c.MaxAdvanceDays,
		MinLeadTime:      time.Duration(c.MinLeadTimeMinutes) * time.Minute,
		NumberRetries:    c.NumberRetries,
	}
}
