package model

import "time"

// ReservationSequence is the per-business-date counter behind reservation numbers.
type ReservationSequence struct {
	Date      string `gorm:"size:10;primaryKey"`
	LastValue int    `gorm:"not null"`
	UpdatedAt time.Time
}

// SyncState holds the shared debounce timestamp for a named background pass.
type SyncState struct {
	Name      string    `gorm:"size:64;primaryKey"`
	LastRunAt time.Time `gorm:"not null"`
}
