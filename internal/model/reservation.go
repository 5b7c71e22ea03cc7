package model

import (
	"time"

	"arcade-rental-backend/internal/lifecycle"
)

// Reservation is a booking of one unit (or one unit of a type's pool) for an
// extended-hour interval on a business date. Rows are never deleted.
type Reservation struct {
	ID           string `gorm:"type:varchar(36);primaryKey"`
	UserID       string `gorm:"size:64;not null;index"`
	DeviceTypeID int64  `gorm:"not null;index:idx_reservations_type_date,priority:1"`
	DeviceID     *int64 `gorm:"index:idx_reservations_device_date,priority:1"`
	Date         string `gorm:"size:10;not null;index:idx_reservations_type_date,priority:2;index:idx_reservations_device_date,priority:2"`

	StartHour int       `gorm:"not null"`
	EndHour   int       `gorm:"not null"`
	StartTime string    `gorm:"size:5;not null"` // literal clock text, e.g. "22:00"
	EndTime   string    `gorm:"size:5;not null"`
	StartsAt  time.Time `gorm:"not null;index"`
	EndsAt    time.Time `gorm:"not null;index"`

	Status            lifecycle.Status `gorm:"size:16;not null;index"`
	CreditType        CreditType       `gorm:"size:16;not null"`
	PlayerCount       int              `gorm:"not null;default:1"`
	TotalAmount       int              `gorm:"not null;default:0"`
	ReservationNumber string           `gorm:"size:16;not null;uniqueIndex:uniq_reservations_reservation_number"`

	ApprovedAt      *time.Time
	ApprovedBy      string `gorm:"size:64"`
	RejectionReason string `gorm:"size:255"`
	CancelReason    string `gorm:"size:255"`
	CheckInAt       *time.Time
	ActualStartTime *time.Time
	ActualEndTime   *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
