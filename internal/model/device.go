package model

import (
	"time"

	"gorm.io/datatypes"

	"arcade-rental-backend/internal/lifecycle"
)

// DeviceType groups interchangeable physical units (e.g. one cabinet model).
type DeviceType struct {
	ID             int64  `gorm:"primaryKey"`
	Name           string `gorm:"uniqueIndex;size:128;not null"`
	DeviceCount    int    `gorm:"not null"`
	MaxRentalUnits int    `gorm:"not null;default:0"` // 0 means "use DeviceCount"
	CreatedAt      time.Time
	UpdatedAt      time.Time

	// Associations
	Devices   []Device             `gorm:"foreignKey:DeviceTypeID"`
	TimeSlots []TimeSlotDefinition `gorm:"foreignKey:DeviceTypeID"`
}

// RentalUnits is the number of units that may be rented concurrently.
func (t DeviceType) RentalUnits() int {
	if t.MaxRentalUnits > 0 {
		return t.MaxRentalUnits
	}
	return t.DeviceCount
}

// Device is one physical unit.
type Device struct {
	ID           int64                  `gorm:"primaryKey"`
	DeviceTypeID int64                  `gorm:"not null;uniqueIndex:uniq_devices_type_number,priority:1"`
	DeviceNumber int                    `gorm:"not null;uniqueIndex:uniq_devices_type_number,priority:2"`
	Status       lifecycle.DeviceStatus `gorm:"size:16;not null;default:'available'"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// Associations
	DeviceType DeviceType `gorm:"constraint:OnDelete:CASCADE"`
}

// SlotType classifies a configured time slot.
type SlotType string

const (
	SlotEarly     SlotType = "early"
	SlotNormal    SlotType = "normal"
	SlotOvernight SlotType = "overnight"
)

// CreditType is the play-credit scheme a reservation is sold under.
type CreditType string

const (
	CreditFixed     CreditType = "fixed"
	CreditFreeplay  CreditType = "freeplay"
	CreditUnlimited CreditType = "unlimited"
)

// CreditTypes lists every known credit scheme.
var CreditTypes = []CreditType{CreditFixed, CreditFreeplay, CreditUnlimited}

// CreditOption is one purchasable credit scheme within a slot.
type CreditOption struct {
	Type         CreditType  `json:"type"`
	Hours        []int       `json:"hours"`
	Prices       map[int]int `json:"prices"`
	FixedCredits int         `json:"fixed_credits,omitempty"`
}

// TimeSlotDefinition is admin-configured reference data for a device type.
// Hours use the extended 0-29 numbering.
type TimeSlotDefinition struct {
	ID            int64                             `gorm:"primaryKey"`
	DeviceTypeID  int64                             `gorm:"index;not null"`
	StartHour     int                               `gorm:"not null"`
	EndHour       int                               `gorm:"not null"`
	SlotType      SlotType                          `gorm:"size:16;not null"`
	IsYouthTime   bool                              `gorm:"not null;default:false"`
	CreditOptions datatypes.JSONSlice[CreditOption] `gorm:"not null"`
	Enable2P      bool                              `gorm:"column:enable_2p;not null;default:false"`
	Price2PExtra  int                               `gorm:"column:price_2p_extra;not null;default:0"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Option returns the credit option of the given type, if offered.
func (d TimeSlotDefinition) Option(t CreditType) (CreditOption, bool) {
	for _, o := range d.CreditOptions {
		if o.Type == t {
			return o, true
		}
	}
	return CreditOption{}, false
}
