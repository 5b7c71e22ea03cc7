package model

import "time"

// User is the read-only slice of a customer record the scheduler needs.
type User struct {
	ID        string `gorm:"size:64;primaryKey"`
	BirthDate *time.Time
	CreatedAt time.Time
}
