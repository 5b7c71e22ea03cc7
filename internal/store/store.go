package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"arcade-rental-backend/internal/lifecycle"
	"arcade-rental-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	DeviceTypes(ctx context.Context) ([]model.DeviceType, error)
	DeviceType(ctx context.Context, id int64) (model.DeviceType, error)
	Device(ctx context.Context, id int64) (model.Device, error)
	User(ctx context.Context, id string) (*model.User, error)
	Reservation(ctx context.Context, id string) (model.Reservation, error)
	BlockingReservations(ctx context.Context, deviceTypeID int64, date string) ([]model.Reservation, error)

	// Book runs fn in one transaction serialized on key.
	Book(ctx context.Context, key string, fn func(tx BookingTx) error) error
	ApplyStatusChange(ctx context.Context, ch StatusChange) (model.Reservation, error)
	SetDeviceStatus(ctx context.Context, id int64, status lifecycle.DeviceStatus) (model.Device, error)

	DueCompletions(ctx context.Context, now time.Time) ([]model.Reservation, error)
	DueNoShows(ctx context.Context, cutoff time.Time) ([]model.Reservation, error)
	DueStarts(ctx context.Context, now time.Time) ([]model.Reservation, error)
	Complete(ctx context.Context, r model.Reservation, now time.Time) error
	MarkNoShow(ctx context.Context, r model.Reservation, now time.Time) error
	StartRental(ctx context.Context, r model.Reservation, now time.Time) error

	ClaimSync(ctx context.Context, name string, now time.Time, interval time.Duration) (bool, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}

func (s *gormStore) DeviceTypes(ctx context.Context) ([]model.DeviceType, error) {
	var types []model.DeviceType
	err := s.db.WithContext(ctx).
		Preload("Devices", func(db *gorm.DB) *gorm.DB { return db.Order("device_number") }).
		Preload("TimeSlots", func(db *gorm.DB) *gorm.DB { return db.Order("start_hour") }).
		Order("id").
		Find(&types).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list device types: %w", err)
	}
	return types, nil
}

func (s *gormStore) DeviceType(ctx context.Context, id int64) (model.DeviceType, error) {
	var t model.DeviceType
	err := s.db.WithContext(ctx).
		Preload("TimeSlots", func(db *gorm.DB) *gorm.DB { return db.Order("start_hour") }).
		Take(&t, "id = ?", id).Error
	if err != nil {
		return t, notFound(err, fmt.Sprintf("device type %d", id))
	}
	return t, nil
}

func (s *gormStore) Device(ctx context.Context, id int64) (model.Device, error) {
	var d model.Device
	if err := s.db.WithContext(ctx).Take(&d, "id = ?", id).Error; err != nil {
		return d, notFound(err, fmt.Sprintf("device %d", id))
	}
	return d, nil
}

// User returns nil without error for unknown users; they are treated as adults.
func (s *gormStore) User(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := s.db.WithContext(ctx).Take(&u, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", id, err)
	}
	return &u, nil
}

func (s *gormStore) Reservation(ctx context.Context, id string) (model.Reservation, error) {
	var r model.Reservation
	if err := s.db.WithContext(ctx).Take(&r, "id = ?", id).Error; err != nil {
		return r, notFound(err, fmt.Sprintf("reservation %s", id))
	}
	return r, nil
}

func (s *gormStore) BlockingReservations(ctx context.Context, deviceTypeID int64, date string) ([]model.Reservation, error) {
	return blockingForType(s.db.WithContext(ctx), deviceTypeID, date)
}

func blockingForType(db *gorm.DB, deviceTypeID int64, date string) ([]model.Reservation, error) {
	var rows []model.Reservation
	err := db.
		Where("device_type_id = ? AND date = ? AND status IN ?", deviceTypeID, date, lifecycle.Strings(lifecycle.BlockingStatuses)).
		Order("start_hour").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load reservations for type %d on %s: %w", deviceTypeID, date, err)
	}
	return rows, nil
}

func (s *gormStore) SetDeviceStatus(ctx context.Context, id int64, status lifecycle.DeviceStatus) (model.Device, error) {
	var d model.Device
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Device{}).Where("id = ?", id).Update("status", string(status))
		if res.Error != nil {
			return fmt.Errorf("failed to update device %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("device %d: %w", id, ErrNotFound)
		}
		return tx.Take(&d, "id = ?", id).Error
	})
	return d, err
}
