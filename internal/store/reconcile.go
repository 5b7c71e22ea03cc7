package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"arcade-rental-backend/internal/lifecycle"
	"arcade-rental-backend/internal/model"
)

// DueCompletions lists checked-in reservations whose end has passed.
func (s *gormStore) DueCompletions(ctx context.Context, now time.Time) ([]model.Reservation, error) {
	var rows []model.Reservation
	err := s.db.WithContext(ctx).
		Where("status = ? AND ends_at <= ?", string(lifecycle.StatusCheckedIn), now.UTC()).
		Order("ends_at").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query due completions: %w", err)
	}
	return rows, nil
}

// DueNoShows lists approved, never checked-in reservations that started at or before cutoff.
func (s *gormStore) DueNoShows(ctx context.Context, cutoff time.Time) ([]model.Reservation, error) {
	var rows []model.Reservation
	err := s.db.WithContext(ctx).
		Where("status = ? AND check_in_at IS NULL AND starts_at <= ?", string(lifecycle.StatusApproved), cutoff.UTC()).
		Order("starts_at").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query due no-shows: %w", err)
	}
	return rows, nil
}

// DueStarts lists checked-in reservations whose rental window is open but not yet started.
func (s *gormStore) DueStarts(ctx context.Context, now time.Time) ([]model.Reservation, error) {
	var rows []model.Reservation
	err := s.db.WithContext(ctx).
		Where("status = ? AND actual_start_time IS NULL AND starts_at <= ? AND ends_at > ?",
			string(lifecycle.StatusCheckedIn), now.UTC(), now.UTC()).
		Order("starts_at").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query due rental starts: %w", err)
	}
	return rows, nil
}

// Complete closes a checked-in reservation and frees its device.
func (s *gormStore) Complete(ctx context.Context, r model.Reservation, now time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Reservation{}).
			Where("id = ? AND status = ?", r.ID, string(lifecycle.StatusCheckedIn)).
			Updates(map[string]any{
				"status":          string(lifecycle.StatusCompleted),
				"actual_end_time": now.UTC(),
			})
		if res.Error != nil {
			return fmt.Errorf("failed to complete reservation %s: %w", r.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: reservation %s", ErrStaleStatus, r.ID)
		}
		if r.DeviceID == nil {
			return nil
		}
		return setDeviceStatusIf(tx, *r.DeviceID, lifecycle.DeviceAvailable, "status = ?", string(lifecycle.DeviceInUse))
	})
}

// MarkNoShow lapses an approved reservation that was never checked in.
func (s *gormStore) MarkNoShow(ctx context.Context, r model.Reservation, now time.Time) error {
	res := s.db.WithContext(ctx).Model(&model.Reservation{}).
		Where("id = ? AND status = ? AND check_in_at IS NULL", r.ID, string(lifecycle.StatusApproved)).
		Update("status", string(lifecycle.StatusNoShow))
	if res.Error != nil {
		return fmt.Errorf("failed to mark reservation %s as no-show: %w", r.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: reservation %s", ErrStaleStatus, r.ID)
	}
	return nil
}

// StartRental stamps the actual start and occupies the device unless it is under maintenance.
func (s *gormStore) StartRental(ctx context.Context, r model.Reservation, now time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Reservation{}).
			Where("id = ? AND status = ? AND actual_start_time IS NULL", r.ID, string(lifecycle.StatusCheckedIn)).
			Update("actual_start_time", now.UTC())
		if res.Error != nil {
			return fmt.Errorf("failed to start rental %s: %w", r.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: reservation %s", ErrStaleStatus, r.ID)
		}
		if r.DeviceID == nil {
			return nil
		}
		return setDeviceStatusIf(tx, *r.DeviceID, lifecycle.DeviceInUse, "status <> ?", string(lifecycle.DeviceMaintenance))
	})
}

func setDeviceStatusIf(tx *gorm.DB, deviceID int64, status lifecycle.DeviceStatus, cond string, args ...any) error {
	err := tx.Model(&model.Device{}).
		Where("id = ?", deviceID).
		Where(cond, args...).
		Update("status", string(status)).Error
	if err != nil {
		return fmt.Errorf("failed to set device %d to %s: %w", deviceID, status, err)
	}
	return nil
}

// ClaimSync advances the named sync marker to now if the previous run is at
// least interval old. It reports whether the caller won the claim.
func (s *gormStore) ClaimSync(ctx context.Context, name string, now time.Time, interval time.Duration) (bool, error) {
	db := s.db.WithContext(ctx)
	res := db.Model(&model.SyncState{}).
		Where("name = ? AND last_run_at <= ?", name, now.Add(-interval).UTC()).
		Update("last_run_at", now.UTC())
	if res.Error != nil {
		return false, fmt.Errorf("failed to claim sync %s: %w", name, res.Error)
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	// First run: no marker row yet.
	res = db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.SyncState{Name: name, LastRunAt: now.UTC()})
	if res.Error != nil {
		return false, fmt.Errorf("failed to seed sync %s: %w", name, res.Error)
	}
	return res.RowsAffected > 0, nil
}
