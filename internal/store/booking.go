package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"arcade-rental-backend/internal/kst"
	"arcade-rental-backend/internal/lifecycle"
	"arcade-rental-backend/internal/model"
	"arcade-rental-backend/internal/resnum"
)

// BookingTx is the transaction-scoped view handed to Book callbacks. Every
// read and write inside a booking must go through it.
type BookingTx interface {
	BlockingForType(deviceTypeID int64, date string) ([]model.Reservation, error)
	BlockingForUser(userID, date string) ([]model.Reservation, error)
	CountActiveForUser(userID string, now time.Time) (int64, error)
	Reservation(id string) (model.Reservation, error)
	Device(id int64) (model.Device, error)
	NextSequence(date string, now time.Time) (int, error)
	Insert(r *model.Reservation) error
	ApplyStatusChange(ch StatusChange) (model.Reservation, error)
}

type bookingTx struct {
	tx *gorm.DB
}

// Book opens a transaction and, on PostgreSQL, takes a transaction-scoped
// advisory lock on key before running fn.
func (s *gormStore) Book(ctx context.Context, key string, fn func(tx BookingTx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == "postgres" {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", key).Error; err != nil {
				return fmt.Errorf("failed to acquire booking lock %s: %w", key, err)
			}
		}
		return fn(&bookingTx{tx: tx})
	})
}

func (b *bookingTx) BlockingForType(deviceTypeID int64, date string) ([]model.Reservation, error) {
	return blockingForType(b.tx, deviceTypeID, date)
}

func (b *bookingTx) BlockingForUser(userID, date string) ([]model.Reservation, error) {
	var rows []model.Reservation
	err := b.tx.
		Where("user_id = ? AND date = ? AND status IN ?", userID, date, lifecycle.Strings(lifecycle.BlockingStatuses)).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load reservations of user %s on %s: %w", userID, date, err)
	}
	return rows, nil
}

// CountActiveForUser counts blocking reservations that have not ended yet.
func (b *bookingTx) CountActiveForUser(userID string, now time.Time) (int64, error) {
	var n int64
	err := b.tx.Model(&model.Reservation{}).
		Where("user_id = ? AND status IN ? AND ends_at > ?", userID, lifecycle.Strings(lifecycle.BlockingStatuses), now.UTC()).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count active reservations of user %s: %w", userID, err)
	}
	return n, nil
}

func (b *bookingTx) Reservation(id string) (model.Reservation, error) {
	var r model.Reservation
	if err := b.tx.Take(&r, "id = ?", id).Error; err != nil {
		return r, notFound(err, fmt.Sprintf("reservation %s", id))
	}
	return r, nil
}

func (b *bookingTx) Device(id int64) (model.Device, error) {
	var d model.Device
	if err := b.tx.Take(&d, "id = ?", id).Error; err != nil {
		return d, notFound(err, fmt.Sprintf("device %d", id))
	}
	return d, nil
}

// NextSequence atomically increments the per-date counter and returns the new value.
func (b *bookingTx) NextSequence(date string, now time.Time) (int, error) {
	seq := model.ReservationSequence{Date: date, LastValue: 1, UpdatedAt: now.UTC()}
	err := b.tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "date"}},
		DoUpdates: clause.Assignments(map[string]any{
			"last_value": gorm.Expr("reservation_sequences.last_value + 1"),
			"updated_at": now.UTC(),
		}),
	}).Create(&seq).Error
	if err != nil {
		return 0, fmt.Errorf("failed to bump reservation sequence for %s: %w", date, err)
	}

	var current model.ReservationSequence
	if err := b.tx.Where(map[string]any{"date": date}).Take(&current).Error; err != nil {
		return 0, fmt.Errorf("failed to read reservation sequence for %s: %w", date, err)
	}

	issued, err := b.highestIssued(date)
	if err != nil {
		return 0, err
	}
	if current.LastValue > issued {
		return current.LastValue, nil
	}

	// The counter is behind numbers already on disk (restored backup, imported
	// rows); jump past them so the insert cannot collide again.
	next := issued + 1
	err = b.tx.Model(&model.ReservationSequence{}).
		Where("date = ?", date).
		Updates(map[string]any{"last_value": next, "updated_at": now.UTC()}).Error
	if err != nil {
		return 0, fmt.Errorf("failed to advance reservation sequence for %s: %w", date, err)
	}
	log.Printf("reservation sequence for %s was behind issued numbers; advanced %d -> %d", date, current.LastValue, next)
	return next, nil
}

// highestIssued returns the largest sequence among stored reservation numbers
// for date. Malformed legacy numbers are ignored.
func (b *bookingTx) highestIssued(date string) (int, error) {
	businessDate, err := kst.ParseDate(date)
	if err != nil {
		return 0, err
	}
	var numbers []string
	err = b.tx.Model(&model.Reservation{}).
		Where("reservation_number LIKE ?", resnum.Prefix(businessDate)+"-%").
		Order("reservation_number DESC").
		Limit(1).
		Pluck("reservation_number", &numbers).Error
	if err != nil {
		return 0, fmt.Errorf("failed to read issued reservation numbers for %s: %w", date, err)
	}
	if len(numbers) == 0 {
		return 0, nil
	}
	_, seq, err := resnum.Parse(numbers[0])
	if err != nil {
		log.Printf("ignoring reservation number %q: %v", numbers[0], err)
		return 0, nil
	}
	return seq, nil
}

func (b *bookingTx) Insert(r *model.Reservation) error {
	if err := classifyInsertError(b.tx.Create(r).Error); err != nil {
		return fmt.Errorf("failed to insert reservation %s: %w", r.ReservationNumber, err)
	}
	return nil
}

func (b *bookingTx) ApplyStatusChange(ch StatusChange) (model.Reservation, error) {
	return applyStatusChange(b.tx, ch)
}

// ApplyStatusChange runs a conditional update in its own transaction.
func (s *gormStore) ApplyStatusChange(ctx context.Context, ch StatusChange) (model.Reservation, error) {
	var out model.Reservation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		out, err = applyStatusChange(tx, ch)
		return err
	})
	return out, err
}

func applyStatusChange(tx *gorm.DB, ch StatusChange) (model.Reservation, error) {
	updates := map[string]any{"status": string(ch.To)}
	for k, v := range ch.Fields {
		updates[k] = v
	}

	res := tx.Model(&model.Reservation{}).
		Where("id = ? AND status IN ?", ch.ID, lifecycle.Strings(ch.From)).
		Updates(updates)
	if res.Error != nil {
		return model.Reservation{}, fmt.Errorf("failed to move reservation %s to %s: %w", ch.ID, ch.To, classifyInsertError(res.Error))
	}

	var current model.Reservation
	if err := tx.Take(&current, "id = ?", ch.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return current, fmt.Errorf("reservation %s: %w", ch.ID, ErrNotFound)
		}
		return current, fmt.Errorf("failed to reload reservation %s: %w", ch.ID, err)
	}
	if res.RowsAffected == 0 {
		return current, fmt.Errorf("%w: reservation %s is %s", ErrStaleStatus, ch.ID, current.Status)
	}
	return current, nil
}
