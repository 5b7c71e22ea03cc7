package db

import (
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"arcade-rental-backend/config"
	"arcade-rental-backend/internal/lifecycle"
	"arcade-rental-backend/internal/model"
)

// Init initializes the database connection and runs migrations.
func Init(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dialector, err := openDialector(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel(cfg.LogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	if cfg.Driver == "sqlite" {
		// SQLite allows one writer; a single pinned connection keeps transactions
		// serialized and in-memory databases alive.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Println("Database initialization complete.")
	return db, nil
}

func openDialector(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "", "postgres":
		return postgres.Open(cfg.DSN), nil
	case "sqlite":
		return sqlite.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func logLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

// Migrate creates the schema and the double-booking backstops.
func Migrate(db *gorm.DB) error {
	log.Println("Running database migrations...")
	if err := db.AutoMigrate(
		&model.DeviceType{},
		&model.Device{},
		&model.TimeSlotDefinition{},
		&model.User{},
		&model.Reservation{},
		&model.ReservationSequence{},
		&model.SyncState{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}

	if err := db.Exec(backstopIndexDDL()).Error; err != nil {
		return fmt.Errorf("failed to create reservation backstop index: %w", err)
	}

	if db.Dialector.Name() == "postgres" {
		log.Println("PostgreSQL detected, applying exclusion constraint DDL...")
		if err := applyPostgresDDL(db); err != nil {
			log.Printf("Warning: failed to apply exclusion constraint: %v. Continuing with the unique backstop only.", err)
		}
	}
	return nil
}

func blockingList() string {
	quoted := make([]string, 0, len(lifecycle.BlockingStatuses))
	for _, s := range lifecycle.BlockingStatuses {
		quoted = append(quoted, "'"+string(s)+"'")
	}
	return strings.Join(quoted, ", ")
}

// backstopIndexDDL rejects two blocking reservations starting in the same hour
// on the same device. Both SQLite and PostgreSQL accept partial indexes.
func backstopIndexDDL() string {
	return "CREATE UNIQUE INDEX IF NOT EXISTS uniq_reservations_device_slot " +
		"ON reservations (device_id, date, start_hour) " +
		"WHERE device_id IS NOT NULL AND status IN (" + blockingList() + ")"
}

func applyPostgresDDL(db *gorm.DB) error {
	ddls := []string{
		"CREATE EXTENSION IF NOT EXISTS btree_gist;",

		// Drop-then-add keeps the migration rerunnable.
		"ALTER TABLE reservations DROP CONSTRAINT IF EXISTS excl_reservations_device_interval;",

		// Blocking intervals on one device and date never overlap ([) ranges).
		"ALTER TABLE reservations ADD CONSTRAINT excl_reservations_device_interval " +
			"EXCLUDE USING gist (device_id WITH =, \"date\" WITH =, int4range(start_hour, end_hour, '[)') WITH &&) " +
			"WHERE (device_id IS NOT NULL AND status IN (" + blockingList() + "));",

		"ALTER TABLE reservations DROP CONSTRAINT IF EXISTS chk_reservations_hours;",
		"ALTER TABLE reservations ADD CONSTRAINT chk_reservations_hours " +
			"CHECK (start_hour >= 0 AND start_hour < end_hour AND end_hour <= 29);",
	}

	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}
