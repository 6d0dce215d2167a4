package database

import (
	"fmt"

	"github.com/applytrack/applytrack/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Connect opens the Postgres pool and migrates the schema.
func Connect(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates the tables for every tracked model.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Application{},
		&models.CalendarEvent{},
		&models.SyncState{},
		&models.ProcessedEmail{},
	)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
