package database

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Cyvadra/stock-alert/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDatabase opens the database and migrates the schema
func InitDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: NewLogger(log.New(os.Stdout, "\r\n", log.LstdFlags)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// NewLogger logs warnings and slow queries to w. A lookup that finds no row
// is an expected outcome and is not logged.
func NewLogger(w logger.Writer) logger.Interface {
	return logger.New(w, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

// Migrate auto-migrates every persisted model
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Security{},
		&models.PriceHistory{},
		&models.WatchEntry{},
		&models.Position{},
		&models.ConditionRule{},
		&models.CooldownEntry{},
		&models.AlertLog{},
		&models.Setting{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
