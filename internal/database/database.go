package database

import (
	"os"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ksred/orderbook-api/internal/types"
)

// NewDatabase initializes and returns a new GORM DB connection
// The database path can be overridden with the DATABASE_PATH environment
// variable; tests pass an in-memory DSN.
func NewDatabase() (*gorm.DB, error) {
	path := os.Getenv("DATABASE_PATH")
	if path == "" {
		path = "orderbook.db"
	}
	return Open(path)
}

// Open connects to the given sqlite DSN and runs migrations
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&types.Order{},
		&types.Trade{},
	); err != nil {
		return nil, err
	}

	return db, nil
}
