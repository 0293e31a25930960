package db

import (
	"wallet_sync/internal/domain" // Importing domain models

	"gorm.io/driver/mysql" // MySQL driver for GORM
	"gorm.io/gorm"         // GORM ORM library
	"gorm.io/gorm/logger"  // GORM query logging
)

// Models lists every table the service owns
func Models() []any {
	return []any{&domain.Profile{}, &domain.Balance{}, &domain.Settings{}, &domain.Transaction{}, &domain.Sequence{}}
}

// Open connects to MySQL with the given DSN
func Open(dsn string, debug bool) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)} // Only slow queries and errors
	if debug {
		cfg.Logger = logger.Default.LogMode(logger.Info) // Every query
	}
	return gorm.Open(mysql.Open(dsn), cfg)
}

// Migrate performs automatic migration for the database schema
func Migrate(db *gorm.DB) error {
	// AutoMigrate will create tables, missing foreign keys, constraints, columns and indexes
	return db.AutoMigrate(Models()...)
}
