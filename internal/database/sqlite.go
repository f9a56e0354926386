package database

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/codyseavey/manga-translator/internal/models"
)

// Open connects to the SQLite database at dbPath and migrates the schema.
// Use ":memory:" for a throwaway database (tests).
//
// The pool is pinned to a single connection: the cache relies on one store handle
// serializing every write, and an in-memory database only exists on its own connection.
func Open(dbPath string, verbose bool) (*gorm.DB, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	level := logger.Warn
	if verbose {
		level = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: newLogger(log.New(os.Stdout, "\r\n", log.LstdFlags), level),
	})
	if err != nil {
		return nil, err
	}

	if err := initialize(db); err != nil {
		return nil, err
	}
	log.Printf("Database connected and migrated: %s", dbPath)
	return db, nil
}

// newLogger is gorm's default logger minus the "record not found" noise: a cache miss is routine
func newLogger(w logger.Writer, level logger.LogLevel) logger.Interface {
	return logger.New(w, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
		Colorful:                  true,
	})
}

// initialize pins the pool and migrates the schema. The pool is closed if migration fails.
func initialize(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		sqlDB.Close()
		return err
	}
	return nil
}

func migrate(db *gorm.DB) error {
	if err := PrepareLegacySchema(db); err != nil {
		return fmt.Errorf("failed to prepare legacy schema: %w", err)
	}
	if err := db.AutoMigrate(&models.TranslationCache{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return RunMigrations(db)
}

// Close releases the underlying connection pool
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
