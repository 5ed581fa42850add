package db

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vitalsync/vitalsync/internal/db/models"
)

// InitDB opens the SQLite database and runs migrations.
func InitDB(dbPath string) (*gorm.DB, error) {
	gdb, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := gdb.AutoMigrate(
		&models.Credential{},
		&models.OAuthState{},
		&models.SyncLogEntry{},
		&models.CachedRecord{},
	); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return gdb, nil
}
