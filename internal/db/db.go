package db

import (
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/udevs/promocast/internal/models"
)

// Open opens (or creates) the sqlite database at path and migrates the
// schema. Callers own the returned handle; there is no package-level
// connection so tests can run against isolated temp files.
func Open(path string) (*gorm.DB, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	// SQLite works best with a single writer; cap the pool accordingly.
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := conn.AutoMigrate(
		&models.TelegramUser{},
		&models.PremiumGrant{},
		&models.IssuedKey{},
		&models.PendingRequest{},
		&models.LinkedAccount{},
		&models.GroupRef{},
		&models.BroadcastFolder{},
	); err != nil {
		return nil, err
	}

	// Composite index that GORM doesn't auto-create from struct tags:
	// a group handle is unique within one owner's set.
	conn.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_group_owner_handle ON group_refs(user_id, handle)")

	return conn, nil
}
