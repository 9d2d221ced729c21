package db

import (
	"context"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/aosus/askaosus/db/models"
)

// Open connects to the sqlite database described by cfg and runs migrations
// when cfg.AutoMigrate is set.
func Open(cfg Config) (*gorm.DB, error) {
	if cfg.Driver != "" && cfg.Driver != "sqlite" {
		return nil, fmt.Errorf("unsupported db driver: %s", cfg.Driver)
	}
	dsn, err := ResolveSQLiteDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("resolve sqlite dsn: %w", err)
	}

	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.Pool.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Pool.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Pool.ConnMaxLifetime)

	if cfg.SQLite.BusyTimeoutMs > 0 {
		gdb.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.SQLite.BusyTimeoutMs))
	}
	if cfg.SQLite.WAL {
		gdb.Exec("PRAGMA journal_mode = WAL")
	}
	if cfg.SQLite.ForeignKeys {
		gdb.Exec("PRAGMA foreign_keys = ON")
	}

	if cfg.AutoMigrate {
		if err := AutoMigrate(gdb); err != nil {
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
	}
	return gdb, nil
}

// SentStore persists the bot's sent-message ids.
type SentStore struct {
	gdb *gorm.DB
}

func NewSentStore(gdb *gorm.DB) (*SentStore, error) {
	if gdb == nil {
		return nil, fmt.Errorf("nil gorm db")
	}
	return &SentStore{gdb: gdb}, nil
}

// Record saves one sent event id. Duplicate event ids are ignored.
func (s *SentStore) Record(ctx context.Context, roomID, eventID string) error {
	if eventID == "" {
		return fmt.Errorf("event_id is required")
	}
	res := s.gdb.WithContext(ctx).
		Where(models.SentMessage{EventID: eventID}).
		FirstOrCreate(&models.SentMessage{EventID: eventID, RoomID: roomID})
	if res.Error != nil {
		return fmt.Errorf("record sent message: %w", res.Error)
	}
	return nil
}

// RecentEventIDs returns up to limit sent event ids, oldest first, for
// seeding the in-memory registry on startup.
func (s *SentStore) RecentEventIDs(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 1000
	}
	var rows []models.SentMessage
	err := s.gdb.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load sent messages: %w", err)
	}
	ids := make([]string, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		ids = append(ids, rows[i].EventID)
	}
	return ids, nil
}
