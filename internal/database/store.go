package repository

import (
	"context"
	"log/slog"
	"time"

	"B24Relay/entity"
	"B24Relay/internal/config"
)

// Store is everything the relay persists: portal credentials, the chat map,
// the settings record, the log journal and relay records.
type Store interface {
	GetPortalAuth(ctx context.Context, domain string) (*entity.PortalAuth, error)
	SavePortalAuth(ctx context.Context, auth *entity.PortalAuth) error
	DeletePortalAuth(ctx context.Context, domain string) error

	SaveChatMap(ctx context.Context, m entity.ChatMap) error
	GetChatMap(ctx context.Context, portal, chatID string) (*entity.ChatMap, error)

	GetSettings(ctx context.Context) (*entity.Settings, error)
	SaveSettings(ctx context.Context, s entity.Settings) error

	AddLog(ctx context.Context, e entity.LogEntry) error
	ListLogs(ctx context.Context, f entity.LogFilter) ([]entity.LogEntry, error)

	AddRelayRecord(ctx context.Context, r entity.RelayRecord) error
	Stats(ctx context.Context, now time.Time) (*entity.Stats, error)
}

// Open picks the backend from configuration: MongoDB when enabled, else
// SQLite when a path is set, else process memory.
func Open(conf *config.Config, log *slog.Logger) (Store, string, error) {
	if conf.Mongo.Enabled {
		db, err := NewMongoClient(conf, log)
		return db, "mongodb", err
	}
	if conf.SQLite.Path != "" {
		db, err := NewSQLiteStore(conf.SQLite.Path, log)
		return db, "sqlite", err
	}
	return NewMemoryStore(), "memory", nil
}

func startOfDay(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}
