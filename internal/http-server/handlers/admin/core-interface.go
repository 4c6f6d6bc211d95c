package admin

import (
	"context"

	"B24Relay/entity"
)

type Core interface {
	GetSettings(ctx context.Context) (*entity.Settings, error)
	SaveSettings(ctx context.Context, settings *entity.Settings) error
	GetStats(ctx context.Context) (*entity.Stats, error)
	GetLogs(ctx context.Context, filter entity.LogFilter) ([]entity.LogEntry, error)
	TestConnection(ctx context.Context) (interface{}, error)
}
