package core

import (
	"context"
	"encoding/json"
	"log/slog"

	"B24Relay/entity"
	"B24Relay/internal/lib/sl"

	"github.com/google/uuid"
)

var slogLevels = map[string]slog.Level{
	entity.LevelDebug:   slog.LevelDebug,
	entity.LevelInfo:    slog.LevelInfo,
	entity.LevelWarning: slog.LevelWarn,
	entity.LevelError:   slog.LevelError,
}

// journal records one relay step in the log store and pushes it to live
// subscribers. Store failures are only logged.
func (c *Core) journal(ctx context.Context, level, source, message string, details interface{}) {
	entry := entity.LogEntry{
		ID:        uuid.NewString(),
		Level:     level,
		Source:    source,
		Message:   message,
		CreatedAt: c.now(),
	}
	if details != nil {
		if s, ok := details.(string); ok {
			entry.Details = s
		} else if data, err := json.Marshal(details); err == nil {
			entry.Details = string(data)
		}
	}

	c.log.Log(ctx, slogLevels[level], message,
		slog.String("source", source),
		slog.String("details", entry.Details),
	)

	if c.repo != nil {
		if err := c.repo.AddLog(ctx, entry); err != nil {
			c.log.With(sl.Err(err)).Error("save log entry")
		}
	}
	if c.hub != nil {
		c.hub.BroadcastLog(entry)
	}
}

func (c *Core) record(ctx context.Context, direction entity.Direction, status string, msg *entity.InboundMessage, err error) {
	if c.repo == nil {
		return
	}
	r := entity.RelayRecord{
		Direction: direction,
		Status:    status,
		CreatedAt: c.now(),
	}
	if msg != nil {
		r.MessageID = msg.MessageID
		r.UserID = msg.ExternalUserID
	}
	if err != nil {
		r.Error = err.Error()
	}
	if err = c.repo.AddRelayRecord(ctx, r); err != nil {
		c.log.With(sl.Err(err)).Error("save relay record")
	}
}
