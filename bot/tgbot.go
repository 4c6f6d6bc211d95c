package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"B24Relay/entity"
	"B24Relay/internal/lib/sl"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers"
)

// StatsSource answers the /status command.
type StatsSource interface {
	GetStats(ctx context.Context) (*entity.Stats, error)
}

// TgBot sends error alerts to the admin chat and answers the admin's
// /status command.
type TgBot struct {
	log         *slog.Logger
	api         *tgbotapi.Bot
	botUsername string
	adminId     int64
	stats       StatsSource
}

func NewTgBot(botName, apiKey string, adminId int64, log *slog.Logger) (*TgBot, error) {
	tgBot := &TgBot{
		log:         log.With(sl.Module("tgbot")),
		adminId:     adminId,
		botUsername: botName,
	}

	api, err := tgbotapi.NewBot(apiKey, nil)
	if err != nil {
		return nil, fmt.Errorf("creating api instance: %w", err)
	}
	tgBot.api = api

	return tgBot, nil
}

func (t *TgBot) SetStatsSource(stats StatsSource) {
	t.stats = stats
}

// Start polls for updates until the updater stops.
func (t *TgBot) Start() error {
	dispatcher := ext.NewDispatcher(&ext.DispatcherOpts{
		Error: func(b *tgbotapi.Bot, ctx *ext.Context, err error) ext.DispatcherAction {
			t.log.Warn("handling update", sl.Err(err))
			return ext.DispatcherActionNoop
		},
		MaxRoutines: ext.DefaultMaxRoutines,
	})
	dispatcher.AddHandler(handlers.NewCommand("status", t.status))

	updater := ext.NewUpdater(dispatcher, nil)
	err := updater.StartPolling(t.api, &ext.PollingOpts{
		DropPendingUpdates: true,
		GetUpdatesOpts: &tgbotapi.GetUpdatesOpts{
			Timeout: 9,
			RequestOpts: &tgbotapi.RequestOpts{
				Timeout: time.Second * 10,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("start polling: %w", err)
	}

	updater.Idle()
	return nil
}

func (t *TgBot) status(b *tgbotapi.Bot, ctx *ext.Context) error {
	if ctx.EffectiveUser == nil || ctx.EffectiveUser.Id != t.adminId {
		return nil
	}
	if t.stats == nil {
		_, err := ctx.EffectiveMessage.Reply(b, "stats not available", nil)
		return err
	}
	stats, err := t.stats.GetStats(context.Background())
	if err != nil {
		_, err = ctx.EffectiveMessage.Reply(b, "stats failed: "+err.Error(), nil)
		return err
	}
	_, err = ctx.EffectiveMessage.Reply(b, FormatStats(stats), nil)
	return err
}

func FormatStats(s *entity.Stats) string {
	last := "never"
	if s.LastSync != nil {
		last = s.LastSync.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("relayed today: %d\ntotal: %d\nsent: %d\nfailed: %d\nskipped: %d\nlast sync: %s",
		s.Today, s.Total, s.Sent, s.Failed, s.Skipped, last)
}

// SendMessage delivers an alert to the admin chat.
func (t *TgBot) SendMessage(msg string) {
	text := Sanitize(msg)
	if text == "" {
		t.log.Debug("empty message")
		return
	}

	_, err := t.api.SendMessage(t.adminId, text, &tgbotapi.SendMessageOpts{
		ParseMode: "MarkdownV2",
	})
	if err == nil {
		return
	}
	t.log.With(slog.Int64("id", t.adminId)).Warn("sending message", sl.Err(err))
	// plain text never fails on markup
	if _, err = t.api.SendMessage(t.adminId, msg, nil); err != nil {
		t.log.With(slog.Int64("id", t.adminId)).Warn("sending plain message", sl.Err(err))
	}
}

const reservedChars = "\\`_{}#+-.!|()[]*~>="

// Sanitize escapes MarkdownV2 reserved characters.
func Sanitize(input string) string {
	var b strings.Builder
	for _, char := range input {
		if strings.ContainsRune(reservedChars, char) {
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
