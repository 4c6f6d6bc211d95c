package logger

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"

	logFile = "b24relay.log"
)

// SetupLogger returns a text logger on stdout for local runs and a JSON
// logger writing to both stdout and {logPath}/b24relay.log otherwise.
func SetupLogger(env, logPath string) *slog.Logger {
	var logger *slog.Logger

	switch env {
	case envLocal:
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envDev:
		logger = slog.New(slog.NewJSONHandler(openOutput(logPath), &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		logger = slog.New(slog.NewJSONHandler(openOutput(logPath), &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	return logger
}

func openOutput(logPath string) io.Writer {
	if logPath == "" {
		return os.Stdout
	}
	if err := os.MkdirAll(logPath, 0o755); err != nil {
		log.Printf("log directory %s: %v", logPath, err)
		return os.Stdout
	}
	f, err := os.OpenFile(filepath.Join(logPath, logFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Printf("open log file: %v", err)
		return os.Stdout
	}
	return io.MultiWriter(os.Stdout, f)
}

// Notifier receives a plain text alert.
type Notifier interface {
	SendMessage(msg string)
}

// SetupTelegramHandler wraps the logger so that records at or above level are
// also sent to the notifier.
func SetupTelegramHandler(logger *slog.Logger, notifier Notifier, level slog.Level) *slog.Logger {
	if notifier == nil {
		return logger
	}
	return slog.New(&notifyHandler{
		next:     logger.Handler(),
		notifier: notifier,
		level:    level,
	})
}

type notifyHandler struct {
	next     slog.Handler
	notifier Notifier
	level    slog.Level
	attrs    []slog.Attr
}

func (h *notifyHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *notifyHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= h.level {
		h.notifier.SendMessage(h.format(r))
	}
	return h.next.Handle(ctx, r)
}

func (h *notifyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &notifyHandler{
		next:     h.next.WithAttrs(attrs),
		notifier: h.notifier,
		level:    h.level,
		attrs:    merged,
	}
}

func (h *notifyHandler) WithGroup(name string) slog.Handler {
	return &notifyHandler{
		next:     h.next.WithGroup(name),
		notifier: h.notifier,
		level:    h.level,
		attrs:    h.attrs,
	}
}

func (h *notifyHandler) format(r slog.Record) string {
	msg := fmt.Sprintf("%s: %s", r.Level.String(), r.Message)
	for _, a := range h.attrs {
		msg += fmt.Sprintf("\n%s: %s", a.Key, a.Value.String())
	}
	r.Attrs(func(a slog.Attr) bool {
		msg += fmt.Sprintf("\n%s: %s", a.Key, a.Value.String())
		return true
	})
	return msg
}
