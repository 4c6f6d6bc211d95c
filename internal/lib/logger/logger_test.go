package logger

import (
	"io"
	"log/slog"
	"strings"
	"testing"
)

type recorder struct {
	messages []string
}

func (r *recorder) SendMessage(msg string) {
	r.messages = append(r.messages, msg)
}

func TestTelegramHandler_ForwardsErrorsOnly(t *testing.T) {
	base := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
	rec := &recorder{}
	lg := SetupTelegramHandler(base, rec, slog.LevelError)

	lg.With(slog.String("module", "relay")).Info("fine")
	lg.With(slog.String("module", "relay")).Error("send failed", slog.String("error", "boom"))

	if len(rec.messages) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(rec.messages))
	}
	if !strings.Contains(rec.messages[0], "send failed") || !strings.Contains(rec.messages[0], "module: relay") {
		t.Errorf("unexpected alert text %q", rec.messages[0])
	}
	if !strings.Contains(rec.messages[0], "error: boom") {
		t.Errorf("record attrs missing in %q", rec.messages[0])
	}
}

func TestTelegramHandler_NilNotifier(t *testing.T) {
	base := slog.New(slog.NewTextHandler(io.Discard, nil))
	if SetupTelegramHandler(base, nil, slog.LevelError) != base {
		t.Fatal("nil notifier must return the original logger")
	}
}
