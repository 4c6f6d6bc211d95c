package bot

import (
	"strings"
	"testing"
	"time"

	"B24Relay/entity"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"relay failed (status 502)", "relay failed \\(status 502\\)"},
		{"a_b.c", "a\\_b\\.c"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatStats(t *testing.T) {
	last := time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC)
	text := FormatStats(&entity.Stats{Total: 10, Today: 4, Sent: 8, Failed: 1, Skipped: 1, LastSync: &last})
	for _, want := range []string{"relayed today: 4", "total: 10", "failed: 1", "last sync: 2026-06-01T09:30:00Z"} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in %q", want, text)
		}
	}
	if !strings.Contains(FormatStats(&entity.Stats{}), "last sync: never") {
		t.Error("empty stats")
	}
}
