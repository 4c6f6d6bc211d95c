package entity

import (
	"net/http"
	"time"

	"B24Relay/internal/lib/validate"
)

// Settings is the flat record edited from the dashboard.
type Settings struct {
	EvolutionURL   string `json:"evolutionUrl" bson:"evolution_url" validate:"required,url"`
	EvolutionToken string `json:"evolutionToken" bson:"evolution_token" validate:"required"`
	WebhookURL     string `json:"webhookUrl" bson:"webhook_url" validate:"omitempty,url"`
	AutoReconnect  bool   `json:"autoReconnect" bson:"auto_reconnect"`
	LogLevel       string `json:"logLevel" bson:"log_level" validate:"omitempty,oneof=debug info warning error"`
	MaxRetries     int    `json:"maxRetries" bson:"max_retries" validate:"gte=0,lte=10"`
}

func DefaultSettings() Settings {
	return Settings{
		AutoReconnect: true,
		LogLevel:      "info",
		MaxRetries:    3,
	}
}

func (s *Settings) Bind(_ *http.Request) error {
	return validate.Struct(s)
}

const (
	LevelDebug   = "debug"
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"

	SourceWhatsApp = "whatsapp"
	SourceBitrix   = "bitrix24"
	SourceSystem   = "system"
)

type LogEntry struct {
	ID        string    `json:"id" bson:"id"`
	Level     string    `json:"level" bson:"level"`
	Source    string    `json:"source" bson:"source"`
	Message   string    `json:"message" bson:"message"`
	Details   string    `json:"details,omitempty" bson:"details,omitempty"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// LogFilter selects log entries; "all" or empty disables a filter.
type LogFilter struct {
	Level  string
	Source string
	Limit  int
}

const (
	DefaultLogLimit = 50
	MaxLogLimit     = 500
)

func (f LogFilter) Normalize() LogFilter {
	if f.Level == "all" {
		f.Level = ""
	}
	if f.Source == "all" {
		f.Source = ""
	}
	if f.Limit <= 0 {
		f.Limit = DefaultLogLimit
	}
	if f.Limit > MaxLogLimit {
		f.Limit = MaxLogLimit
	}
	return f
}

func (f LogFilter) Match(e LogEntry) bool {
	if f.Level != "" && e.Level != f.Level {
		return false
	}
	if f.Source != "" && e.Source != f.Source {
		return false
	}
	return true
}

type Direction string

const (
	DirectionToBitrix   Direction = "wa_to_b24"
	DirectionToWhatsApp Direction = "b24_to_wa"
)

const (
	RelaySent    = "sent"
	RelayFailed  = "failed"
	RelaySkipped = "skipped"
	RelayPartial = "partial"
)

// RelayRecord is one handled message, kept for the dashboard counters.
type RelayRecord struct {
	Direction Direction `json:"direction" bson:"direction"`
	Status    string    `json:"status" bson:"status"`
	MessageID string    `json:"message_id,omitempty" bson:"message_id,omitempty"`
	UserID    string    `json:"user_id,omitempty" bson:"user_id,omitempty"`
	Error     string    `json:"error,omitempty" bson:"error,omitempty"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

type Stats struct {
	Total    int64      `json:"total"`
	Today    int64      `json:"today"`
	Sent     int64      `json:"sent"`
	Failed   int64      `json:"failed"`
	Skipped  int64      `json:"skipped"`
	LastSync *time.Time `json:"lastSync"`
}
