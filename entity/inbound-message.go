package entity

import (
	"B24Relay/internal/lib/validate"
)

type Platform string

const (
	PlatformWhatsApp Platform = "whatsapp"
	PlatformBitrix   Platform = "bitrix24"
)

// File is an attachment reference carried by URL.
type File struct {
	URL  string `json:"url" bson:"url"`
	Name string `json:"name,omitempty" bson:"name,omitempty"`
}

// ImRef points at the CRM's internal chat and message, needed to report
// delivery and read status back to the open line.
type ImRef struct {
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id"`
}

// InboundMessage is the canonical record every webhook shape is reduced to.
// It is built once by the normalizer and not modified afterwards.
type InboundMessage struct {
	SourcePlatform Platform `json:"source_platform" validate:"required,oneof=whatsapp bitrix24"`
	PortalDomain   string   `json:"portal_domain,omitempty"`
	ExternalUserID string   `json:"external_user_id" validate:"required,numeric"`
	ExternalChatID string   `json:"external_chat_id" validate:"required"`
	UserName       string   `json:"user_name,omitempty"`
	Text           string   `json:"text,omitempty"`
	MediaURL       string   `json:"media_url,omitempty"`
	MediaName      string   `json:"media_name,omitempty"`
	Files          []File   `json:"files,omitempty"`
	MessageID      string   `json:"message_id" validate:"required"`
	Timestamp      int64    `json:"timestamp" validate:"gt=0"`
	LineID         string   `json:"line_id,omitempty"`
	Im             *ImRef   `json:"im,omitempty"`
}

func (m *InboundMessage) Validate() error {
	return validate.Struct(m)
}

func (m *InboundMessage) HasMedia() bool {
	return m.MediaURL != "" || len(m.Files) > 0
}
