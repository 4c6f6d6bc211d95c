package entity

import (
	"time"
)

// PortalAuth is the OAuth credential set of one CRM tenant.
type PortalAuth struct {
	PortalDomain   string    `json:"portal_domain" bson:"portal_domain"`
	ClientEndpoint string    `json:"client_endpoint" bson:"client_endpoint"`
	MemberID       string    `json:"member_id" bson:"member_id"`
	AccessToken    string    `json:"access_token" bson:"access_token"`
	RefreshToken   string    `json:"refresh_token" bson:"refresh_token"`
	ExpiresAt      time.Time `json:"expires_at" bson:"expires_at"`
	UpdatedAt      time.Time `json:"updated_at" bson:"updated_at"`
}

// Expired reports whether the access token is absent or past ExpiresAt.
// ExpiresAt already has the safety margin subtracted.
func (a *PortalAuth) Expired(now time.Time) bool {
	return a.AccessToken == "" || !now.Before(a.ExpiresAt)
}

// ChatMap links an open line chat to the WhatsApp number behind it.
type ChatMap struct {
	PortalDomain   string    `json:"portal_domain" bson:"portal_domain"`
	ExternalChatID string    `json:"external_chat_id" bson:"external_chat_id"`
	Phone          string    `json:"phone" bson:"phone"`
	UpdatedAt      time.Time `json:"updated_at" bson:"updated_at"`
}
