// Package oauth keeps the CRM access token of every portal usable: it loads
// the stored credentials, refreshes them with the refresh-token grant when
// they expire and persists the rotated values.
package oauth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"B24Relay/entity"
	"B24Relay/internal/config"
	"B24Relay/internal/lib/sl"

	"golang.org/x/oauth2"
)

// TokenStore persists one PortalAuth record per portal domain.
// GetPortalAuth returns nil without error when the portal is unknown.
type TokenStore interface {
	GetPortalAuth(ctx context.Context, domain string) (*entity.PortalAuth, error)
	SavePortalAuth(ctx context.Context, auth *entity.PortalAuth) error
}

// staticLifetime is assumed for a configured access token that comes
// without a refresh token.
const staticLifetime = time.Hour

type Manager struct {
	store  TokenStore
	oauth  oauth2.Config
	margin time.Duration
	seed   entity.PortalAuth
	client *http.Client
	now    func() time.Time
	mu     sync.RWMutex
	portal string
	log    *slog.Logger
}

func NewManager(conf *config.Config, store TokenStore, log *slog.Logger) *Manager {
	margin := conf.Bitrix.SafetyMargin
	if margin < 0 {
		margin = 0
	}
	return &Manager{
		store: store,
		oauth: oauth2.Config{
			ClientID:     conf.Bitrix.ClientID,
			ClientSecret: conf.Bitrix.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  conf.Bitrix.OAuthURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		margin: margin,
		seed: entity.PortalAuth{
			PortalDomain:   conf.Bitrix.PortalDomain,
			ClientEndpoint: conf.Bitrix.ClientEndpoint,
			MemberID:       conf.Bitrix.MemberID,
			AccessToken:    conf.Bitrix.AccessToken,
			RefreshToken:   conf.Bitrix.RefreshToken,
		},
		portal: conf.Bitrix.PortalDomain,
		now:    time.Now,
		log:    log.With(sl.Module("oauth")),
	}
}

// SetHTTPClient replaces the client used for the token endpoint.
func (m *Manager) SetHTTPClient(client *http.Client) {
	m.client = client
}

// SetClock replaces time.Now.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// DefaultPortal is the configured portal, or the last one installed.
func (m *Manager) DefaultPortal() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.portal
}

func (m *Manager) resolve(domain string) string {
	if domain == "" {
		return m.DefaultPortal()
	}
	return domain
}

// Load returns the stored credentials of a portal. A portal with no record
// is seeded from configuration when it is the configured one.
func (m *Manager) Load(ctx context.Context, domain string) (*entity.PortalAuth, error) {
	domain = m.resolve(domain)
	auth, err := m.store.GetPortalAuth(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("load portal auth: %w", err)
	}
	if auth != nil {
		return auth, nil
	}

	if m.seed.RefreshToken == "" && m.seed.AccessToken == "" {
		return nil, &entity.ConfigurationError{Missing: []string{"B24_REFRESH_TOKEN"}}
	}
	if m.seed.PortalDomain != "" && !strings.EqualFold(m.seed.PortalDomain, domain) {
		return nil, &entity.ConfigurationError{Missing: []string{"B24_PORTAL"}}
	}

	seeded := m.seed
	seeded.PortalDomain = domain
	if seeded.RefreshToken == "" {
		seeded.ExpiresAt = m.now().Add(staticLifetime - m.margin)
	}
	seeded.UpdatedAt = m.now()
	if err = m.store.SavePortalAuth(ctx, &seeded); err != nil {
		return nil, fmt.Errorf("seed portal auth: %w", err)
	}
	m.log.With(slog.String("portal", domain)).Debug("portal auth seeded from config")
	return &seeded, nil
}

// EnsureValid returns credentials whose access token has not expired,
// refreshing them first when needed.
func (m *Manager) EnsureValid(ctx context.Context, domain string) (*entity.PortalAuth, error) {
	auth, err := m.Load(ctx, domain)
	if err != nil {
		return nil, err
	}
	if !auth.Expired(m.now()) {
		return auth, nil
	}
	return m.refresh(ctx, auth)
}

// Refresh runs the refresh-token grant only when the token has expired.
func (m *Manager) Refresh(ctx context.Context, domain string) (*entity.PortalAuth, error) {
	return m.EnsureValid(ctx, domain)
}

// ForceRefresh runs the refresh-token grant regardless of expiry. It is used
// after the CRM rejected a token that looked valid.
func (m *Manager) ForceRefresh(ctx context.Context, domain string) (*entity.PortalAuth, error) {
	auth, err := m.Load(ctx, domain)
	if err != nil {
		return nil, err
	}
	return m.refresh(ctx, auth)
}

func (m *Manager) refresh(ctx context.Context, auth *entity.PortalAuth) (*entity.PortalAuth, error) {
	log := m.log.With(slog.String("portal", auth.PortalDomain))
	t := m.now()
	defer func() {
		log.With(slog.Duration("duration", time.Since(t))).Debug("refresh token")
	}()

	if auth.RefreshToken == "" {
		return nil, &entity.AuthRefreshError{Portal: auth.PortalDomain, Err: fmt.Errorf("no refresh token")}
	}
	if m.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, m.client)
	}

	tok, err := m.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: auth.RefreshToken}).Token()
	if err != nil {
		log.Error("refresh token", sl.Err(err))
		return nil, &entity.AuthRefreshError{Portal: auth.PortalDomain, Err: err}
	}
	if tok.AccessToken == "" {
		return nil, &entity.AuthRefreshError{Portal: auth.PortalDomain, Err: fmt.Errorf("response without access_token")}
	}

	updated := *auth
	updated.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		updated.RefreshToken = tok.RefreshToken
	}
	if endpoint, ok := tok.Extra("client_endpoint").(string); ok && endpoint != "" {
		updated.ClientEndpoint = endpoint
	}
	if member, ok := tok.Extra("member_id").(string); ok && member != "" {
		updated.MemberID = member
	}
	now := m.now()
	updated.ExpiresAt = now.Add(lifetime(tok) - m.margin)
	updated.UpdatedAt = now

	if err = m.store.SavePortalAuth(ctx, &updated); err != nil {
		return nil, fmt.Errorf("save portal auth: %w", err)
	}
	log.With(sl.Secret("access_token", updated.AccessToken)).Info("token refreshed")
	return &updated, nil
}

// lifetime reads expires_in from the grant response.
func lifetime(tok *oauth2.Token) time.Duration {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return time.Duration(v) * time.Second
	case string:
		if d, err := time.ParseDuration(v + "s"); err == nil {
			return d
		}
	}
	if !tok.Expiry.IsZero() {
		return time.Until(tok.Expiry)
	}
	return staticLifetime
}

// Install stores the credentials delivered by an install callback and makes
// the portal the default one when none is configured.
func (m *Manager) Install(ctx context.Context, auth *entity.PortalAuth, expiresIn time.Duration) error {
	now := m.now()
	if expiresIn <= 0 {
		expiresIn = staticLifetime
	}
	auth.ExpiresAt = now.Add(expiresIn - m.margin)
	auth.UpdatedAt = now
	if err := m.store.SavePortalAuth(ctx, auth); err != nil {
		return fmt.Errorf("save portal auth: %w", err)
	}

	m.mu.Lock()
	if m.portal == "" {
		m.portal = auth.PortalDomain
	}
	m.mu.Unlock()

	m.log.With(
		slog.String("portal", auth.PortalDomain),
		slog.String("member_id", auth.MemberID),
	).Info("portal installed")
	return nil
}
