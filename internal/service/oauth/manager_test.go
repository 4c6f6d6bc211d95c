package oauth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"B24Relay/entity"
	"B24Relay/internal/config"
)

type fakeStore struct {
	mu    sync.Mutex
	auths map[string]entity.PortalAuth
	saves int
}

func newFakeStore(auths ...entity.PortalAuth) *fakeStore {
	s := &fakeStore{auths: map[string]entity.PortalAuth{}}
	for _, a := range auths {
		s.auths[a.PortalDomain] = a
	}
	return s
}

func (s *fakeStore) GetPortalAuth(_ context.Context, domain string) (*entity.PortalAuth, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.auths[domain]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *fakeStore) SavePortalAuth(_ context.Context, auth *entity.PortalAuth) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auths[auth.PortalDomain] = *auth
	s.saves++
	return nil
}

type tokenServer struct {
	*httptest.Server
	calls atomic.Int32
	form  chan map[string]string
}

func newTokenServer(t *testing.T, status int, body string) *tokenServer {
	t.Helper()
	ts := &tokenServer{form: make(chan map[string]string, 8)}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.calls.Add(1)
		_ = r.ParseForm()
		ts.form <- map[string]string{
			"grant_type":    r.Form.Get("grant_type"),
			"client_id":     r.Form.Get("client_id"),
			"client_secret": r.Form.Get("client_secret"),
			"refresh_token": r.Form.Get("refresh_token"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

const grantOK = `{"access_token":"new-access","refresh_token":"new-refresh","expires_in":3600,
	"client_endpoint":"https://moved.bitrix24.com/rest/","member_id":"member-2","domain":"acme.bitrix24.com"}`

var clock = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testManager(t *testing.T, tokenURL string, store TokenStore) *Manager {
	t.Helper()
	conf := &config.Config{}
	conf.Bitrix.ClientID = "app.123"
	conf.Bitrix.ClientSecret = "secret"
	conf.Bitrix.OAuthURL = tokenURL
	conf.Bitrix.SafetyMargin = 30 * time.Second
	m := NewManager(conf, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	m.SetClock(func() time.Time { return clock })
	return m
}

func storedAuth(expiresAt time.Time) entity.PortalAuth {
	return entity.PortalAuth{
		PortalDomain:   "acme.bitrix24.com",
		ClientEndpoint: "https://acme.bitrix24.com/rest/",
		MemberID:       "member-1",
		AccessToken:    "old-access",
		RefreshToken:   "old-refresh",
		ExpiresAt:      expiresAt,
	}
}

func TestEnsureValid_ExpiredRefreshesOnce(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, grantOK)
	store := newFakeStore(storedAuth(clock.Add(-time.Minute)))
	m := testManager(t, ts.URL, store)

	auth, err := m.EnsureValid(context.Background(), "acme.bitrix24.com")
	if err != nil {
		t.Fatal(err)
	}
	if got := ts.calls.Load(); got != 1 {
		t.Fatalf("refresh calls = %d, want 1", got)
	}
	form := <-ts.form
	if form["grant_type"] != "refresh_token" || form["refresh_token"] != "old-refresh" || form["client_id"] != "app.123" {
		t.Errorf("unexpected grant form %v", form)
	}
	if auth.AccessToken != "new-access" || auth.RefreshToken != "new-refresh" {
		t.Errorf("tokens not rotated: %+v", auth)
	}
	if auth.ClientEndpoint != "https://moved.bitrix24.com/rest/" || auth.MemberID != "member-2" {
		t.Errorf("endpoint not relocated: %+v", auth)
	}
	if want := clock.Add(time.Hour - 30*time.Second); !auth.ExpiresAt.Equal(want) {
		t.Errorf("expires at = %v, want %v", auth.ExpiresAt, want)
	}

	saved, _ := store.GetPortalAuth(context.Background(), "acme.bitrix24.com")
	if saved.AccessToken != "new-access" || saved.RefreshToken != "new-refresh" {
		t.Errorf("rotation not persisted: %+v", saved)
	}

	if _, err = m.EnsureValid(context.Background(), "acme.bitrix24.com"); err != nil {
		t.Fatal(err)
	}
	if got := ts.calls.Load(); got != 1 {
		t.Errorf("fresh token must not be refreshed again, calls = %d", got)
	}
}

func TestEnsureValid_ValidTokenNoRefresh(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, grantOK)
	store := newFakeStore(storedAuth(clock.Add(10 * time.Minute)))
	m := testManager(t, ts.URL, store)

	auth, err := m.EnsureValid(context.Background(), "acme.bitrix24.com")
	if err != nil {
		t.Fatal(err)
	}
	if auth.AccessToken != "old-access" {
		t.Errorf("access token = %q", auth.AccessToken)
	}
	if ts.calls.Load() != 0 {
		t.Error("valid token must not be refreshed")
	}
}

func TestEnsureValid_ExpiryBoundary(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, grantOK)
	store := newFakeStore(storedAuth(clock))
	m := testManager(t, ts.URL, store)

	if _, err := m.EnsureValid(context.Background(), "acme.bitrix24.com"); err != nil {
		t.Fatal(err)
	}
	if ts.calls.Load() != 1 {
		t.Error("now == expiresAt must refresh")
	}
}

func TestForceRefresh_IgnoresExpiry(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, grantOK)
	store := newFakeStore(storedAuth(clock.Add(time.Hour)))
	m := testManager(t, ts.URL, store)

	auth, err := m.ForceRefresh(context.Background(), "acme.bitrix24.com")
	if err != nil {
		t.Fatal(err)
	}
	if ts.calls.Load() != 1 || auth.AccessToken != "new-access" {
		t.Errorf("calls = %d, token = %q", ts.calls.Load(), auth.AccessToken)
	}
}

func TestRefresh_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"missing access token", http.StatusOK, `{"refresh_token":"r","expires_in":3600}`},
		{"invalid grant", http.StatusBadRequest, `{"error":"invalid_grant","error_description":"refresh token expired"}`},
		{"server error", http.StatusInternalServerError, `oops`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTokenServer(t, tt.status, tt.body)
			store := newFakeStore(storedAuth(clock.Add(-time.Minute)))
			m := testManager(t, ts.URL, store)

			_, err := m.EnsureValid(context.Background(), "acme.bitrix24.com")
			var refreshErr *entity.AuthRefreshError
			if !errors.As(err, &refreshErr) {
				t.Fatalf("expected AuthRefreshError, got %v", err)
			}
			if refreshErr.Portal != "acme.bitrix24.com" {
				t.Errorf("portal = %q", refreshErr.Portal)
			}
			if store.saves != 0 {
				t.Error("failed refresh must not be persisted")
			}
		})
	}
}

func TestLoad_SeedsFromConfig(t *testing.T) {
	ts := newTokenServer(t, http.StatusOK, grantOK)
	store := newFakeStore()
	m := testManager(t, ts.URL, store)
	m.seed.RefreshToken = "configured-refresh"
	m.seed.ClientEndpoint = "https://acme.bitrix24.com/rest/"

	auth, err := m.EnsureValid(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if ts.calls.Load() != 1 {
		t.Error("seed without access token must be refreshed")
	}
	if form := <-ts.form; form["refresh_token"] != "configured-refresh" {
		t.Errorf("refresh token sent = %q", form["refresh_token"])
	}
	if auth.AccessToken != "new-access" {
		t.Errorf("access = %q", auth.AccessToken)
	}
}

func TestLoad_NoCredentials(t *testing.T) {
	m := testManager(t, "http://127.0.0.1:1", newFakeStore())

	_, err := m.EnsureValid(context.Background(), "acme.bitrix24.com")
	var confErr *entity.ConfigurationError
	if !errors.As(err, &confErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestInstall_SetsDefaultPortal(t *testing.T) {
	store := newFakeStore()
	m := testManager(t, "http://127.0.0.1:1", store)

	err := m.Install(context.Background(), &entity.PortalAuth{
		PortalDomain:   "acme.bitrix24.com",
		ClientEndpoint: "https://acme.bitrix24.com/rest/",
		AccessToken:    "a",
		RefreshToken:   "r",
	}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if m.DefaultPortal() != "acme.bitrix24.com" {
		t.Errorf("default portal = %q", m.DefaultPortal())
	}
	auth, err := m.EnsureValid(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if auth.AccessToken != "a" {
		t.Errorf("installed token not used: %+v", auth)
	}
}
