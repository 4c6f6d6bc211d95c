package core

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"B24Relay/entity"
	"B24Relay/internal/config"
	repository "B24Relay/internal/database"
	"B24Relay/internal/service/bitrix"
)

type call struct {
	Method string
	Portal string
	Arg    interface{}
}

type fakeCrm struct {
	mu    sync.Mutex
	calls []call
	fail  map[string]error
}

func (f *fakeCrm) add(method, portal string, arg interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{Method: method, Portal: portal, Arg: arg})
	return f.fail[method]
}

func (f *fakeCrm) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		names = append(names, c.Method)
	}
	return names
}

func (f *fakeCrm) RegisterConnector(_ context.Context, portal string, conn bitrix.Connector) (interface{}, error) {
	return true, f.add("register", portal, conn)
}

func (f *fakeCrm) ActivateConnector(_ context.Context, portal, connector, line string, _ bool) (interface{}, error) {
	return true, f.add("activate", portal, connector+"/"+line)
}

func (f *fakeCrm) SetConnectorData(_ context.Context, portal, _, _ string, data map[string]interface{}) (interface{}, error) {
	return true, f.add("data.set", portal, data)
}

func (f *fakeCrm) BindEvent(_ context.Context, portal, event, handler string) (interface{}, error) {
	return true, f.add("bind", portal, event+" "+handler)
}

func (f *fakeCrm) SendMessages(_ context.Context, portal string, req entity.ConnectorSendRequest) (interface{}, error) {
	return true, f.add("send", portal, req)
}

func (f *fakeCrm) ConfirmDelivery(_ context.Context, portal string, req entity.ConnectorStatusRequest) (interface{}, error) {
	return true, f.add("delivery", portal, req)
}

func (f *fakeCrm) ConfirmRead(_ context.Context, portal string, req entity.ConnectorStatusRequest) (interface{}, error) {
	return true, f.add("read", portal, req)
}

func (f *fakeCrm) ConnectorStatus(_ context.Context, portal, connector, line string) (interface{}, error) {
	return map[string]interface{}{"STATUS": true}, f.add("status", portal, connector+"/"+line)
}

type fakeGateway struct {
	mu      sync.Mutex
	sent    []entity.GatewaySendRequest
	failURL map[string]bool
	failAll error
	url     string
}

func (f *fakeGateway) send(req entity.GatewaySendRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
	if f.failAll != nil {
		return f.failAll
	}
	if f.failURL[req.MediaURL] {
		return &entity.RemoteSendError{Target: "gateway", Code: entity.CodeGateway, Status: 500}
	}
	return nil
}

func (f *fakeGateway) SendText(_ context.Context, req entity.GatewaySendRequest) (interface{}, error) {
	return nil, f.send(req)
}

func (f *fakeGateway) SendMedia(_ context.Context, req entity.GatewaySendRequest) (interface{}, error) {
	return nil, f.send(req)
}

func (f *fakeGateway) ConnectionState(_ context.Context) (interface{}, error) {
	if f.failAll != nil {
		return nil, f.failAll
	}
	return map[string]interface{}{"state": "open"}, nil
}

func (f *fakeGateway) SetConnection(baseURL, _ string) {
	f.url = baseURL
}

type fakeTokens struct {
	installed []entity.PortalAuth
	portal    string
}

func (f *fakeTokens) EnsureValid(_ context.Context, domain string) (*entity.PortalAuth, error) {
	return &entity.PortalAuth{PortalDomain: domain}, nil
}

func (f *fakeTokens) ForceRefresh(_ context.Context, domain string) (*entity.PortalAuth, error) {
	return &entity.PortalAuth{PortalDomain: domain}, nil
}

func (f *fakeTokens) Install(_ context.Context, auth *entity.PortalAuth, _ time.Duration) error {
	f.installed = append(f.installed, *auth)
	if f.portal == "" {
		f.portal = auth.PortalDomain
	}
	return nil
}

func (f *fakeTokens) DefaultPortal() string {
	return f.portal
}

type fakeHub struct {
	entries []entity.LogEntry
}

func (h *fakeHub) BroadcastLog(e entity.LogEntry) {
	h.entries = append(h.entries, e)
}

type fixture struct {
	core    *Core
	conf    *config.Config
	crm     *fakeCrm
	gateway *fakeGateway
	tokens  *fakeTokens
	store   *repository.MemoryStore
	hub     *fakeHub
}

var fixedNow = time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC)

func newFixture() *fixture {
	conf := &config.Config{}
	conf.Listen.PublicURL = "https://relay.example.com/"
	conf.Bitrix.ClientID = "app.1"
	conf.Bitrix.ClientSecret = "secret"
	conf.Bitrix.ConnectorID = "evolution_custom"
	conf.Bitrix.ConnectorName = "WhatsApp"
	conf.Bitrix.LineID = "1"
	conf.Bitrix.Event = "OnImConnectorMessageAdd"
	conf.Bitrix.PlaceholderText = "[media]"
	conf.Bitrix.ConfirmRead = true
	conf.Evolution.BaseURL = "http://gateway.local"

	f := &fixture{
		conf:    conf,
		crm:     &fakeCrm{fail: map[string]error{}},
		gateway: &fakeGateway{failURL: map[string]bool{}},
		tokens:  &fakeTokens{portal: "acme.bitrix24.com"},
		store:   repository.NewMemoryStore(),
		hub:     &fakeHub{},
	}
	f.core = New(conf, slog.New(slog.NewTextHandler(io.Discard, nil)))
	f.core.SetRepository(f.store)
	f.core.SetTokenManager(f.tokens)
	f.core.SetCrmClient(f.crm)
	f.core.SetGatewayClient(f.gateway)
	f.core.SetBroadcaster(f.hub)
	f.core.SetClock(func() time.Time { return fixedNow })
	return f
}
