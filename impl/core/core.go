package core

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"time"

	"B24Relay/entity"
	"B24Relay/internal/config"
	"B24Relay/internal/lib/sl"
	"B24Relay/internal/service/bitrix"
)

type Repository interface {
	DeletePortalAuth(ctx context.Context, domain string) error

	SaveChatMap(ctx context.Context, m entity.ChatMap) error
	GetChatMap(ctx context.Context, portal, chatID string) (*entity.ChatMap, error)

	GetSettings(ctx context.Context) (*entity.Settings, error)
	SaveSettings(ctx context.Context, s entity.Settings) error

	AddLog(ctx context.Context, e entity.LogEntry) error
	ListLogs(ctx context.Context, f entity.LogFilter) ([]entity.LogEntry, error)

	AddRelayRecord(ctx context.Context, r entity.RelayRecord) error
	Stats(ctx context.Context, now time.Time) (*entity.Stats, error)
}

type TokenManager interface {
	EnsureValid(ctx context.Context, domain string) (*entity.PortalAuth, error)
	ForceRefresh(ctx context.Context, domain string) (*entity.PortalAuth, error)
	Install(ctx context.Context, auth *entity.PortalAuth, expiresIn time.Duration) error
	DefaultPortal() string
}

type CrmClient interface {
	RegisterConnector(ctx context.Context, portal string, conn bitrix.Connector) (interface{}, error)
	ActivateConnector(ctx context.Context, portal, connector, line string, active bool) (interface{}, error)
	SetConnectorData(ctx context.Context, portal, connector, line string, data map[string]interface{}) (interface{}, error)
	BindEvent(ctx context.Context, portal, event, handler string) (interface{}, error)
	SendMessages(ctx context.Context, portal string, req entity.ConnectorSendRequest) (interface{}, error)
	ConfirmDelivery(ctx context.Context, portal string, req entity.ConnectorStatusRequest) (interface{}, error)
	ConfirmRead(ctx context.Context, portal string, req entity.ConnectorStatusRequest) (interface{}, error)
	ConnectorStatus(ctx context.Context, portal, connector, line string) (interface{}, error)
}

type GatewayClient interface {
	SendText(ctx context.Context, req entity.GatewaySendRequest) (interface{}, error)
	SendMedia(ctx context.Context, req entity.GatewaySendRequest) (interface{}, error)
	ConnectionState(ctx context.Context) (interface{}, error)
	SetConnection(baseURL, token string)
}

// Broadcaster pushes journal entries to live subscribers.
type Broadcaster interface {
	BroadcastLog(e entity.LogEntry)
}

type Core struct {
	conf    *config.Config
	repo    Repository
	tokens  TokenManager
	crm     CrmClient
	gateway GatewayClient
	hub     Broadcaster
	authKey string
	now     func() time.Time
	log     *slog.Logger
}

func New(conf *config.Config, log *slog.Logger) *Core {
	return &Core{
		conf:    conf,
		authKey: conf.Listen.ApiKey,
		now:     time.Now,
		log:     log.With(sl.Module("core")),
	}
}

func (c *Core) SetRepository(repo Repository) {
	c.repo = repo
}

func (c *Core) SetTokenManager(tokens TokenManager) {
	c.tokens = tokens
}

func (c *Core) SetCrmClient(crm CrmClient) {
	c.crm = crm
}

func (c *Core) SetGatewayClient(gateway GatewayClient) {
	c.gateway = gateway
}

func (c *Core) SetBroadcaster(hub Broadcaster) {
	c.hub = hub
}

func (c *Core) SetAuthKey(key string) {
	c.authKey = key
}

func (c *Core) SetClock(now func() time.Time) {
	c.now = now
}

// Init applies the stored settings record over the configured gateway
// connection and reports configuration gaps.
func (c *Core) Init(ctx context.Context) {
	for _, direction := range []string{config.DirectionToCrm, config.DirectionToGateway} {
		if missing := c.conf.MissingFor(direction); len(missing) > 0 {
			c.log.With(
				slog.String("direction", direction),
				slog.Any("missing", missing),
			).Warn("relay direction not configured")
		}
	}

	if c.repo == nil || c.gateway == nil {
		return
	}
	settings, err := c.repo.GetSettings(ctx)
	if err != nil {
		c.log.With(sl.Err(err)).Error("load settings")
		return
	}
	if settings != nil && settings.EvolutionURL != "" {
		c.gateway.SetConnection(settings.EvolutionURL, settings.EvolutionToken)
		c.log.With(slog.String("url", settings.EvolutionURL)).Info("gateway connection loaded from settings")
	}
}

// AuthenticateByToken checks the admin API key. With no key configured the
// admin API is open.
func (c *Core) AuthenticateByToken(token string) error {
	if c.authKey == "" {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(c.authKey)) != 1 {
		return fmt.Errorf("invalid api key")
	}
	return nil
}

// CheckWebhookSecret validates the shared secret of inbound webhooks.
func (c *Core) CheckWebhookSecret(secret string) error {
	want := c.conf.Listen.WebhookSecret
	if want == "" {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(secret), []byte(want)) != 1 {
		return fmt.Errorf("invalid webhook secret")
	}
	return nil
}

func (c *Core) portal(domain string) string {
	if domain != "" {
		return domain
	}
	if c.tokens != nil {
		return c.tokens.DefaultPortal()
	}
	return c.conf.Bitrix.PortalDomain
}

func (c *Core) checkConfig(direction string) error {
	if missing := c.conf.MissingFor(direction); len(missing) > 0 {
		return &entity.ConfigurationError{Missing: missing}
	}
	return nil
}
