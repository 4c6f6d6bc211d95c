package core

import (
	"context"
	"fmt"
	"strings"

	"B24Relay/entity"
)

// GetSettings returns the stored settings record, or defaults filled from
// configuration when nothing was saved yet.
func (c *Core) GetSettings(ctx context.Context) (*entity.Settings, error) {
	if c.repo != nil {
		settings, err := c.repo.GetSettings(ctx)
		if err != nil {
			return nil, fmt.Errorf("load settings: %w", err)
		}
		if settings != nil {
			return settings, nil
		}
	}
	settings := entity.DefaultSettings()
	settings.EvolutionURL = c.conf.Evolution.BaseURL
	settings.EvolutionToken = c.conf.Evolution.Token
	if c.publicURL() != "" {
		settings.WebhookURL = c.publicURL() + "/api/wa/webhook-in"
	}
	return &settings, nil
}

// SaveSettings stores the record and switches the gateway client to the
// saved connection.
func (c *Core) SaveSettings(ctx context.Context, settings *entity.Settings) error {
	if c.repo == nil {
		return fmt.Errorf("no settings store")
	}
	if err := c.repo.SaveSettings(ctx, *settings); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	if c.gateway != nil {
		c.gateway.SetConnection(settings.EvolutionURL, settings.EvolutionToken)
	}
	c.journal(ctx, entity.LevelInfo, entity.SourceSystem, "settings updated", settings.EvolutionURL)
	return nil
}

func (c *Core) GetStats(ctx context.Context) (*entity.Stats, error) {
	if c.repo == nil {
		return &entity.Stats{}, nil
	}
	return c.repo.Stats(ctx, c.now())
}

func (c *Core) GetLogs(ctx context.Context, filter entity.LogFilter) ([]entity.LogEntry, error) {
	if c.repo == nil {
		return []entity.LogEntry{}, nil
	}
	return c.repo.ListLogs(ctx, filter)
}

// TestConnection asks the gateway for its connection state.
func (c *Core) TestConnection(ctx context.Context) (interface{}, error) {
	state, err := c.gateway.ConnectionState(ctx)
	if err != nil {
		c.journal(ctx, entity.LevelError, entity.SourceWhatsApp, "gateway connection test failed", err.Error())
		return nil, err
	}
	c.journal(ctx, entity.LevelInfo, entity.SourceWhatsApp, "gateway connection test passed", state)
	return map[string]interface{}{
		"status": "connected",
		"data":   state,
	}, nil
}

// EnvReport tells which settings are present without revealing them.
func (c *Core) EnvReport() map[string]interface{} {
	env := make(map[string]interface{})
	for key, ok := range c.conf.Present() {
		env[key] = ok
	}
	switch endpoint := c.conf.Bitrix.ClientEndpoint; {
	case endpoint == "":
		env["B24_ENDPOINT"] = "missing"
	case strings.HasSuffix(endpoint, "/"):
		env["B24_ENDPOINT"] = "ok-with-trailing-slash"
	default:
		env["B24_ENDPOINT"] = "ok-but-missing-trailing-slash"
	}
	if c.tokens != nil {
		env["default_portal"] = c.tokens.DefaultPortal()
	}
	return env
}
