package core

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"B24Relay/entity"
	"B24Relay/internal/normalizer"
	"B24Relay/internal/service/bitrix"
)

// Events bound to the relay's CRM event endpoint on setup.
var connectorEvents = []string{
	"OnImConnectorMessageAdd",
	"OnImConnectorMessageUpdate",
	"OnImConnectorDialogFinish",
}

const (
	EventInstall   = "ONAPPINSTALL"
	EventUninstall = "ONAPPUNINSTALL"
)

func (c *Core) publicURL() string {
	return strings.TrimRight(c.conf.Listen.PublicURL, "/")
}

// SetupConnector registers and activates the connector on the open line and
// binds the connector events to this relay. Register and activate failures
// stop the setup; a failed event binding is reported in its step.
func (c *Core) SetupConnector(ctx context.Context, req entity.SetupRequest) (*entity.SetupResult, error) {
	if req.ClientEndpoint != "" && req.AccessToken != "" {
		domain := req.Portal
		if domain == "" {
			domain = hostOf(req.ClientEndpoint)
		}
		err := c.tokens.Install(ctx, &entity.PortalAuth{
			PortalDomain:   domain,
			ClientEndpoint: req.ClientEndpoint,
			AccessToken:    req.AccessToken,
			RefreshToken:   req.RefreshToken,
		}, 0)
		if err != nil {
			return nil, err
		}
		req.Portal = domain
	}

	connectorID := req.ConnectorID
	if connectorID == "" {
		connectorID = c.conf.Bitrix.ConnectorID
	}
	name := req.Name
	if name == "" {
		name = c.conf.Bitrix.ConnectorName
	}
	line := req.LineID
	if line == "" {
		line = c.conf.Bitrix.LineID
	}

	var missing []string
	if connectorID == "" {
		missing = append(missing, "CONNECTOR_SEND_ID")
	}
	if c.publicURL() == "" {
		missing = append(missing, "PUBLIC_URL")
	}
	if len(missing) > 0 {
		return nil, &entity.ConfigurationError{Missing: missing}
	}

	portal := c.portal(req.Portal)
	handler := c.publicURL() + "/api/b24/events/imconnector"
	result := &entity.SetupResult{Portal: portal, ConnectorID: connectorID, Handler: handler}

	step := func(name string, err error) error {
		s := entity.SetupStep{Name: name, Ok: err == nil}
		if err != nil {
			s.Error = err.Error()
		}
		result.Steps = append(result.Steps, s)
		return err
	}

	_, err := c.crm.RegisterConnector(ctx, portal, bitrix.Connector{
		ID:               connectorID,
		Name:             name,
		PlacementHandler: c.publicURL() + "/api/b24/placement",
	})
	if err = step("imconnector.register", err); err != nil {
		c.journal(ctx, entity.LevelError, entity.SourceBitrix, "connector registration failed", err.Error())
		return nil, err
	}

	_, err = c.crm.ActivateConnector(ctx, portal, connectorID, line, true)
	if err = step("imconnector.activate", err); err != nil {
		c.journal(ctx, entity.LevelError, entity.SourceBitrix, "connector activation failed", err.Error())
		return nil, err
	}

	_, err = c.crm.SetConnectorData(ctx, portal, connectorID, line, map[string]interface{}{
		"id":     connectorID,
		"url":    c.publicURL(),
		"url_im": c.publicURL(),
		"name":   name,
	})
	_ = step("imconnector.connector.data.set", err)

	for _, event := range connectorEvents {
		_, err = c.crm.BindEvent(ctx, portal, event, handler)
		_ = step("event.bind "+event, err)
	}

	result.Ok = true
	for _, s := range result.Steps {
		if !s.Ok {
			result.Ok = false
		}
	}
	c.journal(ctx, entity.LevelInfo, entity.SourceBitrix, "connector setup finished", result)
	return result, nil
}

// ConnectorStatus asks the CRM for the state of the connector on the line.
func (c *Core) ConnectorStatus(ctx context.Context, portal string) (interface{}, error) {
	if c.conf.Bitrix.ConnectorID == "" {
		return nil, &entity.ConfigurationError{Missing: []string{"CONNECTOR_SEND_ID"}}
	}
	return c.crm.ConnectorStatus(ctx, c.portal(portal), c.conf.Bitrix.ConnectorID, c.conf.Bitrix.LineID)
}

// HandleInstallEvent processes an install or uninstall callback: installed
// credentials are stored, an uninstall removes them. The event name is
// returned for the redirect.
func (c *Core) HandleInstallEvent(ctx context.Context, body map[string]interface{}) (string, error) {
	event := strings.ToUpper(normalizer.Lookup(body, "event", "EVENT"))
	domain := normalizer.Lookup(body, "auth.domain", "DOMAIN", "domain")

	if event == EventUninstall {
		if domain == "" || c.repo == nil {
			return event, nil
		}
		if err := c.repo.DeletePortalAuth(ctx, domain); err != nil {
			return event, err
		}
		c.journal(ctx, entity.LevelInfo, entity.SourceBitrix, "application uninstalled", domain)
		return event, nil
	}

	auth := &entity.PortalAuth{
		PortalDomain:   domain,
		ClientEndpoint: normalizer.Lookup(body, "auth.client_endpoint", "SERVER_ENDPOINT"),
		MemberID:       normalizer.Lookup(body, "auth.member_id", "member_id", "MEMBER_ID"),
		AccessToken:    normalizer.Lookup(body, "auth.access_token", "AUTH_ID"),
		RefreshToken:   normalizer.Lookup(body, "auth.refresh_token", "REFRESH_ID"),
	}
	if auth.AccessToken == "" {
		return event, nil
	}
	if auth.ClientEndpoint == "" && domain != "" {
		auth.ClientEndpoint = "https://" + domain + "/rest/"
	}
	if auth.PortalDomain == "" {
		auth.PortalDomain = hostOf(auth.ClientEndpoint)
	}
	if auth.PortalDomain == "" {
		return event, &entity.ValidationError{Reason: entity.ReasonMissingFields, Err: errors.New("portal domain")}
	}

	var expiresIn time.Duration
	if s := normalizer.Lookup(body, "auth.expires_in", "AUTH_EXPIRES"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			expiresIn = time.Duration(n) * time.Second
		}
	}
	if err := c.tokens.Install(ctx, auth, expiresIn); err != nil {
		return event, err
	}
	c.journal(ctx, entity.LevelInfo, entity.SourceBitrix, "portal credentials stored", auth.PortalDomain)
	return event, nil
}

func hostOf(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}
	return u.Host
}
