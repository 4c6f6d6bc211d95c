package bitrix

import (
	"context"

	"B24Relay/entity"
)

// ConnectorIcon is a plain speech bubble used when registering the connector.
const ConnectorIcon = "data:image/svg+xml;charset=US-ASCII,%3Csvg%20xmlns%3D%22http%3A%2F%2Fwww.w3.org%2F2000%2Fsvg%22%20viewBox%3D%220%200%2070%2071%22%3E%3Cpath%20fill%3D%22%2325D366%22%20d%3D%22M35%202C17%202%202%2016%202%2034c0%206%202%2012%205%2017L2%2069l19-5c4%202%209%203%2014%203%2018%200%2033-14%2033-32S53%202%2035%202z%22%2F%3E%3C%2Fsvg%3E"

// Connector describes the open line connector being registered.
type Connector struct {
	ID               string
	Name             string
	PlacementHandler string
}

func (c *Client) RegisterConnector(ctx context.Context, portal string, conn Connector) (interface{}, error) {
	params := map[string]interface{}{
		"ID":   conn.ID,
		"NAME": conn.Name,
		"ICON": map[string]interface{}{
			"DATA_IMAGE": ConnectorIcon,
		},
	}
	if conn.PlacementHandler != "" {
		params["PLACEMENT_HANDLER"] = conn.PlacementHandler
	}
	return c.Call(ctx, portal, "imconnector.register", params)
}

func (c *Client) ActivateConnector(ctx context.Context, portal, connector, line string, active bool) (interface{}, error) {
	flag := 0
	if active {
		flag = 1
	}
	return c.Call(ctx, portal, "imconnector.activate", map[string]interface{}{
		"CONNECTOR": connector,
		"LINE":      line,
		"ACTIVE":    flag,
	})
}

func (c *Client) SetConnectorData(ctx context.Context, portal, connector, line string, data map[string]interface{}) (interface{}, error) {
	return c.Call(ctx, portal, "imconnector.connector.data.set", map[string]interface{}{
		"CONNECTOR": connector,
		"LINE":      line,
		"DATA":      data,
	})
}

func (c *Client) BindEvent(ctx context.Context, portal, event, handler string) (interface{}, error) {
	return c.Call(ctx, portal, "event.bind", map[string]interface{}{
		"event":   event,
		"handler": handler,
	})
}

// SendMessages posts external messages into the open line.
func (c *Client) SendMessages(ctx context.Context, portal string, req entity.ConnectorSendRequest) (interface{}, error) {
	return c.Call(ctx, portal, "imconnector.send.messages", req.Params())
}

func (c *Client) ConfirmDelivery(ctx context.Context, portal string, req entity.ConnectorStatusRequest) (interface{}, error) {
	return c.Call(ctx, portal, "imconnector.send.status.delivery", req.Params())
}

func (c *Client) ConfirmRead(ctx context.Context, portal string, req entity.ConnectorStatusRequest) (interface{}, error) {
	return c.Call(ctx, portal, "imconnector.send.status.reading", req.Params())
}

func (c *Client) ConnectorStatus(ctx context.Context, portal, connector, line string) (interface{}, error) {
	return c.Call(ctx, portal, "imconnector.status", map[string]interface{}{
		"CONNECTOR": connector,
		"LINE":      line,
	})
}
