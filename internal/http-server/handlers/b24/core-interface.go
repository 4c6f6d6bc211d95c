package b24

import (
	"context"

	"B24Relay/entity"
)

type Core interface {
	HandleInstallEvent(ctx context.Context, body map[string]interface{}) (string, error)
	SetupConnector(ctx context.Context, req entity.SetupRequest) (*entity.SetupResult, error)
	ConnectorStatus(ctx context.Context, portal string) (interface{}, error)
}
