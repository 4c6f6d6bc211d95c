package relay

import (
	"context"

	"B24Relay/entity"
)

type Core interface {
	RelayFromGateway(ctx context.Context, body map[string]interface{}) (*entity.RelayResult, error)
	RelayFromCrm(ctx context.Context, body map[string]interface{}) (*entity.RelayResult, error)
}
