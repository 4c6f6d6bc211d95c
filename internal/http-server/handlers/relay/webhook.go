package relay

import (
	"context"
	"log/slog"
	"net/http"

	"B24Relay/entity"
	"B24Relay/internal/lib/api/payload"
	"B24Relay/internal/lib/api/response"
	"B24Relay/internal/lib/sl"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

type relayFunc func(ctx context.Context, body map[string]interface{}) (*entity.RelayResult, error)

// FromGateway receives messages posted by the WhatsApp gateway.
func FromGateway(log *slog.Logger, handler Core) http.HandlerFunc {
	return webhook(log.With(sl.Module("http.handlers.relay.gateway")), handler.RelayFromGateway)
}

// FromCrm receives open line events posted by Bitrix24.
func FromCrm(log *slog.Logger, handler Core) http.HandlerFunc {
	return webhook(log.With(sl.Module("http.handlers.relay.crm")), handler.RelayFromCrm)
}

func webhook(log *slog.Logger, relay relayFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(slog.String("request_id", middleware.GetReqID(r.Context())))

		body, _, err := payload.Read(r)
		if err != nil {
			logger.Warn("decode webhook body", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, entity.RelayResult{Error: entity.CodeInvalidInput, Message: err.Error()})
			return
		}

		result, err := relay(r.Context(), body)
		if err != nil {
			status, res := response.Relay(err)
			logger.With(
				slog.Int("status", status),
				slog.String("code", res.Error),
			).Error("relay failed", sl.Err(err))
			render.Status(r, status)
			render.JSON(w, r, res)
			return
		}

		if result.Skipped != "" {
			logger.Debug("webhook skipped", slog.String("reason", result.Skipped))
		}
		render.JSON(w, r, result)
	}
}
