package b24

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"B24Relay/entity"
	"B24Relay/internal/lib/api/response"
	"B24Relay/internal/lib/sl"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

// Setup registers the connector and binds its events. An empty body uses
// the configured connector and stored portal credentials.
func Setup(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(
			sl.Module("http.handlers.b24"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req entity.SetupRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			logger.Warn("decode setup request", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, entity.RelayResult{Error: entity.CodeInvalidInput, Message: err.Error()})
			return
		}
		logger = logger.With(slog.String("portal", req.Portal), slog.String("connector", req.ConnectorID))

		result, err := handler.SetupConnector(r.Context(), req)
		if err != nil {
			status, res := response.Relay(err)
			logger.Error("connector setup", sl.Err(err))
			render.Status(r, status)
			render.JSON(w, r, res)
			return
		}
		logger.With(slog.Bool("ok", result.Ok)).Info("connector setup")

		render.JSON(w, r, result)
	}
}

// Status reports the connector state on the open line.
func Status(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := handler.ConnectorStatus(r.Context(), r.URL.Query().Get("portal"))
		if err != nil {
			code, res := response.Relay(err)
			log.With(sl.Module("http.handlers.b24")).Error("connector status", sl.Err(err))
			render.Status(r, code)
			render.JSON(w, r, res)
			return
		}
		render.JSON(w, r, entity.RelayResult{Ok: true, Details: status})
	}
}
