package admin

import (
	"log/slog"
	"net/http"

	"B24Relay/internal/lib/api/response"
	"B24Relay/internal/lib/sl"

	"github.com/go-chi/render"
)

func TestConnection(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := handler.TestConnection(r.Context())
		if err != nil {
			status, _ := response.Relay(err)
			log.With(sl.Module("http.handlers.admin")).Warn("gateway connection test", sl.Err(err))
			render.Status(r, status)
			render.JSON(w, r, response.Error(err.Error()))
			return
		}
		render.JSON(w, r, response.Ok(state))
	}
}
