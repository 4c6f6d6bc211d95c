package admin

import (
	"log/slog"
	"net/http"

	"B24Relay/entity"
	"B24Relay/internal/lib/api/response"
	"B24Relay/internal/lib/sl"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

func GetSettings(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		settings, err := handler.GetSettings(r.Context())
		if err != nil {
			log.With(sl.Module("http.handlers.admin")).Error("get settings", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("Failed to load settings"))
			return
		}
		render.JSON(w, r, settings)
	}
}

func SaveSettings(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(
			sl.Module("http.handlers.admin"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var settings entity.Settings
		if err := render.Bind(r, &settings); err != nil {
			logger.Warn("invalid settings", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error(err.Error()))
			return
		}

		if err := handler.SaveSettings(r.Context(), &settings); err != nil {
			logger.Error("save settings", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("Failed to save settings"))
			return
		}
		logger.With(slog.String("evolution_url", settings.EvolutionURL)).Info("settings saved")

		render.JSON(w, r, response.Ok(nil))
	}
}
