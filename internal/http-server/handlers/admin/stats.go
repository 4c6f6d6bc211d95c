package admin

import (
	"log/slog"
	"net/http"
	"strconv"

	"B24Relay/entity"
	"B24Relay/internal/lib/api/response"
	"B24Relay/internal/lib/sl"

	"github.com/go-chi/render"
)

func Stats(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := handler.GetStats(r.Context())
		if err != nil {
			log.With(sl.Module("http.handlers.admin")).Error("get stats", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("Failed to load stats"))
			return
		}
		render.JSON(w, r, stats)
	}
}

// Logs lists recent entries filtered by the level, source and limit
// query parameters.
func Logs(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := entity.LogFilter{
			Level:  q.Get("level"),
			Source: q.Get("source"),
		}
		if l := q.Get("limit"); l != "" {
			if v, err := strconv.Atoi(l); err == nil {
				filter.Limit = v
			}
		}

		logs, err := handler.GetLogs(r.Context(), filter.Normalize())
		if err != nil {
			log.With(sl.Module("http.handlers.admin")).Error("get logs", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("Failed to load logs"))
			return
		}
		if logs == nil {
			logs = []entity.LogEntry{}
		}
		render.JSON(w, r, logs)
	}
}
