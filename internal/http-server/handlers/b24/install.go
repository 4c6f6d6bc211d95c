package b24

import (
	"log/slog"
	"net/http"
	"strings"

	"B24Relay/entity"
	"B24Relay/impl/core"
	"B24Relay/internal/lib/api/payload"
	"B24Relay/internal/lib/api/response"
	"B24Relay/internal/lib/sl"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

// Pages the application frame is sent to.
const (
	PageInstall   = "/install"
	PageInstalled = "/install/success"
	PageRemoved   = "/install/uninstall"
	PageSettings  = "/connector/settings"
)

// Install redirects the application frame by the event query parameter.
func Install(_ *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch strings.ToUpper(r.URL.Query().Get("event")) {
		case core.EventInstall:
			http.Redirect(w, r, PageInstalled, http.StatusFound)
		case core.EventUninstall:
			http.Redirect(w, r, PageRemoved, http.StatusFound)
		default:
			http.Redirect(w, r, PageInstall, http.StatusFound)
		}
	}
}

// Callback stores the credentials of an install event, or drops them on
// uninstall, then sends the frame to the matching page.
func Callback(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(
			sl.Module("http.handlers.b24"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		body, err := readWithQuery(r)
		if err != nil {
			logger.Warn("decode callback body", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, entity.RelayResult{Error: entity.CodeInvalidInput, Message: err.Error()})
			return
		}

		event, err := handler.HandleInstallEvent(r.Context(), body)
		if err != nil {
			status, res := response.Relay(err)
			logger.With(slog.String("event", event)).Error("install callback", sl.Err(err))
			render.Status(r, status)
			render.JSON(w, r, res)
			return
		}
		logger.Info("install callback", slog.String("event", event))

		switch event {
		case core.EventInstall:
			http.Redirect(w, r, PageSettings, http.StatusFound)
		case core.EventUninstall:
			http.Redirect(w, r, PageInstall, http.StatusFound)
		default:
			render.JSON(w, r, entity.RelayResult{Ok: true})
		}
	}
}

// Placement opens the connector settings page. Credentials sent along with
// the placement call refresh the stored ones.
func Placement(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			body, err := readWithQuery(r)
			if err == nil && body["AUTH_ID"] != nil {
				if _, err = handler.HandleInstallEvent(r.Context(), body); err != nil {
					log.With(sl.Module("http.handlers.b24")).Warn("placement credentials", sl.Err(err))
				}
			}
		}
		http.Redirect(w, r, PageSettings, http.StatusFound)
	}
}

// readWithQuery decodes the body; query parameters fill keys the body lacks,
// since Bitrix24 sends DOMAIN and similar in the URL of application calls.
func readWithQuery(r *http.Request) (map[string]interface{}, error) {
	body, _, err := payload.Read(r)
	if err != nil {
		return nil, err
	}
	for key, values := range r.URL.Query() {
		if _, ok := body[key]; !ok && len(values) > 0 {
			body[key] = values[0]
		}
	}
	return body, nil
}
