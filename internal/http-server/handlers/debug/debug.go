package debug

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"B24Relay/internal/lib/api/payload"
	"B24Relay/internal/lib/sl"

	"github.com/go-chi/render"
)

// Env reports which settings are present, never their values.
func Env(_ *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]interface{}{
			"ok":  true,
			"env": handler.EnvReport(),
		})
	}
}

// Echo returns what it received, for checking what a remote really posts.
func Echo(log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(io.LimitReader(r.Body, payload.MaxBodySize))
		if err != nil {
			log.With(sl.Module("http.handlers.debug")).Warn("read echo body", sl.Err(err))
		}

		var body interface{} = string(raw)
		var parsed interface{}
		if err = json.Unmarshal(bytes.TrimSpace(raw), &parsed); err == nil {
			body = parsed
		}

		headers := make(map[string]string, len(r.Header))
		for key := range r.Header {
			headers[strings.ToLower(key)] = r.Header.Get(key)
		}

		render.JSON(w, r, map[string]interface{}{
			"ok":          true,
			"contentType": r.Header.Get("Content-Type"),
			"headers":     headers,
			"body":        body,
		})
	}
}

func Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	}
}
