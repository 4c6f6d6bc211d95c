package secret

import (
	"log/slog"
	"net/http"

	"B24Relay/entity"
	"B24Relay/internal/lib/sl"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

const Header = "X-Relay-Secret"

type Checker interface {
	CheckWebhookSecret(secret string) error
}

// New rejects webhook calls that do not carry the shared secret in the
// X-Relay-Secret header or the secret query parameter.
func New(log *slog.Logger, checker Checker) func(next http.Handler) http.Handler {
	mod := sl.Module("middleware.secret")

	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			value := r.Header.Get(Header)
			if value == "" {
				value = r.URL.Query().Get("secret")
			}

			if err := checker.CheckWebhookSecret(value); err != nil {
				log.With(
					mod,
					slog.String("path", r.URL.Path),
					slog.String("request_id", middleware.GetReqID(r.Context())),
					sl.Err(err),
				).Warn("webhook rejected")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, entity.RelayResult{Error: "unauthorized"})
				return
			}

			next.ServeHTTP(w, r)
		}

		return http.HandlerFunc(fn)
	}
}
