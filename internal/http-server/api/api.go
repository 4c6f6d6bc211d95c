package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"B24Relay/internal/config"
	"B24Relay/internal/http-server/handlers/admin"
	"B24Relay/internal/http-server/handlers/b24"
	"B24Relay/internal/http-server/handlers/debug"
	handlererrors "B24Relay/internal/http-server/handlers/errors"
	"B24Relay/internal/http-server/handlers/relay"
	"B24Relay/internal/http-server/middleware/authenticate"
	"B24Relay/internal/http-server/middleware/frame"
	"B24Relay/internal/http-server/middleware/requestlog"
	"B24Relay/internal/http-server/middleware/secret"
	"B24Relay/internal/lib/sl"
	"B24Relay/internal/ws"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

type Server struct {
	conf       *config.Config
	httpServer *http.Server
	log        *slog.Logger
}

type Handler interface {
	authenticate.Authenticate
	secret.Checker
	relay.Core
	b24.Core
	admin.Core
	debug.Core
}

// NewRouter builds the relay routes. The live log stream is mounted only
// when a hub is given.
func NewRouter(log *slog.Logger, handler Handler, hub *ws.Hub) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(requestlog.New(log))
	router.Use(frame.New())
	router.Use(render.SetContentType(render.ContentTypeJSON))

	router.NotFound(handlererrors.NotFound(log))
	router.MethodNotAllowed(handlererrors.NotAllowed(log))

	router.Get("/health", debug.Health())

	router.Route("/api", func(api chi.Router) {
		// webhooks
		api.Group(func(r chi.Router) {
			r.Use(secret.New(log, handler))
			r.Post("/wa/webhook-in", relay.FromGateway(log, handler))
			r.Post("/b24/events/imconnector", relay.FromCrm(log, handler))
		})

		// application frame, called by Bitrix24 itself
		api.Route("/b24", func(r chi.Router) {
			r.Get("/install", b24.Install(log))
			r.Post("/callback", b24.Callback(log, handler))
			r.Get("/placement", b24.Placement(log, handler))
			r.Post("/placement", b24.Placement(log, handler))
		})

		// admin
		api.Group(func(r chi.Router) {
			r.Use(authenticate.New(log, handler))
			r.Post("/setup", b24.Setup(log, handler))
			r.Get("/b24/status", b24.Status(log, handler))
			r.Get("/settings", admin.GetSettings(log, handler))
			r.Post("/settings", admin.SaveSettings(log, handler))
			r.Get("/stats", admin.Stats(log, handler))
			r.Get("/logs", admin.Logs(log, handler))
			r.Post("/test-connection", admin.TestConnection(log, handler))
			r.Get("/debug/env", debug.Env(log, handler))
			r.Post("/debug/echo", debug.Echo(log))
			if hub != nil {
				r.Get("/logs/stream", func(w http.ResponseWriter, r *http.Request) {
					ws.ServeWs(hub, handler, log.With(sl.Module("ws.client")), w, r)
				})
			}
		})
	})

	return router
}

// New serves the relay API until ctx is done.
func New(ctx context.Context, conf *config.Config, log *slog.Logger, handler Handler, hub *ws.Hub) error {
	server := Server{
		conf: conf,
		log:  log.With(sl.Module("api.server")),
	}

	httpLog := slog.NewLogLogger(log.Handler(), slog.LevelError)
	server.httpServer = &http.Server{
		Handler:  NewRouter(log, handler, hub),
		ErrorLog: httpLog,
	}

	serverAddress := fmt.Sprintf("%s:%s", conf.Listen.BindIP, conf.Listen.Port)
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		_ = server.httpServer.Shutdown(context.Background())
	}()

	server.log.Info("starting api server", slog.String("address", serverAddress))

	err = server.httpServer.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
