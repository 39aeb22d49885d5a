package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/physioconnect/consult/backend/internal/config"
	"github.com/physioconnect/consult/backend/internal/handler/contact"
	"github.com/physioconnect/consult/backend/internal/handler/session"
	"github.com/physioconnect/consult/backend/internal/handler/signaling"
	middlewarePkg "github.com/physioconnect/consult/backend/internal/middleware"
	contactService "github.com/physioconnect/consult/backend/internal/service/contact"
	"github.com/physioconnect/consult/backend/internal/service/consultation"
	"github.com/physioconnect/consult/backend/internal/service/relay"
	"github.com/physioconnect/consult/backend/pkg/utils"
)

// NewRouter wires HTTP and WebSocket routes to core services.
func NewRouter(cfg *config.Config, log logrus.FieldLogger, consultSvc *consultation.Service, contactSvc *contactService.Service, hub *relay.Relay) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(log.WithField("component", "http")))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(cfg.Server.AllowedOrigins))

	sessionHandler := session.New(consultSvc, log)
	contactHandler := contact.New(contactSvc, log)
	wsHandler := signaling.NewWebSocketHandler(hub, cfg.Relay, log)

	r.Route("/api", func(api chi.Router) {
		sessionHandler.RegisterRoutes(api)
		contactHandler.RegisterRoutes(api)
	})

	wsHandler.RegisterRoutes(r)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		stats := hub.Stats()
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"sessions":    stats.Sessions,
			"connections": stats.Connections,
		})
	})

	return r
}
