package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zhouzirui/z-chat/backend/internal/handler/auth"
	"github.com/zhouzirui/z-chat/backend/internal/handler/room"
	"github.com/zhouzirui/z-chat/backend/internal/handler/static"
	middlewarePkg "github.com/zhouzirui/z-chat/backend/internal/middleware"
	"github.com/zhouzirui/z-chat/backend/pkg/utils"
)

// Dependencies collects what the HTTP layer needs from the services.
type Dependencies struct {
	Accounts  auth.Accounts
	Sessions  SessionStore
	Rooms     room.Rooms
	Directory room.Directory
	Cookie    auth.CookieConfig
	StaticDir string
}

// SessionStore is the subset of the session registry used by handlers.
type SessionStore interface {
	auth.Sessions
	middlewarePkg.SessionValidator
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger)
	r.Use(middleware.Recoverer)

	authHandler := auth.New(deps.Accounts, deps.Sessions, deps.Cookie)
	roomHandler := room.New(deps.Rooms, deps.Directory, deps.Accounts)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondOK(w, "ok", nil)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		authHandler.RegisterRoutes(api)

		api.Group(func(protected chi.Router) {
			protected.Use(middlewarePkg.RequireSession(deps.Sessions, deps.Cookie.Name))
			authHandler.RegisterProtectedRoutes(protected)
			roomHandler.RegisterRoutes(protected)
		})
	})

	static.New(deps.StaticDir).RegisterRoutes(r)

	return r
}
