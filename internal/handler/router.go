// Package handler wires HTTP routes to core services.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/demi-app/demi/backend/internal/companion"
	authHandler "github.com/demi-app/demi/backend/internal/handler/auth"
	chatHandler "github.com/demi-app/demi/backend/internal/handler/chat"
	middlewarePkg "github.com/demi-app/demi/backend/internal/middleware"
	"github.com/demi-app/demi/backend/internal/service/ai"
	authService "github.com/demi-app/demi/backend/internal/service/auth"
	chatService "github.com/demi-app/demi/backend/internal/service/chat"
	emotionService "github.com/demi-app/demi/backend/internal/service/emotion"
	"github.com/demi-app/demi/backend/pkg/utils"
)

// NewRouter assembles the REST and websocket surface.
func NewRouter(profile companion.Profile, authSvc *authService.Service, chatSvc *chatService.Service, responder ai.Responder, emotions *emotionService.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	authH := authHandler.New(authSvc)
	chatH := chatHandler.New(authSvc, chatSvc, responder, emotions)

	r.Route("/api", func(api chi.Router) {
		authH.RegisterPublicRoutes(api)

		api.Get("/companion", func(w http.ResponseWriter, r *http.Request) {
			utils.RespondJSON(w, http.StatusOK, profile)
		})

		api.Group(func(protected chi.Router) {
			protected.Use(middlewarePkg.RequireAuth(authSvc))
			authH.RegisterProtectedRoutes(protected)
			chatH.RegisterRoutes(protected)
		})
	})

	return r
}
