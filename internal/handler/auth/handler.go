// Package auth exposes the session authority over REST.
package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/demi-app/demi/backend/internal/middleware"
	authservice "github.com/demi-app/demi/backend/internal/service/auth"
	"github.com/demi-app/demi/backend/pkg/protocol"
	"github.com/demi-app/demi/backend/pkg/utils"
)

// Handler serves login, token refresh and session management.
type Handler struct {
	authSvc *authservice.Service
}

// New creates the auth handler.
func New(authSvc *authservice.Service) *Handler {
	return &Handler{authSvc: authSvc}
}

// RegisterPublicRoutes mounts the endpoints that work without a token.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/token/refresh", h.handleRefresh)
}

// RegisterProtectedRoutes mounts the endpoints behind RequireAuth.
func (h *Handler) RegisterProtectedRoutes(r chi.Router) {
	r.Get("/sessions", h.handleListSessions)
	r.Delete("/sessions/{sessionID}", h.handleRevoke)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload protocol.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Email == "" || payload.Password == "" {
		utils.RespondError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	resp, err := h.authSvc.Login(r.Context(), payload.Email, payload.Password, payload.DeviceName)
	if err != nil {
		respondAuthError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var payload protocol.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.RefreshToken == "" {
		utils.RespondError(w, http.StatusBadRequest, "refreshToken is required")
		return
	}

	resp, err := h.authSvc.Refresh(r.Context(), payload.RefreshToken)
	if err != nil {
		respondAuthError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	sessions := h.authSvc.ListSessions(r.Context(), identity.UserID, identity.SessionID)
	utils.RespondJSON(w, http.StatusOK, sessions)
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	if err := h.authSvc.Revoke(r.Context(), identity.UserID, sessionID); err != nil {
		respondAuthError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func respondAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authservice.ErrInvalidCredentials):
		utils.RespondError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, authservice.ErrAccountLocked):
		utils.RespondError(w, http.StatusLocked, "account locked")
	case errors.Is(err, authservice.ErrInvalidToken):
		utils.RespondError(w, http.StatusUnauthorized, "invalid or expired token")
	case errors.Is(err, authservice.ErrForbidden):
		utils.RespondError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, authservice.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, "session not found")
	default:
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
