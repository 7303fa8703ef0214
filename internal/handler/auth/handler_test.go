package auth_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/demi-app/demi/backend/internal/config"
	authHandler "github.com/demi-app/demi/backend/internal/handler/auth"
	"github.com/demi-app/demi/backend/internal/middleware"
	authservice "github.com/demi-app/demi/backend/internal/service/auth"
	"github.com/demi-app/demi/backend/pkg/protocol"
)

func newAuthServer(t *testing.T) (*httptest.Server, *authservice.Service) {
	t.Helper()

	svc := authservice.NewService(config.AuthConfig{
		AccessTokenTTL:   15 * time.Minute,
		RefreshTokenTTL:  30 * 24 * time.Hour,
		MaxLoginAttempts: 5,
	})
	if _, err := svc.RegisterUser("demo@demi.app", "demi-demo"); err != nil {
		t.Fatalf("register user: %v", err)
	}

	h := authHandler.New(svc)
	r := chi.NewRouter()
	r.Route("/api", func(api chi.Router) {
		h.RegisterPublicRoutes(api)
		api.Group(func(protected chi.Router) {
			protected.Use(middleware.RequireAuth(svc))
			h.RegisterProtectedRoutes(protected)
		})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, svc
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func login(t *testing.T, srv *httptest.Server, device string) protocol.LoginResponse {
	t.Helper()
	resp := postJSON(t, srv.URL+"/api/login", protocol.LoginRequest{
		Email:      "demo@demi.app",
		Password:   "demi-demo",
		DeviceName: device,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status %d", resp.StatusCode)
	}
	var out protocol.LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return out
}

func TestLoginReturnsTokenPair(t *testing.T) {
	srv, _ := newAuthServer(t)

	out := login(t, srv, "iPhone 15")
	if out.AccessToken == "" || out.RefreshToken == "" {
		t.Error("expected both tokens in login response")
	}
	if out.SessionID == "" || out.UserID == "" {
		t.Error("expected session and user ids in login response")
	}
	if out.ExpiresIn <= 0 {
		t.Errorf("expected positive expiresIn, got %d", out.ExpiresIn)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	srv, _ := newAuthServer(t)

	resp := postJSON(t, srv.URL+"/api/login", protocol.LoginRequest{
		Email:    "demo@demi.app",
		Password: "nope",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}
}

func TestRepeatedFailuresLockAccount(t *testing.T) {
	srv, _ := newAuthServer(t)

	for i := 0; i < 5; i++ {
		resp := postJSON(t, srv.URL+"/api/login", protocol.LoginRequest{
			Email:    "demo@demi.app",
			Password: "nope",
		})
		resp.Body.Close()
	}

	// Even the right password is refused once locked.
	resp := postJSON(t, srv.URL+"/api/login", protocol.LoginRequest{
		Email:    "demo@demi.app",
		Password: "demi-demo",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusLocked {
		t.Errorf("expected 423, got %d", resp.StatusCode)
	}
}

func TestRefreshRotatesAndConsumes(t *testing.T) {
	srv, _ := newAuthServer(t)
	out := login(t, srv, "iPhone 15")

	resp := postJSON(t, srv.URL+"/api/token/refresh", protocol.RefreshRequest{RefreshToken: out.RefreshToken})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status %d", resp.StatusCode)
	}
	var rotated protocol.LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&rotated); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rotated.RefreshToken == out.RefreshToken {
		t.Error("refresh must rotate the refresh token")
	}

	// The consumed token is gone.
	resp2 := postJSON(t, srv.URL+"/api/token/refresh", protocol.RefreshRequest{RefreshToken: out.RefreshToken})
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for consumed refresh token, got %d", resp2.StatusCode)
	}
}

func TestListSessionsMarksCurrent(t *testing.T) {
	srv, _ := newAuthServer(t)
	first := login(t, srv, "iPhone 15")
	second := login(t, srv, "iPad")

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+second.AccessToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sessions status %d", resp.StatusCode)
	}

	var sessions []protocol.Session
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	for _, s := range sessions {
		want := s.SessionID == second.SessionID
		if s.IsCurrent != want {
			t.Errorf("session %s isCurrent=%t, want %t", s.SessionID, s.IsCurrent, want)
		}
		if s.SessionID == first.SessionID && s.IsCurrent {
			t.Error("the other device must not be marked current")
		}
	}
}

func TestRevokeOwnSessionInvalidatesImmediately(t *testing.T) {
	srv, _ := newAuthServer(t)
	out := login(t, srv, "iPhone 15")

	req, _ := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/api/sessions/%s", srv.URL, out.SessionID), nil)
	req.Header.Set("Authorization", "Bearer "+out.AccessToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("revoke status %d", resp.StatusCode)
	}

	// The token died with the session.
	req2, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/sessions", nil)
	req2.Header.Set("Authorization", "Bearer "+out.AccessToken)
	resp2, err := http.DefaultClient.Do(req2)
	if err != nil {
		t.Fatalf("list after revoke: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 after self-revoke, got %d", resp2.StatusCode)
	}
}

func TestRevokeUnknownSessionNotFound(t *testing.T) {
	srv, _ := newAuthServer(t)
	out := login(t, srv, "iPhone 15")

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/sessions/does-not-exist", nil)
	req.Header.Set("Authorization", "Bearer "+out.AccessToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}
