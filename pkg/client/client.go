// Package client is the reference implementation of the protocol's client
// half: token lifecycle, session management and the chat channel, kept free
// of any UI concerns.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/demi-app/demi/backend/pkg/protocol"
)

// DefaultIdleTimeout is the inactivity window after which the app demands
// re-authentication (e.g. a biometric prompt) even though the tokens may
// still be valid.
const DefaultIdleTimeout = 30 * time.Minute

// Config configures a Client.
type Config struct {
	BaseURL     string
	Store       SecureStore
	HTTPClient  *http.Client
	IdleTimeout time.Duration
}

// Client talks to the Demi backend. All methods are safe for concurrent
// use; token refresh is serialized so concurrent callers share one rotation.
type Client struct {
	baseURL string
	store   SecureStore
	httpc   *http.Client
	idle    time.Duration

	refreshGroup singleflight.Group
	now          func() time.Time
}

// New creates a Client. A nil store gets an in-memory one.
func New(cfg Config) *Client {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	httpc := cfg.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: 30 * time.Second}
	}
	idle := cfg.IdleTimeout
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		store:   store,
		httpc:   httpc,
		idle:    idle,
		now:     time.Now,
	}
}

// Login authenticates and persists the resulting credentials. On failure
// nothing is written to the store.
func (c *Client) Login(ctx context.Context, email, password, deviceName string) error {
	var resp protocol.LoginResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/login", protocol.LoginRequest{
		Email:      email,
		Password:   password,
		DeviceName: deviceName,
	}, &resp, "", mapLoginStatus)
	if err != nil {
		return err
	}

	c.persistCredentials(resp, email)
	return nil
}

// Refresh rotates the token pair. Concurrent callers collapse onto a single
// in-flight refresh; everyone receives its outcome.
func (c *Client) Refresh(ctx context.Context) error {
	_, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		refreshToken, ok := c.store.Get(KeyRefreshToken)
		if !ok || refreshToken == "" {
			return nil, &AuthError{Code: CodeInvalidToken, Message: "no refresh token stored"}
		}

		var resp protocol.LoginResponse
		err := c.doJSON(ctx, http.MethodPost, "/api/token/refresh", protocol.RefreshRequest{
			RefreshToken: refreshToken,
		}, &resp, "", mapTokenStatus)
		if err != nil {
			return nil, err
		}

		email, _ := c.store.Get(KeyEmail)
		c.persistCredentials(resp, email)
		return nil, nil
	})
	return err
}

// AccessToken returns a token valid for at least a few seconds, refreshing
// first when the stored one has expired.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	if c.tokenExpired() {
		if err := c.Refresh(ctx); err != nil {
			return "", err
		}
	}
	token, ok := c.store.Get(KeyAccessToken)
	if !ok || token == "" {
		return "", &AuthError{Code: CodeInvalidToken, Message: "not logged in"}
	}
	return token, nil
}

// Sessions lists the user's device sessions, most recent first.
func (c *Client) Sessions(ctx context.Context) ([]protocol.Session, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	var sessions []protocol.Session
	if err := c.doJSON(ctx, http.MethodGet, "/api/sessions", nil, &sessions, token, mapSessionStatus); err != nil {
		return nil, err
	}
	c.touch()
	return sessions, nil
}

// RevokeSession revokes the named session. Revoking the current session
// succeeds; the stored credentials are cleared because they just died.
func (c *Client) RevokeSession(ctx context.Context, sessionID string) error {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return err
	}

	if err := c.doJSON(ctx, http.MethodDelete, "/api/sessions/"+sessionID, nil, nil, token, mapSessionStatus); err != nil {
		return err
	}

	current, _ := c.store.Get(KeySessionID)
	if current == sessionID {
		c.store.Clear()
	} else {
		c.touch()
	}
	return nil
}

// Logout wipes every persisted credential.
func (c *Client) Logout() {
	c.store.Clear()
}

// IsSessionTimedOut reports whether the inactivity window has elapsed since
// the last authenticated interaction. This is a local policy on top of
// token validity: a timed-out session still holds usable tokens but the app
// must re-authenticate the human before using them.
func (c *Client) IsSessionTimedOut() bool {
	raw, ok := c.store.Get(KeyLastActivity)
	if !ok || raw == "" {
		return false
	}
	last, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return true
	}
	return c.now().Sub(last) > c.idle
}

// SetBiometricEnabled records the user's biometric preference.
func (c *Client) SetBiometricEnabled(enabled bool) {
	c.store.Set(KeyBiometricEnabled, fmt.Sprintf("%t", enabled))
}

// BiometricEnabled reports the stored biometric preference.
func (c *Client) BiometricEnabled() bool {
	raw, _ := c.store.Get(KeyBiometricEnabled)
	return raw == "true"
}

func (c *Client) persistCredentials(resp protocol.LoginResponse, email string) {
	now := c.now()
	c.store.Set(KeyAccessToken, resp.AccessToken)
	c.store.Set(KeyRefreshToken, resp.RefreshToken)
	c.store.Set(KeyUserID, resp.UserID)
	c.store.Set(KeyEmail, email)
	c.store.Set(KeySessionID, resp.SessionID)
	c.store.Set(KeyTokenExpiry, now.Add(time.Duration(resp.ExpiresIn)*time.Second).Format(time.RFC3339Nano))
	c.store.Set(KeyLastActivity, now.Format(time.RFC3339Nano))
}

func (c *Client) tokenExpired() bool {
	raw, ok := c.store.Get(KeyTokenExpiry)
	if !ok || raw == "" {
		return false
	}
	expiry, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return true
	}
	// Refresh slightly early so a token does not expire mid-request.
	return c.now().After(expiry.Add(-10 * time.Second))
}

func (c *Client) touch() {
	c.store.Set(KeyLastActivity, c.now().Format(time.RFC3339Nano))
}

type statusMapper func(status int, message string) error

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any, token string, mapStatus statusMapper) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody protocol.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return mapStatus(resp.StatusCode, errBody.Error)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &NetworkError{Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func mapLoginStatus(status int, message string) error {
	switch status {
	case http.StatusUnauthorized:
		return &AuthError{Code: CodeInvalidCredentials, Message: orDefault(message, "invalid credentials")}
	case http.StatusLocked:
		return &AuthError{Code: CodeAccountLocked, Message: orDefault(message, "account locked")}
	}
	return &NetworkError{Err: fmt.Errorf("unexpected status %d: %s", status, message)}
}

func mapTokenStatus(status int, message string) error {
	if status == http.StatusUnauthorized {
		return &AuthError{Code: CodeInvalidToken, Message: orDefault(message, "invalid or expired token")}
	}
	return &NetworkError{Err: fmt.Errorf("unexpected status %d: %s", status, message)}
}

func mapSessionStatus(status int, message string) error {
	switch status {
	case http.StatusUnauthorized:
		return &AuthError{Code: CodeInvalidToken, Message: orDefault(message, "invalid or expired token")}
	case http.StatusForbidden:
		return &AuthError{Code: CodeForbidden, Message: orDefault(message, "forbidden")}
	case http.StatusNotFound:
		return &AuthError{Code: CodeNotFound, Message: orDefault(message, "session not found")}
	}
	return &NetworkError{Err: fmt.Errorf("unexpected status %d: %s", status, message)}
}

func orDefault(message, fallback string) string {
	if message != "" {
		return message
	}
	return fallback
}
