// Package auth implements the session authority: login, single-use refresh
// rotation, per-device session enumeration and revocation.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/demi-app/demi/backend/internal/config"
	"github.com/demi-app/demi/backend/pkg/protocol"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrForbidden          = errors.New("forbidden")
	ErrSessionNotFound    = errors.New("session not found")
)

// Identity names the authenticated caller of a request.
type Identity struct {
	UserID    string
	SessionID string
}

type userRecord struct {
	id           string
	email        string
	passwordHash []byte
	failedLogins int
	locked       bool
}

type sessionRecord struct {
	protocol.Session

	userID       string
	accessHash   string
	refreshHash  string
	accessExpiry time.Time
}

// Service holds users and their device sessions. Token values never leave
// the issuing call; only SHA-256 hashes are retained for lookup.
type Service struct {
	mu           sync.Mutex
	cfg          config.AuthConfig
	usersByEmail map[string]*userRecord
	sessions     map[string]*sessionRecord
	byAccess     map[string]string
	byRefresh    map[string]string
	now          func() time.Time
}

// NewService creates an empty session authority.
func NewService(cfg config.AuthConfig) *Service {
	return &Service{
		cfg:          cfg,
		usersByEmail: make(map[string]*userRecord),
		sessions:     make(map[string]*sessionRecord),
		byAccess:     make(map[string]string),
		byRefresh:    make(map[string]string),
		now:          time.Now,
	}
}

// RegisterUser provisions an account, hashing the password with bcrypt.
func (s *Service) RegisterUser(email, password string) (string, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return "", fmt.Errorf("email and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.usersByEmail[email]; ok {
		existing.passwordHash = hash
		return existing.id, nil
	}

	user := &userRecord{id: uuid.NewString(), email: email, passwordHash: hash}
	s.usersByEmail[email] = user
	return user.id, nil
}

// Login verifies credentials and issues a token pair. An active session for
// the same (user, device) is reused and its tokens rotated; otherwise a new
// session is created.
func (s *Service) Login(_ context.Context, email, password, deviceName string) (protocol.LoginResponse, error) {
	email = normalizeEmail(email)
	deviceName = strings.TrimSpace(deviceName)
	if deviceName == "" {
		deviceName = "unknown device"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.usersByEmail[email]
	if !ok {
		return protocol.LoginResponse{}, ErrInvalidCredentials
	}
	if user.locked {
		return protocol.LoginResponse{}, ErrAccountLocked
	}

	if err := bcrypt.CompareHashAndPassword(user.passwordHash, []byte(password)); err != nil {
		user.failedLogins++
		if user.failedLogins >= s.cfg.MaxLoginAttempts {
			user.locked = true
		}
		return protocol.LoginResponse{}, ErrInvalidCredentials
	}
	user.failedLogins = 0

	now := s.now()
	rec := s.findDeviceSession(user.id, deviceName)
	if rec == nil {
		rec = &sessionRecord{
			Session: protocol.Session{
				SessionID:  uuid.NewString(),
				DeviceName: deviceName,
				CreatedAt:  now,
			},
			userID: user.id,
		}
		s.sessions[rec.SessionID] = rec
	}

	rec.IsActive = true
	rec.LastActivity = now
	rec.ExpiresAt = now.Add(s.cfg.RefreshTokenTTL)

	pair, err := s.rotateLocked(rec)
	if err != nil {
		return protocol.LoginResponse{}, err
	}

	return protocol.LoginResponse{
		TokenPair: pair,
		UserID:    user.id,
		SessionID: rec.SessionID,
	}, nil
}

// Refresh exchanges a refresh token for a rotated pair. The presented token
// is single-use: rotation removes it, so a concurrent retry with the stale
// value fails with ErrInvalidToken.
func (s *Service) Refresh(_ context.Context, refreshToken string) (protocol.LoginResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessionID, ok := s.byRefresh[hashToken(refreshToken)]
	if !ok {
		return protocol.LoginResponse{}, ErrInvalidToken
	}

	rec := s.sessions[sessionID]
	now := s.now()
	if rec == nil || !rec.IsActive {
		return protocol.LoginResponse{}, ErrInvalidToken
	}
	if now.After(rec.ExpiresAt) {
		s.deactivateLocked(rec)
		return protocol.LoginResponse{}, ErrInvalidToken
	}

	rec.LastActivity = now
	rec.ExpiresAt = now.Add(s.cfg.RefreshTokenTTL)

	pair, err := s.rotateLocked(rec)
	if err != nil {
		return protocol.LoginResponse{}, err
	}

	return protocol.LoginResponse{
		TokenPair: pair,
		UserID:    rec.userID,
		SessionID: rec.SessionID,
	}, nil
}

// Authenticate resolves an access token to the caller's identity and counts
// as activity on the session.
func (s *Service) Authenticate(_ context.Context, accessToken string) (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessionID, ok := s.byAccess[hashToken(accessToken)]
	if !ok {
		return Identity{}, ErrInvalidToken
	}

	rec := s.sessions[sessionID]
	now := s.now()
	if rec == nil || !rec.IsActive || now.After(rec.accessExpiry) {
		return Identity{}, ErrInvalidToken
	}
	if now.After(rec.ExpiresAt) {
		s.deactivateLocked(rec)
		return Identity{}, ErrInvalidToken
	}

	rec.LastActivity = now
	return Identity{UserID: rec.userID, SessionID: rec.SessionID}, nil
}

// ListSessions returns the user's sessions, most recent activity first.
// IsCurrent is set on the session matching currentSessionID.
func (s *Service) ListSessions(_ context.Context, userID, currentSessionID string) []protocol.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []protocol.Session
	for _, rec := range s.sessions {
		if rec.userID != userID {
			continue
		}
		session := rec.Session
		session.IsCurrent = rec.SessionID == currentSessionID
		out = append(out, session)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out
}

// Revoke deactivates the named session and invalidates its tokens. Revoking
// the caller's own session succeeds and takes effect immediately.
func (s *Service) Revoke(_ context.Context, userID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if rec.userID != userID {
		return ErrForbidden
	}

	s.deactivateLocked(rec)
	return nil
}

// Touch records activity on a session, e.g. a channel operation.
func (s *Service) Touch(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.sessions[sessionID]; ok && rec.IsActive {
		rec.LastActivity = s.now()
	}
}

func (s *Service) findDeviceSession(userID, deviceName string) *sessionRecord {
	for _, rec := range s.sessions {
		if rec.userID == userID && rec.DeviceName == deviceName && rec.IsActive {
			return rec
		}
	}
	return nil
}

// rotateLocked replaces both tokens for the session. Callers hold s.mu.
func (s *Service) rotateLocked(rec *sessionRecord) (protocol.TokenPair, error) {
	access, err := newToken()
	if err != nil {
		return protocol.TokenPair{}, err
	}
	refresh, err := newToken()
	if err != nil {
		return protocol.TokenPair{}, err
	}

	delete(s.byAccess, rec.accessHash)
	delete(s.byRefresh, rec.refreshHash)

	rec.accessHash = hashToken(access)
	rec.refreshHash = hashToken(refresh)
	rec.accessExpiry = s.now().Add(s.cfg.AccessTokenTTL)

	s.byAccess[rec.accessHash] = rec.SessionID
	s.byRefresh[rec.refreshHash] = rec.SessionID

	return protocol.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.cfg.AccessTokenTTL.Seconds()),
	}, nil
}

func (s *Service) deactivateLocked(rec *sessionRecord) {
	rec.IsActive = false
	delete(s.byAccess, rec.accessHash)
	delete(s.byRefresh, rec.refreshHash)
	rec.accessHash = ""
	rec.refreshHash = ""
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
