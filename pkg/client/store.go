package client

import "sync"

// Storage keys. The store holds everything the app persists between
// launches and nothing else; Clear wipes all of it on logout.
const (
	KeyAccessToken      = "access_token"
	KeyRefreshToken     = "refresh_token"
	KeyUserID           = "user_id"
	KeyEmail            = "email"
	KeySessionID        = "session_id"
	KeyTokenExpiry      = "token_expiry"
	KeyLastActivity     = "last_activity"
	KeyBiometricEnabled = "biometric_enabled"
)

// SecureStore is the capability the client needs from platform storage:
// an encrypted key-value store scoped to the installation. Implementations
// must be safe for concurrent use.
type SecureStore interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Clear()
}

// MemoryStore is an in-process SecureStore for tests and tooling.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[key]
	return value, ok
}

func (s *MemoryStore) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]string)
}
