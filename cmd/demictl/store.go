package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// fileStore persists credentials as a JSON file with owner-only permissions.
// It stands in for the platform keychain the mobile apps use.
type fileStore struct {
	path string

	mu     sync.Mutex
	values map[string]string
}

func openFileStore(dir string) (*fileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	s := &fileStore{
		path:   filepath.Join(dir, "credentials.json"),
		values: make(map[string]string),
	}

	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	if err := json.Unmarshal(raw, &s.values); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return s, nil
}

func (s *fileStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	return value, ok
}

func (s *fileStore) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	s.flushLocked()
}

func (s *fileStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]string)
	s.flushLocked()
}

func (s *fileStore) flushLocked() {
	raw, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(s.path, raw, 0600)
}
