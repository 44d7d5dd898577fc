// Package settings holds runtime-editable credentials.
package settings

import (
	"strings"
	"sync"
)

// Store keeps the AI provider key. It starts from configuration and may be
// replaced through the settings API; the change is not persisted.
type Store struct {
	mu             sync.RWMutex
	apiKey         string
	hasCredentials bool
}

// New returns a Store. hasCredentials reports whether the mail account is configured.
func New(apiKey string, hasCredentials bool) *Store {
	return &Store{apiKey: strings.TrimSpace(apiKey), hasCredentials: hasCredentials}
}

// APIKey returns the current key, empty when unset.
func (s *Store) APIKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.apiKey
}

func (s *Store) SetAPIKey(key string) {
	s.mu.Lock()
	s.apiKey = strings.TrimSpace(key)
	s.mu.Unlock()
}

// MaskedAPIKey keeps the last four characters of the key.
func (s *Store) MaskedAPIKey() string {
	key := s.APIKey()
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}

func (s *Store) HasCredentials() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasCredentials
}
