package vault

import (
	"sync"
)

// TokenStore is a concurrency-safe holder of the current session token.
// It is the only shared mutable resource in the client: all other
// components borrow the token for the duration of one call and never
// cache it independently.
//
// Replace is linearizable with respect to Read; no caller ever observes
// a partially written token. The critical section covers only the
// in-memory read or replace, never the network call that produces the
// new value.
type TokenStore struct {
	mu    sync.RWMutex
	token string
	set   bool
}

// NewTokenStore creates an empty token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{}
}

// Read returns the current session token, or false if unauthenticated.
func (s *TokenStore) Read() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.set
}

// Replace atomically sets the session token. Last writer wins;
// authentication fully replaces prior state.
func (s *TokenStore) Replace(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.set = true
}

// Clear removes the session token, returning the store to the
// unauthenticated state.
func (s *TokenStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.set = false
}
