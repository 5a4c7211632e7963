package auth

import (
	"context"
	"sync"
)

// NewInMemorySessionStore returns a SessionStore backed by an in-memory map.
func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{sessions: make(map[string]ClientSession)}
}

// InMemorySessionStore implements SessionStore for tests and local development.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]ClientSession
}

// Save stores the session under its client id, replacing any earlier one.
func (s *InMemorySessionStore) Save(_ context.Context, session ClientSession) error {
	s.mu.Lock()
	s.sessions[session.ClientID] = session
	s.mu.Unlock()
	return nil
}

// Find retrieves the session held by a client.
func (s *InMemorySessionStore) Find(_ context.Context, clientID string) (ClientSession, error) {
	s.mu.RLock()
	session, ok := s.sessions[clientID]
	s.mu.RUnlock()
	if !ok {
		return ClientSession{}, ErrSessionNotFound
	}
	return session, nil
}

// Delete removes the client's session.
func (s *InMemorySessionStore) Delete(_ context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[clientID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, clientID)
	return nil
}

// Len reports how many clients hold a session.
func (s *InMemorySessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
