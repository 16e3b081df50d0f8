package service

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/joeblew999/geoportal/internal/apperr"
)

// SessionStore holds the live viewer sessions by id.
type SessionStore struct {
	deps     SessionDeps
	sessions map[string]*Session
	mu       sync.RWMutex
}

// NewSessionStore creates an empty store whose sessions share deps.
func NewSessionStore(deps SessionDeps) *SessionStore {
	return &SessionStore{
		deps:     deps,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session with a random id.
func (s *SessionStore) Create() *Session {
	sess := NewSession(uuid.NewString(), s.deps)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return sess
}

// Get returns a session by id.
func (s *SessionStore) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	return sess, ok
}

// List returns the ids of all sessions, sorted.
func (s *SessionStore) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Delete closes and removes a session.
func (s *SessionStore) Delete(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		return apperr.NotFound("session %q not found", id)
	}
	sess.Close()
	return nil
}

// Close closes every session.
func (s *SessionStore) Close() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
}
