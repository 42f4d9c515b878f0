package sessionstore

import (
	"fmt"
	"sync"
)

// Store is the in-memory registry from session id to *Session. It guards
// only the id-to-session index; each Session locks its own fields.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// New creates an empty store.
func New() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Create registers a new session under its ID.
func (s *Store) Create(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID()] = session
}

// Get returns the session for id, or ok=false if unknown.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// GetOrErr is Get but returns a "session not found" error instead of a bool.
func (s *Store) GetOrErr(id string) (*Session, error) {
	sess, ok := s.Get(id)
	if !ok {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	return sess, nil
}

// Delete removes a session from the registry.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// All returns every currently registered session.
func (s *Store) All() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}
