package session

import (
	"context"
	"sync"
)

// MemoryStore keeps sessions in process. Used when a single server instance
// runs without Redis, and in tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session)}
}

func (s *MemoryStore) Create(_ context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.SessionID] = clone(*session)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	c := clone(session)
	return &c, nil
}

func (s *MemoryStore) SetRooms(_ context.Context, sessionID string, rooms []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	session.Rooms = append([]string(nil), rooms...)
	s.sessions[sessionID] = session
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// RefreshTTL is a no-op: memory sessions live until deleted.
func (s *MemoryStore) RefreshTTL(context.Context, string) error { return nil }

// Len reports how many sessions are recorded.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func clone(s Session) Session {
	s.Rooms = append([]string(nil), s.Rooms...)
	return s
}
