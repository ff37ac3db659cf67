package session

import (
	"context"
	"time"
)

// Session holds metadata about one connection session.
// This is the data that will be stored in a persistent store like Redis.
type Session struct {
	SessionID   string    `json:"session_id"`
	UserID      string    `json:"user_id"`
	ServerID    string    `json:"server_id"` // ID of the chat server instance holding the transport
	ConnectedAt time.Time `json:"connected_at"`
	Rooms       []string  `json:"rooms"`
}

// Store defines the interface for session management.
type Store interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error
	// Get retrieves a session by ID. A missing session is (nil, nil).
	Get(ctx context.Context, sessionID string) (*Session, error)
	// SetRooms replaces the rooms recorded for a session.
	SetRooms(ctx context.Context, sessionID string, rooms []string) error
	// Delete removes a session.
	Delete(ctx context.Context, sessionID string) error
	// RefreshTTL extends the session's lifetime in the store.
	RefreshTTL(ctx context.Context, sessionID string) error
}
