package websocket

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/LEONFROMWORK/chat/metrics"
	"github.com/LEONFROMWORK/chat/session"
)

var ErrTooManyConnections = errors.New("too many connections")

const sessionStoreTimeout = 5 * time.Second

// ClientManager tracks the live sessions of a single server instance.
// It coordinates between the in-memory session map, the topic registry and
// the persistent session store.
type ClientManager struct {
	clients        sync.Map // session id -> *ClientSession
	count          atomic.Int64
	maxConnections int
	registry       *TopicRegistry
	sessionStore   session.Store
	serverID       string
	logger         *slog.Logger
}

func NewClientManager(registry *TopicRegistry, store session.Store, serverID string, maxConnections int, logger *slog.Logger) *ClientManager {
	return &ClientManager{
		maxConnections: maxConnections,
		registry:       registry,
		sessionStore:   store,
		serverID:       serverID,
		logger:         logger.With("component", "manager", "server_id", serverID),
	}
}

func (m *ClientManager) ServerID() string { return m.serverID }

func (m *ClientManager) Registry() *TopicRegistry { return m.registry }

// AtCapacity reports whether a new session would exceed maxConnections.
func (m *ClientManager) AtCapacity() bool {
	return m.maxConnections > 0 && m.count.Load() >= int64(m.maxConnections)
}

// AddClient records the session in the persistent store and then in the
// local map.
func (m *ClientManager) AddClient(ctx context.Context, cs *ClientSession) error {
	if m.AtCapacity() {
		return ErrTooManyConnections
	}

	info := &session.Session{
		SessionID:   cs.ID,
		UserID:      cs.UserID,
		ServerID:    m.serverID,
		ConnectedAt: cs.ConnectedAt(),
	}
	if err := m.sessionStore.Create(ctx, info); err != nil {
		m.logger.Error("Failed to create session in store", "session_id", cs.ID, "error", err)
		return err
	}

	m.clients.Store(cs.ID, cs)
	m.count.Add(1)
	metrics.ActiveConnections.Inc()
	metrics.TotalConnections.Inc()
	m.logger.Info("Client connected", "session_id", cs.ID, "user_id", cs.UserID)
	return nil
}

// RemoveClient tears a session down. The session is closed before its
// subscriptions are dropped so a subscribe racing with the teardown cannot
// re-register it. Safe to call more than once.
func (m *ClientManager) RemoveClient(cs *ClientSession) {
	cs.Close(websocket.CloseNormalClosure, "Session closed")
	m.registry.Unsubscribe(cs)

	if _, loaded := m.clients.LoadAndDelete(cs.ID); !loaded {
		return
	}
	m.count.Add(-1)
	metrics.ActiveConnections.Dec()

	// The request context may already be cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), sessionStoreTimeout)
	defer cancel()
	if err := m.sessionStore.Delete(ctx, cs.ID); err != nil {
		m.logger.Warn("Failed to delete session from store", "session_id", cs.ID, "error", err)
	}
	m.logger.Info("Client disconnected", "session_id", cs.ID, "user_id", cs.UserID)
}

func (m *ClientManager) GetClient(sessionID string) (*ClientSession, bool) {
	if client, ok := m.clients.Load(sessionID); ok {
		return client.(*ClientSession), true
	}
	return nil, false
}

// Count returns the number of live sessions on this instance.
func (m *ClientManager) Count() int {
	return int(m.count.Load())
}

// SyncRooms writes the session's current subscriptions to the store.
func (m *ClientManager) SyncRooms(ctx context.Context, cs *ClientSession) {
	if err := m.sessionStore.SetRooms(ctx, cs.ID, m.registry.RoomsOf(cs.ID)); err != nil {
		m.logger.Warn("Failed to record session rooms", "session_id", cs.ID, "error", err)
	}
}

// RefreshSessionTTL extends the session's lifetime in the store. Failures
// are logged and do not disconnect the client.
func (m *ClientManager) RefreshSessionTTL(ctx context.Context, sessionID string) {
	if err := m.sessionStore.RefreshTTL(ctx, sessionID); err != nil {
		m.logger.Warn("Failed to refresh session TTL", "session_id", sessionID, "error", err)
	}
}

// CloseAllConnections sends close messages to all clients and removes them.
func (m *ClientManager) CloseAllConnections(reason string) {
	m.clients.Range(func(_, value any) bool {
		cs := value.(*ClientSession)
		m.logger.Info("Closing connection", "session_id", cs.ID, "reason", reason)
		cs.Close(websocket.CloseGoingAway, reason)
		m.RemoveClient(cs)
		return true
	})
}
