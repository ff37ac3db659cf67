package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/LEONFROMWORK/chat/config"
	"github.com/LEONFROMWORK/chat/protocol"
)

var (
	ErrSessionClosed  = errors.New("session is closed")
	ErrSendBufferFull = errors.New("send buffer is full")
)

func dropReason(err error) string {
	switch {
	case errors.Is(err, ErrSessionClosed):
		return "closed"
	case errors.Is(err, ErrSendBufferFull):
		return "buffer_full"
	default:
		return "error"
	}
}

// ClientSession is the server side of one open transport. It owns its
// writer goroutine and keepalive timers and stops all of them on Close.
type ClientSession struct {
	ID     string
	UserID string

	conn   *websocket.Conn
	cfg    *config.WebSocketConfig
	logger *slog.Logger
	send   chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	lastActivity  atomic.Int64
	connectedAt   time.Time
	pingTicker    *time.Ticker
	activityTimer *time.Timer
	mu            sync.Mutex // guards timers

	sendMu    sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// NewClientSession creates a session for an upgraded connection. Call Start
// to begin writing and keepalive.
func NewClientSession(id, userID string, conn *websocket.Conn, cfg *config.WebSocketConfig, logger *slog.Logger) *ClientSession {
	ctx, cancel := context.WithCancel(context.Background())
	buffer := cfg.SendBuffer
	if buffer <= 0 {
		buffer = 1
	}
	cs := &ClientSession{
		ID:          id,
		UserID:      userID,
		conn:        conn,
		cfg:         cfg,
		logger:      logger.With("component", "session", "session_id", id, "user_id", userID),
		send:        make(chan []byte, buffer),
		ctx:         ctx,
		cancel:      cancel,
		connectedAt: time.Now(),
	}
	cs.lastActivity.Store(time.Now().Unix())
	return cs
}

func (s *ClientSession) SessionID() string { return s.ID }

// Done is closed once the session has been closed.
func (s *ClientSession) Done() <-chan struct{} { return s.ctx.Done() }

// Send queues data for the writer. It never blocks: a closed session or a
// full buffer returns an error and the payload is dropped.
func (s *ClientSession) Send(data []byte) error {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()

	if s.closed {
		return ErrSessionClosed
	}
	select {
	case s.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// SendPayload encodes p and queues it.
func (s *ClientSession) SendPayload(p protocol.Payload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", p.Type, err)
	}
	return s.Send(data)
}

// Start launches the writer and the keepalive timers.
func (s *ClientSession) Start() {
	go s.writePump()
	s.StartTimers()
}

func (s *ClientSession) writePump() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case data := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeoutDuration()))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Debug("Write failed", "error", err)
				s.Close(websocket.CloseInternalServerErr, "Write failure")
				return
			}
		}
	}
}

// UpdateActivity updates the last activity timestamp and resets the timeout timer.
// This should only be called for actual client messages, not pong responses
// unless keepAlive is set.
func (s *ClientSession) UpdateActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastActivity.Store(time.Now().Unix())
	if s.activityTimer != nil {
		s.activityTimer.Reset(s.cfg.ActivityTimeoutDuration())
	}
}

func (s *ClientSession) LastActivityTime() time.Time {
	return time.Unix(s.lastActivity.Load(), 0)
}

func (s *ClientSession) ConnectedAt() time.Time { return s.connectedAt }

func (s *ClientSession) StartTimers() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return
	}
	s.activityTimer = time.AfterFunc(s.cfg.ActivityTimeoutDuration(), s.onActivityTimeout)
	s.pingTicker = time.NewTicker(s.cfg.PingIntervalDuration())
	go s.pingLoop(s.pingTicker)
}

func (s *ClientSession) pingLoop(ticker *time.Ticker) {
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.sendPing(); err != nil {
				s.logger.Debug("Failed to send ping", "error", err)
				s.Close(websocket.CloseInternalServerErr, "Ping failure")
				return
			}
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *ClientSession) onActivityTimeout() {
	s.logger.Info("Connection timed out", "last_activity", s.LastActivityTime())
	s.Close(websocket.ClosePolicyViolation, "Inactivity timeout")
}

func (s *ClientSession) sendPing() error {
	return s.conn.WriteControl(
		websocket.PingMessage,
		nil,
		time.Now().Add(s.cfg.WriteTimeoutDuration()),
	)
}

// ExtendReadDeadline gives the peer one ping interval plus the pong timeout
// to answer the next ping. Without a pong timeout reads never expire. Call it
// from the reading goroutine only.
func (s *ClientSession) ExtendReadDeadline() {
	if s.cfg.PongTimeout <= 0 {
		return
	}
	deadline := time.Now().Add(s.cfg.PingIntervalDuration() + s.cfg.PongTimeoutDuration())
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		s.logger.Debug("Failed to set read deadline", "error", err)
	}
}

// PongHandler refreshes liveness on transport pongs. With keepAlive a pong
// counts as activity; otherwise it only updates the timestamp.
func (s *ClientSession) PongHandler() func(string) error {
	return func(string) error {
		s.ExtendReadDeadline()
		if s.cfg.KeepAlive {
			s.UpdateActivity()
		} else {
			s.lastActivity.Store(time.Now().Unix())
		}
		return nil
	}
}

// Close stops the timers and the writer, sends a close frame and closes the
// connection. Only the first call has any effect.
func (s *ClientSession) Close(code int, text string) {
	s.closeOnce.Do(func() {
		s.sendMu.Lock()
		s.closed = true
		s.sendMu.Unlock()

		s.mu.Lock()
		if s.pingTicker != nil {
			s.pingTicker.Stop()
		}
		if s.activityTimer != nil {
			s.activityTimer.Stop()
		}
		s.mu.Unlock()

		s.cancel()

		err := s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(code, text),
			time.Now().Add(s.cfg.WriteTimeoutDuration()),
		)
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			s.logger.Debug("Error sending close message", "error", err)
		}
		_ = s.conn.Close()
	})
}
