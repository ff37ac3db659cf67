// Package client is the browser-side half of the delivery layer written for
// Go programs: it keeps one connection alive with heartbeats, reconnects with
// jittered backoff, restores room subscriptions and renders each pushed
// message at most once.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/LEONFROMWORK/chat/config"
	"github.com/LEONFROMWORK/chat/protocol"
)

var (
	ErrClosed       = errors.New("client is closed")
	ErrGivenUp      = errors.New("reconnect attempts exhausted")
	ErrNotConnected = errors.New("client is not connected")
	ErrUnauthorized = errors.New("unauthorized")
)

type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusDisconnected Status = "disconnected"
)

// StatusListener is told about status changes and fresh round-trip times.
type StatusListener func(status Status, rtt time.Duration)

type Options struct {
	UserID   string
	Dialer   Dialer
	View     View
	Config   config.ClientConfig
	Clock    clock.Clock
	Logger   *slog.Logger
	OnStatus StatusListener
}

// Client owns one logical chat session across any number of transports.
type Client struct {
	dialer      Dialer
	cfg         config.ClientConfig
	clock       clock.Clock
	logger      *slog.Logger
	onStatus    StatusListener
	receiver    *Receiver
	reconnector *Reconnector

	mu        sync.Mutex
	conn      Conn
	heartbeat *Heartbeat
	epoch     uint64
	rooms     map[string]struct{}
	status    Status
	lastRTT   time.Duration
	connected bool // at least one transport was established
	closed    bool
}

func New(opts Options) (*Client, error) {
	if opts.Dialer == nil {
		return nil, errors.New("client: dialer is required")
	}
	if opts.View == nil {
		return nil, errors.New("client: view is required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	c := &Client{
		dialer:   opts.Dialer,
		cfg:      opts.Config,
		clock:    opts.Clock,
		logger:   opts.Logger.With("component", "client", "user_id", opts.UserID),
		onStatus: opts.OnStatus,
		rooms:    make(map[string]struct{}),
		status:   StatusDisconnected,
	}

	receiver, err := NewReceiver(opts.UserID, opts.Config.DedupSize, opts.View, c.handlePong, opts.Logger)
	if err != nil {
		return nil, err
	}
	c.receiver = receiver

	policy := NewJitterBackOff(opts.Config.BackoffBaseDuration(), opts.Config.BackoffMaxDuration())
	c.reconnector = NewReconnector(c.clock, policy, opts.Config.MaxAttempts, c.dial, c.handleReconnected, c.handleGiveUp, opts.Logger)
	return c, nil
}

// Connect opens the first transport, or a new one after the client gave up.
// Held rooms are subscribed again on success. While a reconnect cycle is
// running Connect only asks it to attempt now.
func (c *Client) Connect(ctx context.Context) error {
	if c.reconnector.State() == StateReconnecting {
		return c.reconnector.ReconnectNow()
	}
	c.setStatus(StatusConnecting)
	if err := c.dial(ctx); err != nil {
		c.setStatus(StatusDisconnected)
		return err
	}
	c.reconnector.MarkConnected()
	c.handleReconnected()
	return nil
}

// Subscribe joins a room. The room is remembered and joined again after
// every reconnect.
func (c *Client) Subscribe(roomID string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.rooms[roomID] = struct{}{}
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := conn.Write(protocol.Subscribe(roomID)); err != nil {
		return fmt.Errorf("subscribe %s: %w", roomID, err)
	}
	return nil
}

func (c *Client) Unsubscribe(roomID string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	delete(c.rooms, roomID)
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := conn.Write(protocol.Unsubscribe(roomID)); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", roomID, err)
	}
	return nil
}

// Rooms lists the rooms the client holds, sorted.
func (c *Client) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

// Seed marks message ids already on screen so their push is not rendered.
func (c *Client) Seed(ids ...int64) {
	c.receiver.Seed(ids...)
}

// CheckLiveness is the out-of-band check run when the view becomes visible
// again: a closed transport is reconnected at once, an open one is probed
// immediately.
func (c *Client) CheckLiveness() error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case !c.connected:
		c.mu.Unlock()
		return ErrNotConnected
	}
	hb := c.heartbeat
	c.mu.Unlock()

	if c.reconnector.State() == StateGivenUp {
		return ErrGivenUp
	}
	if hb == nil {
		c.logger.Info("Transport closed, reconnecting now")
		return c.reconnector.ReconnectNow()
	}
	hb.Probe()
	return nil
}

// Status returns the current connection status and the last measured RTT.
func (c *Client) Status() (Status, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status, c.lastRTT
}

// ReconnectState exposes the reconnection controller's state.
func (c *Client) ReconnectState() ReconnectState {
	return c.reconnector.State()
}

// Close tears down the transport and cancels every pending timer.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.epoch++
	c.teardownLocked()
	c.mu.Unlock()

	c.reconnector.Stop()
	c.setStatus(StatusDisconnected)
	return nil
}

// dial opens a transport and swaps it in, stopping the previous one. The new
// transport is not read from until handleReconnected runs, so a loss can
// only be reported once the reconnector counts it as connected.
func (c *Client) dial(ctx context.Context) error {
	conn, err := c.dialer.Dial(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	c.teardownLocked()
	c.epoch++
	epoch := c.epoch
	c.conn = conn
	c.connected = true
	c.heartbeat = NewHeartbeat(
		c.clock,
		c.cfg.HeartbeatIntervalDuration(),
		c.cfg.PongTimeoutDuration(),
		func() error { return conn.Write(protocol.Ping()) },
		func() { c.connectionLost(epoch, errors.New("heartbeat timeout")) },
		c.recordRTT,
		c.logger,
	)
	c.mu.Unlock()
	return nil
}

func (c *Client) readLoop(conn Conn, epoch uint64) {
	for {
		data, err := conn.Read()
		if err != nil {
			c.connectionLost(epoch, err)
			return
		}
		p, err := protocol.Decode(data)
		if err != nil {
			c.logger.Warn("Ignoring malformed payload", "error", err)
			continue
		}
		c.receiver.Handle(p)
	}
}

// connectionLost handles a transport close or a stale heartbeat. Reports
// from a transport that has already been replaced are ignored.
func (c *Client) connectionLost(epoch uint64, cause error) {
	c.mu.Lock()
	if c.closed || epoch != c.epoch {
		c.mu.Unlock()
		return
	}
	c.epoch++
	c.teardownLocked()
	c.mu.Unlock()

	c.logger.Warn("Connection lost", "error", cause)
	c.setStatus(StatusReconnecting)
	c.reconnector.ConnectionLost()
}

func (c *Client) teardownLocked() {
	if c.heartbeat != nil {
		c.heartbeat.Stop()
		c.heartbeat = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// handleReconnected starts reading and probing the transport dial swapped
// in, then restores every held subscription; the server keeps none across
// transports.
func (c *Client) handleReconnected() {
	c.mu.Lock()
	if c.closed || c.conn == nil {
		c.mu.Unlock()
		return
	}
	conn, hb, epoch := c.conn, c.heartbeat, c.epoch
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	c.mu.Unlock()

	c.setStatus(StatusConnected)
	hb.Start()
	go c.readLoop(conn, epoch)

	sort.Strings(rooms)
	for _, room := range rooms {
		if err := conn.Write(protocol.Subscribe(room)); err != nil {
			c.logger.Warn("Failed to resubscribe", "room_id", room, "error", err)
			return
		}
	}
}

func (c *Client) handleGiveUp() {
	c.setStatus(StatusDisconnected)
}

func (c *Client) handlePong(protocol.Payload) {
	c.mu.Lock()
	hb := c.heartbeat
	c.mu.Unlock()
	if hb != nil {
		hb.Pong()
	}
}

func (c *Client) recordRTT(rtt time.Duration) {
	c.mu.Lock()
	c.lastRTT = rtt
	status := c.status
	c.mu.Unlock()

	c.logger.Debug("Pong received", "latency", rtt)
	if c.onStatus != nil {
		c.onStatus(status, rtt)
	}
}

func (c *Client) setStatus(s Status) {
	c.mu.Lock()
	if c.status == s {
		c.mu.Unlock()
		return
	}
	c.status = s
	rtt := c.lastRTT
	c.mu.Unlock()

	if c.onStatus != nil {
		c.onStatus(s, rtt)
	}
}
