package client

import (
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/LEONFROMWORK/chat/metrics"
)

type HeartbeatState int

const (
	HeartbeatIdle HeartbeatState = iota
	HeartbeatPingSent
	HeartbeatStale
)

func (s HeartbeatState) String() string {
	switch s {
	case HeartbeatIdle:
		return "idle"
	case HeartbeatPingSent:
		return "ping_sent"
	case HeartbeatStale:
		return "stale"
	default:
		return "unknown"
	}
}

// Heartbeat probes one transport with application pings. A Heartbeat is
// bound to a single connection: once stopped or stale it never fires again,
// and a reconnect gets a new one.
type Heartbeat struct {
	clock    clock.Clock
	interval time.Duration
	timeout  time.Duration
	ping     func() error
	onStale  func()
	onRTT    func(time.Duration)
	logger   *slog.Logger

	mu        sync.Mutex
	state     HeartbeatState
	seq       uint64 // current probe
	sentAt    time.Time
	misses    int
	tick      *clock.Timer
	pongTimer *clock.Timer
	stopped   bool
}

// NewHeartbeat creates an idle monitor. ping transmits the probe, onStale
// is called once if a pong does not arrive within timeout, and onRTT
// receives each measured round trip. Callbacks run without locks held.
func NewHeartbeat(clk clock.Clock, interval, timeout time.Duration, ping func() error, onStale func(), onRTT func(time.Duration), logger *slog.Logger) *Heartbeat {
	return &Heartbeat{
		clock:    clk,
		interval: interval,
		timeout:  timeout,
		ping:     ping,
		onStale:  onStale,
		onRTT:    onRTT,
		logger:   logger.With("component", "heartbeat"),
	}
}

// Start schedules the periodic probe.
func (h *Heartbeat) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped || h.tick != nil {
		return
	}
	h.tick = h.clock.AfterFunc(h.interval, h.onTick)
}

func (h *Heartbeat) onTick() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.tick = h.clock.AfterFunc(h.interval, h.onTick)
	h.mu.Unlock()

	h.Probe()
}

// Probe sends a ping now unless one is already outstanding.
func (h *Heartbeat) Probe() {
	h.mu.Lock()
	if h.stopped || h.state != HeartbeatIdle {
		h.mu.Unlock()
		return
	}
	h.seq++
	seq := h.seq
	h.state = HeartbeatPingSent
	h.sentAt = h.clock.Now()
	h.pongTimer = h.clock.AfterFunc(h.timeout, func() { h.onTimeout(seq) })
	h.mu.Unlock()

	if err := h.ping(); err != nil {
		h.logger.Debug("Ping failed", "error", err)
		h.expire(seq, false)
	}
}

// Pong records the answer to the outstanding ping. It reports false when no
// ping was outstanding.
func (h *Heartbeat) Pong() bool {
	h.mu.Lock()
	if h.stopped || h.state != HeartbeatPingSent {
		h.mu.Unlock()
		return false
	}
	h.pongTimer.Stop()
	h.pongTimer = nil
	rtt := h.clock.Since(h.sentAt)
	h.state = HeartbeatIdle
	h.misses = 0
	h.mu.Unlock()

	metrics.HeartbeatRTT.Observe(rtt.Seconds())
	if h.onRTT != nil {
		h.onRTT(rtt)
	}
	return true
}

func (h *Heartbeat) onTimeout(seq uint64) {
	h.expire(seq, true)
}

// expire marks the connection stale and reports it once, provided probe seq
// is still unanswered. A pong or a newer probe wins over a late timer.
func (h *Heartbeat) expire(seq uint64, timedOut bool) {
	h.mu.Lock()
	if h.stopped || h.state != HeartbeatPingSent || h.seq != seq {
		h.mu.Unlock()
		return
	}
	h.misses++
	h.state = HeartbeatStale
	h.stopLocked()
	misses := h.misses
	h.mu.Unlock()

	if timedOut {
		metrics.HeartbeatTimeouts.Inc()
	}
	h.logger.Warn("Pong timeout, connection is stale", "misses", misses, "timeout", h.timeout)
	h.onStale()
}

// Stop cancels every pending timer. A stopped Heartbeat ignores late pongs
// and timeouts.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopLocked()
}

func (h *Heartbeat) stopLocked() {
	h.stopped = true
	if h.tick != nil {
		h.tick.Stop()
		h.tick = nil
	}
	if h.pongTimer != nil {
		h.pongTimer.Stop()
		h.pongTimer = nil
	}
}

func (h *Heartbeat) State() HeartbeatState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}
