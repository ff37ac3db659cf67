package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"

	"github.com/LEONFROMWORK/chat/metrics"
)

type ReconnectState int

const (
	StateConnected ReconnectState = iota
	StateReconnecting
	StateGivenUp
)

func (s ReconnectState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateGivenUp:
		return "given_up"
	default:
		return "unknown"
	}
}

// Reconnector schedules reconnect attempts after a connection loss. Each
// failed attempt takes the next interval from the policy; when the policy
// returns backoff.Stop the controller gives up and schedules nothing more.
type Reconnector struct {
	clock       clock.Clock
	policy      backoff.BackOff
	connect     func(ctx context.Context) error
	onConnected func()
	onGiveUp    func()
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    ReconnectState
	attempt  int
	interval time.Duration
	timer    *clock.Timer
	epoch    uint64
	inFlight bool
	stopped  bool
}

// NewReconnector wraps policy with maxAttempts. connect performs one attempt;
// onConnected runs after a successful one and onGiveUp once attempts are
// exhausted.
func NewReconnector(clk clock.Clock, policy backoff.BackOff, maxAttempts int, connect func(ctx context.Context) error, onConnected, onGiveUp func(), logger *slog.Logger) *Reconnector {
	ctx, cancel := context.WithCancel(context.Background())
	return &Reconnector{
		clock:       clk,
		policy:      backoff.WithMaxRetries(policy, uint64(maxAttempts)),
		connect:     connect,
		onConnected: onConnected,
		onGiveUp:    onGiveUp,
		logger:      logger.With("component", "reconnect"),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// ConnectionLost starts a reconnect cycle. It is ignored unless the
// controller is connected, so repeated loss reports for one outage are safe.
func (r *Reconnector) ConnectionLost() {
	r.mu.Lock()
	if r.stopped || r.state != StateConnected {
		r.mu.Unlock()
		return
	}
	r.state = StateReconnecting
	r.attempt = 0
	r.policy.Reset()
	giveUp := r.scheduleLocked()
	r.mu.Unlock()

	if giveUp {
		r.onGiveUp()
	}
}

// ReconnectNow makes an immediate out-of-band attempt, cancelling any
// scheduled one. An attempt already in flight is left to finish. It returns
// ErrGivenUp once attempts are exhausted.
func (r *Reconnector) ReconnectNow() error {
	r.mu.Lock()
	switch {
	case r.stopped:
		r.mu.Unlock()
		return ErrClosed
	case r.state == StateGivenUp:
		r.mu.Unlock()
		return ErrGivenUp
	case r.inFlight:
		r.mu.Unlock()
		return nil
	}
	if r.state == StateConnected {
		r.state = StateReconnecting
		r.attempt = 0
		r.policy.Reset()
	}
	r.stopTimerLocked()
	r.epoch++
	epoch := r.epoch
	r.mu.Unlock()

	go r.try(epoch)
	return nil
}

// scheduleLocked arms the next attempt and reports whether the policy is
// exhausted.
func (r *Reconnector) scheduleLocked() bool {
	d := r.policy.NextBackOff()
	if d == backoff.Stop {
		r.state = StateGivenUp
		r.stopTimerLocked()
		r.logger.Error("Giving up reconnecting", "attempts", r.attempt)
		return true
	}

	r.attempt++
	r.interval = d
	r.epoch++
	epoch := r.epoch
	r.timer = r.clock.AfterFunc(d, func() { r.try(epoch) })
	r.logger.Info("Reconnect scheduled", "attempt", r.attempt, "interval", d)
	return false
}

func (r *Reconnector) try(epoch uint64) {
	r.mu.Lock()
	if r.stopped || r.epoch != epoch || r.state != StateReconnecting {
		r.mu.Unlock()
		return
	}
	r.timer = nil
	r.inFlight = true
	attempt := r.attempt
	r.mu.Unlock()

	err := r.connect(r.ctx)

	r.mu.Lock()
	r.inFlight = false
	if r.stopped || r.epoch != epoch || r.state != StateReconnecting {
		r.mu.Unlock()
		return
	}
	if err == nil {
		metrics.ReconnectAttempts.WithLabelValues("success").Inc()
		r.state = StateConnected
		r.attempt = 0
		r.interval = 0
		r.policy.Reset()
		r.mu.Unlock()

		r.logger.Info("Reconnected", "attempt", attempt)
		r.onConnected()
		return
	}

	metrics.ReconnectAttempts.WithLabelValues("failure").Inc()
	r.logger.Warn("Reconnect attempt failed", "attempt", attempt, "error", err)
	giveUp := r.scheduleLocked()
	r.mu.Unlock()

	if giveUp {
		r.onGiveUp()
	}
}

// MarkConnected records a connection made outside the controller, such as
// the initial connect or a manual one after giving up.
func (r *Reconnector) MarkConnected() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopTimerLocked()
	r.epoch++
	r.state = StateConnected
	r.attempt = 0
	r.interval = 0
	r.policy.Reset()
}

// Stop cancels any scheduled or in-flight attempt.
func (r *Reconnector) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	r.epoch++
	r.stopTimerLocked()
	r.cancel()
}

func (r *Reconnector) stopTimerLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Reconnector) State() ReconnectState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Attempt returns the number of the scheduled attempt and its interval.
func (r *Reconnector) Attempt() (int, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempt, r.interval
}
