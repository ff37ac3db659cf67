package client

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LEONFROMWORK/chat/logger"
)

type reconnectRecorder struct {
	calls     atomic.Int32
	succeedAt int32 // 0 never succeeds
	connected atomic.Int32
	gaveUp    atomic.Int32
}

func (p *reconnectRecorder) connect(context.Context) error {
	n := p.calls.Add(1)
	if p.succeedAt > 0 && n >= p.succeedAt {
		return nil
	}
	return errors.New("connection refused")
}

func newTestReconnector(mock *clock.Mock, p *reconnectRecorder, base, max time.Duration, maxAttempts int) *Reconnector {
	policy := &JitterBackOff{Base: base, Max: max, int64n: halfway}
	return NewReconnector(mock, policy, maxAttempts, p.connect,
		func() { p.connected.Add(1) },
		func() { p.gaveUp.Add(1) },
		logger.Discard(),
	)
}

func waitAttempt(t *testing.T, r *Reconnector, n int) time.Duration {
	t.Helper()
	require.Eventually(t, func() bool {
		attempt, _ := r.Attempt()
		return attempt == n
	}, waitFor, tick)
	_, interval := r.Attempt()
	return interval
}

func TestReconnector_BacksOffThenResubscribes(t *testing.T) {
	mock := clock.NewMock()
	p := &reconnectRecorder{succeedAt: 3}
	r := newTestReconnector(mock, p, time.Second, 30*time.Second, 10)
	defer r.Stop()

	r.ConnectionLost()
	assert.Equal(t, StateReconnecting, r.State())

	first := waitAttempt(t, r, 1)
	assert.Equal(t, 505*time.Millisecond, first)
	assert.Zero(t, p.calls.Load(), "no attempt before the interval elapses")

	mock.Add(first)
	second := waitAttempt(t, r, 2)
	assert.Equal(t, 2*first, second)

	mock.Add(second)
	third := waitAttempt(t, r, 3)
	assert.Equal(t, 2*second, third)

	mock.Add(third)
	require.Eventually(t, func() bool { return p.connected.Load() == 1 }, waitFor, tick)
	assert.Equal(t, StateConnected, r.State())
	attempt, interval := r.Attempt()
	assert.Zero(t, attempt)
	assert.Zero(t, interval)

	// The next loss starts again from the jittered base.
	r.ConnectionLost()
	assert.Equal(t, first, waitAttempt(t, r, 1))
}

func TestReconnector_GivesUp(t *testing.T) {
	mock := clock.NewMock()
	p := &reconnectRecorder{}
	r := newTestReconnector(mock, p, 100*time.Millisecond, 250*time.Millisecond, 3)
	defer r.Stop()

	r.ConnectionLost()
	var prev time.Duration
	for n := 1; n <= 3; n++ {
		interval := waitAttempt(t, r, n)
		assert.GreaterOrEqual(t, interval, prev)
		assert.LessOrEqual(t, interval, 250*time.Millisecond)
		prev = interval
		mock.Add(interval)
	}

	require.Eventually(t, func() bool { return r.State() == StateGivenUp }, waitFor, tick)
	assert.Equal(t, int32(3), p.calls.Load())
	assert.Equal(t, int32(1), p.gaveUp.Load())

	mock.Add(time.Hour)
	assert.Never(t, func() bool { return p.calls.Load() > 3 }, 50*time.Millisecond, tick)
	assert.ErrorIs(t, r.ReconnectNow(), ErrGivenUp)

	// Loss reports after giving up are ignored until a manual connect.
	r.ConnectionLost()
	assert.Equal(t, StateGivenUp, r.State())
	r.MarkConnected()
	assert.Equal(t, StateConnected, r.State())
}

func TestReconnector_ReconnectNowSkipsTheWait(t *testing.T) {
	mock := clock.NewMock()
	p := &reconnectRecorder{succeedAt: 1}
	r := newTestReconnector(mock, p, time.Second, 30*time.Second, 10)
	defer r.Stop()

	r.ConnectionLost()
	waitAttempt(t, r, 1)

	require.NoError(t, r.ReconnectNow())
	require.Eventually(t, func() bool { return p.connected.Load() == 1 }, waitFor, tick)
	assert.Equal(t, StateConnected, r.State())

	// The cancelled scheduled attempt never runs.
	mock.Add(time.Minute)
	assert.Never(t, func() bool { return p.calls.Load() > 1 }, 50*time.Millisecond, tick)
}

func TestReconnector_StopCancelsSchedule(t *testing.T) {
	mock := clock.NewMock()
	p := &reconnectRecorder{succeedAt: 1}
	r := newTestReconnector(mock, p, time.Second, 30*time.Second, 10)

	r.ConnectionLost()
	interval := waitAttempt(t, r, 1)
	r.Stop()

	mock.Add(interval * 10)
	assert.Never(t, func() bool { return p.calls.Load() > 0 }, 50*time.Millisecond, tick)
	assert.ErrorIs(t, r.ReconnectNow(), ErrClosed)
}

func TestReconnector_RepeatedLossIsIgnored(t *testing.T) {
	mock := clock.NewMock()
	p := &reconnectRecorder{}
	r := newTestReconnector(mock, p, time.Second, 30*time.Second, 10)
	defer r.Stop()

	r.ConnectionLost()
	r.ConnectionLost()
	attempt, _ := r.Attempt()
	assert.Equal(t, 1, attempt)
}

func TestReconnector_ReconnectNowLeavesAttemptInFlight(t *testing.T) {
	mock := clock.NewMock()
	release := make(chan struct{})
	var calls atomic.Int32
	policy := &JitterBackOff{Base: time.Second, Max: 30 * time.Second, int64n: halfway}
	r := NewReconnector(mock, policy, 10,
		func(context.Context) error {
			calls.Add(1)
			<-release
			return nil
		},
		func() {}, func() {}, logger.Discard(),
	)
	defer r.Stop()

	r.ConnectionLost()
	require.NoError(t, r.ReconnectNow())
	require.Eventually(t, func() bool { return calls.Load() == 1 }, waitFor, tick)

	require.NoError(t, r.ReconnectNow())
	close(release)
	require.Eventually(t, func() bool { return r.State() == StateConnected }, waitFor, tick)
	assert.Never(t, func() bool { return calls.Load() > 1 }, 50*time.Millisecond, tick)
}
