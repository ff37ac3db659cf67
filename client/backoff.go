package client

import (
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// minReconnectDelay keeps the jittered base above zero.
const minReconnectDelay = 10 * time.Millisecond

// JitterBackOff implements backoff.BackOff. The first interval after Reset
// is drawn uniformly from [minReconnectDelay, Base); every following
// interval doubles, capped at Max.
type JitterBackOff struct {
	Base time.Duration
	Max  time.Duration

	current time.Duration
	int64n  func(n int64) int64
}

var _ backoff.BackOff = (*JitterBackOff)(nil)

func NewJitterBackOff(base, max time.Duration) *JitterBackOff {
	b := &JitterBackOff{Base: base, Max: max, int64n: rand.Int64N}
	b.Reset()
	return b
}

func (b *JitterBackOff) Reset() {
	b.current = b.jitteredBase()
}

func (b *JitterBackOff) NextBackOff() time.Duration {
	d := b.current
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	next := d * 2
	if b.Max > 0 && next > b.Max {
		next = b.Max
	}
	b.current = next
	return d
}

func (b *JitterBackOff) jitteredBase() time.Duration {
	span := b.Base - minReconnectDelay
	if span <= 0 {
		return max(b.Base, minReconnectDelay)
	}
	return minReconnectDelay + time.Duration(b.int64n(int64(span)))
}
