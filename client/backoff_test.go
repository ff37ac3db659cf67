package client

import (
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func halfway(n int64) int64 { return n / 2 }

func TestJitterBackOff_DoublesUpToMax(t *testing.T) {
	b := &JitterBackOff{Base: time.Second, Max: 5 * time.Second, int64n: halfway}
	b.Reset()

	want := []time.Duration{
		505 * time.Millisecond,
		1010 * time.Millisecond,
		2020 * time.Millisecond,
		4040 * time.Millisecond,
		5 * time.Second,
		5 * time.Second,
	}
	for i, w := range want {
		assert.Equal(t, w, b.NextBackOff(), "interval %d", i+1)
	}

	b.Reset()
	assert.Equal(t, 505*time.Millisecond, b.NextBackOff())
}

func TestJitterBackOff_RandomBaseIsBoundedAndMonotonic(t *testing.T) {
	for run := 0; run < 50; run++ {
		b := NewJitterBackOff(time.Second, 30*time.Second)

		first := b.NextBackOff()
		require.GreaterOrEqual(t, first, minReconnectDelay)
		require.Less(t, first, time.Second)

		prev := first
		for i := 0; i < 20; i++ {
			d := b.NextBackOff()
			require.GreaterOrEqual(t, d, prev)
			require.LessOrEqual(t, d, 30*time.Second)
			prev = d
		}
	}
}

func TestJitterBackOff_TinyBase(t *testing.T) {
	b := NewJitterBackOff(time.Millisecond, time.Second)
	assert.Equal(t, minReconnectDelay, b.NextBackOff())
}

func TestJitterBackOff_WithMaxRetriesStops(t *testing.T) {
	policy := backoff.WithMaxRetries(&JitterBackOff{Base: time.Second, Max: time.Minute, int64n: halfway}, 3)
	policy.Reset()

	for i := 0; i < 3; i++ {
		assert.NotEqual(t, backoff.Stop, policy.NextBackOff())
	}
	assert.Equal(t, backoff.Stop, policy.NextBackOff())
}
