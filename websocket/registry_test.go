package websocket

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubscriber struct {
	id   string
	err  error
	done chan struct{}

	mu   sync.Mutex
	sent [][]byte
}

func newFakeSubscriber(id string) *fakeSubscriber {
	return &fakeSubscriber{id: id, done: make(chan struct{})}
}

func (f *fakeSubscriber) SessionID() string { return f.id }

func (f *fakeSubscriber) Done() <-chan struct{} { return f.done }

func (f *fakeSubscriber) close() { close(f.done) }

func (f *fakeSubscriber) Send(data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeSubscriber) Sent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.sent...)
}

func sessionIDs(subs []Subscriber) []string {
	ids := make([]string, 0, len(subs))
	for _, s := range subs {
		ids = append(ids, s.SessionID())
	}
	return ids
}

func TestTopicRegistry_SubscribeIsIdempotent(t *testing.T) {
	r := NewTopicRegistry()
	s1 := newFakeSubscriber("s1")

	assert.True(t, r.Subscribe("general", s1))
	assert.False(t, r.Subscribe("general", s1))
	assert.Len(t, r.SubscribersOf("general"), 1)
}

func TestTopicRegistry_ClosedSubscriberIsRefused(t *testing.T) {
	r := NewTopicRegistry()
	s1 := newFakeSubscriber("s1")
	require.True(t, r.Subscribe("general", s1))

	// Teardown order: close, then drop every subscription. A subscribe that
	// lands afterwards must not bring the session back.
	s1.close()
	r.Unsubscribe(s1)
	assert.False(t, r.Subscribe("random", s1))
	assert.Empty(t, r.SubscribersOf("random"))
	assert.Empty(t, r.RoomsOf("s1"))
}

func TestTopicRegistry_MultipleRooms(t *testing.T) {
	r := NewTopicRegistry()
	s1 := newFakeSubscriber("s1")
	s2 := newFakeSubscriber("s2")

	r.Subscribe("general", s1)
	r.Subscribe("random", s1)
	r.Subscribe("general", s2)

	assert.ElementsMatch(t, []string{"s1", "s2"}, sessionIDs(r.SubscribersOf("general")))
	assert.Equal(t, []string{"s1"}, sessionIDs(r.SubscribersOf("random")))
	assert.Equal(t, []string{"general", "random"}, r.RoomsOf("s1"))
	assert.Nil(t, r.SubscribersOf("empty"))
}

func TestTopicRegistry_Leave(t *testing.T) {
	r := NewTopicRegistry()
	s1 := newFakeSubscriber("s1")
	r.Subscribe("general", s1)
	r.Subscribe("random", s1)

	assert.True(t, r.Leave("general", s1))
	assert.False(t, r.Leave("general", s1))
	assert.Empty(t, r.SubscribersOf("general"))
	assert.Equal(t, []string{"random"}, r.RoomsOf("s1"))
}

func TestTopicRegistry_UnsubscribeIsRepeatable(t *testing.T) {
	r := NewTopicRegistry()
	s1 := newFakeSubscriber("s1")
	s2 := newFakeSubscriber("s2")
	r.Subscribe("general", s1)
	r.Subscribe("random", s1)
	r.Subscribe("general", s2)

	assert.Equal(t, []string{"general", "random"}, r.Unsubscribe(s1))
	assert.Empty(t, r.Unsubscribe(s1))

	assert.Equal(t, []string{"s2"}, sessionIDs(r.SubscribersOf("general")))
	assert.Empty(t, r.SubscribersOf("random"))
	assert.Empty(t, r.RoomsOf("s1"))
}

func TestTopicRegistry_SnapshotIsDetached(t *testing.T) {
	r := NewTopicRegistry()
	s1 := newFakeSubscriber("s1")
	s2 := newFakeSubscriber("s2")
	r.Subscribe("general", s1)
	r.Subscribe("general", s2)

	snapshot := r.SubscribersOf("general")
	r.Unsubscribe(s1)

	assert.Len(t, snapshot, 2)
	assert.Equal(t, []string{"s2"}, sessionIDs(r.SubscribersOf("general")))
}

func TestTopicRegistry_ConcurrentChurn(t *testing.T) {
	r := NewTopicRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		sub := newFakeSubscriber(fmt.Sprintf("s%d", i))
		go func() {
			defer wg.Done()
			r.Subscribe("general", sub)
			r.Subscribe("random", sub)
			r.Unsubscribe(sub)
		}()
		go func() {
			defer wg.Done()
			for _, s := range r.SubscribersOf("general") {
				_ = s.Send([]byte("x"))
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, r.SubscribersOf("general"))
	assert.Empty(t, r.SubscribersOf("random"))
}

func TestDropReason(t *testing.T) {
	require.Equal(t, "closed", dropReason(ErrSessionClosed))
	require.Equal(t, "buffer_full", dropReason(fmt.Errorf("queue: %w", ErrSendBufferFull)))
	require.Equal(t, "error", dropReason(errors.New("boom")))
}
