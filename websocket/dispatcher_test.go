package websocket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LEONFROMWORK/chat/logger"
	"github.com/LEONFROMWORK/chat/protocol"
)

func TestDispatcher_PublishReachesExactlyTheRoom(t *testing.T) {
	r := NewTopicRegistry()
	d := NewDispatcher(r, logger.Discard())

	s1 := newFakeSubscriber("s1")
	s2 := newFakeSubscriber("s2")
	outsider := newFakeSubscriber("s3")
	r.Subscribe("general", s1)
	r.Subscribe("general", s2)
	r.Subscribe("random", outsider)

	msg := protocol.Message{
		ID:        42,
		RoomID:    "general",
		SenderID:  "alice",
		Content:   "<p>hi</p>",
		CreatedAt: time.Unix(1700000000, 0),
	}
	assert.Equal(t, 2, d.Publish("general", msg))

	for _, sub := range []*fakeSubscriber{s1, s2} {
		sent := sub.Sent()
		require.Len(t, sent, 1)
		p, err := protocol.Decode(sent[0])
		require.NoError(t, err)
		assert.Equal(t, protocol.TypeMessage, p.Type)
		assert.Equal(t, int64(42), p.MessageID)
		assert.Equal(t, "alice", p.SenderID)
		assert.Equal(t, "<p>hi</p>", p.Content)
		assert.Equal(t, int64(1700000000), p.Timestamp)
	}
	assert.Empty(t, outsider.Sent())
}

func TestDispatcher_NoSubscribersIsNoop(t *testing.T) {
	d := NewDispatcher(NewTopicRegistry(), logger.Discard())
	assert.Zero(t, d.Publish("general", protocol.Message{ID: 1, RoomID: "general"}))
}

func TestDispatcher_FailedSendIsIsolated(t *testing.T) {
	r := NewTopicRegistry()
	d := NewDispatcher(r, logger.Discard())

	dead := newFakeSubscriber("dead")
	dead.err = ErrSessionClosed
	full := newFakeSubscriber("full")
	full.err = ErrSendBufferFull
	live := newFakeSubscriber("live")
	r.Subscribe("general", dead)
	r.Subscribe("general", full)
	r.Subscribe("general", live)

	assert.Equal(t, 1, d.Publish("general", protocol.Message{ID: 7, RoomID: "general"}))
	assert.Len(t, live.Sent(), 1)
}

func TestDispatcher_PreservesPublishOrderPerSubscriber(t *testing.T) {
	r := NewTopicRegistry()
	d := NewDispatcher(r, logger.Discard())
	sub := newFakeSubscriber("s1")
	r.Subscribe("general", sub)

	for id := int64(1); id <= 5; id++ {
		d.Publish("general", protocol.Message{ID: id, RoomID: "general"})
	}

	sent := sub.Sent()
	require.Len(t, sent, 5)
	for i, data := range sent {
		p, err := protocol.Decode(data)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), p.MessageID)
	}
}
