package chat

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LEONFROMWORK/chat/broker"
	"github.com/LEONFROMWORK/chat/logger"
	"github.com/LEONFROMWORK/chat/store"
)

const testTopic = "chat-messages"

func newTestService(t *testing.T) (*Service, *broker.MemoryBroker, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	_, err := st.CreateRoom(context.Background(), "General")
	require.NoError(t, err)
	b := broker.NewMemoryBroker()
	t.Cleanup(func() { _ = b.Close() })
	return NewService(st, b, testTopic, "server-1", 64, logger.Discard()), b, st
}

func TestService_PostPublishesRenderedMessage(t *testing.T) {
	svc, b, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	published, err := b.Subscribe(ctx, testTopic)
	require.NoError(t, err)

	msg, err := svc.Post(ctx, "general", "alice", "<b>hi</b>")
	require.NoError(t, err)
	assert.NotZero(t, msg.ID)
	assert.Equal(t, "general", msg.RoomID)
	assert.Equal(t, "alice", msg.SenderID)
	assert.Contains(t, msg.Content, "&lt;b&gt;hi&lt;/b&gt;")
	assert.Contains(t, msg.Content, `data-sender-id="alice"`)

	select {
	case got := <-published:
		assert.Equal(t, "server-1", got.ServerID)
		assert.Equal(t, msg.ID, got.Message.ID)
		assert.Equal(t, msg.Content, got.Message.Content)
	case <-time.After(time.Second):
		t.Fatal("message was not published")
	}
}

func TestService_PostValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Post(ctx, "general", "alice", "   ")
	assert.ErrorIs(t, err, store.ErrInvalidMessage)

	_, err = svc.Post(ctx, "general", "alice", strings.Repeat("x", 65))
	assert.ErrorIs(t, err, store.ErrInvalidMessage)
	assert.ErrorIs(t, err, ErrContentTooLong)

	_, err = svc.Post(ctx, "missing", "alice", "hi")
	assert.ErrorIs(t, err, store.ErrRoomNotFound)
}

func TestService_PostSurvivesBrokerFailure(t *testing.T) {
	svc, b, st := newTestService(t)
	require.NoError(t, b.Close())

	msg, err := svc.Post(context.Background(), "general", "alice", "still stored")
	require.NoError(t, err)

	history, err := st.RecentMessages(context.Background(), "general", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, msg.ID, history[0].ID)
}

func TestService_HistoryAndRooms(t *testing.T) {
	st := store.NewMemoryStore()
	b := broker.NewMemoryBroker()
	defer b.Close()
	svc := NewService(st, b, testTopic, "server-1", 0, logger.Discard())
	ctx := context.Background()

	rooms, err := svc.Rooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, store.DefaultRoomName, rooms[0].Name)

	for _, content := range []string{"one", "two", "three"} {
		_, err := svc.Post(ctx, "general", "alice", content)
		require.NoError(t, err)
	}

	history, err := svc.History(ctx, "general")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Contains(t, history[0].Content, "one")
	assert.Contains(t, history[2].Content, "three")
}
