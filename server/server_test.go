package server

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LEONFROMWORK/chat/broker"
	"github.com/LEONFROMWORK/chat/config"
	"github.com/LEONFROMWORK/chat/logger"
	"github.com/LEONFROMWORK/chat/session"
	"github.com/LEONFROMWORK/chat/store"
	"github.com/LEONFROMWORK/chat/websocket"
)

func TestServer_ShutdownClosesSessions(t *testing.T) {
	log := logger.Discard()
	registry := websocket.NewTopicRegistry()
	manager := websocket.NewClientManager(registry, session.NewMemoryStore(), "server-1", 10, log)
	handler := websocket.NewHandler(manager, store.NewMemoryStore(), websocket.QueryAuthenticator{}, &config.WebSocketConfig{
		HandshakeTimeout: 5,
		PingInterval:     25,
		ActivityTimeout:  60,
		WriteTimeout:     5,
		SendBuffer:       8,
	}, log)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := NewServer(ln.Addr().String(), http.HandlerFunc(handler.HandleWebSocket), config.ServerConfig{ReadTimeout: 5, WriteTimeout: 5}, log)

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	conn, _, err := gorilla.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/?user=bob", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return manager.Count() == 1 }, time.Second, 10*time.Millisecond)

	b := broker.NewMemoryBroker()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx, manager, b))

	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}

	assert.Zero(t, manager.Count())
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, gorilla.IsCloseError(err, gorilla.CloseGoingAway), "got %v", err)

	assert.ErrorIs(t, b.Publish(ctx, "chat", broker.Message{}), broker.ErrClosed)
}
