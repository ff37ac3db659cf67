package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LEONFROMWORK/chat/logger"
	"github.com/LEONFROMWORK/chat/protocol"
)

type headerAuth struct{}

func (headerAuth) Authenticate(r *http.Request) (string, error) {
	if user := r.Header.Get("X-User-ID"); user != "" {
		return user, nil
	}
	return "", errors.New("no user")
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	svc, _, _ := newTestService(t)
	r := chi.NewRouter()
	NewHandlers(svc, headerAuth{}, logger.Discard()).Routes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlers_PostMessage(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/rooms/general/messages", "alice", `{"content":"hello"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var msg protocol.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	assert.Equal(t, "alice", msg.SenderID)
	assert.Contains(t, msg.Content, "hello")

	rec = do(t, h, http.MethodGet, "/rooms/general/messages", "bob", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history struct {
		Messages []protocol.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history.Messages, 1)
	assert.Equal(t, msg.ID, history.Messages[0].ID)
}

func TestHandlers_Errors(t *testing.T) {
	h := newTestRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		user   string
		body   string
		status int
	}{
		{"unauthenticated", http.MethodGet, "/rooms", "", "", http.StatusUnauthorized},
		{"unknown room", http.MethodPost, "/rooms/nope/messages", "alice", `{"content":"hi"}`, http.StatusNotFound},
		{"blank content", http.MethodPost, "/rooms/general/messages", "alice", `{"content":" "}`, http.StatusUnprocessableEntity},
		{"bad body", http.MethodPost, "/rooms/general/messages", "alice", `{`, http.StatusBadRequest},
		{"existing room", http.MethodPost, "/rooms", "alice", `{"name":"General"}`, http.StatusConflict},
		{"unnamed room", http.MethodPost, "/rooms", "alice", `{"name":"  "}`, http.StatusUnprocessableEntity},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, tc.method, tc.path, tc.user, tc.body)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestHandlers_Rooms(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/rooms", "alice", `{"name":"Off Topic"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodGet, "/rooms", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Rooms []struct {
			ID string `json:"id"`
		} `json:"rooms"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Rooms, 2)
	assert.Equal(t, "general", body.Rooms[0].ID)
	assert.Equal(t, "off-topic", body.Rooms[1].ID)
}
