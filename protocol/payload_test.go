package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	testCases := []struct {
		name     string
		raw      string
		wantType PayloadType
		wantErr  error
	}{
		{name: "chat message", raw: `{"type":"message","message_id":42,"sender_id":"u1","content":"hi"}`, wantType: TypeMessage},
		{name: "welcome", raw: `{"type":"welcome","room_id":"general"}`, wantType: TypeWelcome},
		{name: "pong", raw: `{"type":"pong","timestamp":1700000000}`, wantType: TypePong},
		{name: "error", raw: `{"type":"error","code":"room_not_found"}`, wantType: TypeError},
		{name: "legacy shape without type is rejected", raw: `{"message_id":42,"content":"hi"}`, wantErr: ErrMissingType},
		{name: "unknown type", raw: `{"type":"typing"}`, wantErr: ErrUnknownType},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := Decode([]byte(tc.raw))
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantType, p.Type)
		})
	}
}

func TestDecode_InvalidJSON(t *testing.T) {
	_, err := Decode([]byte("{"))
	assert.Error(t, err)
}

func TestNewChatMessage(t *testing.T) {
	created := time.Unix(1700000000, 0)
	p := NewChatMessage(Message{ID: 42, RoomID: "general", SenderID: "u1", Content: "<p>hi</p>", CreatedAt: created})

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, "message", fields["type"])
	assert.EqualValues(t, 42, fields["message_id"])
	assert.Equal(t, "u1", fields["sender_id"])
	assert.Equal(t, "<p>hi</p>", fields["content"])
	assert.EqualValues(t, 1700000000, fields["timestamp"])
}

func TestDecodeRequest(t *testing.T) {
	req, err := DecodeRequest([]byte(`{"action":"subscribe","room_id":" general "}`))
	require.NoError(t, err)
	assert.Equal(t, Subscribe("general"), req)

	_, err = DecodeRequest([]byte(`{"action":"subscribe"}`))
	assert.ErrorIs(t, err, ErrMissingRoom)

	req, err = DecodeRequest([]byte(`{"action":"ping"}`))
	require.NoError(t, err)
	assert.Equal(t, ActionPing, req.Action)
}
