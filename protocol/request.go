package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Action names a client request.
type Action string

const (
	ActionSubscribe   Action = "subscribe"
	ActionUnsubscribe Action = "unsubscribe"
	ActionPing        Action = "ping"
)

var ErrMissingRoom = errors.New("room_id is required")

// Request is a frame sent by the client.
type Request struct {
	Action Action `json:"action"`
	RoomID string `json:"room_id,omitempty"`
}

func Subscribe(roomID string) Request   { return Request{Action: ActionSubscribe, RoomID: roomID} }
func Unsubscribe(roomID string) Request { return Request{Action: ActionUnsubscribe, RoomID: roomID} }
func Ping() Request                     { return Request{Action: ActionPing} }

// DecodeRequest parses a client frame. Room actions must name a room.
func DecodeRequest(data []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Request{}, fmt.Errorf("decode request: %w", err)
	}
	req.RoomID = strings.TrimSpace(req.RoomID)
	switch req.Action {
	case ActionSubscribe, ActionUnsubscribe:
		if req.RoomID == "" {
			return Request{}, ErrMissingRoom
		}
	}
	return req, nil
}
