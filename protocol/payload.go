// Package protocol defines the frames exchanged over a chat connection.
//
// Every server push is a Payload with a mandatory Type discriminant. Clients
// talk back with Request frames naming an Action.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PayloadType discriminates server pushes.
type PayloadType string

const (
	TypeWelcome PayloadType = "welcome"
	TypePong    PayloadType = "pong"
	TypeMessage PayloadType = "message"
	TypeError   PayloadType = "error"
)

// Error codes carried by TypeError payloads.
const (
	CodeRoomNotFound   = "room_not_found"
	CodeInvalidRequest = "invalid_request"
	CodeUnknownAction  = "unknown_action"
	CodeUnavailable    = "unavailable"
)

var (
	ErrMissingType = errors.New("payload has no type")
	ErrUnknownType = errors.New("payload has unknown type")
)

// Message is a created chat message ready for delivery. Content is the
// rendered, opaque form produced by the persistence side.
type Message struct {
	ID        int64     `json:"id"`
	RoomID    string    `json:"room_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Payload is a server push. Which fields are set depends on Type.
type Payload struct {
	Type      PayloadType `json:"type"`
	RoomID    string      `json:"room_id,omitempty"`
	MessageID int64       `json:"message_id,omitempty"`
	SenderID  string      `json:"sender_id,omitempty"`
	UserID    string      `json:"user_id,omitempty"`
	Content   string      `json:"content,omitempty"`
	Timestamp int64       `json:"timestamp,omitempty"`
	Code      string      `json:"code,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// NewWelcome is sent once a subscribe request succeeds.
func NewWelcome(roomID, userID string) Payload {
	return Payload{
		Type:    TypeWelcome,
		RoomID:  roomID,
		UserID:  userID,
		Content: "Successfully connected to chat room",
	}
}

// NewPong answers a ping with the server's Unix timestamp.
func NewPong(now time.Time) Payload {
	return Payload{Type: TypePong, Timestamp: now.Unix()}
}

// NewChatMessage builds the push for a created message.
func NewChatMessage(msg Message) Payload {
	return Payload{
		Type:      TypeMessage,
		RoomID:    msg.RoomID,
		MessageID: msg.ID,
		SenderID:  msg.SenderID,
		Content:   msg.Content,
		Timestamp: msg.CreatedAt.Unix(),
	}
}

// NewError reports a failed request back to the client.
func NewError(code, text string) Payload {
	return Payload{Type: TypeError, Code: code, Error: text}
}

// Decode parses a server push and rejects frames without a known Type.
func Decode(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("decode payload: %w", err)
	}
	switch p.Type {
	case "":
		return Payload{}, ErrMissingType
	case TypeWelcome, TypePong, TypeMessage, TypeError:
		return p, nil
	default:
		return Payload{}, fmt.Errorf("%w: %q", ErrUnknownType, p.Type)
	}
}
