// Package broker relays "message created" events between chat server
// instances. Every instance consumes the topic and fans the message out to
// its own local subscribers.
package broker

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/LEONFROMWORK/chat/protocol"
)

var ErrClosed = errors.New("broker is closed")

// Message is the envelope published for each created chat message.
type Message struct {
	ServerID string           `json:"server_id"` // instance that accepted the post
	Message  protocol.Message `json:"message"`
}

// MarshalBinary implements the encoding.BinaryMarshaler interface for Redis.
func (m Message) MarshalBinary() ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalBinary implements the encoding.BinaryUnmarshaler interface for Redis.
func (m *Message) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, m)
}

// MessageBroker is implemented by the memory, Redis and Kafka brokers.
type MessageBroker interface {
	Publish(ctx context.Context, channel string, message Message) error
	// Subscribe returns a channel that is closed when ctx ends or the
	// broker closes.
	Subscribe(ctx context.Context, channel string) (<-chan Message, error)
	Close() error
	Type() string
}
