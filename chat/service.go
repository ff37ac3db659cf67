// Package chat is the synchronous message-creation path: it validates and
// stores a post, renders it for its author and hands it to the broker for
// delivery to every other subscriber.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/LEONFROMWORK/chat/broker"
	"github.com/LEONFROMWORK/chat/protocol"
	"github.com/LEONFROMWORK/chat/store"
)

const (
	historyLimit   = 50
	publishTimeout = 5 * time.Second
)

var ErrContentTooLong = errors.New("content is too long")

type Service struct {
	store      store.Store
	broker     broker.MessageBroker
	renderer   *Renderer
	topic      string
	serverID   string
	maxContent int
	logger     *slog.Logger
}

func NewService(st store.Store, b broker.MessageBroker, topic, serverID string, maxContent int, logger *slog.Logger) *Service {
	return &Service{
		store:      st,
		broker:     b,
		renderer:   NewRenderer(),
		topic:      topic,
		serverID:   serverID,
		maxContent: maxContent,
		logger:     logger.With("component", "chat"),
	}
}

// Post creates a message and returns it rendered. The returned message is
// the author's synchronous echo; the broadcast reaches everyone through the
// broker. A broker failure is logged and does not fail the post, since the
// message is already stored.
func (s *Service) Post(ctx context.Context, roomID, userID, content string) (protocol.Message, error) {
	if s.maxContent > 0 && len(content) > s.maxContent {
		return protocol.Message{}, fmt.Errorf("%w: %w (%d > %d bytes)", store.ErrInvalidMessage, ErrContentTooLong, len(content), s.maxContent)
	}

	stored, err := s.store.CreateMessage(ctx, roomID, userID, content)
	if err != nil {
		return protocol.Message{}, err
	}

	msg, err := s.toProtocol(stored)
	if err != nil {
		return protocol.Message{}, err
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.broker.Publish(pubCtx, s.topic, broker.Message{ServerID: s.serverID, Message: msg}); err != nil {
		s.logger.Error("Failed to publish message", "room_id", roomID, "message_id", msg.ID, "error", err)
	}
	return msg, nil
}

// History returns the recent messages of a room rendered, oldest first.
func (s *Service) History(ctx context.Context, roomID string) ([]protocol.Message, error) {
	stored, err := s.store.RecentMessages(ctx, roomID, historyLimit)
	if err != nil {
		return nil, err
	}
	msgs := make([]protocol.Message, 0, len(stored))
	for _, m := range stored {
		msg, err := s.toProtocol(m)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// Rooms lists the rooms, creating the default one on first use.
func (s *Service) Rooms(ctx context.Context) ([]store.Room, error) {
	if err := store.EnsureDefaultRoom(ctx, s.store); err != nil {
		return nil, err
	}
	return s.store.ListRooms(ctx)
}

func (s *Service) CreateRoom(ctx context.Context, name string) (store.Room, error) {
	return s.store.CreateRoom(ctx, name)
}

func (s *Service) toProtocol(m store.Message) (protocol.Message, error) {
	content, err := s.renderer.Render(m)
	if err != nil {
		return protocol.Message{}, err
	}
	return protocol.Message{
		ID:        m.ID,
		RoomID:    m.RoomID,
		SenderID:  m.UserID,
		Content:   content,
		CreatedAt: m.CreatedAt,
	}, nil
}
