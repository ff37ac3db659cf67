// Package store is the persistence collaborator of the delivery core: rooms
// and messages live here, the core only asks whether a room exists and
// hands created messages on for delivery.
package store

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"
)

var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrRoomExists       = errors.New("room already exists")
	ErrInvalidMessage   = errors.New("invalid message")
	ErrInvalidRoom      = errors.New("invalid room")
	ErrDuplicateMessage = errors.New("duplicate message")
)

// DefaultRoomName is created when a store has no rooms yet.
const DefaultRoomName = "General"

type Room struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is a persisted chat message. Content is the raw text the author
// typed; rendering happens on the way out.
type Message struct {
	ID        int64     `json:"id"`
	RoomID    string    `json:"room_id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type Store interface {
	RoomExists(ctx context.Context, roomID string) (bool, error)
	ListRooms(ctx context.Context) ([]Room, error)
	CreateRoom(ctx context.Context, name string) (Room, error)
	// CreateMessage validates and persists a message. The same author
	// posting identical content to the same room within one second is
	// rejected with ErrDuplicateMessage.
	CreateMessage(ctx context.Context, roomID, userID, content string) (Message, error)
	// RecentMessages returns up to limit of the newest messages, oldest first.
	RecentMessages(ctx context.Context, roomID string, limit int) ([]Message, error)
	Close() error
}

// EnsureDefaultRoom creates the default room when the store is empty.
func EnsureDefaultRoom(ctx context.Context, s Store) error {
	rooms, err := s.ListRooms(ctx)
	if err != nil {
		return err
	}
	if len(rooms) > 0 {
		return nil
	}
	_, err = s.CreateRoom(ctx, DefaultRoomName)
	if errors.Is(err, ErrRoomExists) {
		return nil
	}
	return err
}

// Slug derives a room id from its name: "Off Topic!" becomes "off-topic".
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func validateMessage(roomID, userID, content string) error {
	if strings.TrimSpace(roomID) == "" {
		return errors.Join(ErrInvalidMessage, errors.New("room is required"))
	}
	if strings.TrimSpace(userID) == "" {
		return errors.Join(ErrInvalidMessage, errors.New("user is required"))
	}
	if strings.TrimSpace(content) == "" {
		return errors.Join(ErrInvalidMessage, errors.New("content can't be blank"))
	}
	return nil
}
