package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps rooms and messages in process.
type MemoryStore struct {
	mu       sync.RWMutex
	rooms    map[string]Room
	messages map[string][]Message
	nextID   int64
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:    make(map[string]Room),
		messages: make(map[string][]Message),
		now:      time.Now,
	}
}

func (s *MemoryStore) RoomExists(_ context.Context, roomID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[roomID]
	return ok, nil
}

func (s *MemoryStore) ListRooms(context.Context) ([]Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rooms := make([]Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
	return rooms, nil
}

func (s *MemoryStore) CreateRoom(_ context.Context, name string) (Room, error) {
	id := Slug(name)
	if id == "" {
		return Room{}, ErrInvalidRoom
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[id]; ok {
		return Room{}, ErrRoomExists
	}
	room := Room{ID: id, Name: strings.TrimSpace(name), CreatedAt: s.now().UTC()}
	s.rooms[id] = room
	return room, nil
}

func (s *MemoryStore) CreateMessage(_ context.Context, roomID, userID, content string) (Message, error) {
	if err := validateMessage(roomID, userID, content); err != nil {
		return Message{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomID]; !ok {
		return Message{}, ErrRoomNotFound
	}

	now := s.now().UTC()
	for _, m := range s.messages[roomID] {
		if m.UserID == userID && m.Content == content && m.CreatedAt.Unix() == now.Unix() {
			return Message{}, ErrDuplicateMessage
		}
	}

	s.nextID++
	msg := Message{
		ID:        s.nextID,
		RoomID:    roomID,
		UserID:    userID,
		Content:   content,
		CreatedAt: now,
	}
	s.messages[roomID] = append(s.messages[roomID], msg)
	return msg, nil
}

func (s *MemoryStore) RecentMessages(_ context.Context, roomID string, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.rooms[roomID]; !ok {
		return nil, ErrRoomNotFound
	}
	all := s.messages[roomID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]Message(nil), all...), nil
}

func (s *MemoryStore) Close() error { return nil }
