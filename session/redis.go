package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore implements the Store interface using Redis.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a new RedisStore.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    ttl,
	}
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("chat:session:%s", sessionID)
}

// Create stores a new session in Redis with a TTL.
func (s *RedisStore) Create(ctx context.Context, session *Session) error {
	return s.put(ctx, session)
}

func (s *RedisStore) put(ctx context.Context, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	return s.client.Set(ctx, sessionKey(session.SessionID), data, s.ttl).Err()
}

// Get retrieves a session from Redis.
func (s *RedisStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.client.Get(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Not found is not an error, just means no session
		}
		return nil, err
	}

	var session Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// SetRooms rewrites the session record with the given rooms and a fresh TTL.
// A session that already expired is left alone.
func (s *RedisStore) SetRooms(ctx context.Context, sessionID string, rooms []string) error {
	session, err := s.Get(ctx, sessionID)
	if err != nil || session == nil {
		return err
	}
	session.Rooms = rooms
	return s.put(ctx, session)
}

// Delete removes a session from Redis.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, sessionKey(sessionID)).Err()
}

// RefreshTTL updates the expiration time of a session key in Redis.
func (s *RedisStore) RefreshTTL(ctx context.Context, sessionID string) error {
	// If the key doesn't exist, Expire is a no-op which is fine.
	return s.client.Expire(ctx, sessionKey(sessionID), s.ttl).Err()
}
