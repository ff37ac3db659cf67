package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const timeFormat = time.RFC3339Nano

//go:embed schema.sql
var schema string

// SQLiteStore persists rooms and messages with the pure-Go SQLite driver.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens the database at dsn and applies the schema.
func OpenSQLite(dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlite dsn is required")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection keeps ":memory:" databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) RoomExists(ctx context.Context, roomID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM rooms WHERE id = ?`, roomID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("room exists: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) ListRooms(ctx context.Context) ([]Room, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM rooms ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var (
			room      Room
			createdAt string
		)
		if err := rows.Scan(&room.ID, &room.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		room.CreatedAt, _ = time.Parse(timeFormat, createdAt)
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

func (s *SQLiteStore) CreateRoom(ctx context.Context, name string) (Room, error) {
	id := Slug(name)
	if id == "" {
		return Room{}, ErrInvalidRoom
	}
	room := Room{ID: id, Name: strings.TrimSpace(name), CreatedAt: s.now().UTC()}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rooms (id, name, created_at) VALUES (?, ?, ?)`,
		room.ID, room.Name, room.CreatedAt.Format(timeFormat))
	if isUniqueViolation(err) {
		return Room{}, ErrRoomExists
	}
	if err != nil {
		return Room{}, fmt.Errorf("create room: %w", err)
	}
	return room, nil
}

func (s *SQLiteStore) CreateMessage(ctx context.Context, roomID, userID, content string) (Message, error) {
	if err := validateMessage(roomID, userID, content); err != nil {
		return Message{}, err
	}
	exists, err := s.RoomExists(ctx, roomID)
	if err != nil {
		return Message{}, err
	}
	if !exists {
		return Message{}, ErrRoomNotFound
	}

	now := s.now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (room_id, user_id, content, created_at, created_unix) VALUES (?, ?, ?, ?, ?)`,
		roomID, userID, content, now.Format(timeFormat), now.Unix())
	if isUniqueViolation(err) {
		return Message{}, ErrDuplicateMessage
	}
	if err != nil {
		return Message{}, fmt.Errorf("create message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Message{}, fmt.Errorf("create message: %w", err)
	}
	return Message{ID: id, RoomID: roomID, UserID: userID, Content: content, CreatedAt: now}, nil
}

func (s *SQLiteStore) RecentMessages(ctx context.Context, roomID string, limit int) ([]Message, error) {
	exists, err := s.RoomExists(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrRoomNotFound
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room_id, user_id, content, created_at FROM (
			SELECT * FROM messages WHERE room_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var (
			msg       Message
			createdAt string
		)
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.UserID, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.CreatedAt, _ = time.Parse(timeFormat, createdAt)
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
