// Package history persists room messages in SQLite so a relay restart does
// not lose replayable history. Rooms run memory-only when no store is
// configured.
package history

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/parlorchat/parlor/internal/v1/types"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	room_id    TEXT NOT NULL,
	message_id TEXT NOT NULL,
	content    TEXT NOT NULL,
	user       TEXT NOT NULL,
	role       TEXT NOT NULL,
	ts         INTEGER NOT NULL,
	PRIMARY KEY (room_id, message_id)
);
CREATE INDEX IF NOT EXISTS idx_messages_room_ts ON messages(room_id, ts);
`

// Store is a SQLite-backed types.HistoryStore.
type Store struct {
	db *sql.DB
}

// Open creates or opens the history database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	// modernc.org/sqlite serializes access; a single connection avoids
	// SQLITE_BUSY under concurrent room writes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply history schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Save upserts a message keyed by (room, message id). Replayed frames for a
// known id leave the stored row untouched, mirroring the in-memory dedup.
func (s *Store) Save(ctx context.Context, roomID types.RoomIDType, msg types.ChatMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (room_id, message_id, content, user, role, ts)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (room_id, message_id) DO NOTHING`,
		string(roomID), string(msg.ID), msg.Content, string(msg.User), string(msg.Role), msg.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

// UpdateContent replaces the content of an existing message in place.
func (s *Store) UpdateContent(ctx context.Context, roomID types.RoomIDType, id types.MessageIDType, content string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages SET content = ? WHERE room_id = ? AND message_id = ?`,
		content, string(roomID), string(id),
	)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	return nil
}

// Recent returns up to limit messages for the room, oldest first.
func (s *Store) Recent(ctx context.Context, roomID types.RoomIDType, limit int) ([]types.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, content, user, role, ts FROM (
			SELECT message_id, content, user, role, ts
			FROM messages WHERE room_id = ?
			ORDER BY ts DESC, message_id DESC LIMIT ?
		) ORDER BY ts ASC, message_id ASC`,
		string(roomID), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	defer rows.Close()

	var messages []types.ChatMessage
	for rows.Next() {
		var msg types.ChatMessage
		var id, user, role string
		if err := rows.Scan(&id, &msg.Content, &user, &role, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.ID = types.MessageIDType(id)
		msg.User = types.DisplayNameType(user)
		msg.Role = types.RoleTag(role)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
