// Package sqlite persists conversations in a SQLite database so history
// survives restarts. It satisfies the chat service's Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/demi-app/demi/backend/pkg/emotion"
	"github.com/demi-app/demi/backend/pkg/protocol"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id      TEXT PRIMARY KEY,
	user_id TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id),
	sender          TEXT NOT NULL,
	content         TEXT NOT NULL,
	emotion         TEXT,
	status          TEXT NOT NULL,
	delivered_at    TEXT,
	read_at         TEXT,
	created_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);
`

// Store is a chat.Store backed by a SQLite file.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) EnsureConversation(ctx context.Context, userID string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, "SELECT id FROM conversations WHERE user_id = ?", userID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("query conversation: %w", err)
	}

	id = uuid.NewString()
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO conversations (id, user_id) VALUES (?, ?)", id, userID); err != nil {
		// Lost a race with a concurrent insert; read the winner.
		var existing string
		if scanErr := s.db.QueryRowContext(ctx,
			"SELECT id FROM conversations WHERE user_id = ?", userID).Scan(&existing); scanErr == nil {
			return existing, nil
		}
		return "", fmt.Errorf("insert conversation: %w", err)
	}
	return id, nil
}

func (s *Store) Append(ctx context.Context, msg protocol.Message) error {
	emotionJSON, err := encodeEmotion(msg.EmotionState)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender, content, emotion, status, delivered_at, read_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.MessageID, msg.ConversationID, string(msg.Sender), msg.Content,
		emotionJSON, string(msg.Status),
		encodeTime(msg.DeliveredAt), encodeTime(msg.ReadAt),
		msg.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, msg protocol.Message) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET status = ?, delivered_at = ?, read_at = ?
		WHERE id = ? AND conversation_id = ?`,
		string(msg.Status), encodeTime(msg.DeliveredAt), encodeTime(msg.ReadAt),
		msg.MessageID, msg.ConversationID,
	)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update message: %s not found", msg.MessageID)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, conversationID, messageID string) (protocol.Message, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, sender, content, emotion, status, delivered_at, read_at, created_at
		FROM messages WHERE id = ? AND conversation_id = ?`,
		messageID, conversationID,
	)

	msg, err := scanMessage(row.Scan)
	if err == sql.ErrNoRows {
		return protocol.Message{}, false, nil
	}
	if err != nil {
		return protocol.Message{}, false, fmt.Errorf("query message: %w", err)
	}
	return msg, true, nil
}

func (s *Store) History(ctx context.Context, conversationID string) ([]protocol.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender, content, emotion, status, delivered_at, read_at, created_at
		FROM messages WHERE conversation_id = ? ORDER BY rowid`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	messages := make([]protocol.Message, 0, 32)
	for rows.Next() {
		msg, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return messages, nil
}

func scanMessage(scan func(...any) error) (protocol.Message, error) {
	var msg protocol.Message
	var sender, status, createdAt string
	var emotionJSON, deliveredAt, readAt sql.NullString

	if err := scan(&msg.MessageID, &msg.ConversationID, &sender, &msg.Content,
		&emotionJSON, &status, &deliveredAt, &readAt, &createdAt); err != nil {
		return protocol.Message{}, err
	}

	msg.Sender = protocol.Sender(sender)
	msg.Status = protocol.MessageStatus(status)

	if emotionJSON.Valid && emotionJSON.String != "" {
		var state emotion.State
		if err := json.Unmarshal([]byte(emotionJSON.String), &state); err != nil {
			return protocol.Message{}, fmt.Errorf("decode emotion: %w", err)
		}
		msg.EmotionState = &state
	}

	var err error
	if msg.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return protocol.Message{}, fmt.Errorf("decode created_at: %w", err)
	}
	if msg.DeliveredAt, err = decodeTime(deliveredAt); err != nil {
		return protocol.Message{}, err
	}
	if msg.ReadAt, err = decodeTime(readAt); err != nil {
		return protocol.Message{}, err
	}
	return msg, nil
}

func encodeEmotion(state *emotion.State) (any, error) {
	if state == nil {
		return nil, nil
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode emotion: %w", err)
	}
	return string(raw), nil
}

func encodeTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return nil, fmt.Errorf("decode timestamp: %w", err)
	}
	return &t, nil
}
