package store

import (
	"context"
	"fmt"
	"time"
)

// ChatLogEntry is one persisted conversation message.
type ChatLogEntry struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// AppendChatLog persists one audit log entry for a session.
func (s *Store) AppendChatLog(ctx context.Context, sessionID, userID, sender, content string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_logs (session_id, user_id, sender, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		sessionID, userID, sender, content, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to append chat log: %w", err)
	}
	return nil
}

// ListChatLogs fetches a session's messages in append order.
func (s *Store) ListChatLogs(ctx context.Context, sessionID string) ([]ChatLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, user_id, sender, content, created_at
		FROM chat_logs WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat logs: %w", err)
	}
	defer rows.Close()

	entries := []ChatLogEntry{}
	for rows.Next() {
		var entry ChatLogEntry
		var createdAt int64
		if err := rows.Scan(&entry.ID, &entry.SessionID, &entry.UserID,
			&entry.Sender, &entry.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat log: %w", err)
		}
		entry.CreatedAt = time.Unix(createdAt, 0)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// PurgeChatLogs deletes entries older than the cutoff and reports how
// many were removed.
func (s *Store) PurgeChatLogs(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).Unix()
	result, err := s.db.ExecContext(ctx, `DELETE FROM chat_logs WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge chat logs: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
