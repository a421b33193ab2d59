package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/7homasISPG/HappyPlaceAIMode/pkg/conversation"
)

// AgentRecord is a stored agent spec with ownership metadata.
type AgentRecord struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"user_id"`
	Spec      conversation.AgentSpec `json:"spec"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// SaveAgent inserts or replaces an agent record.
func (s *Store) SaveAgent(ctx context.Context, rec AgentRecord) error {
	tasks, err := json.Marshal(rec.Spec.Tasks)
	if err != nil {
		return fmt.Errorf("failed to encode tasks: %w", err)
	}

	now := time.Now().Unix()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agents (id, user_id, name, system_message, tasks, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			system_message = excluded.system_message,
			tasks = excluded.tasks,
			updated_at = excluded.updated_at`,
		rec.ID, rec.UserID, rec.Spec.Name, rec.Spec.SystemMessage, string(tasks), now, now)
	if err != nil {
		return fmt.Errorf("failed to save agent: %w", err)
	}

	s.logger.Debug().Str("agent_id", rec.ID).Msg("Agent saved")
	return nil
}

// GetAgent fetches one agent record by id.
func (s *Store) GetAgent(ctx context.Context, id string) (*AgentRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, system_message, tasks, created_at, updated_at
		FROM agents WHERE id = ?`, id)
	return scanAgent(row)
}

// ListAgents fetches all agent records owned by a user.
func (s *Store) ListAgents(ctx context.Context, userID string) ([]AgentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, system_message, tasks, created_at, updated_at
		FROM agents WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	records := []AgentRecord{}
	for rows.Next() {
		rec, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// DeleteAgent removes an agent record.
func (s *Store) DeleteAgent(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete agent: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAgent(row rowScanner) (*AgentRecord, error) {
	var rec AgentRecord
	var tasks string
	var createdAt, updatedAt int64

	err := row.Scan(&rec.ID, &rec.UserID, &rec.Spec.Name, &rec.Spec.SystemMessage,
		&tasks, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan agent: %w", err)
	}

	if err := json.Unmarshal([]byte(tasks), &rec.Spec.Tasks); err != nil {
		return nil, fmt.Errorf("failed to decode tasks: %w", err)
	}
	rec.CreatedAt = time.Unix(createdAt, 0)
	rec.UpdatedAt = time.Unix(updatedAt, 0)
	return &rec, nil
}
