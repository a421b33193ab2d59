package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/7homasISPG/HappyPlaceAIMode/pkg/toolregistry"
)

// SaveTool inserts or replaces a tool definition.
func (s *Store) SaveTool(ctx context.Context, def toolregistry.ToolDefinition) error {
	schema, err := json.Marshal(def.ParamsSchema)
	if err != nil {
		return fmt.Errorf("failed to encode params schema: %w", err)
	}

	now := time.Now().Unix()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tools (id, user_id, name, description, endpoint, params_schema, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			endpoint = excluded.endpoint,
			params_schema = excluded.params_schema,
			updated_at = excluded.updated_at`,
		def.ID, def.UserID, def.Name, def.Description, def.Endpoint, string(schema), now, now)
	if err != nil {
		return fmt.Errorf("failed to save tool: %w", err)
	}

	s.logger.Debug().Str("tool_id", def.ID).Str("name", def.Name).Msg("Tool saved")
	return nil
}

// GetTool fetches one tool definition by id.
func (s *Store) GetTool(ctx context.Context, id string) (*toolregistry.ToolDefinition, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, description, endpoint, params_schema
		FROM tools WHERE id = ?`, id)
	def, err := scanTool(row)
	if err != nil {
		return nil, err
	}
	return &def, nil
}

// ToolsForUser fetches all tool definitions owned by a user.
func (s *Store) ToolsForUser(ctx context.Context, userID string) ([]toolregistry.ToolDefinition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, description, endpoint, params_schema
		FROM tools WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	defer rows.Close()

	defs := []toolregistry.ToolDefinition{}
	for rows.Next() {
		def, err := scanTool(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// DeleteTool removes a tool definition.
func (s *Store) DeleteTool(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tools WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete tool: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTool(row rowScanner) (toolregistry.ToolDefinition, error) {
	var def toolregistry.ToolDefinition
	var schema string

	err := row.Scan(&def.ID, &def.UserID, &def.Name, &def.Description, &def.Endpoint, &schema)
	if errors.Is(err, sql.ErrNoRows) {
		return def, ErrNotFound
	}
	if err != nil {
		return def, fmt.Errorf("failed to scan tool: %w", err)
	}

	if err := json.Unmarshal([]byte(schema), &def.ParamsSchema); err != nil {
		return def, fmt.Errorf("failed to decode params schema: %w", err)
	}
	return def, nil
}
