package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/7homasISPG/HappyPlaceAIMode/pkg/conversation"
	"github.com/7homasISPG/HappyPlaceAIMode/pkg/toolregistry"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{
		Path:   filepath.Join(t.TempDir(), "test.db"),
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAgentCRUD(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	rec := AgentRecord{
		ID:     "a1",
		UserID: "u1",
		Spec: conversation.AgentSpec{
			Name:          "planner",
			SystemMessage: "You plan demos.",
			Tasks: []conversation.Task{{
				Name:         "book_demo",
				Endpoint:     "http://example.com/book",
				ParamsSchema: map[string]interface{}{"when": "str"},
			}},
		},
	}
	require.NoError(t, s.SaveAgent(ctx, rec))

	t.Run("get round-trips the spec", func(t *testing.T) {
		got, err := s.GetAgent(ctx, "a1")
		require.NoError(t, err)
		assert.Equal(t, rec.Spec, got.Spec)
		assert.Equal(t, "u1", got.UserID)
	})

	t.Run("save updates in place", func(t *testing.T) {
		rec.Spec.SystemMessage = "You plan everything."
		require.NoError(t, s.SaveAgent(ctx, rec))

		got, err := s.GetAgent(ctx, "a1")
		require.NoError(t, err)
		assert.Equal(t, "You plan everything.", got.Spec.SystemMessage)
	})

	t.Run("list is scoped to the user", func(t *testing.T) {
		records, err := s.ListAgents(ctx, "u1")
		require.NoError(t, err)
		assert.Len(t, records, 1)

		records, err = s.ListAgents(ctx, "someone-else")
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.DeleteAgent(ctx, "a1"))
		_, err := s.GetAgent(ctx, "a1")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.DeleteAgent(ctx, "a1"), ErrNotFound)
	})
}

func TestToolCRUD(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	def := toolregistry.ToolDefinition{
		ID:          "t1",
		UserID:      "u1",
		Name:        "get_weather",
		Description: "Weather lookup",
		Endpoint:    "http://example.com/weather",
		ParamsSchema: map[string]interface{}{
			"properties": map[string]interface{}{
				"city": map[string]interface{}{"type": "string"},
			},
			"required": []interface{}{"city"},
		},
	}
	require.NoError(t, s.SaveTool(ctx, def))

	t.Run("store implements the registry source", func(t *testing.T) {
		var _ toolregistry.Source = s

		defs, err := s.ToolsForUser(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, defs, 1)
		assert.Equal(t, def, defs[0])
	})

	t.Run("get and delete", func(t *testing.T) {
		got, err := s.GetTool(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, "get_weather", got.Name)

		require.NoError(t, s.DeleteTool(ctx, "t1"))
		_, err = s.GetTool(ctx, "t1")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestChatLogs(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendChatLog(ctx, "s1", "u1", "user", "Book a demo"))
	require.NoError(t, s.AppendChatLog(ctx, "s1", "u1", "planner", "Booked."))
	require.NoError(t, s.AppendChatLog(ctx, "other", "u1", "user", "unrelated"))

	t.Run("list preserves append order per session", func(t *testing.T) {
		entries, err := s.ListChatLogs(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "user", entries[0].Sender)
		assert.Equal(t, "planner", entries[1].Sender)
	})

	t.Run("purge removes only expired entries", func(t *testing.T) {
		// Everything written above is newer than the cutoff.
		n, err := s.PurgeChatLogs(ctx, time.Hour)
		require.NoError(t, err)
		assert.Zero(t, n)

		n, err = s.PurgeChatLogs(ctx, -time.Hour)
		require.NoError(t, err)
		assert.EqualValues(t, 3, n)
	})
}
