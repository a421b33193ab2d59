package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/7homasISPG/HappyPlaceAIMode/pkg/conversation"
	"github.com/7homasISPG/HappyPlaceAIMode/pkg/llm"
)

func TestLoaderMissingFileUsesDefaults(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "nope.json"))

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.NotEmpty(t, cfg.Store.Path)
	assert.NotEmpty(t, cfg.Logging.File)
}

func TestLoaderLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "happyplace.json")
	content := `{
		"server": {"port": 9090},
		"ai": {"profiles": [{"provider": "anthropic", "api_key": "sk-ant-x", "model": "claude-sonnet-4"}]},
		"assistants": [{"name": "planner", "system_message": "plan", "tasks": [{"name": "book_demo", "params_schema": {"when": "str"}}]}]
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	// Unset sections keep their defaults.
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 25, cfg.Conversation.ChatMaxRounds)

	require.Len(t, cfg.AI.Profiles, 1)
	assert.Equal(t, "anthropic", cfg.AI.Profiles[0].Provider)

	require.Len(t, cfg.Assistants, 1)
	require.Len(t, cfg.Assistants[0].Tasks, 1)
	assert.Equal(t, "book_demo", cfg.Assistants[0].Tasks[0].Name)
	assert.Equal(t, "str", cfg.Assistants[0].Tasks[0].ParamsSchema["when"])
}

func TestLoaderSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "happyplace.json")
	loader := NewLoader(path)

	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.AI.Profiles = []llm.Profile{{Provider: "openai", APIKey: "sk-x", Model: "gpt-4o"}}
	cfg.Assistants = []conversation.AgentSpec{{Name: "planner", SystemMessage: "plan"}}

	require.NoError(t, loader.Save(cfg))

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, cfg.AI.Profiles, loaded.AI.Profiles)
	require.Len(t, loaded.Assistants, 1)
	assert.Equal(t, "planner", loaded.Assistants[0].Name)
}

func TestManagerUpdateAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "happyplace.json")
	loader := NewLoader(path)

	seed := DefaultConfig()
	seed.DataDir = t.TempDir()
	seed.AI.Profiles = []llm.Profile{{Provider: "openai", APIKey: "sk-x", Model: "gpt-4o"}}
	require.NoError(t, loader.Save(seed))

	manager, err := NewManager(loader, zerolog.Nop())
	require.NoError(t, err)

	t.Run("update swaps and persists", func(t *testing.T) {
		before := manager.Current()

		err := manager.UpdateAssistants([]conversation.AgentSpec{{Name: "planner"}})
		require.NoError(t, err)

		assert.Empty(t, before.Assistants)
		require.Len(t, manager.Current().Assistants, 1)

		reloaded, err := loader.Load()
		require.NoError(t, err)
		assert.Len(t, reloaded.Assistants, 1)
	})

	t.Run("invalid update is rejected and live config untouched", func(t *testing.T) {
		err := manager.UpdateSupervisor(SupervisorConfig{Name: "sup", Model: ""})
		require.Error(t, err)
		assert.NotEmpty(t, manager.Current().Supervisor.Model)
	})

	t.Run("reload picks up on-disk edits", func(t *testing.T) {
		edited := manager.Current().Clone()
		edited.Server.Port = 9191
		require.NoError(t, loader.Save(edited))

		require.NoError(t, manager.Reload())
		assert.Equal(t, 9191, manager.Current().Server.Port)
	})
}
