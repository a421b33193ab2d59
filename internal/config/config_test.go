package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/7homasISPG/HappyPlaceAIMode/pkg/conversation"
	"github.com/7homasISPG/HappyPlaceAIMode/pkg/llm"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.AI.Profiles = []llm.Profile{
		{Provider: "openai", APIKey: "sk-test123", Model: "gpt-4o"},
	}
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15, cfg.Conversation.MaxRounds)
	assert.Equal(t, 25, cfg.Conversation.ChatMaxRounds)
	assert.Equal(t, 30, cfg.Store.RetentionDays)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "supervisor", cfg.Supervisor.Name)
	assert.NotEmpty(t, cfg.Supervisor.Model)
}

func TestConfigValidate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("missing AI profiles", func(t *testing.T) {
		cfg := validConfig()
		cfg.AI.Profiles = nil

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no AI credentials")
	})

	t.Run("unsupported provider", func(t *testing.T) {
		cfg := validConfig()
		cfg.AI.Profiles[0].Provider = "gemini"

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid provider")
	})

	t.Run("missing api key", func(t *testing.T) {
		cfg := validConfig()
		cfg.AI.Profiles[0].APIKey = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("nameless assistant", func(t *testing.T) {
		cfg := validConfig()
		cfg.Assistants = []conversation.AgentSpec{{SystemMessage: "no name"}}
		assert.Error(t, cfg.Validate())
	})

	t.Run("duplicate task names across assistants", func(t *testing.T) {
		cfg := validConfig()
		cfg.Assistants = []conversation.AgentSpec{
			{Name: "a", Tasks: []conversation.Task{{Name: "book_demo"}}},
			{Name: "b", Tasks: []conversation.Task{{Name: "book_demo"}}},
		}

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "book_demo")
	})

	t.Run("invalid round counts", func(t *testing.T) {
		cfg := validConfig()
		cfg.Conversation.MaxRounds = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("missing retrieval endpoint", func(t *testing.T) {
		cfg := validConfig()
		cfg.Retrieval.Endpoint = ""
		assert.Error(t, cfg.Validate())
	})
}

func TestConfigClone(t *testing.T) {
	cfg := validConfig()
	cfg.Assistants = []conversation.AgentSpec{{Name: "planner"}}

	clone := cfg.Clone()
	clone.Assistants[0].Name = "changed"
	clone.Supervisor.Name = "other"

	assert.Equal(t, "planner", cfg.Assistants[0].Name)
	assert.Equal(t, "supervisor", cfg.Supervisor.Name)
}
