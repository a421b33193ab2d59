package config

import (
	"encoding/json"
	"fmt"

	"github.com/7homasISPG/HappyPlaceAIMode/pkg/conversation"
	"github.com/7homasISPG/HappyPlaceAIMode/pkg/llm"
)

// Config represents the main orchestrator configuration
type Config struct {
	// Server
	Server ServerConfig `json:"server" mapstructure:"server"`

	// AI provider profiles
	AI AIConfig `json:"ai" mapstructure:"ai"`

	// Supervisor agent
	Supervisor SupervisorConfig `json:"supervisor" mapstructure:"supervisor"`

	// Assistant agent specs
	Assistants []conversation.AgentSpec `json:"assistants" mapstructure:"assistants"`

	// Conversation limits
	Conversation ConversationConfig `json:"conversation" mapstructure:"conversation"`

	// Retrieval service
	Retrieval RetrievalConfig `json:"retrieval" mapstructure:"retrieval"`

	// Store
	Store StoreConfig `json:"store" mapstructure:"store"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig holds HTTP and realtime server configuration
type ServerConfig struct {
	Host         string `json:"host" mapstructure:"host"`
	Port         int    `json:"port" mapstructure:"port"`
	SharedSecret string `json:"shared_secret" mapstructure:"shared_secret"`
}

// AIConfig holds AI provider configuration
type AIConfig struct {
	Profiles []llm.Profile `json:"profiles" mapstructure:"profiles"`
}

// SupervisorConfig describes the supervisor agent seated in every
// interactive run
type SupervisorConfig struct {
	Name          string `json:"name" mapstructure:"name"`
	SystemMessage string `json:"system_message" mapstructure:"system_message"`
	Model         string `json:"model" mapstructure:"model"`
}

// ConversationConfig holds round limits for conversation runs
type ConversationConfig struct {
	MaxRounds     int `json:"max_rounds" mapstructure:"max_rounds"`
	ChatMaxRounds int `json:"chat_max_rounds" mapstructure:"chat_max_rounds"`
}

// RetrievalConfig points at the retrieval-augmented answer service
type RetrievalConfig struct {
	Endpoint string `json:"endpoint" mapstructure:"endpoint"`
	Timeout  int    `json:"timeout" mapstructure:"timeout"` // seconds
}

// StoreConfig holds persistence settings
type StoreConfig struct {
	Path          string `json:"path" mapstructure:"path"`
	RetentionDays int    `json:"retention_days" mapstructure:"retention_days"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `json:"level" mapstructure:"level"`
	File  string `json:"file" mapstructure:"file"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		AI: AIConfig{
			Profiles: []llm.Profile{},
		},
		Supervisor: SupervisorConfig{
			Name:          "supervisor",
			SystemMessage: "You coordinate the assistants to resolve the user's request. When the request is fully resolved, reply with TERMINATE.",
			Model:         "gpt-4o",
		},
		Assistants: []conversation.AgentSpec{},
		Conversation: ConversationConfig{
			MaxRounds:     conversation.DefaultMaxRounds,
			ChatMaxRounds: conversation.DefaultChatMaxRounds,
		},
		Retrieval: RetrievalConfig{
			Endpoint: "http://localhost:9000/api/answer",
			Timeout:  30,
		},
		Store: StoreConfig{
			RetentionDays: 30,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Clone returns a deep copy, so an edited copy can be validated and
// swapped in without mutating the live config.
func (c *Config) Clone() *Config {
	data, _ := json.Marshal(c)
	clone := &Config{}
	_ = json.Unmarshal(data, clone)
	return clone
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if len(c.AI.Profiles) == 0 {
		return fmt.Errorf("no AI credentials configured: at least one AI profile is required")
	}

	for i, profile := range c.AI.Profiles {
		if profile.Provider == "" {
			return fmt.Errorf("AI profile %d: provider is required", i)
		}
		if profile.Provider != "openai" && profile.Provider != "anthropic" {
			return fmt.Errorf("AI profile %d: invalid provider %s (must be: openai, anthropic)", i, profile.Provider)
		}
		if profile.APIKey == "" {
			return fmt.Errorf("AI profile %d: api_key is required", i)
		}
	}

	if c.Supervisor.Model == "" {
		return fmt.Errorf("supervisor model is required")
	}

	seen := map[string]string{}
	for i, spec := range c.Assistants {
		if spec.Name == "" {
			return fmt.Errorf("assistant %d: name is required", i)
		}
		for _, task := range spec.Tasks {
			if task.Name == "" {
				return fmt.Errorf("assistant %s: task name is required", spec.Name)
			}
			if owner, dup := seen[task.Name]; dup {
				return fmt.Errorf("task %q declared by both %q and %q", task.Name, owner, spec.Name)
			}
			seen[task.Name] = spec.Name
		}
	}

	if c.Conversation.MaxRounds <= 0 {
		return fmt.Errorf("conversation max_rounds must be positive")
	}
	if c.Conversation.ChatMaxRounds <= 0 {
		return fmt.Errorf("conversation chat_max_rounds must be positive")
	}

	if c.Retrieval.Endpoint == "" {
		return fmt.Errorf("retrieval endpoint is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	return nil
}
