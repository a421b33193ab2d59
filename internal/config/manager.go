package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/7homasISPG/HappyPlaceAIMode/pkg/conversation"
)

// Manager owns the live configuration. Readers take an immutable
// snapshot via Current; reloads and edits validate a fresh copy and
// swap the pointer atomically, never mutating a snapshot a reader may
// still hold.
type Manager struct {
	loader  *Loader
	current atomic.Pointer[Config]
	logger  zerolog.Logger

	mu      sync.Mutex // serializes edit-and-save operations
	watcher *fsnotify.Watcher
}

// NewManager loads and validates the initial configuration.
func NewManager(loader *Loader, logger zerolog.Logger) (*Manager, error) {
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	m := &Manager{loader: loader, logger: logger}
	m.current.Store(cfg)
	return m, nil
}

// Current returns the live configuration snapshot. Callers must treat
// it as read-only.
func (m *Manager) Current() *Config {
	return m.current.Load()
}

// Reload re-reads the config file and swaps it in. An invalid file
// leaves the previous configuration in place.
func (m *Manager) Reload() error {
	cfg, err := m.loader.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	m.current.Store(cfg)
	m.logger.Info().Msg("Configuration reloaded")
	return nil
}

// UpdateSupervisor replaces the supervisor section, persists the file
// and swaps the live config.
func (m *Manager) UpdateSupervisor(sup SupervisorConfig) error {
	return m.update(func(cfg *Config) {
		cfg.Supervisor = sup
	})
}

// UpdateAssistants replaces the assistant spec list, persists the file
// and swaps the live config.
func (m *Manager) UpdateAssistants(specs []conversation.AgentSpec) error {
	return m.update(func(cfg *Config) {
		cfg.Assistants = specs
	})
}

func (m *Manager) update(apply func(*Config)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg := m.Current().Clone()
	apply(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := m.loader.Save(cfg); err != nil {
		return err
	}

	m.current.Store(cfg)
	return nil
}

// Watch reloads the configuration whenever the config file changes on
// disk. It blocks until the context is cancelled.
func (m *Manager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	m.watcher = watcher
	defer watcher.Close()

	configPath := m.loader.GetConfigPath()
	// Watch the directory: editors and Save both replace the file,
	// which drops a watch on the file itself.
	if err := watcher.Add(filepath.Dir(configPath)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	m.logger.Debug().Str("path", configPath).Msg("Watching configuration file")

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != configPath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := m.Reload(); err != nil {
				m.logger.Error().Err(err).Msg("Config reload failed, keeping previous configuration")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.logger.Error().Err(err).Msg("Config watcher error")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
