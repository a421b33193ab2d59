package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "test.log")

	log, err := New(Config{Level: "debug", File: path})
	require.NoError(t, err)

	log.Info().Str("component", "test").Msg("hello")
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.Contains(t, string(data), `"component":"test"`)
}

func TestLoggerLevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")

	log, err := New(Config{Level: "warn", File: path})
	require.NoError(t, err)

	log.Debug().Msg("too quiet")
	log.Warn().Msg("loud enough")
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "too quiet")
	assert.Contains(t, string(data), "loud enough")
}

func TestLoggerRedaction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")

	log, err := New(Config{Level: "info", File: path, Redaction: true})
	require.NoError(t, err)

	log.Info().Msg("key is sk-abcdefghijklmnopqrstuvwxyz123456")
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[REDACTED]")
	assert.NotContains(t, string(data), "sk-abcdefghijklmnopqrstuvwxyz123456")
}

func TestRedactorPatterns(t *testing.T) {
	r := NewRedactor()

	assert.Equal(t, "[REDACTED]", r.Redact("sk-ant-REDACTED"))
	assert.Equal(t, "Authorization: [REDACTED]", r.Redact("Authorization: Bearer abc.def.ghi"))
	assert.Equal(t, "plain text stays", r.Redact("plain text stays"))

	t.Run("custom pattern", func(t *testing.T) {
		require.NoError(t, r.AddPattern(`session-[0-9]+`))
		assert.Equal(t, "[REDACTED]", r.Redact("session-12345"))
	})

	t.Run("invalid pattern is rejected", func(t *testing.T) {
		assert.Error(t, r.AddPattern(`([`))
	})
}
