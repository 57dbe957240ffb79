package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pilot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  username: pilotbot
  format: gen9vgc2024regg
  accept_challenges: true
decision:
  provider: random
  timeout: 5s
history:
  window: 5
random_seed: 42
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "pilotbot", cfg.Server.Username)
	assert.Equal(t, "gen9vgc2024regg", cfg.Server.Format)
	assert.True(t, cfg.Server.Accept)
	assert.Equal(t, "random", cfg.Decision.Provider)
	assert.Equal(t, 5*time.Second, cfg.Decision.Timeout)
	assert.Equal(t, 5, cfg.History.Window)
	assert.Equal(t, int64(42), cfg.RandomSeed)
	// Untouched keys keep their defaults.
	assert.Equal(t, 3, cfg.Decision.MaxInvalidChoices)
	assert.Equal(t, "ws://localhost:8000/showdown/websocket", cfg.Server.URL)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "decision:\n  provider: random\nllm:\n  model: some/model\n")
	t.Setenv("SHOWDOWN_PILOT_DECISION_PROVIDER", "llm")
	t.Setenv("SHOWDOWN_PILOT_LLM_API_KEY", "secret")
	t.Setenv("SHOWDOWN_PILOT_SERVER_BATTLE_FORMAT", "gen9ou")
	t.Setenv("SHOWDOWN_PILOT_DECISION_HINT_TIMEOUT", "500ms")
	t.Setenv("SHOWDOWN_PILOT_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "llm", cfg.Decision.Provider)
	assert.Equal(t, "secret", cfg.LLM.APIKey)
	assert.Equal(t, "some/model", cfg.LLM.Model)
	assert.Equal(t, "gen9ou", cfg.Server.Format)
	assert.Equal(t, 500*time.Millisecond, cfg.Decision.HintTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown provider", "decision:\n  provider: oracle\n"},
		{"lua without script", "decision:\n  provider: lua\n"},
		{"zero window", "history:\n  window: 0\n"},
		{"bad yaml", "decision: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestPath(t *testing.T) {
	t.Setenv("SHOWDOWN_PILOT_CONFIG", "")
	assert.Equal(t, DefaultPath, Path())
	t.Setenv("SHOWDOWN_PILOT_CONFIG", "/etc/pilot.yaml")
	assert.Equal(t, "/etc/pilot.yaml", Path())
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLogLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLogLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLogLevel("verbose"))
}
