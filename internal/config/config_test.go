package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// Backend defaults
	assert.Equal(t, "ws://localhost:8000/ws", cfg.Backend.WebSocketURL)
	assert.Equal(t, "http://localhost:8000", cfg.Backend.HTTPBaseURL)
	assert.Equal(t, 30, cfg.Backend.RequestTimeoutSeconds)

	// Streaming defaults match the backend's /api/settings defaults
	assert.Equal(t, "gemini-2.0-flash", cfg.Streaming.Model)
	assert.Equal(t, 2.0, cfg.Streaming.DelaySeconds)
	assert.Equal(t, 300, cfg.Streaming.MaxTokens)
	assert.Equal(t, 0.7, cfg.Streaming.Temperature)
	assert.True(t, cfg.Streaming.UseTemporalContext)
	assert.Equal(t, 10, cfg.Streaming.ContextWindow)
	assert.Equal(t, 50, cfg.Streaming.HistoryLimit)

	// Transport defaults
	assert.Equal(t, 1.0, cfg.Transport.ReconnectBaseDelaySeconds)
	assert.Equal(t, 5, cfg.Transport.ReconnectMaxAttempts)

	// Logging defaults
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestDefaultConfigIsValid(t *testing.T) {
	errs := DefaultConfig().Validate()
	assert.Empty(t, errs)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name      string
		modifyFn  func(*Config)
		wantError bool
		errorMsg  string
	}{
		{
			name:      "valid default config",
			modifyFn:  func(cfg *Config) {},
			wantError: false,
		},
		{
			name: "websocket URL wrong scheme",
			modifyFn: func(cfg *Config) {
				cfg.Backend.WebSocketURL = "http://localhost:8000/ws"
			},
			wantError: true,
			errorMsg:  "scheme must be ws or wss",
		},
		{
			name: "missing websocket URL",
			modifyFn: func(cfg *Config) {
				cfg.Backend.WebSocketURL = ""
			},
			wantError: true,
			errorMsg:  "websocket URL is required",
		},
		{
			name: "delay too small",
			modifyFn: func(cfg *Config) {
				cfg.Streaming.DelaySeconds = 0.01
			},
			wantError: true,
			errorMsg:  "delay must be between 0.1 and 60",
		},
		{
			name: "delay too large",
			modifyFn: func(cfg *Config) {
				cfg.Streaming.DelaySeconds = 120
			},
			wantError: true,
			errorMsg:  "delay must be between 0.1 and 60",
		},
		{
			name: "max_tokens out of range",
			modifyFn: func(cfg *Config) {
				cfg.Streaming.MaxTokens = 5000
			},
			wantError: true,
			errorMsg:  "max_tokens must be between 1 and 4000",
		},
		{
			name: "context window out of range",
			modifyFn: func(cfg *Config) {
				cfg.Streaming.ContextWindow = 51
			},
			wantError: true,
			errorMsg:  "context_window must be between 1 and 50",
		},
		{
			name: "reconnect attempts below one",
			modifyFn: func(cfg *Config) {
				cfg.Transport.ReconnectMaxAttempts = 0
			},
			wantError: true,
			errorMsg:  "max attempts must be at least 1",
		},
		{
			name: "archive enabled without path",
			modifyFn: func(cfg *Config) {
				cfg.Archive.Enabled = true
				cfg.Archive.Path = ""
			},
			wantError: true,
			errorMsg:  "path is required when archive is enabled",
		},
		{
			name: "bad log level",
			modifyFn: func(cfg *Config) {
				cfg.Logging.Level = "verbose"
			},
			wantError: true,
			errorMsg:  "level must be debug, info, warn or error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modifyFn(cfg)

			errs := cfg.Validate()
			if tt.wantError {
				require.NotEmpty(t, errs)
				found := false
				for _, err := range errs {
					if strings.Contains(err.Error(), tt.errorMsg) {
						found = true
						break
					}
				}
				assert.True(t, found, "expected an error containing %q, got %v", tt.errorMsg, errs)
			} else {
				assert.Empty(t, errs)
			}
		})
	}
}

func TestManagerLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "livevlm-agent.yaml")
	yaml := `
backend:
  websocket_url: ws://vlm.internal:8000/ws
  http_base_url: http://vlm.internal:8000
streaming:
  model: gpt-4o
  delay_seconds: 5
transport:
  reconnect_max_attempts: 3
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	mgr, err := NewManager(path)
	require.NoError(t, err)
	require.NoError(t, mgr.Load(context.Background()))

	cfg := mgr.Get(context.Background())
	assert.Equal(t, "ws://vlm.internal:8000/ws", cfg.Backend.WebSocketURL)
	assert.Equal(t, "gpt-4o", cfg.Streaming.Model)
	assert.Equal(t, 5.0, cfg.Streaming.DelaySeconds)
	assert.Equal(t, 3, cfg.Transport.ReconnectMaxAttempts)

	// Unset fields fall back to defaults.
	assert.Equal(t, 300, cfg.Streaming.MaxTokens)
	assert.Equal(t, 1.0, cfg.Transport.ReconnectBaseDelaySeconds)

	require.NoError(t, mgr.Validate(context.Background()))
}

func TestManagerLoadMissingFileUsesDefaults(t *testing.T) {
	mgr, err := NewManager(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.NoError(t, mgr.Load(context.Background()))

	cfg := mgr.Get(context.Background())
	assert.Equal(t, DefaultConfig().Backend.WebSocketURL, cfg.Backend.WebSocketURL)
}

func TestManagerEnvOverride(t *testing.T) {
	t.Setenv("LIVEVLM_MODEL", "claude-3-5-sonnet")

	mgr, err := NewManager(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.NoError(t, mgr.Load(context.Background()))

	cfg := mgr.Get(context.Background())
	assert.Equal(t, "claude-3-5-sonnet", cfg.Streaming.Model)
}

func TestManagerReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "livevlm-agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("streaming:\n  delay_seconds: 2\n"), 0o644))

	mgr, err := NewManager(path)
	require.NoError(t, err)
	require.NoError(t, mgr.Load(context.Background()))
	assert.Equal(t, 2.0, mgr.Get(context.Background()).Streaming.DelaySeconds)

	require.NoError(t, os.WriteFile(path, []byte("streaming:\n  delay_seconds: 7\n"), 0o644))
	require.NoError(t, mgr.Reload(context.Background()))
	assert.Equal(t, 7.0, mgr.Get(context.Background()).Streaming.DelaySeconds)
}
