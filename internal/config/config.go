// Package config provides configuration management for livevlm-agent.
//
// Responsibilities:
//   - Load configuration from YAML files and environment variables
//   - Validate configuration on startup
//   - Provide runtime access to all configuration
//   - Support live reloading so streaming settings (notably the capture
//     delay) can change while the agent runs
//
// Configuration Sources (priority order, high to low):
//  1. Environment variables (LIVEVLM_* prefix)
//  2. YAML config file (default: livevlm-agent.yaml in the working dir)
//  3. Built-in defaults
package config

import "context"

// Config contains all configuration fields.
type Config struct {
	// Backend locates the LiveVLM inference backend.
	Backend struct {
		// WebSocketURL is the streaming channel endpoint (ws:// or wss://).
		WebSocketURL string
		// HTTPBaseURL is the REST companion surface (http:// or https://).
		HTTPBaseURL string
		// RequestTimeoutSeconds bounds companion REST calls.
		RequestTimeoutSeconds int
	}

	// Streaming holds per-query analysis settings.
	Streaming struct {
		Model              string
		Prompt             string
		DelaySeconds       float64
		MaxTokens          int
		Temperature        float64
		UseTemporalContext bool
		ContextWindow      int
		SummaryWindow      int
		// HistoryLimit caps the in-memory frame history (FIFO eviction).
		HistoryLimit int
	}

	// Transport controls channel keepalive and reconnection.
	Transport struct {
		// ReconnectBaseDelaySeconds is multiplied by the attempt number
		// (linear backoff).
		ReconnectBaseDelaySeconds float64
		ReconnectMaxAttempts      int
		PingIntervalSeconds       int
		WriteTimeoutSeconds       int
	}

	// Capture selects and configures the camera device.
	Capture struct {
		DeviceID string
		Width    int
		Height   int
		// Quality is the JPEG encode quality (1-100).
		Quality int
	}

	// Archive configures the durable frame archive.
	Archive struct {
		Enabled bool
		// Path to the SQLite file. ":memory:" for an ephemeral archive.
		Path string
	}

	// Status configures the local status/metrics listener.
	Status struct {
		Enabled    bool
		ListenAddr string
	}

	// Logging configuration.
	Logging struct {
		Level    string
		Format   string
		FilePath string
	}
}

// Manager defines the interface for configuration access.
type Manager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Watch watches for configuration changes and delivers updated
	// snapshots on the returned channel.
	Watch(ctx context.Context) <-chan Config

	// Reload reloads configuration from sources.
	Reload(ctx context.Context) error
}

// NewManager creates a new configuration manager for the given file path.
func NewManager(configPath string) (Manager, error) {
	mgr := &viperManager{
		configPath: configPath,
		config:     DefaultConfig(),
		watchChan:  make(chan Config, 1),
	}
	return mgr, nil
}

// NewManagerWithDefaults creates a config manager with the default file path.
func NewManagerWithDefaults() (Manager, error) {
	return NewManager("livevlm-agent.yaml")
}
