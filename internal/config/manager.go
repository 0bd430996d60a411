package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// viperManager implements Manager using Viper.
type viperManager struct {
	configPath string
	config     *Config
	viper      *viper.Viper
	watchChan  chan Config
}

// Load loads configuration from all sources.
func (m *viperManager) Load(ctx context.Context) error {
	m.viper = viper.New()

	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	m.viper.SetEnvPrefix("LIVEVLM")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	m.setDefaults()

	// Config file is optional; defaults + env vars are enough to run.
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// no file, use defaults
		} else if os.IsNotExist(err) {
			// no file, use defaults
		} else {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.applyEnvOverrides()

	return nil
}

// Get returns the current configuration.
func (m *viperManager) Get(ctx context.Context) *Config {
	return m.config
}

// Validate validates configuration is correct and complete.
func (m *viperManager) Validate(ctx context.Context) error {
	errs := m.config.Validate()
	if len(errs) > 0 {
		var errMsgs []string
		for _, err := range errs {
			errMsgs = append(errMsgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errMsgs, "\n  - "))
	}
	return nil
}

// Watch watches for configuration changes and delivers updated snapshots.
func (m *viperManager) Watch(ctx context.Context) <-chan Config {
	m.viper.WatchConfig()
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		if err := m.unmarshalConfig(); err != nil {
			return
		}
		if len(m.config.Validate()) > 0 {
			// Keep running on the last good config.
			return
		}
		select {
		case m.watchChan <- *m.config:
		default:
			// Channel full, skip this update
		}
	})

	return m.watchChan
}

// Reload reloads configuration from sources.
func (m *viperManager) Reload(ctx context.Context) error {
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.applyEnvOverrides()

	return nil
}

// setDefaults sets default values in viper.
func (m *viperManager) setDefaults() {
	defaults := DefaultConfig()

	m.viper.SetDefault("backend.websocket_url", defaults.Backend.WebSocketURL)
	m.viper.SetDefault("backend.http_base_url", defaults.Backend.HTTPBaseURL)
	m.viper.SetDefault("backend.request_timeout_seconds", defaults.Backend.RequestTimeoutSeconds)

	m.viper.SetDefault("streaming.model", defaults.Streaming.Model)
	m.viper.SetDefault("streaming.prompt", defaults.Streaming.Prompt)
	m.viper.SetDefault("streaming.delay_seconds", defaults.Streaming.DelaySeconds)
	m.viper.SetDefault("streaming.max_tokens", defaults.Streaming.MaxTokens)
	m.viper.SetDefault("streaming.temperature", defaults.Streaming.Temperature)
	m.viper.SetDefault("streaming.use_temporal_context", defaults.Streaming.UseTemporalContext)
	m.viper.SetDefault("streaming.context_window", defaults.Streaming.ContextWindow)
	m.viper.SetDefault("streaming.summary_window", defaults.Streaming.SummaryWindow)
	m.viper.SetDefault("streaming.history_limit", defaults.Streaming.HistoryLimit)

	m.viper.SetDefault("transport.reconnect_base_delay_seconds", defaults.Transport.ReconnectBaseDelaySeconds)
	m.viper.SetDefault("transport.reconnect_max_attempts", defaults.Transport.ReconnectMaxAttempts)
	m.viper.SetDefault("transport.ping_interval_seconds", defaults.Transport.PingIntervalSeconds)
	m.viper.SetDefault("transport.write_timeout_seconds", defaults.Transport.WriteTimeoutSeconds)

	m.viper.SetDefault("capture.device_id", defaults.Capture.DeviceID)
	m.viper.SetDefault("capture.width", defaults.Capture.Width)
	m.viper.SetDefault("capture.height", defaults.Capture.Height)
	m.viper.SetDefault("capture.quality", defaults.Capture.Quality)

	m.viper.SetDefault("archive.enabled", defaults.Archive.Enabled)
	m.viper.SetDefault("archive.path", defaults.Archive.Path)

	m.viper.SetDefault("status.enabled", defaults.Status.Enabled)
	m.viper.SetDefault("status.listen_addr", defaults.Status.ListenAddr)

	m.viper.SetDefault("logging.level", defaults.Logging.Level)
	m.viper.SetDefault("logging.format", defaults.Logging.Format)
	m.viper.SetDefault("logging.file_path", defaults.Logging.FilePath)
}

// unmarshalConfig unmarshals viper config into the Config struct.
func (m *viperManager) unmarshalConfig() error {
	cfg := &Config{}

	cfg.Backend.WebSocketURL = m.viper.GetString("backend.websocket_url")
	cfg.Backend.HTTPBaseURL = m.viper.GetString("backend.http_base_url")
	cfg.Backend.RequestTimeoutSeconds = m.viper.GetInt("backend.request_timeout_seconds")

	cfg.Streaming.Model = m.viper.GetString("streaming.model")
	cfg.Streaming.Prompt = m.viper.GetString("streaming.prompt")
	cfg.Streaming.DelaySeconds = m.viper.GetFloat64("streaming.delay_seconds")
	cfg.Streaming.MaxTokens = m.viper.GetInt("streaming.max_tokens")
	cfg.Streaming.Temperature = m.viper.GetFloat64("streaming.temperature")
	cfg.Streaming.UseTemporalContext = m.viper.GetBool("streaming.use_temporal_context")
	cfg.Streaming.ContextWindow = m.viper.GetInt("streaming.context_window")
	cfg.Streaming.SummaryWindow = m.viper.GetInt("streaming.summary_window")
	cfg.Streaming.HistoryLimit = m.viper.GetInt("streaming.history_limit")

	cfg.Transport.ReconnectBaseDelaySeconds = m.viper.GetFloat64("transport.reconnect_base_delay_seconds")
	cfg.Transport.ReconnectMaxAttempts = m.viper.GetInt("transport.reconnect_max_attempts")
	cfg.Transport.PingIntervalSeconds = m.viper.GetInt("transport.ping_interval_seconds")
	cfg.Transport.WriteTimeoutSeconds = m.viper.GetInt("transport.write_timeout_seconds")

	cfg.Capture.DeviceID = m.viper.GetString("capture.device_id")
	cfg.Capture.Width = m.viper.GetInt("capture.width")
	cfg.Capture.Height = m.viper.GetInt("capture.height")
	cfg.Capture.Quality = m.viper.GetInt("capture.quality")

	cfg.Archive.Enabled = m.viper.GetBool("archive.enabled")
	cfg.Archive.Path = m.viper.GetString("archive.path")

	cfg.Status.Enabled = m.viper.GetBool("status.enabled")
	cfg.Status.ListenAddr = m.viper.GetString("status.listen_addr")

	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.Format = m.viper.GetString("logging.format")
	cfg.Logging.FilePath = m.viper.GetString("logging.file_path")

	m.config = cfg
	return nil
}

// applyEnvOverrides applies environment variable overrides for values that
// are commonly set outside the config file.
func (m *viperManager) applyEnvOverrides() {
	if wsURL := os.Getenv("LIVEVLM_BACKEND_WS_URL"); wsURL != "" {
		m.config.Backend.WebSocketURL = wsURL
	}
	if baseURL := os.Getenv("LIVEVLM_BACKEND_HTTP_URL"); baseURL != "" {
		m.config.Backend.HTTPBaseURL = baseURL
	}
	if model := os.Getenv("LIVEVLM_MODEL"); model != "" {
		m.config.Streaming.Model = model
	}
}
