package config

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Backend defaults
	cfg.Backend.WebSocketURL = "ws://localhost:8000/ws"
	cfg.Backend.HTTPBaseURL = "http://localhost:8000"
	cfg.Backend.RequestTimeoutSeconds = 30

	// Streaming defaults mirror the backend's /api/settings defaults
	cfg.Streaming.Model = "gemini-2.0-flash"
	cfg.Streaming.Prompt = "What is in this image?"
	cfg.Streaming.DelaySeconds = 2.0
	cfg.Streaming.MaxTokens = 300
	cfg.Streaming.Temperature = 0.7
	cfg.Streaming.UseTemporalContext = true
	cfg.Streaming.ContextWindow = 10
	cfg.Streaming.SummaryWindow = 10
	cfg.Streaming.HistoryLimit = 50

	// Transport defaults
	cfg.Transport.ReconnectBaseDelaySeconds = 1.0
	cfg.Transport.ReconnectMaxAttempts = 5
	cfg.Transport.PingIntervalSeconds = 30
	cfg.Transport.WriteTimeoutSeconds = 10

	// Capture defaults
	cfg.Capture.DeviceID = "simulated"
	cfg.Capture.Width = 640
	cfg.Capture.Height = 480
	cfg.Capture.Quality = 80

	// Archive defaults
	cfg.Archive.Enabled = true
	cfg.Archive.Path = "livevlm-agent.db"

	// Status defaults
	cfg.Status.Enabled = true
	cfg.Status.ListenAddr = "127.0.0.1:9090"

	// Logging defaults
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "console"
	cfg.Logging.FilePath = ""

	return cfg
}
