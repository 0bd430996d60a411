package config

import (
	"fmt"
	"net"
	"net/url"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error

	// Backend
	if c.Backend.WebSocketURL == "" {
		errs = append(errs, &ValidationError{
			Field:   "backend.websocket_url",
			Message: "websocket URL is required",
		})
	} else if u, err := url.Parse(c.Backend.WebSocketURL); err != nil {
		errs = append(errs, &ValidationError{
			Field:   "backend.websocket_url",
			Message: fmt.Sprintf("invalid URL: %v", err),
		})
	} else if u.Scheme != "ws" && u.Scheme != "wss" {
		errs = append(errs, &ValidationError{
			Field:   "backend.websocket_url",
			Message: fmt.Sprintf("scheme must be ws or wss, got %q", u.Scheme),
		})
	}

	if c.Backend.HTTPBaseURL == "" {
		errs = append(errs, &ValidationError{
			Field:   "backend.http_base_url",
			Message: "HTTP base URL is required",
		})
	} else if u, err := url.Parse(c.Backend.HTTPBaseURL); err != nil {
		errs = append(errs, &ValidationError{
			Field:   "backend.http_base_url",
			Message: fmt.Sprintf("invalid URL: %v", err),
		})
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, &ValidationError{
			Field:   "backend.http_base_url",
			Message: fmt.Sprintf("scheme must be http or https, got %q", u.Scheme),
		})
	}

	if c.Backend.RequestTimeoutSeconds <= 0 {
		errs = append(errs, &ValidationError{
			Field:   "backend.request_timeout_seconds",
			Message: fmt.Sprintf("timeout must be positive, got %d", c.Backend.RequestTimeoutSeconds),
		})
	}

	// Streaming: ranges match the backend's Settings model
	if c.Streaming.Model == "" {
		errs = append(errs, &ValidationError{
			Field:   "streaming.model",
			Message: "model is required",
		})
	}
	if c.Streaming.DelaySeconds < 0.1 || c.Streaming.DelaySeconds > 60 {
		errs = append(errs, &ValidationError{
			Field:   "streaming.delay_seconds",
			Message: fmt.Sprintf("delay must be between 0.1 and 60 seconds, got %g", c.Streaming.DelaySeconds),
		})
	}
	if c.Streaming.MaxTokens < 1 || c.Streaming.MaxTokens > 4000 {
		errs = append(errs, &ValidationError{
			Field:   "streaming.max_tokens",
			Message: fmt.Sprintf("max_tokens must be between 1 and 4000, got %d", c.Streaming.MaxTokens),
		})
	}
	if c.Streaming.Temperature < 0 || c.Streaming.Temperature > 2 {
		errs = append(errs, &ValidationError{
			Field:   "streaming.temperature",
			Message: fmt.Sprintf("temperature must be between 0 and 2, got %g", c.Streaming.Temperature),
		})
	}
	if c.Streaming.ContextWindow < 1 || c.Streaming.ContextWindow > 50 {
		errs = append(errs, &ValidationError{
			Field:   "streaming.context_window",
			Message: fmt.Sprintf("context_window must be between 1 and 50, got %d", c.Streaming.ContextWindow),
		})
	}
	if c.Streaming.SummaryWindow < 1 || c.Streaming.SummaryWindow > 50 {
		errs = append(errs, &ValidationError{
			Field:   "streaming.summary_window",
			Message: fmt.Sprintf("summary_window must be between 1 and 50, got %d", c.Streaming.SummaryWindow),
		})
	}
	if c.Streaming.HistoryLimit < 1 {
		errs = append(errs, &ValidationError{
			Field:   "streaming.history_limit",
			Message: fmt.Sprintf("history_limit must be positive, got %d", c.Streaming.HistoryLimit),
		})
	}

	// Transport
	if c.Transport.ReconnectBaseDelaySeconds <= 0 {
		errs = append(errs, &ValidationError{
			Field:   "transport.reconnect_base_delay_seconds",
			Message: fmt.Sprintf("base delay must be positive, got %g", c.Transport.ReconnectBaseDelaySeconds),
		})
	}
	if c.Transport.ReconnectMaxAttempts < 1 {
		errs = append(errs, &ValidationError{
			Field:   "transport.reconnect_max_attempts",
			Message: fmt.Sprintf("max attempts must be at least 1, got %d", c.Transport.ReconnectMaxAttempts),
		})
	}
	if c.Transport.PingIntervalSeconds < 1 {
		errs = append(errs, &ValidationError{
			Field:   "transport.ping_interval_seconds",
			Message: fmt.Sprintf("ping interval must be at least 1 second, got %d", c.Transport.PingIntervalSeconds),
		})
	}

	// Capture
	if c.Capture.Quality < 1 || c.Capture.Quality > 100 {
		errs = append(errs, &ValidationError{
			Field:   "capture.quality",
			Message: fmt.Sprintf("quality must be between 1 and 100, got %d", c.Capture.Quality),
		})
	}
	if c.Capture.Width < 1 || c.Capture.Height < 1 {
		errs = append(errs, &ValidationError{
			Field:   "capture.width",
			Message: fmt.Sprintf("dimensions must be positive, got %dx%d", c.Capture.Width, c.Capture.Height),
		})
	}

	// Archive
	if c.Archive.Enabled && c.Archive.Path == "" {
		errs = append(errs, &ValidationError{
			Field:   "archive.path",
			Message: "path is required when archive is enabled",
		})
	}

	// Status
	if c.Status.Enabled {
		if _, _, err := net.SplitHostPort(c.Status.ListenAddr); err != nil {
			errs = append(errs, &ValidationError{
				Field:   "status.listen_addr",
				Message: fmt.Sprintf("invalid listen address (expected host:port): %v", err),
			})
		}
	}

	// Logging
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("level must be debug, info, warn or error, got %q", c.Logging.Level),
		})
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, &ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("format must be json or console, got %q", c.Logging.Format),
		})
	}

	return errs
}
