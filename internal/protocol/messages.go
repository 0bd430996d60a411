package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Outbound message types (agent -> backend).
const (
	TypeStartSession        = "start_session"
	TypeVLMQuery            = "vlm_query"
	TypeGetSessionStats     = "get_session_stats"
	TypeUpdateContextWindow = "update_context_window"
	TypeGetSummary          = "get_summary"
	TypePing                = "ping"
)

// Inbound message types (backend -> agent).
const (
	TypeSessionStarted       = "session_started"
	TypeVLMResponse          = "vlm_response"
	TypeSessionStats         = "session_stats"
	TypeSessionError         = "session_error"
	TypeSummaryResponse      = "summary_response"
	TypeSummaryError         = "summary_error"
	TypeContextWindowUpdated = "context_window_updated"
	TypeContextWindowError   = "context_window_error"
	TypePong                 = "pong"
	TypeFrameProcessed       = "frame_processed"
)

// Settings are the per-query VLM settings carried inside a vlm_query.
type Settings struct {
	MaxTokens    int     `json:"max_tokens"`
	Temperature  float64 `json:"temperature"`
	DelaySeconds float64 `json:"delay_seconds"`
}

// DefaultSettings mirrors the backend's defaults.
func DefaultSettings() Settings {
	return Settings{
		MaxTokens:    300,
		Temperature:  0.7,
		DelaySeconds: 2.0,
	}
}

// StartSession requests a new (or resumed) analysis session.
type StartSession struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
}

// VLMQuery submits one captured frame for analysis.
type VLMQuery struct {
	Type               string    `json:"type"`
	Model              string    `json:"model"`
	ImageB64           string    `json:"image_b64"`
	Prompt             string    `json:"prompt"`
	SessionID          string    `json:"session_id,omitempty"`
	UseTemporalContext bool      `json:"use_temporal_context"`
	Settings           Settings  `json:"settings"`
	Timestamp          time.Time `json:"timestamp"`
}

// GetSessionStats asks for statistics of the given (or current) session.
type GetSessionStats struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
}

// UpdateContextWindow changes how many recent responses feed temporal context.
type UpdateContextWindow struct {
	Type          string `json:"type"`
	ContextWindow int    `json:"context_window"`
}

// GetSummary requests a scene summary over recent frames.
type GetSummary struct {
	Type          string `json:"type"`
	Model         string `json:"model,omitempty"`
	SummaryPrompt string `json:"summary_prompt,omitempty"`
}

// Ping is an application-level liveness probe; the backend answers pong.
type Ping struct {
	Type string `json:"type"`
}

// TemporalContext is the rolling context the backend returns with each
// successful response. It is replaced wholesale, never merged.
type TemporalContext struct {
	RecentResponses []string  `json:"recent_responses"`
	LastUpdate      time.Time `json:"last_update"`
}

// SessionStarted acknowledges a start_session with the adopted id.
type SessionStarted struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// VLMResponse is the asynchronous answer to a vlm_query.
type VLMResponse struct {
	Type            string           `json:"type"`
	Success         bool             `json:"success"`
	Response        string           `json:"response,omitempty"`
	Model           string           `json:"model,omitempty"`
	SessionID       string           `json:"session_id,omitempty"`
	FrameID         string           `json:"frame_id,omitempty"`
	ProcessingTime  float64          `json:"processing_time,omitempty"`
	Prompt          string           `json:"prompt,omitempty"`
	TemporalContext *TemporalContext `json:"temporal_context,omitempty"`
	DetectedObjects []string         `json:"detected_objects,omitempty"`
	Timestamp       *time.Time       `json:"timestamp,omitempty"`
	Error           string           `json:"error,omitempty"`
}

// SessionStatsPayload mirrors the backend's session statistics.
type SessionStatsPayload struct {
	TotalFrames       int      `json:"total_frames"`
	SessionDuration   float64  `json:"session_duration"`
	FramesPerMinute   float64  `json:"frames_per_minute"`
	ModelsUsed        []string `json:"models_used,omitempty"`
	AvgProcessingTime float64  `json:"avg_processing_time"`
}

// SessionStats carries statistics for a session.
type SessionStats struct {
	Type      string               `json:"type"`
	SessionID string               `json:"session_id,omitempty"`
	Stats     *SessionStatsPayload `json:"stats"`
}

// SessionError reports a session-level failure.
type SessionError struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// SummaryResponse carries a generated scene summary.
type SummaryResponse struct {
	Type    string `json:"type"`
	Summary string `json:"summary"`
}

// SummaryError reports a failed summary generation.
type SummaryError struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// ContextWindowUpdated acknowledges an update_context_window.
type ContextWindowUpdated struct {
	Type          string `json:"type"`
	ContextWindow int    `json:"context_window"`
}

// ContextWindowError rejects an update_context_window.
type ContextWindowError struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// envelope is used to peek at the discriminating type field before the
// payload is routed to a concrete handler.
type envelope struct {
	Type string `json:"type"`
}

// PeekType extracts the type discriminator from a raw inbound payload.
func PeekType(data []byte) (string, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("decode message envelope: %w", err)
	}
	if env.Type == "" {
		return "", fmt.Errorf("message has no type field")
	}
	return env.Type, nil
}
