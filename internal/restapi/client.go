// Package restapi is the non-streaming companion client for the backend's
// REST surface: one-shot queries, session actions, window tuning, summary
// generation, and the model catalog. The streaming path lives in
// package transport; this client covers everything that is plain
// request/response.
package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/livevlm/livevlm-agent/internal/protocol"
)

const DefaultTimeout = 30 * time.Second

// Client talks to the backend's REST endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a REST client against the given base URL, e.g.
// "http://localhost:8000".
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// VLMRequest is a one-shot query without temporal context.
type VLMRequest struct {
	Model     string            `json:"model"`
	ImageB64  string            `json:"image_b64"`
	Prompt    string            `json:"prompt"`
	Settings  protocol.Settings `json:"settings"`
	Timestamp time.Time         `json:"timestamp"`
}

// VLMResult is the answer to a one-shot query.
type VLMResult struct {
	Success   bool       `json:"success"`
	Response  string     `json:"response,omitempty"`
	Model     string     `json:"model,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// ContextRequest is a query that participates in session temporal context.
type ContextRequest struct {
	Model              string            `json:"model"`
	ImageB64           string            `json:"image_b64"`
	Prompt             string            `json:"prompt"`
	SessionID          string            `json:"session_id,omitempty"`
	UseTemporalContext bool              `json:"use_temporal_context"`
	Settings           protocol.Settings `json:"settings"`
}

// ContextResult is the answer to a query-with-context.
type ContextResult struct {
	Success         bool                      `json:"success"`
	Response        string                    `json:"response,omitempty"`
	Model           string                    `json:"model,omitempty"`
	SessionID       string                    `json:"session_id,omitempty"`
	FrameID         string                    `json:"frame_id,omitempty"`
	ProcessingTime  float64                   `json:"processing_time,omitempty"`
	Prompt          string                    `json:"prompt,omitempty"`
	TemporalContext *protocol.TemporalContext `json:"temporal_context,omitempty"`
	DetectedObjects []string                  `json:"detected_objects,omitempty"`
	Error           string                    `json:"error,omitempty"`
}

// SessionResult is the answer to a session action.
type SessionResult struct {
	Success   bool                          `json:"success"`
	SessionID string                        `json:"session_id,omitempty"`
	Message   string                        `json:"message,omitempty"`
	Stats     *protocol.SessionStatsPayload `json:"stats,omitempty"`
	Error     string                        `json:"error,omitempty"`
}

// ModelCatalog lists the models the backend can serve.
type ModelCatalog struct {
	Models       []string `json:"models"`
	DefaultModel string   `json:"default_model"`
}

// DefaultSettings are the backend's defaults plus its current context window.
type DefaultSettings struct {
	MaxTokens        int      `json:"max_tokens"`
	Temperature      float64  `json:"temperature"`
	DelaySeconds     float64  `json:"delay_seconds"`
	SupportedFormats []string `json:"supported_formats"`
	ContextWindow    int      `json:"context_window"`
}

// HealthStatus reports backend liveness and which models have usable keys.
type HealthStatus struct {
	Status      string   `json:"status"`
	VLMServices []string `json:"vlm_services"`
}

// APIError carries a non-2xx response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Body)
}

// Health probes the backend.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var out HealthStatus
	if err := c.doJSON(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Models fetches the available model catalog.
func (c *Client) Models(ctx context.Context) (*ModelCatalog, error) {
	var out ModelCatalog
	if err := c.doJSON(ctx, http.MethodGet, "/api/models", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Settings fetches the backend's default query settings.
func (c *Client) Settings(ctx context.Context) (*DefaultSettings, error) {
	var out DefaultSettings
	if err := c.doJSON(ctx, http.MethodGet, "/api/settings", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Query runs a one-shot query without temporal context.
func (c *Client) Query(ctx context.Context, req VLMRequest) (*VLMResult, error) {
	var out VLMResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/vlm/query", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// QueryWithContext runs a query that feeds and reads session temporal context.
func (c *Client) QueryWithContext(ctx context.Context, req ContextRequest) (*ContextResult, error) {
	var out ContextResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/vlm/query-with-context", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Session performs a session action: "start", "stats" or "clear".
func (c *Client) Session(ctx context.Context, action, sessionID string) (*SessionResult, error) {
	body := map[string]string{"action": action}
	if sessionID != "" {
		body["session_id"] = sessionID
	}
	var out SessionResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/session", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateContextWindow sets how many recent frames feed temporal context.
func (c *Client) UpdateContextWindow(ctx context.Context, n int) error {
	q := url.Values{"context_window": {strconv.Itoa(n)}}
	return c.doJSON(ctx, http.MethodPost, "/api/context-window?"+q.Encode(), nil, nil)
}

// UpdateSummaryWindow sets how many recent frames feed summaries.
func (c *Client) UpdateSummaryWindow(ctx context.Context, n int) error {
	q := url.Values{"summary_window": {strconv.Itoa(n)}}
	return c.doJSON(ctx, http.MethodPost, "/api/summary-window?"+q.Encode(), nil, nil)
}

// UpdateWindows sets both windows at once.
func (c *Client) UpdateWindows(ctx context.Context, contextWindow, summaryWindow int) error {
	q := url.Values{
		"context_window": {strconv.Itoa(contextWindow)},
		"summary_window": {strconv.Itoa(summaryWindow)},
	}
	return c.doJSON(ctx, http.MethodPost, "/api/windows?"+q.Encode(), nil, nil)
}

// Summary asks the backend for a scene summary over recent frames. Model
// and prompt are optional; empty values use the backend's defaults.
func (c *Client) Summary(ctx context.Context, model, summaryPrompt string) (string, error) {
	body := map[string]string{}
	if model != "" {
		body["model"] = model
	}
	if summaryPrompt != "" {
		body["summary_prompt"] = summaryPrompt
	}
	var out struct {
		Summary string `json:"summary"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/summary", body, &out); err != nil {
		return "", err
	}
	return out.Summary, nil
}

// doJSON performs one JSON request/response round trip. A nil out discards
// the response body after the status check.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
