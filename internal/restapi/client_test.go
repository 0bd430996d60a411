package restapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/livevlm/livevlm-agent/internal/protocol"
)

func TestClientHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" || r.Method != http.MethodGet {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":       "healthy",
			"vlm_services": []string{"gemini-2.0-flash"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	h, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if h.Status != "healthy" || len(h.VLMServices) != 1 {
		t.Errorf("unexpected health %+v", h)
	}
}

func TestClientModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ModelCatalog{
			Models:       []string{"gemini-2.0-flash", "gpt-4o"},
			DefaultModel: "gemini-2.0-flash",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	cat, err := c.Models(context.Background())
	if err != nil {
		t.Fatalf("Models failed: %v", err)
	}
	if cat.DefaultModel != "gemini-2.0-flash" || len(cat.Models) != 2 {
		t.Errorf("unexpected catalog %+v", cat)
	}
}

func TestClientQueryWithContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/vlm/query-with-context" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req ContextRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.SessionID != "sess-1" || !req.UseTemporalContext {
			t.Errorf("unexpected request %+v", req)
		}
		json.NewEncoder(w).Encode(ContextResult{
			Success:   true,
			Response:  "a person at a desk",
			SessionID: req.SessionID,
			FrameID:   "frame-1",
			TemporalContext: &protocol.TemporalContext{
				RecentResponses: []string{"a person at a desk"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	res, err := c.QueryWithContext(context.Background(), ContextRequest{
		Model:              "gemini-2.0-flash",
		ImageB64:           "aGVsbG8=",
		Prompt:             "What is in this image?",
		SessionID:          "sess-1",
		UseTemporalContext: true,
		Settings:           protocol.DefaultSettings(),
	})
	if err != nil {
		t.Fatalf("QueryWithContext failed: %v", err)
	}
	if !res.Success || res.FrameID != "frame-1" {
		t.Errorf("unexpected result %+v", res)
	}
	if res.TemporalContext == nil || len(res.TemporalContext.RecentResponses) != 1 {
		t.Error("expected temporal context in result")
	}
}

func TestClientSessionActions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		switch body["action"] {
		case "start":
			json.NewEncoder(w).Encode(SessionResult{Success: true, SessionID: "sess-new"})
		case "stats":
			json.NewEncoder(w).Encode(SessionResult{
				Success:   true,
				SessionID: body["session_id"],
				Stats:     &protocol.SessionStatsPayload{TotalFrames: 12},
			})
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)

	started, err := c.Session(context.Background(), "start", "")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if started.SessionID != "sess-new" {
		t.Errorf("unexpected session id %q", started.SessionID)
	}

	stats, err := c.Session(context.Background(), "stats", "sess-new")
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.Stats == nil || stats.Stats.TotalFrames != 12 {
		t.Errorf("unexpected stats %+v", stats.Stats)
	}
}

func TestClientUpdateWindowsQueryParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/windows" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("context_window") != "15" || q.Get("summary_window") != "20" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(map[string]bool{"success": true})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	if err := c.UpdateWindows(context.Background(), 15, 20); err != nil {
		t.Fatalf("UpdateWindows failed: %v", err)
	}
}

func TestClientSummary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["model"] != "gpt-4o" {
			t.Errorf("unexpected model %q", body["model"])
		}
		json.NewEncoder(w).Encode(map[string]string{"summary": "a quiet office scene"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	summary, err := c.Summary(context.Background(), "gpt-4o", "")
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if summary != "a quiet office scene" {
		t.Errorf("unexpected summary %q", summary)
	}
}

func TestClientAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Session not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.Session(context.Background(), "stats", "missing")
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("unexpected status %d", apiErr.StatusCode)
	}
}
