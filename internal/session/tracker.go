// Package session tracks the active streaming session on the agent side:
// which backend session is live, a bounded FIFO of processed frames, and
// the most recent temporal context the backend reported. The tracker is a
// pure in-memory mirror; the backend owns the authoritative session state.
package session

import (
	"sync"
	"time"

	"github.com/livevlm/livevlm-agent/internal/metrics"
	"github.com/livevlm/livevlm-agent/internal/protocol"
)

// FrameRecord captures one processed frame and its VLM response.
type FrameRecord struct {
	FrameID        string    `json:"frame_id"`
	SessionID      string    `json:"session_id"`
	Prompt         string    `json:"prompt"`
	Response       string    `json:"response"`
	Model          string    `json:"model"`
	ProcessingTime float64   `json:"processing_time"`
	Success        bool      `json:"success"`
	Error          string    `json:"error,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Stats summarizes the tracked session.
type Stats struct {
	SessionID      string    `json:"session_id"`
	Active         bool      `json:"active"`
	FrameCount     int       `json:"frame_count"`
	SuccessCount   int       `json:"success_count"`
	ErrorCount     int       `json:"error_count"`
	StartedAt      time.Time `json:"started_at"`
	LastFrameAt    time.Time `json:"last_frame_at"`
	AvgProcessTime float64   `json:"avg_process_time"`
}

// Snapshot is a point-in-time copy of the tracker state for observers.
type Snapshot struct {
	Stats   Stats                     `json:"stats"`
	History []FrameRecord             `json:"history"`
	Context *protocol.TemporalContext `json:"context,omitempty"`
}

// DefaultHistoryLimit bounds the frame history when no limit is configured.
const DefaultHistoryLimit = 50

// Tracker holds the agent-side view of the active session. All methods are
// safe for concurrent use.
type Tracker struct {
	mu sync.RWMutex

	sessionID string
	active    bool
	startedAt time.Time

	history      []FrameRecord
	historyLimit int

	successCount int
	errorCount   int
	totalProcess float64
	lastFrameAt  time.Time

	context *protocol.TemporalContext
}

// NewTracker creates a tracker whose frame history holds at most limit
// records. A non-positive limit falls back to DefaultHistoryLimit.
func NewTracker(limit int) *Tracker {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &Tracker{historyLimit: limit}
}

// StartSession marks a new backend session as active. Any previous history
// and temporal context are discarded.
func (t *Tracker) StartSession(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sessionID = sessionID
	t.active = true
	t.startedAt = time.Now()
	t.history = nil
	t.successCount = 0
	t.errorCount = 0
	t.totalProcess = 0
	t.lastFrameAt = time.Time{}
	t.context = nil
}

// SessionID returns the active session ID, or empty when no session is live.
func (t *Tracker) SessionID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.active {
		return ""
	}
	return t.sessionID
}

// Active reports whether a session is currently live.
func (t *Tracker) Active() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.active
}

// RecordFrame appends a processed frame to the bounded history. When the
// history is full the oldest record is evicted first.
func (t *Tracker) RecordFrame(rec FrameRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	t.history = append(t.history, rec)
	if len(t.history) > t.historyLimit {
		evicted := len(t.history) - t.historyLimit
		t.history = t.history[evicted:]
		metrics.FramesEvicted.Add(float64(evicted))
	}
	metrics.FramesRecorded.Inc()

	t.lastFrameAt = rec.Timestamp
	if rec.Success {
		t.successCount++
		t.totalProcess += rec.ProcessingTime
	} else {
		t.errorCount++
	}
}

// SetTemporalContext replaces the tracked temporal context wholesale. The
// backend sends a complete window with each response; there is no merge.
func (t *Tracker) SetTemporalContext(ctx *protocol.TemporalContext) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.context = ctx
}

// TemporalContext returns the most recent temporal context, or nil.
func (t *Tracker) TemporalContext() *protocol.TemporalContext {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.context
}

// History returns a copy of the frame history, oldest first.
func (t *Tracker) History() []FrameRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]FrameRecord, len(t.history))
	copy(out, t.history)
	return out
}

// Clear discards the frame history and temporal context without ending the
// session. The backend session stays live and keeps its own server-side
// context; Clear only resets what the agent displays.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history = nil
	t.context = nil
}

// EndSession marks the session as ended. History is retained for review
// until the next StartSession.
func (t *Tracker) EndSession() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = false
}

// Stats returns a summary of the tracked session.
func (t *Tracker) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.statsLocked()
}

func (t *Tracker) statsLocked() Stats {
	s := Stats{
		SessionID:    t.sessionID,
		Active:       t.active,
		FrameCount:   t.successCount + t.errorCount,
		SuccessCount: t.successCount,
		ErrorCount:   t.errorCount,
		StartedAt:    t.startedAt,
		LastFrameAt:  t.lastFrameAt,
	}
	if t.successCount > 0 {
		s.AvgProcessTime = t.totalProcess / float64(t.successCount)
	}
	return s
}

// Snapshot returns a consistent copy of stats, history and context.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	history := make([]FrameRecord, len(t.history))
	copy(history, t.history)
	return Snapshot{
		Stats:   t.statsLocked(),
		History: history,
		Context: t.context,
	}
}
