// Package orchestrator wires the capture pacer, transport channel, session
// tracker and state store into the streaming loop. It translates external
// commands into state transitions and routes inbound messages, keyed by
// their type, into tracker and store mutations.
package orchestrator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/livevlm/livevlm-agent/internal/archive"
	"github.com/livevlm/livevlm-agent/internal/capture"
	"github.com/livevlm/livevlm-agent/internal/metrics"
	"github.com/livevlm/livevlm-agent/internal/pacer"
	"github.com/livevlm/livevlm-agent/internal/protocol"
	"github.com/livevlm/livevlm-agent/internal/session"
	"github.com/livevlm/livevlm-agent/internal/store"
	"github.com/livevlm/livevlm-agent/internal/transport"
)

// Transport is the channel surface the orchestrator drives. Satisfied by
// *transport.Channel.
type Transport interface {
	OnMessage(msgType string, h transport.Handler)
	OnError(fn func(error))
	Send(msgType string, v interface{}) error
	IsConnected() bool
	State() transport.ConnectionState
}

// QuerySettings are the mutable per-query parameters of the streaming loop.
type QuerySettings struct {
	Model              string
	Prompt             string
	UseTemporalContext bool
	Settings           protocol.Settings
}

// Orchestrator owns the streaming loop.
type Orchestrator struct {
	logger  *zap.Logger
	channel Transport
	pacer   *pacer.Pacer
	tracker *session.Tracker
	store   *store.Store
	stream  capture.Stream
	archive *archive.Archive // optional

	mu         sync.Mutex
	settings   QuerySettings
	sentAt     time.Time
	inFlightID string
	suspended  bool
}

// Options bundle the orchestrator's collaborators. Archive may be nil.
type Options struct {
	Channel  Transport
	Tracker  *session.Tracker
	Store    *store.Store
	Stream   capture.Stream
	Archive  *archive.Archive
	Settings QuerySettings
	Interval time.Duration
	Logger   *zap.Logger
}

// New wires an orchestrator and registers its inbound message handlers on
// the channel. Call before Connect so no early message is missed.
func New(opts Options) (*Orchestrator, error) {
	if opts.Channel == nil {
		return nil, fmt.Errorf("channel is required")
	}
	if opts.Tracker == nil {
		return nil, fmt.Errorf("tracker is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if opts.Stream == nil {
		return nil, fmt.Errorf("capture stream is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = time.Duration(opts.Settings.Settings.DelaySeconds * float64(time.Second))
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}

	o := &Orchestrator{
		logger:   logger,
		channel:  opts.Channel,
		tracker:  opts.Tracker,
		store:    opts.Store,
		stream:   opts.Stream,
		archive:  opts.Archive,
		settings: opts.Settings,
	}
	o.pacer = pacer.New(interval, o.captureTick, logger.Named("pacer"))
	o.pacer.OnStateChange(func(s pacer.State) {
		o.store.Update(func(st *store.AgentState) { st.PacerState = s.String() })
	})

	o.registerHandlers()
	return o, nil
}

func (o *Orchestrator) registerHandlers() {
	o.channel.OnMessage(protocol.TypeSessionStarted, o.onSessionStarted)
	o.channel.OnMessage(protocol.TypeVLMResponse, o.onVLMResponse)
	o.channel.OnMessage(protocol.TypeSessionStats, o.onSessionStats)
	o.channel.OnMessage(protocol.TypeSessionError, o.onSessionError)
	o.channel.OnMessage(protocol.TypeSummaryResponse, o.onSummaryResponse)
	o.channel.OnMessage(protocol.TypeSummaryError, o.onSummaryError)
	o.channel.OnMessage(protocol.TypeContextWindowUpdated, o.onContextWindowUpdated)
	o.channel.OnMessage(protocol.TypeContextWindowError, o.onContextWindowError)
	o.channel.OnMessage(protocol.TypePong, func([]byte) {})
	// frame_processed is a broadcast to other session observers; ignored.
	o.channel.OnMessage(protocol.TypeFrameProcessed, func([]byte) {})

	o.channel.OnError(func(err error) {
		// A dead channel cannot deliver the outstanding response; release
		// the slot so streaming resumes cleanly after reconnect.
		o.pacer.Release()
		o.surfaceError(err.Error())
		o.store.Update(func(st *store.AgentState) {
			st.ConnectionState = string(o.channel.State())
		})
	})
}

// Pacer exposes the pacer for status reporting.
func (o *Orchestrator) Pacer() *pacer.Pacer { return o.pacer }

// HandleConnectionState reacts to channel state transitions. Losing the
// channel disarms the pacer so ticks stop burning frames into a dead
// socket; a successful reconnect re-arms it when streaming was active at
// the moment of the drop. A terminal failure stays disarmed until the
// next explicit Start.
func (o *Orchestrator) HandleConnectionState(state transport.ConnectionState) {
	switch state {
	case transport.StateConnected:
		o.mu.Lock()
		resume := o.suspended
		o.suspended = false
		o.mu.Unlock()
		if resume {
			o.pacer.Arm()
			o.logger.Info("streaming resumed after reconnect")
		}
	case transport.StateDisconnected, transport.StateReconnecting:
		if o.pacer.State() == pacer.Idle {
			return
		}
		o.mu.Lock()
		o.suspended = true
		o.mu.Unlock()
		o.pacer.Disarm()
		o.logger.Info("streaming suspended, channel down")
	case transport.StateFailed:
		o.mu.Lock()
		o.suspended = false
		o.mu.Unlock()
		o.pacer.Disarm()
	}
}

// Start begins streaming: it requires a connected channel, requests a
// session (reusing a prior id when one exists), clears previous history
// and arms the pacer.
func (o *Orchestrator) Start(ctx context.Context) error {
	if !o.channel.IsConnected() {
		return transport.ErrNotConnected
	}

	msg := protocol.StartSession{
		Type:      protocol.TypeStartSession,
		SessionID: o.tracker.SessionID(),
	}
	if err := o.channel.Send(protocol.TypeStartSession, msg); err != nil {
		return fmt.Errorf("failed to request session: %w", err)
	}

	o.tracker.Clear()
	o.pacer.Arm()
	o.store.Update(func(st *store.AgentState) {
		st.LastError = ""
		st.FrameCount = 0
		st.ErrorCount = 0
	})
	o.logger.Info("streaming started")
	return nil
}

// Stop disarms the pacer. Session, history and temporal context stay
// intact so a summary can still be requested. Stopping twice is a no-op.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	o.suspended = false
	o.mu.Unlock()
	o.pacer.Disarm()
	o.logger.Info("streaming stopped")
}

// Reset disarms the pacer and clears history, temporal context and the
// summary. The connection and session id are untouched; subsequent frames
// still associate to the same session.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	o.suspended = false
	o.mu.Unlock()
	o.pacer.Disarm()
	o.tracker.Clear()
	o.store.Update(func(st *store.AgentState) {
		st.LastResponse = ""
		st.LastError = ""
		st.Summary = ""
		st.FrameCount = 0
		st.ErrorCount = 0
	})
	o.logger.Info("session state reset")
}

// Dismiss clears the surfaced error without touching anything else.
func (o *Orchestrator) Dismiss() {
	o.store.Update(func(st *store.AgentState) { st.LastError = "" })
}

// RequestSummary asks the backend for a scene summary over recent frames.
func (o *Orchestrator) RequestSummary() error {
	o.mu.Lock()
	model := o.settings.Model
	o.mu.Unlock()

	return o.channel.Send(protocol.TypeGetSummary, protocol.GetSummary{
		Type:  protocol.TypeGetSummary,
		Model: model,
	})
}

// RequestStats asks the backend for statistics of the current session.
func (o *Orchestrator) RequestStats() error {
	return o.channel.Send(protocol.TypeGetSessionStats, protocol.GetSessionStats{
		Type:      protocol.TypeGetSessionStats,
		SessionID: o.tracker.SessionID(),
	})
}

// SetContextWindow asks the backend to change how many recent responses
// feed temporal context. The backend validates the range; invalid values
// are rejected client-side to save the round trip.
func (o *Orchestrator) SetContextWindow(n int) error {
	if n < 1 || n > 50 {
		return fmt.Errorf("context window must be between 1 and 50, got %d", n)
	}
	return o.channel.Send(protocol.TypeUpdateContextWindow, protocol.UpdateContextWindow{
		Type:          protocol.TypeUpdateContextWindow,
		ContextWindow: n,
	})
}

// SetDelay changes the capture interval. An armed pacer reschedules.
func (o *Orchestrator) SetDelay(d time.Duration) {
	o.mu.Lock()
	o.settings.Settings.DelaySeconds = d.Seconds()
	o.mu.Unlock()
	o.pacer.SetInterval(d)
}

// SetModel changes the model used for subsequent queries.
func (o *Orchestrator) SetModel(model string) {
	o.mu.Lock()
	o.settings.Model = model
	o.mu.Unlock()
	o.store.Update(func(st *store.AgentState) { st.Model = model })
}

// SetPrompt changes the prompt used for subsequent queries.
func (o *Orchestrator) SetPrompt(prompt string) {
	o.mu.Lock()
	o.settings.Prompt = prompt
	o.mu.Unlock()
}

// UpdateSettings replaces the per-query settings wholesale.
func (o *Orchestrator) UpdateSettings(qs QuerySettings) {
	o.mu.Lock()
	o.settings = qs
	o.mu.Unlock()
	o.pacer.SetInterval(time.Duration(qs.Settings.DelaySeconds * float64(time.Second)))
}

// captureTick runs on the pacer goroutine holding the in-flight slot. It
// grabs one frame and sends one query; the slot is released either here on
// failure or by the inbound response handler.
func (o *Orchestrator) captureTick() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	frame, err := o.stream.CaptureStillFrame(ctx)
	if err != nil {
		o.pacer.Release()
		o.surfaceError(fmt.Sprintf("capture failed: %v", err))
		o.logger.Warn("frame capture failed", zap.Error(err))
		return
	}

	captureID := uuid.New().String()
	o.mu.Lock()
	qs := o.settings
	o.sentAt = time.Now()
	o.inFlightID = captureID
	o.mu.Unlock()
	query := protocol.VLMQuery{
		Type:               protocol.TypeVLMQuery,
		Model:              qs.Model,
		ImageB64:           base64.StdEncoding.EncodeToString(frame),
		Prompt:             qs.Prompt,
		SessionID:          o.tracker.SessionID(),
		UseTemporalContext: qs.UseTemporalContext,
		Settings:           qs.Settings,
		Timestamp:          time.Now().UTC(),
	}

	if err := o.channel.Send(protocol.TypeVLMQuery, query); err != nil {
		o.pacer.Release()
		o.surfaceError(fmt.Sprintf("query send failed: %v", err))
		return
	}
	metrics.FramesCaptured.Inc()
	o.logger.Debug("query sent",
		zap.String("capture_id", captureID),
		zap.String("model", qs.Model),
		zap.Int("frame_bytes", len(frame)))
}

func (o *Orchestrator) onSessionStarted(data []byte) {
	var msg protocol.SessionStarted
	if err := json.Unmarshal(data, &msg); err != nil {
		o.logger.Warn("bad session_started payload", zap.Error(err))
		return
	}
	o.tracker.StartSession(msg.SessionID)
	o.store.Update(func(st *store.AgentState) {
		st.SessionID = msg.SessionID
		st.SessionActive = true
	})
	o.logger.Info("session started", zap.String("session_id", msg.SessionID))
}

func (o *Orchestrator) onVLMResponse(data []byte) {
	var msg protocol.VLMResponse
	if err := json.Unmarshal(data, &msg); err != nil {
		o.logger.Warn("bad vlm_response payload", zap.Error(err))
		return
	}

	// Release before anything else: a stuck marker stalls the pacer forever.
	o.pacer.Release()

	o.mu.Lock()
	sentAt := o.sentAt
	captureID := o.inFlightID
	o.mu.Unlock()
	if !sentAt.IsZero() {
		metrics.QueryDuration.WithLabelValues(msg.Model).Observe(time.Since(sentAt).Seconds())
	}

	if !msg.Success {
		metrics.QueriesTotal.WithLabelValues(msg.Model, "error").Inc()
		o.store.Update(func(st *store.AgentState) { st.ErrorCount++ })
		o.surfaceError(msg.Error)
		return
	}
	metrics.QueriesTotal.WithLabelValues(msg.Model, "ok").Inc()

	rec := session.FrameRecord{
		FrameID:        msg.FrameID,
		SessionID:      msg.SessionID,
		Prompt:         msg.Prompt,
		Response:       msg.Response,
		Model:          msg.Model,
		ProcessingTime: msg.ProcessingTime,
		Success:        true,
	}
	if msg.Timestamp != nil {
		rec.Timestamp = *msg.Timestamp
	}
	if rec.FrameID == "" {
		// Backends that assign no frame id fall back to the id minted at
		// capture time, keeping history and archive rows addressable.
		rec.FrameID = captureID
	}
	o.tracker.RecordFrame(rec)
	o.tracker.SetTemporalContext(msg.TemporalContext)

	stats := o.tracker.Stats()
	o.store.Update(func(st *store.AgentState) {
		st.LastResponse = msg.Response
		st.LastError = ""
		st.FrameCount = stats.FrameCount
	})

	o.archiveFrame(rec)
}

// archiveFrame persists a frame best effort; archive failures log and
// never block the loop.
func (o *Orchestrator) archiveFrame(rec session.FrameRecord) {
	if o.archive == nil || rec.SessionID == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.archive.AppendFrame(ctx, rec.SessionID, rec); err != nil {
			metrics.ArchiveWrites.WithLabelValues("error").Inc()
			o.logger.Warn("archive write failed", zap.Error(err))
			return
		}
		metrics.ArchiveWrites.WithLabelValues("ok").Inc()
	}()
}

func (o *Orchestrator) onSessionStats(data []byte) {
	var msg protocol.SessionStats
	if err := json.Unmarshal(data, &msg); err != nil {
		o.logger.Warn("bad session_stats payload", zap.Error(err))
		return
	}
	o.store.Update(func(st *store.AgentState) { st.Stats = msg.Stats })
}

func (o *Orchestrator) onSessionError(data []byte) {
	var msg protocol.SessionError
	if err := json.Unmarshal(data, &msg); err != nil {
		o.logger.Warn("bad session_error payload", zap.Error(err))
		return
	}
	o.pacer.Release()
	o.surfaceError(msg.Error)
}

func (o *Orchestrator) onSummaryResponse(data []byte) {
	var msg protocol.SummaryResponse
	if err := json.Unmarshal(data, &msg); err != nil {
		o.logger.Warn("bad summary_response payload", zap.Error(err))
		return
	}
	o.store.Update(func(st *store.AgentState) { st.Summary = msg.Summary })
}

func (o *Orchestrator) onSummaryError(data []byte) {
	var msg protocol.SummaryError
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	o.surfaceError(msg.Error)
}

func (o *Orchestrator) onContextWindowUpdated(data []byte) {
	var msg protocol.ContextWindowUpdated
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	o.store.Update(func(st *store.AgentState) { st.ContextWindow = msg.ContextWindow })
	o.logger.Info("context window updated", zap.Int("context_window", msg.ContextWindow))
}

func (o *Orchestrator) onContextWindowError(data []byte) {
	var msg protocol.ContextWindowError
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	o.surfaceError(msg.Error)
}

// surfaceError replaces the single most-recent error; each new error
// overwrites the previous one rather than accumulating.
func (o *Orchestrator) surfaceError(msg string) {
	if msg == "" {
		msg = "unknown error"
	}
	o.store.Update(func(st *store.AgentState) { st.LastError = msg })
}
