// Package transport maintains the persistent WebSocket channel to the
// backend. The channel reconnects with linear backoff, dispatches inbound
// messages by their type field, and refuses sends while disconnected so
// callers fail fast instead of queueing into a dead socket.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/livevlm/livevlm-agent/internal/metrics"
	"github.com/livevlm/livevlm-agent/internal/protocol"
)

// ConnectionState represents the state of the WebSocket channel
type ConnectionState string

const (
	StateDisconnected ConnectionState = "DISCONNECTED"
	StateConnecting   ConnectionState = "CONNECTING"
	StateConnected    ConnectionState = "CONNECTED"
	StateReconnecting ConnectionState = "RECONNECTING"
	StateFailed       ConnectionState = "FAILED"
)

// ErrNotConnected is returned by Send when the channel is not connected.
// Messages are dropped, never queued for a later connection.
var ErrNotConnected = errors.New("channel not connected")

// Handler processes one inbound message payload.
type Handler func(data []byte)

// Options configure the channel.
type Options struct {
	URL string

	// BaseDelay is the reconnect backoff unit; attempt n waits n*BaseDelay.
	BaseDelay time.Duration

	// MaxAttempts bounds consecutive failed reconnects before the channel
	// enters StateFailed and stops trying.
	MaxAttempts int

	PingInterval time.Duration
	WriteTimeout time.Duration
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.BaseDelay <= 0 {
		out.BaseDelay = time.Second
	}
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 5
	}
	if out.PingInterval <= 0 {
		out.PingInterval = 30 * time.Second
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = 10 * time.Second
	}
	return out
}

// Channel is a persistent WebSocket connection with typed dispatch and
// automatic reconnect. Register handlers before calling Connect.
type Channel struct {
	opts   Options
	logger *zap.Logger
	dialer *websocket.Dialer

	mu             sync.RWMutex
	state          ConnectionState
	conn           *websocket.Conn
	connectedAt    time.Time
	lastPong       time.Time
	reconnectCount int

	writeMu sync.Mutex

	handlers  map[string]Handler
	unhandled Handler
	onError   func(error)

	stateChan chan ConnectionState
	stopChan  chan struct{}
	stopOnce  sync.Once
}

// NewChannel creates a disconnected channel for the given backend URL.
func NewChannel(opts Options, logger *zap.Logger) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{
		opts:      opts.withDefaults(),
		logger:    logger,
		dialer:    &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		state:     StateDisconnected,
		handlers:  make(map[string]Handler),
		stateChan: make(chan ConnectionState, 10),
		stopChan:  make(chan struct{}),
	}
}

// OnMessage registers the handler for one inbound message type. Must be
// called before Connect.
func (c *Channel) OnMessage(msgType string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[msgType] = h
}

// OnUnhandled registers a fallback for inbound types with no handler.
func (c *Channel) OnUnhandled(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unhandled = h
}

// OnError registers a callback for transport-level failures. It fires on
// read errors, reconnect failures, and final StateFailed entry.
func (c *Channel) OnError(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

// Connect establishes the WebSocket connection and starts the read and
// ping loops. Calling Connect while a connection exists tears the old one
// down first and dials fresh; connections never stack. A channel in
// StateFailed can be reconnected explicitly.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnecting {
		c.mu.Unlock()
		return fmt.Errorf("connect already in progress")
	}
	if c.conn != nil {
		// The old read pump sees its conn go stale and exits without
		// scheduling a reconnect.
		old := c.conn
		c.conn = nil
		_ = old.Close()
	}
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	if err := c.dial(ctx); err != nil {
		c.mu.Lock()
		c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *Channel) dial(ctx context.Context) error {
	c.logger.Info("connecting to backend", zap.String("url", c.opts.URL))

	conn, _, err := c.dialer.DialContext(ctx, c.opts.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", c.opts.URL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connectedAt = time.Now()
	c.lastPong = time.Now()
	c.setStateLocked(StateConnected)
	c.mu.Unlock()

	metrics.ChannelConnected.Set(1)
	c.logger.Info("channel connected", zap.String("url", c.opts.URL))

	go c.readPump(conn)
	go c.pingLoop(conn)
	return nil
}

// Close shuts the channel down permanently.
func (c *Channel) Close() error {
	c.stopOnce.Do(func() { close(c.stopChan) })

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = c.conn.Close()
		c.conn = nil
	}
	c.setStateLocked(StateDisconnected)
	metrics.ChannelConnected.Set(0)
	return nil
}

// Send marshals v and writes it to the channel. It returns ErrNotConnected
// when the channel is not in StateConnected; the message is then dropped.
func (c *Channel) Send(msgType string, v interface{}) error {
	c.mu.RLock()
	if c.state != StateConnected || c.conn == nil {
		c.mu.RUnlock()
		c.logger.Warn("dropping outbound message, channel not connected",
			zap.String("type", msgType), zap.String("state", string(c.state)))
		return ErrNotConnected
	}
	conn := c.conn
	c.mu.RUnlock()

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s message: %w", msgType, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write %s message: %w", msgType, err)
	}
	metrics.ChannelMessagesTotal.WithLabelValues("outbound", msgType).Inc()
	return nil
}

// State returns the current connection state.
func (c *Channel) State() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsConnected reports whether the channel is connected.
func (c *Channel) IsConnected() bool {
	return c.State() == StateConnected
}

// StateChanges returns the channel for connection state transitions. Slow
// consumers miss intermediate states rather than blocking the transport.
func (c *Channel) StateChanges() <-chan ConnectionState {
	return c.stateChan
}

// Stats returns connection statistics.
func (c *Channel) Stats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var connectedDuration time.Duration
	if c.state == StateConnected {
		connectedDuration = time.Since(c.connectedAt)
	}
	return map[string]interface{}{
		"state":              c.state,
		"connected_at":       c.connectedAt,
		"connected_duration": connectedDuration.String(),
		"reconnect_count":    c.reconnectCount,
	}
}

// setStateLocked changes the state and notifies listeners. Callers hold mu.
func (c *Channel) setStateLocked(state ConnectionState) {
	if c.state == state {
		return
	}
	c.state = state

	// Non-blocking send to state channel
	select {
	case c.stateChan <- state:
	default:
	}
}

func (c *Channel) readPump(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.stopChan:
				return
			default:
			}

			c.mu.RLock()
			stale := c.conn != conn
			c.mu.RUnlock()
			if stale {
				// Replaced by a newer Connect, not a transport failure.
				return
			}

			c.logger.Warn("read error, will reconnect", zap.Error(err))
			metrics.ChannelConnected.Set(0)
			c.reportError(err)
			go c.reconnectWithBackoff()
			return
		}
		c.dispatch(data)
	}
}

func (c *Channel) dispatch(data []byte) {
	msgType, err := protocol.PeekType(data)
	if err != nil {
		metrics.ChannelMalformedTotal.Inc()
		c.logger.Warn("dropping malformed inbound payload", zap.Error(err))
		return
	}
	metrics.ChannelMessagesTotal.WithLabelValues("inbound", msgType).Inc()

	// Any inbound traffic proves the peer is alive, not just pong.
	c.mu.Lock()
	c.lastPong = time.Now()
	c.mu.Unlock()

	c.mu.RLock()
	h, ok := c.handlers[msgType]
	fallback := c.unhandled
	c.mu.RUnlock()

	if !ok {
		if fallback != nil {
			fallback(data)
			return
		}
		c.logger.Debug("no handler for inbound message", zap.String("type", msgType))
		return
	}
	h(data)
}

func (c *Channel) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.mu.RLock()
			current := c.conn
			connected := c.state == StateConnected
			c.mu.RUnlock()

			if !connected || current != conn {
				return
			}

			// Two missed ping intervals without a pong means the peer is
			// gone; close the socket so the read pump reconnects.
			c.mu.RLock()
			lastPong := c.lastPong
			c.mu.RUnlock()
			if time.Since(lastPong) > 2*c.opts.PingInterval {
				c.logger.Warn("pong deadline exceeded, closing connection",
					zap.Time("last_pong", lastPong))
				_ = conn.Close()
				return
			}

			if err := c.Send(protocol.TypePing, protocol.Ping{Type: protocol.TypePing}); err != nil {
				c.logger.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}

// reconnectWithBackoff retries the connection with linear backoff: attempt
// n waits n*BaseDelay. After MaxAttempts consecutive failures the channel
// enters StateFailed and stays there until an explicit Connect.
func (c *Channel) reconnectWithBackoff() {
	c.mu.Lock()
	if c.state == StateReconnecting || c.state == StateConnecting {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.setStateLocked(StateReconnecting)
	c.mu.Unlock()

	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		delay := time.Duration(attempt) * c.opts.BaseDelay

		c.logger.Info("reconnect attempt",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.opts.MaxAttempts),
			zap.Duration("delay", delay))

		timer := time.NewTimer(delay)
		select {
		case <-c.stopChan:
			timer.Stop()
			return
		case <-timer.C:
		}

		c.mu.Lock()
		if c.state != StateReconnecting {
			// An explicit Connect took over while we waited.
			c.mu.Unlock()
			return
		}
		c.reconnectCount++
		c.mu.Unlock()
		metrics.ChannelReconnects.Inc()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.dial(ctx)
		cancel()
		if err == nil {
			c.logger.Info("reconnected", zap.Int("attempts", attempt))
			return
		}

		c.logger.Warn("reconnect attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		c.reportError(err)
	}

	c.mu.Lock()
	c.setStateLocked(StateFailed)
	c.mu.Unlock()

	err := fmt.Errorf("reconnect gave up after %d attempts", c.opts.MaxAttempts)
	c.logger.Error("channel failed", zap.Error(err))
	c.reportError(err)
}

func (c *Channel) reportError(err error) {
	c.mu.RLock()
	fn := c.onError
	c.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}
