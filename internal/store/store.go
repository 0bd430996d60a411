// Package store holds the latest observable agent state. Writers overwrite
// unconditionally (last write wins) and readers get a consistent copy, so
// the status surface never blocks the streaming path.
package store

import (
	"sync"
	"time"

	"github.com/livevlm/livevlm-agent/internal/protocol"
)

// AgentState is the publishable view of the agent at one instant.
type AgentState struct {
	ConnectionState string                        `json:"connection_state"`
	SessionID       string                        `json:"session_id,omitempty"`
	SessionActive   bool                          `json:"session_active"`
	PacerState      string                        `json:"pacer_state"`
	InFlight        bool                          `json:"in_flight"`
	FrameCount      int                           `json:"frame_count"`
	ErrorCount      int                           `json:"error_count"`
	LastResponse    string                        `json:"last_response,omitempty"`
	LastError       string                        `json:"last_error,omitempty"`
	Summary         string                        `json:"summary,omitempty"`
	ContextWindow   int                           `json:"context_window,omitempty"`
	Stats           *protocol.SessionStatsPayload `json:"stats,omitempty"`
	Models          []string                      `json:"models,omitempty"`
	Model           string                        `json:"model,omitempty"`
	UpdatedAt       time.Time                     `json:"updated_at"`
}

// Store is a single-value last-write-wins state container with fan-out
// change notification. Slow subscribers miss intermediate states rather
// than stalling writers.
type Store struct {
	mu    sync.RWMutex
	state AgentState

	subMu  sync.Mutex
	subs   map[int]chan AgentState
	nextID int
}

// New returns an empty store.
func New() *Store {
	return &Store{subs: make(map[int]chan AgentState)}
}

// Update merges mutations into the state under the write lock and fans the
// new state out to subscribers.
func (s *Store) Update(fn func(*AgentState)) {
	s.mu.Lock()
	fn(&s.state)
	s.state.UpdatedAt = time.Now()
	snapshot := s.state
	s.mu.Unlock()

	s.notify(snapshot)
}

// Get returns a copy of the current state.
func (s *Store) Get() AgentState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe registers for state change notifications. The returned cancel
// function must be called to release the subscription. Sends to the channel
// never block; a subscriber that falls behind sees only the latest states.
func (s *Store) Subscribe() (<-chan AgentState, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan AgentState, 8)
	s.subs[id] = ch

	cancel := func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

func (s *Store) notify(state AgentState) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- state:
		default:
		}
	}
}
