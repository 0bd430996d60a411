package store

import (
	"testing"
	"time"
)

func TestStoreUpdateAndGet(t *testing.T) {
	s := New()
	s.Update(func(st *AgentState) {
		st.ConnectionState = "connected"
		st.SessionID = "sess-1"
		st.SessionActive = true
	})

	got := s.Get()
	if got.ConnectionState != "connected" {
		t.Errorf("expected connection state connected, got %q", got.ConnectionState)
	}
	if got.SessionID != "sess-1" || !got.SessionActive {
		t.Errorf("unexpected session state: %+v", got)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should be set on update")
	}
}

func TestStoreLastWriteWins(t *testing.T) {
	s := New()
	s.Update(func(st *AgentState) { st.LastResponse = "first" })
	s.Update(func(st *AgentState) { st.LastResponse = "second" })

	if got := s.Get().LastResponse; got != "second" {
		t.Errorf("expected last write to win, got %q", got)
	}
}

func TestStoreSubscribe(t *testing.T) {
	s := New()
	ch, cancel := s.Subscribe()
	defer cancel()

	s.Update(func(st *AgentState) { st.PacerState = "armed" })

	select {
	case state := <-ch:
		if state.PacerState != "armed" {
			t.Errorf("expected pacer state armed, got %q", state.PacerState)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
	}
}

func TestStoreSubscribeCancel(t *testing.T) {
	s := New()
	ch, cancel := s.Subscribe()
	cancel()

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}

	// Update after cancel must not panic.
	s.Update(func(st *AgentState) { st.FrameCount = 1 })
}

func TestStoreSlowSubscriberDoesNotBlock(t *testing.T) {
	s := New()
	_, cancel := s.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		// More updates than the subscriber buffer; writer must not stall.
		for i := 0; i < 100; i++ {
			s.Update(func(st *AgentState) { st.FrameCount = i })
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("updates blocked on a slow subscriber")
	}
}
