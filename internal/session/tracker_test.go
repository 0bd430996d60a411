package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/livevlm/livevlm-agent/internal/protocol"
)

func TestTrackerStartSession(t *testing.T) {
	tr := NewTracker(10)
	if tr.Active() {
		t.Fatal("new tracker should not be active")
	}

	tr.StartSession("sess-1")
	if !tr.Active() {
		t.Fatal("tracker should be active after StartSession")
	}
	if got := tr.SessionID(); got != "sess-1" {
		t.Errorf("expected session ID sess-1, got %q", got)
	}
}

func TestTrackerStartSessionResetsState(t *testing.T) {
	tr := NewTracker(10)
	tr.StartSession("sess-1")
	tr.RecordFrame(FrameRecord{FrameID: "f1", Success: true})
	tr.SetTemporalContext(&protocol.TemporalContext{RecentResponses: []string{"a dog"}})

	tr.StartSession("sess-2")
	if len(tr.History()) != 0 {
		t.Error("history should be empty after new session")
	}
	if tr.TemporalContext() != nil {
		t.Error("context should be nil after new session")
	}
	if tr.Stats().FrameCount != 0 {
		t.Error("frame count should reset on new session")
	}
}

func TestTrackerHistoryFIFOCap(t *testing.T) {
	tr := NewTracker(3)
	tr.StartSession("sess-1")
	for i := 0; i < 5; i++ {
		tr.RecordFrame(FrameRecord{FrameID: fmt.Sprintf("f%d", i), Success: true})
	}

	history := tr.History()
	if len(history) != 3 {
		t.Fatalf("expected history capped at 3, got %d", len(history))
	}
	// Oldest two records evicted; newest three retained in order.
	want := []string{"f2", "f3", "f4"}
	for i, rec := range history {
		if rec.FrameID != want[i] {
			t.Errorf("history[%d] = %q, want %q", i, rec.FrameID, want[i])
		}
	}
	// Stats count all recorded frames, not just retained ones.
	if got := tr.Stats().FrameCount; got != 5 {
		t.Errorf("expected frame count 5, got %d", got)
	}
}

func TestTrackerContextReplacedWholesale(t *testing.T) {
	tr := NewTracker(10)
	tr.StartSession("sess-1")
	tr.SetTemporalContext(&protocol.TemporalContext{RecentResponses: []string{"one", "two"}})
	tr.SetTemporalContext(&protocol.TemporalContext{RecentResponses: []string{"three"}})

	ctx := tr.TemporalContext()
	if ctx == nil {
		t.Fatal("expected context to be set")
	}
	if len(ctx.RecentResponses) != 1 || ctx.RecentResponses[0] != "three" {
		t.Errorf("context should be replaced, not merged: %+v", ctx.RecentResponses)
	}
}

func TestTrackerClearKeepsSession(t *testing.T) {
	tr := NewTracker(10)
	tr.StartSession("sess-1")
	tr.RecordFrame(FrameRecord{FrameID: "f1", Success: true})
	tr.SetTemporalContext(&protocol.TemporalContext{RecentResponses: []string{"x"}})

	tr.Clear()
	if !tr.Active() {
		t.Error("Clear should not end the session")
	}
	if len(tr.History()) != 0 {
		t.Error("Clear should empty the history")
	}
	if tr.TemporalContext() != nil {
		t.Error("Clear should drop the context")
	}
}

func TestTrackerEndSessionKeepsHistory(t *testing.T) {
	tr := NewTracker(10)
	tr.StartSession("sess-1")
	tr.RecordFrame(FrameRecord{FrameID: "f1", Success: true})

	tr.EndSession()
	if tr.Active() {
		t.Error("tracker should be inactive after EndSession")
	}
	if tr.SessionID() != "" {
		t.Error("ended session should not report a session ID")
	}
	if len(tr.History()) != 1 {
		t.Error("EndSession should retain history for review")
	}
}

func TestTrackerStats(t *testing.T) {
	tr := NewTracker(10)
	tr.StartSession("sess-1")
	tr.RecordFrame(FrameRecord{FrameID: "f1", Success: true, ProcessingTime: 2.0})
	tr.RecordFrame(FrameRecord{FrameID: "f2", Success: true, ProcessingTime: 4.0})
	tr.RecordFrame(FrameRecord{FrameID: "f3", Success: false, Error: "backend unavailable"})

	s := tr.Stats()
	if s.FrameCount != 3 || s.SuccessCount != 2 || s.ErrorCount != 1 {
		t.Errorf("unexpected counts: %+v", s)
	}
	if s.AvgProcessTime != 3.0 {
		t.Errorf("expected avg process time 3.0, got %f", s.AvgProcessTime)
	}
	if s.LastFrameAt.IsZero() {
		t.Error("expected last frame timestamp to be set")
	}
}

func TestTrackerSnapshot(t *testing.T) {
	tr := NewTracker(10)
	tr.StartSession("sess-1")
	tr.RecordFrame(FrameRecord{FrameID: "f1", Success: true, Timestamp: time.Now()})
	tr.SetTemporalContext(&protocol.TemporalContext{RecentResponses: []string{"a cat"}})

	snap := tr.Snapshot()
	if snap.Stats.SessionID != "sess-1" {
		t.Errorf("unexpected snapshot session ID %q", snap.Stats.SessionID)
	}
	if len(snap.History) != 1 {
		t.Errorf("expected 1 history record, got %d", len(snap.History))
	}
	if snap.Context == nil || len(snap.Context.RecentResponses) != 1 {
		t.Error("expected context in snapshot")
	}

	// Snapshot history is a copy; later records must not leak in.
	tr.RecordFrame(FrameRecord{FrameID: "f2", Success: true})
	if len(snap.History) != 1 {
		t.Error("snapshot should be immune to later writes")
	}
}
