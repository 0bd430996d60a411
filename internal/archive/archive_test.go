package archive

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/livevlm/livevlm-agent/internal/session"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestArchiveAppendAndQuery(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		err := a.AppendFrame(ctx, "sess-1", session.FrameRecord{
			FrameID:        "f" + string(rune('0'+i)),
			Prompt:         "What is in this image?",
			Response:       "a desk",
			Model:          "gemini-2.0-flash",
			ProcessingTime: 1.5,
			Success:        true,
			Timestamp:      base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("AppendFrame failed: %v", err)
		}
	}

	frames, err := a.Frames(ctx, "sess-1", 0)
	if err != nil {
		t.Fatalf("Frames failed: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}
	if frames[0].FrameID != "f0" || frames[2].FrameID != "f2" {
		t.Errorf("frames out of order: %v, %v", frames[0].FrameID, frames[2].FrameID)
	}
	if frames[0].Model != "gemini-2.0-flash" || !frames[0].Success {
		t.Errorf("unexpected frame content: %+v", frames[0])
	}
}

func TestArchiveFramesLimit(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		err := a.AppendFrame(ctx, "sess-1", session.FrameRecord{
			FrameID:   "frame",
			Success:   true,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("AppendFrame failed: %v", err)
		}
	}

	frames, err := a.Frames(ctx, "sess-1", 2)
	if err != nil {
		t.Fatalf("Frames failed: %v", err)
	}
	if len(frames) != 2 {
		t.Errorf("expected 2 frames with limit, got %d", len(frames))
	}
}

func TestArchiveSessions(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	now := time.Now().UTC()
	if err := a.AppendFrame(ctx, "sess-old", session.FrameRecord{Success: true, Timestamp: now.Add(-time.Hour)}); err != nil {
		t.Fatalf("AppendFrame failed: %v", err)
	}
	if err := a.AppendFrame(ctx, "sess-new", session.FrameRecord{Success: true, Timestamp: now}); err != nil {
		t.Fatalf("AppendFrame failed: %v", err)
	}
	if err := a.AppendFrame(ctx, "sess-new", session.FrameRecord{Success: true, Timestamp: now}); err != nil {
		t.Fatalf("AppendFrame failed: %v", err)
	}

	sessions, err := a.Sessions(ctx, 10)
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	// Most recently seen first.
	if sessions[0].ID != "sess-new" || sessions[0].FrameCount != 2 {
		t.Errorf("unexpected first session: %+v", sessions[0])
	}
}

func TestArchiveDeleteSession(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	if err := a.AppendFrame(ctx, "sess-1", session.FrameRecord{Success: true}); err != nil {
		t.Fatalf("AppendFrame failed: %v", err)
	}
	if err := a.DeleteSession(ctx, "sess-1"); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}

	// Cascade removes the frames too.
	frames, err := a.Frames(ctx, "sess-1", 0)
	if err != nil {
		t.Fatalf("Frames failed: %v", err)
	}
	if len(frames) != 0 {
		t.Errorf("expected no frames after delete, got %d", len(frames))
	}

	if err := a.DeleteSession(ctx, "sess-1"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected ErrNoRows for missing session, got %v", err)
	}
}

func TestArchiveRejectsEmptySessionID(t *testing.T) {
	a := openTestArchive(t)
	if err := a.AppendFrame(context.Background(), "", session.FrameRecord{}); err == nil {
		t.Fatal("expected error for empty session id")
	}
}

func TestArchiveMigrationIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.db")

	a, err := Open(path)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	a.Close()

	// Reopening runs migrate again; applied versions must be skipped.
	a, err = Open(path)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer a.Close()

	if err := a.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
