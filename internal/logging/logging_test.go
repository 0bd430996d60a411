package logging

import (
	"path/filepath"
	"testing"
)

func TestNewDefaults(t *testing.T) {
	logger, err := New(nil)
	if err != nil {
		t.Fatalf("New(nil) failed: %v", err)
	}
	logger.Info("startup message")
	_ = logger.Sync()
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(&Config{Level: "verbose"})
	if err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestNewRejectsBadFormat(t *testing.T) {
	_, err := New(&Config{Level: "info", Format: "xml"})
	if err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestNewWithFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.log")
	logger, err := New(&Config{Level: "debug", Format: "json", FilePath: path})
	if err != nil {
		t.Fatalf("New with file sink failed: %v", err)
	}
	logger.Debug("file sink message")
	_ = logger.Sync()
}
