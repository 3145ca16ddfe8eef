package store

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T, retention time.Duration) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), retention, testLogger())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return s
}

func writeArtifact(t *testing.T, s *Store, age time.Duration) string {
	t.Helper()
	path := s.NewPath("wav")
	if err := os.WriteFile(path, []byte("audio"), 0644); err != nil {
		t.Fatalf("Failed to write artifact: %v", err)
	}
	if age > 0 {
		old := time.Now().Add(-age)
		if err := os.Chtimes(path, old, old); err != nil {
			t.Fatalf("Failed to age artifact: %v", err)
		}
	}
	return path
}

func TestNewStoreCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "artifacts")

	if _, err := NewStore(dir, time.Hour, testLogger()); err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Errorf("Expected artifact directory to exist: %v", err)
	}
}

func TestNewStoreValidation(t *testing.T) {
	if _, err := NewStore("", time.Hour, testLogger()); err == nil {
		t.Error("Expected error for empty directory")
	}
	if _, err := NewStore(t.TempDir(), -time.Hour, testLogger()); err == nil {
		t.Error("Expected error for negative retention")
	}
}

func TestNewPathUniqueness(t *testing.T) {
	s := newTestStore(t, time.Hour)

	a := s.NewPath("wav")
	b := s.NewPath("wav")

	if a == b {
		t.Error("Expected unique artifact paths")
	}
	if !strings.HasSuffix(a, ".wav") {
		t.Errorf("Expected .wav suffix, got %q", a)
	}
	if !strings.HasPrefix(a, s.Dir()) {
		t.Errorf("Expected path under store dir, got %q", a)
	}

	// Leading dot in the extension is tolerated
	if c := s.NewPath(".mp3"); !strings.HasSuffix(c, ".mp3") || strings.Contains(c, "..") {
		t.Errorf("Unexpected path for dotted extension: %q", c)
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	s := newTestStore(t, time.Hour)

	expired := writeArtifact(t, s, 2*time.Hour)
	fresh := writeArtifact(t, s, 0)

	removed, err := s.Sweep()
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	if removed != 1 {
		t.Errorf("Expected 1 artifact removed, got %d", removed)
	}
	if _, err := os.Stat(expired); !os.IsNotExist(err) {
		t.Error("Expected expired artifact deleted")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("Expected fresh artifact kept: %v", err)
	}
}

func TestSweepSkipsPinned(t *testing.T) {
	s := newTestStore(t, time.Hour)

	pinned := writeArtifact(t, s, 2*time.Hour)
	s.Pin(pinned)

	removed, err := s.Sweep()
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	if removed != 0 {
		t.Errorf("Expected pinned artifact skipped, removed %d", removed)
	}
	if _, err := os.Stat(pinned); err != nil {
		t.Errorf("Expected pinned artifact to survive: %v", err)
	}

	// After unpinning the artifact is fair game
	s.Unpin(pinned)
	removed, err = s.Sweep()
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected unpinned artifact removed, got %d", removed)
	}
}

func TestSweepDisabledWithZeroRetention(t *testing.T) {
	s := newTestStore(t, 0)

	old := writeArtifact(t, s, 100*time.Hour)

	removed, err := s.Sweep()
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	if removed != 0 {
		t.Errorf("Expected no sweep with zero retention, removed %d", removed)
	}
	if _, err := os.Stat(old); err != nil {
		t.Errorf("Expected artifact kept: %v", err)
	}
}

func TestRemoveDropsPinAndFile(t *testing.T) {
	s := newTestStore(t, time.Hour)

	path := writeArtifact(t, s, 0)
	s.Pin(path)

	if err := s.Remove(path); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	if s.Pinned(path) {
		t.Error("Expected pin dropped on remove")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Expected file deleted")
	}

	// Removing a missing file is not an error
	if err := s.Remove(path); err != nil {
		t.Errorf("Expected idempotent remove, got %v", err)
	}
}

func TestSweeperLoop(t *testing.T) {
	s := newTestStore(t, 50*time.Millisecond)

	expired := writeArtifact(t, s, time.Hour)

	s.StartSweeper(10 * time.Millisecond)
	defer s.Close()

	deadline := time.After(2 * time.Second)
	for {
		if _, err := os.Stat(expired); os.IsNotExist(err) {
			return
		}
		select {
		case <-deadline:
			t.Fatal("Sweeper never removed the expired artifact")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
