package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRegistryOneSessionPerChannel(t *testing.T) {
	reg := NewRegistry(testLogger(), &stubRunner{}, 48000)

	if _, err := reg.Start(100); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if _, err := reg.Start(100); !errors.Is(err, ErrAlreadyRecording) {
		t.Errorf("Expected ErrAlreadyRecording, got %v", err)
	}

	// Other channels are independent
	if _, err := reg.Start(200); err != nil {
		t.Errorf("Unexpected error for second channel: %v", err)
	}

	if reg.ActiveCount() != 2 {
		t.Errorf("Expected 2 active sessions, got %d", reg.ActiveCount())
	}
}

func TestRegistryConcurrentStartExactlyOne(t *testing.T) {
	reg := NewRegistry(testLogger(), &stubRunner{}, 48000)

	const starters = 10
	var wg sync.WaitGroup
	var wins atomic.Int64

	for i := 0; i < starters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := reg.Start(7); err == nil {
				wins.Add(1)
			}
		}()
	}

	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("Expected exactly one winning start, got %d", wins.Load())
	}
}

func TestRegistryStopReleasesChannel(t *testing.T) {
	reg := NewRegistry(testLogger(), &stubRunner{}, 48000)

	if _, err := reg.Start(100); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := reg.Ingest(100, 1, time.Now(), make([]byte, 320)); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	result, err := reg.Stop(context.Background(), 100)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if result == nil || result.Transcript == "" {
		t.Error("Expected a processing result from stop")
	}

	if reg.ActiveCount() != 0 {
		t.Errorf("Expected channel released after stop, got %d active", reg.ActiveCount())
	}

	// Channel is immediately available for a new recording
	if _, err := reg.Start(100); err != nil {
		t.Errorf("Expected restart after stop, got %v", err)
	}
}

func TestRegistryStopUnknownChannel(t *testing.T) {
	reg := NewRegistry(testLogger(), &stubRunner{}, 48000)

	if _, err := reg.Stop(context.Background(), 999); !errors.Is(err, ErrNotRecording) {
		t.Errorf("Expected ErrNotRecording, got %v", err)
	}
}

func TestRegistryIngestUnknownChannel(t *testing.T) {
	reg := NewRegistry(testLogger(), &stubRunner{}, 48000)

	err := reg.Ingest(999, 1, time.Now(), make([]byte, 320))
	if !errors.Is(err, ErrNotRecording) {
		t.Errorf("Expected ErrNotRecording, got %v", err)
	}
}

func TestRegistryFailedStopStillReleases(t *testing.T) {
	reg := NewRegistry(testLogger(), &stubRunner{err: errors.New("boom")}, 48000)

	if _, err := reg.Start(100); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if _, err := reg.Stop(context.Background(), 100); err == nil {
		t.Fatal("Expected stop to fail")
	}

	if reg.ActiveCount() != 0 {
		t.Errorf("Expected failed session released, got %d active", reg.ActiveCount())
	}
}

func TestRegistryJanitorStopsStaleSessions(t *testing.T) {
	runner := &stubRunner{}
	reg := NewRegistry(testLogger(), runner, 48000)

	if _, err := reg.Start(100); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	reg.StartJanitor(30*time.Millisecond, 10*time.Millisecond)
	defer reg.Close()

	deadline := time.After(2 * time.Second)
	for reg.ActiveCount() > 0 {
		select {
		case <-deadline:
			t.Fatal("Janitor never stopped the stale session")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if runner.calls.Load() != 1 {
		t.Errorf("Expected stale session processed once, got %d", runner.calls.Load())
	}
}

func TestProcessingResultSummary(t *testing.T) {
	full := &ProcessingResult{Transcript: "t", Minutes: "m", Duration: 90 * time.Second}
	if got := full.Summary(); got == "" || full.Partial() {
		t.Errorf("Unexpected full-success summary: %q", got)
	}

	partial := &ProcessingResult{
		Transcript: "t",
		Errors:     []StageError{{Stage: "minutes", Kind: "quota_exceeded", Message: "429"}},
	}
	if !partial.Partial() {
		t.Error("Expected partial result")
	}
	if got := partial.Summary(); got == "" {
		t.Error("Expected non-empty partial summary")
	}

	nothing := &ProcessingResult{
		Errors: []StageError{{Stage: "mix", Kind: "error", Message: "no audio captured"}},
	}
	if nothing.Succeeded() || nothing.Partial() {
		t.Error("Expected neither success nor partial")
	}
	if got := nothing.Summary(); got == "" {
		t.Error("Expected non-empty failure summary")
	}
}
