package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ikeikeda/discord-voice-to-text/internal/analysis"
	"github.com/ikeikeda/discord-voice-to-text/internal/audio"
	"github.com/ikeikeda/discord-voice-to-text/internal/compress"
	"github.com/ikeikeda/discord-voice-to-text/internal/minutes"
	"github.com/ikeikeda/discord-voice-to-text/internal/preprocess"
	"github.com/ikeikeda/discord-voice-to-text/internal/providers"
	"github.com/ikeikeda/discord-voice-to-text/internal/session"
	"github.com/ikeikeda/discord-voice-to-text/internal/store"
	"github.com/ikeikeda/discord-voice-to-text/internal/transcription"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTranscriber returns a canned transcript or error.
type fakeTranscriber struct {
	text  string
	err   error
	calls atomic.Int64
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioPath string, opts transcription.Options) (*transcription.Result, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	if _, err := os.Stat(audioPath); err != nil {
		return nil, fmt.Errorf("audio artifact missing: %w", err)
	}
	return &transcription.Result{Text: f.text}, nil
}

// fakeProvider returns canned minutes or fails a set number of times.
type fakeProvider struct {
	body     string
	failures int
	calls    atomic.Int64
	err      error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) GenerateMinutes(ctx context.Context, transcript string, hints minutes.Hints) (string, error) {
	n := f.calls.Add(1)
	if f.err != nil && int(n) <= f.failures {
		return "", f.err
	}
	return f.body, nil
}

func loudPCM(n int, amplitude int16) []byte {
	pcm := make([]byte, n*2)
	for i := 0; i < n; i++ {
		pcm[i*2] = byte(uint16(amplitude))
		pcm[i*2+1] = byte(uint16(amplitude) >> 8)
	}
	return pcm
}

func testRecording(t *testing.T, withAudio bool) *session.Recording {
	t.Helper()

	const rate = 1000
	t0 := time.Unix(100, 0)

	alice := audio.NewSpeakerBuffer(1, "alice", rate)
	bob := audio.NewSpeakerBuffer(2, "bob", rate)

	if withAudio {
		if err := alice.Append(t0, loudPCM(3*rate, 8000)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		if err := bob.Append(t0.Add(time.Second), loudPCM(rate, 8000)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	alice.Freeze()
	bob.Freeze()

	return &session.Recording{
		SessionID:  "test-session",
		ChannelID:  42,
		StartedAt:  t0,
		StoppedAt:  t0.Add(5 * time.Second),
		SampleRate: rate,
		Speakers:   []*audio.SpeakerBuffer{alice, bob},
	}
}

type pipelineParts struct {
	store       *store.Store
	transcriber Transcriber
	provider    minutes.Provider
}

func newTestPipeline(t *testing.T, parts pipelineParts) *Pipeline {
	t.Helper()

	if parts.store == nil {
		st, err := store.NewStore(t.TempDir(), time.Hour, testLogger())
		if err != nil {
			t.Fatalf("NewStore failed: %v", err)
		}
		parts.store = st
	}

	pre, err := preprocess.NewProcessor(false, "", nil, testLogger())
	if err != nil {
		t.Fatalf("NewProcessor failed: %v", err)
	}

	// Generous ceiling: the mixed WAV fits without re-encoding
	encode := func(ctx context.Context, src, dst string, b, r, c int) error {
		return os.WriteFile(dst, []byte("mp3"), 0644)
	}
	comp, err := compress.NewCompressor(100<<20, compress.DefaultLadder, encode, testLogger())
	if err != nil {
		t.Fatalf("NewCompressor failed: %v", err)
	}

	analyzer, err := analysis.NewAnalyzer(500, 20)
	if err != nil {
		t.Fatalf("NewAnalyzer failed: %v", err)
	}

	p, err := New(parts.store, pre, comp, parts.transcriber, parts.provider, analyzer, nil, testLogger(), Config{
		MessageChunkSize: 1900,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	return p
}

func TestRunFullSuccess(t *testing.T) {
	tx := &fakeTranscriber{text: "  we um agreed to ship  "}
	mp := &fakeProvider{body: "## Summary\n- ship it"}

	p := newTestPipeline(t, pipelineParts{transcriber: tx, provider: mp})

	result, err := p.Run(context.Background(), testRecording(t, true))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !result.Succeeded() {
		t.Fatalf("Expected full success, got %+v", result)
	}

	// Transcript was postprocessed: fillers removed, whitespace collapsed
	if result.Transcript != "we agreed to ship" {
		t.Errorf("Unexpected transcript: %q", result.Transcript)
	}

	if result.Minutes != "## Summary\n- ship it" {
		t.Errorf("Unexpected minutes: %q", result.Minutes)
	}

	if len(result.Chunks) != 1 {
		t.Errorf("Expected single message chunk, got %d", len(result.Chunks))
	}

	if len(result.SpeakerStats) != 2 {
		t.Errorf("Expected stats for both speakers, got %d", len(result.SpeakerStats))
	}

	if len(result.Errors) != 0 {
		t.Errorf("Expected no stage errors, got %v", result.Errors)
	}

	if result.Duration != 5*time.Second {
		t.Errorf("Expected 5s recorded duration, got %v", result.Duration)
	}
}

func TestRunEmptyRecordingAbortsBeforeNetwork(t *testing.T) {
	tx := &fakeTranscriber{text: "never used"}
	mp := &fakeProvider{body: "never used"}

	p := newTestPipeline(t, pipelineParts{transcriber: tx, provider: mp})

	result, err := p.Run(context.Background(), testRecording(t, false))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Transcript != "" || result.Minutes != "" {
		t.Errorf("Expected nothing produced, got %+v", result)
	}

	if len(result.Errors) != 1 || result.Errors[0].Stage != "mix" {
		t.Fatalf("Expected single mix stage error, got %v", result.Errors)
	}

	// No network calls happened
	if tx.calls.Load() != 0 || mp.calls.Load() != 0 {
		t.Errorf("Expected boundary clients untouched, got tx=%d minutes=%d",
			tx.calls.Load(), mp.calls.Load())
	}
}

func TestRunSkewedTimestampAbortsBeforeNetwork(t *testing.T) {
	tx := &fakeTranscriber{text: "never used"}
	mp := &fakeProvider{body: "never used"}

	p := newTestPipeline(t, pipelineParts{transcriber: tx, provider: mp})

	// One forged frame timestamp stretches the timeline past the mixer's
	// span ceiling
	const rate = 1000
	t0 := time.Unix(100, 0)
	alice := audio.NewSpeakerBuffer(1, "alice", rate)
	if err := alice.Append(t0, loudPCM(rate, 8000)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := alice.Append(t0.Add(72*time.Hour), loudPCM(10, 8000)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	alice.Freeze()

	rec := &session.Recording{
		SessionID:  "skewed-session",
		ChannelID:  42,
		StartedAt:  t0,
		StoppedAt:  t0.Add(5 * time.Second),
		SampleRate: rate,
		Speakers:   []*audio.SpeakerBuffer{alice},
	}

	result, err := p.Run(context.Background(), rec)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Errors) != 1 || result.Errors[0].Stage != "mix" || result.Errors[0].Kind != "timeline_too_long" {
		t.Fatalf("Expected mix timeline_too_long stage error, got %v", result.Errors)
	}

	if tx.calls.Load() != 0 || mp.calls.Load() != 0 {
		t.Errorf("Expected boundary clients untouched, got tx=%d minutes=%d",
			tx.calls.Load(), mp.calls.Load())
	}
}

func TestRunMinutesFailureDegradesToPartial(t *testing.T) {
	tx := &fakeTranscriber{text: "the transcript"}
	mp := &fakeProvider{
		err:      fmt.Errorf("%w: HTTP 429", providers.ErrQuotaExceeded),
		failures: 10, // Always fails
	}

	p := newTestPipeline(t, pipelineParts{transcriber: tx, provider: mp})

	result, err := p.Run(context.Background(), testRecording(t, true))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !result.Partial() {
		t.Fatalf("Expected partial result, got %+v", result)
	}

	if result.Transcript != "the transcript" {
		t.Errorf("Expected transcript to survive, got %q", result.Transcript)
	}

	if len(result.Errors) != 1 {
		t.Fatalf("Expected 1 stage error, got %v", result.Errors)
	}
	se := result.Errors[0]
	if se.Stage != "minutes" || se.Kind != "quota_exceeded" {
		t.Errorf("Unexpected stage error: %+v", se)
	}
}

func TestRunTranscriptionFailureProducesNothing(t *testing.T) {
	tx := &fakeTranscriber{err: fmt.Errorf("%w: HTTP 401", providers.ErrAuth)}
	mp := &fakeProvider{body: "never used"}

	p := newTestPipeline(t, pipelineParts{transcriber: tx, provider: mp})

	result, err := p.Run(context.Background(), testRecording(t, true))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Transcript != "" {
		t.Errorf("Expected no transcript, got %q", result.Transcript)
	}

	if len(result.Errors) != 1 || result.Errors[0].Stage != "transcribe" || result.Errors[0].Kind != "auth" {
		t.Errorf("Unexpected stage errors: %v", result.Errors)
	}

	if mp.calls.Load() != 0 {
		t.Error("Expected minutes provider untouched after transcription failure")
	}
}

func TestRunCompressionExhaustionAborts(t *testing.T) {
	st, err := store.NewStore(t.TempDir(), time.Hour, testLogger())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	pre, err := preprocess.NewProcessor(false, "", nil, testLogger())
	if err != nil {
		t.Fatalf("NewProcessor failed: %v", err)
	}

	// Ceiling of 1 byte and an encoder that always produces 100 bytes:
	// every ladder rung fails
	encode := func(ctx context.Context, src, dst string, b, r, c int) error {
		return os.WriteFile(dst, make([]byte, 100), 0644)
	}
	comp, err := compress.NewCompressor(1, compress.DefaultLadder, encode, testLogger())
	if err != nil {
		t.Fatalf("NewCompressor failed: %v", err)
	}

	analyzer, err := analysis.NewAnalyzer(500, 20)
	if err != nil {
		t.Fatalf("NewAnalyzer failed: %v", err)
	}

	tx := &fakeTranscriber{text: "never used"}
	mp := &fakeProvider{body: "never used"}

	p, err := New(st, pre, comp, tx, mp, analyzer, nil, testLogger(), Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	result, err := p.Run(context.Background(), testRecording(t, true))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Errors) != 1 || result.Errors[0].Stage != "compress" || result.Errors[0].Kind != "file_too_large" {
		t.Fatalf("Expected compress file_too_large stage error, got %v", result.Errors)
	}

	// An oversized file is never sent to the boundary
	if tx.calls.Load() != 0 {
		t.Error("Expected transcriber untouched after compression exhaustion")
	}
}

func TestRunForwardsParticipantsToMinutes(t *testing.T) {
	tx := &fakeTranscriber{text: "the transcript"}

	var gotHints minutes.Hints
	mp := &hintCapturingProvider{capture: &gotHints}

	p := newTestPipeline(t, pipelineParts{transcriber: tx, provider: mp})

	if _, err := p.Run(context.Background(), testRecording(t, true)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(gotHints.Participants) != 2 {
		t.Fatalf("Expected 2 participants, got %v", gotHints.Participants)
	}
	if gotHints.Participants[0] != "alice" || gotHints.Participants[1] != "bob" {
		t.Errorf("Unexpected participants: %v", gotHints.Participants)
	}
}

type hintCapturingProvider struct {
	capture *minutes.Hints
}

func (h *hintCapturingProvider) Name() string { return "capture" }

func (h *hintCapturingProvider) GenerateMinutes(ctx context.Context, transcript string, hints minutes.Hints) (string, error) {
	*h.capture = hints
	return "minutes", nil
}
