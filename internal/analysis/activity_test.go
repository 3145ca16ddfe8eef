package analysis

import (
	"testing"
	"time"

	"github.com/ikeikeda/discord-voice-to-text/internal/audio"
)

// loudPCM builds n samples of constant amplitude
func loudPCM(n int, amplitude int16) []byte {
	pcm := make([]byte, n*2)
	for i := 0; i < n; i++ {
		pcm[i*2] = byte(uint16(amplitude))
		pcm[i*2+1] = byte(uint16(amplitude) >> 8)
	}
	return pcm
}

func TestNewAnalyzer(t *testing.T) {
	if _, err := NewAnalyzer(-1, 20); err == nil {
		t.Error("Expected error for negative threshold")
	}

	if _, err := NewAnalyzer(500, 0); err == nil {
		t.Error("Expected error for zero window duration")
	}

	if _, err := NewAnalyzer(500, 20); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestAnalyzeVoicedAndSilent(t *testing.T) {
	analyzer, err := NewAnalyzer(500, 20)
	if err != nil {
		t.Fatalf("NewAnalyzer failed: %v", err)
	}

	const rate = 1000 // 20 samples per window
	t0 := time.Unix(100, 0)

	buf := audio.NewSpeakerBuffer(1, "alice", rate)

	// One second of loud speech, then one second of near-silence
	if err := buf.Append(t0, loudPCM(rate, 10000)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := buf.Append(t0.Add(time.Second), loudPCM(rate, 10)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	stats := analyzer.Analyze([]*audio.SpeakerBuffer{buf})
	if len(stats) != 1 {
		t.Fatalf("Expected 1 speaker entry, got %d", len(stats))
	}

	s := stats[0]
	if s.SpeakerID != 1 || s.Name != "alice" {
		t.Errorf("Unexpected identity: id=%d name=%q", s.SpeakerID, s.Name)
	}

	if s.SpeechDuration != time.Second {
		t.Errorf("Expected 1s voiced, got %v", s.SpeechDuration)
	}

	if s.Segments != 1 {
		t.Errorf("Expected 1 voice segment, got %d", s.Segments)
	}

	if s.Share != 100 {
		t.Errorf("Expected 100%% share for sole speaker, got %f", s.Share)
	}
}

func TestAnalyzeSegmentCounting(t *testing.T) {
	analyzer, err := NewAnalyzer(500, 20)
	if err != nil {
		t.Fatalf("NewAnalyzer failed: %v", err)
	}

	const rate = 1000
	const windowSamples = 20
	t0 := time.Unix(100, 0)

	// Alternate voiced and silent windows inside a single frame:
	// voiced, silent, voiced, silent, voiced = 3 segments
	frame := make([]byte, 0, 5*windowSamples*2)
	for i := 0; i < 5; i++ {
		amp := int16(10)
		if i%2 == 0 {
			amp = 10000
		}
		frame = append(frame, loudPCM(windowSamples, amp)...)
	}

	buf := audio.NewSpeakerBuffer(1, "", rate)
	if err := buf.Append(t0, frame); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	stats := analyzer.Analyze([]*audio.SpeakerBuffer{buf})
	if stats[0].Segments != 3 {
		t.Errorf("Expected 3 segments, got %d", stats[0].Segments)
	}
}

func TestAnalyzeShareSplit(t *testing.T) {
	analyzer, err := NewAnalyzer(500, 20)
	if err != nil {
		t.Fatalf("NewAnalyzer failed: %v", err)
	}

	const rate = 1000
	t0 := time.Unix(100, 0)

	alice := audio.NewSpeakerBuffer(1, "alice", rate)
	bob := audio.NewSpeakerBuffer(2, "bob", rate)

	// Alice talks for 3 seconds, bob for 1 second
	if err := alice.Append(t0, loudPCM(3*rate, 10000)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := bob.Append(t0, loudPCM(rate, 10000)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	stats := analyzer.Analyze([]*audio.SpeakerBuffer{alice, bob})
	if len(stats) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(stats))
	}

	if stats[0].Share != 75 {
		t.Errorf("Expected alice share 75, got %f", stats[0].Share)
	}
	if stats[1].Share != 25 {
		t.Errorf("Expected bob share 25, got %f", stats[1].Share)
	}
}

func TestAnalyzeEmptyBuffer(t *testing.T) {
	analyzer, err := NewAnalyzer(500, 20)
	if err != nil {
		t.Fatalf("NewAnalyzer failed: %v", err)
	}

	buf := audio.NewSpeakerBuffer(7, "quiet", 48000)
	stats := analyzer.Analyze([]*audio.SpeakerBuffer{buf})

	if len(stats) != 1 {
		t.Fatalf("Expected entry for silent speaker, got %d entries", len(stats))
	}

	if stats[0].SpeechDuration != 0 || stats[0].Segments != 0 || stats[0].Share != 0 {
		t.Errorf("Expected zeroed stats for empty buffer, got %+v", stats[0])
	}
}
