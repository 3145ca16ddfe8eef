package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ikeikeda/discord-voice-to-text/internal/analysis"
	"github.com/ikeikeda/discord-voice-to-text/internal/audio"
)

// Recording is the frozen snapshot of a stopped session handed to the
// processing pipeline. Buffers are frozen; no further writes can land.
type Recording struct {
	SessionID  string
	ChannelID  uint64
	StartedAt  time.Time
	StoppedAt  time.Time
	SampleRate int
	Speakers   []*audio.SpeakerBuffer // First-heard order
}

// Runner processes a frozen recording into a terminal result. Implemented
// by the pipeline package; abstracted here so sessions can be tested with
// a stub.
type Runner interface {
	Run(ctx context.Context, rec *Recording) (*ProcessingResult, error)
}

// StageError records a non-fatal failure of one pipeline stage in the
// order it occurred.
type StageError struct {
	Stage   string `json:"stage"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ProcessingResult is the terminal outcome of a session, produced exactly
// once when the winning stop completes.
type ProcessingResult struct {
	SessionID    string                     `json:"session_id"`
	ChannelID    uint64                     `json:"channel_id"`
	Transcript   string                     `json:"transcript,omitempty"`
	Minutes      string                     `json:"minutes,omitempty"`
	Chunks       []string                   `json:"chunks,omitempty"` // Message-sized parts of the minutes
	Duration     time.Duration              `json:"duration"`
	SpeakerStats []analysis.SpeakerActivity `json:"speaker_stats,omitempty"`
	Errors       []StageError               `json:"errors,omitempty"`
	CompletedAt  time.Time                  `json:"completed_at"`
}

// Succeeded reports whether both the transcript and the minutes were
// produced.
func (r *ProcessingResult) Succeeded() bool {
	return r.Transcript != "" && r.Minutes != ""
}

// Partial reports whether the transcript survived a later-stage failure.
func (r *ProcessingResult) Partial() bool {
	return r.Transcript != "" && r.Minutes == ""
}

// Summary renders a human-readable account of the outcome, distinguishing
// full success, transcript-only, and nothing produced, and naming the
// failed stages.
func (r *ProcessingResult) Summary() string {
	var b strings.Builder

	switch {
	case r.Succeeded():
		b.WriteString(fmt.Sprintf("Meeting minutes ready (%s of audio", r.Duration.Round(time.Second)))
		if n := len(r.SpeakerStats); n > 0 {
			b.WriteString(fmt.Sprintf(", %d speakers", n))
		}
		b.WriteString(")")
	case r.Partial():
		b.WriteString("Transcript ready, but minutes generation failed")
	default:
		b.WriteString("Recording could not be processed")
	}

	for _, se := range r.Errors {
		b.WriteString(fmt.Sprintf("\n- %s stage failed (%s): %s", se.Stage, se.Kind, se.Message))
	}

	for _, s := range r.SpeakerStats {
		name := s.Name
		if name == "" {
			name = fmt.Sprintf("speaker %d", s.SpeakerID)
		}
		b.WriteString(fmt.Sprintf("\n%s: %s (%.0f%%, %d segments)",
			name, s.SpeechDuration.Round(time.Second), s.Share, s.Segments))
	}

	return b.String()
}
