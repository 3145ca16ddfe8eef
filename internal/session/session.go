package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ikeikeda/discord-voice-to-text/internal/audio"
)

// State is the lifecycle position of a session.
type State int32

const (
	StateIdle State = iota
	StateRecording
	StateStopping
	StateFinalized
	StateFailed
)

// String returns the lowercase state name for logs and APIs.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	case StateFinalized:
		return "finalized"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// Session is one recording lifecycle on a voice channel. State transitions
// are compare-and-swap so the stop race has exactly one winner; the speaker
// map is guarded separately so ingest never contends with state checks.
type Session struct {
	id         string
	channelID  uint64
	sampleRate int
	logger     *slog.Logger

	state atomic.Int32

	mu           sync.RWMutex
	speakers     map[uint64]*audio.SpeakerBuffer
	order        []uint64 // First-heard speaker order
	startedAt    time.Time
	stoppedAt    time.Time
	lastActivity time.Time
	result       *ProcessingResult
}

// NewSession creates a session in the Idle state.
func NewSession(channelID uint64, sampleRate int, logger *slog.Logger) *Session {
	return &Session{
		id:         uuid.New().String(),
		channelID:  channelID,
		sampleRate: sampleRate,
		logger:     logger,
		speakers:   make(map[uint64]*audio.SpeakerBuffer),
	}
}

// ID returns the session's UUID.
func (s *Session) ID() string { return s.id }

// ChannelID returns the voice channel this session records.
func (s *Session) ChannelID() uint64 { return s.channelID }

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Start transitions Idle -> Recording. Any other starting state means a
// recording is already underway on this channel.
func (s *Session) Start() error {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateRecording)) {
		return ErrAlreadyRecording
	}

	now := time.Now()
	s.mu.Lock()
	s.startedAt = now
	s.lastActivity = now
	s.mu.Unlock()

	s.logger.Info("Recording started",
		slog.String("session_id", s.id),
		slog.Uint64("channel_id", s.channelID),
	)

	return nil
}

// Announce registers a speaker or updates their display name. Safe to call
// in any state; announcements outside Recording are ignored.
func (s *Session) Announce(speakerID uint64, name string) {
	if s.State() != StateRecording {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if buf, ok := s.speakers[speakerID]; ok {
		buf.SetName(name)
		return
	}

	s.speakers[speakerID] = audio.NewSpeakerBuffer(speakerID, name, s.sampleRate)
	s.order = append(s.order, speakerID)
}

// Ingest appends a timestamped PCM frame to the speaker's buffer. Frames
// arriving outside the Recording state are rejected with ErrNotRecording;
// the server drops them silently.
func (s *Session) Ingest(speakerID uint64, ts time.Time, pcm []byte) error {
	if s.State() != StateRecording {
		return ErrNotRecording
	}

	s.mu.Lock()
	buf, ok := s.speakers[speakerID]
	if !ok {
		buf = audio.NewSpeakerBuffer(speakerID, "", s.sampleRate)
		s.speakers[speakerID] = buf
		s.order = append(s.order, speakerID)
	}
	s.lastActivity = time.Now()
	s.mu.Unlock()

	return buf.Append(ts, pcm)
}

// Stop transitions Recording -> Stopping, freezes all buffers, runs the
// pipeline synchronously, and lands in Finalized or Failed. Exactly one
// caller wins the transition; concurrent callers get ErrAlreadyStopping and
// callers after the fact get ErrNotRecording.
func (s *Session) Stop(ctx context.Context, runner Runner) (*ProcessingResult, error) {
	if !s.state.CompareAndSwap(int32(StateRecording), int32(StateStopping)) {
		switch s.State() {
		case StateStopping:
			return nil, ErrAlreadyStopping
		default:
			return nil, ErrNotRecording
		}
	}

	now := time.Now()
	s.mu.Lock()
	s.stoppedAt = now
	buffers := make([]*audio.SpeakerBuffer, 0, len(s.order))
	for _, id := range s.order {
		buf := s.speakers[id]
		buf.Freeze()
		buffers = append(buffers, buf)
	}
	rec := &Recording{
		SessionID:  s.id,
		ChannelID:  s.channelID,
		StartedAt:  s.startedAt,
		StoppedAt:  now,
		SampleRate: s.sampleRate,
		Speakers:   buffers,
	}
	s.mu.Unlock()

	s.logger.Info("Recording stopped, processing",
		slog.String("session_id", s.id),
		slog.Uint64("channel_id", s.channelID),
		slog.Int("speakers", len(buffers)),
		slog.Duration("recorded", now.Sub(rec.StartedAt)),
	)

	result, err := runner.Run(ctx, rec)
	if err != nil {
		s.state.Store(int32(StateFailed))
		s.logger.Error("Session processing failed",
			slog.String("session_id", s.id),
			slog.Uint64("channel_id", s.channelID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("processing session %s: %w", s.id, err)
	}

	s.mu.Lock()
	s.result = result
	s.mu.Unlock()
	s.state.Store(int32(StateFinalized))

	s.logger.Info("Session finalized",
		slog.String("session_id", s.id),
		slog.Uint64("channel_id", s.channelID),
		slog.Bool("full_success", result.Succeeded()),
		slog.Int("stage_errors", len(result.Errors)),
	)

	return result, nil
}

// Result returns the terminal result, or nil before finalization.
func (s *Session) Result() *ProcessingResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result
}

// LastActivity returns the time of the last accepted frame (or the start
// time when no frames have arrived).
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// Info returns a monitoring snapshot of the session.
func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var frames, samples int
	for _, buf := range s.speakers {
		frames += buf.FrameCount()
		samples += buf.SampleCount()
	}

	return Info{
		SessionID:    s.id,
		ChannelID:    s.channelID,
		State:        s.State().String(),
		StartedAt:    s.startedAt,
		LastActivity: s.lastActivity,
		Speakers:     len(s.speakers),
		Frames:       frames,
		Samples:      samples,
	}
}

// Info is a point-in-time session snapshot for the monitoring API.
type Info struct {
	SessionID    string    `json:"session_id"`
	ChannelID    uint64    `json:"channel_id"`
	State        string    `json:"state"`
	StartedAt    time.Time `json:"started_at"`
	LastActivity time.Time `json:"last_activity"`
	Speakers     int       `json:"speakers"`
	Frames       int       `json:"frames"`
	Samples      int       `json:"samples"`
}
