package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrBufferFrozen is returned when a frame arrives after the buffer has been
// frozen by session stop.
var ErrBufferFrozen = errors.New("audio buffer is frozen")

// Frame is one timestamped chunk of decoded PCM audio for one speaker.
type Frame struct {
	Timestamp time.Time // Capture time of the first sample
	PCM       []byte    // 16-bit little-endian mono samples
}

// SpeakerBuffer accumulates decoded audio frames for one speaker during one
// recording session. Frames append in arrival order while the session is
// recording; Freeze makes the buffer read-only so the mixer can consume a
// stable timeline.
type SpeakerBuffer struct {
	speakerID  uint64
	name       string
	sampleRate int

	frames     []Frame
	totalBytes int
	frozen     bool
	lastUpdate time.Time

	mu sync.RWMutex
}

// NewSpeakerBuffer creates an empty buffer for one speaker
func NewSpeakerBuffer(speakerID uint64, name string, sampleRate int) *SpeakerBuffer {
	return &SpeakerBuffer{
		speakerID:  speakerID,
		name:       name,
		sampleRate: sampleRate,
		frames:     make([]Frame, 0, 256),
		lastUpdate: time.Now(),
	}
}

// Append adds one PCM frame to the buffer. It fails once the buffer has been
// frozen, which is how late frames are kept out of a stopped session.
func (b *SpeakerBuffer) Append(ts time.Time, pcm []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frozen {
		return ErrBufferFrozen
	}

	if len(pcm)%2 != 0 {
		return fmt.Errorf("pcm frame length must be even (got %d bytes)", len(pcm))
	}

	if len(pcm) == 0 {
		return nil
	}

	data := make([]byte, len(pcm))
	copy(data, pcm)

	b.frames = append(b.frames, Frame{Timestamp: ts, PCM: data})
	b.totalBytes += len(data)
	b.lastUpdate = time.Now()

	return nil
}

// Freeze makes the buffer read-only. Idempotent.
func (b *SpeakerBuffer) Freeze() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frozen = true
}

// Frozen reports whether the buffer has been frozen
func (b *SpeakerBuffer) Frozen() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.frozen
}

// Frames returns a snapshot of the accumulated frames
func (b *SpeakerBuffer) Frames() []Frame {
	b.mu.RLock()
	defer b.mu.RUnlock()

	frames := make([]Frame, len(b.frames))
	copy(frames, b.frames)
	return frames
}

// SpeakerID returns the speaker this buffer belongs to
func (b *SpeakerBuffer) SpeakerID() uint64 {
	return b.speakerID
}

// Name returns the speaker display name ("" if never announced)
func (b *SpeakerBuffer) Name() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.name
}

// SetName updates the display name from a speaker announcement
func (b *SpeakerBuffer) SetName(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if name != "" {
		b.name = name
	}
}

// SampleRate returns the PCM sample rate of the buffered frames
func (b *SpeakerBuffer) SampleRate() int {
	return b.sampleRate
}

// FrameCount returns the number of frames appended so far
func (b *SpeakerBuffer) FrameCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.frames)
}

// SampleCount returns the total number of PCM samples buffered
func (b *SpeakerBuffer) SampleCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.totalBytes / 2
}

// SpeechDuration returns the summed duration of all buffered frames,
// ignoring gaps between them.
func (b *SpeakerBuffer) SpeechDuration() time.Duration {
	samples := b.SampleCount()
	if b.sampleRate <= 0 {
		return 0
	}
	return time.Duration(samples) * time.Second / time.Duration(b.sampleRate)
}

// LastUpdate returns the time of the most recent append
func (b *SpeakerBuffer) LastUpdate() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdate
}
