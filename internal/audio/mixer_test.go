package audio

import (
	"errors"
	"testing"
	"time"
)

// pcmFromSamples packs int16 samples into little-endian PCM bytes
func pcmFromSamples(samples []int16) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		pcm[i*2] = byte(uint16(s))
		pcm[i*2+1] = byte(uint16(s) >> 8)
	}
	return pcm
}

// constantPCM builds a frame of n samples all set to value
func constantPCM(n int, value int16) []byte {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = value
	}
	return pcmFromSamples(samples)
}

func TestMixEmptySession(t *testing.T) {
	empty := NewSpeakerBuffer(1, "", 48000)

	_, err := Mix([]*SpeakerBuffer{empty}, 48000)
	if !errors.Is(err, ErrNoAudioCaptured) {
		t.Errorf("Expected ErrNoAudioCaptured, got %v", err)
	}

	_, err = Mix(nil, 48000)
	if !errors.Is(err, ErrNoAudioCaptured) {
		t.Errorf("Expected ErrNoAudioCaptured for no buffers, got %v", err)
	}
}

func TestMixInvalidSampleRate(t *testing.T) {
	if _, err := Mix(nil, 0); err == nil {
		t.Error("Expected error for zero sample rate")
	}
}

func TestMixSingleSpeaker(t *testing.T) {
	const rate = 1000
	t0 := time.Unix(100, 0)

	buf := NewSpeakerBuffer(1, "alice", rate)
	if err := buf.Append(t0, constantPCM(rate, 100)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	buf.Freeze()

	result, err := Mix([]*SpeakerBuffer{buf}, rate)
	if err != nil {
		t.Fatalf("Mix failed: %v", err)
	}

	if result.Duration != time.Second {
		t.Errorf("Expected 1s duration, got %v", result.Duration)
	}

	if result.Speakers != 1 {
		t.Errorf("Expected 1 speaker, got %d", result.Speakers)
	}

	if len(result.Samples) != rate {
		t.Fatalf("Expected %d samples, got %d", rate, len(result.Samples))
	}

	if result.Samples[0] != 100 || result.Samples[rate-1] != 100 {
		t.Error("Expected passthrough of single-speaker samples")
	}
}

func TestMixOverlapIsAdditive(t *testing.T) {
	// Two speakers produce overlapping 3-second bursts with a 1-second
	// silence gap before a second burst; the mix must span the full
	// timeline and the overlap must be the sample-wise sum.
	const rate = 1000
	t0 := time.Unix(100, 0)

	alice := NewSpeakerBuffer(1, "alice", rate)
	bob := NewSpeakerBuffer(2, "bob", rate)

	// Overlapping 3-second bursts starting together
	if err := alice.Append(t0, constantPCM(3*rate, 1000)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := bob.Append(t0, constantPCM(3*rate, 2000)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	// 1-second gap, then a second burst from alice only
	if err := alice.Append(t0.Add(4*time.Second), constantPCM(rate, 500)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	alice.Freeze()
	bob.Freeze()

	result, err := Mix([]*SpeakerBuffer{alice, bob}, rate)
	if err != nil {
		t.Fatalf("Mix failed: %v", err)
	}

	// Full span: 3s overlap + 1s gap + 1s burst = 5s
	if result.Duration != 5*time.Second {
		t.Errorf("Expected 5s duration including gap, got %v", result.Duration)
	}

	if result.Speakers != 2 {
		t.Errorf("Expected 2 speakers, got %d", result.Speakers)
	}

	// Overlap region is the additive sum, not one speaker's signal
	if got := result.Samples[rate]; got != 3000 {
		t.Errorf("Expected overlap sample 3000, got %d", got)
	}

	// Gap region is synthesized silence
	if got := result.Samples[3*rate+rate/2]; got != 0 {
		t.Errorf("Expected silence in gap, got %d", got)
	}

	// Second burst survives after the gap
	if got := result.Samples[4*rate+rate/2]; got != 500 {
		t.Errorf("Expected 500 in second burst, got %d", got)
	}
}

func TestMixClippingGuard(t *testing.T) {
	const rate = 1000
	t0 := time.Unix(100, 0)

	a := NewSpeakerBuffer(1, "", rate)
	b := NewSpeakerBuffer(2, "", rate)

	if err := a.Append(t0, constantPCM(rate/10, 30000)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := b.Append(t0, constantPCM(rate/10, 30000)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	a.Freeze()
	b.Freeze()

	result, err := Mix([]*SpeakerBuffer{a, b}, rate)
	if err != nil {
		t.Fatalf("Mix failed: %v", err)
	}

	for i, s := range result.Samples {
		if s != 32767 {
			t.Fatalf("Expected sample %d clipped to 32767, got %d", i, s)
		}
	}
}

func TestMixNegativeClippingGuard(t *testing.T) {
	const rate = 1000
	t0 := time.Unix(100, 0)

	a := NewSpeakerBuffer(1, "", rate)
	b := NewSpeakerBuffer(2, "", rate)

	if err := a.Append(t0, constantPCM(10, -30000)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := b.Append(t0, constantPCM(10, -30000)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	result, err := Mix([]*SpeakerBuffer{a, b}, rate)
	if err != nil {
		t.Fatalf("Mix failed: %v", err)
	}

	if result.Samples[0] != -32768 {
		t.Errorf("Expected sample clipped to -32768, got %d", result.Samples[0])
	}
}

func TestMixRejectsSkewedTimestamp(t *testing.T) {
	// Timestamps arrive from the wire unvalidated. One frame with a
	// wildly skewed capture time must fail loudly instead of allocating
	// a multi-day timeline or reporting the session as empty.
	const rate = 1000
	t0 := time.Unix(100, 0)

	buf := NewSpeakerBuffer(1, "alice", rate)
	if err := buf.Append(t0, constantPCM(rate, 100)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := buf.Append(t0.Add(72*time.Hour), constantPCM(10, 100)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	buf.Freeze()

	_, err := Mix([]*SpeakerBuffer{buf}, rate)
	if !errors.Is(err, ErrTimelineTooLong) {
		t.Fatalf("Expected ErrTimelineTooLong, got %v", err)
	}
	if errors.Is(err, ErrNoAudioCaptured) {
		t.Error("A session with real audio must not be reported as empty")
	}
}

func TestSampleIndexLargeOffsets(t *testing.T) {
	// The naive ns-times-rate product overflows int64 past ~53 hours at
	// 48 kHz; the conversion must stay exact across the allowed span.
	tests := []struct {
		d    time.Duration
		rate int
		want int
	}{
		{time.Second, 48000, 48000},
		{500 * time.Millisecond, 48000, 24000},
		{24 * time.Hour, 48000, 24 * 3600 * 48000},
		{23*time.Hour + 250*time.Millisecond, 48000, 23*3600*48000 + 12000},
	}

	for _, tt := range tests {
		if got := sampleIndex(tt.d, tt.rate); got != tt.want {
			t.Errorf("sampleIndex(%v, %d) = %d, expected %d", tt.d, tt.rate, got, tt.want)
		}
	}
}

func TestMixLaterStartOffset(t *testing.T) {
	const rate = 1000
	t0 := time.Unix(100, 0)

	a := NewSpeakerBuffer(1, "", rate)
	b := NewSpeakerBuffer(2, "", rate)

	if err := a.Append(t0, constantPCM(rate, 100)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	// b starts 500ms into the session
	if err := b.Append(t0.Add(500*time.Millisecond), constantPCM(rate, 200)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	result, err := Mix([]*SpeakerBuffer{a, b}, rate)
	if err != nil {
		t.Fatalf("Mix failed: %v", err)
	}

	if result.Duration != 1500*time.Millisecond {
		t.Errorf("Expected 1.5s duration, got %v", result.Duration)
	}

	if result.Samples[0] != 100 {
		t.Errorf("Expected 100 before overlap, got %d", result.Samples[0])
	}
	if result.Samples[rate/2] != 300 {
		t.Errorf("Expected 300 in overlap, got %d", result.Samples[rate/2])
	}
	if result.Samples[rate+rate/4] != 200 {
		t.Errorf("Expected 200 after first speaker ends, got %d", result.Samples[rate+rate/4])
	}
}
