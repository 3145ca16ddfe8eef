package audio

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoAudioCaptured is returned when a session stops without a single audio
// frame from any speaker.
var ErrNoAudioCaptured = errors.New("no audio captured")

// ErrTimelineTooLong is returned when the span between the earliest and
// latest frame exceeds maxMixSpan. Frame timestamps arrive from the wire
// unvalidated; one forged or corrupted timestamp must not trigger a
// multi-gigabyte allocation or swallow a session of real audio.
var ErrTimelineTooLong = errors.New("mixed timeline too long")

// maxMixSpan caps the mixed timeline.
const maxMixSpan = 24 * time.Hour

// sampleIndex converts a timeline offset to a sample count without the
// nanoseconds-times-rate product, which overflows int64 past ~53 hours at
// 48 kHz.
func sampleIndex(d time.Duration, sampleRate int) int {
	secs := int(d / time.Second)
	rem := d % time.Second
	return secs*sampleRate + int(rem*time.Duration(sampleRate)/time.Second)
}

// MixResult is the single-timeline mixdown of all speaker buffers
type MixResult struct {
	Samples    []int16
	SampleRate int
	Duration   time.Duration
	Speakers   int
}

// Mix merges frozen per-speaker buffers onto one shared timeline. Frames are
// placed by capture timestamp relative to the earliest frame; gaps stay
// silent; overlapping speech is summed sample-wise with clipping to the
// int16 range.
func Mix(buffers []*SpeakerBuffer, sampleRate int) (*MixResult, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sample rate must be positive")
	}

	type placedFrame struct {
		start time.Time
		pcm   []byte
	}

	var frames []placedFrame
	var origin, end time.Time
	speakers := 0

	for _, buf := range buffers {
		bufFrames := buf.Frames()
		if len(bufFrames) == 0 {
			continue
		}
		speakers++

		for _, f := range bufFrames {
			if len(f.PCM) == 0 {
				continue
			}

			frameDur := time.Duration(len(f.PCM)/2) * time.Second / time.Duration(sampleRate)
			frameEnd := f.Timestamp.Add(frameDur)

			if origin.IsZero() || f.Timestamp.Before(origin) {
				origin = f.Timestamp
			}
			if frameEnd.After(end) {
				end = frameEnd
			}

			frames = append(frames, placedFrame{start: f.Timestamp, pcm: f.PCM})
		}
	}

	if len(frames) == 0 {
		return nil, ErrNoAudioCaptured
	}

	span := end.Sub(origin)
	if span > maxMixSpan {
		return nil, fmt.Errorf("%w: %s between earliest and latest frame (max %s)",
			ErrTimelineTooLong, span, maxMixSpan)
	}

	totalSamples := sampleIndex(span, sampleRate)
	if totalSamples <= 0 {
		return nil, ErrNoAudioCaptured
	}

	// Accumulate in int32 so simultaneous speakers sum before the clip
	acc := make([]int32, totalSamples)

	for _, f := range frames {
		offset := sampleIndex(f.start.Sub(origin), sampleRate)

		for i := 0; i+1 < len(f.pcm); i += 2 {
			idx := offset + i/2
			if idx < 0 || idx >= totalSamples {
				continue
			}
			sample := int16(uint16(f.pcm[i]) | uint16(f.pcm[i+1])<<8)
			acc[idx] += int32(sample)
		}
	}

	samples := make([]int16, totalSamples)
	for i, v := range acc {
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		samples[i] = int16(v)
	}

	return &MixResult{
		Samples:    samples,
		SampleRate: sampleRate,
		Duration:   time.Duration(totalSamples) * time.Second / time.Duration(sampleRate),
		Speakers:   speakers,
	}, nil
}
