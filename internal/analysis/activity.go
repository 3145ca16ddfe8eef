package analysis

import (
	"fmt"
	"math"
	"time"

	"github.com/ikeikeda/discord-voice-to-text/internal/audio"
)

// SpeakerActivity summarizes one participant's contribution to a session.
type SpeakerActivity struct {
	SpeakerID      uint64        `json:"speaker_id"`
	Name           string        `json:"name"`
	SpeechDuration time.Duration `json:"speech_duration"`
	Segments       int           `json:"segments"`
	Share          float64       `json:"share"` // Percentage of total voiced time
}

// Analyzer computes per-speaker activity statistics from frozen buffers
// using energy-windowed voice detection.
type Analyzer struct {
	threshold float64 // RMS energy threshold for a voiced window
	windowMs  int     // Analysis window duration in milliseconds
}

// NewAnalyzer creates an activity analyzer. Threshold is the RMS energy a
// window must exceed to count as voiced (PCM-16 scale).
func NewAnalyzer(threshold float64, windowMs int) (*Analyzer, error) {
	if threshold < 0 {
		return nil, fmt.Errorf("energy threshold must be non-negative, got %f", threshold)
	}

	if windowMs <= 0 {
		return nil, fmt.Errorf("window duration must be positive, got %dms", windowMs)
	}

	return &Analyzer{
		threshold: threshold,
		windowMs:  windowMs,
	}, nil
}

// Analyze computes activity statistics for each speaker buffer. Results
// preserve the input order; speakers with no frames still get an entry.
func (a *Analyzer) Analyze(buffers []*audio.SpeakerBuffer) []SpeakerActivity {
	stats := make([]SpeakerActivity, 0, len(buffers))
	var totalVoiced time.Duration

	for _, buf := range buffers {
		voiced, segments := a.analyzeBuffer(buf)
		totalVoiced += voiced

		stats = append(stats, SpeakerActivity{
			SpeakerID:      buf.SpeakerID(),
			Name:           buf.Name(),
			SpeechDuration: voiced,
			Segments:       segments,
		})
	}

	if totalVoiced > 0 {
		for i := range stats {
			stats[i].Share = float64(stats[i].SpeechDuration) / float64(totalVoiced) * 100
		}
	}

	return stats
}

// analyzeBuffer walks one speaker's frames in fixed windows, counting voiced
// windows and silence-to-voice transitions.
func (a *Analyzer) analyzeBuffer(buf *audio.SpeakerBuffer) (time.Duration, int) {
	windowSamples := buf.SampleRate() * a.windowMs / 1000
	if windowSamples <= 0 {
		return 0, 0
	}

	windowDur := time.Duration(a.windowMs) * time.Millisecond

	var voicedWindows int
	var segments int
	inSegment := false

	for _, frame := range buf.Frames() {
		samples := len(frame.PCM) / 2

		for start := 0; start < samples; start += windowSamples {
			end := start + windowSamples
			if end > samples {
				end = samples
			}

			if a.windowEnergy(frame.PCM[start*2:end*2]) >= a.threshold {
				voicedWindows++
				if !inSegment {
					segments++
					inSegment = true
				}
			} else {
				inSegment = false
			}
		}
	}

	return time.Duration(voicedWindows) * windowDur, segments
}

// windowEnergy calculates the RMS energy of little-endian PCM-16 data.
func (a *Analyzer) windowEnergy(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}

	var energy float64
	for i := 0; i < samples; i++ {
		s := int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8)
		energy += float64(s) * float64(s)
	}

	return math.Sqrt(energy / float64(samples))
}
