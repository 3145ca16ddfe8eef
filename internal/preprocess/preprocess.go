package preprocess

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Level selects how aggressively the mixed audio is cleaned up before
// transcription.
type Level string

const (
	LevelLight  Level = "light"
	LevelMedium Level = "medium"
	LevelHeavy  Level = "heavy"
)

// ParseLevel validates a configured level string.
func ParseLevel(s string) (Level, error) {
	switch Level(strings.ToLower(s)) {
	case LevelLight:
		return LevelLight, nil
	case LevelMedium:
		return LevelMedium, nil
	case LevelHeavy:
		return LevelHeavy, nil
	default:
		return "", fmt.Errorf("unknown preprocessing level %q (want light, medium, or heavy)", s)
	}
}

// FilterChain returns the ordered ffmpeg -af expression for the level.
// Each level is a superset of the previous one.
func (l Level) FilterChain() string {
	switch l {
	case LevelLight:
		return "highpass=f=80,lowpass=f=8000,volume=1.2"
	case LevelMedium:
		return "highpass=f=80,lowpass=f=8000,afftdn=nf=-25,loudnorm=I=-16:TP=-1.5:LRA=11,deesser"
	case LevelHeavy:
		return "highpass=f=100,lowpass=f=6000,afftdn=nf=-20,loudnorm=I=-16:TP=-1.5:LRA=7,deesser,acompressor=threshold=-18dB:ratio=4"
	default:
		return ""
	}
}

// FilterFunc applies an ffmpeg filter chain to src, writing dst. Production
// wiring uses media.ApplyFilters; tests inject a fake.
type FilterFunc func(ctx context.Context, src, dst, filterChain string) error

// Processor applies the configured cleanup level to the mixed artifact.
type Processor struct {
	enabled bool
	level   Level
	filter  FilterFunc
	logger  *slog.Logger
}

// NewProcessor creates a preprocessing stage.
func NewProcessor(enabled bool, level Level, filter FilterFunc, logger *slog.Logger) (*Processor, error) {
	if enabled && filter == nil {
		return nil, fmt.Errorf("filter function cannot be nil when preprocessing is enabled")
	}

	if enabled {
		if _, err := ParseLevel(string(level)); err != nil {
			return nil, err
		}
	}

	return &Processor{
		enabled: enabled,
		level:   level,
		filter:  filter,
		logger:  logger,
	}, nil
}

// Enabled reports whether preprocessing is configured on.
func (p *Processor) Enabled() bool { return p.enabled }

// Apply runs the filter chain over src and returns the cleaned file. Failure
// is non-fatal: the original src comes back together with the error so the
// pipeline can record a warning and continue with raw audio.
func (p *Processor) Apply(ctx context.Context, src string) (string, error) {
	if !p.enabled {
		return src, nil
	}

	dst := derivedPath(src)

	if err := p.filter(ctx, src, dst, p.level.FilterChain()); err != nil {
		os.Remove(dst)
		p.logger.Warn("Preprocessing failed, continuing with raw audio",
			slog.String("file", src),
			slog.String("level", string(p.level)),
			slog.String("error", err.Error()),
		)
		return src, fmt.Errorf("preprocessing at level %s: %w", p.level, err)
	}

	// The cleaned file supersedes the raw mix.
	os.Remove(src)

	p.logger.Info("Preprocessing applied",
		slog.String("file", dst),
		slog.String("level", string(p.level)),
	)

	return dst, nil
}

func derivedPath(src string) string {
	base := strings.TrimSuffix(src, ".wav")
	return base + "_pre.wav"
}
