package compress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// ErrFileTooLarge is returned when every ladder preset still produces a
// file over the ceiling. The pipeline aborts; an oversized file is never
// handed to the transcription boundary.
var ErrFileTooLarge = errors.New("audio file exceeds size ceiling after compression")

// EncodeFunc re-encodes src into dst with the given MP3 parameters.
// Production wiring uses media.EncodeMP3; tests inject a fake.
type EncodeFunc func(ctx context.Context, src, dst string, bitrateKbps, sampleRate, channels int) error

// Preset is one rung of the compression ladder.
type Preset struct {
	BitrateKbps int
	SampleRate  int
	Channels    int
}

func (p Preset) String() string {
	return fmt.Sprintf("%dkbps/%dHz/%dch", p.BitrateKbps, p.SampleRate, p.Channels)
}

// DefaultLadder is the fixed decreasing preset sequence, most-quality first.
var DefaultLadder = []Preset{
	{BitrateKbps: 64, SampleRate: 16000, Channels: 1},
	{BitrateKbps: 48, SampleRate: 16000, Channels: 1},
	{BitrateKbps: 32, SampleRate: 16000, Channels: 1},
	{BitrateKbps: 24, SampleRate: 12000, Channels: 1},
	{BitrateKbps: 16, SampleRate: 8000, Channels: 1},
}

// Compressor walks the ladder until the artifact fits under the ceiling.
type Compressor struct {
	ceiling int64 // Bytes
	ladder  []Preset
	encode  EncodeFunc
	logger  *slog.Logger
}

// NewCompressor creates a size-adaptive compressor.
func NewCompressor(ceiling int64, ladder []Preset, encode EncodeFunc, logger *slog.Logger) (*Compressor, error) {
	if ceiling <= 0 {
		return nil, fmt.Errorf("size ceiling must be positive, got %d", ceiling)
	}

	if len(ladder) == 0 {
		return nil, fmt.Errorf("compression ladder cannot be empty")
	}

	if encode == nil {
		return nil, fmt.Errorf("encode function cannot be nil")
	}

	for i := 1; i < len(ladder); i++ {
		if ladder[i].BitrateKbps > ladder[i-1].BitrateKbps {
			return nil, fmt.Errorf("ladder must decrease in bitrate: rung %d (%s) exceeds rung %d (%s)",
				i, ladder[i], i-1, ladder[i-1])
		}
	}

	return &Compressor{
		ceiling: ceiling,
		ladder:  ladder,
		encode:  encode,
		logger:  logger,
	}, nil
}

// Fit returns a path to an artifact no larger than the ceiling, along with
// the number of re-encodes performed. A file already under the ceiling is
// returned untouched with zero re-encodes. Each rung's output supersedes
// and deletes the previous rung's; the source is deleted once a rung fits.
// On exhaustion everything is deleted and ErrFileTooLarge is returned.
func (c *Compressor) Fit(ctx context.Context, src string) (string, int, error) {
	size, err := fileSize(src)
	if err != nil {
		return "", 0, err
	}

	if size <= c.ceiling {
		return src, 0, nil
	}

	c.logger.Info("Audio exceeds size ceiling, compressing",
		slog.String("file", src),
		slog.Int64("size", size),
		slog.Int64("ceiling", c.ceiling),
	)

	// Every rung re-encodes from the original mix, not the previous rung's
	// lossy output, so passes do not compound generational loss. The source
	// survives until a rung fits.
	var derived string
	for i, preset := range c.ladder {
		dst := derivedPath(src, i)

		if err := c.encode(ctx, src, dst, preset.BitrateKbps, preset.SampleRate, preset.Channels); err != nil {
			if derived != "" {
				os.Remove(derived)
			}
			return "", i, fmt.Errorf("re-encoding at %s: %w", preset, err)
		}

		// The new artifact supersedes the previous rung's output
		if derived != "" {
			os.Remove(derived)
		}
		derived = dst

		size, err = fileSize(derived)
		if err != nil {
			os.Remove(derived)
			return "", i + 1, err
		}

		c.logger.Info("Compression pass complete",
			slog.String("preset", preset.String()),
			slog.Int64("size", size),
			slog.Int64("ceiling", c.ceiling),
		)

		if size <= c.ceiling {
			os.Remove(src)
			return derived, i + 1, nil
		}
	}

	os.Remove(derived)
	os.Remove(src)
	return "", len(c.ladder), fmt.Errorf("%w: %d bytes after %d passes (ceiling %d)",
		ErrFileTooLarge, size, len(c.ladder), c.ceiling)
}

// derivedPath names the artifact produced by ladder rung i.
func derivedPath(src string, i int) string {
	base := strings.TrimSuffix(src, ".wav")
	base = strings.TrimSuffix(base, ".mp3")
	return fmt.Sprintf("%s_c%d.mp3", base, i)
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.Size(), nil
}
