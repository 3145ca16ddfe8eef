package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ikeikeda/discord-voice-to-text/internal/analysis"
	"github.com/ikeikeda/discord-voice-to-text/internal/audio"
	"github.com/ikeikeda/discord-voice-to-text/internal/compress"
	"github.com/ikeikeda/discord-voice-to-text/internal/metrics"
	"github.com/ikeikeda/discord-voice-to-text/internal/minutes"
	"github.com/ikeikeda/discord-voice-to-text/internal/preprocess"
	"github.com/ikeikeda/discord-voice-to-text/internal/providers"
	"github.com/ikeikeda/discord-voice-to-text/internal/session"
	"github.com/ikeikeda/discord-voice-to-text/internal/store"
	"github.com/ikeikeda/discord-voice-to-text/internal/transcription"
)

// Transcriber is the speech-to-text boundary, satisfied by
// *transcription.Client and stubbed in tests.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, opts transcription.Options) (*transcription.Result, error)
}

// Config is the immutable per-run parameter snapshot, taken once from the
// service configuration.
type Config struct {
	TranscriptionOpts transcription.Options
	Vocabulary        []string // Domain terms forwarded into the minutes prompt
	MessageChunkSize  int
}

// Pipeline turns a frozen recording into a ProcessingResult through the
// fixed stage sequence: mix, preprocess, compress, transcribe, postprocess,
// minutes. It implements session.Runner.
type Pipeline struct {
	store       *store.Store
	pre         *preprocess.Processor
	comp        *compress.Compressor
	transcriber Transcriber
	provider    minutes.Provider
	analyzer    *analysis.Analyzer
	metrics     *metrics.Metrics
	logger      *slog.Logger
	config      Config
}

// New creates a pipeline. Metrics may be nil in tests.
func New(
	st *store.Store,
	pre *preprocess.Processor,
	comp *compress.Compressor,
	transcriber Transcriber,
	provider minutes.Provider,
	analyzer *analysis.Analyzer,
	m *metrics.Metrics,
	logger *slog.Logger,
	config Config,
) (*Pipeline, error) {
	if st == nil || pre == nil || comp == nil || transcriber == nil || provider == nil || analyzer == nil {
		return nil, fmt.Errorf("pipeline requires store, preprocess, compress, transcriber, minutes provider, and analyzer")
	}

	if config.MessageChunkSize <= 0 {
		config.MessageChunkSize = 1900
	}

	return &Pipeline{
		store:       st,
		pre:         pre,
		comp:        comp,
		transcriber: transcriber,
		provider:    provider,
		analyzer:    analyzer,
		metrics:     m,
		logger:      logger,
		config:      config,
	}, nil
}

// Run processes one frozen recording. Domain failures (no audio, oversized
// artifact, rejected boundary calls) come back as stage errors inside the
// result; only plumbing failures (filesystem, codec) return a non-nil error.
func (p *Pipeline) Run(ctx context.Context, rec *session.Recording) (*session.ProcessingResult, error) {
	result := &session.ProcessingResult{
		SessionID: rec.SessionID,
		ChannelID: rec.ChannelID,
		Duration:  rec.StoppedAt.Sub(rec.StartedAt),
	}
	defer func() { result.CompletedAt = time.Now() }()

	result.SpeakerStats = p.analyzer.Analyze(rec.Speakers)

	// Mix
	mixStart := time.Now()
	mixed, err := audio.Mix(rec.Speakers, rec.SampleRate)
	if err != nil {
		if errors.Is(err, audio.ErrNoAudioCaptured) {
			p.recordStageError(result, "mix", "no_audio", err)
			return result, nil
		}
		if errors.Is(err, audio.ErrTimelineTooLong) {
			p.recordStageError(result, "mix", "timeline_too_long", err)
			return result, nil
		}
		return nil, fmt.Errorf("mixing session %s: %w", rec.SessionID, err)
	}
	p.observeStage("mix", mixStart)

	if p.metrics != nil {
		p.metrics.RecordMixedAudioDuration(mixed.Duration.Seconds())
	}

	wavPath := p.store.NewPath("wav")
	if err := audio.WriteWAVFile(wavPath, mixed.Samples, mixed.SampleRate); err != nil {
		return nil, fmt.Errorf("writing mixed audio for session %s: %w", rec.SessionID, err)
	}

	p.store.Pin(wavPath)
	current := wavPath
	defer func() { p.store.Unpin(current) }()

	// Preprocess (failure is non-fatal, falls back to the raw mix)
	preStart := time.Now()
	cleaned, err := p.pre.Apply(ctx, current)
	if err != nil {
		p.recordStageError(result, "preprocess", "error", err)
	}
	p.repin(&current, cleaned)
	p.observeStage("preprocess", preStart)

	// Compress to the size ceiling
	compStart := time.Now()
	fitted, passes, err := p.comp.Fit(ctx, current)
	if p.metrics != nil {
		p.metrics.RecordCompressionPasses(passes)
	}
	if err != nil {
		if errors.Is(err, compress.ErrFileTooLarge) {
			p.recordStageError(result, "compress", "file_too_large", err)
			return result, nil
		}
		return nil, fmt.Errorf("compressing session %s: %w", rec.SessionID, err)
	}
	p.repin(&current, fitted)
	p.observeStage("compress", compStart)

	// Transcribe
	txStart := time.Now()
	txResult, err := p.transcriber.Transcribe(ctx, current, p.config.TranscriptionOpts)
	p.observeStage("transcribe", txStart)
	if p.metrics != nil {
		p.metrics.RecordTranscription(err == nil)
	}
	if err != nil {
		p.recordStageError(result, "transcribe", providers.Kind(err), err)
		return result, nil
	}

	result.Transcript = postprocessTranscript(txResult.Text)
	if result.Transcript == "" {
		p.recordStageError(result, "transcribe", "empty_transcript",
			fmt.Errorf("backend returned an empty transcript"))
		return result, nil
	}

	// Minutes (stage independence: the transcript survives a failure here)
	hints := minutes.Hints{
		Date:       rec.StoppedAt,
		Vocabulary: p.config.Vocabulary,
	}
	for _, s := range result.SpeakerStats {
		if s.Name != "" {
			hints.Participants = append(hints.Participants, s.Name)
		}
	}

	minStart := time.Now()
	generated, err := p.provider.GenerateMinutes(ctx, result.Transcript, hints)
	p.observeStage("minutes", minStart)
	if p.metrics != nil {
		p.metrics.RecordMinutes(err == nil)
	}
	if err != nil {
		p.recordStageError(result, "minutes", providers.Kind(err), err)
		return result, nil
	}

	result.Minutes = generated
	result.Chunks = splitMessage(generated, p.config.MessageChunkSize)

	return result, nil
}

// repin moves the in-flight pin when a stage supersedes the artifact.
func (p *Pipeline) repin(current *string, next string) {
	if next == *current {
		return
	}
	p.store.Unpin(*current)
	p.store.Pin(next)
	*current = next
}

func (p *Pipeline) recordStageError(result *session.ProcessingResult, stage, kind string, err error) {
	result.Errors = append(result.Errors, session.StageError{
		Stage:   stage,
		Kind:    kind,
		Message: err.Error(),
	})

	if p.metrics != nil {
		p.metrics.RecordStageError(stage, kind)
	}

	p.logger.Warn("Pipeline stage error",
		slog.String("session_id", result.SessionID),
		slog.String("stage", stage),
		slog.String("kind", kind),
		slog.String("error", err.Error()),
	)
}

func (p *Pipeline) observeStage(stage string, start time.Time) {
	if p.metrics != nil {
		p.metrics.RecordStageDuration(stage, time.Since(start).Seconds())
	}
}
