package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ikeikeda/discord-voice-to-text/internal/analysis"
	"github.com/ikeikeda/discord-voice-to-text/internal/compress"
	"github.com/ikeikeda/discord-voice-to-text/internal/config"
	"github.com/ikeikeda/discord-voice-to-text/internal/media"
	"github.com/ikeikeda/discord-voice-to-text/internal/metrics"
	"github.com/ikeikeda/discord-voice-to-text/internal/minutes"
	"github.com/ikeikeda/discord-voice-to-text/internal/pipeline"
	"github.com/ikeikeda/discord-voice-to-text/internal/preprocess"
	"github.com/ikeikeda/discord-voice-to-text/internal/server"
	"github.com/ikeikeda/discord-voice-to-text/internal/session"
	"github.com/ikeikeda/discord-voice-to-text/internal/store"
	"github.com/ikeikeda/discord-voice-to-text/internal/transcription"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "discord-voice-to-text"
	serviceVersion    = "1.0.0"

	// Speech activity detection parameters for the speaker statistics
	activityThreshold = 500.0
	activityWindowMs  = 20
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load .env so ${VAR} references in the config file resolve
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Int("udp_port", cfg.Server.UDPPort),
		slog.String("bind_address", cfg.Server.BindAddress),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Duration("session_timeout", cfg.Recording.GetSessionTimeoutDuration()),
		slog.Bool("preprocess_enabled", cfg.Preprocess.Enabled),
		slog.Int("max_file_size_mb", cfg.Compression.MaxFileSizeMB),
		slog.String("transcription_model", cfg.Transcription.Model),
		slog.String("minutes_provider", cfg.Minutes.Provider),
		slog.String("output_dir", cfg.Storage.OutputDir),
		slog.String("log_level", cfg.Logging.Level),
	)

	// The pipeline shells out to ffmpeg for preprocessing and compression
	if !media.Available() {
		logger.Error("ffmpeg not found in PATH")
		os.Exit(1)
	}

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Artifact store with retention sweep
	artifactStore, err := store.NewStore(cfg.Storage.OutputDir, cfg.Storage.GetRetentionDuration(), logger)
	if err != nil {
		logger.Error("Failed to create artifact store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if cfg.Storage.RetentionDays > 0 {
		artifactStore.StartSweeper(cfg.Storage.GetSweepIntervalDuration())
	}

	// Audio preprocessing (optional ffmpeg filter stage)
	level, err := preprocess.ParseLevel(cfg.Preprocess.Level)
	if err != nil && cfg.Preprocess.Enabled {
		logger.Error("Invalid preprocessing level", slog.String("error", err.Error()))
		os.Exit(1)
	}
	preprocessor, err := preprocess.NewProcessor(cfg.Preprocess.Enabled, level, media.ApplyFilters, logger)
	if err != nil {
		logger.Error("Failed to create preprocessor", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Size-adaptive compression
	compressor, err := compress.NewCompressor(
		cfg.Compression.GetMaxFileSizeBytes(),
		compress.DefaultLadder,
		media.EncodeMP3,
		logger,
	)
	if err != nil {
		logger.Error("Failed to create compressor", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Transcription client
	transcriber, err := transcription.NewClient(transcription.Config{
		Endpoint:      cfg.Transcription.Endpoint,
		APIKey:        cfg.Transcription.APIKey,
		Model:         cfg.Transcription.Model,
		Language:      cfg.Transcription.Language,
		Timeout:       cfg.Transcription.GetTimeoutDuration(),
		MaxConcurrent: cfg.Transcription.MaxConcurrent,
	})
	if err != nil {
		logger.Error("Failed to create transcription client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Minutes provider
	minutesProvider, err := minutes.NewProvider(minutes.Config{
		Provider:    cfg.Minutes.Provider,
		Endpoint:    cfg.Minutes.Endpoint,
		APIKey:      cfg.Minutes.APIKey,
		Model:       cfg.Minutes.Model,
		Temperature: cfg.Minutes.Temperature,
		Timeout:     cfg.Minutes.GetTimeoutDuration(),
	})
	if err != nil {
		logger.Error("Failed to create minutes provider", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Speaker activity analyzer
	analyzer, err := analysis.NewAnalyzer(activityThreshold, activityWindowMs)
	if err != nil {
		logger.Error("Failed to create activity analyzer", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Processing pipeline
	proc, err := pipeline.New(artifactStore, preprocessor, compressor, transcriber,
		minutesProvider, analyzer, appMetrics, logger, pipeline.Config{
			TranscriptionOpts: transcription.Options{
				Format:         cfg.Transcription.OutputFormat,
				Temperature:    cfg.Transcription.Temperature,
				Prompt:         cfg.Transcription.Prompt,
				WordTimestamps: cfg.Transcription.WordTimestamps,
			},
			Vocabulary:       cfg.Minutes.Vocabulary,
			MessageChunkSize: cfg.Recording.MessageChunkSize,
		})
	if err != nil {
		logger.Error("Failed to create pipeline", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Processing pipeline initialized",
		slog.String("transcription_endpoint", cfg.Transcription.Endpoint),
		slog.String("minutes_provider", minutesProvider.Name()),
	)

	// Session registry with the stale-session janitor
	registry := session.NewRegistry(logger, proc, cfg.Audio.SampleRate)
	registry.StartJanitor(
		cfg.Recording.GetSessionTimeoutDuration(),
		cfg.Recording.GetJanitorIntervalDuration(),
	)
	logger.Info("Session registry initialized",
		slog.Duration("session_timeout", cfg.Recording.GetSessionTimeoutDuration()),
	)

	// Initialize UDP server
	udpServer := server.NewUDPServer(cfg.Server, logger, registry, appMetrics)
	logger.Info("UDP server initialized")

	// Initialize HTTP API server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, registry, udpServer, transcriber, appMetrics)
		logger.Info("HTTP API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)
	}

	// Start UDP server
	if err := udpServer.Start(); err != nil {
		logger.Error("Failed to start UDP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start HTTP server (if enabled)
	if httpServer != nil {
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("udp_address", fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.UDPPort)),
	)

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new commands)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Stop UDP server (stop accepting new frames)
	if err := udpServer.Stop(); err != nil {
		logger.Error("Error stopping UDP server", slog.String("error", err.Error()))
	}

	// Stop background routines
	registry.Close()
	if cfg.Storage.RetentionDays > 0 {
		artifactStore.Close()
	}

	// Get final statistics
	stats := udpServer.GetStatistics()
	logger.Info("Final server statistics",
		slog.Uint64("packets_received", stats.PacketsReceived),
		slog.Uint64("packets_processed", stats.PacketsProcessed),
		slog.Uint64("parse_errors", stats.ParseErrors),
		slog.Int("active_sessions", stats.ActiveSessions),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
