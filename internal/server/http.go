package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ikeikeda/discord-voice-to-text/internal/config"
	"github.com/ikeikeda/discord-voice-to-text/internal/metrics"
	"github.com/ikeikeda/discord-voice-to-text/internal/session"
	"github.com/ikeikeda/discord-voice-to-text/internal/transcription"
)

// HTTPServer provides the control API (start/stop recording) and the
// monitoring endpoints.
type HTTPServer struct {
	server      *http.Server
	logger      *slog.Logger
	config      *config.Config
	registry    *session.Registry
	udpServer   *UDPServer
	transcriber *transcription.Client
	metrics     *metrics.Metrics
	startTime   time.Time
}

// NewHTTPServer creates the control/monitoring API server. The metrics
// handle may be nil in tests.
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger,
	appConfig *config.Config, registry *session.Registry, udpServer *UDPServer,
	transcriber *transcription.Client, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:      logger,
		config:      appConfig,
		registry:    registry,
		udpServer:   udpServer,
		transcriber: transcriber,
		metrics:     m,
		startTime:   time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Minute, // stop blocks on the full pipeline
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Handler exposes the route mux for tests.
func (h *HTTPServer) Handler() http.Handler {
	return h.server.Handler
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Recording control endpoints
	mux.HandleFunc("/channels/", h.withMetrics("/channels/{id}", h.handleChannelControl))

	// Monitoring endpoints
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/sessions", h.withMetrics("/sessions", h.handleSessions))
	mux.HandleFunc("/sessions/", h.withMetrics("/sessions/{id}", h.handleSessionDetail))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}
		handler(ww, r)

		if h.metrics != nil {
			h.metrics.RecordHTTPRequest(r.Method, endpoint,
				strconv.Itoa(ww.statusCode), time.Since(startTime).Seconds())
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleChannelControl dispatches POST /channels/{id}/start and
// POST /channels/{id}/stop.
func (h *HTTPServer) handleChannelControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/channels/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 {
		h.writeError(w, http.StatusNotFound, "expected /channels/{id}/start or /channels/{id}/stop")
		return
	}

	channelID, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid channel ID")
		return
	}

	switch parts[1] {
	case "start":
		h.handleStart(w, r, channelID)
	case "stop":
		h.handleStop(w, r, channelID)
	default:
		h.writeError(w, http.StatusNotFound, "unknown action")
	}
}

// handleStart begins recording on a channel
func (h *HTTPServer) handleStart(w http.ResponseWriter, r *http.Request, channelID uint64) {
	sess, err := h.registry.Start(channelID)
	if err != nil {
		if errors.Is(err, session.ErrAlreadyRecording) {
			h.writeError(w, http.StatusConflict, "channel is already recording")
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if h.metrics != nil {
		h.metrics.RecordSessionStarted()
		h.metrics.SetActiveSessions(h.registry.ActiveCount())
	}

	h.logger.Info("Recording started",
		slog.Uint64("channel_id", channelID),
		slog.String("session_id", sess.ID()),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(sess.Info())
}

// handleStop stops a channel's recording, runs the processing pipeline
// synchronously, and returns the full result.
func (h *HTTPServer) handleStop(w http.ResponseWriter, r *http.Request, channelID uint64) {
	started := time.Now()

	result, err := h.registry.Stop(r.Context(), channelID)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNotRecording):
			h.writeError(w, http.StatusNotFound, "channel is not recording")
		case errors.Is(err, session.ErrAlreadyStopping):
			h.writeError(w, http.StatusConflict, "channel is already stopping")
		default:
			if h.metrics != nil {
				h.metrics.RecordSessionFinished("failed", time.Since(started).Seconds())
				h.metrics.SetActiveSessions(h.registry.ActiveCount())
			}
			h.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	if h.metrics != nil {
		h.metrics.RecordSessionFinished("finalized", result.Duration.Seconds())
		h.metrics.SetActiveSessions(h.registry.ActiveCount())
	}

	h.logger.Info("Recording stopped",
		slog.Uint64("channel_id", channelID),
		slog.String("session_id", result.SessionID),
		slog.Bool("succeeded", result.Succeeded()),
		slog.Int("stage_errors", len(result.Errors)),
	)

	response := map[string]interface{}{
		"result":  result,
		"summary": result.Summary(),
		"chunks":  result.Chunks,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (h *HTTPServer) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)
	udpStats := h.udpServer.GetStatistics()
	transcriptionStats := h.transcriber.GetStats()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]interface{}{
			"name":    "discord-voice-to-text",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"udp_server": map[string]interface{}{
				"status":            "running",
				"packets_received":  udpStats.PacketsReceived,
				"packets_processed": udpStats.PacketsProcessed,
				"parse_errors":      udpStats.ParseErrors,
				"queue_size":        udpStats.QueueSize,
			},
			"sessions": map[string]interface{}{
				"status":       "running",
				"active_count": h.registry.ActiveCount(),
			},
			"transcription": map[string]interface{}{
				"status":         "running",
				"total_requests": transcriptionStats.TotalRequests,
				"total_retries":  transcriptionStats.TotalRetries,
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleSessions implements the /sessions endpoint
func (h *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	infos := h.registry.Snapshot()

	response := map[string]interface{}{
		"total_sessions": len(infos),
		"timestamp":      time.Now().UTC(),
		"sessions":       infos,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleSessionDetail implements the /sessions/{channel_id} endpoint
func (h *HTTPServer) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	idStr := strings.TrimPrefix(r.URL.Path, "/sessions/")
	if idStr == "" {
		http.Error(w, "Channel ID required", http.StatusBadRequest)
		return
	}

	channelID, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		http.Error(w, "Invalid channel ID", http.StatusBadRequest)
		return
	}

	sess, exists := h.registry.Get(channelID)
	if !exists {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sess.Info())
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Return sanitized configuration (API keys are omitted)
	sanitizedConfig := map[string]interface{}{
		"server": map[string]interface{}{
			"udp_port":     h.config.Server.UDPPort,
			"bind_address": h.config.Server.BindAddress,
			"buffer_size":  h.config.Server.BufferSize,
		},
		"audio": map[string]interface{}{
			"sample_rate": h.config.Audio.SampleRate,
			"channels":    h.config.Audio.Channels,
			"bit_depth":   h.config.Audio.BitDepth,
		},
		"recording": map[string]interface{}{
			"session_timeout":    h.config.Recording.SessionTimeout,
			"janitor_interval":   h.config.Recording.JanitorInterval,
			"message_chunk_size": h.config.Recording.MessageChunkSize,
		},
		"preprocess": map[string]interface{}{
			"enabled": h.config.Preprocess.Enabled,
			"level":   h.config.Preprocess.Level,
		},
		"compression": map[string]interface{}{
			"max_file_size_mb": h.config.Compression.MaxFileSizeMB,
		},
		"transcription": map[string]interface{}{
			"provider":       h.config.Transcription.Provider,
			"endpoint":       h.config.Transcription.Endpoint,
			"model":          h.config.Transcription.Model,
			"language":       h.config.Transcription.Language,
			"timeout":        h.config.Transcription.Timeout,
			"max_concurrent": h.config.Transcription.MaxConcurrent,
			"output_format":  h.config.Transcription.OutputFormat,
		},
		"minutes": map[string]interface{}{
			"provider": h.config.Minutes.Provider,
			"model":    h.config.Minutes.Model,
			"timeout":  h.config.Minutes.Timeout,
		},
		"storage": map[string]interface{}{
			"output_dir":     h.config.Storage.OutputDir,
			"retention_days": h.config.Storage.RetentionDays,
			"sweep_interval": h.config.Storage.SweepInterval,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	udpStats := h.udpServer.GetStatistics()
	transcriptionStats := h.transcriber.GetStats()
	uptime := time.Since(h.startTime)

	stats := map[string]interface{}{
		"uptime":    uptime.String(),
		"timestamp": time.Now().UTC(),
		"udp": map[string]interface{}{
			"packets_received":  udpStats.PacketsReceived,
			"packets_processed": udpStats.PacketsProcessed,
			"packets_dropped":   udpStats.PacketsDropped,
			"parse_errors":      udpStats.ParseErrors,
			"queue_size":        udpStats.QueueSize,
			"queue_capacity":    udpStats.QueueCapacity,
		},
		"transcription": transcriptionStats,
		"sessions": map[string]interface{}{
			"active_count": h.registry.ActiveCount(),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "Voice Channel Minutes Service",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":                          "API documentation",
			"POST /channels/{id}/start":      "Begin recording a voice channel",
			"POST /channels/{id}/stop":       "Stop recording and process the session",
			"GET /health":                    "Service health check",
			"GET /sessions":                  "List all active sessions",
			"GET /sessions/{channel_id}":     "Get detailed session information",
			"GET /config":                    "Get service configuration",
			"GET /stats":                     "Get service statistics",
			"GET /metrics":                   "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}
