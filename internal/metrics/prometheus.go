package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the voice minutes service
type Metrics struct {
	// UDP frame metrics
	FramesReceived prometheus.Counter
	FramesDropped  prometheus.Counter
	ParseErrors    prometheus.Counter

	// Session metrics
	ActiveSessions   prometheus.Gauge
	SessionsStarted  prometheus.Counter
	SessionsFinished *prometheus.CounterVec // outcome: finalized, failed
	SessionDuration  prometheus.Histogram

	// Pipeline metrics
	PipelineStageDuration *prometheus.HistogramVec // stage label
	PipelineStageErrors   *prometheus.CounterVec   // stage, kind labels
	CompressionPasses     prometheus.Histogram
	MixedAudioDuration    prometheus.Histogram

	// Boundary call metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	MinutesRequests        prometheus.Counter
	MinutesSuccesses       prometheus.Counter
	MinutesFailures        prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// UDP frame metrics
		FramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vmx_frames_received_total",
			Help: "Total number of voice frames received over UDP",
		}),
		FramesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vmx_frames_dropped_total",
			Help: "Total number of frames dropped (no active session or late arrival)",
		}),
		ParseErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vmx_parse_errors_total",
			Help: "Total number of frame parsing errors",
		}),

		// Session metrics
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vmx_active_sessions",
			Help: "Current number of recording sessions",
		}),
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vmx_sessions_started_total",
			Help: "Total number of recording sessions started",
		}),
		SessionsFinished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vmx_sessions_finished_total",
			Help: "Total number of sessions by terminal outcome",
		}, []string{"outcome"}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vmx_session_duration_seconds",
			Help:    "Recorded duration of finished sessions",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10s to ~3 hours
		}),

		// Pipeline metrics
		PipelineStageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vmx_pipeline_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~7 minutes
		}, []string{"stage"}),
		PipelineStageErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vmx_pipeline_stage_errors_total",
			Help: "Total number of pipeline stage errors by kind",
		}, []string{"stage", "kind"}),
		CompressionPasses: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vmx_compression_passes",
			Help:    "Number of re-encoding passes needed to fit the size ceiling",
			Buckets: prometheus.LinearBuckets(0, 1, 6), // 0 to 5 passes
		}),
		MixedAudioDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vmx_mixed_audio_duration_seconds",
			Help:    "Duration of mixed session audio",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10),
		}),

		// Boundary call metrics
		TranscriptionRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vmx_transcription_requests_total",
			Help: "Total number of transcription requests sent",
		}),
		TranscriptionSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vmx_transcription_successes_total",
			Help: "Total number of successful transcription requests",
		}),
		TranscriptionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vmx_transcription_failures_total",
			Help: "Total number of failed transcription requests",
		}),
		MinutesRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vmx_minutes_requests_total",
			Help: "Total number of minutes-generation requests sent",
		}),
		MinutesSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vmx_minutes_successes_total",
			Help: "Total number of successful minutes generations",
		}),
		MinutesFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vmx_minutes_failures_total",
			Help: "Total number of failed minutes generations",
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vmx_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vmx_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// RecordFrameReceived increments the frames received counter
func (m *Metrics) RecordFrameReceived() {
	m.FramesReceived.Inc()
}

// RecordFrameDropped increments the frames dropped counter
func (m *Metrics) RecordFrameDropped() {
	m.FramesDropped.Inc()
}

// RecordParseError increments the parse errors counter
func (m *Metrics) RecordParseError() {
	m.ParseErrors.Inc()
}

// SetActiveSessions sets the current session gauge
func (m *Metrics) SetActiveSessions(count int) {
	m.ActiveSessions.Set(float64(count))
}

// RecordSessionStarted increments the sessions started counter
func (m *Metrics) RecordSessionStarted() {
	m.SessionsStarted.Inc()
}

// RecordSessionFinished records a terminal session outcome and its duration
func (m *Metrics) RecordSessionFinished(outcome string, durationSeconds float64) {
	m.SessionsFinished.WithLabelValues(outcome).Inc()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordStageDuration records time spent in a pipeline stage
func (m *Metrics) RecordStageDuration(stage string, durationSeconds float64) {
	m.PipelineStageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordStageError records a pipeline stage error by kind
func (m *Metrics) RecordStageError(stage, kind string) {
	m.PipelineStageErrors.WithLabelValues(stage, kind).Inc()
}

// RecordCompressionPasses records the ladder depth needed for one artifact
func (m *Metrics) RecordCompressionPasses(passes int) {
	m.CompressionPasses.Observe(float64(passes))
}

// RecordMixedAudioDuration records the duration of a mixed session
func (m *Metrics) RecordMixedAudioDuration(durationSeconds float64) {
	m.MixedAudioDuration.Observe(durationSeconds)
}

// RecordTranscription records a transcription request outcome
func (m *Metrics) RecordTranscription(success bool) {
	m.TranscriptionRequests.Inc()
	if success {
		m.TranscriptionSuccesses.Inc()
	} else {
		m.TranscriptionFailures.Inc()
	}
}

// RecordMinutes records a minutes-generation request outcome
func (m *Metrics) RecordMinutes(success bool) {
	m.MinutesRequests.Inc()
	if success {
		m.MinutesSuccesses.Inc()
	} else {
		m.MinutesFailures.Inc()
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}
