package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	HTTP          HTTPConfig          `yaml:"http"`
	Audio         AudioConfig         `yaml:"audio"`
	Recording     RecordingConfig     `yaml:"recording"`
	Preprocess    PreprocessConfig    `yaml:"preprocess"`
	Compression   CompressionConfig   `yaml:"compression"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Minutes       MinutesConfig       `yaml:"minutes"`
	Storage       StorageConfig       `yaml:"storage"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig contains UDP frame-ingest server configuration
type ServerConfig struct {
	UDPPort     int    `yaml:"udp_port"`
	BindAddress string `yaml:"bind_address"`
	BufferSize  int    `yaml:"buffer_size"`
}

// HTTPConfig contains the control/monitoring API configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// AudioConfig contains capture audio parameters
type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`
	BitDepth   int `yaml:"bit_depth"`
}

// RecordingConfig contains session lifecycle parameters
type RecordingConfig struct {
	SessionTimeout   int `yaml:"session_timeout"`    // seconds of frame inactivity before auto-stop
	JanitorInterval  int `yaml:"janitor_interval"`   // seconds between stale-session checks
	MessageChunkSize int `yaml:"message_chunk_size"` // characters per delivered message part
}

// PreprocessConfig controls the optional audio cleanup stage
type PreprocessConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"` // light, medium, heavy
}

// CompressionConfig controls the size-adaptive re-encoding ladder
type CompressionConfig struct {
	MaxFileSizeMB int `yaml:"max_file_size_mb"`
}

// TranscriptionConfig contains speech-to-text API configuration
type TranscriptionConfig struct {
	Provider       string  `yaml:"provider"` // must be the audio-capable backend
	Endpoint       string  `yaml:"endpoint"`
	APIKey         string  `yaml:"api_key"`
	Model          string  `yaml:"model"`
	Language       string  `yaml:"language"`
	Timeout        int     `yaml:"timeout"` // seconds
	MaxConcurrent  int     `yaml:"max_concurrent"`
	OutputFormat   string  `yaml:"output_format"` // text or verbose_json
	Temperature    float32 `yaml:"temperature"`
	Prompt         string  `yaml:"prompt"` // domain-context hint
	WordTimestamps bool    `yaml:"word_timestamps"`
}

// MinutesConfig contains minutes-generation provider configuration
type MinutesConfig struct {
	Provider    string   `yaml:"provider"` // openai or gemini
	Endpoint    string   `yaml:"endpoint"`
	APIKey      string   `yaml:"api_key"`
	Model       string   `yaml:"model"`
	Temperature float32  `yaml:"temperature"`
	Timeout     int      `yaml:"timeout"` // seconds
	Vocabulary  []string `yaml:"vocabulary"`
}

// StorageConfig contains artifact directory and retention configuration
type StorageConfig struct {
	OutputDir     string `yaml:"output_dir"`
	RetentionDays int    `yaml:"retention_days"` // 0 disables the sweep
	SweepInterval int    `yaml:"sweep_interval"` // seconds
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// audioCapableProviders are the transcription backends that accept audio
// uploads. Gemini is minutes-only and is rejected here.
var audioCapableProviders = map[string]bool{"openai": true}

// Load reads and parses the configuration file. Values like api_key may
// reference environment variables (${OPENAI_API_KEY}), expanded before
// parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Recording.Validate(); err != nil {
		return fmt.Errorf("recording config: %w", err)
	}

	if err := c.Preprocess.Validate(); err != nil {
		return fmt.Errorf("preprocess config: %w", err)
	}

	if err := c.Compression.Validate(); err != nil {
		return fmt.Errorf("compression config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Minutes.Validate(); err != nil {
		return fmt.Errorf("minutes config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.UDPPort < 1 || s.UDPPort > 65535 {
		return fmt.Errorf("udp_port must be between 1 and 65535, got %d", s.UDPPort)
	}

	if s.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if s.BufferSize < 1024 {
		return fmt.Errorf("buffer_size must be at least 1024 bytes, got %d", s.BufferSize)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate != 48000 && a.SampleRate != 16000 && a.SampleRate != 8000 {
		return fmt.Errorf("sample_rate must be 48000, 16000, or 8000 Hz, got %d", a.SampleRate)
	}

	if a.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", a.Channels)
	}

	if a.BitDepth != 16 {
		return fmt.Errorf("bit_depth must be 16, got %d", a.BitDepth)
	}

	return nil
}

// Validate validates recording lifecycle configuration
func (r *RecordingConfig) Validate() error {
	if r.SessionTimeout < 1 {
		return fmt.Errorf("session_timeout must be at least 1 second, got %d", r.SessionTimeout)
	}

	if r.JanitorInterval < 1 {
		return fmt.Errorf("janitor_interval must be at least 1 second, got %d", r.JanitorInterval)
	}

	if r.MessageChunkSize < 100 {
		return fmt.Errorf("message_chunk_size must be at least 100 characters, got %d", r.MessageChunkSize)
	}

	return nil
}

// Validate validates preprocessing configuration
func (p *PreprocessConfig) Validate() error {
	if !p.Enabled {
		return nil
	}

	validLevels := map[string]bool{"light": true, "medium": true, "heavy": true}
	if !validLevels[p.Level] {
		return fmt.Errorf("level must be one of [light, medium, heavy], got '%s'", p.Level)
	}

	return nil
}

// Validate validates compression configuration
func (c *CompressionConfig) Validate() error {
	if c.MaxFileSizeMB < 1 {
		return fmt.Errorf("max_file_size_mb must be at least 1, got %d", c.MaxFileSizeMB)
	}

	return nil
}

// Validate validates transcription configuration. Only the audio-capable
// backend is accepted; a minutes-only provider here is a misconfiguration.
func (t *TranscriptionConfig) Validate() error {
	if !audioCapableProviders[t.Provider] {
		return fmt.Errorf("provider '%s' cannot transcribe audio (only 'openai' is supported)", t.Provider)
	}

	if t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if t.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty")
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	validFormats := map[string]bool{"text": true, "verbose_json": true}
	if !validFormats[t.OutputFormat] {
		return fmt.Errorf("output_format must be 'text' or 'verbose_json', got '%s'", t.OutputFormat)
	}

	if t.Temperature < 0 || t.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1, got %f", t.Temperature)
	}

	return nil
}

// Validate validates minutes provider configuration
func (m *MinutesConfig) Validate() error {
	validProviders := map[string]bool{"openai": true, "gemini": true}
	if !validProviders[m.Provider] {
		return fmt.Errorf("provider must be 'openai' or 'gemini', got '%s'", m.Provider)
	}

	if m.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty")
	}

	if m.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", m.Timeout)
	}

	if m.Temperature < 0 || m.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", m.Temperature)
	}

	return nil
}

// Validate validates storage configuration
func (s *StorageConfig) Validate() error {
	if s.OutputDir == "" {
		return fmt.Errorf("output_dir cannot be empty")
	}

	if s.RetentionDays < 0 {
		return fmt.Errorf("retention_days cannot be negative, got %d", s.RetentionDays)
	}

	if s.SweepInterval < 1 {
		return fmt.Errorf("sweep_interval must be at least 1 second, got %d", s.SweepInterval)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetSessionTimeoutDuration returns the session inactivity timeout
func (r *RecordingConfig) GetSessionTimeoutDuration() time.Duration {
	return time.Duration(r.SessionTimeout) * time.Second
}

// GetJanitorIntervalDuration returns the stale-session check interval
func (r *RecordingConfig) GetJanitorIntervalDuration() time.Duration {
	return time.Duration(r.JanitorInterval) * time.Second
}

// GetTimeoutDuration returns the transcription timeout
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetTimeoutDuration returns the minutes-generation timeout
func (m *MinutesConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(m.Timeout) * time.Second
}

// GetMaxFileSizeBytes returns the compression ceiling in bytes
func (c *CompressionConfig) GetMaxFileSizeBytes() int64 {
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}

// GetRetentionDuration returns the artifact retention window
func (s *StorageConfig) GetRetentionDuration() time.Duration {
	return time.Duration(s.RetentionDays) * 24 * time.Hour
}

// GetSweepIntervalDuration returns the retention sweep interval
func (s *StorageConfig) GetSweepIntervalDuration() time.Duration {
	return time.Duration(s.SweepInterval) * time.Second
}
