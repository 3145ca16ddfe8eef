package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ikeikeda/discord-voice-to-text/internal/providers"
)

// Client uploads recorded audio to the speech-to-text backend. The backend
// is fixed at configuration time; only the audio-capable provider can
// transcribe, so there is no runtime provider switching here.
type Client struct {
	config     Config
	httpClient *http.Client
	semaphore  chan struct{} // Concurrency limit

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	totalRetries    uint64

	mu sync.RWMutex
}

// Config contains transcription client configuration.
type Config struct {
	Endpoint      string
	APIKey        string
	Model         string
	Language      string
	Timeout       time.Duration
	RetryBackoff  time.Duration
	MaxConcurrent int
}

// Options are per-request transcription parameters, snapshotted from config
// by the pipeline.
type Options struct {
	Format         string  // "text" or "verbose_json"
	Temperature    float32 // 0 disables the field
	Prompt         string  // Domain-context hint (names, jargon)
	WordTimestamps bool    // Only honored with verbose_json
}

// Result is the parsed transcription response.
type Result struct {
	Text     string    `json:"text"`
	Language string    `json:"language,omitempty"`
	Duration float64   `json:"duration,omitempty"`
	Segments []Segment `json:"segments,omitempty"`
}

// Segment is one timed span of a verbose_json response.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Stats is a snapshot of client counters.
type Stats struct {
	TotalRequests   uint64 `json:"total_requests"`
	SuccessRequests uint64 `json:"success_requests"`
	FailedRequests  uint64 `json:"failed_requests"`
	TotalRetries    uint64 `json:"total_retries"`
}

// NewClient creates a transcription client.
func NewClient(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}

	if config.Model == "" {
		config.Model = "whisper-1"
	}

	if config.Timeout <= 0 {
		config.Timeout = 120 * time.Second
	}

	if config.RetryBackoff <= 0 {
		config.RetryBackoff = 2 * time.Second
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 4
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		semaphore:  make(chan struct{}, config.MaxConcurrent),
	}, nil
}

// Transcribe uploads the audio file at audioPath and returns the transcript.
// Transient failures get exactly one retry with backoff; auth, quota, and
// payload-size failures surface immediately with their kind.
func (c *Client) Transcribe(ctx context.Context, audioPath string, opts Options) (*Result, error) {
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	c.count(&c.totalRequests)

	result, err := c.doRequest(ctx, audioPath, opts)
	if err != nil && providers.Retryable(err) {
		c.count(&c.totalRetries)

		select {
		case <-time.After(c.config.RetryBackoff):
		case <-ctx.Done():
			c.count(&c.failedRequests)
			return nil, ctx.Err()
		}

		result, err = c.doRequest(ctx, audioPath, opts)
	}

	if err != nil {
		c.count(&c.failedRequests)
		return nil, fmt.Errorf("transcription: %w", err)
	}

	c.count(&c.successRequests)
	return result, nil
}

// doRequest performs a single multipart upload.
func (c *Client) doRequest(ctx context.Context, audioPath string, opts Options) (*Result, error) {
	body, contentType, err := c.createMultipartRequest(audioPath, opts)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", providers.ErrTransient, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, providers.ClassifyStatus(resp.StatusCode, string(respBody))
	}

	if opts.Format == "text" {
		return &Result{Text: string(bytes.TrimSpace(respBody))}, nil
	}

	var result Result
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}

	return &result, nil
}

// createMultipartRequest builds the multipart/form-data body.
func (c *Client) createMultipartRequest(audioPath string, opts Options) (io.Reader, string, error) {
	audioData, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read audio file: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := fileWriter.Write(audioData); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	fields := map[string]string{
		"model": c.config.Model,
	}

	if opts.Format != "" {
		fields["response_format"] = opts.Format
	}
	if c.config.Language != "" {
		fields["language"] = c.config.Language
	}
	if opts.Prompt != "" {
		fields["prompt"] = opts.Prompt
	}
	if opts.Temperature > 0 {
		fields["temperature"] = fmt.Sprintf("%.2f", opts.Temperature)
	}
	if opts.WordTimestamps && opts.Format == "verbose_json" {
		fields["timestamp_granularities[]"] = "word"
	}

	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", key, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}

func (c *Client) count(field *uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	*field++
}

// GetStats returns a snapshot of client counters.
func (c *Client) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Stats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		TotalRetries:    c.totalRetries,
	}
}
