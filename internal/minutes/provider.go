package minutes

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ikeikeda/discord-voice-to-text/internal/providers"
)

// Provider generates meeting minutes from a transcript. The concrete
// provider is selected once at configuration time; there is no runtime
// type inspection.
type Provider interface {
	Name() string
	GenerateMinutes(ctx context.Context, transcript string, hints Hints) (string, error)
}

// Hints carry session context into the minutes prompt.
type Hints struct {
	Title        string
	Date         time.Time
	Participants []string
	Vocabulary   []string // Domain terms the model should spell correctly
}

// Config selects and parameterizes the minutes provider.
type Config struct {
	Provider     string // "openai" or "gemini"
	Endpoint     string // Optional override; defaults per provider
	APIKey       string
	Model        string
	Temperature  float32
	Timeout      time.Duration
	RetryBackoff time.Duration
}

// NewProvider constructs the configured provider variant.
func NewProvider(config Config) (Provider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	if config.RetryBackoff <= 0 {
		config.RetryBackoff = 2 * time.Second
	}

	switch config.Provider {
	case "openai":
		return newOpenAIProvider(config), nil
	case "gemini":
		return newGeminiProvider(config), nil
	default:
		return nil, fmt.Errorf("unknown minutes provider %q (want openai or gemini)", config.Provider)
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// generateWithRetry runs fn, retrying exactly once on transient failure.
func generateWithRetry(ctx context.Context, backoff time.Duration, fn func() (string, error)) (string, error) {
	text, err := fn()
	if err != nil && providers.Retryable(err) {
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		text, err = fn()
	}
	return text, err
}
