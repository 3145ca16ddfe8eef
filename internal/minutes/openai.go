package minutes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ikeikeda/discord-voice-to-text/internal/providers"
)

const defaultOpenAIEndpoint = "https://api.openai.com/v1/chat/completions"

// openAIProvider generates minutes through the chat completions API.
type openAIProvider struct {
	config     Config
	endpoint   string
	httpClient *http.Client
}

func newOpenAIProvider(config Config) *openAIProvider {
	endpoint := config.Endpoint
	if endpoint == "" {
		endpoint = defaultOpenAIEndpoint
	}

	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}

	return &openAIProvider{
		config:     config,
		endpoint:   endpoint,
		httpClient: newHTTPClient(config.Timeout),
	}
}

func (p *openAIProvider) Name() string { return "openai" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// GenerateMinutes asks the chat completions API for structured minutes.
// Transient failures get exactly one retry.
func (p *openAIProvider) GenerateMinutes(ctx context.Context, transcript string, hints Hints) (string, error) {
	if transcript == "" {
		return "", fmt.Errorf("transcript cannot be empty")
	}

	body, err := p.generate(ctx, transcript, hints)
	if err != nil {
		return "", fmt.Errorf("openai minutes: %w", err)
	}

	return formatMinutes(body, hints), nil
}

func (p *openAIProvider) generate(ctx context.Context, transcript string, hints Hints) (string, error) {
	return generateWithRetry(ctx, p.config.RetryBackoff, func() (string, error) {
		return p.doRequest(ctx, transcript, hints)
	})
}

func (p *openAIProvider) doRequest(ctx context.Context, transcript string, hints Hints) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: p.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemInstruction},
			{Role: "user", Content: buildPrompt(transcript, hints)},
		},
		Temperature: p.config.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %v", providers.ErrTransient, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", providers.ClassifyStatus(resp.StatusCode, string(respBody))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("failed to parse response JSON: %w", err)
	}

	if len(chatResp.Choices) == 0 || chatResp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("response contained no completion")
	}

	return chatResp.Choices[0].Message.Content, nil
}
