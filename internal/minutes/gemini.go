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

const defaultGeminiEndpoint = "https://generativelanguage.googleapis.com/v1beta"

// geminiProvider generates minutes through the generateContent API. Gemini
// cannot transcribe the audio itself, but it serves minutes generation.
type geminiProvider struct {
	config     Config
	endpoint   string
	httpClient *http.Client
}

func newGeminiProvider(config Config) *geminiProvider {
	endpoint := config.Endpoint
	if endpoint == "" {
		endpoint = defaultGeminiEndpoint
	}

	if config.Model == "" {
		config.Model = "gemini-1.5-flash"
	}

	return &geminiProvider{
		config:     config,
		endpoint:   endpoint,
		httpClient: newHTTPClient(config.Timeout),
	}
}

func (p *geminiProvider) Name() string { return "gemini" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  struct {
		Temperature float32 `json:"temperature,omitempty"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// GenerateMinutes asks the generateContent API for structured minutes.
// Transient failures get exactly one retry.
func (p *geminiProvider) GenerateMinutes(ctx context.Context, transcript string, hints Hints) (string, error) {
	if transcript == "" {
		return "", fmt.Errorf("transcript cannot be empty")
	}

	body, err := generateWithRetry(ctx, p.config.RetryBackoff, func() (string, error) {
		return p.doRequest(ctx, transcript, hints)
	})
	if err != nil {
		return "", fmt.Errorf("gemini minutes: %w", err)
	}

	return formatMinutes(body, hints), nil
}

func (p *geminiProvider) doRequest(ctx context.Context, transcript string, hints Hints) (string, error) {
	req := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: buildPrompt(transcript, hints)}}},
		},
		SystemInstruction: &geminiContent{
			Parts: []geminiPart{{Text: systemInstruction}},
		},
	}
	req.GenerationConfig.Temperature = p.config.Temperature

	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", p.endpoint, p.config.Model)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.config.APIKey)

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

	var genResp geminiResponse
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		return "", fmt.Errorf("failed to parse response JSON: %w", err)
	}

	if len(genResp.Candidates) == 0 || len(genResp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("response contained no candidates")
	}

	return genResp.Candidates[0].Content.Parts[0].Text, nil
}
