package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when Config.Model is empty.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiClient calls Google Gemini through the genai SDK and asks for a JSON answer.
type GeminiClient struct {
	client      *genai.Client
	model       string
	temperature float32
}

// NewGeminiClient creates a client from cfg.
func NewGeminiClient(ctx context.Context, cfg Config) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = DefaultTemperature
	}
	return &GeminiClient{client: client, model: model, temperature: temperature}, nil
}

// Complete implements Client. SDK errors are reported as retryable
// LLMTransportErrors because the SDK does not distinguish quota from outage.
func (c *GeminiClient) Complete(ctx context.Context, req Request) (string, error) {
	system, err := RenderPrompt(req)
	if err != nil {
		return "", err
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(req.Payload), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       genai.Ptr(c.temperature),
		ResponseMIMEType:  "application/json",
	})
	if err != nil {
		return "", transportError(0, true, fmt.Errorf("genai generate content: %w", err))
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", transportError(0, true, fmt.Errorf("empty response from %s", c.model))
	}
	return text, nil
}
