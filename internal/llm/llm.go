package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"
)

// Supported providers.
const (
	// ProviderOpenAI talks to any OpenAI-compatible chat completions endpoint,
	// including Volcengine Ark (Doubao) and local gateways.
	ProviderOpenAI = "openai"
	// ProviderGemini talks to Google Gemini through the genai SDK.
	ProviderGemini = "gemini"
)

// DefaultTemperature keeps classification answers stable between runs.
const DefaultTemperature = 0.3

// DefaultTimeout bounds a single model call.
const DefaultTimeout = 120 * time.Second

// ErrUnknownProvider is returned by New for an unsupported provider name.
var ErrUnknownProvider = errors.New("unknown llm provider")

// ErrMissingAPIKey is returned by New when no API key is configured.
var ErrMissingAPIKey = errors.New("llm api key is not set")

// Request is one model call.
type Request struct {
	// PromptTemplate is the system prompt, a text/template rendered with Context.
	PromptTemplate string
	// Context holds the values referenced by PromptTemplate.
	Context map[string]string
	// Payload is the user message, usually a packed chunk.
	Payload string
}

// Client sends a request and returns the model text.
// Implementations must be safe for concurrent use.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, req Request) (string, error)

// Complete calls f(ctx, req).
func (f ClientFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Config selects and configures a Client.
type Config struct {
	Provider    string
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// New creates the Client for cfg.Provider.
func New(ctx context.Context, cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI, "":
		return NewOpenAIClient(cfg), nil
	case ProviderGemini:
		return NewGeminiClient(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// RenderPrompt executes the request's prompt template against its context.
// Missing keys render as empty strings.
func RenderPrompt(req Request) (string, error) {
	if !strings.Contains(req.PromptTemplate, "{{") {
		return req.PromptTemplate, nil
	}
	tmpl, err := template.New("prompt").Option("missingkey=zero").Parse(req.PromptTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse prompt template: %w", err)
	}
	var sb strings.Builder
	data := req.Context
	if data == nil {
		data = map[string]string{}
	}
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("failed to render prompt template: %w", err)
	}
	return sb.String(), nil
}

// truncate shortens s for log and error messages.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
