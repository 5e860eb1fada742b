// Package ai wraps the hosted and self-hosted text-generation providers used
// to write narrative service reports.
package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// TextGenerator generates text from a system prompt and user prompt.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

const (
	ProviderGemini       = "gemini"
	ProviderOllama       = "ollama"
	ProviderOpenAICompat = "openai-compat"

	DefaultGeminiModel = "gemini-2.0-flash"
)

// ErrMissingCredential is returned by NewGenerator when a hosted provider
// has no API key configured.
var ErrMissingCredential = errors.New("generation provider credential missing")

// StatusError is a non-2xx answer from a provider API.
type StatusError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s api error (%d): %s", e.Provider, e.StatusCode, e.Message)
}

// Temporary reports whether retrying the same request may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Config selects and configures a provider.
type Config struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
	Timeout  time.Duration
}

// NewGenerator builds the configured provider.
func NewGenerator(cfg Config) (TextGenerator, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch provider {
	case "", ProviderGemini:
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, ErrMissingCredential
		}
		opts := []GeminiOption{WithGeminiTimeout(cfg.Timeout)}
		if cfg.BaseURL != "" {
			opts = append(opts, WithGeminiBaseURL(cfg.BaseURL))
		}
		client, err := NewGeminiClient(cfg.APIKey, opts...)
		if err != nil {
			return nil, err
		}
		model := strings.TrimSpace(cfg.Model)
		if model == "" {
			model = DefaultGeminiModel
		}
		return NewGeminiGenerator(client, model), nil
	case ProviderOllama:
		return NewOllamaGenerator(NewOllamaClient(cfg.BaseURL), cfg.Model), nil
	case ProviderOpenAICompat:
		if strings.TrimSpace(cfg.BaseURL) == "" {
			return nil, fmt.Errorf("openai-compat base url required")
		}
		return NewOpenAICompatGenerator(cfg.BaseURL, cfg.APIKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}
