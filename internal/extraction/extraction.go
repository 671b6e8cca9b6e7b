// Package extraction provides the language-model extraction service for
// cubechat. It classifies conversation turns, disambiguates cube
// selection and extracts query components (drilldowns, measures and raw
// filter strings) from user questions.
//
// All model calls go through an ordered chain of strategies (primary
// model first, fallbacks after) with bounded retry, and tolerate prose
// around the JSON payload in model replies.
package extraction

import (
	"context"
	"errors"
	"time"
)

// Common errors for extraction operations.
var (
	ErrProviderClosed  = errors.New("extraction provider is closed")
	ErrEmptyMessages   = errors.New("messages cannot be empty")
	ErrNoJSONFound     = errors.New("no JSON object found in model reply")
	ErrAllStrategiesFailed = errors.New("all extraction strategies failed")
)

// Provider defines the interface for completion backends.
type Provider interface {
	// Complete performs a non-streaming completion request.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name (e.g. "ollama", "openai").
	Name() string

	// Close releases any resources held by the provider.
	Close() error
}

// CompletionRequest represents a chat completion request.
type CompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	JSONMode    bool      `json:"-"`
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionResponse represents a chat completion response.
type CompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Created int64    `json:"created"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// Choice represents a completion choice.
type Choice struct {
	Index        int      `json:"index"`
	Message      *Message `json:"message,omitempty"`
	FinishReason string   `json:"finish_reason,omitempty"`
}

// Usage represents token usage information.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Text returns the content of the first choice.
func (r *CompletionResponse) Text() string {
	if len(r.Choices) == 0 || r.Choices[0].Message == nil {
		return ""
	}
	return r.Choices[0].Message.Content
}

// ProviderConfig holds configuration for a single provider.
type ProviderConfig struct {
	// Type specifies the provider type: "ollama" or "openai".
	Type string `mapstructure:"type"`

	// BaseURL is the API endpoint URL.
	BaseURL string `mapstructure:"base_url"`

	// APIKey is the API key for authenticated providers.
	APIKey string `mapstructure:"api_key"`

	// Model is the model this strategy uses.
	Model string `mapstructure:"model"`

	// Timeout is the request timeout.
	Timeout time.Duration `mapstructure:"timeout"`
}

// Config holds configuration for the extraction service. Strategies are
// tried in order; the first is the primary model, the rest fallbacks.
type Config struct {
	Strategies []ProviderConfig `mapstructure:"strategies"`

	// MaxAttempts bounds the retries of each strategy before moving on.
	MaxAttempts int `mapstructure:"max_attempts"`

	// Backoff is the base delay between retries.
	Backoff time.Duration `mapstructure:"backoff"`
}

// DefaultConfig returns the default extraction configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 5,
		Backoff:     time.Second,
	}
}
