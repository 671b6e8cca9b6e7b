// Package openai provides an extraction provider for OpenAI-compatible
// hosted APIs (OpenAI itself, OpenRouter and similar gateways).
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/datales/cubechat/internal/extraction"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultTimeout = 120 * time.Second
)

// Provider implements extraction.Provider for OpenAI-compatible APIs.
type Provider struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	closed     bool
	mu         sync.RWMutex
}

// NewProvider creates a new OpenAI-compatible provider.
func NewProvider(name string, cfg extraction.ProviderConfig) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai provider requires an API key")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	return &Provider{
		name:       name,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type chatRequest struct {
	Model          string               `json:"model"`
	Messages       []extraction.Message `json:"messages"`
	Temperature    *float64             `json:"temperature,omitempty"`
	MaxTokens      *int                 `json:"max_tokens,omitempty"`
	Stream         bool                 `json:"stream"`
	ResponseFormat *responseFormat      `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// Complete implements extraction.Provider.Complete.
func (p *Provider) Complete(ctx context.Context, req *extraction.CompletionRequest) (*extraction.CompletionResponse, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, extraction.ErrProviderClosed
	}
	p.mu.RUnlock()

	if len(req.Messages) == 0 {
		return nil, extraction.ErrEmptyMessages
	}

	chatReq := chatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSONMode {
		chatReq.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		p.baseURL+"/chat/completions",
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	p.setHeaders(httpReq)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, p.handleErrorResponse(resp)
	}

	var result extraction.CompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}

func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
}

func (p *Provider) handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var apiErr struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("%s returned status %d: %s", p.name, resp.StatusCode, apiErr.Error.Message)
	}
	return fmt.Errorf("%s returned status %d", p.name, resp.StatusCode)
}

// Name implements extraction.Provider.Name.
func (p *Provider) Name() string {
	return p.name
}

// Close implements extraction.Provider.Close.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
