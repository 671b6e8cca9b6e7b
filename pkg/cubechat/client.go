// Package cubechat provides the Go SDK for the cubechat server.
package cubechat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	// DefaultTimeout is the default HTTP client timeout. Turns wait on
	// model calls, so it is generous.
	DefaultTimeout = 2 * time.Minute
	// DefaultBaseURL is the default cubechat server URL.
	DefaultBaseURL = "http://localhost:8080"
)

// Client is the cubechat SDK client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	headers    map[string]string
}

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// WithBaseURL sets the base URL for the client.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithAPIKey authenticates every request with the given API key.
func WithAPIKey(key string) ClientOption {
	return WithHeader("X-API-Key", key)
}

// WithHeader adds a custom header to all requests.
func WithHeader(key, value string) ClientOption {
	return func(c *Client) {
		if c.headers == nil {
			c.headers = make(map[string]string)
		}
		c.headers[key] = value
	}
}

// New creates a new cubechat client with the given options.
func New(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		headers: make(map[string]string),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// do performs an HTTP request and decodes the response.
func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr APIError
		apiErr.StatusCode = resp.StatusCode
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Message != "" {
			return &apiErr
		}
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("server error: %s", string(respBody)),
		}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// Health checks if the server is healthy.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Ready checks if the server is ready to serve requests.
func (c *Client) Ready(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	return c.do(ctx, http.MethodGet, "/ready", nil, &resp)
}

// Stats returns server statistics.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := c.do(ctx, http.MethodGet, "/v1/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Chat operations

// Chat sends one dialogue turn. An empty session ID starts a new
// session; the returned response carries the session ID to continue it.
func (c *Client) Chat(ctx context.Context, sessionID, message string) (*ChatResponse, error) {
	if message == "" {
		return nil, fmt.Errorf("message is required")
	}

	var resp ChatResponse
	req := &ChatRequest{SessionID: sessionID, Message: message}
	if err := c.do(ctx, http.MethodPost, "/v1/chat", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Ask is a convenience method starting a fresh session with a single
// question.
func (c *Client) Ask(ctx context.Context, question string) (*ChatResponse, error) {
	return c.Chat(ctx, "", question)
}

// Session operations

// GetSession retrieves a session by ID.
func (c *Client) GetSession(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, fmt.Errorf("id is required")
	}

	var sess Session
	if err := c.do(ctx, http.MethodGet, "/v1/sessions/"+url.PathEscape(id), nil, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// DeleteSession deletes a session by ID.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("id is required")
	}
	return c.do(ctx, http.MethodDelete, "/v1/sessions/"+url.PathEscape(id), nil, nil)
}

// Catalog operations

// ListCubes lists the cubes the server can answer questions about.
func (c *Client) ListCubes(ctx context.Context) (*CubeList, error) {
	var resp CubeList
	if err := c.do(ctx, http.MethodGet, "/v1/cubes", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetCube retrieves one cube's full schema.
func (c *Client) GetCube(ctx context.Context, name string) (*Cube, error) {
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}

	var cube Cube
	if err := c.do(ctx, http.MethodGet, "/v1/cubes/"+url.PathEscape(name), nil, &cube); err != nil {
		return nil, err
	}
	return &cube, nil
}
