package extraction

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockProvider implements Provider for testing. Responses are served
// from a queue so multi-step flows (classify, then select, then extract)
// can script one reply per call; the last response is repeated once the
// queue runs dry.
type MockProvider struct {
	name      string
	responses []string
	next      int
	err       error
	requests  []*CompletionRequest
	closed    bool
	mu        sync.Mutex
}

// NewMockProvider creates a new mock provider.
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{name: name}
}

// WithResponses queues replies, served in order.
func (m *MockProvider) WithResponses(responses ...string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, responses...)
	return m
}

// WithError makes every completion fail with err.
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Requests returns every request the mock has seen.
func (m *MockProvider) Requests() []*CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*CompletionRequest(nil), m.requests...)
}

// Complete implements Provider.Complete.
func (m *MockProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrProviderClosed
	}
	if len(req.Messages) == 0 {
		return nil, ErrEmptyMessages
	}
	m.requests = append(m.requests, req)

	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) == 0 {
		return nil, fmt.Errorf("mock provider %q has no responses queued", m.name)
	}

	content := m.responses[m.next]
	if m.next < len(m.responses)-1 {
		m.next++
	}

	return &CompletionResponse{
		ID:      fmt.Sprintf("mock-%d", time.Now().UnixNano()),
		Model:   req.Model,
		Created: time.Now().Unix(),
		Choices: []Choice{
			{
				Index:        0,
				Message:      &Message{Role: "assistant", Content: content},
				FinishReason: "stop",
			},
		},
	}, nil
}

// Name implements Provider.Name.
func (m *MockProvider) Name() string {
	return m.name
}

// Close implements Provider.Close.
func (m *MockProvider) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
