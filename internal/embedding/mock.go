package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/datales/cubechat/internal/metrics"
)

// MockProvider is a deterministic embedding provider for testing. It
// embeds text as a bag of hashed tokens, so identical strings map to
// identical vectors and strings sharing tokens score high cosine
// similarity, which is what nearest-neighbor tests need.
type MockProvider struct {
	dimension int
	metrics   *metrics.Metrics
	closed    bool
	mu        sync.RWMutex
}

// NewMockProvider creates a new mock embedding provider.
func NewMockProvider(dimension int) *MockProvider {
	if dimension <= 0 {
		dimension = 384
	}
	return &MockProvider{dimension: dimension, metrics: metrics.Default()}
}

// Embed generates a deterministic embedding for the text.
func (p *MockProvider) Embed(ctx context.Context, text string) (vec []float32, err error) {
	started := time.Now()
	defer func() {
		p.metrics.RecordEmbeddingOperation("mock", err == nil, time.Since(started).Seconds())
	}()

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, ErrProviderClosed
	}
	p.mu.RUnlock()

	if text == "" {
		return nil, ErrEmptyText
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	return p.generateEmbedding(text), nil
}

// EmbedBatch generates embeddings for multiple texts.
func (p *MockProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := p.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		results[i] = vec
	}
	return results, nil
}

// Dimension returns the embedding dimension.
func (p *MockProvider) Dimension() int {
	return p.dimension
}

// Close closes the provider.
func (p *MockProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *MockProvider) generateEmbedding(text string) []float32 {
	vec := make([]float32, p.dimension)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New64a()
		h.Write([]byte(token))
		seed := h.Sum64()

		// Spread each token over a handful of buckets so partial token
		// overlap still yields graded similarity.
		state := seed
		for i := 0; i < 8; i++ {
			state = state*1103515245 + 12345
			idx := int(state % uint64(p.dimension))
			if state&1 == 0 {
				vec[idx]++
			} else {
				vec[idx]--
			}
		}
	}
	return Normalize(vec)
}
