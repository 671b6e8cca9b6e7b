package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/datales/cubechat/internal/metrics"
)

const (
	defaultRemoteTimeout   = 30 * time.Second
	defaultRemoteBatchSize = 32
)

// RemoteProvider generates embeddings through an OpenAI-compatible
// /embeddings endpoint, such as the one exposed by a sentence-transformer
// serving container.
type RemoteProvider struct {
	baseURL    string
	apiKey     string
	model      string
	dimension  int
	batchSize  int
	httpClient *http.Client
	metrics    *metrics.Metrics
	closed     bool
	mu         sync.RWMutex
}

// NewRemoteProvider creates a remote embedding provider.
func NewRemoteProvider(cfg Config) (*RemoteProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("remote embedding provider requires a base URL")
	}
	dim := cfg.Dimension
	if dim == 0 {
		dim = 384
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultRemoteBatchSize
	}
	return &RemoteProvider{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimension:  dim,
		batchSize:  batch,
		httpClient: &http.Client{Timeout: defaultRemoteTimeout},
		metrics:    metrics.Default(),
	}, nil
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed generates an embedding for a single text.
func (p *RemoteProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts, chunked to the
// configured batch size.
func (p *RemoteProvider) EmbedBatch(ctx context.Context, texts []string) (out [][]float32, err error) {
	started := time.Now()
	defer func() {
		p.metrics.RecordEmbeddingOperation("remote", err == nil, time.Since(started).Seconds())
	}()

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, ErrProviderClosed
	}
	p.mu.RUnlock()

	for _, t := range texts {
		if t == "" {
			return nil, ErrEmptyText
		}
	}

	out = make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.batchSize {
		end := start + p.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := p.embedChunk(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (p *RemoteProvider) embedChunk(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding service returned status %d", resp.StatusCode)
	}

	var result embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d inputs", len(result.Data), len(texts))
	}

	vecs := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, fmt.Errorf("embedding service returned out-of-range index %d", d.Index)
		}
		if len(d.Embedding) != p.dimension {
			return nil, ErrDimensionMismatch
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

// Dimension returns the embedding dimension.
func (p *RemoteProvider) Dimension() int {
	return p.dimension
}

// Close closes the provider.
func (p *RemoteProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
