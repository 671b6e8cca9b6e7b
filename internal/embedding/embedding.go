// Package embedding provides text embedding generation for cubechat.
// Embeddings back the nearest-neighbor entity resolution of member
// labels used when raw filter values are mapped to canonical members.
package embedding

import (
	"context"
	"errors"
	"math"
)

// Common errors for embedding operations.
var (
	ErrEmptyText         = errors.New("text cannot be empty")
	ErrProviderClosed    = errors.New("embedding provider is closed")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Provider defines the interface for embedding generation.
type Provider interface {
	// Embed generates an embedding vector for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the dimension of the embedding vectors.
	Dimension() int

	// Close releases any resources held by the provider.
	Close() error
}

// Config holds configuration for embedding providers.
type Config struct {
	// Provider selects the provider: "remote" or "mock".
	Provider string `mapstructure:"provider"`

	// BaseURL is the endpoint of the remote embedding service.
	BaseURL string `mapstructure:"base_url"`

	// APIKey authenticates against the remote service, when required.
	APIKey string `mapstructure:"api_key"`

	// Model names the embedding model served remotely.
	Model string `mapstructure:"model"`

	// Dimension is the embedding dimension.
	Dimension int `mapstructure:"dimension"`

	// BatchSize bounds batch requests to the remote service.
	BatchSize int `mapstructure:"batch_size"`
}

// DefaultConfig returns the default embedding configuration.
func DefaultConfig() Config {
	return Config{
		Provider:  "mock",
		Model:     "multi-qa-MiniLM-L6-cos-v1",
		Dimension: 384,
		BatchSize: 32,
	}
}

// NewProvider creates an embedding provider from configuration.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "mock", "":
		dim := cfg.Dimension
		if dim == 0 {
			dim = 384
		}
		return NewMockProvider(dim), nil
	case "remote":
		return NewRemoteProvider(cfg)
	default:
		return nil, errors.New("unknown embedding provider: " + cfg.Provider)
	}
}

// CosineSimilarity calculates the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical direction.
func CosineSimilarity(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}
	if len(a) == 0 {
		return 0, errors.New("vectors cannot be empty")
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB))), nil
}

// Normalize normalizes a vector to unit length.
func Normalize(v []float32) []float32 {
	var norm float64
	for _, val := range v {
		norm += float64(val) * float64(val)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, val := range v {
		out[i] = float32(float64(val) / norm)
	}
	return out
}
