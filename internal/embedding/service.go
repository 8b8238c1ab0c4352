// Package embedding turns record text into fixed-length vectors.
//
// The detection engine only needs the Embedder capability. Service adapts a
// provider Client (the offline hash embedder or an HTTP API) to it, splits
// large inputs into provider-sized batches, and keeps the output aligned with
// the input positions.
package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/DreamCats/doubles/internal/config"
)

// Embedder maps one text to a vector. Implementations must be deterministic
// for a given text and model configuration.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// BatchEmbedder is implemented by embedders that can embed many texts in one
// call. The result has one vector per input, in input order.
type BatchEmbedder interface {
	Embedder
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Client is the interface for embedding providers
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Service provides embedding generation on top of a provider Client
type Service struct {
	cfg    *config.EmbeddingConfig
	client Client
}

// NewService creates a new embedding service for the configured provider
func NewService(cfg *config.EmbeddingConfig) (*Service, error) {
	var client Client
	var err error

	switch cfg.Provider {
	case "", "hash":
		client, err = NewHashEmbedder(cfg.Dimensions)
	case "volcengine":
		client, err = NewVolcEngineClient(cfg)
	case "openai":
		client, err = NewOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}

	return NewServiceWithClient(cfg, client), nil
}

// NewServiceWithClient wraps an existing client.
func NewServiceWithClient(cfg *config.EmbeddingConfig, client Client) *Service {
	if cfg == nil {
		cfg = &config.EmbeddingConfig{}
	}
	return &Service{cfg: cfg, client: client}
}

// Embed generates an embedding for a single text. Blank text yields a zero
// vector of the provider's dimensionality.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return make([]float32, s.client.Dimensions()), nil
	}
	return s.client.Embed(ctx, text)
}

// EmbedBatch generates embeddings for multiple texts.
//
// Blank texts are not sent to the provider; they get a zero vector with the
// same length as the other results, which the similarity stage reports as
// degenerate for the owning record.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	validTexts := make([]string, 0, len(texts))
	validIndices := make([]int, 0, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) != "" {
			validTexts = append(validTexts, text)
			validIndices = append(validIndices, i)
		}
	}

	batchSize := s.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}

	results := make([][]float32, len(texts))
	dim := s.client.Dimensions()

	for i := 0; i < len(validTexts); i += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(i+batchSize, len(validTexts))

		embeddings, err := s.client.EmbedBatch(ctx, validTexts[i:end])
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch %d-%d: %w", i, end, err)
		}
		if len(embeddings) != end-i {
			return nil, fmt.Errorf("embed batch %d-%d: expected %d embeddings, got %d", i, end, end-i, len(embeddings))
		}

		for j, emb := range embeddings {
			results[validIndices[i+j]] = emb
			if dim == 0 {
				dim = len(emb)
			}
		}
	}

	for i := range results {
		if results[i] == nil {
			results[i] = make([]float32, dim)
		}
	}
	return results, nil
}

// Dimensions returns the dimension of the embeddings
func (s *Service) Dimensions() int {
	return s.client.Dimensions()
}

// Provider returns the configured provider name.
func (s *Service) Provider() string {
	if s.cfg.Provider == "" {
		return "hash"
	}
	return s.cfg.Provider
}

// EmbedAll embeds texts in order, in one call when e supports batching.
func EmbedAll(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if b, ok := e.(BatchEmbedder); ok {
		vectors, err := b.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
		}
		return vectors, nil
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		vectors[i] = v
	}
	return vectors, nil
}
