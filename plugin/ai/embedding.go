package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/hrygo/cinesense/plugin/ai/timeout"
)

// ErrDimensionMismatch is returned when a backend produces vectors of an unexpected size.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// EmbeddingError wraps a backend failure. It is never retried at this layer.
type EmbeddingError struct {
	Backend string
	Cause   error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("%s embedding failed: %v", e.Backend, e.Cause)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Cause
}

// EmbeddingService is the vector embedding service interface.
// Every returned vector is L2-normalized and has exactly Dimensions() elements.
type EmbeddingService interface {
	// Embed generates vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates vectors for multiple texts, preserving order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector dimension.
	Dimensions() int

	// Model returns the embedding model identifier.
	Model() string
}

// NewEmbeddingService creates the EmbeddingService selected by cfg.Backend.
func NewEmbeddingService(cfg *EmbeddingConfig) (EmbeddingService, error) {
	switch cfg.Backend {
	case BackendRemote:
		return newRemoteEmbeddingService(cfg), nil
	case BackendLocal:
		return newLocalEmbeddingService(cfg, sharedLocalModels), nil
	default:
		return nil, fmt.Errorf("unsupported embedding backend: %s", cfg.Backend)
	}
}

// remoteEmbeddingService calls an OpenAI-compatible inference API, one request per invocation.
type remoteEmbeddingService struct {
	client     *openai.Client
	model      string
	dimensions int
}

func newRemoteEmbeddingService(cfg *EmbeddingConfig) *remoteEmbeddingService {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &remoteEmbeddingService{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}
}

func (s *remoteEmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (s *remoteEmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, &EmbeddingError{Backend: BackendRemote, Cause: errors.New("no texts provided for embedding")}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout.EmbeddingTimeout)
	defer cancel()

	resp, err := s.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(s.model),
	})
	if err != nil {
		return nil, &EmbeddingError{Backend: BackendRemote, Cause: err}
	}
	if len(resp.Data) != len(texts) {
		return nil, &EmbeddingError{
			Backend: BackendRemote,
			Cause:   fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data)),
		}
	}

	// The API reports each vector's input position; do not rely on response order.
	vectors := make([][]float32, len(texts))
	for i, data := range resp.Data {
		idx := data.Index
		if idx < 0 || idx >= len(texts) || vectors[idx] != nil {
			idx = i
		}
		vectors[idx] = data.Embedding
	}

	return finalizeVectors(BackendRemote, vectors, s.dimensions)
}

func (s *remoteEmbeddingService) Dimensions() int {
	return s.dimensions
}

func (s *remoteEmbeddingService) Model() string {
	return s.model
}

// finalizeVectors checks dimensionality and L2-normalizes each vector.
func finalizeVectors(backend string, vectors [][]float32, dimensions int) ([][]float32, error) {
	out := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, &EmbeddingError{Backend: backend, Cause: fmt.Errorf("empty embedding at position %d", i)}
		}
		if dimensions > 0 && len(v) != dimensions {
			return nil, &EmbeddingError{
				Backend: backend,
				Cause:   fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, dimensions, len(v)),
			}
		}
		out[i] = Normalize(v)
	}
	return out, nil
}
