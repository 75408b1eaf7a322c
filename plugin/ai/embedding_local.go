package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/hrygo/cinesense/plugin/ai/timeout"
)

// documentEmbedder is the subset of langchaingo's embeddings.Embedder used here.
type documentEmbedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// localModelLoader constructs and warms up a local model.
type localModelLoader func(ctx context.Context) (documentEmbedder, error)

// localModelRegistry holds the process-wide local model handles.
// Each key is loaded at most once; a failed load is retried by the next caller.
type localModelRegistry struct {
	mu      sync.Mutex
	entries map[string]*localModelEntry
}

type localModelEntry struct {
	mu    sync.Mutex
	model documentEmbedder
}

func newLocalModelRegistry() *localModelRegistry {
	return &localModelRegistry{entries: make(map[string]*localModelEntry)}
}

// sharedLocalModels is the handle shared by every local embedding service in the process.
var sharedLocalModels = newLocalModelRegistry()

func (r *localModelRegistry) get(ctx context.Context, key string, load localModelLoader) (documentEmbedder, error) {
	r.mu.Lock()
	entry, ok := r.entries[key]
	if !ok {
		entry = &localModelEntry{}
		r.entries[key] = entry
	}
	r.mu.Unlock()

	// Concurrent callers for the same key wait here while the first one loads.
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.model != nil {
		return entry.model, nil
	}
	model, err := load(ctx)
	if err != nil {
		return nil, err
	}
	entry.model = model
	return model, nil
}

type localEmbeddingService struct {
	registry   *localModelRegistry
	key        string
	load       localModelLoader
	model      string
	dimensions int
}

func newLocalEmbeddingService(cfg *EmbeddingConfig, registry *localModelRegistry) *localEmbeddingService {
	serverURL, model := cfg.OllamaURL, cfg.Model
	return &localEmbeddingService{
		registry:   registry,
		key:        serverURL + "|" + model,
		load:       ollamaLoader(serverURL, model),
		model:      model,
		dimensions: cfg.Dimensions,
	}
}

// ollamaLoader builds a langchaingo embedder over a local Ollama server and forces
// the model into memory with a single warm-up request.
func ollamaLoader(serverURL, model string) localModelLoader {
	return func(ctx context.Context) (documentEmbedder, error) {
		llm, err := ollama.New(
			ollama.WithModel(model),
			ollama.WithServerURL(serverURL),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama client: %w", err)
		}
		embedder, err := embeddings.NewEmbedder(llm)
		if err != nil {
			return nil, fmt.Errorf("create embedder: %w", err)
		}
		if _, err := embedder.EmbedDocuments(ctx, []string{"warm-up"}); err != nil {
			return nil, fmt.Errorf("load model %s: %w", model, err)
		}
		slog.Info("local embedding model loaded", "model", model, "server", serverURL)
		return embedder, nil
	}
}

func (s *localEmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (s *localEmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, &EmbeddingError{Backend: BackendLocal, Cause: errors.New("no texts provided for embedding")}
	}

	model, err := s.registry.get(ctx, s.key, s.load)
	if err != nil {
		return nil, &EmbeddingError{Backend: BackendLocal, Cause: err}
	}

	embedCtx, cancel := context.WithTimeout(ctx, timeout.EmbeddingTimeout)
	defer cancel()
	vectors, err := model.EmbedDocuments(embedCtx, texts)
	if err != nil {
		return nil, &EmbeddingError{Backend: BackendLocal, Cause: err}
	}
	if len(vectors) != len(texts) {
		return nil, &EmbeddingError{
			Backend: BackendLocal,
			Cause:   fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vectors)),
		}
	}

	return finalizeVectors(BackendLocal, vectors, s.dimensions)
}

func (s *localEmbeddingService) Dimensions() int {
	return s.dimensions
}

func (s *localEmbeddingService) Model() string {
	return s.model
}
