package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newEmbeddingServer serves an OpenAI-compatible /embeddings endpoint that returns
// vectors in reverse order so index handling is exercised.
func newEmbeddingServer(t *testing.T, dims int, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			vec := make([]float32, dims)
			// Un-normalized: position i gets magnitude i+2 on axis i%dims.
			vec[i%dims] = float32(i + 2)
			data = append(data, item{Object: "embedding", Embedding: vec, Index: i})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
}

func TestNewEmbeddingService(t *testing.T) {
	tests := []struct {
		name        string
		cfg         *EmbeddingConfig
		expectError bool
	}{
		{
			name:        "remote backend",
			cfg:         &EmbeddingConfig{Backend: BackendRemote, Model: "m", Dimensions: 384, APIKey: "k", BaseURL: "http://localhost"},
			expectError: false,
		},
		{
			name:        "local backend",
			cfg:         &EmbeddingConfig{Backend: BackendLocal, Model: "all-minilm", Dimensions: 384, OllamaURL: "http://localhost:11434"},
			expectError: false,
		},
		{
			name:        "unsupported backend",
			cfg:         &EmbeddingConfig{Backend: "gpu-farm"},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewEmbeddingService(tt.cfg)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.cfg.Dimensions, svc.Dimensions())
			assert.Equal(t, tt.cfg.Model, svc.Model())
		})
	}
}

func TestRemoteEmbedBatch_ShapeAndNormalization(t *testing.T) {
	var calls atomic.Int32
	server := newEmbeddingServer(t, 4, &calls)
	defer server.Close()

	svc, err := NewEmbeddingService(&EmbeddingConfig{
		Backend: BackendRemote, Model: "all-MiniLM-L6-v2", Dimensions: 4, APIKey: "k", BaseURL: server.URL,
	})
	require.NoError(t, err)

	texts := []string{"a", "b", "c"}
	vectors, err := svc.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))

	for i, v := range vectors {
		assert.Len(t, v, 4)
		assert.InDelta(t, 1.0, Norm(v), 1e-3)
		// Order must follow input, not response order.
		assert.InDelta(t, 1.0, v[i%4], 1e-6)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestRemoteEmbed_Single(t *testing.T) {
	var calls atomic.Int32
	server := newEmbeddingServer(t, 3, &calls)
	defer server.Close()

	svc := newRemoteEmbeddingService(&EmbeddingConfig{Model: "m", Dimensions: 3, APIKey: "k", BaseURL: server.URL})
	vec, err := svc.Embed(context.Background(), "gritty heist")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, vec)
}

func TestRemoteEmbed_DimensionMismatch(t *testing.T) {
	var calls atomic.Int32
	server := newEmbeddingServer(t, 3, &calls)
	defer server.Close()

	svc := newRemoteEmbeddingService(&EmbeddingConfig{Model: "m", Dimensions: 384, APIKey: "k", BaseURL: server.URL})
	_, err := svc.Embed(context.Background(), "text")
	require.Error(t, err)

	var embErr *EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.Equal(t, BackendRemote, embErr.Backend)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestRemoteEmbed_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"boom","type":"server_error"}}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	svc := newRemoteEmbeddingService(&EmbeddingConfig{Model: "m", Dimensions: 3, APIKey: "k", BaseURL: server.URL})
	_, err := svc.Embed(context.Background(), "text")

	var embErr *EmbeddingError
	assert.ErrorAs(t, err, &embErr)
}

func TestRemoteEmbedBatch_Empty(t *testing.T) {
	svc := newRemoteEmbeddingService(&EmbeddingConfig{Model: "m", Dimensions: 3, APIKey: "k", BaseURL: "http://127.0.0.1:1"})
	_, err := svc.EmbedBatch(context.Background(), nil)
	assert.Error(t, err)
}

// fakeDocumentEmbedder returns a fixed un-normalized vector per text.
type fakeDocumentEmbedder struct {
	dims  int
	calls atomic.Int32
	err   error
}

func (f *fakeDocumentEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, f.dims)
		for j := range v {
			v[j] = 3
		}
		out[i] = v
	}
	return out, nil
}

func TestLocalModelRegistry_LoadsOnce(t *testing.T) {
	registry := newLocalModelRegistry()
	model := &fakeDocumentEmbedder{dims: 4}

	var loads atomic.Int32
	load := func(context.Context) (documentEmbedder, error) {
		loads.Add(1)
		return model, nil
	}

	svc := &localEmbeddingService{registry: registry, key: "k", load: load, model: "all-minilm", dimensions: 4}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vecs, err := svc.EmbedBatch(context.Background(), []string{"x", "y"})
			assert.NoError(t, err)
			assert.Len(t, vecs, 2)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load())
	assert.Equal(t, int32(32), model.calls.Load())

	// A second service sharing the registry and key reuses the loaded model.
	other := &localEmbeddingService{registry: registry, key: "k", load: load, model: "all-minilm", dimensions: 4}
	vec, err := other.Embed(context.Background(), "z")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, Norm(vec), 1e-3)
	assert.Equal(t, int32(1), loads.Load())
}

func TestLocalModelRegistry_RetriesFailedLoad(t *testing.T) {
	registry := newLocalModelRegistry()
	var loads atomic.Int32
	load := func(context.Context) (documentEmbedder, error) {
		if loads.Add(1) == 1 {
			return nil, errors.New("ollama not running")
		}
		return &fakeDocumentEmbedder{dims: 2}, nil
	}
	svc := &localEmbeddingService{registry: registry, key: "k", load: load, model: "m", dimensions: 2}

	_, err := svc.Embed(context.Background(), "first")
	var embErr *EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.Equal(t, BackendLocal, embErr.Backend)

	vec, err := svc.Embed(context.Background(), "second")
	require.NoError(t, err)
	assert.Len(t, vec, 2)
	assert.Equal(t, int32(2), loads.Load())
}

// deadlineRecorder reports whether EmbedDocuments saw a deadline.
type deadlineRecorder struct {
	hasDeadline bool
}

func (d *deadlineRecorder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	_, d.hasDeadline = ctx.Deadline()
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 1}
	}
	return out, nil
}

func TestLocalEmbed_BoundsInference(t *testing.T) {
	model := &deadlineRecorder{}
	svc := &localEmbeddingService{
		registry: newLocalModelRegistry(), key: "k", model: "m", dimensions: 2,
		load: func(context.Context) (documentEmbedder, error) { return model, nil },
	}

	_, err := svc.Embed(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, model.hasDeadline)
}

func TestLocalEmbed_InferenceError(t *testing.T) {
	registry := newLocalModelRegistry()
	model := &fakeDocumentEmbedder{dims: 2, err: errors.New("out of memory")}
	svc := &localEmbeddingService{
		registry: registry, key: "k", model: "m", dimensions: 2,
		load: func(context.Context) (documentEmbedder, error) { return model, nil },
	}

	_, err := svc.EmbedBatch(context.Background(), []string{"a"})
	var embErr *EmbeddingError
	assert.ErrorAs(t, err, &embErr)
}
