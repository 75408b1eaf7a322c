package embedding

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/cinesense/store"
)

// mockEmbeddingService is a mock implementation of ai.EmbeddingService for testing.
type mockEmbeddingService struct {
	embedBatchFunc func(ctx context.Context, texts []string) ([][]float32, error)
	dimensions     int
	batchCallCount atomic.Int32
	shouldFail     bool
}

func newMockEmbeddingService(dimensions int) *mockEmbeddingService {
	return &mockEmbeddingService{dimensions: dimensions}
}

func (m *mockEmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (m *mockEmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.batchCallCount.Add(1)
	if m.shouldFail {
		return nil, errors.New("batch embedding error")
	}
	if m.embedBatchFunc != nil {
		return m.embedBatchFunc(ctx, texts)
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vector := make([]float32, m.dimensions)
		for j := range vector {
			vector[j] = 0.1
		}
		vectors[i] = vector
	}
	return vectors, nil
}

func (m *mockEmbeddingService) Dimensions() int {
	return m.dimensions
}

func (m *mockEmbeddingService) Model() string {
	return "all-MiniLM-L6-v2"
}

// memoryStore keeps reviews and embeddings in memory and honours the
// pending-review query the runner issues.
type memoryStore struct {
	mu         sync.Mutex
	reviews    []*store.Review
	embeddings map[int32]*store.ReviewEmbedding
	upsertErr  map[int32]error
}

func newMemoryStore(reviews []*store.Review) *memoryStore {
	return &memoryStore{reviews: reviews, embeddings: map[int32]*store.ReviewEmbedding{}, upsertErr: map[int32]error{}}
}

func (s *memoryStore) ListReviews(_ context.Context, find *store.FindReview) ([]*store.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.Review
	for _, r := range s.reviews {
		if find.HasContent && r.Content == "" {
			continue
		}
		if _, ok := s.embeddings[r.ID]; find.WithoutEmbedding && ok {
			continue
		}
		out = append(out, r)
		if find.Limit > 0 && len(out) == find.Limit {
			break
		}
	}
	return out, nil
}

func (s *memoryStore) UpsertReviewEmbedding(_ context.Context, e *store.ReviewEmbedding) (*store.ReviewEmbedding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.upsertErr[e.ReviewID]; err != nil {
		return nil, err
	}
	s.embeddings[e.ReviewID] = e
	return e, nil
}

func createReviews(count int) []*store.Review {
	reviews := make([]*store.Review, count)
	for i := 0; i < count; i++ {
		reviews[i] = &store.Review{
			ID:      int32(i + 1),
			UserID:  "u1",
			MovieID: int32(1000 + i),
			Content: "test content",
		}
	}
	return reviews
}

// TestNewRunner tests the runner constructor.
func TestNewRunner(t *testing.T) {
	mockService := newMockEmbeddingService(384)
	s := newMemoryStore(nil)

	runner := NewRunner(s, mockService)

	assert.NotNil(t, runner)
	assert.Equal(t, 2*time.Minute, runner.interval)
	assert.Equal(t, 8, runner.batchSize)
}

// TestRunnerProcessBatch_EmptyBatch tests empty batch handling.
func TestRunnerProcessBatch_EmptyBatch(t *testing.T) {
	runner := NewRunner(newMemoryStore(nil), newMockEmbeddingService(384))

	n, err := runner.processBatch(context.Background(), []*store.Review{})
	assert.NoError(t, err)
	assert.Zero(t, n)
}

// TestRunnerProcessBatch_EmbeddingFailure tests embedding service failure handling.
func TestRunnerProcessBatch_EmbeddingFailure(t *testing.T) {
	mockSvc := newMockEmbeddingService(384)
	mockSvc.shouldFail = true
	runner := NewRunner(newMemoryStore(nil), mockSvc)

	_, err := runner.processBatch(context.Background(), createReviews(1))
	assert.Error(t, err)
}

func TestRunnerProcessBatch_CountMismatch(t *testing.T) {
	mockSvc := newMockEmbeddingService(384)
	mockSvc.embedBatchFunc = func(context.Context, []string) ([][]float32, error) {
		return [][]float32{{1}}, nil
	}
	runner := NewRunner(newMemoryStore(nil), mockSvc)

	_, err := runner.processBatch(context.Background(), createReviews(2))
	assert.Error(t, err)
}

func TestRunnerProcessBatch_StoresEmbeddings(t *testing.T) {
	s := newMemoryStore(nil)
	runner := NewRunner(s, newMockEmbeddingService(384))

	reviews := createReviews(3)
	s.upsertErr[2] = errors.New("constraint violation")

	n, err := runner.processBatch(context.Background(), reviews)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Contains(t, s.embeddings, int32(1))
	assert.Equal(t, int32(1000), s.embeddings[1].MovieID)
	assert.Equal(t, "all-MiniLM-L6-v2", s.embeddings[1].Model)
	assert.Len(t, s.embeddings[1].Embedding, 384)
	assert.NotContains(t, s.embeddings, int32(2))
}

func TestRunnerProcessBatch_BoundsEmbeddingCall(t *testing.T) {
	mockSvc := newMockEmbeddingService(4)
	var hasDeadline bool
	mockSvc.embedBatchFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		_, hasDeadline = ctx.Deadline()
		return make([][]float32, len(texts)), nil
	}
	runner := NewRunner(newMemoryStore(nil), mockSvc)

	_, err := runner.processBatch(context.Background(), createReviews(1))
	require.NoError(t, err)
	assert.True(t, hasDeadline)
}

// TestRunnerBackfill processes every pending review across pages and batches.
func TestRunnerBackfill(t *testing.T) {
	tests := []struct {
		name        string
		batchSize   int
		reviewCount int
	}{
		{"batch size 1", 1, 25},
		{"batch size 5", 5, 12},
		{"batch size 8, multiple pages", 8, 170},
		{"batch size larger than reviews", 100, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reviews := createReviews(tt.reviewCount)
			// Reviews without text are never embedded.
			reviews = append(reviews, &store.Review{ID: 9999, MovieID: 1})

			s := newMemoryStore(reviews)
			mockSvc := newMockEmbeddingService(4)
			runner := NewRunner(s, mockSvc)
			runner.batchSize = tt.batchSize

			total := runner.Backfill(context.Background())

			assert.Equal(t, tt.reviewCount, total)
			assert.Len(t, s.embeddings, tt.reviewCount)
			assert.NotContains(t, s.embeddings, int32(9999))
			expectedBatches := (tt.reviewCount + tt.batchSize - 1) / tt.batchSize
			assert.Equal(t, int32(expectedBatches), mockSvc.batchCallCount.Load())
		})
	}
}

func TestRunnerBackfill_StopsWithoutProgress(t *testing.T) {
	mockSvc := newMockEmbeddingService(4)
	mockSvc.shouldFail = true
	runner := NewRunner(newMemoryStore(createReviews(3)), mockSvc)

	done := make(chan int, 1)
	go func() { done <- runner.Backfill(context.Background()) }()

	select {
	case total := <-done:
		assert.Zero(t, total)
	case <-time.After(2 * time.Second):
		t.Fatal("backfill did not stop after a pass without progress")
	}
}

func TestRunnerRun_StopsOnCancel(t *testing.T) {
	s := newMemoryStore(createReviews(2))
	runner := NewRunner(s, newMockEmbeddingService(4))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runner.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.embeddings) == 2
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner did not stop after cancel")
	}
}
