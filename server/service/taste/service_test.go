package taste

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/cinesense/plugin/tmdb"
	"github.com/hrygo/cinesense/store"
)

type memoryStore struct {
	mu         sync.Mutex
	profiles   map[string]*store.TasteProfile
	embeddings map[int32]*store.ReviewEmbedding
	getErr     error
	upsertErr  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		profiles:   map[string]*store.TasteProfile{},
		embeddings: map[int32]*store.ReviewEmbedding{},
	}
}

func (m *memoryStore) GetTasteProfile(_ context.Context, userID string) (*store.TasteProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	p, ok := m.profiles[userID]
	if !ok {
		return nil, nil
	}
	clone := *p
	return &clone, nil
}

func (m *memoryStore) UpsertTasteProfile(_ context.Context, upsert *store.TasteProfile) (*store.TasteProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return nil, m.upsertErr
	}
	clone := *upsert
	m.profiles[upsert.UserID] = &clone
	return &clone, nil
}

func (m *memoryStore) UpsertReviewEmbedding(_ context.Context, e *store.ReviewEmbedding) (*store.ReviewEmbedding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embeddings[e.ReviewID] = e
	return e, nil
}

// fakeEmbedder returns the vector registered for a text.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   []string
	// deadlines records whether each call's context carried a deadline.
	deadlines []bool
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls = append(f.calls, text)
	_, ok := ctx.Deadline()
	f.deadlines = append(f.deadlines, ok)
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.vectors[text]
	if !ok {
		return []float32{0, 0}, nil
	}
	return v, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return 2 }
func (f *fakeEmbedder) Model() string   { return "fake-model" }

type fakeMovies map[int32]*tmdb.Movie

func (f fakeMovies) GetByID(_ context.Context, id int32) *tmdb.Movie {
	return f[id]
}

func rating(v int32) *int32 {
	return &v
}

func TestUpdateTaste_TwoRatings(t *testing.T) {
	st := newMemoryStore()
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"movie A": {1, 0},
		"movie B": {0, 1},
	}}
	svc := NewService(st, emb, nil)
	ctx := context.Background()

	first, err := svc.UpdateTaste(ctx, "u1", "movie A")
	require.NoError(t, err)
	assert.Equal(t, int32(1), first.RatingCount)
	assert.Equal(t, []float32{1, 0}, first.TasteVector)

	second, err := svc.UpdateTaste(ctx, "u1", "movie B")
	require.NoError(t, err)
	assert.Equal(t, int32(2), second.RatingCount)
	assert.InDeltaSlice(t, []float32{0.5, 0.5}, second.TasteVector, 1e-6)

	stored, err := st.GetTasteProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), stored.RatingCount)
}

func TestUpdateTaste_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := NewService(newMemoryStore(), &fakeEmbedder{}, nil).UpdateTaste(ctx, "", "text")
	assert.Error(t, err)

	_, err = NewService(newMemoryStore(), &fakeEmbedder{}, nil).UpdateTaste(ctx, "u", "  ")
	assert.Error(t, err)

	embedErr := errors.New("backend down")
	_, err = NewService(newMemoryStore(), &fakeEmbedder{err: embedErr}, nil).UpdateTaste(ctx, "u", "text")
	assert.ErrorIs(t, err, embedErr)

	st := newMemoryStore()
	st.upsertErr = errors.New("db down")
	_, err = NewService(st, &fakeEmbedder{}, nil).UpdateTaste(ctx, "u", "text")
	assert.Error(t, err)

	st = newMemoryStore()
	st.profiles["u"] = &store.TasteProfile{UserID: "u", TasteVector: []float32{1, 0, 0}, RatingCount: 3}
	_, err = NewService(st, &fakeEmbedder{}, nil).UpdateTaste(ctx, "u", "text")
	assert.Error(t, err, "dimension mismatch must not overwrite the profile")
	assert.Equal(t, int32(3), st.profiles["u"].RatingCount)

	st = newMemoryStore()
	st.profiles["u"] = &store.TasteProfile{UserID: "u", RatingCount: 3}
	_, err = NewService(st, &fakeEmbedder{}, nil).UpdateTaste(ctx, "u", "text")
	assert.Error(t, err, "a counted profile without a vector must not be reset")
	assert.Equal(t, int32(3), st.profiles["u"].RatingCount)
}

func TestOnReviewSaved_QualifyingRating(t *testing.T) {
	st := newMemoryStore()
	movie := &tmdb.Movie{
		ID:          603,
		Title:       "The Matrix",
		ReleaseDate: "1999-03-30",
		Overview:    "A hacker learns the truth.",
		Genres:      []tmdb.Genre{{ID: 28, Name: "Action"}},
	}
	text := MovieText(movie)
	emb := &fakeEmbedder{vectors: map[string][]float32{
		text:           {0.6, 0.8},
		"Loved it all": {1, 0},
	}}
	svc := NewService(st, emb, fakeMovies{603: movie})

	svc.OnReviewSaved(context.Background(), &store.Review{
		ID: 7, UserID: "u1", MovieID: 603, Rating: rating(5), Content: "Loved it all",
	})

	require.Contains(t, st.embeddings, int32(7))
	assert.Equal(t, []float32{1, 0}, st.embeddings[7].Embedding)
	assert.Equal(t, int32(603), st.embeddings[7].MovieID)
	assert.Equal(t, "fake-model", st.embeddings[7].Model)

	require.Contains(t, st.profiles, "u1")
	assert.Equal(t, []float32{0.6, 0.8}, st.profiles["u1"].TasteVector)
	assert.Equal(t, []bool{true, true}, emb.deadlines, "every embedding call is bounded")
}

func TestOnReviewSaved_LowRatingSkipsTaste(t *testing.T) {
	st := newMemoryStore()
	emb := &fakeEmbedder{}
	svc := NewService(st, emb, fakeMovies{})

	svc.OnReviewSaved(context.Background(), &store.Review{ID: 1, UserID: "u", MovieID: 1, Rating: rating(3)})

	assert.Empty(t, st.profiles)
	assert.Empty(t, st.embeddings)
	assert.Empty(t, emb.calls)
}

func TestOnReviewSaved_FallsBackToReviewText(t *testing.T) {
	st := newMemoryStore()
	emb := &fakeEmbedder{vectors: map[string][]float32{"Slow and beautiful": {0, 1}}}
	svc := NewService(st, emb, fakeMovies{})

	svc.OnReviewSaved(context.Background(), &store.Review{
		ID: 2, UserID: "u", MovieID: 99, Rating: rating(4), Content: "Slow and beautiful",
	})

	require.Contains(t, st.profiles, "u")
	assert.Equal(t, []float32{0, 1}, st.profiles["u"].TasteVector)
}

func TestOnReviewSaved_SwallowsFailures(t *testing.T) {
	st := newMemoryStore()
	st.getErr = errors.New("db down")
	svc := NewService(st, &fakeEmbedder{err: errors.New("backend down")}, fakeMovies{})

	assert.NotPanics(t, func() {
		svc.OnReviewSaved(context.Background(), &store.Review{
			ID: 3, UserID: "u", MovieID: 1, Rating: rating(5), Content: "text",
		})
	})
	assert.Empty(t, st.profiles)
}

func TestMovieText(t *testing.T) {
	assert.Equal(t, "", MovieText(nil))

	movie := &tmdb.Movie{
		Title:       "Heat",
		ReleaseDate: "1995-12-15",
		Overview:    "A cat-and-mouse heist drama.",
		Genres:      []tmdb.Genre{{Name: "Crime"}, {Name: "Thriller"}},
		Credits:     &tmdb.Credits{Crew: []tmdb.CrewMember{{Name: "Michael Mann", Job: "Director"}}},
	}
	assert.Equal(t,
		"Heat (1995). Genres: Crime, Thriller. Directed by Michael Mann. A cat-and-mouse heist drama.",
		MovieText(movie))

	assert.Equal(t, "Untitled.", MovieText(&tmdb.Movie{Title: "Untitled"}))
}
