// Package embedding runs the background job that embeds review text into the
// similarity index. Reviews saved while the embedding backend was down, or
// imported in bulk, are picked up here.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hrygo/cinesense/internal/metrics"
	"github.com/hrygo/cinesense/plugin/ai"
	"github.com/hrygo/cinesense/plugin/ai/timeout"
	"github.com/hrygo/cinesense/store"
)

// Store is the subset of the store used by the runner.
type Store interface {
	ListReviews(ctx context.Context, find *store.FindReview) ([]*store.Review, error)
	UpsertReviewEmbedding(ctx context.Context, embedding *store.ReviewEmbedding) (*store.ReviewEmbedding, error)
}

type Runner struct {
	store            Store
	embeddingService ai.EmbeddingService
	interval         time.Duration
	batchSize        int
}

// NewRunner creates a review embedding runner.
// Small batches keep memory peaks low on the local backend.
func NewRunner(store Store, embeddingService ai.EmbeddingService) *Runner {
	return &Runner{
		store:            store,
		embeddingService: embeddingService,
		interval:         2 * time.Minute,
		batchSize:        8,
	}
}

// Run starts the background task.
func (r *Runner) Run(ctx context.Context) {
	// Process once on startup
	r.processPendingReviews(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.processPendingReviews(ctx)
		case <-ctx.Done():
			slog.Info("embedding runner stopped")
			return
		}
	}
}

// Backfill processes pending reviews until none are left and returns how many were embedded.
func (r *Runner) Backfill(ctx context.Context) int {
	total := 0
	for ctx.Err() == nil {
		n, pending := r.processPendingReviews(ctx)
		total += n
		// Stop when nothing is pending or a pass made no progress.
		if pending == 0 || n == 0 {
			break
		}
	}
	return total
}

// processPendingReviews embeds one page of pending reviews. It returns the
// number embedded and the number that were pending.
func (r *Runner) processPendingReviews(ctx context.Context) (embedded, pending int) {
	reviews, err := r.findReviewsWithoutEmbedding(ctx)
	if err != nil {
		slog.Error("failed to find reviews without embedding", "error", err)
		return 0, 0
	}
	if len(reviews) == 0 {
		return 0, 0
	}

	slog.Info("processing reviews for embedding", "count", len(reviews))

	for i := 0; i < len(reviews); i += r.batchSize {
		select {
		case <-ctx.Done():
			slog.Info("embedding processing cancelled", "processed", i, "total", len(reviews))
			return embedded, len(reviews)
		default:
		}

		end := min(i+r.batchSize, len(reviews))
		batch := reviews[i:end]

		n, err := r.processBatch(ctx, batch)
		embedded += n
		if err != nil {
			metrics.ReviewEmbeddingsTotal.WithLabelValues("backfill", "error").Add(float64(len(batch)))
			slog.Error("failed to process batch", "error", err)
			continue
		}
		slog.Info("batch processed", "count", len(batch), "progress", fmt.Sprintf("%d/%d", end, len(reviews)))
	}
	return embedded, len(reviews)
}

func (r *Runner) findReviewsWithoutEmbedding(ctx context.Context) ([]*store.Review, error) {
	return r.store.ListReviews(ctx, &store.FindReview{
		HasContent:       true,
		WithoutEmbedding: true,
		Limit:            r.batchSize * 20, // Fetch more data, but process in small batches
	})
}

func (r *Runner) processBatch(ctx context.Context, reviews []*store.Review) (int, error) {
	if len(reviews) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	texts := make([]string, len(reviews))
	for i, review := range reviews {
		texts[i] = review.Content
	}

	embedCtx, cancel := context.WithTimeout(ctx, timeout.EmbeddingTimeout)
	vectors, err := r.embeddingService.EmbedBatch(embedCtx, texts)
	cancel()
	if err != nil {
		return 0, err
	}
	if len(vectors) != len(reviews) {
		return 0, fmt.Errorf("expected %d embeddings, got %d", len(reviews), len(vectors))
	}

	stored := 0
	for i, review := range reviews {
		_, err := r.store.UpsertReviewEmbedding(ctx, &store.ReviewEmbedding{
			ReviewID:  review.ID,
			MovieID:   review.MovieID,
			Embedding: vectors[i],
			Model:     r.embeddingService.Model(),
		})
		if err != nil {
			metrics.ReviewEmbeddingsTotal.WithLabelValues("backfill", "error").Inc()
			slog.Error("failed to upsert embedding", "reviewID", review.ID, "error", err)
			continue
		}
		metrics.ReviewEmbeddingsTotal.WithLabelValues("backfill", "success").Inc()
		stored++
	}
	return stored, nil
}
