package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/hrygo/cinesense/internal/metrics"
)

// Operation tracks one recommendation request from start to finish.
type Operation struct {
	name  string
	start time.Time
	log   *slog.Logger
}

// StartOperation begins tracking a recommendation operation ("picked_for_you", "discover").
func StartOperation(ctx context.Context, name string) *Operation {
	return &Operation{
		name:  name,
		start: time.Now(),
		log:   LoggerFrom(ctx),
	}
}

// Finish records the source that produced the final list and its size.
// Source is "none" when the list is empty.
func (o *Operation) Finish(source string, results int) {
	if results == 0 {
		source = "none"
	}
	elapsed := time.Since(o.start)

	metrics.RecommendationsTotal.WithLabelValues(o.name, source).Inc()
	metrics.RecommendationResults.WithLabelValues(o.name).Observe(float64(results))
	metrics.RecommendationDuration.WithLabelValues(o.name).Observe(elapsed.Seconds())

	o.log.Info("recommendations served",
		slog.String(LogFieldOperation, o.name),
		slog.String(LogFieldSource, source),
		slog.Int(LogFieldResultCount, results),
		slog.Int64(LogFieldDuration, elapsed.Milliseconds()),
	)
}
