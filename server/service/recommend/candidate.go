package recommend

import (
	"github.com/hrygo/cinesense/plugin/tmdb"
)

// Candidate is a movie reference awaiting hydration. It is either a
// TitleCandidate suggested by the oracle or an IndexCandidate returned by the
// similarity index.
type Candidate interface {
	isCandidate()
}

// TitleCandidate is resolved by title search.
type TitleCandidate struct {
	Title     string
	Year      int // 0 when unknown
	Reasoning string
}

// IndexCandidate is resolved by direct id lookup.
type IndexCandidate struct {
	MovieID    int32
	Similarity float32
}

func (TitleCandidate) isCandidate() {}
func (IndexCandidate) isCandidate() {}

// Source names the path that produced a recommendation.
type Source string

const (
	SourceTasteVector Source = "taste_vector"
	SourceSimilar     Source = "similar"
	SourceOracle      Source = "oracle"
	SourceIndex       Source = "vector_index"
	SourceBroadening  Source = "broadening"
)

// Recommendation is a hydrated movie. SimilarityScore is set only for
// similarity-index hits and is not comparable across sources. Reasoning is
// the oracle's one-line rationale for the pick, when it gave one.
type Recommendation struct {
	*tmdb.Movie
	SimilarityScore *float32 `json:"similarity_score,omitempty"`
	Source          Source   `json:"source"`
	Reasoning       string   `json:"reasoning,omitempty"`
}

func newRecommendation(c Candidate, movie *tmdb.Movie, source Source) *Recommendation {
	rec := &Recommendation{Movie: movie, Source: source}
	switch c := c.(type) {
	case IndexCandidate:
		if source != SourceBroadening {
			score := c.Similarity
			rec.SimilarityScore = &score
		}
	case TitleCandidate:
		rec.Reasoning = c.Reasoning
	}
	return rec
}

func sourceOf(c Candidate) Source {
	switch c.(type) {
	case TitleCandidate:
		return SourceOracle
	default:
		return SourceIndex
	}
}
