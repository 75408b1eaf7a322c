package recommend

// Similarity thresholds differ per call site. They are kept separate on purpose
// until recall/precision for a shared value has been measured.
const (
	// PickedForYouThreshold is the minimum taste-vector similarity for proactive picks.
	PickedForYouThreshold = 0.25
	// PickedForYouLimit caps the vector index hits for proactive picks.
	PickedForYouLimit = 15

	// ColdStartMinRatings is the number of rated movies below which proactive picks are suppressed.
	ColdStartMinRatings = 4
	// FallbackSeedCount is how many top-rated movies seed the similar-movies fallback.
	FallbackSeedCount = 3
	// FallbackCap caps the similar-movies fallback list.
	FallbackCap = 10

	// DiscoverThreshold and DiscoverLimit drive the index query behind interactive search.
	DiscoverThreshold = 0.3
	DiscoverLimit     = 12
	// DiscoverPageSize is the result size of interactive search.
	DiscoverPageSize = 5

	// ListingThreshold and ListingLimit drive the index query behind the dedicated listing view.
	ListingThreshold = 0.25
	ListingLimit     = 15
	// ListingPageSize is the result size of the listing view.
	ListingPageSize = 8

	// HydrationBatchSize bounds concurrent metadata lookups during hydration.
	HydrationBatchSize = 6
	// RatedIDsCap bounds the rated-movie exclusion set read for discovery.
	RatedIDsCap = 100
	// MinRuntimeMinutes rejects shorts unless the release year is current or later.
	MinRuntimeMinutes = 60
)

// View selects the discovery call site.
type View string

const (
	// ViewInteractive is the search box: small page, stricter threshold.
	ViewInteractive View = "interactive"
	// ViewListing is the dedicated discovery listing.
	ViewListing View = "listing"
)

// Config holds the orchestrator settings that operators may change.
type Config struct {
	// CandidatePolicy is an optional CEL expression every recommended movie must satisfy.
	CandidatePolicy string
	// BroadeningLanguages restricts broadening results to these original languages.
	// Empty allows every language.
	BroadeningLanguages []string
}

// searchParams is the per-view tuning of the discovery pipeline.
type searchParams struct {
	threshold float32
	limit     int
	pageSize  int
}

func paramsFor(view View) searchParams {
	if view == ViewListing {
		return searchParams{threshold: ListingThreshold, limit: ListingLimit, pageSize: ListingPageSize}
	}
	return searchParams{threshold: DiscoverThreshold, limit: DiscoverLimit, pageSize: DiscoverPageSize}
}
