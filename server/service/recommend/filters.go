package recommend

import (
	"regexp"
	"strings"
	"time"

	"github.com/hrygo/cinesense/plugin/ai/oracle"
	"github.com/hrygo/cinesense/plugin/tmdb"
)

// Rejection reasons, logged at debug level.
const (
	rejectExcludedTitle      = "excluded_title"
	rejectAlreadySeen        = "already_seen"
	rejectExcludedDirector   = "excluded_director"
	rejectNegativeConstraint = "negative_constraint"
	rejectYearMismatch       = "year_mismatch"
	rejectRuntime            = "runtime"
	rejectLanguage           = "language"
	rejectPolicy             = "policy"
)

var explicitYearPattern = regexp.MustCompile(`\b(18|19|20)\d{2}\b`)

// queryYear returns the first explicit four-digit year in query, or "".
func queryYear(query string) string {
	return explicitYearPattern.FindString(query)
}

// discoverFilter holds everything a discovered movie is checked against.
type discoverFilter struct {
	excludeTitles     map[string]struct{}
	excluded          exclusionSet
	excludedDirectors []string
	negative          []string
	year              string
	now               time.Time
	policy            *Policy
}

func newDiscoverFilter(excludeTitles []string, excluded exclusionSet, analysis oracle.Analysis, query string, now time.Time, policy *Policy) *discoverFilter {
	titles := make(map[string]struct{}, len(excludeTitles))
	for _, t := range excludeTitles {
		if t = normalizeTitle(t); t != "" {
			titles[t] = struct{}{}
		}
	}

	directors := make([]string, 0, len(analysis.MetadataFilters.ExcludedDirectors))
	for _, d := range analysis.MetadataFilters.ExcludedDirectors {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			directors = append(directors, d)
		}
	}
	negative := make([]string, 0, len(analysis.NegativeConstraints))
	for _, n := range analysis.NegativeConstraints {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			negative = append(negative, n)
		}
	}

	return &discoverFilter{
		excludeTitles:     titles,
		excluded:          excluded,
		excludedDirectors: directors,
		negative:          negative,
		year:              queryYear(query),
		now:               now,
		policy:            policy,
	}
}

func normalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

func (f *discoverFilter) titleExcluded(title string) bool {
	_, ok := f.excludeTitles[normalizeTitle(title)]
	return ok
}

// reject runs the full discovery filter chain and returns the first failing
// reason, or "" when the movie is kept.
func (f *discoverFilter) reject(movie *tmdb.Movie) string {
	if f.titleExcluded(movie.Title) {
		return rejectExcludedTitle
	}
	if f.excluded.has(movie.ID) {
		return rejectAlreadySeen
	}
	if f.directorExcluded(movie) {
		return rejectExcludedDirector
	}
	if f.violatesNegative(movie) {
		return rejectNegativeConstraint
	}
	if !f.yearMatches(movie) {
		return rejectYearMismatch
	}
	if tooShort(movie, f.now) {
		return rejectRuntime
	}
	if !f.policy.Allow(movie) {
		return rejectPolicy
	}
	return ""
}

// yearMatches reports whether movie was released in the query's explicit year.
func (f *discoverFilter) yearMatches(movie *tmdb.Movie) bool {
	return f.year == "" || strings.HasPrefix(movie.ReleaseDate, f.year)
}

func (f *discoverFilter) directorExcluded(movie *tmdb.Movie) bool {
	if len(f.excludedDirectors) == 0 {
		return false
	}
	for _, director := range movie.Directors() {
		director = strings.ToLower(director)
		for _, excluded := range f.excludedDirectors {
			if strings.Contains(director, excluded) {
				return true
			}
		}
	}
	return false
}

func (f *discoverFilter) violatesNegative(movie *tmdb.Movie) bool {
	if len(f.negative) == 0 {
		return false
	}
	text := strings.ToLower(movie.Title + " " + movie.Overview)
	for _, constraint := range f.negative {
		if strings.Contains(text, constraint) {
			return true
		}
	}
	return false
}

// tooShort rejects runtimes under MinRuntimeMinutes unless the movie is from
// this year or later, where catalogue runtimes are often still zero.
func tooShort(movie *tmdb.Movie, now time.Time) bool {
	return movie.Runtime < MinRuntimeMinutes && movie.ReleaseYear() < now.Year()
}

// rejectBroadening applies the id, year, runtime and language checks.
func (s *Service) rejectBroadening(movie *tmdb.Movie, filter *discoverFilter) string {
	if filter.excluded.has(movie.ID) {
		return rejectAlreadySeen
	}
	if !filter.yearMatches(movie) {
		return rejectYearMismatch
	}
	if tooShort(movie, filter.now) {
		return rejectRuntime
	}
	if len(s.languages) > 0 {
		if _, ok := s.languages[movie.OriginalLanguage]; !ok {
			return rejectLanguage
		}
	}
	if !s.policy.Allow(movie) {
		return rejectPolicy
	}
	return ""
}
