// Package oracle turns a free-text mood query into structured constraints and
// a ranked list of candidate titles with a single LLM completion.
package oracle

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/hrygo/cinesense/internal/metrics"
	"github.com/hrygo/cinesense/plugin/ai"
	"github.com/hrygo/cinesense/plugin/ai/timeout"
)

// MaxMovies is the number of candidate titles kept from one completion.
const MaxMovies = 20

// Request is one oracle call.
type Request struct {
	Query                string
	Context              string // optional taste description
	PriorRecommendations string // optional, titles to avoid repeating
}

// MetadataFilters are structured exclusions.
type MetadataFilters struct {
	ExcludedDirectors []string `json:"excluded_directors"`
	GenresToAvoid     []string `json:"genres_to_avoid"`
}

// Analysis is the constraint half of the oracle response.
type Analysis struct {
	NegativeConstraints []string        `json:"negative_constraints"`
	MetadataFilters     MetadataFilters `json:"metadata_filters"`
	AestheticVibes      []string        `json:"aesthetic_vibes"`
	RefinedVectorQuery  string          `json:"refined_vector_query"`
}

// Movie is a suggested title. Year is 0 when the model gave none.
type Movie struct {
	Title     string `json:"title"`
	Year      Year   `json:"year"`
	Reasoning string `json:"reasoning"`
}

// Year accepts a JSON number or a numeric string.
type Year int

func (y *Year) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*y = 0
		return nil
	}
	if len(s) >= 4 {
		if n, err := strconv.Atoi(s[:4]); err == nil {
			*y = Year(n)
			return nil
		}
	}
	*y = 0
	return nil
}

// Result is the parsed oracle output with defaults already applied.
type Result struct {
	Analysis Analysis
	Movies   []Movie
	// Degraded is set when the LLM was unavailable or its output unusable.
	Degraded bool
}

type response struct {
	Analysis *Analysis `json:"analysis"`
	Movies   []Movie   `json:"movies"`
}

// Oracle wraps an LLMService. A nil service yields degraded results.
type Oracle struct {
	llm     ai.LLMService
	timeout time.Duration
}

// New creates an oracle. llm may be nil when no completion credentials are configured.
func New(llm ai.LLMService) *Oracle {
	return &Oracle{llm: llm, timeout: timeout.OracleTimeout}
}

// Available reports whether an LLM is wired.
func (o *Oracle) Available() bool {
	return o != nil && o.llm != nil
}

// Analyze never fails: on any error it returns defaults with Degraded set.
func (o *Oracle) Analyze(ctx context.Context, req Request) *Result {
	if !o.Available() {
		metrics.UpstreamRequestsTotal.WithLabelValues("oracle", "unconfigured").Inc()
		return defaultResult(req.Query)
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	messages := []ai.Message{
		ai.SystemPrompt(systemInstruction),
		ai.UserMessage(buildUserPrompt(req)),
	}

	start := time.Now()
	content, err := o.llm.Chat(ctx, messages, ai.ChatOptions{JSON: true})
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues("oracle", "failure").Inc()
		slog.WarnContext(ctx, "oracle completion failed", "error", err, "duration", time.Since(start))
		return defaultResult(req.Query)
	}

	result, ok := parseResponse(content, req.Query)
	if !ok {
		metrics.UpstreamRequestsTotal.WithLabelValues("oracle", "malformed").Inc()
		slog.WarnContext(ctx, "oracle returned unparseable output", "response", truncate(content, timeout.MaxTruncateLength))
		return result
	}

	metrics.UpstreamRequestsTotal.WithLabelValues("oracle", "success").Inc()
	slog.DebugContext(ctx, "oracle analysis complete",
		"movies", len(result.Movies),
		"negative_constraints", len(result.Analysis.NegativeConstraints),
		"excluded_directors", len(result.Analysis.MetadataFilters.ExcludedDirectors),
		"duration", time.Since(start),
	)
	return result
}

func defaultResult(query string) *Result {
	return &Result{
		Analysis: Analysis{RefinedVectorQuery: strings.TrimSpace(query)},
		Degraded: true,
	}
}

// parseResponse extracts the JSON object from content and applies defaults.
// It reports false when nothing usable was found.
func parseResponse(content, query string) (*Result, bool) {
	raw := extractJSONObject(content)
	if raw == "" {
		return defaultResult(query), false
	}

	var resp response
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return defaultResult(query), false
	}

	result := &Result{}
	if resp.Analysis != nil {
		result.Analysis = *resp.Analysis
	}
	a := &result.Analysis
	a.NegativeConstraints = cleanList(a.NegativeConstraints, true)
	a.MetadataFilters.ExcludedDirectors = cleanList(a.MetadataFilters.ExcludedDirectors, false)
	a.MetadataFilters.GenresToAvoid = cleanList(a.MetadataFilters.GenresToAvoid, false)
	a.AestheticVibes = cleanList(a.AestheticVibes, false)
	a.RefinedVectorQuery = strings.TrimSpace(a.RefinedVectorQuery)
	if a.RefinedVectorQuery == "" {
		a.RefinedVectorQuery = strings.TrimSpace(query)
	}

	for _, m := range resp.Movies {
		m.Title = strings.TrimSpace(m.Title)
		if m.Title == "" {
			continue
		}
		m.Reasoning = strings.TrimSpace(m.Reasoning)
		result.Movies = append(result.Movies, m)
		if len(result.Movies) == MaxMovies {
			break
		}
	}

	return result, true
}

// extractJSONObject strips markdown fences and leading or trailing prose.
func extractJSONObject(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return ""
	}
	return content[start : end+1]
}

func cleanList(in []string, lower bool) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if lower {
			s = strings.ToLower(s)
		}
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
