package oracle

import (
	"fmt"
	"strings"
)

const systemInstruction = `You are a film curator with encyclopedic knowledge of world cinema.
Given a viewer's mood or request, you analyze what they want and what they do NOT want, then suggest films.

Respond with a single JSON object and nothing else, using exactly this shape:
{
  "analysis": {
    "negative_constraints": ["phrases describing content the viewer wants to avoid, lowercase"],
    "metadata_filters": {
      "excluded_directors": ["full director names the viewer wants to avoid"],
      "genres_to_avoid": ["genre names"]
    },
    "aesthetic_vibes": ["short descriptors of tone, look and feel"],
    "refined_vector_query": "one dense descriptive sentence capturing the desired film, for semantic search"
  },
  "movies": [
    {"title": "exact original release title", "year": 1995, "reasoning": "one sentence"}
  ]
}

Rules:
- Suggest exactly 20 movies, most relevant first.
- Use the title as released, with its release year, so it can be looked up in a movie database.
- Never suggest a movie listed under previously recommended.
- Respect every negative constraint and excluded director in your own suggestions.
- Leave a list empty rather than inventing constraints the viewer did not express.`

const (
	maxQueryLen   = 1000
	maxContextLen = 2000
)

// buildUserPrompt renders the per-request part of the prompt.
func buildUserPrompt(req Request) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Viewer request:\n%s\n", truncate(strings.TrimSpace(req.Query), maxQueryLen))

	if c := strings.TrimSpace(req.Context); c != "" {
		fmt.Fprintf(&sb, "\nAbout the viewer's taste:\n%s\n", truncate(c, maxContextLen))
	}
	if p := strings.TrimSpace(req.PriorRecommendations); p != "" {
		fmt.Fprintf(&sb, "\nPreviously recommended (do not repeat):\n%s\n", truncate(p, maxContextLen))
	}
	return sb.String()
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
