package recommend

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/hrygo/cinesense/plugin/tmdb"
)

// Policy is an operator-supplied CEL expression over a `movie` map, for example
//
//	movie.vote_count >= 50 && !("Horror" in movie.genres)
//
// Available fields: id, title, overview, release_year, runtime, language,
// vote_average, vote_count, popularity, adult, genres, directors.
type Policy struct {
	expr string
	prg  cel.Program
}

// NewPolicy compiles expr. An empty expression returns a nil policy that allows everything.
func NewPolicy(expr string) (*Policy, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("movie", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create policy environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile candidate policy: %w", issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("candidate policy must return bool, got %v", out)
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build candidate policy: %w", err)
	}
	return &Policy{expr: expr, prg: prg}, nil
}

// Allow evaluates the policy for movie. Evaluation errors keep the movie.
func (p *Policy) Allow(movie *tmdb.Movie) bool {
	if p == nil || movie == nil {
		return true
	}

	out, _, err := p.prg.Eval(map[string]any{"movie": policyInput(movie)})
	if err != nil {
		slog.Debug("candidate policy evaluation failed", "movie_id", movie.ID, "error", err)
		return true
	}
	allowed, ok := out.Value().(bool)
	return !ok || allowed
}

func policyInput(m *tmdb.Movie) map[string]any {
	genres := m.GenreNames()
	if genres == nil {
		genres = []string{}
	}
	directors := m.Directors()
	if directors == nil {
		directors = []string{}
	}
	return map[string]any{
		"id":           int64(m.ID),
		"title":        m.Title,
		"overview":     m.Overview,
		"release_year": int64(m.ReleaseYear()),
		"runtime":      int64(m.Runtime),
		"language":     m.OriginalLanguage,
		"vote_average": m.VoteAverage,
		"vote_count":   int64(m.VoteCount),
		"popularity":   m.Popularity,
		"adult":        m.Adult,
		"genres":       genres,
		"directors":    directors,
	}
}
