package tmdb

import (
	"strconv"
	"strings"
)

// Genre is a catalogue genre.
type Genre struct {
	ID   int32  `json:"id"`
	Name string `json:"name"`
}

// CrewMember is a single crew credit.
type CrewMember struct {
	ID         int32  `json:"id"`
	Name       string `json:"name"`
	Job        string `json:"job"`
	Department string `json:"department"`
}

// CastMember is a single cast credit.
type CastMember struct {
	ID        int32  `json:"id"`
	Name      string `json:"name"`
	Character string `json:"character"`
	Order     int    `json:"order"`
}

// Credits is the credits block appended to movie details.
type Credits struct {
	Cast []CastMember `json:"cast"`
	Crew []CrewMember `json:"crew"`
}

// Movie is the movie detail record. Listing endpoints populate GenreIDs and leave
// Genres, Runtime and Credits empty; the details endpoint fills them.
type Movie struct {
	ID               int32    `json:"id"`
	Title            string   `json:"title"`
	OriginalTitle    string   `json:"original_title,omitempty"`
	Overview         string   `json:"overview"`
	ReleaseDate      string   `json:"release_date"`
	Runtime          int      `json:"runtime"`
	OriginalLanguage string   `json:"original_language"`
	PosterPath       string   `json:"poster_path"`
	BackdropPath     string   `json:"backdrop_path"`
	VoteAverage      float64  `json:"vote_average"`
	VoteCount        int      `json:"vote_count"`
	Popularity       float64  `json:"popularity"`
	Adult            bool     `json:"adult"`
	Genres           []Genre  `json:"genres,omitempty"`
	GenreIDs         []int32  `json:"genre_ids,omitempty"`
	Credits          *Credits `json:"credits,omitempty"`
}

// Director returns the first credited director, or "" when credits are absent.
func (m *Movie) Director() string {
	if m == nil || m.Credits == nil {
		return ""
	}
	for _, c := range m.Credits.Crew {
		if c.Job == "Director" {
			return c.Name
		}
	}
	return ""
}

// Directors returns every credited director.
func (m *Movie) Directors() []string {
	if m == nil || m.Credits == nil {
		return nil
	}
	var out []string
	for _, c := range m.Credits.Crew {
		if c.Job == "Director" {
			out = append(out, c.Name)
		}
	}
	return out
}

// ReleaseYear returns the year prefix of ReleaseDate, or 0 when unknown.
func (m *Movie) ReleaseYear() int {
	if m == nil || len(m.ReleaseDate) < 4 {
		return 0
	}
	year, err := strconv.Atoi(m.ReleaseDate[:4])
	if err != nil {
		return 0
	}
	return year
}

// GenreNames returns the genre names in catalogue order.
func (m *Movie) GenreNames() []string {
	if m == nil {
		return nil
	}
	names := make([]string, 0, len(m.Genres))
	for _, g := range m.Genres {
		if name := strings.TrimSpace(g.Name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// Page is a paginated listing response.
type Page struct {
	Page         int      `json:"page"`
	Results      []*Movie `json:"results"`
	TotalPages   int      `json:"total_pages"`
	TotalResults int      `json:"total_results"`
}
