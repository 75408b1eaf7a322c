package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is the configuration to start main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where cinesense stores its own data
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string

	// Embedding configuration
	EmbeddingBackend    string // CINESENSE_EMBEDDING_BACKEND (remote | local, default: remote)
	EmbeddingModel      string // CINESENSE_EMBEDDING_MODEL (default: sentence-transformers/all-MiniLM-L6-v2)
	EmbeddingDimensions int    // CINESENSE_EMBEDDING_DIMENSIONS (default: 384)
	EmbeddingAPIKey     string // CINESENSE_EMBEDDING_API_KEY
	EmbeddingBaseURL    string // CINESENSE_EMBEDDING_BASE_URL (default: https://api.siliconflow.cn/v1)
	OllamaBaseURL       string // CINESENSE_OLLAMA_BASE_URL (default: http://localhost:11434)

	// Completion oracle configuration
	LLMProvider string // CINESENSE_LLM_PROVIDER (default: openai)
	LLMModel    string // CINESENSE_LLM_MODEL (default: gpt-4o-mini)
	LLMAPIKey   string // CINESENSE_LLM_API_KEY
	LLMBaseURL  string // CINESENSE_LLM_BASE_URL

	// Movie metadata provider
	TMDBAPIKey            string  // CINESENSE_TMDB_API_KEY
	TMDBReadToken         string  // CINESENSE_TMDB_READ_TOKEN
	TMDBBaseURL           string  // CINESENSE_TMDB_BASE_URL (default: https://api.themoviedb.org/3)
	TMDBRequestsPerSecond float64 // CINESENSE_TMDB_RPS (default: 35)

	// RedisAddr enables the shared metadata cache when set.
	RedisAddr string // CINESENSE_REDIS_ADDR
	// JWTSecret verifies session tokens issued by the auth provider.
	JWTSecret string // CINESENSE_JWT_SECRET
	// CandidatePolicy is an optional CEL expression every discovered movie must satisfy.
	CandidatePolicy string // CINESENSE_CANDIDATE_POLICY
	// BroadeningLanguages limits fallback results to these original languages. Empty allows all.
	BroadeningLanguages []string // CINESENSE_BROADENING_LANGUAGES (comma separated)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsOracleConfigured reports whether the completion oracle has enough credentials to run.
func (p *Profile) IsOracleConfigured() bool {
	if p.LLMProvider == "ollama" {
		return p.LLMBaseURL != "" || p.OllamaBaseURL != ""
	}
	return p.LLMAPIKey != ""
}

// IsTMDBConfigured reports whether any TMDB credential is present.
func (p *Profile) IsTMDBConfigured() bool {
	return p.TMDBAPIKey != "" || p.TMDBReadToken != ""
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FromEnv loads collaborator configuration from environment variables.
func (p *Profile) FromEnv() {
	getIntEnv := func(key string, defaultValue int) int {
		if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
			return v
		}
		return defaultValue
	}
	getFloatEnv := func(key string, defaultValue float64) float64 {
		if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil && v > 0 {
			return v
		}
		return defaultValue
	}

	p.EmbeddingBackend = strings.ToLower(getEnvOrDefault("CINESENSE_EMBEDDING_BACKEND", "remote"))
	p.EmbeddingModel = getEnvOrDefault("CINESENSE_EMBEDDING_MODEL", "sentence-transformers/all-MiniLM-L6-v2")
	p.EmbeddingDimensions = getIntEnv("CINESENSE_EMBEDDING_DIMENSIONS", 384)
	p.EmbeddingAPIKey = os.Getenv("CINESENSE_EMBEDDING_API_KEY")
	p.EmbeddingBaseURL = getEnvOrDefault("CINESENSE_EMBEDDING_BASE_URL", "https://api.siliconflow.cn/v1")
	p.OllamaBaseURL = getEnvOrDefault("CINESENSE_OLLAMA_BASE_URL", "http://localhost:11434")

	p.LLMProvider = strings.ToLower(getEnvOrDefault("CINESENSE_LLM_PROVIDER", "openai"))
	p.LLMModel = getEnvOrDefault("CINESENSE_LLM_MODEL", "gpt-4o-mini")
	p.LLMAPIKey = os.Getenv("CINESENSE_LLM_API_KEY")
	p.LLMBaseURL = os.Getenv("CINESENSE_LLM_BASE_URL")

	p.TMDBAPIKey = os.Getenv("CINESENSE_TMDB_API_KEY")
	p.TMDBReadToken = os.Getenv("CINESENSE_TMDB_READ_TOKEN")
	p.TMDBBaseURL = getEnvOrDefault("CINESENSE_TMDB_BASE_URL", "https://api.themoviedb.org/3")
	p.TMDBRequestsPerSecond = getFloatEnv("CINESENSE_TMDB_RPS", 35)

	p.RedisAddr = os.Getenv("CINESENSE_REDIS_ADDR")
	p.JWTSecret = os.Getenv("CINESENSE_JWT_SECRET")
	p.CandidatePolicy = os.Getenv("CINESENSE_CANDIDATE_POLICY")
	p.BroadeningLanguages = splitList(os.Getenv("CINESENSE_BROADENING_LANGUAGES"))
}

// splitList splits a comma separated value, dropping blanks.
func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.ToLower(strings.TrimSpace(item)); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		absDir, err := filepath.Abs(dataDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	switch p.Driver {
	case "postgres":
		if p.DSN == "" {
			return errors.New("dsn is required for the postgres driver")
		}
		return nil
	case "sqlite":
	default:
		return errors.Errorf("unsupported driver: %s", p.Driver)
	}

	if p.DSN != "" {
		return nil
	}
	if p.Data == "" {
		p.Data = "."
	}
	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", p.Data), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir
	p.DSN = filepath.Join(dataDir, fmt.Sprintf("cinesense_%s.db", p.Mode))
	return nil
}
