// Package config reads run settings from the environment. Command-line flags
// are applied on top by the caller.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgallion1/gccquiz/internal/generate"
	"github.com/dgallion1/gccquiz/internal/loader"
)

type Config struct {
	InputDir  string
	OutputDir string

	// Generation backend
	Provider          string
	Model             string
	BaseURL           string
	APIKey            string
	Temperature       float64
	MaxTokens         int
	RequestsPerMinute int
	Timeout           time.Duration
	MaxRetries        int

	// Quotas
	QuestionsPerCompany int
	QuestionsPerChunk   int
	ChunksPerFile       int
	PersonnelFallback   bool

	// Worker pools
	Concurrency    int
	ExtractWorkers int

	// Chunking
	ChunkSize    int
	ChunkOverlap int

	// Output
	IDBase           int
	CompanyCodesFile string
	Countries        []string

	// Status server; empty disables it
	StatusAddr  string
	StatusToken string

	// PDF
	PDFFallbackPdftotext bool

	// Logging
	LogFormat string
	LogLevel  string
}

func Load() Config {
	cfg := Config{
		InputDir:  envOr("GCCQUIZ_INPUT_DIR", "files"),
		OutputDir: envOr("GCCQUIZ_OUTPUT_DIR", "output"),

		Provider:          strings.ToLower(envOr("GCCQUIZ_PROVIDER", generate.ProviderOpenAI)),
		Model:             os.Getenv("GCCQUIZ_MODEL"),
		BaseURL:           os.Getenv("GCCQUIZ_BASE_URL"),
		Temperature:       envFloat("GCCQUIZ_TEMPERATURE", 0.7),
		MaxTokens:         envInt("GCCQUIZ_MAX_TOKENS", 4096),
		RequestsPerMinute: envInt("GCCQUIZ_REQUESTS_PER_MINUTE", 0),
		Timeout:           envDuration("GCCQUIZ_TIMEOUT", 120*time.Second),
		MaxRetries:        envInt("GCCQUIZ_MAX_RETRIES", generate.DefaultMaxRetries),

		QuestionsPerCompany: envInt("GCCQUIZ_QUESTIONS_PER_COMPANY", 50),
		QuestionsPerChunk:   envInt("GCCQUIZ_QUESTIONS_PER_CHUNK", 5),
		ChunksPerFile:       envInt("GCCQUIZ_CHUNKS_PER_FILE", 5),
		PersonnelFallback:   envBool("GCCQUIZ_PERSONNEL_FALLBACK", false),

		Concurrency:    envInt("GCCQUIZ_CONCURRENCY", 1),
		ExtractWorkers: envInt("GCCQUIZ_EXTRACT_WORKERS", 1),

		ChunkSize:    envInt("GCCQUIZ_CHUNK_SIZE", 1500),
		ChunkOverlap: envInt("GCCQUIZ_CHUNK_OVERLAP", 200),

		IDBase:           envInt("GCCQUIZ_ID_BASE", 1000),
		CompanyCodesFile: os.Getenv("GCCQUIZ_COMPANY_CODES"),
		Countries:        envList("GCCQUIZ_COUNTRIES"),

		StatusAddr:  os.Getenv("GCCQUIZ_STATUS_ADDR"),
		StatusToken: os.Getenv("GCCQUIZ_STATUS_TOKEN"),

		PDFFallbackPdftotext: envBool("GCCQUIZ_PDF_FALLBACK_PDFTOTEXT", true),

		LogFormat: envOr("GCCQUIZ_LOG_FORMAT", "text"),
		LogLevel:  envOr("GCCQUIZ_LOG_LEVEL", "info"),
	}
	cfg.APIKey = ProviderKey(cfg.Provider)

	if cfg.QuestionsPerChunk <= 0 {
		cfg.QuestionsPerChunk = 5
	}
	if cfg.ChunksPerFile <= 0 {
		cfg.ChunksPerFile = 5
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.ExtractWorkers <= 0 {
		cfg.ExtractWorkers = 1
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1500
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 200
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}

	return cfg
}

// ProviderKey reads the conventional API key variable for a provider.
// GCCQUIZ_API_KEY wins over the provider-specific names.
func ProviderKey(provider string) string {
	if v := os.Getenv("GCCQUIZ_API_KEY"); v != "" {
		return v
	}
	switch strings.ToLower(provider) {
	case generate.ProviderClaude, "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case generate.ProviderGemini, "google":
		return envOr("GEMINI_API_KEY", os.Getenv("GOOGLE_API_KEY"))
	default:
		return os.Getenv("OPENAI_API_KEY")
	}
}

func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("an API key is required for provider %q (set --openai_api_key or the provider's key variable)", c.Provider)
	}
	if c.QuestionsPerCompany <= 0 {
		return fmt.Errorf("questions per company must be positive, got %d", c.QuestionsPerCompany)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", c.ChunkOverlap, c.ChunkSize)
	}
	if c.IDBase < 0 {
		return fmt.Errorf("id base must not be negative, got %d", c.IDBase)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative, got %d", c.MaxRetries)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log format must be text or json, got %q", c.LogFormat)
	}
	for _, country := range c.Countries {
		if _, ok := loader.CanonicalCountry(country); !ok {
			return fmt.Errorf("unknown country %q (valid: %s)", country, strings.Join(loader.Countries, ", "))
		}
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// envList splits a comma-separated variable, dropping blanks.
func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
