package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dgallion1/doctrans/internal/backend"
	"github.com/joho/godotenv"
)

const DefaultOllamaModel = "mistral-nemo"

type Config struct {
	LogLevel slog.Level

	// Translation backend
	Backend        backend.Kind
	BackendURL     string
	Model          string
	RequestTimeout time.Duration
	RateLimit      float64 // Backend calls per second, 0 for unlimited

	AnthropicAPIKey string
	OpenAIAPIKey    string
	GeminiAPIKey    string

	// Translation pipeline
	ChapterConcurrency int
	Lookahead          int
	MaxChars           int
	RetryMaxAttempts   int
	RetryBaseDelay     time.Duration
	RetryMaxDelay      time.Duration

	// Server
	Port           string
	APIKey         string
	WorkerCount    int
	MaxQueueSize   int
	MaxUploadBytes int64
	JobTTL         time.Duration
	WorkDir        string
	StatsWindow    time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first; variables already set take precedence.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	kind, err := backend.ParseKind(os.Getenv("DOCTRANS_BACKEND"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		LogLevel: envLevel("LOG_LEVEL", slog.LevelInfo),

		Backend:        kind,
		BackendURL:     envOr("DOCTRANS_BACKEND_URL", os.Getenv("OLLAMA_HOST")),
		Model:          os.Getenv("DOCTRANS_MODEL"),
		RequestTimeout: envDuration("BACKEND_TIMEOUT", 120*time.Second),
		RateLimit:      envFloat("BACKEND_RATE_LIMIT", 0),

		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		GeminiAPIKey:    envOr("GEMINI_API_KEY", os.Getenv("GOOGLE_API_KEY")),

		ChapterConcurrency: envInt("CHAPTER_CONCURRENCY", 2),
		Lookahead:          envInt("LOOKAHEAD", 4),
		MaxChars:           envInt("MAX_CHARS", 4000),
		RetryMaxAttempts:   envInt("RETRY_MAX_ATTEMPTS", 3),
		RetryBaseDelay:     envDuration("RETRY_BASE_DELAY", time.Second),
		RetryMaxDelay:      envDuration("RETRY_MAX_DELAY", 30*time.Second),

		Port:           envOr("PORT", "8090"),
		APIKey:         os.Getenv("DOCTRANS_API_KEY"),
		WorkerCount:    envInt("WORKER_COUNT", 2),
		MaxQueueSize:   envInt("MAX_QUEUE_SIZE", 100),
		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB
		JobTTL:         envDuration("JOB_TTL", 1*time.Hour),
		WorkDir:        envOr("DOCTRANS_WORK_DIR", filepath.Join(os.TempDir(), "doctrans")),
		StatsWindow:    envDuration("STATS_WINDOW", 1*time.Hour),
	}

	if cfg.Model == "" && cfg.Backend == backend.KindOllama {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 120 * time.Second
	}
	if cfg.RateLimit < 0 {
		cfg.RateLimit = 0
	}
	if cfg.ChapterConcurrency <= 0 {
		cfg.ChapterConcurrency = 2
	}
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = 4
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 4000
	}
	if cfg.RetryMaxAttempts <= 0 {
		cfg.RetryMaxAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 30 * time.Second
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}
	if cfg.StatsWindow <= 0 {
		cfg.StatsWindow = 1 * time.Hour
	}

	return cfg, nil
}

// Validate checks that the selected backend has what it needs.
func (c Config) Validate() error {
	switch c.Backend {
	case backend.KindAnthropic:
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required for the anthropic backend")
		}
	case backend.KindOpenAI:
		if c.OpenAIAPIKey == "" && c.BackendURL == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for the openai backend")
		}
	case backend.KindGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for the gemini backend")
		}
	}
	return nil
}

// ValidateServer adds the checks the HTTP server needs.
func (c Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.APIKey == "" {
		return fmt.Errorf("DOCTRANS_API_KEY is required")
	}
	return nil
}

// BackendConfig returns the settings for backend.New.
func (c Config) BackendConfig(log *slog.Logger) backend.Config {
	bc := backend.Config{
		Kind:    c.Backend,
		BaseURL: c.BackendURL,
		Model:   c.Model,
		Timeout: c.RequestTimeout,
		Logger:  log,
	}
	switch c.Backend {
	case backend.KindAnthropic:
		bc.APIKey = c.AnthropicAPIKey
	case backend.KindOpenAI:
		bc.APIKey = c.OpenAIAPIKey
	case backend.KindGemini:
		bc.APIKey = c.GeminiAPIKey
	}
	return bc
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

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envLevel(key string, fallback slog.Level) slog.Level {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return fallback
	}
	return level
}
