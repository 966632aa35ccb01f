package backend

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Backend translates one span of text.
type Backend interface {
	Translate(ctx context.Context, text, targetLanguage, model string) (string, error)
}

// Kind names a backend implementation.
type Kind string

const (
	KindOllama    Kind = "ollama"
	KindAnthropic Kind = "anthropic"
	KindOpenAI    Kind = "openai"
	KindGemini    Kind = "gemini"
)

// ParseKind converts a string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindOllama, KindAnthropic, KindOpenAI, KindGemini:
		return k, nil
	case "":
		return KindOllama, nil
	default:
		return "", fmt.Errorf("unknown backend %q (want ollama, anthropic, openai or gemini)", s)
	}
}

// Config selects and configures a backend.
type Config struct {
	Kind    Kind
	BaseURL string // Empty selects the service default
	APIKey  string
	Model   string // Default model when a call passes none
	Timeout time.Duration
	Logger  *slog.Logger
}

// New constructs the backend named by cfg.Kind.
func New(ctx context.Context, cfg Config) (Backend, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	switch cfg.Kind {
	case KindOllama, "":
		o, err := NewOllama(cfg)
		if err != nil {
			return nil, err
		}
		return o, nil
	case KindAnthropic:
		return NewAnthropic(cfg), nil
	case KindOpenAI:
		return NewOpenAI(cfg), nil
	case KindGemini:
		g, err := NewGemini(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Kind)
	}
}

// Close releases resources held by b when it has any.
func Close(b Backend) {
	if c, ok := b.(interface{ Close() }); ok {
		c.Close()
	}
}

func pickModel(model, fallback string) string {
	if model != "" {
		return model
	}
	return fallback
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
