package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

const (
	ollamaDefaultURL   = "http://localhost:11434"
	ollamaDefaultModel = "mistral-nemo"
)

// Ollama calls a local Ollama server through its chat endpoint.
type Ollama struct {
	client     *api.Client
	httpClient *http.Client
	model      string
	log        *slog.Logger
}

func NewOllama(cfg Config) (*Ollama, error) {
	raw := cfg.BaseURL
	if raw == "" {
		raw = ollamaDefaultURL
	}
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse ollama url %q: %w", raw, err)
	}
	hc := &http.Client{Timeout: cfg.Timeout}
	return &Ollama{
		client:     api.NewClient(u, hc),
		httpClient: hc,
		model:      pickModel(cfg.Model, ollamaDefaultModel),
		log:        cfg.Logger,
	}, nil
}

// Translate sends one span as a single non-streaming chat turn.
func (o *Ollama) Translate(ctx context.Context, text, targetLanguage, model string) (string, error) {
	stream := false
	req := &api.ChatRequest{
		Model: pickModel(model, o.model),
		Messages: []api.Message{
			{Role: "user", Content: BuildPrompt(text, targetLanguage)},
		},
		Stream: &stream,
	}

	var sb strings.Builder
	err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		sb.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		var statusErr api.StatusError
		if errors.As(err, &statusErr) && retryableStatus(statusErr.StatusCode) {
			return "", &RetryableError{StatusCode: statusErr.StatusCode, Message: statusErr.ErrorMessage}
		}
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	return CleanResponse(text, sb.String())
}

// Close releases idle connections.
func (o *Ollama) Close() {
	o.httpClient.CloseIdleConnections()
}
