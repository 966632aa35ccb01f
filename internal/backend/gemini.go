package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const geminiDefaultModel = "gemini-1.5-flash"

// Gemini calls the Google Generative Language API.
type Gemini struct {
	client *genai.Client
	model  string
	log    *slog.Logger
}

func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{
		client: client,
		model:  pickModel(cfg.Model, geminiDefaultModel),
		log:    cfg.Logger,
	}, nil
}

// Translate sends one span as a single content generation request.
func (g *Gemini) Translate(ctx context.Context, text, targetLanguage, model string) (string, error) {
	gm := g.client.GenerativeModel(pickModel(model, g.model))
	resp, err := gm.GenerateContent(ctx, genai.Text(BuildPrompt(text, targetLanguage)))
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && retryableStatus(apiErr.Code) {
			return "", &RetryableError{StatusCode: apiErr.Code, Message: apiErr.Message}
		}
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		break
	}
	return CleanResponse(text, sb.String())
}

// Close releases the underlying client.
func (g *Gemini) Close() {
	g.client.Close()
}
