package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const openaiDefaultModel = openai.GPT4oMini

// OpenAI calls a chat completions endpoint. BaseURL may point at any
// OpenAI-compatible server.
type OpenAI struct {
	client *openai.Client
	model  string
	log    *slog.Logger
}

func NewOpenAI(cfg Config) *OpenAI {
	conf := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		conf.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(conf),
		model:  pickModel(cfg.Model, openaiDefaultModel),
		log:    cfg.Logger,
	}
}

// Translate sends one span as a single user message.
func (o *OpenAI) Translate(ctx context.Context, text, targetLanguage, model string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: pickModel(model, o.model),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(text, targetLanguage)},
		},
	})
	if err != nil {
		return "", o.classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", &RetryableError{Message: "no choices in response"}
	}
	return CleanResponse(text, resp.Choices[0].Message.Content)
}

func (o *OpenAI) classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && retryableStatus(apiErr.HTTPStatusCode) {
		return &RetryableError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && retryableStatus(reqErr.HTTPStatusCode) {
		return &RetryableError{StatusCode: reqErr.HTTPStatusCode, Message: reqErr.Error()}
	}
	return fmt.Errorf("openai chat completion: %w", err)
}
