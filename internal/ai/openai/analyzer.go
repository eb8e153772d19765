package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/songzhibin97/tokenlens/internal/ai"
)

// DefaultBaseURL is Groq's OpenAI-compatible endpoint.
const DefaultBaseURL = "https://api.groq.com/openai/v1"

// OpenAICompleter implements the Completer interface using an OpenAI-compatible API
type OpenAICompleter struct {
	client *openai.Client
	opts   ai.Options
}

// NewOpenAICompleter creates a new completer instance
func NewOpenAICompleter(apiKey, baseURL string, opts ai.Options) *OpenAICompleter {
	return newCompleter(apiKey, baseURL, opts, nil)
}

func newCompleter(apiKey, baseURL string, opts ai.Options, httpClient *http.Client) *OpenAICompleter {
	config := openai.DefaultConfig(apiKey)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(baseURL, "/")
	if httpClient != nil {
		config.HTTPClient = httpClient
	}

	return &OpenAICompleter{
		client: openai.NewClientWithConfig(config),
		opts:   opts.WithDefaults(ai.DefaultModel),
	}
}

// Complete implements the Completer interface
func (a *OpenAICompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := a.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: a.opts.Model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			MaxTokens:   a.opts.MaxTokens,
			Temperature: a.opts.Temperature,
		},
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ai.ErrCompletion, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: invalid API response: no choices found", ai.ErrCompletion)
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", fmt.Errorf("%w: invalid API response: no message content", ai.ErrCompletion)
	}

	return content, nil
}

var _ ai.Completer = (*OpenAICompleter)(nil)
