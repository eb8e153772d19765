package deepseek

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/songzhibin97/tokenlens/internal/ai"
	"github.com/songzhibin97/tokenlens/internal/utils/request"
)

const (
	defaultAPIEndpoint = "https://api.deepseek.com/v1"
	defaultModel       = "deepseek-chat"
)

// DeepSeekCompleter implements the Completer interface against DeepSeek or any
// endpoint speaking the same chat completions dialect
type DeepSeekCompleter struct {
	apiKey     string
	endpoint   string
	opts       ai.Options
	httpClient *resty.Client
}

// NewDeepSeekCompleter creates a new DeepSeek completer instance
func NewDeepSeekCompleter(apiKey, endpoint string, opts ai.Options) *DeepSeekCompleter {
	if endpoint == "" {
		endpoint = defaultAPIEndpoint
	}

	return &DeepSeekCompleter{
		apiKey:     apiKey,
		endpoint:   strings.TrimRight(endpoint, "/"),
		opts:       opts.WithDefaults(defaultModel),
		httpClient: request.Request,
	}
}

// WithClient swaps the HTTP client.
func (a *DeepSeekCompleter) WithClient(client *resty.Client) *DeepSeekCompleter {
	a.httpClient = client
	return a
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float32       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message *struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete implements the Completer interface
func (a *DeepSeekCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	reqBody := chatRequest{
		Model: a.opts.Model,
		Messages: []chatMessage{
			{
				Role:    "user",
				Content: prompt,
			},
		},
		MaxTokens:   a.opts.MaxTokens,
		Temperature: a.opts.Temperature,
	}

	resp, err := a.httpClient.R().
		SetContext(ctx).
		SetAuthToken(a.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(reqBody).
		Post(a.endpoint + "/chat/completions")
	if err != nil {
		return "", fmt.Errorf("%w: failed to send request: %w", ai.ErrCompletion, err)
	}

	if resp.IsError() {
		return "", fmt.Errorf("%w: HTTP %d: %s", ai.ErrCompletion, resp.StatusCode(), resp.Status())
	}

	var chatResp chatResponse
	if err := json.Unmarshal(resp.Body(), &chatResp); err != nil {
		return "", fmt.Errorf("%w: failed to decode response: %w", ai.ErrCompletion, err)
	}

	if chatResp.Error != nil {
		return "", fmt.Errorf("%w: API error: %s", ai.ErrCompletion, chatResp.Error.Message)
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("%w: invalid API response: no choices found", ai.ErrCompletion)
	}

	msg := chatResp.Choices[0].Message
	if msg == nil || msg.Content == "" {
		return "", fmt.Errorf("%w: invalid API response: no message content", ai.ErrCompletion)
	}

	return msg.Content, nil
}

var _ ai.Completer = (*DeepSeekCompleter)(nil)
