package ai

import (
	"context"
	"errors"
)

// ErrCompletion 补全接口不可达、非2xx响应或响应结构不合法
var ErrCompletion = errors.New("completion failure")

const (
	DefaultModel       = "llama-3.1-8b-instant"
	DefaultMaxTokens   = 200
	DefaultTemperature = 0.7
)

// Completer sends a single prompt to a hosted chat-completion endpoint
type Completer interface {
	// Complete returns the first choice's message content. Any transport or
	// shape failure is reported as an error wrapping ErrCompletion.
	Complete(ctx context.Context, prompt string) (string, error)
}

// Options 补全请求参数
type Options struct {
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float32 `json:"temperature"`
}

// WithDefaults fills unset fields.
func (o Options) WithDefaults(model string) Options {
	if o.Model == "" {
		o.Model = model
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.Temperature <= 0 {
		o.Temperature = DefaultTemperature
	}
	return o
}
