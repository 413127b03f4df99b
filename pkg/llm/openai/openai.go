// Package openai provides a chat-completion client backed by the OpenAI API.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/clinscribe/clinscribe/pkg/llm"
)

// Ensure Client implements the llm.Client interface.
var _ llm.Client = (*Client)(nil)

// Client implements llm.Client using the OpenAI API.
type Client struct {
	client oai.Client
}

// config holds optional configuration for the client.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Client.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI chat-completion client. The model is chosen per
// request by the caller (the gate resolves it from the request intent).
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Client{client: oai.NewClient(reqOpts...)}, nil
}

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, messages []llm.Message, model string, temperature float64) (string, error) {
	if model == "" {
		return "", fmt.Errorf("openai: model must not be empty")
	}

	converted := make([]oai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			converted = append(converted, oai.SystemMessage(m.Content))
		case llm.RoleAssistant:
			converted = append(converted, oai.AssistantMessage(m.Content))
		case llm.RoleUser:
			converted = append(converted, oai.UserMessage(m.Content))
		default:
			return "", fmt.Errorf("openai: unknown message role %q", m.Role)
		}
	}

	params := oai.ChatCompletionNewParams{
		Model:    model,
		Messages: converted,
	}
	if temperature != 0 {
		params.Temperature = param.NewOpt(temperature)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}
