package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/vinayprograms/pagechat/errors"
)

// AnthropicGenerator implements Generator using the official Anthropic SDK.
type AnthropicGenerator struct {
	client    *anthropic.Client
	model     string
	maxTokens int
	timeout   time.Duration
}

// AnthropicConfig holds configuration for the Anthropic backend.
type AnthropicConfig struct {
	APIKey    string
	BaseURL   string // Optional custom endpoint
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// NewAnthropicGenerator creates an Anthropic generator using the official SDK.
func NewAnthropicGenerator(cfg AnthropicConfig) (*AnthropicGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api_key is required for anthropic")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required for anthropic")
	}
	if cfg.MaxTokens == 0 {
		return nil, fmt.Errorf("max_tokens is required for anthropic")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	client := anthropic.NewClient(opts...)

	return &AnthropicGenerator{
		client:    &client,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
	}, nil
}

// Generate implements the Generator interface.
func (g *AnthropicGenerator) Generate(ctx context.Context, prompt string) (*Generation, error) {
	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: int64(g.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, transportError(ctx, ProviderAnthropic, err)
	}

	result := &Generation{
		Model:        string(resp.Model),
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}
	found := false
	for _, block := range resp.Content {
		if block.Type == "text" {
			result.Text += block.Text
			found = true
		}
	}
	if !found {
		return nil, errors.MalformedResponse("no text block in response")
	}
	return result, nil
}
