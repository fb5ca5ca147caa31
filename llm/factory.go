package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vinayprograms/pagechat/errors"
)

// New creates a generator based on the configuration.
// If Provider is empty, it is inferred from the Model name.
func New(cfg Config) (Generator, error) {
	cfg.ApplyDefaults()
	if cfg.Provider == "" {
		return nil, fmt.Errorf("cannot determine provider for model %q; set provider explicitly", cfg.Model)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Provider {
	case ProviderGemini:
		return NewGemini(GeminiConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})

	case ProviderGeminiSDK, "google":
		return NewGoogleGenerator(GoogleConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Timeout:   cfg.Timeout,
		})

	case ProviderOpenAI:
		return NewOpenAIGenerator(OpenAIConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Timeout:   cfg.Timeout,
		})

	case ProviderAnthropic:
		return NewAnthropicGenerator(AnthropicConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Timeout:   cfg.Timeout,
		})

	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

// InferProviderFromModel returns the provider name based on model name patterns.
func InferProviderFromModel(model string) string {
	model = strings.ToLower(model)

	switch {
	case strings.HasPrefix(model, "gemini"), strings.HasPrefix(model, "gemma"):
		return ProviderGemini
	case strings.HasPrefix(model, "gpt-"),
		strings.HasPrefix(model, "o1"),
		strings.HasPrefix(model, "o3"),
		strings.HasPrefix(model, "chatgpt"):
		return ProviderOpenAI
	case strings.HasPrefix(model, "claude"):
		return ProviderAnthropic
	}
	return ""
}

// withTimeout bounds ctx by d when d is positive.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// transportError converts a failed vendor call into a typed error. Context
// errors keep their meaning; everything else is GENERATION_FAILED with the
// vendor's message and a coarse reason in the metadata.
func transportError(ctx context.Context, provider string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if e := errors.FromContext(ctxErr, "Generation failed: "+ctxErr.Error()); e != nil {
			return e
		}
	}
	return errors.GenerationFailed(err.Error(),
		errors.WithCause(err),
		errors.WithMetadata("provider", provider),
		errors.WithMetadata("reason", classify(err)))
}

// classify names the kind of vendor failure for logs and spans.
func classify(err error) string {
	switch {
	case isBillingError(err):
		return "billing"
	case isRateLimitError(err):
		return "rate_limited"
	case isServerError(err):
		return "server"
	default:
		return "request"
	}
}

// isRateLimitError checks if the error is a rate limit error.
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "resource_exhausted") ||
		strings.Contains(errStr, "overloaded")
}

// isServerError checks if the error is a transient server error (5xx).
func isServerError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "bad gateway") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "gateway timeout") ||
		strings.Contains(errStr, "temporarily unavailable")
}

// isBillingError checks if the error is a billing/payment/quota error.
func isBillingError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "billing") ||
		strings.Contains(errStr, "payment") ||
		strings.Contains(errStr, "credits") ||
		strings.Contains(errStr, "quota exceeded") ||
		strings.Contains(errStr, "insufficient") ||
		strings.Contains(errStr, "402")
}
