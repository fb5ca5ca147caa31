// Package llm provides the text generation client and its backends.
//
// Every backend implements Generator: one prompt in, one answer out. There is
// no retry and no caching; failures surface as typed errors with codes
// GENERATION_FAILED, MALFORMED_RESPONSE, TIMEOUT or CANCELED.
package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Generation is a model answer.
type Generation struct {
	Text         string `json:"text"`
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// Generator is the interface for LLM backends.
type Generator interface {
	// Generate sends prompt and returns the model's answer.
	Generate(ctx context.Context, prompt string) (*Generation, error)
}

// Provider names.
const (
	ProviderGemini    = "gemini"
	ProviderGeminiSDK = "gemini-sdk"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// DefaultTimeout bounds a single generation call.
const DefaultTimeout = 60 * time.Second

// Config holds configuration for a Generator.
type Config struct {
	Provider  string        `json:"provider"` // gemini, gemini-sdk, openai, anthropic
	Model     string        `json:"model"`
	APIKey    string        `json:"-"`
	BaseURL   string        `json:"base_url"`
	Timeout   time.Duration `json:"timeout"`
	MaxTokens int           `json:"max_tokens"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.APIKey == "" {
		return fmt.Errorf("api key is required for %s", c.Provider)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	return nil
}

// ApplyDefaults applies default values.
func (c *Config) ApplyDefaults() {
	if c.Provider == "" && c.Model != "" {
		c.Provider = InferProviderFromModel(c.Model)
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
}

// --- Mock Generator for Testing ---

// MockGenerator is a mock Generator for testing. It is safe for concurrent use.
type MockGenerator struct {
	mu           sync.Mutex
	response     string
	model        string
	inputTokens  int
	outputTokens int
	err          error
	lastPrompt   string
	callCount    int

	// GenerateFunc can be overridden for custom behavior
	GenerateFunc func(ctx context.Context, prompt string) (*Generation, error)
}

// NewMockGenerator creates a new mock generator.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{model: "mock"}
}

// SetResponse sets the response text.
func (g *MockGenerator) SetResponse(text string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.response = text
}

// SetTokenCounts sets the token counts.
func (g *MockGenerator) SetTokenCounts(input, output int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inputTokens = input
	g.outputTokens = output
}

// SetError sets an error to return.
func (g *MockGenerator) SetError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

// LastPrompt returns the last prompt received.
func (g *MockGenerator) LastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastPrompt
}

// CallCount returns the number of Generate calls made.
func (g *MockGenerator) CallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.callCount
}

// Reset resets the call count.
func (g *MockGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.callCount = 0
}

// Generate implements the Generator interface.
func (g *MockGenerator) Generate(ctx context.Context, prompt string) (*Generation, error) {
	g.mu.Lock()
	g.callCount++
	g.lastPrompt = prompt
	fn := g.GenerateFunc
	resp, err := &Generation{
		Text:         g.response,
		Model:        g.model,
		InputTokens:  g.inputTokens,
		OutputTokens: g.outputTokens,
	}, g.err
	g.mu.Unlock()

	// Use custom function if set
	if fn != nil {
		return fn(ctx, prompt)
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}
