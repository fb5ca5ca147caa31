package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vinayprograms/pagechat/errors"
)

// DefaultGeminiBaseURL is the public Generative Language API host.
const DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

// maxEnvelopeBytes caps how much of a Gemini response is read.
const maxEnvelopeBytes = 8 << 20

// GeminiGenerator calls the Gemini generateContent REST endpoint directly.
type GeminiGenerator struct {
	apiKey   string
	endpoint string
	model    string
	timeout  time.Duration
	client   *http.Client
}

// GeminiConfig holds configuration for the Gemini REST backend.
type GeminiConfig struct {
	APIKey  string
	BaseURL string // defaults to DefaultGeminiBaseURL
	Model   string
	Timeout time.Duration

	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// NewGemini creates a Gemini REST generator.
func NewGemini(cfg GeminiConfig) (*GeminiGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api_key is required for gemini")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required for gemini")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultGeminiBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base_url for gemini: %w", err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}

	return &GeminiGenerator{
		apiKey:   cfg.APIKey,
		endpoint: baseURL + "/v1beta/models/" + url.PathEscape(cfg.Model) + ":generateContent",
		model:    cfg.Model,
		timeout:  timeout,
		client:   client,
	}, nil
}

// Endpoint returns the URL requests are posted to.
func (g *GeminiGenerator) Endpoint() string {
	return g.endpoint
}

// Generate implements the Generator interface.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (*Generation, error) {
	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	body, err := sjson.SetBytes([]byte(`{}`), "contents.0.parts.0.text", prompt)
	if err != nil {
		return nil, errors.Wrap(err, "building gemini request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "building gemini request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-goog-api-key", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, ProviderGemini, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxEnvelopeBytes))
	if err != nil {
		return nil, transportError(ctx, ProviderGemini, err)
	}
	return g.parse(resp.StatusCode, raw)
}

// parse reads a generateContent envelope. The answer lives at
// candidates.0.content.parts.0.text; error.message carries provider failures.
func (g *GeminiGenerator) parse(status int, raw []byte) (*Generation, error) {
	ok := status >= 200 && status < 300
	statusMeta := errors.WithMetadata("http_status", fmt.Sprint(status))

	if !gjson.ValidBytes(raw) {
		if !ok {
			return nil, errors.GenerationFailed(unknownIssue(status), statusMeta)
		}
		return nil, errors.MalformedResponse("response is not JSON", statusMeta)
	}

	env := gjson.ParseBytes(raw)
	if text := env.Get("candidates.0.content.parts.0.text"); ok && text.Type == gjson.String {
		gen := &Generation{
			Text:         text.String(),
			Model:        env.Get("modelVersion").String(),
			InputTokens:  int(env.Get("usageMetadata.promptTokenCount").Int()),
			OutputTokens: int(env.Get("usageMetadata.candidatesTokenCount").Int()),
		}
		if gen.Model == "" {
			gen.Model = g.model
		}
		return gen, nil
	}

	if msg := env.Get("error.message"); msg.Exists() {
		return nil, errors.GenerationFailed(msg.String(), statusMeta,
			errors.WithMetadata("provider_status", env.Get("error.status").String()))
	}
	if !ok {
		return nil, errors.GenerationFailed(unknownIssue(status), statusMeta)
	}
	detail := "no text at candidates[0].content.parts[0].text"
	if reason := env.Get("promptFeedback.blockReason"); reason.Exists() {
		detail += " (prompt blocked: " + reason.String() + ")"
	}
	return nil, errors.MalformedResponse(detail, statusMeta)
}

func unknownIssue(status int) string {
	return fmt.Sprintf("unknown issue (HTTP %d)", status)
}
