package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/api/option"

	"github.com/vinayprograms/pagechat/errors"
)

// GoogleGenerator implements Generator using the official Google Gemini SDK.
type GoogleGenerator struct {
	client    *genai.Client
	model     *genai.GenerativeModel
	modelName string
	timeout   time.Duration
}

// GoogleConfig holds configuration for the Gemini SDK backend.
type GoogleConfig struct {
	APIKey    string
	BaseURL   string // scheme and host replace the SDK's default endpoint
	Model     string
	MaxTokens int
	Timeout   time.Duration

	// Transport carries the SDK's requests (default http.DefaultTransport).
	Transport http.RoundTripper
}

// NewGoogleGenerator creates a Gemini generator using the official SDK.
func NewGoogleGenerator(cfg GoogleConfig) (*GoogleGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api_key is required for gemini-sdk")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required for gemini-sdk")
	}

	st := &sdkTransport{apiKey: cfg.APIKey, next: cfg.Transport}
	if st.next == nil {
		st.next = otelhttp.NewTransport(http.DefaultTransport)
	}
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid base_url for gemini-sdk: %q", cfg.BaseURL)
		}
		st.base = u
	}

	// The key is still passed so the SDK's non-REST clients authenticate;
	// generation goes through st.
	ctx := context.Background()
	client, err := genai.NewClient(ctx,
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Transport: st}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create google client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	if cfg.MaxTokens > 0 {
		maxTokens := int32(cfg.MaxTokens)
		model.MaxOutputTokens = &maxTokens
	}

	return &GoogleGenerator{
		client:    client,
		model:     model,
		modelName: cfg.Model,
		timeout:   cfg.Timeout,
	}, nil
}

// Close closes the underlying client.
func (g *GoogleGenerator) Close() error {
	return g.client.Close()
}

// Generate implements the Generator interface.
func (g *GoogleGenerator) Generate(ctx context.Context, prompt string) (*Generation, error) {
	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, transportError(ctx, ProviderGeminiSDK, err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, errors.MalformedResponse("no candidate content")
	}
	text, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return nil, errors.MalformedResponse(fmt.Sprintf("first part is %T, not text", resp.Candidates[0].Content.Parts[0]))
	}

	result := &Generation{
		Text:  string(text),
		Model: g.modelName,
	}
	if resp.UsageMetadata != nil {
		result.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		result.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return result, nil
}

// sdkTransport authenticates SDK requests and keeps them single-attempt.
// The SDK retries GenerateContent on HTTP 503 responses; returning the 503
// as a transport error instead ends the call after one request.
type sdkTransport struct {
	apiKey string
	base   *url.URL
	next   http.RoundTripper
}

func (t *sdkTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("X-goog-api-key", t.apiKey)
	if t.base != nil {
		req.URL.Scheme = t.base.Scheme
		req.URL.Host = t.base.Host
		req.Host = t.base.Host
	}

	resp, err := t.next.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusServiceUnavailable {
		return resp, err
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
	return nil, &unavailableError{message: gjson.GetBytes(body, "error.message").String()}
}

// unavailableError is a 503 from the Gemini API.
type unavailableError struct {
	message string
}

func (e *unavailableError) Error() string {
	if e.message == "" {
		return "HTTP 503 Service Unavailable"
	}
	return "HTTP 503 Service Unavailable: " + e.message
}
