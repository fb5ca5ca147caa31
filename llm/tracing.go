package llm

import (
	"context"

	"github.com/vinayprograms/pagechat/telemetry"
)

// TracingGenerator wraps a Generator with OpenTelemetry tracing.
type TracingGenerator struct {
	generator    Generator
	providerName string
}

// WithTracing wraps a generator with tracing instrumentation.
func WithTracing(g Generator, providerName string) Generator {
	return &TracingGenerator{
		generator:    g,
		providerName: providerName,
	}
}

// Generate implements Generator with tracing.
func (tg *TracingGenerator) Generate(ctx context.Context, prompt string) (*Generation, error) {
	tracer := telemetry.GetTracer()

	ctx, span := tracer.StartLLMSpan(ctx, telemetry.SpanGenerate)

	resp, err := tg.generator.Generate(ctx, prompt)

	opts := telemetry.LLMSpanOptions{
		Provider: tg.providerName,
		Prompt:   prompt,
	}
	if resp != nil {
		opts.Model = resp.Model
		opts.TokensIn = resp.InputTokens
		opts.TokensOut = resp.OutputTokens
		opts.Response = resp.Text
	}

	tracer.EndLLMSpan(span, opts, err)

	return resp, err
}
