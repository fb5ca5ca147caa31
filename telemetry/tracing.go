// Package telemetry wraps OpenTelemetry tracing for the relay pipeline.
//
// Every stage of a chat request gets its own span: relay.chat is the root,
// with fetch.page, admission.wait and llm.generate as children. Prompt and
// response content is attached only when debug mode is on.
package telemetry

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/vinayprograms/pagechat/errors"
)

// Span names.
const (
	SpanChat     = "relay.chat"
	SpanFetch    = "fetch.page"
	SpanAdmit    = "admission.wait"
	SpanGenerate = "llm.generate"
)

// Tracer wraps an OpenTelemetry tracer with relay-specific helpers.
type Tracer struct {
	tracer trace.Tracer
	debug  bool // When true, include content in span attributes
}

var (
	globalTracer *Tracer
	tracerMu     sync.RWMutex
)

// SetGlobalTracer sets the global tracer instance.
func SetGlobalTracer(t *Tracer) {
	tracerMu.Lock()
	defer tracerMu.Unlock()
	globalTracer = t
}

// GetTracer returns the global tracer, or a no-op tracer if not set.
func GetTracer() *Tracer {
	tracerMu.RLock()
	defer tracerMu.RUnlock()
	if globalTracer == nil {
		return &Tracer{tracer: noop.NewTracerProvider().Tracer("")}
	}
	return globalTracer
}

// NewTracerFrom creates a tracer from an explicit provider.
func NewTracerFrom(tp trace.TracerProvider, name string, debug bool) *Tracer {
	return &Tracer{tracer: tp.Tracer(name), debug: debug}
}

// Debug returns whether debug mode is enabled.
func (t *Tracer) Debug() bool {
	return t.debug
}

// StartSpan starts a new span with the given name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// --- Request Spans ---

// ChatSpanOptions contains options for the request root span.
type ChatSpanOptions struct {
	RequestID string
	URL       string
	Language  string
	Prompt    string // Only included if debug=true
	Response  string // Only included if debug=true
}

// StartChatSpan starts the root span of a chat request.
func (t *Tracer) StartChatSpan(ctx context.Context, requestID string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, SpanChat, trace.WithSpanKind(trace.SpanKindServer))
	span.SetAttributes(attribute.String("relay.request_id", requestID))
	return ctx, span
}

// EndChatSpan ends a chat span with attributes.
func (t *Tracer) EndChatSpan(span trace.Span, opts ChatSpanOptions, err error) {
	attrs := []attribute.KeyValue{}
	if opts.URL != "" {
		attrs = append(attrs, attribute.String("relay.url", opts.URL))
	}
	if opts.Language != "" {
		attrs = append(attrs, attribute.String("relay.language", opts.Language))
	}
	if t.debug {
		if opts.Prompt != "" {
			attrs = append(attrs, attribute.String("relay.prompt", truncate(opts.Prompt, 4000)))
		}
		if opts.Response != "" {
			attrs = append(attrs, attribute.String("relay.response", truncate(opts.Response, 4000)))
		}
	}
	span.SetAttributes(attrs...)
	end(span, err)
}

// --- Fetch Spans ---

// FetchSpanOptions contains options for page fetch spans.
type FetchSpanOptions struct {
	CacheHit bool
	Status   int
	Chars    int
}

// StartFetchSpan starts a span for a page fetch.
func (t *Tracer) StartFetchSpan(ctx context.Context, url string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, SpanFetch, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attribute.String("fetch.url", url))
	return ctx, span
}

// EndFetchSpan ends a fetch span with attributes.
func (t *Tracer) EndFetchSpan(span trace.Span, opts FetchSpanOptions, err error) {
	attrs := []attribute.KeyValue{
		attribute.Bool("fetch.cache_hit", opts.CacheHit),
		attribute.Int("fetch.chars", opts.Chars),
	}
	if opts.Status != 0 {
		attrs = append(attrs, attribute.Int("http.status_code", opts.Status))
	}
	span.SetAttributes(attrs...)
	end(span, err)
}

// --- Admission Spans ---

// AdmitSpanOptions contains options for admission gate spans.
type AdmitSpanOptions struct {
	Waited   time.Duration
	InFlight int
	Capacity int
}

// StartAdmitSpan starts a span covering the wait for a gate slot.
func (t *Tracer) StartAdmitSpan(ctx context.Context) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanAdmit, trace.WithSpanKind(trace.SpanKindInternal))
}

// EndAdmitSpan ends an admission span with attributes.
func (t *Tracer) EndAdmitSpan(span trace.Span, opts AdmitSpanOptions, err error) {
	span.SetAttributes(
		attribute.Int64("admission.wait_ms", opts.Waited.Milliseconds()),
		attribute.Int("admission.in_flight", opts.InFlight),
		attribute.Int("admission.capacity", opts.Capacity),
	)
	end(span, err)
}

// --- LLM Spans ---

// LLMSpanOptions contains options for LLM call spans.
type LLMSpanOptions struct {
	Model     string
	Provider  string
	TokensIn  int
	TokensOut int
	Prompt    string // Only included if debug=true
	Response  string // Only included if debug=true
}

// StartLLMSpan starts a span for an LLM call.
func (t *Tracer) StartLLMSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
}

// EndLLMSpan ends an LLM span with attributes.
func (t *Tracer) EndLLMSpan(span trace.Span, opts LLMSpanOptions, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("llm.model", opts.Model),
		attribute.String("llm.provider", opts.Provider),
		attribute.Int("llm.tokens.input", opts.TokensIn),
		attribute.Int("llm.tokens.output", opts.TokensOut),
	}

	if t.debug {
		if opts.Prompt != "" {
			attrs = append(attrs, attribute.String("llm.prompt", truncate(opts.Prompt, 4000)))
		}
		if opts.Response != "" {
			attrs = append(attrs, attribute.String("llm.response", truncate(opts.Response, 4000)))
		}
	}

	span.SetAttributes(attrs...)
	end(span, err)
}

// end records err (with its code, when typed) and closes the span.
func end(span trace.Span, err error) {
	if err != nil {
		span.SetAttributes(attribute.String("error.code", string(errors.Code(err))))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func truncate(s string, maxChars int) string {
	if utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	return string([]rune(s)[:maxChars]) + "..."
}
