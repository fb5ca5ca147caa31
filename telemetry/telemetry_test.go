package telemetry

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/vinayprograms/pagechat/errors"
)

func newRecordingTracer(debug bool) (*Tracer, *tracetest.SpanRecorder) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	return NewTracerFrom(tp, "test", debug), rec
}

func attrMap(kvs []attribute.KeyValue) map[string]string {
	m := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		m[string(kv.Key)] = kv.Value.Emit()
	}
	return m
}

func TestGetTracer_NoopWhenUnset(t *testing.T) {
	SetGlobalTracer(nil)
	tr := GetTracer()
	if tr == nil {
		t.Fatal("GetTracer should never return nil")
	}
	_, span := tr.StartFetchSpan(context.Background(), "https://example.com")
	tr.EndFetchSpan(span, FetchSpanOptions{}, nil)
}

func TestSetGlobalTracer(t *testing.T) {
	tr, _ := newRecordingTracer(false)
	SetGlobalTracer(tr)
	defer SetGlobalTracer(nil)

	if GetTracer() != tr {
		t.Error("GetTracer should return the tracer that was set")
	}
}

func TestChildSpansShareTrace(t *testing.T) {
	tr, rec := newRecordingTracer(false)

	ctx, root := tr.StartChatSpan(context.Background(), "req-1")
	_, fetch := tr.StartFetchSpan(ctx, "https://example.com")
	tr.EndFetchSpan(fetch, FetchSpanOptions{CacheHit: true, Chars: 42}, nil)
	_, admit := tr.StartAdmitSpan(ctx)
	tr.EndAdmitSpan(admit, AdmitSpanOptions{Waited: 5 * time.Millisecond, InFlight: 1, Capacity: 3}, nil)
	tr.EndChatSpan(root, ChatSpanOptions{URL: "https://example.com"}, nil)

	spans := rec.Ended()
	if len(spans) != 3 {
		t.Fatalf("expected 3 spans, got %d", len(spans))
	}
	traceID := spans[0].SpanContext().TraceID()
	for _, s := range spans {
		if s.SpanContext().TraceID() != traceID {
			t.Errorf("span %s is not part of the request trace", s.Name())
		}
	}
	if spans[0].Name() != SpanFetch {
		t.Errorf("expected first ended span %s, got %s", SpanFetch, spans[0].Name())
	}
	attrs := attrMap(spans[0].Attributes())
	if attrs["fetch.cache_hit"] != "true" || attrs["fetch.chars"] != "42" {
		t.Errorf("unexpected fetch attributes: %v", attrs)
	}
}

func TestEndLLMSpan_DebugContent(t *testing.T) {
	tests := []struct {
		debug      bool
		wantPrompt bool
	}{
		{debug: false, wantPrompt: false},
		{debug: true, wantPrompt: true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("debug=%v", tt.debug), func(t *testing.T) {
			tr, rec := newRecordingTracer(tt.debug)
			_, span := tr.StartLLMSpan(context.Background(), SpanGenerate)
			tr.EndLLMSpan(span, LLMSpanOptions{
				Model:    "gemini-2.0-flash",
				Provider: "gemini",
				Prompt:   "secret prompt",
				Response: "answer",
			}, nil)

			attrs := attrMap(rec.Ended()[0].Attributes())
			_, has := attrs["llm.prompt"]
			if has != tt.wantPrompt {
				t.Errorf("llm.prompt present = %v, want %v", has, tt.wantPrompt)
			}
			if attrs["llm.model"] != "gemini-2.0-flash" {
				t.Errorf("unexpected model attribute %q", attrs["llm.model"])
			}
		})
	}
}

func TestEndSpan_RecordsErrorCode(t *testing.T) {
	tr, rec := newRecordingTracer(false)
	_, span := tr.StartFetchSpan(context.Background(), "https://example.invalid")
	tr.EndFetchSpan(span, FetchSpanOptions{}, errors.FetchFailed("https://example.invalid", fmt.Errorf("dial tcp: no such host")))

	s := rec.Ended()[0]
	if s.Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", s.Status().Code)
	}
	if got := attrMap(s.Attributes())["error.code"]; got != "FETCH_FAILED" {
		t.Errorf("expected error.code FETCH_FAILED, got %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("héllo", 10); got != "héllo" {
		t.Errorf("short strings should pass through, got %q", got)
	}
	if got := truncate("héllo", 2); got != "hé..." {
		t.Errorf("expected rune-safe truncation, got %q", got)
	}
}

func TestInitProvider_RequiresEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	if _, err := InitProvider(context.Background(), ProviderConfig{}); err == nil {
		t.Error("expected error without an endpoint")
	}
}

func TestInitProvider_UnknownProtocol(t *testing.T) {
	_, err := InitProvider(context.Background(), ProviderConfig{Endpoint: "localhost:4317", Protocol: "carrier-pigeon"})
	if err == nil {
		t.Error("expected error for unknown protocol")
	}
}

func TestResolveEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		cfg      ProviderConfig
		host     string
		path     string
		insecure bool
		wantErr  bool
	}{
		{"host port", ProviderConfig{Endpoint: "collector:4317"}, "collector:4317", "", false, false},
		{"host port insecure", ProviderConfig{Endpoint: "collector:4317", Insecure: true}, "collector:4317", "", true, false},
		{"http url", ProviderConfig{Endpoint: "http://collector:4318"}, "collector:4318", "", true, false},
		{"https url with path", ProviderConfig{Endpoint: "https://otel.example.com/otlp/v1/traces/"}, "otel.example.com", "/otlp/v1/traces", false, false},
		{"bad scheme", ProviderConfig{Endpoint: "ftp://collector"}, "", "", false, true},
		{"url without host", ProviderConfig{Endpoint: "http://"}, "", "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveEndpoint(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.host != tt.host || got.path != tt.path || got.insecure != tt.insecure {
				t.Errorf("got %+v, want host=%q path=%q insecure=%v", got, tt.host, tt.path, tt.insecure)
			}
		})
	}
}

func TestResolveEndpoint_EnvFallback(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://env-collector:4318")
	got, err := resolveEndpoint(ProviderConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.host != "env-collector:4318" || !got.insecure {
		t.Errorf("expected env endpoint, got %+v", got)
	}
}

func TestSampler(t *testing.T) {
	if got := sampler(0).Description(); !strings.Contains(got, "AlwaysOnSampler") {
		t.Errorf("ratio 0 should sample everything, got %s", got)
	}
	if got := sampler(0.25).Description(); !strings.Contains(got, "TraceIDRatioBased{0.25}") {
		t.Errorf("expected ratio sampler, got %s", got)
	}
}

func TestInitProvider_InstallsGlobalTracer(t *testing.T) {
	p, err := InitProvider(context.Background(), ProviderConfig{
		Endpoint: "localhost:4317",
		Insecure: true,
		Debug:    true,
	})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	if p.TracerProvider() == nil {
		t.Fatal("expected a tracer provider")
	}
	if !GetTracer().Debug() {
		t.Error("expected the global tracer to carry the debug flag")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.OnShutdown(ctx); err != nil {
		t.Errorf("OnShutdown: %v", err)
	}
	if GetTracer().Debug() {
		t.Error("expected the global tracer to be reset after shutdown")
	}
}
