package telemetry

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"
)

// DefaultServiceName is reported when neither the config nor
// OTEL_SERVICE_NAME names the service.
const DefaultServiceName = "pagechat"

// ProviderConfig mirrors the [telemetry] config section.
type ProviderConfig struct {
	ServiceName    string
	ServiceVersion string

	// Endpoint is host:port or a URL. An http:// URL implies Insecure; a
	// URL path is used as the OTLP/HTTP traces path. Empty falls back to
	// OTEL_EXPORTER_OTLP_ENDPOINT.
	Endpoint string

	// Protocol is "grpc" (default) or "http".
	Protocol string

	Insecure bool

	// Debug records prompts, page URLs and responses on spans.
	Debug bool

	// SampleRatio is the fraction of new traces recorded. Zero or one
	// records everything; inbound trace context is always honored.
	SampleRatio float64
}

// exporterTarget is a resolved OTLP destination.
type exporterTarget struct {
	host     string
	path     string
	insecure bool
}

// resolveEndpoint splits a configured endpoint into exporter settings.
func resolveEndpoint(cfg ProviderConfig) (exporterTarget, error) {
	raw := strings.TrimSpace(cfg.Endpoint)
	if raw == "" {
		raw = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	}
	if raw == "" {
		return exporterTarget{}, fmt.Errorf("telemetry endpoint not configured (set telemetry.endpoint or OTEL_EXPORTER_OTLP_ENDPOINT)")
	}

	t := exporterTarget{host: raw, insecure: cfg.Insecure}
	if !strings.Contains(raw, "://") {
		return t, nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return exporterTarget{}, fmt.Errorf("invalid telemetry endpoint %q", raw)
	}
	switch u.Scheme {
	case "http":
		t.insecure = true
	case "https":
	default:
		return exporterTarget{}, fmt.Errorf("invalid telemetry endpoint scheme %q", u.Scheme)
	}
	t.host = u.Host
	if p := strings.TrimRight(u.Path, "/"); p != "" {
		t.path = p
	}
	return t, nil
}

func newExporter(ctx context.Context, protocol string, t exporterTarget) (sdktrace.SpanExporter, error) {
	switch protocol {
	case "", "grpc":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(t.host)}
		if t.insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)

	case "http":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(t.host)}
		if t.insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if t.path != "" {
			opts = append(opts, otlptracehttp.WithURLPath(t.path))
		}
		return otlptracehttp.New(ctx, opts...)

	default:
		return nil, fmt.Errorf("unknown telemetry protocol %q (use grpc or http)", protocol)
	}
}

func sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// Provider owns the SDK tracer provider installed by InitProvider.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// InitProvider installs an OTLP-exporting tracer provider as the global
// OpenTelemetry provider and the package's global Tracer.
func InitProvider(ctx context.Context, cfg ProviderConfig) (*Provider, error) {
	target, err := resolveEndpoint(cfg)
	if err != nil {
		return nil, err
	}
	exporter, err := newExporter(ctx, cfg.Protocol, target)
	if err != nil {
		return nil, fmt.Errorf("creating exporter: %w", err)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = os.Getenv("OTEL_SERVICE_NAME")
	}
	if serviceName == "" {
		serviceName = DefaultServiceName
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRatio)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	SetGlobalTracer(NewTracerFrom(tp, serviceName, cfg.Debug))

	return &Provider{tp: tp}, nil
}

// TracerProvider returns the installed provider, for HTTP instrumentation.
func (p *Provider) TracerProvider() trace.TracerProvider {
	return p.tp
}

// Shutdown flushes pending spans and stops the exporter. The global tracer
// reverts to a no-op.
func (p *Provider) Shutdown(ctx context.Context) error {
	SetGlobalTracer(nil)
	return p.tp.Shutdown(ctx)
}

// OnShutdown lets the shutdown coordinator flush spans last.
func (p *Provider) OnShutdown(ctx context.Context) error {
	return p.Shutdown(ctx)
}
