package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// TracerName is the instrumentation scope used by the runner.
const TracerName = "github.com/nvandessel/sdrun/internal/runner"

// Exporter selects where finished spans go.
type Exporter string

const (
	// ExporterStdout writes spans as JSON to TracingConfig.Writer.
	ExporterStdout Exporter = "stdout"
	// ExporterOTLP sends spans to an OTLP/gRPC collector.
	ExporterOTLP Exporter = "otlp"
)

// DefaultOTLPEndpoint is the collector address when none is configured.
const DefaultOTLPEndpoint = "localhost:4317"

// shutdownTimeout bounds the final span flush when a command exits.
const shutdownTimeout = 5 * time.Second

// ParseExporter accepts "stdout", "otlp" and its alias "otlpgrpc",
// case-insensitively. Empty selects stdout.
func ParseExporter(s string) (Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "stdout":
		return ExporterStdout, nil
	case "otlp", "otlpgrpc":
		return ExporterOTLP, nil
	default:
		return "", fmt.Errorf("unsupported tracing exporter %q (valid: stdout, otlp)", s)
	}
}

// TracingConfig describes the tracer provider of one sdrun process.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Version     string
	Exporter    string
	Endpoint    string
	SampleRatio float64

	// Writer receives stdout exporter output. Nil means os.Stderr so span
	// dumps never mix with command output.
	Writer io.Writer
}

// Tracing owns the tracer provider installed by InitTracing.
type Tracing struct {
	provider *sdktrace.TracerProvider
	logger   *slog.Logger
}

// InitTracing installs the global tracer provider described by cfg. When
// tracing is disabled a no-op provider is installed and the returned
// Tracing has nothing to flush.
func InitTracing(ctx context.Context, cfg TracingConfig, logger *slog.Logger) (*Tracing, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return &Tracing{logger: logger}, nil
	}

	kind, err := ParseExporter(cfg.Exporter)
	if err != nil {
		return nil, err
	}
	exp, err := newExporter(ctx, kind, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating %s exporter: %w", kind, err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(serviceAttributes(cfg)...))
	if err != nil {
		return nil, fmt.Errorf("creating trace resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sampler(cfg.SampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	logger.Debug("tracing enabled", "exporter", kind, "sample_ratio", cfg.SampleRatio)
	return &Tracing{provider: provider, logger: logger}, nil
}

func serviceAttributes(cfg TracingConfig) []attribute.KeyValue {
	name := cfg.ServiceName
	if name == "" {
		name = "sdrun"
	}
	attrs := []attribute.KeyValue{attribute.String("service.name", name)}
	if cfg.Version != "" {
		attrs = append(attrs, attribute.String("service.version", cfg.Version))
	}
	return attrs
}

// sampler keeps every trace at ratio 1 and none at 0.
func sampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1:
		return sdktrace.AlwaysSample()
	case ratio <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(ratio)
	}
}

func newExporter(ctx context.Context, kind Exporter, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	if kind == ExporterOTLP {
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = DefaultOTLPEndpoint
		}
		return otlptrace.New(ctx, otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		))
	}

	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}
	return stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithoutTimestamps())
}

// Shutdown flushes pending spans. Failures are logged, since a lost trace
// must not fail the command that produced it.
func (t *Tracing) Shutdown(ctx context.Context) {
	if t == nil || t.provider == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := t.provider.Shutdown(ctx); err != nil {
		t.logger.Warn("flushing traces failed", "error", err)
	}
}

// Tracer returns the runner tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}
