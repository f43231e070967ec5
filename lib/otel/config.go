package otel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config holds the OpenTelemetry configuration
type Config struct {
	Enabled        bool   `koanf:"enabled"`
	ServiceName    string `koanf:"servicename"`
	ServiceVersion string `koanf:"serviceversion"`
	// SampleRatio is the fraction of root traces that is sampled, between 0 and 1.
	SampleRatio float64        `koanf:"sampleratio"`
	Exporter    ExporterConfig `koanf:"exporter"`
}

type ExporterConfig struct {
	// Type of exporter: "otlp", "stdout", or "none"
	Type string     `koanf:"type"`
	OTLP OTLPConfig `koanf:"otlp"`
}

type OTLPConfig struct {
	// Protocol is either "http" (default) or "grpc"
	Protocol string `koanf:"protocol"`
	// Endpoint is the host:port of the OTLP collector (e.g., "localhost:4318" for HTTP, "localhost:4317" for gRPC)
	Endpoint string            `koanf:"endpoint"`
	Headers  map[string]string `koanf:"headers"`
	Timeout  time.Duration     `koanf:"timeout"`
	// Insecure controls whether to use HTTP instead of HTTPS
	Insecure bool `koanf:"insecure"`
}

func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		ServiceName:    "wpas-referral-proxy",
		ServiceVersion: "1.0.0",
		SampleRatio:    1,
		Exporter: ExporterConfig{
			Type: "stdout",
			OTLP: OTLPConfig{
				Protocol: "http",
				Endpoint: "localhost:4318",
				Timeout:  10 * time.Second,
			},
		},
	}
}

func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.ServiceName == "" {
		return errors.New("service name is required when OpenTelemetry is enabled")
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return fmt.Errorf("sample ratio must be between 0 and 1 (got %v)", c.SampleRatio)
	}
	switch c.Exporter.Type {
	case "otlp":
		if c.Exporter.OTLP.Endpoint == "" {
			return errors.New("OTLP endpoint is required when using OTLP exporter")
		}
		if p := c.Exporter.OTLP.Protocol; p != "" && p != "http" && p != "grpc" {
			return fmt.Errorf("unsupported OTLP protocol: %s (supported: http, grpc)", p)
		}
	case "stdout", "none":
	default:
		return fmt.Errorf("unsupported exporter type: %s (supported: otlp, stdout, none)", c.Exporter.Type)
	}
	return nil
}

// TracerProvider wraps the global tracer provider so it can be shut down on exit.
type TracerProvider struct {
	provider *trace.TracerProvider
	cleanup  func(context.Context) error
}

// Initialize sets up the global OpenTelemetry tracer provider and propagator based on the configuration.
func Initialize(ctx context.Context, config Config) (*TracerProvider, error) {
	if !config.Enabled {
		noopProvider := trace.NewTracerProvider()
		otel.SetTracerProvider(noopProvider)
		return &TracerProvider{
			provider: noopProvider,
			cleanup:  func(context.Context) error { return nil },
		}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var exporter trace.SpanExporter
	switch config.Exporter.Type {
	case "otlp":
		exporter, err = otlpExporter(ctx, config.Exporter.OTLP)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
	case "none":
		// Spans are recorded (e.g. for log correlation) but not exported
	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", config.Exporter.Type)
	}

	opts := []trace.TracerProviderOption{
		trace.WithResource(res),
		trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(config.SampleRatio))),
	}
	if exporter != nil {
		opts = append(opts, trace.WithBatcher(exporter))
	}
	tp := trace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return &TracerProvider{
		provider: tp,
		cleanup:  tp.Shutdown,
	}, nil
}

// Shutdown flushes and stops the tracer provider.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.cleanup != nil {
		return tp.cleanup(ctx)
	}
	return nil
}

var otlpRetry = struct {
	initial, max, elapsed time.Duration
}{initial: time.Second, max: 5 * time.Second, elapsed: 30 * time.Second}

func otlpExporter(ctx context.Context, config OTLPConfig) (trace.SpanExporter, error) {
	if config.Protocol == "grpc" {
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(config.Endpoint),
			otlptracegrpc.WithTimeout(config.Timeout),
			otlptracegrpc.WithRetry(otlptracegrpc.RetryConfig{
				Enabled:         true,
				InitialInterval: otlpRetry.initial,
				MaxInterval:     otlpRetry.max,
				MaxElapsedTime:  otlpRetry.elapsed,
			}),
		}
		if len(config.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(config.Headers))
		}
		if config.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)
	}
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(config.Endpoint),
		otlptracehttp.WithTimeout(config.Timeout),
		otlptracehttp.WithRetry(otlptracehttp.RetryConfig{
			Enabled:         true,
			InitialInterval: otlpRetry.initial,
			MaxInterval:     otlpRetry.max,
			MaxElapsedTime:  otlpRetry.elapsed,
		}),
	}
	if len(config.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(config.Headers))
	}
	if config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return otlptracehttp.New(ctx, opts...)
}
