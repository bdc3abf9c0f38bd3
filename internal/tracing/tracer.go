// Package tracing configures OpenTelemetry for batch runs. Spans cover a
// whole batch with one child span per channel, which makes slow processing
// functions visible without attaching a debugger to the host.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config configures the tracing subsystem.
type Config struct {
	// Enabled controls whether tracing is active.
	// When false, a no-op tracer is returned.
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the export backend.
	// Options: "none", "file", "stdout", "otlp"
	Exporter string `mapstructure:"exporter"`

	// FilePath is the output file for the "file" exporter.
	FilePath string `mapstructure:"file_path"`

	// OTLPEndpoint is the OTLP collector endpoint for the "otlp" exporter.
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// SampleRate controls the fraction of traces to sample.
	// 1.0 = all traces, 0.1 = 10% of traces.
	SampleRate float64 `mapstructure:"sample_rate"`

	// ServiceName identifies this service in traces.
	ServiceName string `mapstructure:"service_name"`
}

// DefaultConfig returns sensible defaults for development.
func DefaultConfig() Config {
	return Config{
		Enabled:      false,
		Exporter:     "file",
		FilePath:     "",
		OTLPEndpoint: "localhost:4317",
		SampleRate:   1.0,
		ServiceName:  "spmbatch",
	}
}

// Provider manages the OpenTelemetry tracer provider.
type Provider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	enabled  bool
}

// NewProvider creates and configures the trace provider. If tracing is
// disabled in the config, a no-op provider with zero overhead is returned.
func NewProvider(cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		noopProvider := noop.NewTracerProvider()
		return &Provider{
			provider: nil,
			tracer:   noopProvider.Tracer("noop"),
			enabled:  false,
		}, nil
	}

	var exporter sdktrace.SpanExporter
	var err error

	switch cfg.Exporter {
	case "file":
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("file_path required for file exporter")
		}
		exporter, err = NewFileExporter(cfg.FilePath)
		if err != nil {
			return nil, fmt.Errorf("create file exporter: %w", err)
		}
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
	case "otlp":
		endpoint := cfg.OTLPEndpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		exporter, err = otlptracegrpc.New(
			context.Background(),
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("create otlp exporter: %w", err)
		}
	case "none", "":
		// No exporter, but tracing enabled for internal correlation
		exporter = nil
	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", cfg.Exporter)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "spmbatch"
	}

	// resource.NewSchemaless avoids schema version conflicts with
	// resource.Default().
	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
	)

	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 1.0
	}
	sampler := sdktrace.ParentBased(
		sdktrace.TraceIDRatioBased(sampleRate),
	)

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	}
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	provider := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)

	return &Provider{
		provider: provider,
		tracer:   provider.Tracer(serviceName),
		enabled:  true,
	}, nil
}

// Tracer returns the configured tracer for creating spans. Safe to use even
// when tracing is disabled (no-op tracer in that case).
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Enabled returns whether tracing is enabled.
func (p *Provider) Enabled() bool {
	return p.enabled
}

// Shutdown flushes pending spans and shuts down the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.provider != nil {
		return p.provider.Shutdown(ctx)
	}
	return nil
}
