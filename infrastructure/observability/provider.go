package observability

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// ErrUnknownExporter indicates an unsupported trace exporter.
var ErrUnknownExporter = errors.New("unknown trace exporter type")

// Provider manages the observability infrastructure. Providers are not
// installed globally; the assistant receives one explicitly.
type Provider struct {
	config        Config
	tracer        trace.Tracer
	meter         metric.Meter
	instruments   *Instruments
	shutdownFuncs []func(context.Context) error
}

// New creates a new observability provider.
func New(opts ...Option) (*Provider, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	p := &Provider{config: cfg}
	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	switch cfg.Exporter {
	case ExporterNone, "":
		p.tracer = tracenoop.NewTracerProvider().Tracer(cfg.ServiceName)
	case ExporterStdout:
		exp, err := stdouttrace.New(stdouttrace.WithWriter(cfg.Writer))
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithSyncer(exp),
			sdktrace.WithResource(res),
		)
		p.tracer = tp.Tracer(cfg.ServiceName)
		p.shutdownFuncs = append(p.shutdownFuncs, tp.Shutdown)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.Exporter)
	}

	if cfg.MetricReader != nil {
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(cfg.MetricReader),
			sdkmetric.WithResource(res),
		)
		p.meter = mp.Meter(cfg.ServiceName)
		p.shutdownFuncs = append(p.shutdownFuncs, mp.Shutdown)
	} else {
		p.meter = metricnoop.NewMeterProvider().Meter(cfg.ServiceName)
	}

	instruments, err := NewInstruments(p.meter)
	if err != nil {
		return nil, err
	}
	p.instruments = instruments
	return p, nil
}

// NewNoopProvider creates a provider with no-op tracer and meter.
func NewNoopProvider() *Provider {
	p, _ := New()
	return p
}

// Tracer returns the tracer.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Meter returns the meter.
func (p *Provider) Meter() metric.Meter {
	return p.meter
}

// Instruments returns the assistant's metric instruments.
func (p *Provider) Instruments() *Instruments {
	return p.instruments
}

// Shutdown flushes and stops exporters.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range p.shutdownFuncs {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
