// Package observability provides OpenTelemetry integration for tracing and metrics.
package observability

import (
	"io"
	"os"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// ExporterType specifies the trace exporter.
type ExporterType string

const (
	// ExporterStdout writes spans as JSON to a writer (stderr by default).
	ExporterStdout ExporterType = "stdout"

	// ExporterNone disables tracing.
	ExporterNone ExporterType = "none"
)

// Config configures the observability infrastructure.
type Config struct {
	// ServiceName is the name of the service for telemetry.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// Exporter selects the trace exporter.
	Exporter ExporterType

	// Writer receives stdout-exported spans.
	Writer io.Writer

	// MetricReader collects metrics. Metrics are disabled when nil.
	MetricReader sdkmetric.Reader
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "fsassist",
		ServiceVersion: "dev",
		Exporter:       ExporterNone,
		Writer:         os.Stderr,
	}
}

// Option configures the observability infrastructure.
type Option func(*Config)

// WithServiceName sets the service name.
func WithServiceName(name string) Option {
	return func(c *Config) {
		c.ServiceName = name
	}
}

// WithServiceVersion sets the service version.
func WithServiceVersion(version string) Option {
	return func(c *Config) {
		c.ServiceVersion = version
	}
}

// WithExporter selects the trace exporter by name.
func WithExporter(exporter ExporterType) Option {
	return func(c *Config) {
		c.Exporter = exporter
	}
}

// WithWriter sets where stdout-exported spans are written.
func WithWriter(w io.Writer) Option {
	return func(c *Config) {
		c.Writer = w
	}
}

// WithStdoutTracing enables tracing to w.
func WithStdoutTracing(w io.Writer) Option {
	return func(c *Config) {
		c.Exporter = ExporterStdout
		c.Writer = w
	}
}

// WithMetricReader enables metrics collected by r.
func WithMetricReader(r sdkmetric.Reader) Option {
	return func(c *Config) {
		c.MetricReader = r
	}
}
