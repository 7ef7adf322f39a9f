package observability

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ServiceName != "fsassist" {
		t.Errorf("expected default service name, got: %s", cfg.ServiceName)
	}
	if cfg.Exporter != ExporterNone {
		t.Errorf("expected tracing disabled by default, got: %s", cfg.Exporter)
	}
	if cfg.MetricReader != nil {
		t.Error("expected metrics disabled by default")
	}
}

func TestConfigOptions(t *testing.T) {
	var buf bytes.Buffer
	reader := sdkmetric.NewManualReader()

	tests := []struct {
		name   string
		opts   []Option
		verify func(*testing.T, Config)
	}{
		{
			name: "WithServiceName",
			opts: []Option{WithServiceName("my-service")},
			verify: func(t *testing.T, cfg Config) {
				if cfg.ServiceName != "my-service" {
					t.Errorf("expected my-service, got: %s", cfg.ServiceName)
				}
			},
		},
		{
			name: "WithServiceVersion",
			opts: []Option{WithServiceVersion("1.2.3")},
			verify: func(t *testing.T, cfg Config) {
				if cfg.ServiceVersion != "1.2.3" {
					t.Errorf("expected 1.2.3, got: %s", cfg.ServiceVersion)
				}
			},
		},
		{
			name: "WithStdoutTracing",
			opts: []Option{WithStdoutTracing(&buf)},
			verify: func(t *testing.T, cfg Config) {
				if cfg.Exporter != ExporterStdout || cfg.Writer != &buf {
					t.Errorf("unexpected tracing config: %+v", cfg)
				}
			},
		},
		{
			name: "WithMetricReader",
			opts: []Option{WithMetricReader(reader)},
			verify: func(t *testing.T, cfg Config) {
				if cfg.MetricReader != reader {
					t.Error("expected reader to be set")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			for _, opt := range tt.opts {
				opt(&cfg)
			}
			tt.verify(t, cfg)
		})
	}
}

func TestNoopProvider(t *testing.T) {
	provider := NewNoopProvider()

	ctx, span := StartSpan(context.Background(), provider.Tracer(), SpanDispatch, "operation", "list_directory")
	if ctx == nil || span == nil {
		t.Fatal("expected span and context")
	}
	EndSpan(span, errors.New("boom"))

	provider.Instruments().RecordRequest(ctx, OutcomeAnswered)
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Errorf("unexpected shutdown error: %v", err)
	}
}

func TestProviderUnknownExporter(t *testing.T) {
	_, err := New(WithExporter("jaeger"))
	if !errors.Is(err, ErrUnknownExporter) {
		t.Errorf("expected ErrUnknownExporter, got: %v", err)
	}
}

func TestProviderWithStdoutTracing(t *testing.T) {
	var buf bytes.Buffer
	provider, err := New(
		WithServiceName("test-service"),
		WithStdoutTracing(&buf),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, span := StartSpan(context.Background(), provider.Tracer(), SpanHandle, "session.id", "abc")
	EndSpan(span, nil)

	if err := provider.Shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected shutdown error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{SpanHandle, "session.id", "test-service"} {
		if !strings.Contains(out, want) {
			t.Errorf("exported span missing %q:\n%s", want, out)
		}
	}
}

func TestInstruments(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider, err := New(WithMetricReader(reader))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer provider.Shutdown(context.Background())

	ctx := context.Background()
	in := provider.Instruments()
	in.RecordRequest(ctx, OutcomeAnswered)
	in.RecordRequest(ctx, OutcomeExhausted)
	in.RecordQuery(ctx, "scripted")
	in.RecordDispatch(ctx, "local", "list_directory", 20*time.Millisecond, false)
	in.RecordDispatch(ctx, "", "missing_tool", time.Millisecond, true)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	sums := map[string]int64{}
	var errorDispatches int64
	var histogramCount uint64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					sums[m.Name] += dp.Value
					if v, ok := dp.Attributes.Value(attribute.Key("status")); ok && v.AsString() == "error" {
						errorDispatches += dp.Value
					}
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					histogramCount += dp.Count
				}
			}
		}
	}

	want := map[string]int64{
		MetricRequests:     2,
		MetricModelQueries: 1,
		MetricDispatches:   2,
	}
	for name, n := range want {
		if sums[name] != n {
			t.Errorf("%s = %d, want %d", name, sums[name], n)
		}
	}
	if errorDispatches != 1 {
		t.Errorf("error dispatches = %d, want 1", errorDispatches)
	}
	if histogramCount != 2 {
		t.Errorf("dispatch duration count = %d, want 2", histogramCount)
	}
}

func TestProviderShutdownErrors(t *testing.T) {
	provider := &Provider{
		config: DefaultConfig(),
		shutdownFuncs: []func(context.Context) error{
			func(context.Context) error { return errors.New("error 1") },
			func(context.Context) error { return errors.New("error 2") },
		},
	}

	err := provider.Shutdown(context.Background())
	if err == nil || !strings.Contains(err.Error(), "error 1") || !strings.Contains(err.Error(), "error 2") {
		t.Errorf("expected joined shutdown errors, got: %v", err)
	}
}
