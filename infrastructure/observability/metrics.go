package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names.
const (
	MetricRequests         = "fsassist.requests"
	MetricModelQueries     = "fsassist.model.queries"
	MetricDispatches       = "fsassist.dispatches"
	MetricDispatchDuration = "fsassist.dispatch.duration"
)

// Request outcomes.
const (
	OutcomeAnswered  = "answered"
	OutcomeExhausted = "exhausted"
	OutcomeFailed    = "failed"
)

// Instruments are the counters and histograms the assistant records.
type Instruments struct {
	requests         metric.Int64Counter
	queries          metric.Int64Counter
	dispatches       metric.Int64Counter
	dispatchDuration metric.Float64Histogram
}

// NewInstruments creates the instruments on meter.
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	requests, err := meter.Int64Counter(MetricRequests,
		metric.WithDescription("Prompts handled, by outcome"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricRequests, err)
	}
	queries, err := meter.Int64Counter(MetricModelQueries,
		metric.WithDescription("Model round-trips"),
		metric.WithUnit("{query}"))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricModelQueries, err)
	}
	dispatches, err := meter.Int64Counter(MetricDispatches,
		metric.WithDescription("Operation requests dispatched, by backend and status"),
		metric.WithUnit("{dispatch}"))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricDispatches, err)
	}
	duration, err := meter.Float64Histogram(MetricDispatchDuration,
		metric.WithDescription("Operation dispatch latency"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricDispatchDuration, err)
	}

	return &Instruments{
		requests:         requests,
		queries:          queries,
		dispatches:       dispatches,
		dispatchDuration: duration,
	}, nil
}

// RecordRequest counts a finished prompt.
func (i *Instruments) RecordRequest(ctx context.Context, outcome string) {
	i.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordQuery counts a model round-trip.
func (i *Instruments) RecordQuery(ctx context.Context, provider string) {
	i.queries.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider)))
}

// RecordDispatch counts one dispatched operation and its latency. An empty
// backend means the operation had no owner.
func (i *Instruments) RecordDispatch(ctx context.Context, backend, operation string, d time.Duration, failed bool) {
	status := "ok"
	if failed {
		status = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("operation", operation),
		attribute.String("status", status),
	)
	i.dispatches.Add(ctx, 1, attrs)
	i.dispatchDuration.Record(ctx, d.Seconds(), attrs)
}
