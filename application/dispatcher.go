package application

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/fsassist/domain/capability"
	"github.com/felixgeelhaar/fsassist/domain/conversation"
	"github.com/felixgeelhaar/fsassist/infrastructure/logging"
	"github.com/felixgeelhaar/fsassist/infrastructure/observability"
	"github.com/felixgeelhaar/fsassist/infrastructure/resilience"
)

// Catalog is the view of the capability registry the application needs.
// Both *registry.Registry and *session.Session satisfy it.
type Catalog interface {
	Catalog() []capability.Descriptor
	Describe(name string) (capability.Descriptor, bool)
	OwnerOf(name string) (capability.Backend, bool)
}

// Dispatcher executes operation requests against their owning backends.
// Execute always returns a JSON-serializable value; failures become
// {"error": ...} payloads.
type Dispatcher struct {
	catalog     Catalog
	executor    *resilience.Executor
	tracer      trace.Tracer
	instruments *observability.Instruments
}

// NewDispatcher creates a dispatcher. A nil executor uses the default
// resilience settings and a nil provider disables telemetry.
func NewDispatcher(catalog Catalog, executor *resilience.Executor, obs *observability.Provider) *Dispatcher {
	if executor == nil {
		executor = resilience.NewDefaultExecutor()
	}
	if obs == nil {
		obs = observability.NewNoopProvider()
	}
	return &Dispatcher{
		catalog:     catalog,
		executor:    executor,
		tracer:      obs.Tracer(),
		instruments: obs.Instruments(),
	}
}

// ErrorPayload builds the error result returned to the model.
func ErrorPayload(format string, args ...any) map[string]any {
	return map[string]any{"error": fmt.Sprintf(format, args...)}
}

// NotFoundPayload is the result for an operation no backend owns.
func NotFoundPayload(name string) map[string]any {
	return ErrorPayload("tool '%s' not found", name)
}

// Execute runs one operation request.
func (d *Dispatcher) Execute(ctx context.Context, req conversation.OperationRequest) any {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, d.tracer, observability.SpanDispatch,
		"operation", req.Name,
		"request.id", req.ID,
	)

	var (
		tag string
		err error
	)
	defer func() {
		d.instruments.RecordDispatch(ctx, tag, req.Name, time.Since(start), err != nil)
		observability.EndSpan(span, err)
	}()

	if req.ParseError != nil {
		err = req.ParseError
		logging.Warn().
			Add(logging.ToolName(req.Name)).
			Add(logging.ErrorField(err)).
			Msg("invalid operation arguments")
		return ErrorPayload("invalid arguments: %v", err)
	}

	owner, ok := d.catalog.OwnerOf(req.Name)
	if !ok {
		err = fmt.Errorf("%w: %s", capability.ErrOperationNotFound, req.Name)
		logging.Warn().
			Add(logging.ToolName(req.Name)).
			Msg("operation not found")
		return NotFoundPayload(req.Name)
	}
	tag = owner.Tag()
	desc, _ := d.catalog.Describe(req.Name)
	props := desc.Properties()
	args := NormalizeArguments(req.Arguments, func(name string) bool {
		_, ok := props[name]
		return ok
	})

	out, err := d.executor.Execute(ctx, tag, desc.ReadOnly, func(ctx context.Context) (v any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return owner.Call(ctx, req.Name, args)
	})
	if err != nil {
		logging.Warn().
			Add(logging.Backend(tag)).
			Add(logging.ToolName(req.Name)).
			Add(logging.Duration(time.Since(start))).
			Add(logging.Str("breaker", d.executor.CircuitBreakerState(tag).String())).
			Add(logging.ErrorField(err)).
			Msg("operation failed")
		return ErrorPayload("tool execution error: %v", err)
	}

	logging.Debug().
		Add(logging.Backend(tag)).
		Add(logging.ToolName(req.Name)).
		Add(logging.Duration(time.Since(start))).
		Msg("operation completed")
	return NormalizeResult(out)
}
