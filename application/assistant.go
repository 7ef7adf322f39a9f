// Package application provides the assistant: the tool-calling loop and the
// dispatcher that routes operation requests to storage backends.
package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/felixgeelhaar/statekit"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/fsassist/domain/capability"
	"github.com/felixgeelhaar/fsassist/domain/config"
	"github.com/felixgeelhaar/fsassist/domain/conversation"
	"github.com/felixgeelhaar/fsassist/infrastructure/logging"
	"github.com/felixgeelhaar/fsassist/infrastructure/model"
	"github.com/felixgeelhaar/fsassist/infrastructure/observability"
	"github.com/felixgeelhaar/fsassist/infrastructure/resilience"
	"github.com/felixgeelhaar/fsassist/infrastructure/statemachine"
)

// Errors returned by the assistant.
var (
	// ErrShutdown indicates the assistant was shut down.
	ErrShutdown = errors.New("assistant is shut down")

	// ErrNoProvider indicates no model provider was configured.
	ErrNoProvider = errors.New("model provider is required")

	// ErrNoCatalog indicates no capability catalog was configured.
	ErrNoCatalog = errors.New("capability catalog is required")

	// ErrConcurrencyLimit indicates the executor admits fewer concurrent
	// calls than the assistant dispatches.
	ErrConcurrencyLimit = errors.New("executor concurrency below tool concurrency")
)

// SessionCatalog is a catalog that owns backend connections.
type SessionCatalog interface {
	Catalog
	Close() error
}

// Config contains configuration for the assistant.
type Config struct {
	Provider      model.Provider
	Catalog       Catalog
	Session       SessionCatalog
	Executor      *resilience.Executor
	Settings      config.AssistantSettings
	Model         string
	Temperature   float32
	Observability *observability.Provider
}

// Assistant answers prompts by alternating model queries with operation
// dispatch until the model produces a final answer or the step ceiling is
// reached. Handle calls are serialized.
type Assistant struct {
	id          string
	provider    model.Provider
	catalog     Catalog
	session     SessionCatalog
	dispatcher  *Dispatcher
	machine     *statekit.MachineConfig[*statemachine.Context]
	settings    config.AssistantSettings
	model       string
	temperature float32
	obs         *observability.Provider
	tracer      trace.Tracer

	mu      sync.Mutex
	history *conversation.History

	closed       atomic.Bool
	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates an assistant.
func New(opts ...Option) (*Assistant, error) {
	cfg := Config{
		Settings: config.AssistantSettings{
			MaxSteps:        config.DefaultMaxSteps,
			SystemPrompt:    config.DefaultSystemPrompt,
			FallbackMessage: config.DefaultFallbackMessage,
			ToolConcurrency: 1,
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.Provider == nil {
		return nil, ErrNoProvider
	}
	if cfg.Catalog == nil {
		return nil, ErrNoCatalog
	}
	if cfg.Settings.MaxSteps < 1 {
		return nil, fmt.Errorf("max steps must be positive, got %d", cfg.Settings.MaxSteps)
	}
	if cfg.Settings.ToolConcurrency < 1 {
		cfg.Settings.ToolConcurrency = 1
	}
	if cfg.Executor == nil {
		cfg.Executor = resilience.NewExecutorWithOptions(
			resilience.WithMinConcurrent(cfg.Settings.ToolConcurrency),
		)
	}
	if limit := cfg.Executor.MaxConcurrent(); limit < cfg.Settings.ToolConcurrency {
		return nil, fmt.Errorf("%w: tool concurrency %d, executor allows %d",
			ErrConcurrencyLimit, cfg.Settings.ToolConcurrency, limit)
	}
	if cfg.Observability == nil {
		cfg.Observability = observability.NewNoopProvider()
	}

	machine, err := statemachine.NewLoopMachine()
	if err != nil {
		return nil, fmt.Errorf("build loop machine: %w", err)
	}

	return &Assistant{
		id:          uuid.NewString(),
		provider:    cfg.Provider,
		catalog:     cfg.Catalog,
		session:     cfg.Session,
		dispatcher:  NewDispatcher(cfg.Catalog, cfg.Executor, cfg.Observability),
		machine:     machine,
		settings:    cfg.Settings,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		obs:         cfg.Observability,
		tracer:      cfg.Observability.Tracer(),
		history:     conversation.NewHistory(cfg.Settings.SystemPrompt),
	}, nil
}

// SessionID identifies this assistant's conversation in logs and traces.
func (a *Assistant) SessionID() string {
	return a.id
}

// Tools returns the operations currently offered to the model.
func (a *Assistant) Tools() []capability.Descriptor {
	return a.catalog.Catalog()
}

// History returns a copy of the conversation so far.
func (a *Assistant) History() []conversation.Turn {
	return a.history.Snapshot()
}

// Handle answers one prompt. Model failures are returned; backend failures
// are reported to the model as tool results and never end the request.
func (a *Assistant) Handle(ctx context.Context, prompt string) (answer string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed.Load() {
		return "", ErrShutdown
	}

	start := time.Now()
	ctx, span := observability.StartSpan(ctx, a.tracer, observability.SpanHandle,
		"session.id", a.id,
		"model.provider", a.provider.Name(),
	)
	defer func() { observability.EndSpan(span, err) }()

	interp := statemachine.NewInterpreter(a.machine, statemachine.NewContext(a.settings.MaxSteps))
	interp.Start()
	defer interp.Stop()

	if err := a.history.Append(conversation.UserTurn(prompt)); err != nil {
		interp.Fail()
		a.obs.Instruments().RecordRequest(ctx, observability.OutcomeFailed)
		return "", fmt.Errorf("append prompt: %w", err)
	}

	logging.Info().
		Add(logging.SessionID(a.id)).
		Add(logging.Count("prompt_chars", len(prompt))).
		Msg("handling prompt")

	for interp.Query() {
		step := interp.Context().Step

		resp, err := a.query(ctx)
		if err != nil {
			interp.Fail()
			a.obs.Instruments().RecordRequest(ctx, observability.OutcomeFailed)
			logging.Error().
				Add(logging.SessionID(a.id)).
				Add(logging.Step(step)).
				Add(logging.ErrorField(err)).
				Msg("model query failed")
			return "", fmt.Errorf("query model: %w", err)
		}

		requests := toRequests(resp.Message.ToolCalls)
		if err := a.history.Append(conversation.AssistantTurn(resp.Message.Content, requests)); err != nil {
			interp.Fail()
			a.obs.Instruments().RecordRequest(ctx, observability.OutcomeFailed)
			return "", fmt.Errorf("append model turn: %w", err)
		}

		if len(requests) > 0 {
			interp.Dispatch(len(requests))
			logging.Debug().
				Add(logging.SessionID(a.id)).
				Add(logging.Step(step)).
				Add(logging.Requests(len(requests))).
				Msg("dispatching operations")
			if err := a.dispatchAll(ctx, requests); err != nil {
				interp.Fail()
				a.obs.Instruments().RecordRequest(ctx, observability.OutcomeFailed)
				return "", err
			}
			continue
		}

		if strings.TrimSpace(resp.Message.Content) != "" {
			interp.Answer()
			a.obs.Instruments().RecordRequest(ctx, observability.OutcomeAnswered)
			logging.Info().
				Add(logging.SessionID(a.id)).
				Add(logging.Step(step)).
				Add(logging.State(string(interp.State()))).
				Add(logging.Duration(time.Since(start))).
				Msg("prompt answered")
			return resp.Message.Content, nil
		}

		interp.Empty()
		logging.Warn().
			Add(logging.SessionID(a.id)).
			Add(logging.Step(step)).
			Msg("empty model response")
	}

	interp.Exhaust()
	a.obs.Instruments().RecordRequest(ctx, observability.OutcomeExhausted)
	logging.Warn().
		Add(logging.SessionID(a.id)).
		Add(logging.Step(interp.Context().Step)).
		Add(logging.State(string(interp.State()))).
		Add(logging.Duration(time.Since(start))).
		Msg("step ceiling reached")
	return a.settings.FallbackMessage, nil
}

func (a *Assistant) query(ctx context.Context) (model.CompletionResponse, error) {
	ctx, span := observability.StartSpan(ctx, a.tracer, observability.SpanQuery,
		"model.provider", a.provider.Name(),
	)
	a.obs.Instruments().RecordQuery(ctx, a.provider.Name())

	resp, err := a.provider.Complete(ctx, model.CompletionRequest{
		Model:       a.model,
		Messages:    toMessages(a.history.Snapshot()),
		Temperature: a.temperature,
		Tools:       toTools(a.catalog.Catalog()),
	})
	observability.EndSpan(span, err)
	return resp, err
}

// dispatchAll runs the requests of one step, at most ToolConcurrency at a
// time, and appends their results in request order.
func (a *Assistant) dispatchAll(ctx context.Context, requests []conversation.OperationRequest) error {
	results := make([]string, len(requests))

	var g errgroup.Group
	g.SetLimit(a.settings.ToolConcurrency)
	for i, req := range requests {
		g.Go(func() error {
			results[i] = encodeResult(a.dispatcher.Execute(ctx, req))
			return nil
		})
	}
	_ = g.Wait()

	for i, req := range requests {
		if err := a.history.Append(conversation.ToolTurn(req, results[i])); err != nil {
			return fmt.Errorf("append result for %s: %w", req.Name, err)
		}
	}
	return nil
}

// Shutdown releases the backend session. It does not wait for an in-flight
// Handle; calls racing with teardown fail as tool results.
func (a *Assistant) Shutdown(ctx context.Context) error {
	a.shutdownOnce.Do(func() {
		a.closed.Store(true)

		var errs []error
		if a.session != nil {
			if err := a.session.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close session: %w", err))
			}
		}
		if err := a.obs.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown telemetry: %w", err))
		}
		a.shutdownErr = errors.Join(errs...)

		logging.Info().
			Add(logging.SessionID(a.id)).
			Add(logging.ErrorField(a.shutdownErr)).
			Msg("assistant shut down")
	})
	return a.shutdownErr
}

func toRequests(calls []model.ToolCall) []conversation.OperationRequest {
	if len(calls) == 0 {
		return nil
	}
	out := make([]conversation.OperationRequest, 0, len(calls))
	for _, tc := range calls {
		id := tc.ID
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		out = append(out, conversation.ParseRequest(id, tc.Name, tc.Arguments))
	}
	return out
}

func toMessages(turns []conversation.Turn) []model.Message {
	msgs := make([]model.Message, 0, len(turns))
	for _, t := range turns {
		msg := model.Message{Role: string(t.Role), Content: t.Content}
		switch t.Role {
		case conversation.RoleAssistant:
			for _, req := range t.Requests {
				msg.ToolCalls = append(msg.ToolCalls, model.ToolCall{
					ID:        req.ID,
					Name:      req.Name,
					Arguments: rawArguments(req),
				})
			}
		case conversation.RoleTool:
			msg.ToolCallID = t.RequestID
			msg.Name = t.Name
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

func rawArguments(req conversation.OperationRequest) string {
	if req.RawArguments != "" {
		return req.RawArguments
	}
	data, err := json.Marshal(req.Arguments)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func toTools(descs []capability.Descriptor) []model.Tool {
	tools := make([]model.Tool, 0, len(descs))
	for _, d := range descs {
		tools = append(tools, model.Tool{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		})
	}
	return tools
}

func encodeResult(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		data, _ = json.Marshal(ErrorPayload("tool execution error: encode result: %v", err))
	}
	return string(data)
}
