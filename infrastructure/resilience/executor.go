// Package resilience protects backend calls using fortify.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"

	"github.com/felixgeelhaar/fsassist/domain/capability"
)

// Call is one backend invocation.
type Call func(ctx context.Context) (any, error)

// reported carries a backend-reported failure past the breaker and retry
// layers. Those failures say the operation itself failed, not that the
// backend is unhealthy.
type reported struct {
	err error
}

// Executor wraps backend calls with a bulkhead, a timeout, one circuit
// breaker per backend, and retry for read-only operations.
type Executor struct {
	config   ExecutorConfig
	bulkhead bulkhead.Bulkhead[any]

	mu       sync.Mutex
	breakers map[string]circuitbreaker.CircuitBreaker[any]
}

// ExecutorConfig configures the resilient executor.
type ExecutorConfig struct {
	// MaxConcurrent limits concurrent backend calls.
	MaxConcurrent int

	// CircuitBreakerThreshold is the number of consecutive failures before
	// a backend's breaker opens.
	CircuitBreakerThreshold int

	// CircuitBreakerTimeout is how long the circuit stays open.
	CircuitBreakerTimeout time.Duration

	// RetryMaxAttempts is the total attempts for read-only calls.
	RetryMaxAttempts int

	// RetryInitialDelay is the initial delay between retries.
	RetryInitialDelay time.Duration

	// RetryBackoffMultiplier is the exponential backoff multiplier.
	RetryBackoffMultiplier float64

	// DefaultTimeout bounds one call.
	DefaultTimeout time.Duration
}

// DefaultExecutorConfig returns a configuration with sensible defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxConcurrent:           10,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   30 * time.Second,
		RetryMaxAttempts:        2,
		RetryInitialDelay:       100 * time.Millisecond,
		RetryBackoffMultiplier:  2.0,
		DefaultTimeout:          30 * time.Second,
	}
}

// NewExecutor creates a new resilient executor.
func NewExecutor(config ExecutorConfig) *Executor {
	defaults := DefaultExecutorConfig()
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = defaults.MaxConcurrent
	}
	if config.CircuitBreakerThreshold <= 0 {
		config.CircuitBreakerThreshold = defaults.CircuitBreakerThreshold
	}
	if config.RetryMaxAttempts <= 0 {
		config.RetryMaxAttempts = 1
	}
	if config.RetryBackoffMultiplier <= 0 {
		config.RetryBackoffMultiplier = defaults.RetryBackoffMultiplier
	}
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = defaults.DefaultTimeout
	}

	return &Executor{
		config: config,
		bulkhead: bulkhead.New[any](bulkhead.Config{
			MaxConcurrent: config.MaxConcurrent,
		}),
		breakers: make(map[string]circuitbreaker.CircuitBreaker[any]),
	}
}

// NewDefaultExecutor creates an executor with default configuration.
func NewDefaultExecutor() *Executor {
	return NewExecutor(DefaultExecutorConfig())
}

func (e *Executor) breaker(backend string) circuitbreaker.CircuitBreaker[any] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cb, ok := e.breakers[backend]; ok {
		return cb
	}
	threshold := uint32(e.config.CircuitBreakerThreshold) // #nosec G115 -- positive, checked in NewExecutor
	cb := circuitbreaker.New[any](circuitbreaker.Config{
		MaxRequests: 1,
		Interval:    e.config.CircuitBreakerTimeout,
		Timeout:     e.config.CircuitBreakerTimeout,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	})
	e.breakers[backend] = cb
	return cb
}

// Execute runs a call against the named backend.
// Composition order: Bulkhead, Timeout, Circuit Breaker, Retry (read-only).
// Errors wrapping capability.ErrBackendFault are returned unchanged and
// neither trip the breaker nor trigger a retry.
func (e *Executor) Execute(ctx context.Context, backend string, readOnly bool, call Call) (any, error) {
	attempt := func(ctx context.Context) (any, error) {
		v, err := call(ctx)
		if err != nil && errors.Is(err, capability.ErrBackendFault) {
			return reported{err: err}, nil
		}
		return v, err
	}

	cb := e.breaker(backend)
	result, err := e.bulkhead.Execute(ctx, func(ctx context.Context) (any, error) {
		ctx, cancel := context.WithTimeout(ctx, e.config.DefaultTimeout)
		defer cancel()

		return cb.Execute(ctx, func(ctx context.Context) (any, error) {
			if readOnly && e.config.RetryMaxAttempts > 1 {
				r := retry.New[any](retry.Config{
					MaxAttempts:   e.config.RetryMaxAttempts,
					InitialDelay:  e.config.RetryInitialDelay,
					BackoffPolicy: retry.BackoffExponential,
					Multiplier:    e.config.RetryBackoffMultiplier,
				})
				return r.Do(ctx, attempt)
			}
			return attempt(ctx)
		})
	})
	if err != nil {
		return nil, err
	}

	if r, ok := result.(reported); ok {
		return nil, r.err
	}
	return result, nil
}

// MaxConcurrent reports how many calls may run at once.
func (e *Executor) MaxConcurrent() int {
	return e.config.MaxConcurrent
}

// CircuitBreakerState returns the state of a backend's circuit breaker.
func (e *Executor) CircuitBreakerState(backend string) circuitbreaker.State {
	return e.breaker(backend).State()
}
