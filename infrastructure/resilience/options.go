package resilience

import (
	"time"

	"github.com/felixgeelhaar/fsassist/domain/config"
)

// Option configures the executor.
type Option func(*ExecutorConfig)

// WithMaxConcurrent sets the maximum concurrent executions.
func WithMaxConcurrent(n int) Option {
	return func(c *ExecutorConfig) {
		c.MaxConcurrent = n
	}
}

// WithMinConcurrent raises the concurrency limit to at least n, so a caller
// dispatching n calls at once never hits the bulkhead.
func WithMinConcurrent(n int) Option {
	return func(c *ExecutorConfig) {
		if n > c.MaxConcurrent {
			c.MaxConcurrent = n
		}
	}
}

// WithCircuitBreakerThreshold sets the failure threshold for circuit breakers.
func WithCircuitBreakerThreshold(n int) Option {
	return func(c *ExecutorConfig) {
		c.CircuitBreakerThreshold = n
	}
}

// WithCircuitBreakerTimeout sets the circuit breaker open duration.
func WithCircuitBreakerTimeout(d time.Duration) Option {
	return func(c *ExecutorConfig) {
		c.CircuitBreakerTimeout = d
	}
}

// WithRetryAttempts sets the total attempts for read-only calls.
func WithRetryAttempts(n int) Option {
	return func(c *ExecutorConfig) {
		c.RetryMaxAttempts = n
	}
}

// WithRetryDelay sets the initial retry delay.
func WithRetryDelay(d time.Duration) Option {
	return func(c *ExecutorConfig) {
		c.RetryInitialDelay = d
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *ExecutorConfig) {
		c.DefaultTimeout = d
	}
}

// FromConfig maps the resilience section of the configuration.
func FromConfig(rc config.ResilienceConfig) Option {
	return func(c *ExecutorConfig) {
		if rc.CallTimeout > 0 {
			c.DefaultTimeout = rc.CallTimeout.Duration()
		}
		if rc.BreakerThreshold > 0 {
			c.CircuitBreakerThreshold = rc.BreakerThreshold
		}
		if rc.BreakerTimeout > 0 {
			c.CircuitBreakerTimeout = rc.BreakerTimeout.Duration()
		}
		if rc.RetryAttempts > 0 {
			c.RetryMaxAttempts = rc.RetryAttempts
		}
	}
}

// NewExecutorWithOptions creates an executor with the given options.
func NewExecutorWithOptions(opts ...Option) *Executor {
	config := DefaultExecutorConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return NewExecutor(config)
}
