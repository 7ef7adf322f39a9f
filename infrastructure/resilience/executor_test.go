package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/felixgeelhaar/fsassist/domain/capability"
	"github.com/felixgeelhaar/fsassist/domain/config"
)

func TestDefaultExecutorConfig(t *testing.T) {
	config := DefaultExecutorConfig()

	if config.MaxConcurrent != 10 {
		t.Errorf("MaxConcurrent = %d, want 10", config.MaxConcurrent)
	}
	if config.CircuitBreakerThreshold != 5 {
		t.Errorf("CircuitBreakerThreshold = %d, want 5", config.CircuitBreakerThreshold)
	}
	if config.RetryMaxAttempts != 2 {
		t.Errorf("RetryMaxAttempts = %d, want 2", config.RetryMaxAttempts)
	}
	if config.DefaultTimeout != 30*time.Second {
		t.Errorf("DefaultTimeout = %v, want 30s", config.DefaultTimeout)
	}
}

func TestExecutor_Execute_Success(t *testing.T) {
	executor := NewDefaultExecutor()

	result, err := executor.Execute(context.Background(), "local", true, func(ctx context.Context) (any, error) {
		return map[string]any{"files": []any{"a.txt"}}, nil
	})
	if err != nil {
		t.Fatalf("Execute() error = %v, want nil", err)
	}
	m, ok := result.(map[string]any)
	if !ok || len(m["files"].([]any)) != 1 {
		t.Errorf("Execute() result = %v", result)
	}
}

func TestExecutor_RetriesReadOnlyTransportFailures(t *testing.T) {
	executor := NewExecutorWithOptions(WithRetryAttempts(3), WithRetryDelay(time.Millisecond))

	var calls atomic.Int32
	_, err := executor.Execute(context.Background(), "gdrive", true, func(ctx context.Context) (any, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("connection reset")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Execute() error = %v, want success after retries", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestExecutor_DoesNotRetryMutations(t *testing.T) {
	executor := NewExecutorWithOptions(WithRetryAttempts(3), WithRetryDelay(time.Millisecond))

	var calls atomic.Int32
	_, err := executor.Execute(context.Background(), "local", false, func(ctx context.Context) (any, error) {
		calls.Add(1)
		return nil, errors.New("connection reset")
	})
	if err == nil {
		t.Fatal("Execute() should fail")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestExecutor_BackendFaultPassesThrough(t *testing.T) {
	executor := NewExecutorWithOptions(
		WithRetryAttempts(3),
		WithRetryDelay(time.Millisecond),
		WithCircuitBreakerThreshold(1),
	)

	fault := fmt.Errorf("%w: no such file", capability.ErrBackendFault)
	var calls atomic.Int32
	for i := 0; i < 3; i++ {
		_, err := executor.Execute(context.Background(), "local", true, func(ctx context.Context) (any, error) {
			calls.Add(1)
			return nil, fault
		})
		if !errors.Is(err, capability.ErrBackendFault) {
			t.Fatalf("Execute() error = %v, want backend fault", err)
		}
	}

	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3 (no retries)", calls.Load())
	}
	if state := executor.CircuitBreakerState("local"); state.String() != "closed" {
		t.Errorf("breaker = %v, reported faults must not open it", state)
	}
}

func TestExecutor_BreakerIsPerBackend(t *testing.T) {
	executor := NewExecutorWithOptions(
		WithRetryAttempts(1),
		WithCircuitBreakerThreshold(2),
		WithCircuitBreakerTimeout(time.Minute),
	)

	failing := func(ctx context.Context) (any, error) { return nil, errors.New("broken pipe") }
	for i := 0; i < 3; i++ {
		_, _ = executor.Execute(context.Background(), "syno", false, failing)
	}

	if state := executor.CircuitBreakerState("syno"); state.String() != "open" {
		t.Errorf("syno breaker = %v, want open", state)
	}
	if state := executor.CircuitBreakerState("local"); state.String() != "closed" {
		t.Errorf("local breaker = %v, want closed", state)
	}

	if _, err := executor.Execute(context.Background(), "local", false, func(ctx context.Context) (any, error) {
		return "fine", nil
	}); err != nil {
		t.Errorf("local call error = %v", err)
	}
}

func TestExecutor_Timeout(t *testing.T) {
	executor := NewExecutorWithOptions(WithTimeout(50*time.Millisecond), WithRetryAttempts(1))

	_, err := executor.Execute(context.Background(), "slow", false, func(ctx context.Context) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return "late", nil
		}
	})
	if err == nil {
		t.Error("Execute() should time out")
	}
}

func TestFromConfig(t *testing.T) {
	var c ExecutorConfig
	FromConfig(config.ResilienceConfig{
		CallTimeout:      config.Duration(5 * time.Second),
		BreakerThreshold: 3,
		BreakerTimeout:   config.Duration(time.Minute),
		RetryAttempts:    4,
	})(&c)

	if c.DefaultTimeout != 5*time.Second || c.CircuitBreakerThreshold != 3 ||
		c.CircuitBreakerTimeout != time.Minute || c.RetryMaxAttempts != 4 {
		t.Errorf("FromConfig() = %+v", c)
	}
}

func TestNewExecutor_NormalizesInvalidValues(t *testing.T) {
	executor := NewExecutor(ExecutorConfig{MaxConcurrent: -1, CircuitBreakerThreshold: -1})
	if executor.config.MaxConcurrent != 10 || executor.config.CircuitBreakerThreshold != 5 {
		t.Errorf("config = %+v", executor.config)
	}
	if executor.config.RetryMaxAttempts != 1 {
		t.Errorf("RetryMaxAttempts = %d, want 1", executor.config.RetryMaxAttempts)
	}
}

func TestWithMinConcurrent(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		want int
	}{
		{"raises default", []Option{WithMinConcurrent(16)}, 16},
		{"keeps larger default", []Option{WithMinConcurrent(4)}, 10},
		{"raises explicit limit", []Option{WithMaxConcurrent(2), WithMinConcurrent(3)}, 3},
		{"zero is ignored", []Option{WithMinConcurrent(0)}, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewExecutorWithOptions(tt.opts...).MaxConcurrent(); got != tt.want {
				t.Errorf("MaxConcurrent() = %d, want %d", got, tt.want)
			}
		})
	}
}
