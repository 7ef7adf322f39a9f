package application

import (
	"github.com/felixgeelhaar/fsassist/domain/config"
	"github.com/felixgeelhaar/fsassist/infrastructure/model"
	"github.com/felixgeelhaar/fsassist/infrastructure/observability"
	"github.com/felixgeelhaar/fsassist/infrastructure/resilience"
)

// Option configures the assistant.
type Option func(*Config)

// WithProvider sets the model provider.
func WithProvider(p model.Provider) Option {
	return func(c *Config) {
		c.Provider = p
	}
}

// WithCatalog sets the capability catalog.
func WithCatalog(cat Catalog) Option {
	return func(c *Config) {
		c.Catalog = cat
	}
}

// WithSession uses a started backend session as the catalog and releases it
// on Shutdown.
func WithSession(s SessionCatalog) Option {
	return func(c *Config) {
		c.Catalog = s
		c.Session = s
	}
}

// WithExecutor sets the resilient executor.
func WithExecutor(e *resilience.Executor) Option {
	return func(c *Config) {
		c.Executor = e
	}
}

// WithSettings sets the loop settings. Zero fields keep their defaults.
func WithSettings(s config.AssistantSettings) Option {
	return func(c *Config) {
		if s.MaxSteps > 0 {
			c.Settings.MaxSteps = s.MaxSteps
		}
		if s.SystemPrompt != "" {
			c.Settings.SystemPrompt = s.SystemPrompt
		}
		if s.FallbackMessage != "" {
			c.Settings.FallbackMessage = s.FallbackMessage
		}
		if s.ToolConcurrency > 0 {
			c.Settings.ToolConcurrency = s.ToolConcurrency
		}
	}
}

// WithMaxSteps sets the maximum number of model round-trips per request.
func WithMaxSteps(n int) Option {
	return func(c *Config) {
		c.Settings.MaxSteps = n
	}
}

// WithToolConcurrency sets how many operations of one step run at once.
func WithToolConcurrency(n int) Option {
	return func(c *Config) {
		c.Settings.ToolConcurrency = n
	}
}

// WithModel sets the model name and sampling temperature.
func WithModel(name string, temperature float32) Option {
	return func(c *Config) {
		c.Model = name
		c.Temperature = temperature
	}
}

// WithObservability sets the tracing and metrics provider.
func WithObservability(p *observability.Provider) Option {
	return func(c *Config) {
		c.Observability = p
	}
}
