package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	// Path is the path to the invalid field.
	Path string
	// Message describes the validation error.
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%d validation errors:\n  - %s", len(e), strings.Join(msgs, "\n  - "))
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates assistant configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates the configuration and returns any errors.
func (v *Validator) Validate(config *Config) ValidationErrors {
	v.errors = nil

	v.validateAssistant(config)
	v.validateModel(config)
	v.validateBackends(config)
	v.validateResilience(config)
	v.validateLogging(config)

	return v.errors
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}

func (v *Validator) validateAssistant(config *Config) {
	a := config.Assistant
	if a.MaxSteps < 1 || a.MaxSteps > 50 {
		v.addError("assistant.max_steps", "max_steps must be between 1 and 50")
	}
	if a.ToolConcurrency < 1 {
		v.addError("assistant.tool_concurrency", "tool_concurrency must be positive")
	}
}

func (v *Validator) validateModel(config *Config) {
	switch config.Model.Provider {
	case "openai":
	case "scripted":
		if config.Model.Script == "" {
			v.addError("model.script", "script is required for the scripted provider")
		}
	default:
		v.addError("model.provider", fmt.Sprintf("unknown provider: %s", config.Model.Provider))
	}
}

func (v *Validator) validateBackends(config *Config) {
	seen := make(map[string]bool)
	for i, b := range config.Backends {
		path := fmt.Sprintf("backends[%d]", i)
		if b.Tag == "" {
			v.addError(path+".tag", "tag is required")
		} else if seen[b.Tag] {
			v.addError(path+".tag", fmt.Sprintf("duplicate tag: %s", b.Tag))
		}
		seen[b.Tag] = true

		switch b.Kind {
		case KindLocalFS, KindSyncFolder:
			if b.Root == "" {
				v.addError(path+".root", "root is required")
			}
		case KindGDrive:
		case KindSynology:
			if b.Host == "" {
				v.addError(path+".host", "host is required")
			}
		case KindObjectStore:
			switch b.Provider {
			case "memory":
			case "s3", "gcs":
				if b.Bucket == "" {
					v.addError(path+".bucket", "bucket is required")
				}
			case "azure":
				if b.Bucket == "" || b.AccountURL == "" {
					v.addError(path+".account_url", "account_url and bucket are required")
				}
			default:
				v.addError(path+".provider", fmt.Sprintf("unknown object store: %s", b.Provider))
			}
		case KindCommand:
			if len(b.Command) == 0 {
				v.addError(path+".command", "command is required")
			}
		default:
			v.addError(path+".kind", fmt.Sprintf("unknown kind: %s", b.Kind))
		}
	}
}

func (v *Validator) validateResilience(config *Config) {
	r := config.Resilience
	if r.CallTimeout < 0 {
		v.addError("resilience.call_timeout", "call_timeout must be non-negative")
	}
	if r.RetryAttempts < 0 {
		v.addError("resilience.retry_attempts", "retry_attempts must be non-negative")
	}
	if r.BreakerThreshold < 0 {
		v.addError("resilience.breaker_threshold", "breaker_threshold must be non-negative")
	}
}

func (v *Validator) validateLogging(config *Config) {
	switch config.Logging.Level {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		v.addError("logging.level", fmt.Sprintf("invalid level: %s", config.Logging.Level))
	}
	switch config.Logging.Format {
	case "", "json", "console":
	default:
		v.addError("logging.format", fmt.Sprintf("invalid format: %s", config.Logging.Format))
	}
}
