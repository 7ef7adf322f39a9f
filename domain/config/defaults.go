package config

import "time"

// Defaults applied when a field is left empty.
const (
	DefaultMaxSteps        = 10
	DefaultModel           = "gpt-4o"
	DefaultSystemPrompt    = "You are Filesystem-GPT. Always use the provided tools for file operations instead of guessing."
	DefaultFallbackMessage = "Sorry, I couldn't complete that request."
	DefaultSyncRoot        = "~/Library/Mobile Documents/com~apple~CloudDocs"
	DefaultGDriveToken     = "~/.filesystem_assistant/gdrive_token.json"
	DefaultDownloadDir     = "~/Downloads"
)

// Default returns a configuration with the local disk as the only backend.
func Default() *Config {
	cfg := &Config{
		Name:  "fsassist",
		Model: ModelConfig{Provider: "openai"},
		Backends: []BackendConfig{
			{Tag: "local", Kind: KindLocalFS, Root: "~"},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills empty fields in place.
func ApplyDefaults(cfg *Config) {
	if cfg.Name == "" {
		cfg.Name = "fsassist"
	}

	a := &cfg.Assistant
	if a.MaxSteps == 0 {
		a.MaxSteps = DefaultMaxSteps
	}
	if a.SystemPrompt == "" {
		a.SystemPrompt = DefaultSystemPrompt
	}
	if a.FallbackMessage == "" {
		a.FallbackMessage = DefaultFallbackMessage
	}
	if a.ToolConcurrency == 0 {
		a.ToolConcurrency = 1
	}

	m := &cfg.Model
	if m.Provider == "" {
		m.Provider = "openai"
	}
	if m.Model == "" {
		m.Model = DefaultModel
	}
	if m.Timeout == 0 {
		m.Timeout = Duration(120 * time.Second)
	}

	for i := range cfg.Backends {
		b := &cfg.Backends[i]
		switch b.Kind {
		case KindLocalFS:
			if b.Root == "" {
				b.Root = "~"
			}
		case KindSyncFolder:
			if b.Root == "" {
				b.Root = DefaultSyncRoot
			}
		case KindGDrive:
			if b.TokenFile == "" {
				b.TokenFile = DefaultGDriveToken
			}
			if b.DownloadDir == "" {
				b.DownloadDir = DefaultDownloadDir
			}
		case KindSynology:
			if b.Port == 0 {
				b.Port = 5001
			}
		case KindObjectStore:
			if b.Provider == "" {
				b.Provider = "memory"
			}
		}
	}

	r := &cfg.Resilience
	if r.CallTimeout == 0 {
		r.CallTimeout = Duration(30 * time.Second)
	}
	if r.BreakerThreshold == 0 {
		r.BreakerThreshold = 5
	}
	if r.BreakerTimeout == 0 {
		r.BreakerTimeout = Duration(30 * time.Second)
	}
	if r.RetryAttempts == 0 {
		r.RetryAttempts = 2
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "warn"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
	if cfg.Observability.Tracing == "" {
		cfg.Observability.Tracing = "none"
	}
}

// EnabledBackends returns the enabled backends in provider order.
func (c *Config) EnabledBackends() []BackendConfig {
	out := make([]BackendConfig, 0, len(c.Backends))
	for _, b := range c.Backends {
		if b.Enabled() {
			out = append(out, b)
		}
	}
	return out
}

// Backend returns the backend configuration with the given tag.
func (c *Config) Backend(tag string) (BackendConfig, bool) {
	for _, b := range c.Backends {
		if b.Tag == tag {
			return b, true
		}
	}
	return BackendConfig{}, false
}
