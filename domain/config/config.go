// Package config provides domain models for assistant configuration.
package config

import "time"

// Backend kinds served by the fsassist binary itself, plus external commands.
const (
	KindLocalFS     = "localfs"
	KindSyncFolder  = "syncfolder"
	KindGDrive      = "gdrive"
	KindSynology    = "synology"
	KindObjectStore = "objectstore"
	KindCommand     = "command"
)

// Config represents the complete assistant configuration.
type Config struct {
	// Name is a human-readable name for this configuration.
	Name string `json:"name" yaml:"name"`

	// Assistant contains tool-calling loop settings.
	Assistant AssistantSettings `json:"assistant" yaml:"assistant"`

	// Model configures the language model.
	Model ModelConfig `json:"model" yaml:"model"`

	// Backends lists the storage backends in provider order. Earlier
	// backends win operation name collisions.
	Backends []BackendConfig `json:"backends" yaml:"backends"`

	// Resilience configures backend call protection.
	Resilience ResilienceConfig `json:"resilience,omitempty" yaml:"resilience,omitempty"`

	// Logging configures structured logging.
	Logging LoggingConfig `json:"logging,omitempty" yaml:"logging,omitempty"`

	// Observability configures tracing.
	Observability ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"`
}

// AssistantSettings contains tool-calling loop settings.
type AssistantSettings struct {
	// MaxSteps is the maximum number of model round-trips per request.
	MaxSteps int `json:"max_steps,omitempty" yaml:"max_steps,omitempty"`

	// SystemPrompt overrides the default system instruction.
	SystemPrompt string `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`

	// FallbackMessage overrides the text returned when steps run out.
	FallbackMessage string `json:"fallback_message,omitempty" yaml:"fallback_message,omitempty"`

	// ToolConcurrency bounds concurrent operations within one step.
	ToolConcurrency int `json:"tool_concurrency,omitempty" yaml:"tool_concurrency,omitempty"`
}

// ModelConfig configures the language model provider.
type ModelConfig struct {
	// Provider selects the implementation: openai or scripted.
	Provider string `json:"provider" yaml:"provider"`

	// Model is the model identifier.
	Model string `json:"model,omitempty" yaml:"model,omitempty"`

	// APIKey authenticates against the provider.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// BaseURL points at an OpenAI-compatible endpoint.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// Temperature is the sampling temperature.
	Temperature float32 `json:"temperature,omitempty" yaml:"temperature,omitempty"`

	// Timeout bounds one model round-trip.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Script is a file of canned responses for the scripted provider.
	Script string `json:"script,omitempty" yaml:"script,omitempty"`
}

// BackendConfig configures one storage backend.
type BackendConfig struct {
	// Tag is the short provider identifier.
	Tag string `json:"tag" yaml:"tag"`

	// Kind selects the backend implementation.
	Kind string `json:"kind" yaml:"kind"`

	// Disabled excludes the backend without removing it from the file.
	Disabled bool `json:"disabled,omitempty" yaml:"disabled,omitempty"`

	// Command is the MCP server command line for kind "command".
	Command []string `json:"command,omitempty" yaml:"command,omitempty"`

	// Env holds extra environment variables for the backend process.
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// Root confines localfs and syncfolder backends.
	Root string `json:"root,omitempty" yaml:"root,omitempty"`

	// CredentialsFile is the Google OAuth client secret.
	CredentialsFile string `json:"credentials_file,omitempty" yaml:"credentials_file,omitempty"`

	// TokenFile is an already-issued OAuth token.
	TokenFile string `json:"token_file,omitempty" yaml:"token_file,omitempty"`

	// DownloadDir receives files fetched from remote backends.
	DownloadDir string `json:"download_dir,omitempty" yaml:"download_dir,omitempty"`

	// Host, Port, Username, Password and Secure address a NAS.
	Host     string `json:"host,omitempty" yaml:"host,omitempty"`
	Port     int    `json:"port,omitempty" yaml:"port,omitempty"`
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	Secure   bool   `json:"secure,omitempty" yaml:"secure,omitempty"`

	// InsecureSkipVerify accepts self-signed NAS certificates.
	InsecureSkipVerify bool `json:"insecure_skip_verify,omitempty" yaml:"insecure_skip_verify,omitempty"`

	// Provider selects the object store: s3, gcs, azure or memory.
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`

	// Bucket is the object store bucket or container.
	Bucket string `json:"bucket,omitempty" yaml:"bucket,omitempty"`

	// Region is the S3 region.
	Region string `json:"region,omitempty" yaml:"region,omitempty"`

	// Endpoint overrides the object store endpoint.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`

	// AccountURL is the Azure storage account URL.
	AccountURL string `json:"account_url,omitempty" yaml:"account_url,omitempty"`
}

// Enabled reports whether the backend should be started.
func (b BackendConfig) Enabled() bool {
	return !b.Disabled
}

// ResilienceConfig configures backend call protection.
type ResilienceConfig struct {
	// CallTimeout bounds one backend call.
	CallTimeout Duration `json:"call_timeout,omitempty" yaml:"call_timeout,omitempty"`

	// BreakerThreshold is the consecutive failures that open a breaker.
	BreakerThreshold int `json:"breaker_threshold,omitempty" yaml:"breaker_threshold,omitempty"`

	// BreakerTimeout is how long an open breaker rejects calls.
	BreakerTimeout Duration `json:"breaker_timeout,omitempty" yaml:"breaker_timeout,omitempty"`

	// RetryAttempts is the total attempts for read-only operations.
	RetryAttempts int `json:"retry_attempts,omitempty" yaml:"retry_attempts,omitempty"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `json:"level,omitempty" yaml:"level,omitempty"`
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// ObservabilityConfig configures tracing.
type ObservabilityConfig struct {
	// Tracing is none or stdout.
	Tracing string `json:"tracing,omitempty" yaml:"tracing,omitempty"`
}

// Duration is a time.Duration that supports JSON/YAML string representation.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}

	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
