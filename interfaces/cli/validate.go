package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	infraconfig "github.com/felixgeelhaar/fsassist/infrastructure/config"
	"github.com/felixgeelhaar/fsassist/infrastructure/backends"
	"github.com/felixgeelhaar/fsassist/infrastructure/logging"
)

// validateOptions holds options for the validate command.
type validateOptions struct {
	strict bool
	probe  bool
}

// newValidateCmd creates the validate command.
func (a *App) newValidateCmd() *cobra.Command {
	opts := &validateOptions{}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Long: `Validate an fsassist configuration file for correctness.

This command checks:
  - File format (YAML or JSON)
  - Assistant, model and resilience settings
  - Backend tags, kinds and required connection parameters
  - Environment variable references (in strict mode)

With --probe it also checks each enabled backend's preconditions: root
directories exist, stored tokens are present, the NAS accepts the login.

Examples:
  # Validate a configuration file
  fsassist validate -c config.yaml

  # Strict validation (fail on missing env vars)
  fsassist validate -c config.yaml --strict

  # Check that every backend can start
  fsassist validate -c config.yaml --probe`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.validateConfig(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Enable strict validation (fail on missing env vars)")
	cmd.Flags().BoolVar(&opts.probe, "probe", false, "Probe each enabled backend")

	return cmd
}

// validateConfig validates the configuration file.
func (a *App) validateConfig(ctx context.Context, opts *validateOptions) error {
	path := a.resolveConfigPath()
	if path == "" {
		return fmt.Errorf("configuration file path is required (-c flag)")
	}

	loader := infraconfig.NewLoaderWithOptions(
		infraconfig.WithValidation(true),
		infraconfig.WithStrictEnv(opts.strict),
	)
	cfg, err := loader.LoadFile(path)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if a.opts.logLevel != "" {
		logCfg := logging.DefaultConfig()
		logCfg.Level = a.opts.logLevel
		logCfg.Output = a.stderr
		logging.Replace(logging.New(logCfg))
	}

	_, _ = fmt.Fprintf(a.stdout, "✓ Configuration is valid\n")
	if cfg.Name != "" {
		_, _ = fmt.Fprintf(a.stdout, "  Name: %s\n", cfg.Name)
	}

	_, _ = fmt.Fprintf(a.stdout, "\nConfiguration summary:\n")
	_, _ = fmt.Fprintf(a.stdout, "  Model: %s (%s)\n", cfg.Model.Model, providerName(cfg.Model.Provider))
	_, _ = fmt.Fprintf(a.stdout, "  Max steps: %d\n", cfg.Assistant.MaxSteps)
	_, _ = fmt.Fprintf(a.stdout, "  Tool concurrency: %d\n", cfg.Assistant.ToolConcurrency)
	_, _ = fmt.Fprintf(a.stdout, "  Backends: %d\n", len(cfg.Backends))

	for _, b := range cfg.Backends {
		status := "enabled"
		if !b.Enabled() {
			status = "disabled"
		}
		_, _ = fmt.Fprintf(a.stdout, "    - %s (%s, %s)", b.Tag, b.Kind, status)

		if opts.probe && b.Enabled() {
			avail := backends.Probe(ctx, b)
			if avail.Available {
				_, _ = fmt.Fprintf(a.stdout, ": available")
			} else {
				_, _ = fmt.Fprintf(a.stdout, ": unavailable: %s", avail.Reason)
			}
		}
		_, _ = fmt.Fprintf(a.stdout, "\n")
	}

	return nil
}

func providerName(p string) string {
	if p == "" {
		return "openai"
	}
	return p
}
