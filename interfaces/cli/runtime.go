package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/felixgeelhaar/fsassist/application"
	"github.com/felixgeelhaar/fsassist/domain/config"
	infraconfig "github.com/felixgeelhaar/fsassist/infrastructure/config"
	"github.com/felixgeelhaar/fsassist/infrastructure/logging"
	"github.com/felixgeelhaar/fsassist/infrastructure/model"
	"github.com/felixgeelhaar/fsassist/infrastructure/observability"
	"github.com/felixgeelhaar/fsassist/infrastructure/resilience"
	"github.com/felixgeelhaar/fsassist/infrastructure/session"
)

// ConfigEnv names the environment variable holding the config path.
const ConfigEnv = "FSASSIST_CONFIG"

// DefaultConfigPath is used when neither --config nor $FSASSIST_CONFIG is set.
const DefaultConfigPath = "~/.config/fsassist/config.yaml"

// resolveConfigPath returns the configuration file to load, or "" for the
// built-in local-only configuration.
func (a *App) resolveConfigPath() string {
	if a.opts.configPath != "" {
		return a.opts.configPath
	}
	if p := os.Getenv(ConfigEnv); p != "" {
		return p
	}
	p := infraconfig.ExpandHome(DefaultConfigPath)
	if _, err := os.Stat(p); err == nil {
		return p
	}
	return ""
}

// loadConfig loads and validates the configuration and initializes logging.
func (a *App) loadConfig(logCfg logging.Config) (*config.Config, string, error) {
	path := a.resolveConfigPath()
	loader := infraconfig.NewLoader()

	var (
		cfg *config.Config
		err error
	)
	if path == "" {
		cfg, err = loader.LoadDefault()
	} else {
		cfg, err = loader.LoadFile(path)
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to load configuration: %w", err)
	}

	if cfg.Logging.Level != "" {
		logCfg.Level = cfg.Logging.Level
	}
	if cfg.Logging.Format != "" {
		logCfg.Format = cfg.Logging.Format
	}
	if a.opts.logLevel != "" {
		logCfg.Level = a.opts.logLevel
	}
	logCfg.Output = a.stderr
	logging.Replace(logging.New(logCfg))

	return cfg, path, nil
}

// startSession launches the configured backends.
func (a *App) startSession(ctx context.Context, cfg *config.Config, path string) (*session.Session, error) {
	process := &session.ProcessLauncher{
		ConfigPath: path,
		Stderr:     a.stderr,
		Version:    Version,
	}
	var launcher session.Launcher = process
	if a.opts.inProcess {
		launcher = &session.InProcessLauncher{Fallback: process}
	}

	sess, err := session.Start(ctx, cfg, session.WithLauncher(launcher))
	if err != nil {
		return nil, fmt.Errorf("start backends: %w", err)
	}
	for tag, reason := range sess.Excluded() {
		_, _ = fmt.Fprintf(a.stderr, "backend %s unavailable: %s\n", tag, reason)
	}
	return sess, nil
}

// startAssistant builds the full runtime: backends, model, telemetry and
// the assistant that owns them.
func (a *App) startAssistant(ctx context.Context) (*application.Assistant, error) {
	cfg, path, err := a.loadConfig(logging.DefaultConfig())
	if err != nil {
		return nil, err
	}

	provider, err := model.New(cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("create model provider: %w", err)
	}

	obs, err := observability.New(
		observability.WithServiceVersion(Version),
		observability.WithExporter(observability.ExporterType(cfg.Observability.Tracing)),
		observability.WithWriter(a.stderr),
	)
	if err != nil {
		return nil, fmt.Errorf("create telemetry: %w", err)
	}

	sess, err := a.startSession(ctx, cfg, path)
	if err != nil {
		return nil, errors.Join(err, obs.Shutdown(context.Background()))
	}

	assistant, err := application.New(
		application.WithProvider(provider),
		application.WithSession(sess),
		application.WithExecutor(resilience.NewExecutorWithOptions(
			resilience.FromConfig(cfg.Resilience),
			resilience.WithMinConcurrent(cfg.Assistant.ToolConcurrency),
		)),
		application.WithSettings(cfg.Assistant),
		application.WithModel(cfg.Model.Model, cfg.Model.Temperature),
		application.WithObservability(obs),
	)
	if err != nil {
		return nil, errors.Join(err, sess.Close(), obs.Shutdown(context.Background()))
	}
	return assistant, nil
}
