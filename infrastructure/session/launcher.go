package session

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/felixgeelhaar/fsassist/domain/capability"
	"github.com/felixgeelhaar/fsassist/domain/config"
	"github.com/felixgeelhaar/fsassist/infrastructure/backends"
	"github.com/felixgeelhaar/fsassist/infrastructure/logging"
	"github.com/felixgeelhaar/fsassist/infrastructure/mcp"
)

// Launcher starts one backend and returns a handshaken handle.
type Launcher interface {
	Launch(ctx context.Context, b config.BackendConfig) (capability.Backend, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context, b config.BackendConfig) (capability.Backend, error)

// Launch calls f.
func (f LauncherFunc) Launch(ctx context.Context, b config.BackendConfig) (capability.Backend, error) {
	return f(ctx, b)
}

// ProcessLauncher runs each backend as a child MCP stdio server. Built-in
// kinds re-execute the fsassist binary with the backend subcommand.
type ProcessLauncher struct {
	// Executable is the fsassist binary. Defaults to os.Executable().
	Executable string

	// ConfigPath is forwarded to built-in backend processes.
	ConfigPath string

	// Stderr receives backend diagnostics. Defaults to os.Stderr.
	Stderr io.Writer

	// Version is announced to servers during the handshake.
	Version string
}

// Launch starts the process and performs the initialize handshake.
func (l *ProcessLauncher) Launch(ctx context.Context, b config.BackendConfig) (capability.Backend, error) {
	command, err := l.command(b)
	if err != nil {
		return nil, err
	}

	stderr := l.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	opts := []mcp.ClientOption{
		mcp.WithServerCommand(command...),
		mcp.WithStderr(stderr),
		mcp.WithEnv(envList(b.Env)...),
	}
	if l.Version != "" {
		opts = append(opts, mcp.WithClientVersion(l.Version))
	}

	client := mcp.NewClient(opts...)
	if err := client.Connect(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	if info := client.ServerInfo(); info != nil {
		logging.Debug().
			Add(logging.Backend(b.Tag)).
			Add(logging.Str("server", info.Name)).
			Add(logging.Str("server_version", info.Version)).
			Msg("backend handshake complete")
	}

	hints, err := backends.Hints(b)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return mcp.NewBackend(b.Tag, client, hints), nil
}

func (l *ProcessLauncher) command(b config.BackendConfig) ([]string, error) {
	if b.Kind == config.KindCommand {
		return b.Command, nil
	}

	exe := l.Executable
	if exe == "" {
		var err error
		exe, err = os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate executable: %w", err)
		}
	}
	cmd := []string{exe, "backend", b.Tag}
	if l.ConfigPath != "" {
		cmd = append(cmd, "--config", l.ConfigPath)
	}
	return cmd, nil
}

func envList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// InProcessLauncher builds built-in packs inside the assistant process.
// External commands still run as child processes through Fallback.
type InProcessLauncher struct {
	Fallback Launcher
}

// Launch builds the pack for b.
func (l *InProcessLauncher) Launch(ctx context.Context, b config.BackendConfig) (capability.Backend, error) {
	if b.Kind == config.KindCommand {
		if l.Fallback == nil {
			return nil, fmt.Errorf("%w: %s", backends.ErrNotBuiltIn, b.Tag)
		}
		return l.Fallback.Launch(ctx, b)
	}
	inst, err := backends.Build(ctx, b)
	if err != nil {
		return nil, err
	}
	return backends.NewInProcessInstance(b.Tag, inst), nil
}
