// Package cli provides the fsassist command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	fsassist "github.com/felixgeelhaar/fsassist"
)

// Version information set at build time.
var (
	Version   = fsassist.Version
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// globalOptions are flags shared by every command.
type globalOptions struct {
	configPath string
	logLevel   string
	inProcess  bool
}

// App represents the CLI application.
type App struct {
	root   *cobra.Command
	opts   globalOptions
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// New creates a new CLI application.
func New() *App {
	app := &App{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}

	app.root = &cobra.Command{
		Use:   "fsassist",
		Short: "Natural-language assistant for your files",
		Long: `fsassist answers questions about and organizes files across your local
disk, a sync folder, Google Drive, a Synology NAS and object storage.

A language model plans the work; each storage backend runs as its own MCP
server process and only exposes operations confined to its configured root.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := app.root.PersistentFlags()
	flags.StringVarP(&app.opts.configPath, "config", "c", "", "Path to configuration file (default: $FSASSIST_CONFIG or ~/.config/fsassist/config.yaml)")
	flags.StringVar(&app.opts.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	flags.BoolVar(&app.opts.inProcess, "in-process", false, "Run built-in backends inside this process instead of child processes")

	app.root.AddCommand(
		app.newVersionCmd(),
		app.newValidateCmd(),
		app.newChatCmd(),
		app.newAskCmd(),
		app.newToolsCmd(),
		app.newBackendCmd(),
		app.newAuthCmd(),
	)

	return app
}

// WithOutput sets custom output writers.
func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	a.root.SetOut(stdout)
	a.root.SetErr(stderr)
	return a
}

// WithInput sets the reader the chat command reads prompts from.
func (a *App) WithInput(stdin io.Reader) *App {
	a.stdin = stdin
	a.root.SetIn(stdin)
	return a
}

// Execute runs the CLI application.
func (a *App) Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.root.ExecuteContext(ctx)
}

// ExecuteWithArgs runs the CLI with specific arguments (useful for testing).
func (a *App) ExecuteWithArgs(ctx context.Context, args []string) error {
	a.root.SetArgs(args)
	return a.Execute(ctx)
}

// newVersionCmd creates the version command.
func (a *App) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(a.stdout, "fsassist version %s\n", Version)
			_, _ = fmt.Fprintf(a.stdout, "  Git commit: %s\n", GitCommit)
			_, _ = fmt.Fprintf(a.stdout, "  Build date: %s\n", BuildDate)
		},
	}
}
