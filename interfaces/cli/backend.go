package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/fsassist/infrastructure/backends"
	"github.com/felixgeelhaar/fsassist/infrastructure/logging"
	"github.com/felixgeelhaar/fsassist/infrastructure/mcp"
)

// newBackendCmd creates the internal command that serves one built-in
// backend over stdio. The assistant launches it as a child process.
func (a *App) newBackendCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "backend <tag>",
		Short:  "Serve one configured backend as an MCP stdio server",
		Hidden: true,
		Args:   cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tag := args[0]

			// stdout carries the MCP stream.
			cfg, _, err := a.loadConfig(logging.BackendConfig())
			if err != nil {
				return err
			}
			b, ok := cfg.Backend(tag)
			if !ok {
				return fmt.Errorf("no backend tagged %q in configuration", tag)
			}

			inst, err := backends.Build(cmd.Context(), b)
			if err != nil {
				return fmt.Errorf("build backend %s: %w", tag, err)
			}
			defer func() {
				if err := inst.Close(); err != nil {
					logging.Warn().
						Add(logging.Backend(tag)).
						Add(logging.ErrorField(err)).
						Msg("backend close failed")
				}
			}()

			srv, err := mcp.NewPackServer(mcp.PackServerConfig{
				Name:    "fsassist-" + tag,
				Version: Version,
				Pack:    inst.Pack,
			})
			if err != nil {
				return err
			}
			srv.Use(mcp.Recover(), mcp.RequestID())

			logging.Info().
				Add(logging.Backend(tag)).
				Add(logging.Str("kind", b.Kind)).
				Msg("backend serving")
			return srv.ServeStdio(cmd.Context())
		},
	}
}
