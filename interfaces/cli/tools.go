package cli

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/fsassist/infrastructure/logging"
)

// toolEntry is one row of the tools listing.
type toolEntry struct {
	Name        string `json:"name"`
	Backend     string `json:"backend"`
	ReadOnly    bool   `json:"read_only"`
	Description string `json:"description"`
}

// newToolsCmd creates the tools command.
func (a *App) newToolsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the operations offered by the configured backends",
		Long: `Start every enabled backend and print the merged operation catalog with
the backend that owns each operation. When two backends offer the same
operation name, the one listed first in the configuration owns it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := a.loadConfig(logging.DefaultConfig())
			if err != nil {
				return err
			}
			sess, err := a.startSession(cmd.Context(), cfg, path)
			if err != nil {
				return err
			}
			defer func() { _ = sess.Close() }()

			catalog := sess.Catalog()
			entries := make([]toolEntry, 0, len(catalog))
			for _, d := range catalog {
				owner, ok := sess.OwnerOf(d.Name)
				if !ok {
					continue
				}
				entries = append(entries, toolEntry{
					Name:        d.Name,
					Backend:     owner.Tag(),
					ReadOnly:    d.ReadOnly,
					Description: d.Description,
				})
			}

			if jsonOutput {
				data, err := json.MarshalIndent(entries, "", "  ")
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(a.stdout, string(data))
				return nil
			}

			if len(entries) == 0 {
				_, _ = fmt.Fprintln(a.stdout, "No backends available.")
			} else {
				_, _ = fmt.Fprintf(a.stdout, "Operations (%d):\n", len(entries))
				for _, e := range entries {
					mode := "rw"
					if e.ReadOnly {
						mode = "ro"
					}
					_, _ = fmt.Fprintf(a.stdout, "  %-20s %-10s %s  %s\n", e.Name, e.Backend, mode, e.Description)
				}
			}

			excluded := sess.Excluded()
			if len(excluded) > 0 {
				tags := make([]string, 0, len(excluded))
				for tag := range excluded {
					tags = append(tags, tag)
				}
				sort.Strings(tags)
				_, _ = fmt.Fprintf(a.stdout, "\nUnavailable backends:\n")
				for _, tag := range tags {
					_, _ = fmt.Fprintf(a.stdout, "  %s: %s\n", tag, excluded[tag])
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the catalog as JSON")
	return cmd
}
