// Package syncfolder provides a backend for a locally mirrored cloud folder
// such as iCloud Drive. Every path is relative to the sync root.
package syncfolder

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"

	"github.com/felixgeelhaar/fsassist/domain/pack"
	"github.com/felixgeelhaar/fsassist/domain/tool"
	"github.com/felixgeelhaar/fsassist/pack/localfs"
)

// DefaultRoot is the iCloud Drive mirror on macOS.
const DefaultRoot = "~/Library/Mobile Documents/com~apple~CloudDocs"

// ErrOutsideSyncFolder is returned for paths escaping the sync root.
var ErrOutsideSyncFolder = errors.New("path outside sync folder")

// Config configures the sync folder pack.
type Config struct {
	// Root is the mirrored folder.
	Root string

	// SearchLimit caps search_files hits.
	SearchLimit int
}

// Option configures the sync folder pack.
type Option func(*Config)

// WithRoot sets the mirrored folder.
func WithRoot(dir string) Option {
	return func(c *Config) {
		c.Root = dir
	}
}

// WithSearchLimit sets the maximum number of search hits.
func WithSearchLimit(n int) Option {
	return func(c *Config) {
		c.SearchLimit = n
	}
}

// New creates the sync folder pack.
func New(opts ...Option) (*pack.Pack, error) {
	cfg := Config{
		Root:        DefaultRoot,
		SearchLimit: localfs.DefaultSearchLimit,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	root, err := localfs.NewRoot(cfg.Root, ErrOutsideSyncFolder)
	if err != nil {
		return nil, err
	}
	s := &syncFolder{root: root, searchLimit: cfg.SearchLimit}

	return pack.NewBuilder("syncfolder").
		WithDescription("Synced cloud folder at " + root.Dir()).
		WithVersion("1.0.0").
		AddTools(
			s.listFilesTool(),
			s.searchFilesTool(),
			s.copyFileTool(),
			s.deleteFileTool(),
		).
		Build()
}

type syncFolder struct {
	root        *localfs.Root
	searchLimit int
}

// resolve treats every path, absolute or not, as relative to the sync root.
func (s *syncFolder) resolve(rel string) (string, error) {
	return s.root.Resolve(strings.TrimLeft(rel, "/"))
}

func (s *syncFolder) listFilesTool() tool.Tool {
	return tool.NewBuilder("list_files").
		WithDescription("List a folder in the synced drive.").
		WithInputSchema(tool.ObjectSchema(map[string]tool.Property{
			"path": tool.String("Folder relative to the drive root").WithDefault(""),
		})).
		ReadOnly().
		WithHandler(func(_ context.Context, input json.RawMessage) (tool.Result, error) {
			var in struct {
				Path string `json:"path"`
			}
			if err := tool.Decode(input, &in); err != nil {
				return tool.Result{}, err
			}
			dir, err := s.resolve(in.Path)
			if err != nil {
				return tool.Result{}, err
			}
			names, err := localfs.ListDir(dir, false)
			if err != nil {
				return tool.Result{}, err
			}
			return tool.JSONResult(names)
		}).
		MustBuild()
}

func (s *syncFolder) searchFilesTool() tool.Tool {
	return tool.NewBuilder("search_files").
		WithDescription("Recursively search file names in the synced drive.").
		WithInputSchema(tool.ObjectSchema(map[string]tool.Property{
			"query": tool.String("Text or glob to look for in file names"),
			"path":  tool.String("Folder to search from").WithDefault(""),
		}, "query")).
		ReadOnly().
		WithHandler(func(ctx context.Context, input json.RawMessage) (tool.Result, error) {
			var in struct {
				Query string `json:"query"`
				Path  string `json:"path"`
			}
			if err := tool.Decode(input, &in); err != nil {
				return tool.Result{}, err
			}
			if err := tool.Require([2]string{"query", in.Query}); err != nil {
				return tool.Result{}, err
			}
			base, err := s.resolve(in.Path)
			if err != nil {
				return tool.Result{}, err
			}
			hits, err := localfs.Search(ctx, base, in.Query, s.searchLimit)
			if err != nil {
				return tool.Result{}, err
			}
			return tool.JSONResult(hits)
		}).
		MustBuild()
}

func (s *syncFolder) copyFileTool() tool.Tool {
	return tool.NewBuilder("copy_file").
		WithDescription("Copy a file within the synced drive.").
		WithInputSchema(tool.ObjectSchema(map[string]tool.Property{
			"src_rel":  tool.String("Source path relative to the drive root"),
			"dest_rel": tool.String("Destination path relative to the drive root"),
		}, "src_rel", "dest_rel")).
		Idempotent().
		WithHandler(func(_ context.Context, input json.RawMessage) (tool.Result, error) {
			var in struct {
				Src  string `json:"src_rel"`
				Dest string `json:"dest_rel"`
			}
			if err := tool.Decode(input, &in); err != nil {
				return tool.Result{}, err
			}
			if err := tool.Require([2]string{"src_rel", in.Src}, [2]string{"dest_rel", in.Dest}); err != nil {
				return tool.Result{}, err
			}
			src, err := s.resolve(in.Src)
			if err != nil {
				return tool.Result{}, err
			}
			dest, err := s.resolve(in.Dest)
			if err != nil {
				return tool.Result{}, err
			}
			written, err := localfs.CopyFile(src, dest)
			if err != nil {
				return tool.Result{}, err
			}
			return tool.JSONResult(map[string]string{"status": "copied", "path": s.root.Rel(written)})
		}).
		MustBuild()
}

func (s *syncFolder) deleteFileTool() tool.Tool {
	return tool.NewBuilder("delete_file").
		WithDescription("Delete a file from the synced drive.").
		WithInputSchema(tool.ObjectSchema(map[string]tool.Property{
			"rel_path": tool.String("File path relative to the drive root"),
		}, "rel_path")).
		Destructive().
		WithHandler(func(_ context.Context, input json.RawMessage) (tool.Result, error) {
			var in struct {
				RelPath string `json:"rel_path"`
			}
			if err := tool.Decode(input, &in); err != nil {
				return tool.Result{}, err
			}
			if err := tool.Require([2]string{"rel_path", in.RelPath}); err != nil {
				return tool.Result{}, err
			}
			target, err := s.resolve(in.RelPath)
			if err != nil {
				return tool.Result{}, err
			}
			if target == s.root.Dir() {
				return tool.Result{}, localfs.ErrDeleteRoot
			}
			if err := os.Remove(target); err != nil {
				return tool.Result{}, err
			}
			return tool.JSONResult(map[string]string{"status": "deleted", "path": s.root.Rel(target)})
		}).
		MustBuild()
}
