// Package localfs provides the local disk backend: listing, searching and
// organizing files under one root directory.
package localfs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/felixgeelhaar/fsassist/domain/pack"
	"github.com/felixgeelhaar/fsassist/domain/tool"
)

// Config configures the local filesystem pack.
type Config struct {
	// Root confines every operation. Defaults to the user's home.
	Root string

	// SearchLimit caps search_files hits.
	SearchLimit int
}

// Option configures the local filesystem pack.
type Option func(*Config)

// WithRoot restricts operations to a directory.
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

// New creates the local filesystem pack. The root does not have to exist
// yet; operations against a missing root fail individually.
func New(opts ...Option) (*pack.Pack, error) {
	cfg := Config{
		Root:        "~",
		SearchLimit: DefaultSearchLimit,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	root, err := NewRoot(cfg.Root, ErrPathOutsideRoot)
	if err != nil {
		return nil, err
	}
	fs := &localFS{root: root, searchLimit: cfg.SearchLimit}

	return pack.NewBuilder("localfs").
		WithDescription("Local disk operations confined to " + root.Dir()).
		WithVersion("1.0.0").
		WithInstructions("Paths are relative to " + root.Dir() + "; ~ names that directory.").
		AddTools(
			fs.listFilesTool(),
			fs.listdirTool(),
			fs.folderFilesTool(),
			fs.searchFilesTool(),
			fs.renameFileTool(),
			fs.moveFileTool(),
			fs.copyFileTool(),
			fs.deleteFileTool(),
		).
		Build()
}

type localFS struct {
	root        *Root
	searchLimit int
}

type statusOutput struct {
	Status string `json:"status"`
	Path   string `json:"path"`
}

func statusResult(status, path string) (tool.Result, error) {
	return tool.JSONResult(statusOutput{Status: status, Path: path})
}

// --- list_files ---

type listInput struct {
	Directory string `json:"directory"`
	FileType  string `json:"file_type"`
}

func (f *localFS) list(directory, fileType string) (tool.Result, error) {
	dir, err := f.root.Resolve(directory)
	if err != nil {
		return tool.Result{}, err
	}
	names, err := ListDir(dir, strings.EqualFold(fileType, "files"))
	if err != nil {
		return tool.Result{}, err
	}
	return tool.JSONResult(names)
}

func fileTypeProperty() tool.Property {
	return tool.Property{
		Type:        "string",
		Description: "all for every entry, files for regular files only",
		Default:     "all",
		Enum:        []any{"all", "files"},
	}
}

func (f *localFS) listFilesTool() tool.Tool {
	return tool.NewBuilder("list_files").
		WithDescription("List directory contents. If file_type is files, return only files.").
		WithInputSchema(tool.ObjectSchema(map[string]tool.Property{
			"directory": tool.String("Directory to list, relative to the root").WithDefault("~"),
			"file_type": fileTypeProperty(),
		})).
		ReadOnly().
		WithHandler(func(_ context.Context, input json.RawMessage) (tool.Result, error) {
			in := listInput{Directory: "~", FileType: "all"}
			if err := tool.Decode(input, &in); err != nil {
				return tool.Result{}, err
			}
			return f.list(in.Directory, in.FileType)
		}).
		MustBuild()
}

func (f *localFS) listdirTool() tool.Tool {
	return tool.NewBuilder("listdir").
		WithDescription("List every entry of a directory.").
		WithInputSchema(tool.ObjectSchema(map[string]tool.Property{
			"path": tool.String("Directory to list").WithDefault("~"),
		})).
		ReadOnly().
		WithHandler(func(_ context.Context, input json.RawMessage) (tool.Result, error) {
			in := struct {
				Path string `json:"path"`
			}{Path: "~"}
			if err := tool.Decode(input, &in); err != nil {
				return tool.Result{}, err
			}
			return f.list(in.Path, "all")
		}).
		MustBuild()
}

func (f *localFS) folderFilesTool() tool.Tool {
	return tool.NewBuilder("folder_files").
		WithDescription("List the contents of a folder.").
		WithInputSchema(tool.ObjectSchema(map[string]tool.Property{
			"folder":    tool.String("Folder to list").WithDefault("~"),
			"file_type": fileTypeProperty(),
		})).
		ReadOnly().
		WithHandler(func(_ context.Context, input json.RawMessage) (tool.Result, error) {
			in := struct {
				Folder   string `json:"folder"`
				FileType string `json:"file_type"`
			}{Folder: "~", FileType: "all"}
			if err := tool.Decode(input, &in); err != nil {
				return tool.Result{}, err
			}
			return f.list(in.Folder, in.FileType)
		}).
		MustBuild()
}

// --- search_files ---

func (f *localFS) searchFilesTool() tool.Tool {
	return tool.NewBuilder("search_files").
		WithDescription(fmt.Sprintf("Recursively search file names containing query (glob allowed). Returns at most %d paths.", f.searchLimit)).
		WithInputSchema(tool.ObjectSchema(map[string]tool.Property{
			"query": tool.String("Text or glob to look for in file names"),
			"path":  tool.String("Directory to search from").WithDefault("~"),
		}, "query")).
		ReadOnly().
		WithHandler(func(ctx context.Context, input json.RawMessage) (tool.Result, error) {
			in := struct {
				Query string `json:"query"`
				Path  string `json:"path"`
			}{Path: "~"}
			if err := tool.Decode(input, &in); err != nil {
				return tool.Result{}, err
			}
			if err := tool.Require([2]string{"query", in.Query}); err != nil {
				return tool.Result{}, err
			}

			base, err := f.root.Resolve(in.Path)
			if err != nil {
				return tool.Result{}, err
			}
			hits, err := Search(ctx, base, in.Query, f.searchLimit)
			if err != nil {
				return tool.Result{}, err
			}
			return tool.JSONResult(hits)
		}).
		MustBuild()
}

// --- rename_file ---

func (f *localFS) renameFileTool() tool.Tool {
	return tool.NewBuilder("rename_file").
		WithDescription("Rename a file or folder in place.").
		WithInputSchema(tool.ObjectSchema(map[string]tool.Property{
			"old_path": tool.String("Path of the file to rename"),
			"new_name": tool.String("New base name"),
		}, "old_path", "new_name")).
		WithHandler(func(_ context.Context, input json.RawMessage) (tool.Result, error) {
			var in struct {
				OldPath string `json:"old_path"`
				NewName string `json:"new_name"`
			}
			if err := tool.Decode(input, &in); err != nil {
				return tool.Result{}, err
			}
			if err := tool.Require([2]string{"old_path", in.OldPath}, [2]string{"new_name", in.NewName}); err != nil {
				return tool.Result{}, err
			}
			if strings.ContainsRune(in.NewName, filepath.Separator) {
				return tool.Result{}, fmt.Errorf("%w: new_name must not contain a path separator", tool.ErrInvalidInput)
			}

			src, err := f.root.Resolve(in.OldPath)
			if err != nil {
				return tool.Result{}, err
			}
			dest, err := f.root.Resolve(filepath.Join(filepath.Dir(src), in.NewName))
			if err != nil {
				return tool.Result{}, err
			}
			if err := os.Rename(src, dest); err != nil {
				return tool.Result{}, err
			}
			return statusResult("renamed", dest)
		}).
		MustBuild()
}

// --- move_file / copy_file ---

type srcDestInput struct {
	Src  string `json:"src"`
	Dest string `json:"dest"`
}

func srcDestSchema() tool.Schema {
	return tool.ObjectSchema(map[string]tool.Property{
		"src":  tool.String("Source path"),
		"dest": tool.String("Destination path or directory"),
	}, "src", "dest")
}

func (f *localFS) resolvePair(input json.RawMessage) (string, string, error) {
	var in srcDestInput
	if err := tool.Decode(input, &in); err != nil {
		return "", "", err
	}
	if err := tool.Require([2]string{"src", in.Src}, [2]string{"dest", in.Dest}); err != nil {
		return "", "", err
	}
	src, err := f.root.Resolve(in.Src)
	if err != nil {
		return "", "", err
	}
	dest, err := f.root.Resolve(in.Dest)
	if err != nil {
		return "", "", err
	}
	return src, dest, nil
}

func (f *localFS) moveFileTool() tool.Tool {
	return tool.NewBuilder("move_file").
		WithDescription("Move a file or folder.").
		WithInputSchema(srcDestSchema()).
		WithHandler(func(_ context.Context, input json.RawMessage) (tool.Result, error) {
			src, dest, err := f.resolvePair(input)
			if err != nil {
				return tool.Result{}, err
			}
			written, err := MoveFile(src, dest)
			if err != nil {
				return tool.Result{}, err
			}
			return statusResult("moved", written)
		}).
		MustBuild()
}

func (f *localFS) copyFileTool() tool.Tool {
	return tool.NewBuilder("copy_file").
		WithDescription("Copy a file, keeping its timestamps.").
		WithInputSchema(srcDestSchema()).
		Idempotent().
		WithHandler(func(_ context.Context, input json.RawMessage) (tool.Result, error) {
			src, dest, err := f.resolvePair(input)
			if err != nil {
				return tool.Result{}, err
			}
			written, err := CopyFile(src, dest)
			if err != nil {
				return tool.Result{}, err
			}
			return statusResult("copied", written)
		}).
		MustBuild()
}

// --- delete_file ---

func (f *localFS) deleteFileTool() tool.Tool {
	return tool.NewBuilder("delete_file").
		WithDescription("Delete a file. Folders are removed with their contents.").
		WithInputSchema(tool.ObjectSchema(map[string]tool.Property{
			"path": tool.String("Path to delete"),
		}, "path")).
		Destructive().
		WithHandler(func(_ context.Context, input json.RawMessage) (tool.Result, error) {
			var in struct {
				Path string `json:"path"`
			}
			if err := tool.Decode(input, &in); err != nil {
				return tool.Result{}, err
			}
			if err := tool.Require([2]string{"path", in.Path}); err != nil {
				return tool.Result{}, err
			}

			target, err := f.root.Resolve(in.Path)
			if err != nil {
				return tool.Result{}, err
			}
			if target == f.root.Dir() {
				return tool.Result{}, ErrDeleteRoot
			}

			info, err := os.Lstat(target)
			if err != nil {
				return tool.Result{}, err
			}
			if info.IsDir() {
				err = os.RemoveAll(target)
			} else {
				err = os.Remove(target)
			}
			if err != nil {
				return tool.Result{}, err
			}
			return statusResult("deleted", target)
		}).
		MustBuild()
}
