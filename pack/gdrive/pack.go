// Package gdrive provides the Google Drive backend.
package gdrive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/fsassist/domain/pack"
	"github.com/felixgeelhaar/fsassist/domain/tool"
)

// Config configures the Drive pack.
type Config struct {
	// DownloadDir receives download_file output.
	DownloadDir string
}

// Option configures the Drive pack.
type Option func(*Config)

// WithDownloadDir sets the directory downloads are written to.
func WithDownloadDir(dir string) Option {
	return func(c *Config) {
		c.DownloadDir = dir
	}
}

// New creates the Drive pack. A nil drive yields a pack whose tools report
// ErrNotConfigured, which is enough to describe the tools.
func New(d Drive, opts ...Option) (*pack.Pack, error) {
	cfg := Config{
		DownloadDir: os.TempDir(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if d == nil {
		d = unconfigured{}
	}

	p := &drivePack{drive: d, cfg: cfg}

	return pack.NewBuilder("gdrive").
		WithDescription("Google Drive file operations").
		WithVersion("1.0.0").
		WithInstructions("Files are addressed by id; use list_files or search_files to find ids.").
		AddTools(
			p.listFilesTool(),
			p.searchFilesTool(),
			p.renameFileTool(),
			p.deleteFileTool(),
			p.downloadFileTool(),
			p.uploadFileTool(),
		).
		Build()
}

type drivePack struct {
	drive Drive
	cfg   Config
}

func (p *drivePack) listFilesTool() tool.Tool {
	return tool.NewBuilder("list_files").
		WithDescription("List name, id and mimeType of the files in a Drive folder.").
		WithInputSchema(tool.ObjectSchema(map[string]tool.Property{
			"folder_id": tool.String("Folder id").WithDefault("root"),
		})).
		ReadOnly().
		WithHandler(func(ctx context.Context, input json.RawMessage) (tool.Result, error) {
			in := struct {
				FolderID string `json:"folder_id"`
			}{FolderID: "root"}
			if err := tool.Decode(input, &in); err != nil {
				return tool.Result{}, err
			}
			if in.FolderID == "" {
				in.FolderID = "root"
			}
			files, err := p.drive.List(ctx, fmt.Sprintf("%s in parents and trashed=false", quote(in.FolderID)))
			if err != nil {
				return tool.Result{}, err
			}
			return tool.JSONResult(files)
		}).
		MustBuild()
}

func (p *drivePack) searchFilesTool() tool.Tool {
	return tool.NewBuilder("search_files").
		WithDescription("Search Drive for files whose name contains query.").
		WithInputSchema(tool.ObjectSchema(map[string]tool.Property{
			"query": tool.String("Text to look for in file names"),
		}, "query")).
		ReadOnly().
		WithHandler(func(ctx context.Context, input json.RawMessage) (tool.Result, error) {
			var in struct {
				Query string `json:"query"`
			}
			if err := tool.Decode(input, &in); err != nil {
				return tool.Result{}, err
			}
			if err := tool.Require([2]string{"query", in.Query}); err != nil {
				return tool.Result{}, err
			}
			files, err := p.drive.List(ctx, fmt.Sprintf("name contains %s and trashed=false", quote(in.Query)))
			if err != nil {
				return tool.Result{}, err
			}
			return tool.JSONResult(files)
		}).
		MustBuild()
}

func (p *drivePack) renameFileTool() tool.Tool {
	return tool.NewBuilder("rename_file").
		WithDescription("Rename a Drive file.").
		WithInputSchema(tool.ObjectSchema(map[string]tool.Property{
			"file_id":  tool.String("File id"),
			"new_name": tool.String("New name"),
		}, "file_id", "new_name")).
		Idempotent().
		WithHandler(func(ctx context.Context, input json.RawMessage) (tool.Result, error) {
			var in struct {
				FileID  string `json:"file_id"`
				NewName string `json:"new_name"`
			}
			if err := tool.Decode(input, &in); err != nil {
				return tool.Result{}, err
			}
			if err := tool.Require([2]string{"file_id", in.FileID}, [2]string{"new_name", in.NewName}); err != nil {
				return tool.Result{}, err
			}
			if err := p.drive.Rename(ctx, in.FileID, in.NewName); err != nil {
				return tool.Result{}, err
			}
			return tool.JSONResult(map[string]string{"status": "renamed", "id": in.FileID, "name": in.NewName})
		}).
		MustBuild()
}

func (p *drivePack) deleteFileTool() tool.Tool {
	return tool.NewBuilder("delete_file").
		WithDescription("Delete a Drive file.").
		WithInputSchema(tool.ObjectSchema(map[string]tool.Property{
			"file_id": tool.String("File id"),
		}, "file_id")).
		Destructive().
		WithHandler(func(ctx context.Context, input json.RawMessage) (tool.Result, error) {
			var in struct {
				FileID string `json:"file_id"`
			}
			if err := tool.Decode(input, &in); err != nil {
				return tool.Result{}, err
			}
			if err := tool.Require([2]string{"file_id", in.FileID}); err != nil {
				return tool.Result{}, err
			}
			if err := p.drive.Delete(ctx, in.FileID); err != nil {
				return tool.Result{}, err
			}
			return tool.JSONResult(map[string]string{"status": "deleted", "id": in.FileID})
		}).
		MustBuild()
}

func (p *drivePack) downloadFileTool() tool.Tool {
	return tool.NewBuilder("download_file").
		WithDescription("Download a Drive file to the local download folder and return its path.").
		WithInputSchema(tool.ObjectSchema(map[string]tool.Property{
			"file_id": tool.String("File id"),
		}, "file_id")).
		WithHandler(func(ctx context.Context, input json.RawMessage) (tool.Result, error) {
			var in struct {
				FileID string `json:"file_id"`
			}
			if err := tool.Decode(input, &in); err != nil {
				return tool.Result{}, err
			}
			if err := tool.Require([2]string{"file_id", in.FileID}); err != nil {
				return tool.Result{}, err
			}
			path, err := p.download(ctx, in.FileID)
			if err != nil {
				return tool.Result{}, err
			}
			return tool.JSONResult(map[string]string{"status": "downloaded", "path": path})
		}).
		MustBuild()
}

// download streams into a temp file and renames it once the name is known.
func (p *drivePack) download(ctx context.Context, id string) (string, error) {
	if err := os.MkdirAll(p.cfg.DownloadDir, 0o750); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}
	tmp, err := os.CreateTemp(p.cfg.DownloadDir, ".download-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	name, err := p.drive.Download(ctx, id, tmp)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", err
	}

	dest := filepath.Join(p.cfg.DownloadDir, filepath.Base(name))
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", err
	}
	return dest, nil
}

func (p *drivePack) uploadFileTool() tool.Tool {
	return tool.NewBuilder("upload_file").
		WithDescription("Upload a local file into a Drive folder.").
		WithInputSchema(tool.ObjectSchema(map[string]tool.Property{
			"local_path":     tool.String("Path of the local file"),
			"dest_folder_id": tool.String("Destination folder id").WithDefault("root"),
		}, "local_path")).
		WithHandler(func(ctx context.Context, input json.RawMessage) (tool.Result, error) {
			in := struct {
				LocalPath    string `json:"local_path"`
				DestFolderID string `json:"dest_folder_id"`
			}{DestFolderID: "root"}
			if err := tool.Decode(input, &in); err != nil {
				return tool.Result{}, err
			}
			if err := tool.Require([2]string{"local_path", in.LocalPath}); err != nil {
				return tool.Result{}, err
			}

			f, err := os.Open(in.LocalPath) // #nosec G304 -- user-requested upload source
			if err != nil {
				return tool.Result{}, err
			}
			defer f.Close()

			uploaded, err := p.drive.Upload(ctx, filepath.Base(in.LocalPath), in.DestFolderID, f)
			if err != nil {
				return tool.Result{}, err
			}
			return tool.JSONResult(uploaded)
		}).
		MustBuild()
}
