// Package synology provides the Synology NAS backend over the DSM
// FileStation web API.
package synology

import (
	"context"
	"path"

	"github.com/felixgeelhaar/fsassist/domain/pack"
	"github.com/felixgeelhaar/fsassist/domain/tool"
)

// FileStation is the NAS surface the pack needs. *Client implements it.
type FileStation interface {
	ListShares(ctx context.Context) ([]string, error)
	List(ctx context.Context, folder string) ([]string, error)
	Delete(ctx context.Context, path string) error
	Rename(ctx context.Context, path, name string) error
	Copy(ctx context.Context, src, dest string) error
}

// New creates the NAS pack. A nil FileStation yields tools that report
// ErrNotConnected.
func New(fs FileStation) (*pack.Pack, error) {
	n := &nasPack{fs: fs}

	return pack.NewBuilder("synology").
		WithDescription("Synology NAS file operations").
		WithVersion("1.0.0").
		WithInstructions("Paths are absolute NAS paths starting with a shared folder, e.g. /home/docs.").
		AddTools(
			n.listDirectoryTool(),
			n.deleteFileTool(),
			n.renameFileTool(),
			n.copyFileTool(),
		).
		Build()
}

type nasPack struct {
	fs FileStation
}

func (n *nasPack) check() error {
	if n.fs == nil {
		return ErrNotConnected
	}
	return nil
}

type pathInput struct {
	Path string `json:"path"`
}

func (n *nasPack) listDirectoryTool() tool.Tool {
	return tool.NewBuilder("list_directory").
		WithDescription("List a NAS folder. / lists the shared folders.").
		WithParams(map[string]tool.Property{
			"path": tool.String("NAS folder path").WithDefault("/"),
		}).
		ReadOnly().
		WithHandler(tool.Handle(pathInput{Path: "/"}, func(ctx context.Context, in pathInput) (any, error) {
			if err := n.check(); err != nil {
				return nil, err
			}
			if p := path.Clean("/" + in.Path); p != "/" {
				return n.fs.List(ctx, p)
			}
			return n.fs.ListShares(ctx)
		})).
		MustBuild()
}

func (n *nasPack) deleteFileTool() tool.Tool {
	return tool.NewBuilder("delete_file").
		WithDescription("Delete a NAS file or folder.").
		WithParams(map[string]tool.Property{
			"path": tool.String("NAS path to delete"),
		}, "path").
		Destructive().
		WithHandler(tool.Handle(pathInput{}, func(ctx context.Context, in pathInput) (any, error) {
			if err := tool.Require([2]string{"path", in.Path}); err != nil {
				return nil, err
			}
			if err := n.check(); err != nil {
				return nil, err
			}
			if err := n.fs.Delete(ctx, in.Path); err != nil {
				return nil, err
			}
			return map[string]string{"status": "deleted", "path": in.Path}, nil
		})).
		MustBuild()
}

type renameInput struct {
	Path    string `json:"path"`
	NewName string `json:"new_name"`
}

func (n *nasPack) renameFileTool() tool.Tool {
	return tool.NewBuilder("rename_file").
		WithDescription("Rename a NAS file or folder.").
		WithParams(map[string]tool.Property{
			"path":     tool.String("NAS path to rename"),
			"new_name": tool.String("New base name"),
		}, "path", "new_name").
		Idempotent().
		WithHandler(tool.Handle(renameInput{}, func(ctx context.Context, in renameInput) (any, error) {
			if err := tool.Require([2]string{"path", in.Path}, [2]string{"new_name", in.NewName}); err != nil {
				return nil, err
			}
			if err := n.check(); err != nil {
				return nil, err
			}
			if err := n.fs.Rename(ctx, in.Path, in.NewName); err != nil {
				return nil, err
			}
			return map[string]string{"status": "renamed", "path": path.Join(path.Dir(in.Path), in.NewName)}, nil
		})).
		MustBuild()
}

type copyInput struct {
	Src  string `json:"src"`
	Dest string `json:"dest"`
}

func (n *nasPack) copyFileTool() tool.Tool {
	return tool.NewBuilder("copy_file").
		WithDescription("Copy a NAS file into a destination folder.").
		WithParams(map[string]tool.Property{
			"src":  tool.String("NAS path to copy"),
			"dest": tool.String("Destination folder"),
		}, "src", "dest").
		WithHandler(tool.Handle(copyInput{}, func(ctx context.Context, in copyInput) (any, error) {
			if err := tool.Require([2]string{"src", in.Src}, [2]string{"dest", in.Dest}); err != nil {
				return nil, err
			}
			if err := n.check(); err != nil {
				return nil, err
			}
			if err := n.fs.Copy(ctx, in.Src, in.Dest); err != nil {
				return nil, err
			}
			return map[string]string{"status": "copied", "path": path.Join(in.Dest, path.Base(in.Src))}, nil
		})).
		MustBuild()
}
