// Package objectstore provides the object storage backend over one S3, GCS or
// Azure Blob bucket.
package objectstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/felixgeelhaar/fsassist/domain/pack"
	"github.com/felixgeelhaar/fsassist/domain/tool"
)

// Config configures the object store pack.
type Config struct {
	// MaxObjectSize limits the bytes read_object returns.
	MaxObjectSize int64

	// ListLimit caps list_objects and search_objects results.
	ListLimit int

	// ScanLimit caps how many keys search_objects inspects.
	ScanLimit int

	// Timeout for each store operation.
	Timeout time.Duration
}

// Option configures the object store pack.
type Option func(*Config)

// WithMaxObjectSize sets the maximum object size for reads.
func WithMaxObjectSize(size int64) Option {
	return func(c *Config) {
		c.MaxObjectSize = size
	}
}

// WithListLimit sets the maximum number of keys returned.
func WithListLimit(n int) Option {
	return func(c *Config) {
		c.ListLimit = n
	}
}

// WithTimeout sets the operation timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// New creates the object store pack. A nil store yields tools that fail
// with ErrNotConfigured.
func New(store Store, opts ...Option) (*pack.Pack, error) {
	cfg := Config{
		MaxObjectSize: 1 << 20,
		ListLimit:     1000,
		ScanLimit:     10000,
		Timeout:       60 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	b := &bucket{store: store, cfg: cfg}
	desc := "Object storage operations"
	if store != nil {
		desc = fmt.Sprintf("Object storage operations on %s bucket %s", store.Name(), store.Bucket())
	}

	return pack.NewBuilder("objectstore").
		WithDescription(desc).
		WithVersion("1.0.0").
		WithInstructions("Object keys are flat; use a prefix such as reports/ to list a pseudo folder.").
		AddTools(
			b.listObjectsTool(),
			b.searchObjectsTool(),
			b.readObjectTool(),
			b.copyObjectTool(),
			b.deleteObjectTool(),
		).
		Build()
}

type bucket struct {
	store Store
	cfg   Config
}

func (b *bucket) begin(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if b.store == nil {
		return ctx, func() {}, ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	return ctx, cancel, nil
}

type listOutput struct {
	Bucket  string       `json:"bucket"`
	Prefix  string       `json:"prefix,omitempty"`
	Query   string       `json:"query,omitempty"`
	Objects []ObjectInfo `json:"objects"`
	Count   int          `json:"count"`
}

func (b *bucket) listObjectsTool() tool.Tool {
	return tool.NewBuilder("list_objects").
		WithDescription("List objects whose key starts with prefix.").
		WithInputSchema(tool.ObjectSchema(map[string]tool.Property{
			"prefix": tool.String("Key prefix, empty for the whole bucket").WithDefault(""),
		})).
		ReadOnly().
		WithHandler(func(ctx context.Context, input json.RawMessage) (tool.Result, error) {
			var in struct {
				Prefix string `json:"prefix"`
			}
			if err := tool.Decode(input, &in); err != nil {
				return tool.Result{}, err
			}

			ctx, cancel, err := b.begin(ctx)
			defer cancel()
			if err != nil {
				return tool.Result{}, err
			}

			objects, err := b.store.List(ctx, in.Prefix, b.cfg.ListLimit)
			if err != nil {
				return tool.Result{}, err
			}
			return tool.JSONResult(listOutput{
				Bucket:  b.store.Bucket(),
				Prefix:  in.Prefix,
				Objects: objects,
				Count:   len(objects),
			})
		}).
		MustBuild()
}

func (b *bucket) searchObjectsTool() tool.Tool {
	return tool.NewBuilder("search_objects").
		WithDescription("Find objects whose base name contains query, case-insensitively.").
		WithInputSchema(tool.ObjectSchema(map[string]tool.Property{
			"query": tool.String("Text to look for in object names"),
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

			ctx, cancel, err := b.begin(ctx)
			defer cancel()
			if err != nil {
				return tool.Result{}, err
			}

			all, err := b.store.List(ctx, "", b.cfg.ScanLimit)
			if err != nil {
				return tool.Result{}, err
			}
			needle := strings.ToLower(in.Query)
			hits := make([]ObjectInfo, 0)
			for _, obj := range all {
				if strings.Contains(strings.ToLower(path.Base(obj.Key)), needle) {
					hits = append(hits, obj)
					if len(hits) >= b.cfg.ListLimit {
						break
					}
				}
			}
			return tool.JSONResult(listOutput{
				Bucket:  b.store.Bucket(),
				Query:   in.Query,
				Objects: hits,
				Count:   len(hits),
			})
		}).
		MustBuild()
}

type readOutput struct {
	Key       string `json:"key"`
	Content   string `json:"content,omitempty"`
	Encoding  string `json:"encoding"`
	Size      int    `json:"size"`
	Truncated bool   `json:"truncated"`
}

func (b *bucket) readObjectTool() tool.Tool {
	return tool.NewBuilder("read_object").
		WithDescription(fmt.Sprintf("Read an object's text content, up to %d bytes.", b.cfg.MaxObjectSize)).
		WithInputSchema(tool.ObjectSchema(map[string]tool.Property{
			"key": tool.String("Object key"),
		}, "key")).
		ReadOnly().
		WithHandler(func(ctx context.Context, input json.RawMessage) (tool.Result, error) {
			var in struct {
				Key string `json:"key"`
			}
			if err := tool.Decode(input, &in); err != nil {
				return tool.Result{}, err
			}
			if err := tool.Require([2]string{"key", in.Key}); err != nil {
				return tool.Result{}, err
			}

			ctx, cancel, err := b.begin(ctx)
			defer cancel()
			if err != nil {
				return tool.Result{}, err
			}

			body, err := b.store.Get(ctx, in.Key)
			if err != nil {
				return tool.Result{}, err
			}
			defer body.Close()

			data, err := io.ReadAll(io.LimitReader(body, b.cfg.MaxObjectSize+1))
			if err != nil {
				return tool.Result{}, fmt.Errorf("failed to read object: %w", err)
			}
			out := readOutput{Key: in.Key, Encoding: "text"}
			if int64(len(data)) > b.cfg.MaxObjectSize {
				data = data[:b.cfg.MaxObjectSize]
				out.Truncated = true
			}
			out.Size = len(data)
			if utf8.Valid(data) {
				out.Content = string(data)
			} else {
				out.Encoding = "binary"
			}
			return tool.JSONResult(out)
		}).
		MustBuild()
}

type statusOutput struct {
	Status string `json:"status"`
	Key    string `json:"key"`
}

func (b *bucket) copyObjectTool() tool.Tool {
	return tool.NewBuilder("copy_object").
		WithDescription("Copy an object to a new key in the same bucket.").
		WithInputSchema(tool.ObjectSchema(map[string]tool.Property{
			"src":  tool.String("Source key"),
			"dest": tool.String("Destination key; a trailing / keeps the source name"),
		}, "src", "dest")).
		Idempotent().
		WithHandler(func(ctx context.Context, input json.RawMessage) (tool.Result, error) {
			var in struct {
				Src  string `json:"src"`
				Dest string `json:"dest"`
			}
			if err := tool.Decode(input, &in); err != nil {
				return tool.Result{}, err
			}
			if err := tool.Require([2]string{"src", in.Src}, [2]string{"dest", in.Dest}); err != nil {
				return tool.Result{}, err
			}
			dest := in.Dest
			if strings.HasSuffix(dest, "/") {
				dest += path.Base(in.Src)
			}

			ctx, cancel, err := b.begin(ctx)
			defer cancel()
			if err != nil {
				return tool.Result{}, err
			}

			if err := b.store.Copy(ctx, in.Src, dest); err != nil {
				return tool.Result{}, err
			}
			return tool.JSONResult(statusOutput{Status: "copied", Key: dest})
		}).
		MustBuild()
}

func (b *bucket) deleteObjectTool() tool.Tool {
	return tool.NewBuilder("delete_object").
		WithDescription("Delete an object.").
		WithInputSchema(tool.ObjectSchema(map[string]tool.Property{
			"key": tool.String("Object key"),
		}, "key")).
		Destructive().
		WithHandler(func(ctx context.Context, input json.RawMessage) (tool.Result, error) {
			var in struct {
				Key string `json:"key"`
			}
			if err := tool.Decode(input, &in); err != nil {
				return tool.Result{}, err
			}
			if err := tool.Require([2]string{"key", in.Key}); err != nil {
				return tool.Result{}, err
			}

			ctx, cancel, err := b.begin(ctx)
			defer cancel()
			if err != nil {
				return tool.Result{}, err
			}

			if err := b.store.Delete(ctx, in.Key); err != nil {
				return tool.Result{}, err
			}
			return tool.JSONResult(statusOutput{Status: "deleted", Key: in.Key})
		}).
		MustBuild()
}
