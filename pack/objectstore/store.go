package objectstore

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrObjectNotFound indicates the key does not exist.
	ErrObjectNotFound = errors.New("object not found")

	// ErrBucketNotFound indicates the configured bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrNotConfigured is returned by tools of a pack built without a store.
	ErrNotConfigured = errors.New("object store not configured")
)

// Store is one bucket or container of an object store.
// Implementations exist for S3, Google Cloud Storage, Azure Blob Storage and
// memory.
type Store interface {
	// Name returns the provider name, e.g. "aws-s3".
	Name() string

	// Bucket returns the bucket or container name.
	Bucket() string

	// List returns up to max objects whose key starts with prefix.
	List(ctx context.Context, prefix string, max int) ([]ObjectInfo, error)

	// Get opens an object for reading.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Copy duplicates src to dest within the bucket.
	Copy(ctx context.Context, src, dest string) error

	// Delete removes an object.
	Delete(ctx context.Context, key string) error

	// Exists reports whether the bucket is reachable.
	Exists(ctx context.Context) (bool, error)

	// Close releases the client.
	Close() error
}

// ObjectInfo contains information about a stored object.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	ETag         string    `json:"etag,omitempty"`
}
