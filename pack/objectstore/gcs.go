package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSStore implements Store for Google Cloud Storage.
type GCSStore struct {
	client *gcs.Client
	bucket string
}

// GCSConfig configures the GCS store.
type GCSConfig struct {
	Bucket          string
	CredentialsFile string // service account JSON; Application Default Credentials if empty
	Endpoint        string // emulator or private endpoint
}

// NewGCSStore creates a Google Cloud Storage store.
func NewGCSStore(ctx context.Context, cfg GCSConfig, extra ...option.ClientOption) (*GCSStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	opts = append(opts, extra...)

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSStore{client: client, bucket: cfg.Bucket}, nil
}

// Name returns the provider name.
func (s *GCSStore) Name() string {
	return "gcp-storage"
}

// Bucket returns the bucket name.
func (s *GCSStore) Bucket() string {
	return s.bucket
}

// List iterates objects under prefix.
func (s *GCSStore) List(ctx context.Context, prefix string, max int) ([]ObjectInfo, error) {
	objects := make([]ObjectInfo, 0)
	it := s.client.Bucket(s.bucket).Objects(ctx, &gcs.Query{Prefix: prefix})
	for max <= 0 || len(objects) < max {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		objects = append(objects, ObjectInfo{
			Key:          attrs.Name,
			Size:         attrs.Size,
			LastModified: attrs.Updated,
			ETag:         attrs.Etag,
		})
	}
	return objects, nil
}

// Get opens an object.
func (s *GCSStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("failed to create object reader: %w", err)
	}
	return r, nil
}

// Copy duplicates an object server side.
func (s *GCSStore) Copy(ctx context.Context, src, dest string) error {
	b := s.client.Bucket(s.bucket)
	if _, err := b.Object(dest).CopierFrom(b.Object(src)).Run(ctx); err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return fmt.Errorf("%w: %s", ErrObjectNotFound, src)
		}
		return fmt.Errorf("failed to copy object: %w", err)
	}
	return nil
}

// Delete removes an object.
func (s *GCSStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Bucket(s.bucket).Object(key).Delete(ctx); err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// Exists checks the bucket attributes.
func (s *GCSStore) Exists(ctx context.Context) (bool, error) {
	_, err := s.client.Bucket(s.bucket).Attrs(ctx)
	if errors.Is(err, gcs.ErrBucketNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check bucket: %w", err)
	}
	return true, nil
}

// Close closes the GCS client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
