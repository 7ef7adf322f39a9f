package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
)

// AzureStore implements Store for one Azure Blob Storage container.
type AzureStore struct {
	client    *azblob.Client
	container string
}

// AzureConfig configures the Azure store.
type AzureConfig struct {
	Container        string
	AccountURL       string // e.g. https://acct.blob.core.windows.net/
	ConnectionString string // takes precedence over AccountURL
}

// NewAzureStore creates an Azure Blob Storage store. Without a connection
// string it authenticates with DefaultAzureCredential.
func NewAzureStore(cfg AzureConfig) (*AzureStore, error) {
	if cfg.Container == "" {
		return nil, errors.New("container is required")
	}

	var (
		client *azblob.Client
		err    error
	)
	switch {
	case cfg.ConnectionString != "":
		client, err = azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create client from connection string: %w", err)
		}
	case cfg.AccountURL != "":
		cred, credErr := azidentity.NewDefaultAzureCredential(nil)
		if credErr != nil {
			return nil, fmt.Errorf("failed to create default credential: %w", credErr)
		}
		client, err = azblob.NewClient(cfg.AccountURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create client with default credential: %w", err)
		}
	default:
		return nil, errors.New("account URL or connection string is required")
	}

	return &AzureStore{client: client, container: cfg.Container}, nil
}

// Name returns the provider name.
func (s *AzureStore) Name() string {
	return "azure-blob"
}

// Bucket returns the container name.
func (s *AzureStore) Bucket() string {
	return s.container
}

// List pages through blobs under prefix.
func (s *AzureStore) List(ctx context.Context, prefix string, max int) ([]ObjectInfo, error) {
	opts := &container.ListBlobsFlatOptions{}
	if prefix != "" {
		opts.Prefix = &prefix
	}

	objects := make([]ObjectInfo, 0)
	pager := s.client.ServiceClient().NewContainerClient(s.container).NewListBlobsFlatPager(opts)
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list blobs: %w", err)
		}
		for _, b := range resp.Segment.BlobItems {
			info := ObjectInfo{Key: *b.Name}
			if b.Properties != nil {
				if b.Properties.ContentLength != nil {
					info.Size = *b.Properties.ContentLength
				}
				if b.Properties.LastModified != nil {
					info.LastModified = *b.Properties.LastModified
				}
				if b.Properties.ETag != nil {
					info.ETag = string(*b.Properties.ETag)
				}
			}
			objects = append(objects, info)
			if max > 0 && len(objects) >= max {
				return objects, nil
			}
		}
	}
	return objects, nil
}

// Get opens a blob.
func (s *AzureStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, key, nil)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("failed to download blob: %w", err)
	}
	return resp.Body, nil
}

// Copy streams src into a new blob. Server-side copy would need a SAS for
// the source under token credentials.
func (s *AzureStore) Copy(ctx context.Context, src, dest string) error {
	body, err := s.Get(ctx, src)
	if err != nil {
		return err
	}
	defer body.Close()

	if _, err := s.client.UploadStream(ctx, s.container, dest, body, nil); err != nil {
		return fmt.Errorf("failed to upload blob: %w", err)
	}
	return nil
}

// Delete removes a blob.
func (s *AzureStore) Delete(ctx context.Context, key string) error {
	if _, err := s.client.DeleteBlob(ctx, s.container, key, nil); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

// Exists checks the container properties.
func (s *AzureStore) Exists(ctx context.Context) (bool, error) {
	_, err := s.client.ServiceClient().NewContainerClient(s.container).GetProperties(ctx, nil)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check container: %w", err)
	}
	return true, nil
}

// Close is a no-op.
func (s *AzureStore) Close() error {
	return nil
}

func isStatus(err error, code int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == code
}
